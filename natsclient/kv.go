package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/vibstreams/pkg/retry"
)

// Well-known KV errors.
var (
	ErrKVKeyNotFound      = stderrors.New("kv: key not found")
	ErrKVKeyExists        = stderrors.New("kv: key already exists")
	ErrKVRevisionMismatch = stderrors.New("kv: revision mismatch (concurrent update)")
)

// KVEntry wraps a KV entry with its revision for CAS operations.
type KVEntry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// KVOptions configures KV operation behavior.
type KVOptions struct {
	MaxRetries int           // Maximum CAS retry attempts
	RetryDelay time.Duration // Initial delay between retries
	Timeout    time.Duration // Per-operation timeout
}

// DefaultKVOptions returns the defaults used by the control-plane
// state mirror.
func DefaultKVOptions() KVOptions {
	return KVOptions{
		MaxRetries: 10,
		RetryDelay: 10 * time.Millisecond,
		Timeout:    5 * time.Second,
	}
}

// KVStore provides KV operations with built-in CAS retry, used to
// mirror open-recording state across restarts.
type KVStore struct {
	bucket  jetstream.KeyValue
	options KVOptions
	logger  Logger
}

// NewKVStore creates a KV store over the given bucket.
func (c *Client) NewKVStore(bucket jetstream.KeyValue, opts ...func(*KVOptions)) *KVStore {
	options := DefaultKVOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &KVStore{bucket: bucket, options: options, logger: c.logger}
}

func (kv *KVStore) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if kv.options.Timeout > 0 {
		return context.WithTimeout(ctx, kv.options.Timeout)
	}
	return ctx, func() {}
}

// Get retrieves a value with its revision.
func (kv *KVStore) Get(ctx context.Context, key string) (*KVEntry, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	entry, err := kv.bucket.Get(ctx, key)
	if err != nil {
		if isKVNotFound(err) {
			return nil, ErrKVKeyNotFound
		}
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}
	return &KVEntry{Key: key, Value: entry.Value(), Revision: entry.Revision()}, nil
}

// Put creates or updates a key, last writer wins.
func (kv *KVStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Put(ctx, key, value)
	if err != nil {
		return 0, fmt.Errorf("kv put %s: %w", key, err)
	}
	return rev, nil
}

// Update performs a CAS update at the given revision.
func (kv *KVStore) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Update(ctx, key, value, revision)
	if err != nil {
		if isKVConflict(err) {
			return 0, ErrKVRevisionMismatch
		}
		return 0, fmt.Errorf("kv update %s: %w", key, err)
	}
	return rev, nil
}

// UpdateWithRetry applies updateFn under CAS, retrying conflicts with
// backoff. A missing key is presented to updateFn as nil and created.
func (kv *KVStore) UpdateWithRetry(ctx context.Context, key string,
	updateFn func(current []byte) ([]byte, error)) error {

	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	cfg := retry.Config{
		MaxAttempts:  kv.options.MaxRetries + 1,
		InitialDelay: kv.options.RetryDelay,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}

	return retry.Do(ctx, cfg, func() error {
		var current []byte
		var revision uint64

		entry, err := kv.Get(ctx, key)
		switch {
		case err == nil:
			current = entry.Value
			revision = entry.Revision
		case stderrors.Is(err, ErrKVKeyNotFound):
			// Created below
		default:
			return fmt.Errorf("kv get during update: %w", err)
		}

		newValue, err := updateFn(current)
		if err != nil {
			return retry.NonRetryable(fmt.Errorf("update function: %w", err))
		}

		if revision == 0 {
			if _, err := kv.bucket.Create(ctx, key, newValue); err != nil {
				if isKVConflict(err) {
					return ErrKVKeyExists // retried
				}
				return fmt.Errorf("kv create %s: %w", key, err)
			}
			return nil
		}

		if _, err := kv.Update(ctx, key, newValue, revision); err != nil {
			return err // conflict errors retried
		}
		return nil
	})
}

// Delete removes a key from the bucket.
func (kv *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	if err := kv.bucket.Delete(ctx, key); err != nil {
		if isKVNotFound(err) {
			return ErrKVKeyNotFound
		}
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

// Keys lists the keys currently present in the bucket.
func (kv *KVStore) Keys(ctx context.Context) ([]string, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	keys, err := kv.bucket.Keys(ctx)
	if err != nil {
		if isKVNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("kv keys: %w", err)
	}
	return keys, nil
}

// Watch creates a watcher for key changes. No timeout is applied; the
// watcher is long-lived.
func (kv *KVStore) Watch(ctx context.Context, pattern string) (jetstream.KeyWatcher, error) {
	watcher, err := kv.bucket.Watch(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("kv watch %s: %w", pattern, err)
	}
	return watcher, nil
}

func isKVNotFound(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, jetstream.ErrKeyNotFound) || stderrors.Is(err, ErrKVKeyNotFound) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "key not found") || strings.Contains(msg, "no keys found")
}

func isKVConflict(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, ErrKVRevisionMismatch) || stderrors.Is(err, ErrKVKeyExists) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "wrong last sequence") ||
		strings.Contains(msg, "key exists") ||
		strings.Contains(msg, "already exists")
}
