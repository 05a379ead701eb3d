package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"malformed payload", ErrMalformedPayload, ErrorInvalid},
		{"header invalid", ErrHeaderInvalid, ErrorInvalid},
		{"length mismatch", ErrLengthMismatch, ErrorInvalid},
		{"unknown tag", ErrUnknownTag, ErrorInvalid},
		{"duplicate frame", ErrDuplicateFrame, ErrorInvalid},
		{"settings invalid", ErrSettingsInvalid, ErrorInvalid},
		{"config conflict", ErrConfigConflict, ErrorInvalid},
		{"persist unavailable", ErrPersistUnavailable, ErrorTransient},
		{"connection lost", ErrConnectionLost, ErrorTransient},
		{"deadline exceeded", context.DeadlineExceeded, ErrorTransient},
		{"unknown error defaults transient", errors.New("boom"), ErrorTransient},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestClassifySurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("router: %w", ErrHeaderInvalid)
	assert.True(t, IsInvalid(err))
	assert.False(t, IsTransient(err))

	wrapped := WrapTransient(errors.New("dial tcp: refused"), "Adapter", "Start", "connect")
	assert.True(t, IsTransient(wrapped))

	var ce *ClassifiedError
	require.True(t, errors.As(wrapped, &ce))
	assert.Equal(t, "Adapter", ce.Component)
	assert.Equal(t, ErrorTransient, ce.Class)
}

func TestWrapFormatsContext(t *testing.T) {
	base := errors.New("disk full")
	err := Wrap(base, "RecordingStore", "Append", "insert frame")
	require.Error(t, err)
	assert.Equal(t, "RecordingStore.Append: insert frame failed: disk full", err.Error())
	assert.True(t, errors.Is(err, base))

	assert.Nil(t, Wrap(nil, "a", "b", "c"))
	assert.Nil(t, WrapInvalid(nil, "a", "b", "c"))
}

func TestDecodeKind(t *testing.T) {
	assert.Equal(t, "malformed_payload", DecodeKind(ErrMalformedPayload))
	assert.Equal(t, "header_invalid", DecodeKind(fmt.Errorf("decode: %w", ErrHeaderInvalid)))
	assert.Equal(t, "length_mismatch", DecodeKind(ErrLengthMismatch))
	assert.Equal(t, "", DecodeKind(ErrUnknownTag))
	assert.Equal(t, "", DecodeKind(nil))
}
