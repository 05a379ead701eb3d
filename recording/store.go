package recording

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/c360/vibstreams/errors"
	"github.com/c360/vibstreams/frame"
	"github.com/c360/vibstreams/metric"
)

// filenamePrefix is the session naming scheme: data1, data2, ...
const filenamePrefix = "data"

// Store provides recording sessions over the shared gorm database.
type Store struct {
	db      *gorm.DB
	metrics *metric.Metrics // nil when metrics disabled

	// lastIndex tracks the highest appended frame_index per open
	// recording, -1 before the first append. Loaded lazily from the
	// database so monotonicity survives restarts.
	lastIndex map[uint]int64
	mu        sync.Mutex
}

// NewStore creates a Store and migrates the recording tables.
func NewStore(db *gorm.DB, metrics *metric.Metrics) (*Store, error) {
	if err := db.AutoMigrate(&Recording{}, &FrameRecord{}); err != nil {
		return nil, errors.WrapFatal(err, "RecordingStore", "NewStore", "migrate schema")
	}
	return &Store{
		db:        db,
		metrics:   metrics,
		lastIndex: make(map[uint]int64),
	}, nil
}

// parseFilename extracts N from "data<N>". Returns 0, false for any
// other shape.
func parseFilename(name string) (int, bool) {
	if !strings.HasPrefix(name, filenamePrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(name[len(filenamePrefix):])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Begin opens a new recording for (project, model). The filename is
// "data<N>" with N one past the highest existing N for the project;
// the whole allocation is one transaction.
func (s *Store) Begin(project, model string) (*Recording, error) {
	var rec *Recording
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var names []string
		if err := tx.Model(&Recording{}).
			Where("project = ?", project).
			Pluck("filename", &names).Error; err != nil {
			return errors.Wrap(err, "RecordingStore", "Begin", "load filenames")
		}

		maxN := 0
		for _, name := range names {
			if n, ok := parseFilename(name); ok && n > maxN {
				maxN = n
			}
		}

		rec = &Recording{
			Project:   project,
			Model:     model,
			Filename:  fmt.Sprintf("%s%d", filenamePrefix, maxN+1),
			StartTime: time.Now().UTC(),
		}
		if err := tx.Create(rec).Error; err != nil {
			return errors.Wrap(err, "RecordingStore", "Begin", "insert recording")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lastIndex[rec.ID] = -1
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.OpenRecordings.Inc()
	}
	return rec, nil
}

// Get loads a recording by id.
func (s *Store) Get(id uint) (*Recording, error) {
	var rec Recording
	if err := s.db.First(&rec, id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: id %d", errors.ErrRecordingNotFound, id),
				"RecordingStore", "Get", "load recording")
		}
		return nil, errors.Wrap(err, "RecordingStore", "Get", "load recording")
	}
	return &rec, nil
}

// GetByName loads a recording by (project, model, filename).
func (s *Store) GetByName(project, model, filename string) (*Recording, error) {
	var rec Recording
	err := s.db.Where("project = ? AND model = ? AND filename = ?", project, model, filename).
		First(&rec).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %s/%s/%s", errors.ErrRecordingNotFound, project, model, filename),
				"RecordingStore", "GetByName", "load recording")
		}
		return nil, errors.Wrap(err, "RecordingStore", "GetByName", "load recording")
	}
	return &rec, nil
}

// FindOpen returns the open recording for (project, model), or
// RecordingNotFound.
func (s *Store) FindOpen(project, model string) (*Recording, error) {
	var rec Recording
	err := s.db.Where("project = ? AND model = ? AND end_time IS NULL", project, model).
		Order("id DESC").
		First(&rec).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: no open recording for %s/%s", errors.ErrRecordingNotFound, project, model),
				"RecordingStore", "FindOpen", "locate open recording")
		}
		return nil, errors.Wrap(err, "RecordingStore", "FindOpen", "locate open recording")
	}
	return &rec, nil
}

// Append persists one frame to an open recording. The frame_index must
// exceed every previously appended index; duplicates and regressions
// are rejected with DuplicateFrame. Appends to a closed recording fail
// with RecordingClosed.
func (s *Store) Append(recordingID uint, f *frame.Frame, recvTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.lastIndex[recordingID]
	if !ok {
		rec, err := s.Get(recordingID)
		if err != nil {
			return err
		}
		if !rec.Open() {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %s", errors.ErrRecordingClosed, rec.Filename),
				"RecordingStore", "Append", "check recording state")
		}
		last = s.loadLastIndex(recordingID)
		s.lastIndex[recordingID] = last
	}
	if last == closedSentinel {
		return errors.WrapInvalid(
			fmt.Errorf("%w: id %d", errors.ErrRecordingClosed, recordingID),
			"RecordingStore", "Append", "check recording state")
	}

	if int64(f.FrameIndex) <= last {
		return errors.WrapInvalid(
			fmt.Errorf("%w: frame_index %d, last %d", errors.ErrDuplicateFrame, f.FrameIndex, last),
			"RecordingStore", "Append", "check frame order")
	}

	record := FrameRecord{
		RecordingID: recordingID,
		Topic:       f.Topic,
		FrameIndex:  f.FrameIndex,
		RecvTime:    recvTime.UTC(),
		Payload:     f.Encode(),
	}
	if err := s.db.Create(&record).Error; err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrPersistUnavailable, err),
			"RecordingStore", "Append", "insert frame")
	}

	s.lastIndex[recordingID] = int64(f.FrameIndex)
	return nil
}

// closedSentinel marks a recording as closed in the lastIndex map so
// appends racing with End fail fast.
const closedSentinel = int64(-2)

func (s *Store) loadLastIndex(recordingID uint) int64 {
	var maxIndex *int64
	s.db.Model(&FrameRecord{}).
		Where("recording_id = ?", recordingID).
		Select("MAX(frame_index)").
		Scan(&maxIndex)
	if maxIndex == nil {
		return -1
	}
	return *maxIndex
}

// End closes a recording, stamping its end time. Idempotent: ending a
// closed recording is a no-op.
func (s *Store) End(recordingID uint) error {
	rec, err := s.Get(recordingID)
	if err != nil {
		return err
	}
	if !rec.Open() {
		return nil
	}

	now := time.Now().UTC()
	if err := s.db.Model(rec).Update("end_time", now).Error; err != nil {
		return errors.Wrap(err, "RecordingStore", "End", "stamp end time")
	}

	s.mu.Lock()
	s.lastIndex[recordingID] = closedSentinel
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.OpenRecordings.Dec()
	}
	return nil
}

// MarkGapped flags a recording as having lost at least one frame to
// writer-queue overflow.
func (s *Store) MarkGapped(recordingID uint) error {
	if err := s.db.Model(&Recording{}).
		Where("id = ?", recordingID).
		Update("gapped", true).Error; err != nil {
		return errors.Wrap(err, "RecordingStore", "MarkGapped", "flag recording")
	}
	return nil
}

// QueryOptions narrows a frame query. Nil ranges mean unbounded.
type QueryOptions struct {
	FrameStart *uint32
	FrameStop  *uint32 // inclusive
	TimeStart  *time.Time
	TimeStop   *time.Time // inclusive
}

// Query returns a recording's frames in frame_index order, decoded
// from their stored payloads.
func (s *Store) Query(recordingID uint, opts QueryOptions) ([]*frame.Frame, error) {
	records, err := s.queryRecords(recordingID, opts)
	if err != nil {
		return nil, err
	}

	frames := make([]*frame.Frame, 0, len(records))
	for _, r := range records {
		f, err := frame.Decode(r.Payload)
		if err != nil {
			return nil, errors.Wrap(err, "RecordingStore", "Query", "decode stored frame")
		}
		f.Topic = r.Topic
		f.CreatedAt = r.RecvTime
		frames = append(frames, f)
	}
	return frames, nil
}

// QueryRecords returns the raw stored records in frame_index order,
// for callers that work on encoded payloads directly.
func (s *Store) QueryRecords(recordingID uint, opts QueryOptions) ([]FrameRecord, error) {
	return s.queryRecords(recordingID, opts)
}

func (s *Store) queryRecords(recordingID uint, opts QueryOptions) ([]FrameRecord, error) {
	q := s.db.Where("recording_id = ?", recordingID)
	if opts.FrameStart != nil {
		q = q.Where("frame_index >= ?", *opts.FrameStart)
	}
	if opts.FrameStop != nil {
		q = q.Where("frame_index <= ?", *opts.FrameStop)
	}
	if opts.TimeStart != nil {
		q = q.Where("recv_time >= ?", opts.TimeStart.UTC())
	}
	if opts.TimeStop != nil {
		q = q.Where("recv_time <= ?", opts.TimeStop.UTC())
	}

	var records []FrameRecord
	if err := q.Order("frame_index").Find(&records).Error; err != nil {
		return nil, errors.Wrap(err, "RecordingStore", "Query", "load frames")
	}
	return records, nil
}

// DistinctFilenames lists a model's recording sessions sorted by
// numeric suffix ascending.
func (s *Store) DistinctFilenames(project, model string) ([]string, error) {
	var names []string
	err := s.db.Model(&Recording{}).
		Where("project = ? AND model = ?", project, model).
		Pluck("filename", &names).Error
	if err != nil {
		return nil, errors.Wrap(err, "RecordingStore", "DistinctFilenames", "load filenames")
	}

	sort.Slice(names, func(i, j int) bool {
		ni, iok := parseFilename(names[i])
		nj, jok := parseFilename(names[j])
		if iok && jok {
			return ni < nj
		}
		if iok != jok {
			return iok // parseable names first
		}
		return names[i] < names[j]
	})
	return names, nil
}

// OpenRecordings lists every recording still accepting appends.
func (s *Store) OpenRecordings() ([]Recording, error) {
	var recs []Recording
	if err := s.db.Where("end_time IS NULL").Order("id").Find(&recs).Error; err != nil {
		return nil, errors.Wrap(err, "RecordingStore", "OpenRecordings", "load recordings")
	}
	return recs, nil
}
