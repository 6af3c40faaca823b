// Package sink buffers records per topic partition and materializes them as
// size and time bounded segment files, reporting the offset that is safe to commit.
package sink

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/CefBoud/monsink/format"
	log "github.com/CefBoud/monsink/logging"
	"github.com/CefBoud/monsink/metrics"
	"github.com/CefBoud/monsink/storage"
	"github.com/CefBoud/monsink/types"
	"github.com/CefBoud/monsink/utils"
)

var (
	// ErrClosed is returned by Buffer and Write once the writer is closed.
	ErrClosed = errors.New("partition writer closed")
	// ErrInvalidConfig is returned when a writer is constructed with bad thresholds.
	ErrInvalidConfig = errors.New("invalid partition writer config")
)

// OffsetGuard decides whether an offset was already written to a destination.
type OffsetGuard interface {
	Predicate(key string, offset int64) bool
	Update(key string, offset int64)
}

// guards that persist their marks implement syncer; it is called after each finalized segment.
type syncer interface {
	Sync() error
}

// State of a PartitionWriter.
type State int

// writer states
const (
	StateIdle State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

// WriterConfig holds the rotation thresholds of a PartitionWriter.
type WriterConfig struct {
	RootDir        string
	FlushSize      int
	RotateInterval time.Duration
	// RotateOnIdle lets Write finalize an expired segment even when nothing is buffered.
	RotateOnIdle bool
	Clock        utils.Clock
	// OnRotate, if set, is called after each finalized segment with the new committed offset.
	OnRotate func(segment types.SegmentInfo, committed int64)
}

// PartitionWriter owns the pending buffer and the open segment of one topic partition.
// Calls are serialized by the embedded mutex.
type PartitionWriter struct {
	tp       types.TopicPartition
	cfg      WriterConfig
	provider format.Provider
	guard    OffsetGuard
	clock    utils.Clock

	pending []types.Record
	state   State

	writer       format.RecordWriter
	segmentPath  string
	segmentStart int64
	openedAt     time.Time
	recordCount  int
	lastWritten  int64
	// records of the open segment, kept until it is finalized so it can be rewritten
	segment      []types.Record
	// the open segment's handle was dropped after a failure and must be rewritten
	broken       bool
	// last destination that rejected a redelivered record while idle
	replayPath   string

	committed    int64
	hasCommitted bool
	sync.Mutex
}

// NewPartitionWriter validates cfg and returns an idle writer.
func NewPartitionWriter(tp types.TopicPartition, provider format.Provider, guard OffsetGuard, cfg WriterConfig) (*PartitionWriter, error) {
	switch {
	case cfg.FlushSize <= 0:
		return nil, fmt.Errorf("%w: flush size must be positive, got %d", ErrInvalidConfig, cfg.FlushSize)
	case cfg.RotateInterval <= 0:
		return nil, fmt.Errorf("%w: rotate interval must be positive, got %v", ErrInvalidConfig, cfg.RotateInterval)
	case cfg.RootDir == "":
		return nil, fmt.Errorf("%w: root dir is required", ErrInvalidConfig)
	case provider == nil || guard == nil:
		return nil, fmt.Errorf("%w: record writer provider and offset guard are required", ErrInvalidConfig)
	case tp.Partition < 0:
		return nil, fmt.Errorf("%w: negative partition %d", ErrInvalidConfig, tp.Partition)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = utils.SystemClock()
	}
	return &PartitionWriter{tp: tp, cfg: cfg, provider: provider, guard: guard, clock: clock}, nil
}

// TopicPartition returns the partition this writer is bound to.
func (w *PartitionWriter) TopicPartition() types.TopicPartition {
	return w.tp
}

// Buffer queues record for the next Write. It does no I/O.
func (w *PartitionWriter) Buffer(record types.Record) error {
	w.Lock()
	defer w.Unlock()
	if w.state == StateClosed {
		return ErrClosed
	}
	if record.Topic != w.tp.Topic || record.Partition != w.tp.Partition {
		return fmt.Errorf("record of %v buffered into writer of %v", record.TopicPartition(), w.tp)
	}
	if record.Offset < 0 {
		return fmt.Errorf("negative offset %d buffered into writer of %v", record.Offset, w.tp)
	}
	w.pending = append(w.pending, record)
	return nil
}

// Write drains the buffer into segments, rotating on size and time thresholds.
// On error every drained record that was not written is put back in front of the
// buffer, and a segment whose handle failed is rewritten by the next Write or Close,
// so retrying Write never leaves a gap.
func (w *PartitionWriter) Write() error {
	w.Lock()
	defer w.Unlock()
	if w.state == StateClosed {
		return ErrClosed
	}
	if err := w.repair(); err != nil {
		return err
	}
	// a size rotation that failed earlier is finished before the segment takes more records
	if w.state == StateOpen && w.recordCount >= w.cfg.FlushSize {
		if err := w.rotate(metrics.TriggerSize); err != nil {
			return err
		}
	}
	records := w.pending
	w.pending = nil
	if len(records) == 0 {
		if w.cfg.RotateOnIdle && w.state == StateOpen && w.expired() {
			return w.rotate(metrics.TriggerTime)
		}
		return nil
	}

	start := time.Now()
	defer func() {
		metrics.WriteLatency.WithLabelValues(w.tp.Topic).Observe(float64(time.Since(start).Milliseconds()))
	}()

	skipped := 0
	defer func() {
		if skipped > 0 {
			metrics.RecordsSkipped.WithLabelValues(w.tp.Topic).Add(float64(skipped))
			log.Debug("%v: skipped %v already written records", w.tp, skipped)
		}
	}()
	for i, record := range records {
		// the time threshold is only crossed when there is a record to place afterwards
		if w.state == StateOpen && w.expired() {
			if err := w.rotate(metrics.TriggerTime); err != nil {
				w.requeue(records[i:])
				return err
			}
		}

		dest := w.segmentPath
		if w.state != StateOpen {
			dest = w.idleDestination(record.Offset)
		}
		if !w.guard.Predicate(dest, record.Offset) {
			skipped++
			if w.state != StateOpen {
				w.replayPath = dest
			}
			continue
		}

		if w.state != StateOpen {
			if err := w.open(dest, record.Offset); err != nil {
				w.requeue(records[i:])
				return err
			}
		}
		if err := w.writer.Write(record.Row); err != nil {
			metrics.WriteErrors.WithLabelValues("append").Inc()
			w.abandon()
			w.requeue(records[i:])
			return fmt.Errorf("append offset %d to %v: %w", record.Offset, w.segmentPath, err)
		}
		w.segment = append(w.segment, record)
		w.recordCount++
		w.lastWritten = record.Offset
		w.guard.Update(dest, record.Offset)
		metrics.RecordsWritten.WithLabelValues(w.tp.Topic).Inc()

		if w.recordCount >= w.cfg.FlushSize {
			if err := w.rotate(metrics.TriggerSize); err != nil {
				w.requeue(records[i+1:])
				return err
			}
		}
	}
	return nil
}

// requeue puts records back in front of anything buffered since they were drained.
func (w *PartitionWriter) requeue(records []types.Record) {
	if len(records) == 0 {
		return
	}
	w.pending = append(slices.Clone(records), w.pending...)
}

// abandon drops the open segment's handle after a failed append or finalize.
// The segment stays open with its counters; repair writes it again from the kept records.
func (w *PartitionWriter) abandon() {
	w.writer.Abort()
	w.writer = nil
	w.broken = true
	log.Warn("%v: dropped handle of segment %v after a failure, %v records will be rewritten", w.tp, w.segmentPath, len(w.segment))
}

// repair recreates a broken segment from its kept records. The guard is not
// consulted, the records were accepted into this segment already.
func (w *PartitionWriter) repair() error {
	if !w.broken {
		return nil
	}
	writer, err := w.provider.NewWriter(w.segmentPath)
	if err != nil {
		metrics.WriteErrors.WithLabelValues("open").Inc()
		return fmt.Errorf("reopen segment %v: %w", w.segmentPath, err)
	}
	for _, record := range w.segment {
		if err := writer.Write(record.Row); err != nil {
			writer.Abort()
			metrics.WriteErrors.WithLabelValues("append").Inc()
			return fmt.Errorf("rewrite offset %d to %v: %w", record.Offset, w.segmentPath, err)
		}
	}
	w.writer = writer
	w.broken = false
	log.Info("%v: rewrote segment %v with %v records", w.tp, w.segmentPath, len(w.segment))
	return nil
}

// idleDestination picks the segment for a record when none is open. While redelivered
// records are being skipped, the segment that rejected the previous one is tried first
// so a replayed segment is recognized past its start offset.
func (w *PartitionWriter) idleDestination(offset int64) string {
	if w.replayPath != "" && !w.guard.Predicate(w.replayPath, offset) {
		return w.replayPath
	}
	return storage.SegmentPath(w.cfg.RootDir, w.tp.Topic, w.tp.Partition, offset, w.provider.Extension())
}

func (w *PartitionWriter) expired() bool {
	return w.clock.Now().Sub(w.openedAt) >= w.cfg.RotateInterval
}

func (w *PartitionWriter) open(path string, startOffset int64) error {
	writer, err := w.provider.NewWriter(path)
	if err != nil {
		metrics.WriteErrors.WithLabelValues("open").Inc()
		return fmt.Errorf("open segment %v: %w", path, err)
	}
	w.writer = writer
	w.segmentPath = path
	w.segmentStart = startOffset
	w.openedAt = w.clock.Now()
	w.recordCount = 0
	w.segment = w.segment[:0]
	w.replayPath = ""
	w.state = StateOpen
	log.Debug("%v: opened segment %v", w.tp, path)
	return nil
}

// rotate finalizes the open segment. If finalizing fails the segment stays open
// and its handle is dropped, so the next attempt starts from a rewritten file.
func (w *PartitionWriter) rotate(trigger string) error {
	if err := w.repair(); err != nil {
		return err
	}
	if err := w.writer.Close(); err != nil {
		metrics.WriteErrors.WithLabelValues("finalize").Inc()
		w.abandon()
		return fmt.Errorf("finalize segment %v: %w", w.segmentPath, err)
	}
	segment := types.SegmentInfo{
		Path:        w.segmentPath,
		Topic:       w.tp.Topic,
		Partition:   w.tp.Partition,
		StartOffset: w.segmentStart,
		Extension:   w.provider.Extension(),
	}
	count := w.recordCount
	w.writer = nil
	w.segmentPath = ""
	w.recordCount = 0
	w.segment = w.segment[:0]
	w.state = StateIdle

	if count == 0 {
		// nothing was confirmed in this segment, the committed offset stays where it is
		return nil
	}
	if next := w.lastWritten + 1; !w.hasCommitted || next > w.committed {
		w.committed = next
		w.hasCommitted = true
	}
	metrics.SegmentsRotated.WithLabelValues(w.tp.Topic, trigger).Inc()
	metrics.CommittedOffset.WithLabelValues(w.tp.Topic, strconv.Itoa(int(w.tp.Partition))).Set(float64(w.committed))
	log.Info("%v: finalized segment %v with %v records on %v, committed offset %v", w.tp, segment.Path, count, trigger, w.committed)

	if s, ok := w.guard.(syncer); ok {
		if err := s.Sync(); err != nil {
			metrics.WriteErrors.WithLabelValues("guard_sync").Inc()
			return fmt.Errorf("sync offset guard after %v: %w", segment.Path, err)
		}
	}
	if w.cfg.OnRotate != nil {
		w.cfg.OnRotate(segment, w.committed)
	}
	return nil
}

// RecordCount returns the number of records in the open segment, 0 if none is open.
func (w *PartitionWriter) RecordCount() int {
	w.Lock()
	defer w.Unlock()
	return w.recordCount
}

// CommittedOffset returns the next offset to consume after the last finalized
// segment. ok is false until a segment has been finalized.
func (w *PartitionWriter) CommittedOffset() (offset int64, ok bool) {
	w.Lock()
	defer w.Unlock()
	return w.committed, w.hasCommitted
}

// State returns the current writer state.
func (w *PartitionWriter) State() State {
	w.Lock()
	defer w.Unlock()
	return w.state
}

// Pending returns the number of buffered records awaiting Write.
func (w *PartitionWriter) Pending() int {
	w.Lock()
	defer w.Unlock()
	return len(w.pending)
}

// Close finalizes the open segment regardless of thresholds and closes the writer.
// Records still buffered are dropped. If finalizing fails the writer stays usable
// and a retried Close rewrites the segment before finalizing it again.
func (w *PartitionWriter) Close() error {
	w.Lock()
	defer w.Unlock()
	if w.state == StateClosed {
		return nil
	}
	if w.state == StateOpen {
		if err := w.rotate(metrics.TriggerClose); err != nil {
			return err
		}
	}
	if len(w.pending) > 0 {
		log.Warn("%v: dropping %v buffered records on close", w.tp, len(w.pending))
		w.pending = nil
	}
	w.state = StateClosed
	log.Debug("%v: partition writer closed", w.tp)
	return nil
}
