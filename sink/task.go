package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/CefBoud/monsink/format"
	log "github.com/CefBoud/monsink/logging"
	"github.com/CefBoud/monsink/types"
	"github.com/CefBoud/monsink/utils"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// ErrNotAssigned is returned by Put for records of a partition the task does not own.
var ErrNotAssigned = errors.New("partition not assigned to task")

// TaskConfig configures a Task and the writers it creates.
type TaskConfig struct {
	Writer        WriterConfig
	FlushInterval time.Duration
}

// NewTaskConfig maps the loaded configuration onto a TaskConfig.
func NewTaskConfig(conf types.Configuration, clock utils.Clock) TaskConfig {
	return TaskConfig{
		Writer: WriterConfig{
			RootDir:        conf.RootDir,
			FlushSize:      conf.FlushSize,
			RotateInterval: time.Duration(conf.RotateIntervalMs) * time.Millisecond,
			RotateOnIdle:   conf.RotateOnIdle,
			Clock:          clock,
		},
		FlushInterval: time.Duration(conf.FlushIntervalMs) * time.Millisecond,
	}
}

// CommitFunc receives the committed offsets after a flush.
type CommitFunc func(offsets map[types.TopicPartition]int64) error

// Task owns the partition writers of one sink instance. They share a single
// offset guard and record writer provider.
type Task struct {
	cfg      TaskConfig
	provider format.Provider
	guard    OffsetGuard
	writers  map[types.TopicPartition]*PartitionWriter
	closed   bool
	sync.RWMutex
}

// NewTask validates cfg and returns a task with no assigned partitions.
func NewTask(provider format.Provider, guard OffsetGuard, cfg TaskConfig) (*Task, error) {
	if cfg.FlushInterval <= 0 {
		return nil, fmt.Errorf("%w: flush interval must be positive, got %v", ErrInvalidConfig, cfg.FlushInterval)
	}
	// surface bad writer thresholds before the first assignment
	if _, err := NewPartitionWriter(types.TopicPartition{}, provider, guard, cfg.Writer); err != nil {
		return nil, err
	}
	return &Task{
		cfg:      cfg,
		provider: provider,
		guard:    guard,
		writers:  make(map[types.TopicPartition]*PartitionWriter),
	}, nil
}

// Open creates writers for newly assigned partitions. Partitions already open are left untouched.
func (t *Task) Open(partitions []types.TopicPartition) error {
	t.Lock()
	defer t.Unlock()
	if t.closed {
		return ErrClosed
	}
	for _, tp := range partitions {
		if _, ok := t.writers[tp]; ok {
			continue
		}
		w, err := NewPartitionWriter(tp, t.provider, t.guard, t.cfg.Writer)
		if err != nil {
			return err
		}
		t.writers[tp] = w
		log.Info("opened partition writer for %v", tp)
	}
	return nil
}

// Assigned returns the partitions the task currently owns, sorted.
func (t *Task) Assigned() []types.TopicPartition {
	t.RLock()
	defer t.RUnlock()
	partitions := make([]types.TopicPartition, 0, len(t.writers))
	for tp := range t.writers {
		partitions = append(partitions, tp)
	}
	sort.Slice(partitions, func(i, j int) bool {
		if partitions[i].Topic != partitions[j].Topic {
			return partitions[i].Topic < partitions[j].Topic
		}
		return partitions[i].Partition < partitions[j].Partition
	})
	return partitions
}

// Writer returns the writer of tp, if assigned.
func (t *Task) Writer(tp types.TopicPartition) (*PartitionWriter, bool) {
	t.RLock()
	defer t.RUnlock()
	w, ok := t.writers[tp]
	return w, ok
}

// Put routes records to the buffers of their partition writers.
func (t *Task) Put(records []types.Record) error {
	t.RLock()
	defer t.RUnlock()
	for _, r := range records {
		w, ok := t.writers[r.TopicPartition()]
		if !ok {
			return fmt.Errorf("%w: %v", ErrNotAssigned, r.TopicPartition())
		}
		if err := w.Buffer(r); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes the buffers of all writers concurrently and returns the committed
// offset of every writer that has one. Offsets are returned even when some writer failed:
// a failed writer keeps its unwritten records buffered and its committed offset unchanged,
// so the next Flush retries them in order.
func (t *Task) Flush() (map[types.TopicPartition]int64, error) {
	t.RLock()
	defer t.RUnlock()
	var g errgroup.Group
	for tp, w := range t.writers {
		tp, w := tp, w
		g.Go(func() error {
			if err := w.Write(); err != nil {
				return fmt.Errorf("flush %v: %w", tp, err)
			}
			return nil
		})
	}
	err := g.Wait()
	return t.offsetsLocked(), err
}

// Offsets returns the committed offsets without writing anything.
func (t *Task) Offsets() map[types.TopicPartition]int64 {
	t.RLock()
	defer t.RUnlock()
	return t.offsetsLocked()
}

func (t *Task) offsetsLocked() map[types.TopicPartition]int64 {
	offsets := make(map[types.TopicPartition]int64)
	for tp, w := range t.writers {
		if offset, ok := w.CommittedOffset(); ok {
			offsets[tp] = offset
		}
	}
	return offsets
}

// Revoke closes the writers of the given partitions, finalizing their open segments,
// and returns their final committed offsets. Writers that fail to close stay assigned.
func (t *Task) Revoke(partitions []types.TopicPartition) (map[types.TopicPartition]int64, error) {
	t.Lock()
	defer t.Unlock()
	var result *multierror.Error
	offsets := make(map[types.TopicPartition]int64)
	for _, tp := range partitions {
		w, ok := t.writers[tp]
		if !ok {
			continue
		}
		if err := w.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %v: %w", tp, err))
			continue
		}
		if offset, ok := w.CommittedOffset(); ok {
			offsets[tp] = offset
		}
		delete(t.writers, tp)
		log.Info("closed partition writer for %v", tp)
	}
	return offsets, result.ErrorOrNil()
}

// Run flushes on every FlushInterval tick and hands the offsets to commit, until ctx is done.
// Flush errors are logged, the records involved stay buffered for the next tick.
func (t *Task) Run(ctx context.Context, commit CommitFunc) error {
	ticker := time.NewTicker(t.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			offsets, err := t.Flush()
			if err != nil {
				log.Error("error while flushing partition writers: %v", err)
			}
			if commit != nil && len(offsets) > 0 {
				if err := commit(offsets); err != nil {
					log.Error("error while committing offsets: %v", err)
				}
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Close closes every writer and then the guard, if it holds resources.
func (t *Task) Close() error {
	t.Lock()
	defer t.Unlock()
	if t.closed {
		return nil
	}
	log.Info("sink task shutdown...")
	var result *multierror.Error
	for tp, w := range t.writers {
		if err := w.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %v: %w", tp, err))
			continue
		}
		delete(t.writers, tp)
	}
	if c, ok := t.guard.(io.Closer); ok && result.ErrorOrNil() == nil {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close offset guard: %w", err))
		}
	}
	if result.ErrorOrNil() == nil {
		t.closed = true
	}
	return result.ErrorOrNil()
}
