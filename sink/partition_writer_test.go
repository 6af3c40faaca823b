package sink

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/CefBoud/monsink/compress"
	"github.com/CefBoud/monsink/format"
	"github.com/CefBoud/monsink/guard"
	"github.com/CefBoud/monsink/storage"
	"github.com/CefBoud/monsink/types"
	"github.com/CefBoud/monsink/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPartition = types.TopicPartition{Topic: "test-topic", Partition: 12}

type fixture struct {
	root    string
	storage storage.Storage
	guard   *guard.OffsetGuard
	clock   *utils.ManualClock
	writer  *PartitionWriter
}

func newFixture(t *testing.T, flushSize int, rotateInterval time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		root:    t.TempDir(),
		storage: storage.NewLocalStorage(),
		guard:   guard.New(),
		clock:   utils.NewManualClock(time.Unix(1_700_000_000, 0)),
	}
	f.writer = f.newWriter(t, flushSize, rotateInterval)
	return f
}

func (f *fixture) newWriter(t *testing.T, flushSize int, rotateInterval time.Duration) *PartitionWriter {
	t.Helper()
	w, err := NewPartitionWriter(testPartition, format.NewCSVProvider(f.storage), f.guard, WriterConfig{
		RootDir:        f.root,
		FlushSize:      flushSize,
		RotateInterval: rotateInterval,
		Clock:          f.clock,
	})
	require.NoError(t, err)
	return w
}

func createRecords(n int, start int64) []types.Record {
	records := make([]types.Record, n)
	for i := range records {
		offset := start + int64(i)
		records[i] = types.Record{
			Topic:     testPartition.Topic,
			Partition: testPartition.Partition,
			Offset:    offset,
			Row:       types.Row{offset, fmt.Sprintf("value-%d", offset)},
		}
	}
	return records
}

func bufferAll(t *testing.T, w *PartitionWriter, records []types.Record) {
	t.Helper()
	for _, r := range records {
		require.NoError(t, w.Buffer(r))
	}
}

func (f *fixture) segmentNames(t *testing.T) []string {
	t.Helper()
	segments, err := storage.ListPartitionSegments(f.storage, f.root, testPartition.Topic, testPartition.Partition)
	require.NoError(t, err)
	var names []string
	for _, s := range segments {
		names = append(names, filepath.Base(s.Path))
	}
	return names
}

func (f *fixture) segmentOffsets(t *testing.T, startOffset int64) []string {
	t.Helper()
	path := storage.SegmentPath(f.root, testPartition.Topic, testPartition.Partition, startOffset, storage.DefaultExtension)
	data, err := format.ReadSegment(f.storage, path, compress.NONE)
	require.NoError(t, err)
	var offsets []string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		offset, _, _ := strings.Cut(line, ",")
		offsets = append(offsets, offset)
	}
	return offsets
}

func TestWrite(t *testing.T) {
	f := newFixture(t, 10, time.Hour)

	bufferAll(t, f.writer, createRecords(7, 0))
	assert.Equal(t, 7, f.writer.Pending())
	require.NoError(t, f.writer.Write())
	assert.Equal(t, 0, f.writer.Pending())
	assert.Equal(t, 7, f.writer.RecordCount())
	assert.Equal(t, StateOpen, f.writer.State())

	bufferAll(t, f.writer, createRecords(2, 7))
	require.NoError(t, f.writer.Write())
	assert.Equal(t, 9, f.writer.RecordCount())
	_, ok := f.writer.CommittedOffset()
	assert.False(t, ok)
}

func TestWriteOnSizeRotate(t *testing.T) {
	f := newFixture(t, 3, time.Hour)

	bufferAll(t, f.writer, createRecords(7, 0))
	require.NoError(t, f.writer.Write())

	assert.Equal(t, 1, f.writer.RecordCount())
	committed, ok := f.writer.CommittedOffset()
	require.True(t, ok)
	assert.Equal(t, int64(6), committed)

	require.NoError(t, f.writer.Close())
	assert.Equal(t, []string{"0", "1", "2"}, f.segmentOffsets(t, 0))
	assert.Equal(t, []string{"3", "4", "5"}, f.segmentOffsets(t, 3))
	assert.Equal(t, []string{"6"}, f.segmentOffsets(t, 6))
}

func TestSizeRotateSegmentCount(t *testing.T) {
	for _, tc := range []struct{ flushSize, n int }{{3, 9}, {4, 10}, {1, 3}, {5, 6}} {
		t.Run(fmt.Sprintf("F=%d,N=%d", tc.flushSize, tc.n), func(t *testing.T) {
			f := newFixture(t, tc.flushSize, time.Hour)
			bufferAll(t, f.writer, createRecords(tc.n, 0))
			require.NoError(t, f.writer.Write())

			last := tc.n % tc.flushSize
			if last == 0 {
				// the threshold was reached on the last record, so it is finalized too
				assert.Equal(t, 0, f.writer.RecordCount())
				committed, ok := f.writer.CommittedOffset()
				require.True(t, ok)
				assert.Equal(t, int64(tc.n), committed)
			} else {
				assert.Equal(t, last, f.writer.RecordCount())
				committed, ok := f.writer.CommittedOffset()
				require.True(t, ok)
				assert.Equal(t, int64(tc.n-last), committed)
			}
			require.NoError(t, f.writer.Close())
			segments := (tc.n + tc.flushSize - 1) / tc.flushSize
			assert.Len(t, f.segmentNames(t), segments)
		})
	}
}

func TestWriteOnTimeRotate(t *testing.T) {
	f := newFixture(t, 99999, 3000*time.Millisecond)

	bufferAll(t, f.writer, createRecords(7, 0))
	require.NoError(t, f.writer.Write())
	assert.Equal(t, 7, f.writer.RecordCount())
	_, ok := f.writer.CommittedOffset()
	assert.False(t, ok)

	f.clock.Advance(5 * time.Second)

	bufferAll(t, f.writer, createRecords(5, 7))
	require.NoError(t, f.writer.Write())
	assert.Equal(t, 5, f.writer.RecordCount())
	committed, ok := f.writer.CommittedOffset()
	require.True(t, ok)
	assert.Equal(t, int64(7), committed)
}

func TestTimeRotateNotBeforeInterval(t *testing.T) {
	f := newFixture(t, 99999, 3*time.Second)
	bufferAll(t, f.writer, createRecords(2, 0))
	require.NoError(t, f.writer.Write())
	f.clock.Advance(2999 * time.Millisecond)
	bufferAll(t, f.writer, createRecords(2, 2))
	require.NoError(t, f.writer.Write())
	assert.Equal(t, 4, f.writer.RecordCount())
	_, ok := f.writer.CommittedOffset()
	assert.False(t, ok)
}

func TestIdleSegmentDoesNotRotateByDefault(t *testing.T) {
	f := newFixture(t, 99999, time.Second)
	bufferAll(t, f.writer, createRecords(3, 0))
	require.NoError(t, f.writer.Write())
	f.clock.Advance(time.Minute)

	require.NoError(t, f.writer.Write())
	assert.Equal(t, 3, f.writer.RecordCount())
	assert.Equal(t, StateOpen, f.writer.State())
	_, ok := f.writer.CommittedOffset()
	assert.False(t, ok)
}

func TestRotateOnIdle(t *testing.T) {
	f := newFixture(t, 99999, time.Second)
	w, err := NewPartitionWriter(testPartition, format.NewCSVProvider(f.storage), f.guard, WriterConfig{
		RootDir:        f.root,
		FlushSize:      99999,
		RotateInterval: time.Second,
		RotateOnIdle:   true,
		Clock:          f.clock,
	})
	require.NoError(t, err)
	bufferAll(t, w, createRecords(3, 0))
	require.NoError(t, w.Write())

	require.NoError(t, w.Write())
	assert.Equal(t, StateOpen, w.State())

	f.clock.Advance(time.Second)
	require.NoError(t, w.Write())
	assert.Equal(t, StateIdle, w.State())
	assert.Equal(t, 0, w.RecordCount())
	committed, ok := w.CommittedOffset()
	require.True(t, ok)
	assert.Equal(t, int64(3), committed)
}

func TestCommitFilename(t *testing.T) {
	f := newFixture(t, 3, time.Hour)
	bufferAll(t, f.writer, createRecords(7, 0))
	require.NoError(t, f.writer.Write())
	require.NoError(t, f.writer.Close())

	assert.Equal(t, []string{
		"test-topic-12-000000000.csv",
		"test-topic-12-000000003.csv",
		"test-topic-12-000000006.csv",
	}, f.segmentNames(t))
}

func TestEmptyWriteIsNoop(t *testing.T) {
	f := newFixture(t, 3, time.Second)
	require.NoError(t, f.writer.Write())
	f.clock.Advance(time.Hour)
	require.NoError(t, f.writer.Write())

	assert.Equal(t, StateIdle, f.writer.State())
	assert.Equal(t, 0, f.writer.RecordCount())
	_, ok := f.writer.CommittedOffset()
	assert.False(t, ok)
	exists, err := f.storage.Exists(f.root + "/test-topic")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestOrderingWithinSegment(t *testing.T) {
	f := newFixture(t, 100, time.Hour)
	records := createRecords(20, 100)
	for i := 0; i < len(records); i += 5 {
		bufferAll(t, f.writer, records[i:i+5])
		require.NoError(t, f.writer.Write())
	}
	require.NoError(t, f.writer.Close())

	var want []string
	for i := 100; i < 120; i++ {
		want = append(want, fmt.Sprint(i))
	}
	assert.Equal(t, want, f.segmentOffsets(t, 100))
}

func TestDuplicatesAreSkipped(t *testing.T) {
	f := newFixture(t, 10, time.Hour)
	bufferAll(t, f.writer, createRecords(5, 0))
	require.NoError(t, f.writer.Write())

	// redelivery of 3 and 4 followed by new records
	bufferAll(t, f.writer, createRecords(4, 3))
	require.NoError(t, f.writer.Write())
	assert.Equal(t, 7, f.writer.RecordCount())

	require.NoError(t, f.writer.Close())
	assert.Equal(t, []string{"0", "1", "2", "3", "4", "5", "6"}, f.segmentOffsets(t, 0))
}

func TestIdempotentRestart(t *testing.T) {
	root := t.TempDir()
	guardFile := filepath.Join(root, "guard", "offsets.db")
	st := storage.NewLocalStorage()

	openWriter := func() (*PartitionWriter, *guard.OffsetGuard) {
		store, err := guard.NewBoltStore(guardFile)
		require.NoError(t, err)
		g, err := guard.Open(store)
		require.NoError(t, err)
		w, err := NewPartitionWriter(testPartition, format.NewCSVProvider(st), g, WriterConfig{
			RootDir:        filepath.Join(root, "topics"),
			FlushSize:      3,
			RotateInterval: time.Hour,
		})
		require.NoError(t, err)
		return w, g
	}

	w, g := openWriter()
	bufferAll(t, w, createRecords(7, 0))
	require.NoError(t, w.Write())
	require.NoError(t, w.Close())
	require.NoError(t, g.Close())

	w, g = openWriter()
	defer g.Close()
	bufferAll(t, w, createRecords(7, 0))
	require.NoError(t, w.Write())
	assert.Equal(t, 0, w.RecordCount())
	assert.Equal(t, StateIdle, w.State())
	_, ok := w.CommittedOffset()
	assert.False(t, ok)

	segments, err := storage.ListPartitionSegments(st, filepath.Join(root, "topics"), testPartition.Topic, testPartition.Partition)
	require.NoError(t, err)
	require.Len(t, segments, 3)
	data, err := format.ReadSegment(st, segments[0].Path, compress.NONE)
	require.NoError(t, err)
	assert.Equal(t, "0,value-0\n1,value-1\n2,value-2\n", string(data))

	// new offsets after the replay go to a fresh segment
	bufferAll(t, w, createRecords(2, 7))
	require.NoError(t, w.Write())
	assert.Equal(t, 2, w.RecordCount())
	require.NoError(t, w.Close())
	segments, err = storage.ListPartitionSegments(st, filepath.Join(root, "topics"), testPartition.Topic, testPartition.Partition)
	require.NoError(t, err)
	assert.Len(t, segments, 4)
	assert.Equal(t, int64(7), segments[3].StartOffset)
}

func TestCommittedOffsetNeverRegresses(t *testing.T) {
	f := newFixture(t, 2, time.Hour)
	bufferAll(t, f.writer, createRecords(4, 10))
	require.NoError(t, f.writer.Write())
	committed, _ := f.writer.CommittedOffset()
	assert.Equal(t, int64(14), committed)

	// lower offsets than anything seen go to their own segment but cannot move the mark back
	bufferAll(t, f.writer, createRecords(2, 0))
	require.NoError(t, f.writer.Write())
	committed, _ = f.writer.CommittedOffset()
	assert.Equal(t, int64(14), committed)
}

func TestOnRotateHook(t *testing.T) {
	f := newFixture(t, 2, time.Hour)
	var got []types.SegmentInfo
	var offsets []int64
	w, err := NewPartitionWriter(testPartition, format.NewCSVProvider(f.storage), f.guard, WriterConfig{
		RootDir:        f.root,
		FlushSize:      2,
		RotateInterval: time.Hour,
		Clock:          f.clock,
		OnRotate: func(s types.SegmentInfo, committed int64) {
			got = append(got, s)
			offsets = append(offsets, committed)
		},
	})
	require.NoError(t, err)
	bufferAll(t, w, createRecords(5, 0))
	require.NoError(t, w.Write())
	require.NoError(t, w.Close())

	require.Len(t, got, 3)
	assert.Equal(t, []int64{2, 4, 5}, offsets)
	assert.Equal(t, int64(4), got[2].StartOffset)
	assert.Equal(t, "test-topic-12-000000004.csv", filepath.Base(got[2].Path))
}

func TestClose(t *testing.T) {
	f := newFixture(t, 10, time.Hour)
	bufferAll(t, f.writer, createRecords(3, 0))
	require.NoError(t, f.writer.Write())
	require.NoError(t, f.writer.Buffer(createRecords(1, 3)[0]))

	require.NoError(t, f.writer.Close())
	assert.Equal(t, StateClosed, f.writer.State())
	assert.Equal(t, 0, f.writer.RecordCount())
	committed, ok := f.writer.CommittedOffset()
	require.True(t, ok)
	assert.Equal(t, int64(3), committed)
	assert.Equal(t, 0, f.writer.Pending())

	assert.ErrorIs(t, f.writer.Buffer(createRecords(1, 4)[0]), ErrClosed)
	assert.ErrorIs(t, f.writer.Write(), ErrClosed)
	assert.NoError(t, f.writer.Close())
}

func TestBufferRejectsOtherPartition(t *testing.T) {
	f := newFixture(t, 10, time.Hour)
	err := f.writer.Buffer(types.Record{Topic: testPartition.Topic, Partition: 1, Offset: 0})
	assert.Error(t, err)
	assert.Equal(t, 0, f.writer.Pending())
}

func TestInvalidConfig(t *testing.T) {
	provider := format.NewCSVProvider(storage.NewMemoryStorage())
	for _, cfg := range []WriterConfig{
		{RootDir: "/r", FlushSize: 0, RotateInterval: time.Second},
		{RootDir: "/r", FlushSize: -1, RotateInterval: time.Second},
		{RootDir: "/r", FlushSize: 1, RotateInterval: 0},
		{RootDir: "", FlushSize: 1, RotateInterval: time.Second},
	} {
		_, err := NewPartitionWriter(testPartition, provider, guard.New(), cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig, "%+v", cfg)
	}
	_, err := NewPartitionWriter(testPartition, nil, guard.New(), WriterConfig{RootDir: "/r", FlushSize: 1, RotateInterval: time.Second})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func newMemoryWriter(t *testing.T, st *storage.MemoryStorage, g OffsetGuard, flushSize int) *PartitionWriter {
	t.Helper()
	w, err := NewPartitionWriter(testPartition, format.NewCSVProvider(st), g, WriterConfig{
		RootDir:        "/sink",
		FlushSize:      flushSize,
		RotateInterval: time.Hour,
	})
	require.NoError(t, err)
	return w
}

func TestOpenFailureKeepsRecordsBuffered(t *testing.T) {
	st := storage.NewMemoryStorage()
	g := guard.New()
	w := newMemoryWriter(t, st, g, 3)
	boom := errors.New("no space left")
	st.SetFaults(storage.Faults{CreateErr: boom})

	bufferAll(t, w, createRecords(2, 0))
	assert.ErrorIs(t, w.Write(), boom)
	assert.Equal(t, StateIdle, w.State())
	assert.Equal(t, 0, w.RecordCount())
	assert.Equal(t, 2, w.Pending())
	assert.Equal(t, 0, g.Len())

	// records buffered after the failure queue up behind the retained ones
	bufferAll(t, w, createRecords(1, 2))
	st.SetFaults(storage.Faults{})
	require.NoError(t, w.Write())
	assert.Equal(t, 0, w.Pending())
	committed, ok := w.CommittedOffset()
	require.True(t, ok)
	assert.Equal(t, int64(3), committed)
	data, ok := st.Bytes(storage.SegmentPath("/sink", testPartition.Topic, testPartition.Partition, 0, storage.DefaultExtension))
	require.True(t, ok)
	assert.Equal(t, "0,value-0\n1,value-1\n2,value-2\n", string(data))
}

func TestFinalizeFailureKeepsSegmentOpen(t *testing.T) {
	st := storage.NewMemoryStorage()
	w := newMemoryWriter(t, st, guard.New(), 2)
	boom := errors.New("upload failed")

	bufferAll(t, w, createRecords(1, 0))
	require.NoError(t, w.Write())
	st.SetFaults(storage.Faults{CloseErr: boom})
	bufferAll(t, w, createRecords(1, 1))
	assert.ErrorIs(t, w.Write(), boom)

	assert.Equal(t, StateOpen, w.State())
	assert.Equal(t, 2, w.RecordCount())
	_, ok := w.CommittedOffset()
	assert.False(t, ok)
	assert.ErrorIs(t, w.Close(), boom)
	assert.Equal(t, StateOpen, w.State())

	st.SetFaults(storage.Faults{})
	require.NoError(t, w.Close())
	committed, ok := w.CommittedOffset()
	require.True(t, ok)
	assert.Equal(t, int64(2), committed)
	data, ok := st.Bytes(storage.SegmentPath("/sink", testPartition.Topic, testPartition.Partition, 0, storage.DefaultExtension))
	require.True(t, ok)
	assert.Equal(t, "0,value-0\n1,value-1\n", string(data))
}

func TestFailedFlushOnCloseIsRetryable(t *testing.T) {
	st := storage.NewMemoryStorage()
	w := newMemoryWriter(t, st, guard.New(), 10)
	bufferAll(t, w, createRecords(1, 0))
	require.NoError(t, w.Write())

	// the row is still buffered in the segment writer, so the flush itself fails
	boom := errors.New("transient")
	st.SetFaults(storage.Faults{WriteErr: boom})
	assert.ErrorIs(t, w.Close(), boom)
	assert.Equal(t, StateOpen, w.State())

	st.SetFaults(storage.Faults{})
	require.NoError(t, w.Close())
	assert.Equal(t, StateClosed, w.State())
	committed, ok := w.CommittedOffset()
	require.True(t, ok)
	assert.Equal(t, int64(1), committed)
	data, ok := st.Bytes(storage.SegmentPath("/sink", testPartition.Topic, testPartition.Partition, 0, storage.DefaultExtension))
	require.True(t, ok)
	assert.Equal(t, "0,value-0\n", string(data))
}

func TestFailedSizeRotationFinishesBeforeNextRecord(t *testing.T) {
	st := storage.NewMemoryStorage()
	w := newMemoryWriter(t, st, guard.New(), 2)
	st.SetFaults(storage.Faults{CloseErr: assert.AnError})
	bufferAll(t, w, createRecords(3, 0))
	assert.ErrorIs(t, w.Write(), assert.AnError)
	assert.Equal(t, 2, w.RecordCount())
	assert.Equal(t, 1, w.Pending())

	st.SetFaults(storage.Faults{})
	require.NoError(t, w.Write())
	assert.Equal(t, 1, w.RecordCount())
	committed, ok := w.CommittedOffset()
	require.True(t, ok)
	assert.Equal(t, int64(2), committed)
	require.NoError(t, w.Close())

	first, ok := st.Bytes(storage.SegmentPath("/sink", testPartition.Topic, testPartition.Partition, 0, storage.DefaultExtension))
	require.True(t, ok)
	assert.Equal(t, "0,value-0\n1,value-1\n", string(first))
	second, ok := st.Bytes(storage.SegmentPath("/sink", testPartition.Topic, testPartition.Partition, 2, storage.DefaultExtension))
	require.True(t, ok)
	assert.Equal(t, "2,value-2\n", string(second))
}

// flakyProvider fails row appends while failing is set.
type flakyProvider struct {
	format.Provider
	failing bool
}

func (p *flakyProvider) NewWriter(path string) (format.RecordWriter, error) {
	w, err := p.Provider.NewWriter(path)
	if err != nil {
		return nil, err
	}
	return &flakyWriter{RecordWriter: w, provider: p}, nil
}

type flakyWriter struct {
	format.RecordWriter
	provider *flakyProvider
}

func (w *flakyWriter) Write(row types.Row) error {
	if w.provider.failing {
		return assert.AnError
	}
	return w.RecordWriter.Write(row)
}

func TestAppendFailureRewritesSegment(t *testing.T) {
	st := storage.NewMemoryStorage()
	provider := &flakyProvider{Provider: format.NewCSVProvider(st)}
	w, err := NewPartitionWriter(testPartition, provider, guard.New(), WriterConfig{
		RootDir:        "/sink",
		FlushSize:      10,
		RotateInterval: time.Hour,
	})
	require.NoError(t, err)
	bufferAll(t, w, createRecords(3, 0))
	require.NoError(t, w.Write())

	provider.failing = true
	bufferAll(t, w, createRecords(3, 3))
	assert.ErrorIs(t, w.Write(), assert.AnError)
	assert.Equal(t, 3, w.RecordCount())
	assert.Equal(t, 3, w.Pending())
	assert.Equal(t, StateOpen, w.State())

	// still failing: the rewrite fails too and nothing moves
	assert.ErrorIs(t, w.Write(), assert.AnError)
	assert.Equal(t, 3, w.Pending())

	provider.failing = false
	require.NoError(t, w.Write())
	assert.Equal(t, 6, w.RecordCount())
	require.NoError(t, w.Close())
	data, ok := st.Bytes(storage.SegmentPath("/sink", testPartition.Topic, testPartition.Partition, 0, storage.DefaultExtension))
	require.True(t, ok)
	assert.Equal(t, "0,value-0\n1,value-1\n2,value-2\n3,value-3\n4,value-4\n5,value-5\n", string(data))
}

func TestNegativePartitionAndOffsetRejected(t *testing.T) {
	_, err := NewPartitionWriter(types.TopicPartition{Topic: "t", Partition: -1}, format.NewCSVProvider(storage.NewMemoryStorage()), guard.New(), WriterConfig{
		RootDir:        "/sink",
		FlushSize:      1,
		RotateInterval: time.Second,
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	w := newMemoryWriter(t, storage.NewMemoryStorage(), guard.New(), 1)
	record := createRecords(1, 0)[0]
	record.Offset = -5
	assert.Error(t, w.Buffer(record))
	assert.Equal(t, 0, w.Pending())
}

type failingSyncGuard struct {
	*guard.OffsetGuard
	err error
}

func (g failingSyncGuard) Sync() error { return g.err }

func TestGuardSyncFailureIsReported(t *testing.T) {
	boom := errors.New("bolt unavailable")
	w := newMemoryWriter(t, storage.NewMemoryStorage(), failingSyncGuard{OffsetGuard: guard.New(), err: boom}, 2)
	bufferAll(t, w, createRecords(2, 0))
	assert.ErrorIs(t, w.Write(), boom)
	// the segment itself was finalized
	assert.Equal(t, StateIdle, w.State())
	committed, ok := w.CommittedOffset()
	require.True(t, ok)
	assert.Equal(t, int64(2), committed)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "IDLE", StateIdle.String())
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "UNKNOWN", State(9).String())
}

func TestReplayAcrossWrites(t *testing.T) {
	f := newFixture(t, 3, time.Hour)
	bufferAll(t, f.writer, createRecords(7, 0))
	require.NoError(t, f.writer.Write())
	require.NoError(t, f.writer.Close())

	// a new owner of the partition sharing the guard sees the same offsets again in two batches
	w := f.newWriter(t, 3, time.Hour)
	bufferAll(t, w, createRecords(4, 0))
	require.NoError(t, w.Write())
	assert.Equal(t, StateIdle, w.State())
	bufferAll(t, w, createRecords(5, 4))
	require.NoError(t, w.Write())

	assert.Equal(t, 2, w.RecordCount())
	require.NoError(t, w.Close())
	assert.Equal(t, []string{
		"test-topic-12-000000000.csv",
		"test-topic-12-000000003.csv",
		"test-topic-12-000000006.csv",
		"test-topic-12-000000007.csv",
	}, f.segmentNames(t))
	assert.Equal(t, []string{"7", "8"}, f.segmentOffsets(t, 7))
	assert.Equal(t, []string{"6"}, f.segmentOffsets(t, 6))
}
