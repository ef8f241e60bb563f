package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func entryAt(i int, status Status) Entry {
	return Entry{
		Timestamp:         t0.Add(time.Duration(i) * time.Minute),
		Action:            ActionPush,
		Status:            status,
		RecordsDownloaded: i,
		RecordsUploaded:   i * 2,
		DurationMs:        int64(100 + i),
		Details:           "batch",
	}
}

func TestLedger_NewestFirst(t *testing.T) {
	l := New(10)
	for i := 1; i <= 3; i++ {
		l.Append(entryAt(i, StatusSuccess))
	}

	got := l.Snapshot()
	require.Len(t, got, 3)
	assert.Equal(t, int64(3), got[0].Seq)
	assert.Equal(t, int64(2), got[1].Seq)
	assert.Equal(t, int64(1), got[2].Seq)
	assert.Equal(t, 3, got[0].RecordsDownloaded)
}

func TestLedger_EvictsOldestWhenFull(t *testing.T) {
	const max = 100
	l := New(max)
	for i := 1; i <= max+1; i++ {
		l.Append(entryAt(i, StatusSuccess))
	}

	got := l.Snapshot()
	require.Len(t, got, max)
	assert.Equal(t, int64(max+1), got[0].Seq, "newest retained")
	assert.Equal(t, int64(2), got[max-1].Seq, "first entry evicted")
	assert.Equal(t, max, l.Len())
}

func TestLedger_DefaultMax(t *testing.T) {
	assert.Equal(t, DefaultMaxEntries, New(0).Max())
	assert.Equal(t, DefaultMaxEntries, New(-5).Max())
	assert.Equal(t, 7, New(7).Max())
}

func TestLedger_SnapshotIsCopy(t *testing.T) {
	l := New(5)
	l.Append(entryAt(1, StatusSuccess))

	snap := l.Snapshot()
	snap[0].Details = "mutated"

	assert.Equal(t, "batch", l.Snapshot()[0].Details)
}

func TestLedger_EmptySnapshotNotNil(t *testing.T) {
	l := New(5)
	got := l.Snapshot()
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestLedger_StoresMalformedEntriesAsIs(t *testing.T) {
	l := New(5)
	e := Entry{
		Timestamp:         t0,
		Action:            Action("teleport"),
		Status:            StatusFailed,
		RecordsDownloaded: -3,
		RecordsUploaded:   -1,
		DurationMs:        -10,
	}

	got := l.Append(e)

	assert.Equal(t, Action("teleport"), got.Action)
	assert.Equal(t, -3, got.RecordsDownloaded)
	assert.Equal(t, int64(-10), got.DurationMs)
	assert.Equal(t, 1, l.Len())
}

func TestLedger_ClearResetsEntriesButNotSeq(t *testing.T) {
	l := New(5)
	l.Append(entryAt(1, StatusSuccess))
	l.Append(entryAt(2, StatusFailed))

	l.Clear()
	assert.Equal(t, 0, l.Len())

	got := l.Append(entryAt(3, StatusSuccess))
	assert.Equal(t, int64(3), got.Seq)
	assert.Empty(t, got.PrevHash, "chain restarts after clear")
}

func TestLedger_ConcurrentAppends(t *testing.T) {
	const (
		workers = 8
		each    = 50
		max     = 100
	)
	l := New(max)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				l.Append(entryAt(w*each+i, StatusSuccess))
				_ = l.Snapshot()
			}
		}(w)
	}
	wg.Wait()

	got := l.Snapshot()
	require.Len(t, got, max)
	assert.Equal(t, int64(workers*each), got[0].Seq)
	require.NoError(t, Verify(got))
}

func TestVerify_DetectsTampering(t *testing.T) {
	l := New(10)
	for i := 1; i <= 4; i++ {
		l.Append(entryAt(i, StatusSuccess))
	}

	snap := l.Snapshot()
	require.NoError(t, Verify(snap))

	snap[2].RecordsUploaded = 999
	err := Verify(snap)
	require.Error(t, err)

	var verr *VerifyError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, snap[2].Seq, verr.Seq)
}

func TestVerify_DetectsRemovedEntry(t *testing.T) {
	l := New(10)
	for i := 1; i <= 4; i++ {
		l.Append(entryAt(i, StatusSuccess))
	}

	snap := l.Snapshot()
	gapped := []Entry{snap[0], snap[2], snap[3]}

	assert.Error(t, Verify(gapped))
}

func TestVerify_SurvivesEviction(t *testing.T) {
	l := New(3)
	for i := 1; i <= 10; i++ {
		l.Append(entryAt(i, StatusSuccess))
	}
	assert.NoError(t, Verify(l.Snapshot()))
}

func TestLedger_RestoreContinuesChain(t *testing.T) {
	src := New(10)
	for i := 1; i <= 3; i++ {
		src.Append(entryAt(i, StatusSuccess))
	}
	snap := src.Snapshot()

	oldestFirst := []Entry{snap[2], snap[1], snap[0]}
	dst := New(10)
	dst.Restore(oldestFirst)

	next := dst.Append(entryAt(4, StatusPartialSuccess))
	assert.Equal(t, int64(4), next.Seq)
	assert.Equal(t, snap[0].Hash, next.PrevHash)
	assert.NoError(t, Verify(dst.Snapshot()))
}

type recordingSink struct {
	mu       sync.Mutex
	appended []Entry
	cleared  int
	err      error
}

func (s *recordingSink) AppendHistory(_ context.Context, e Entry, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appended = append(s.appended, e)
	return s.err
}

func (s *recordingSink) ClearHistory(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared++
	return s.err
}

func TestLedger_SinkMirrorsWrites(t *testing.T) {
	sink := &recordingSink{}
	l := New(5, WithSink(sink))

	l.Append(entryAt(1, StatusSuccess))
	l.Clear()

	require.Len(t, sink.appended, 1)
	assert.NotEmpty(t, sink.appended[0].Hash)
	assert.Equal(t, 1, sink.cleared)
}

// blockingSink holds AppendHistory until release is closed.
type blockingSink struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSink) AppendHistory(context.Context, Entry, int) error {
	close(s.entered)
	<-s.release
	return nil
}

func (s *blockingSink) ClearHistory(context.Context) error { return nil }

func TestLedger_SnapshotDoesNotWaitForSink(t *testing.T) {
	sink := &blockingSink{entered: make(chan struct{}), release: make(chan struct{})}
	l := New(5, WithSink(sink))

	appended := make(chan Entry)
	go func() { appended <- l.Append(entryAt(1, StatusSuccess)) }()
	<-sink.entered

	snapped := make(chan []Entry)
	go func() { snapped <- l.Snapshot() }()
	select {
	case snap := <-snapped:
		require.Len(t, snap, 1)
		assert.Equal(t, int64(1), snap[0].Seq)
	case <-time.After(2 * time.Second):
		t.Fatal("Snapshot blocked while the sink was writing")
	}

	close(sink.release)
	assert.Equal(t, int64(1), (<-appended).Seq)
}

// orderSink records the order of sink calls.
type orderSink struct {
	mu  sync.Mutex
	ops []string
}

func (s *orderSink) AppendHistory(_ context.Context, e Entry, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, fmt.Sprintf("append %d", e.Seq))
	return nil
}

func (s *orderSink) ClearHistory(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "clear")
	return nil
}

func TestLedger_SinkSeesWritesInOrder(t *testing.T) {
	sink := &orderSink{}
	l := New(5, WithSink(sink))

	l.Append(entryAt(1, StatusSuccess))
	l.Clear()
	l.Append(entryAt(2, StatusSuccess))

	assert.Equal(t, []string{"append 1", "clear", "append 2"}, sink.ops)
}

func TestLedger_ResumeAtContinuesSeq(t *testing.T) {
	l := New(5)
	l.ResumeAt(7)
	l.ResumeAt(3)

	got := l.Append(entryAt(1, StatusSuccess))
	assert.Equal(t, int64(8), got.Seq)
	assert.Empty(t, got.PrevHash)
	require.NoError(t, Verify(l.Snapshot()))
}

func TestLedger_SinkErrorDoesNotFailAppend(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}
	l := New(5, WithSink(sink))

	got := l.Append(entryAt(1, StatusSuccess))

	assert.Equal(t, int64(1), got.Seq)
	assert.Equal(t, 1, l.Len())
}

func TestExport_EmptyLedgerIsValid(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, New(5).Export(&buf, format))

			doc, err := ReadDocument(&buf, format)
			require.NoError(t, err)
			assert.NotNil(t, doc.Entries)
			assert.Empty(t, doc.Entries)
		})
	}
}

func TestExport_JSONEmptyEntriesIsArray(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(5).Export(&buf, FormatJSON))
	assert.JSONEq(t, `{"entries":[]}`, buf.String())
}

func TestExport_RoundTripVerifies(t *testing.T) {
	l := New(5)
	l.Append(entryAt(1, StatusSuccess))
	l.Append(Entry{
		Timestamp:    t0.Add(time.Hour),
		Action:       ActionPull,
		Status:       StatusFailed,
		ErrorCode:    "network",
		ErrorMessage: "connection reset <peer>",
		Details:      "café",
	})

	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, l.Export(&buf, format))

			doc, err := ReadDocument(&buf, format)
			require.NoError(t, err)
			require.Len(t, doc.Entries, 2)
			assert.Equal(t, "network", doc.Entries[0].ErrorCode)
			assert.NoError(t, Verify(doc.Entries))
		})
	}
}

func TestExport_OmitsEmptyErrorFields(t *testing.T) {
	l := New(5)
	l.Append(entryAt(1, StatusSuccess))

	var buf bytes.Buffer
	require.NoError(t, l.Export(&buf, FormatJSON))
	assert.NotContains(t, buf.String(), "errorCode")
	assert.NotContains(t, buf.String(), "errorMessage")
	assert.Contains(t, buf.String(), `"recordsDownloaded": 1`)
}

func TestExport_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, New(5).Export(&buf, Format("xml")))
}

func TestExport_DoesNotModifyLedger(t *testing.T) {
	l := New(5)
	l.Append(entryAt(1, StatusSuccess))

	var buf bytes.Buffer
	require.NoError(t, l.Export(&buf, FormatJSON))
	assert.Equal(t, 1, l.Len())
}
