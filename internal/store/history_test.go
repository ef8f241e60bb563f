package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/molecules/internal/ledger"
)

func TestHistory_MirrorsLedgerAndTrims(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	l := ledger.New(3, ledger.WithSink(s))
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		l.Append(ledger.Entry{
			Timestamp:       base.Add(time.Duration(i) * time.Minute),
			Action:          ledger.ActionPush,
			Status:          ledger.StatusSuccess,
			RecordsUploaded: i,
		})
	}

	got, err := s.ListHistory(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{got[0].Seq, got[1].Seq, got[2].Seq})
	assert.Equal(t, 4, got[2].RecordsUploaded)
}

func TestHistory_RestoreKeepsChainVerifiable(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	src := ledger.New(10, ledger.WithSink(s))
	src.Append(ledger.Entry{Timestamp: time.Date(2024, 5, 1, 9, 0, 0, 123456789, time.UTC), Action: ledger.ActionPull, Status: ledger.StatusSuccess})
	src.Append(ledger.Entry{
		Timestamp:    time.Date(2024, 5, 1, 9, 5, 0, 0, time.UTC),
		Action:       ledger.ActionPull,
		Status:       ledger.StatusFailed,
		ErrorCode:    "network",
		ErrorMessage: "offline",
	})

	dst := ledger.New(10)
	require.NoError(t, s.RestoreLedger(ctx, dst))

	assert.Equal(t, src.Snapshot(), dst.Snapshot())
	require.NoError(t, ledger.Verify(dst.Snapshot()))

	next := dst.Append(ledger.Entry{Action: ledger.ActionPush, Status: ledger.StatusSkipped})
	assert.Equal(t, int64(3), next.Seq)
}

func TestHistory_Clear(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	l := ledger.New(10, ledger.WithSink(s))
	l.Append(ledger.Entry{Action: ledger.ActionBackup, Status: ledger.StatusSuccess})
	l.Clear()

	got, err := s.ListHistory(ctx)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestHistory_SeqSurvivesClearAcrossRestore(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := ledger.New(10, ledger.WithSink(s))
	first.Append(ledger.Entry{Action: ledger.ActionPush, Status: ledger.StatusSuccess})
	first.Append(ledger.Entry{Action: ledger.ActionPull, Status: ledger.StatusSuccess})
	first.Clear()

	last, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), last)

	second := ledger.New(10, ledger.WithSink(s))
	require.NoError(t, s.RestoreLedger(ctx, second))
	assert.Empty(t, second.Snapshot())

	next := second.Append(ledger.Entry{Action: ledger.ActionBackup, Status: ledger.StatusSuccess})
	assert.Equal(t, int64(3), next.Seq)
	assert.Empty(t, next.PrevHash)
}

func TestHistory_StoresMalformedValuesAsIs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendHistory(ctx, ledger.Entry{
		Seq:               1,
		Action:            ledger.Action("teleport"),
		Status:            ledger.Status("meh"),
		RecordsDownloaded: -7,
	}, 10))

	got, err := s.ListHistory(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ledger.Action("teleport"), got[0].Action)
	assert.Equal(t, -7, got[0].RecordsDownloaded)
}
