// Package ledger keeps the bounded, tamper-evident history of sync outcomes.
//
// The ledger is an explicit instance owned by the sync subsystem. It holds at
// most Max entries in a ring buffer; appending past capacity evicts the
// oldest. Each entry is chained to its predecessor by a SHA-256 hash so an
// exported snapshot can be checked with Verify.
//
// Appends are serialized by a mutex (several sync attempts may finish
// concurrently); snapshots copy under a read lock so exports never observe a
// half-written append. Sink writes happen after the read lock is released,
// in append order, so readers never wait on disk.
package ledger

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// DefaultMaxEntries is the retention used when none is configured.
const DefaultMaxEntries = 100

// Sink mirrors ledger writes to durable storage. Errors are logged by the
// ledger and never reach the producer.
type Sink interface {
	AppendHistory(ctx context.Context, e Entry, max int) error
	ClearHistory(ctx context.Context) error
}

// Ledger is the bounded sync history.
type Ledger struct {
	// sinkMu orders sink writes; it is taken before mu and held across I/O.
	sinkMu sync.Mutex

	mu       sync.RWMutex
	buf      []Entry // ring buffer, len == max
	head     int     // index of the oldest entry
	count    int
	max      int
	seq      int64
	lastHash string

	sink   Sink
	logger *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithSink mirrors appends and clears to s.
func WithSink(s Sink) Option {
	return func(l *Ledger) { l.sink = s }
}

// WithLogger sets the logger used for sink failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a ledger retaining at most max entries. A non-positive max
// uses DefaultMaxEntries.
func New(max int, opts ...Option) *Ledger {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	l := &Ledger{
		buf:    make([]Entry, max),
		max:    max,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Max returns the retention limit.
func (l *Ledger) Max() int { return l.max }

// Len returns the number of retained entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Append records e as the newest entry and returns it with Seq, PrevHash and
// Hash assigned. It never fails: producer-supplied fields are stored as-is
// and sink errors are only logged.
func (l *Ledger) Append(e Entry) Entry {
	l.sinkMu.Lock()
	defer l.sinkMu.Unlock()

	l.mu.Lock()
	l.seq++
	e.Seq = l.seq
	e.PrevHash = l.lastHash
	hash, err := hashEntry(e.PrevHash, e)
	if err != nil {
		// canonicalEntry only sees strings and integers; keep the entry.
		l.logger.Error("sync history: hash entry", "seq", e.Seq, "error", err)
	}
	e.Hash = hash
	l.lastHash = hash

	l.push(e)
	l.mu.Unlock()

	if l.sink != nil {
		if err := l.sink.AppendHistory(context.Background(), e, l.max); err != nil {
			l.logger.Warn("sync history: persist entry failed", "seq", e.Seq, "error", err)
		}
	}
	return e
}

// push inserts e into the ring, evicting the oldest entry when full.
func (l *Ledger) push(e Entry) {
	if l.count < l.max {
		l.buf[(l.head+l.count)%l.max] = e
		l.count++
		return
	}
	l.buf[l.head] = e
	l.head = (l.head + 1) % l.max
}

// Snapshot returns a copy of the retained entries, newest first. It never
// returns nil.
func (l *Ledger) Snapshot() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, l.count)
	for i := 0; i < l.count; i++ {
		out[i] = l.buf[(l.head+l.count-1-i)%l.max]
	}
	return out
}

// Clear atomically drops every entry and restarts the hash chain. Sequence
// numbers keep increasing so cleared entries are never confused with new
// ones.
func (l *Ledger) Clear() {
	l.sinkMu.Lock()
	defer l.sinkMu.Unlock()

	l.mu.Lock()
	l.buf = make([]Entry, l.max)
	l.head = 0
	l.count = 0
	l.lastHash = ""
	l.mu.Unlock()

	if l.sink != nil {
		if err := l.sink.ClearHistory(context.Background()); err != nil {
			l.logger.Warn("sync history: clear failed", "error", err)
		}
	}
}

// Restore loads previously persisted entries (oldest first) without writing
// them back to the sink. Only the newest Max entries are kept. Sequence and
// chain continue from the newest restored entry.
func (l *Ledger) Restore(entries []Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf = make([]Entry, l.max)
	l.head = 0
	l.count = 0
	if len(entries) > l.max {
		entries = entries[len(entries)-l.max:]
	}
	for _, e := range entries {
		l.push(e)
		if e.Seq > l.seq {
			l.seq = e.Seq
		}
		l.lastHash = e.Hash
	}
}

// ResumeAt makes the next append use a sequence number above seq. Stores
// call it with the highest seq ever written, which survives Clear.
func (l *Ledger) ResumeAt(seq int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if seq > l.seq {
		l.seq = seq
	}
}
