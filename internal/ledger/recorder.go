package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/roach88/molecules/internal/clock"
)

// Error codes the recorder assigns when the producer gives none.
const (
	ErrorCodeTimeout   = "timeout"
	ErrorCodeCancelled = "cancelled"
	ErrorCodeUnknown   = "unknown"
)

// Outcome is what a sync attempt reports when it finishes.
type Outcome struct {
	Status     Status // derived from Err when empty
	Downloaded int
	Uploaded   int
	Err        error
	ErrorCode  string
	Details    string
}

// Recorder turns sync attempts into ledger entries, timing them with its
// clock.
type Recorder struct {
	ledger *Ledger
	clock  clock.Clock
}

// NewRecorder creates a recorder appending to l. A nil clock uses wall time.
func NewRecorder(l *Ledger, c clock.Clock) *Recorder {
	return &Recorder{ledger: l, clock: clock.Or(c)}
}

// Attempt is one in-flight sync operation.
type Attempt struct {
	r       *Recorder
	action  Action
	started time.Time

	once  sync.Once
	entry Entry
}

// Start begins timing an attempt.
func (r *Recorder) Start(action Action) *Attempt {
	return &Attempt{r: r, action: action, started: r.clock.Now()}
}

// StartAt begins an attempt that started earlier, such as one run by another
// process and reported after the fact.
func (r *Recorder) StartAt(action Action, started time.Time) *Attempt {
	return &Attempt{r: r, action: action, started: started}
}

// Finish appends the attempt's entry. Only the first call appends; later
// calls return the same entry.
func (a *Attempt) Finish(o Outcome) Entry {
	a.once.Do(func() {
		now := a.r.clock.Now()
		e := Entry{
			Timestamp:         now,
			Action:            a.action,
			Status:            o.Status,
			RecordsDownloaded: o.Downloaded,
			RecordsUploaded:   o.Uploaded,
			DurationMs:        now.Sub(a.started).Milliseconds(),
			ErrorCode:         o.ErrorCode,
			Details:           o.Details,
		}
		if o.Err != nil {
			e.ErrorMessage = o.Err.Error()
		}
		if e.Status == "" {
			e.Status = statusFor(o.Err)
		}
		if o.Err != nil && e.ErrorCode == "" {
			e.ErrorCode = errorCodeFor(o.Err)
		}
		a.entry = a.r.ledger.Append(e)
	})
	return a.entry
}

// Record runs fn as one attempt of action and appends its outcome. The
// error returned by fn is stored on the entry and returned to the caller.
func (r *Recorder) Record(ctx context.Context, action Action, fn func(ctx context.Context) (Outcome, error)) (Entry, error) {
	attempt := r.Start(action)
	outcome, err := fn(ctx)
	if err != nil && outcome.Err == nil {
		outcome.Err = err
	}
	if outcome.Err == nil && ctx.Err() != nil {
		outcome.Err = ctx.Err()
	}
	return attempt.Finish(outcome), err
}

// statusFor maps an attempt error to a status. A cancelled or timed-out
// context ends the attempt as cancelled; the error code tells them apart.
func statusFor(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCancelled
	default:
		return StatusFailed
	}
}

func errorCodeFor(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorCodeTimeout
	case errors.Is(err, context.Canceled):
		return ErrorCodeCancelled
	default:
		return ErrorCodeUnknown
	}
}
