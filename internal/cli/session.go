package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/molecules/internal/clock"
	"github.com/roach88/molecules/internal/config"
	"github.com/roach88/molecules/internal/habit"
	"github.com/roach88/molecules/internal/ids"
	"github.com/roach88/molecules/internal/ledger"
	"github.com/roach88/molecules/internal/schedule"
	"github.com/roach88/molecules/internal/store"
)

// Session is the engine wired for one command invocation: configuration,
// the open store, the template catalog and the sync history restored from
// disk.
type Session struct {
	Config   config.Config
	Logger   *slog.Logger
	Clock    clock.Clock
	IDs      ids.Generator
	Store    *store.Store
	Catalog  *schedule.Catalog
	Ledger   *ledger.Ledger
	Recorder *ledger.Recorder
}

// openSession loads configuration, opens the database and restores the
// catalog and ledger. Callers must Close the session.
func openSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*Session, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}

	level, err := cfg.Level()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid log level", err)
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	logger.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database, store.WithLogger(logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	s := &Session{
		Config: cfg,
		Logger: logger,
		Clock:  clock.Or(opts.Clock),
		IDs:    opts.IDs,
		Store:  st,
	}
	if s.IDs == nil {
		s.IDs = ids.UUIDv7{}
	}

	s.Catalog, err = st.LoadCatalog(ctx)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to load templates", err)
	}

	s.Ledger = ledger.New(cfg.Ledger.MaxEntries, ledger.WithSink(st), ledger.WithLogger(logger))
	if err := st.RestoreLedger(ctx, s.Ledger); err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to restore sync history", err)
	}
	s.Recorder = ledger.NewRecorder(s.Ledger, s.Clock)
	return s, nil
}

// Close releases the database.
func (s *Session) Close() {
	if err := s.Store.Close(); err != nil {
		s.Logger.Error("error closing database", "error", err)
	}
}

// Now returns the current time in the configured timezone.
func (s *Session) Now() time.Time {
	return s.Clock.Now().In(s.Config.Location())
}

// Today returns the current calendar day as a UTC midnight date, the form
// molecules are scheduled on.
func (s *Session) Today() time.Time {
	now := s.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// CaptureResolver resolves capture settings from the owning template first
// and the configured defaults second.
func (s *Session) CaptureResolver() habit.CaptureSettingsResolver {
	return habit.ResolverFunc(func(templateID string, kind habit.InputType) (habit.CaptureSettings, bool) {
		if settings, ok := s.Catalog.ResolveCaptureSettings(templateID, kind); ok {
			return settings, true
		}
		return s.Config.CaptureDefaults(kind), true
	})
}

// Progression returns a progression service over reg, stamping completions
// with the session clock.
func (s *Session) Progression(reg *habit.Registry) *habit.Progression {
	p := habit.NewProgression(reg, habit.WithClock(s.Clock), habit.WithLogger(s.Logger))
	p.OnChange(func(ch habit.Change) {
		switch {
		case ch.DayJustCompleted:
			s.Logger.Info("day complete", "molecule_id", ch.MoleculeID)
		case ch.JustCompleted:
			s.Logger.Info("molecule complete", "molecule_id", ch.MoleculeID)
		case ch.JustReopened:
			s.Logger.Info("molecule reopened", "molecule_id", ch.MoleculeID)
		}
	})
	return p
}

// templateByName finds a stored template.
func (s *Session) templateByName(name string) (*schedule.Template, error) {
	for _, t := range s.Catalog.Templates() {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown template %q", name))
}
