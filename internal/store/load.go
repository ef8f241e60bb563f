package store

import (
	"context"
	"fmt"

	"github.com/roach88/molecules/internal/habit"
	"github.com/roach88/molecules/internal/ledger"
	"github.com/roach88/molecules/internal/schedule"
)

// LoadRegistry rebuilds the in-memory registry for the molecules selected by
// q, so progression can resolve molecules and days from it.
func (s *Store) LoadRegistry(ctx context.Context, q MoleculeQuery) (*habit.Registry, error) {
	ms, err := s.FindMolecules(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	return habit.NewRegistry(ms...), nil
}

// LoadCatalog rebuilds the template catalog.
func (s *Store) LoadCatalog(ctx context.Context) (*schedule.Catalog, error) {
	ts, err := s.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return schedule.NewCatalog(ts...), nil
}

// RestoreLedger loads the mirrored sync history into l and resumes its
// sequence above every seq ever written, including cleared ones.
func (s *Store) RestoreLedger(ctx context.Context, l *ledger.Ledger) error {
	entries, err := s.ListHistory(ctx)
	if err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}
	last, err := s.LastSeq(ctx)
	if err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}
	l.Restore(entries)
	l.ResumeAt(last)
	return nil
}
