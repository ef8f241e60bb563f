package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/molecules/internal/ledger"
)

var _ ledger.Sink = (*Store)(nil)

// AppendHistory mirrors a ledger entry and trims the table to the newest max
// rows. Re-appending an existing seq is a no-op.
func (s *Store) AppendHistory(ctx context.Context, e ledger.Entry, max int) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sync_history
			(seq, timestamp, action, status, records_downloaded, records_uploaded,
			 duration_ms, error_code, error_message, details, prev_hash, hash)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(seq) DO NOTHING
		`,
			e.Seq,
			formatTime(e.Timestamp),
			string(e.Action),
			string(e.Status),
			e.RecordsDownloaded,
			e.RecordsUploaded,
			e.DurationMs,
			e.ErrorCode,
			e.ErrorMessage,
			e.Details,
			e.PrevHash,
			e.Hash,
		)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ledger_state (id, last_seq) VALUES (1, ?)
			ON CONFLICT(id) DO UPDATE SET last_seq = MAX(last_seq, excluded.last_seq)
		`, e.Seq)
		if err != nil {
			return err
		}
		if max <= 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			DELETE FROM sync_history
			WHERE seq <= (SELECT seq FROM sync_history ORDER BY seq DESC LIMIT 1 OFFSET ?)
		`, max)
		return err
	})
	if err != nil {
		return fmt.Errorf("append sync history: %w", err)
	}
	return nil
}

// ClearHistory removes every mirrored entry. The highest seq written is
// kept so numbering continues after a restart.
func (s *Store) ClearHistory(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_history`); err != nil {
		return fmt.Errorf("clear sync history: %w", err)
	}
	return nil
}

// LastSeq returns the highest seq ever appended, or 0 when none was.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT last_seq FROM ledger_state WHERE id = 1`).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read ledger state: %w", err)
	}
	return seq, nil
}

// ListHistory returns the mirrored entries oldest first, the order
// ledger.Restore expects. Returns an empty slice (not nil) when there are
// none.
func (s *Store) ListHistory(ctx context.Context) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, timestamp, action, status, records_downloaded, records_uploaded,
		       duration_ms, error_code, error_message, details, prev_hash, hash
		FROM sync_history
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sync history: %w", err)
	}
	defer rows.Close()

	entries := []ledger.Entry{}
	for rows.Next() {
		var (
			e              ledger.Entry
			ts             string
			action, status string
		)
		err := rows.Scan(&e.Seq, &ts, &action, &status, &e.RecordsDownloaded, &e.RecordsUploaded,
			&e.DurationMs, &e.ErrorCode, &e.ErrorMessage, &e.Details, &e.PrevHash, &e.Hash)
		if err != nil {
			return nil, fmt.Errorf("scan sync history: %w", err)
		}
		// Stored exactly as the producer supplied it, so no validation here.
		e.Action = ledger.Action(action)
		e.Status = ledger.Status(status)
		if e.Timestamp, err = parseTime(ts); err != nil {
			s.logger.Warn("sync history entry has invalid timestamp", "seq", e.Seq, "value", ts)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync history: %w", err)
	}
	return entries, nil
}
