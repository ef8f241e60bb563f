package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_OpensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	var count int
	if err := s2.db.QueryRow("SELECT COUNT(*) FROM molecules").Scan(&count); err != nil {
		t.Errorf("query failed: %v", err)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"templates", "molecules", "atoms", "sync_history"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name, want string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		if err := s.verifyPragma(tt.name, tt.want); err != nil {
			t.Error(err)
		}
	}
}

func TestSchema_AtomsColumns(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "atoms")
	for _, want := range []string{"id", "molecule_id", "position", "input_type", "current_value", "target_value", "capture_phase", "artifact", "capture_failure", "capture_settings"} {
		if !contains(columns, want) {
			t.Errorf("atoms table missing column %q, got %v", want, columns)
		}
	}
}

func TestConstraint_AtomRequiresMolecule(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`
		INSERT INTO atoms (id, molecule_id, position, title, input_type)
		VALUES ('a1', 'missing', 0, 'Orphan', 'binary')
	`)
	if err == nil {
		t.Error("expected foreign key violation for atom without molecule")
	}
}

// Migration tests

func TestMigration_SchemaVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestMigration_UpgradeFromV0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	// Apply schema but NOT migrations (simulates pre-migration state)
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 0"); err != nil {
		t.Fatalf("failed to set user_version: %v", err)
	}
	db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d after migration", version, currentSchemaVersion)
	}

	indexes := getTableIndexes(t, s.db, "molecules")
	if !contains(indexes, "idx_molecules_template_date") {
		t.Errorf("expected idx_molecules_template_date after migration, got %v", indexes)
	}
}

func TestMigration_UpgradeFromV1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	// Version 1 layout: no occurrence dates, no capture failure columns.
	v1 := []string{
		`CREATE TABLE molecules (
			id TEXT PRIMARY KEY, template_id TEXT NOT NULL DEFAULT '', title TEXT NOT NULL,
			scheduled_date TEXT NOT NULL, completed INTEGER NOT NULL DEFAULT 0,
			completed_atoms INTEGER NOT NULL DEFAULT 0, total_atoms INTEGER NOT NULL DEFAULT 0,
			progress REAL NOT NULL DEFAULT 0, ever_completed INTEGER NOT NULL DEFAULT 0, completed_at TEXT)`,
		`CREATE TABLE atoms (
			id TEXT PRIMARY KEY, molecule_id TEXT NOT NULL REFERENCES molecules(id) ON DELETE CASCADE,
			position INTEGER NOT NULL, title TEXT NOT NULL, unit TEXT NOT NULL DEFAULT '',
			input_type TEXT NOT NULL, source_template_id TEXT NOT NULL DEFAULT '',
			checked INTEGER NOT NULL DEFAULT 0, current_value REAL, target_value REAL,
			step REAL NOT NULL DEFAULT 0, capture_phase TEXT NOT NULL DEFAULT '',
			capture_attempts INTEGER NOT NULL DEFAULT 0, artifact TEXT)`,
		`CREATE TABLE sync_history (
			seq INTEGER PRIMARY KEY, timestamp TEXT NOT NULL, action TEXT NOT NULL, status TEXT NOT NULL,
			records_downloaded INTEGER NOT NULL DEFAULT 0, records_uploaded INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0, error_code TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '', details TEXT NOT NULL DEFAULT '',
			prev_hash TEXT NOT NULL DEFAULT '', hash TEXT NOT NULL DEFAULT '')`,
		`INSERT INTO molecules (id, template_id, title, scheduled_date) VALUES ('m1', 't1', 'Morning', '2024-01-03')`,
		`INSERT INTO sync_history (seq, timestamp, action, status) VALUES (4, '2024-01-01T00:00:00Z', 'push', 'success')`,
		`PRAGMA user_version = 1`,
	}
	for _, stmt := range v1 {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("failed to build v1 database: %v", err)
		}
	}
	db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	for table, want := range map[string]string{
		"molecules": "occurrence_date",
		"atoms":     "capture_failure",
	} {
		if !contains(getTableColumns(t, s.db, table), want) {
			t.Errorf("%s missing column %q after migration", table, want)
		}
	}
	if !contains(getTableIndexes(t, s.db, "molecules"), "idx_molecules_template_occurrence") {
		t.Error("expected idx_molecules_template_occurrence after migration")
	}

	var occurrence string
	if err := s.db.QueryRow("SELECT occurrence_date FROM molecules WHERE id = 'm1'").Scan(&occurrence); err != nil {
		t.Fatalf("query occurrence_date: %v", err)
	}
	if occurrence != "2024-01-03" {
		t.Errorf("occurrence_date = %q, want backfilled 2024-01-03", occurrence)
	}

	last, err := s.LastSeq(context.Background())
	if err != nil {
		t.Fatalf("LastSeq() failed: %v", err)
	}
	if last != 4 {
		t.Errorf("LastSeq() = %d, want 4 seeded from sync_history", last)
	}
}

// Helper functions

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
