// Package store provides SQLite-backed durable storage for habit templates,
// scheduled molecules with their atoms, and the sync history mirror.
//
// # Patterns
//
// Commit boundary:
//   - SaveMolecule writes a molecule, its aggregate and all of its atoms in
//     one transaction. Progression updates memory first; a failed save
//     leaves memory as it is and the caller retries.
//
// Deterministic query results:
//   - Molecule queries order by scheduled_date ASC, id ASC COLLATE BINARY
//   - Atoms load in position order
//
// Corrupt rows degrade instead of failing reads:
//   - an undecodable rule becomes the unconfigured rule
//   - an atom with an unknown input type is skipped, and saving its
//     molecule leaves the row alone
//   - an unknown capture phase reads back as pending
//
// Each case is logged at warn level.
//
// Occurrence identity:
//   - a molecule is materialized once per (template_id, occurrence_date);
//     rescheduling moves scheduled_date only
//   - DeleteMolecules leaves a skipped_occurrences row so the date is not
//     materialized again; DeleteFutureMolecules does not
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Atoms are deleted with their molecule
package store
