// Package harness runs scripted habit scenarios against the real engine.
//
// A scenario compiles CUE templates, then drives materialization, atom
// interactions, deletions and sync reports through the same store,
// progression service and history ledger the CLI uses. Each step appends
// one event to a trace; the trace is compared against a golden file and
// assertions check the state read back from the store.
//
// # Scenario Format
//
//	name: morning_routine
//	description: "Completing every atom completes the molecule and the day"
//	templates:
//	  - templates/morning.cue
//	now: "2024-01-01T08:00:00Z"
//	steps:
//	  - action: materialize
//	    template: morning
//	    from: "2024-01-01"
//	    to: "2024-01-04"
//	  - action: toggle
//	    template: morning
//	    date: "2024-01-01"
//	    atom: Stretch
//	  - action: sync
//	    sync: {action: push, uploaded: 3, duration: 2s}
//	assertions:
//	  - type: molecule
//	    template: morning
//	    date: "2024-01-01"
//	    progress: "1/3"
//	  - type: history_count
//	    count: 1
//
// # Assertion Types
//
//   - molecule_count: number of molecules, optionally per template and date
//   - molecule: progress and completion of one molecule
//   - atom: completion, capture phase or value of one atom
//   - day_complete: whether every molecule on a day is complete
//   - history_count: entries in memory and in the store
//   - history_latest: status of the newest sync entry
//   - history_verified: the hash chain checks out in memory and on disk
//
// # Deterministic Testing
//
// The harness uses a fake clock that only moves on advance and sync steps,
// sequential ids ("tmpl-1", "id-1", ...) and a fresh in-memory SQLite
// database, so identical scenarios produce identical traces.
package harness
