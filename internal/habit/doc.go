// Package habit models scheduled habit occurrences and their completion.
//
// A Molecule is one scheduled occurrence of a habit template. It owns an
// ordered list of Atoms, each a single trackable task. Every Atom carries
// exactly one Behavior (Binary, Counter, Value or Media), selected by its
// input type; no atom mixes semantics.
//
// # Derived State
//
// Completion is never stored independently of its inputs. Atom.IsCompleted
// and Molecule.IsCompleted/Progress are computed on every call. The only
// stored aggregate is the Molecule's Aggregate mirror, written exclusively by
// Progression after an atom change so persistence can filter on completion.
//
// # Threading
//
// Nothing in this package locks. Mutations are expected to arrive serialized
// from a single session (the CLI command or a host event loop).
//
// # Failure Model
//
// Rejected input (a non-numeric value, a decrement at zero, a toggle on a
// non-binary atom) returns false and leaves state untouched. Missing
// collaborators (an orphaned atom, an unresolvable capture override) degrade
// to a no-op or a type default. Nothing here panics on expected input.
package habit
