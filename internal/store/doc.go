// Package store provides SQLite-backed persistence for stigmergy.
//
// Tables:
//   - entities: one row per minted entity
//   - component_definitions: component name to JSON schema
//   - components: at most one row per (entity, component); NULL data is a
//     tombstone, distinct from a missing row
//   - edges: directed (src, dst, label) entity triples, unique per triple
//   - systems: JSON system definitions keyed by name
//   - invariants: named assertions
//   - rounds: append-only audit log of auction rounds
//
// Every component write is validated against the stored definition inside
// the same transaction that performs it, so a write that fails validation
// leaves nothing behind. CommitRound and Apply group many writes into one
// transaction: readers see all of them or none.
//
// # Deterministic Query Results
//
// List queries order by primary key with COLLATE BINARY, rounds by seq, so
// output is stable across runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Deleting an entity cascades to its components and to
//     every edge naming it; deleting a definition cascades to its instances
package store
