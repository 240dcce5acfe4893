// Package repositories implements persistence for playlist snapshots and sync history.
//
// Two stores live here:
//   - [SnapshotStore] : one JSON file per playlist holding the last persisted [models.Snapshot].
//     It is the "old" side of the next diff. Writes are atomic replaces.
//   - [RunRepository] : SQLite history of every sync cycle and the outcome of each track,
//     used by the status command and the status server.
//
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
