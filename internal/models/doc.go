// Package models defines the domain types shared by the sync engine, its stores and its services.
//
// The package contains two categories of types:
//
// 1. Snapshot types: the captured state of a playlist
//   - [Track] : one catalog entry at a 1-based position
//   - [Snapshot] : playlist attributes plus its ordered tracks, persisted per playlist
//   - [PlaylistExport] : consumer-facing rendering of a snapshot without internal identifiers
//   - [Match] : a search candidate resolved for a track
//
// 2. Run history: database-backed records of sync cycles
//   - [SyncRun] : one cycle of one playlist with its counters and final status
//   - [TrackResult] : the outcome of a single track within a run
//
// Run history types implement the Model interface and are stored through a Repository[T].
package models
