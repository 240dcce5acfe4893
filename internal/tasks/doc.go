// Package tasks keeps local copies of playlists in sync with the catalog.
//
// # Cycle
//
// [SyncEngine.Sync] runs one playlist through
//
//	Idle → FetchingMetadata → Diffing → Downloading → Persisting → Complete
//
//  1. Load the stored snapshot (absent on first run, skipped with [SyncOpts.Force])
//  2. Fetch the current track list from the [services.CatalogService]
//  3. [Diff] the two; an empty diff ends the cycle without writing anything
//  4. Select every track on first run or forced resync, else only the added ones
//  5. Match and fetch each selected track whose artifact is missing, pausing between downloads
//  6. Save the snapshot and write its export
//
// A metadata or state failure ends the cycle in Failed and leaves the stored snapshot untouched.
// Per-track failures are counted in the [models.SyncRun] and never fail the cycle.
//
// [Scheduler] runs the configured playlists one after another, then again on every interval tick.
//
// # Progress Reporting
//
// Operations accept an optional channel of [ProgressUpdate]. Sends use select with default,
// so a slow or absent reader never blocks a cycle.
package tasks
