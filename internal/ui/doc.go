// Package ui implements the terminal progress view for a sync pass using bubbletea's Elm architecture.
//
// The TUI has two views:
//  1. [ProgressView] : spinner, current phase, a download progress bar and the latest log lines
//  2. [ResultView] : one list entry per playlist run with its status and counters
//
// The [Model] starts the [SyncFunc] as a command when initialised. Progress updates flow through a
// buffered channel owned by the model and are re-armed one message at a time, so nothing outside the
// update loop mutates model state. Quitting cancels the pass context.
//
// Keyboard navigation uses vim-style bindings (j/k, d, ?, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
