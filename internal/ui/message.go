package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/peanuz/playlist-sync/internal/models"
	"github.com/peanuz/playlist-sync/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgProgressUpdate MsgKind = iota
	MsgPassComplete
)

type passResult struct {
	runs []*models.SyncRun
	err  error
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// passCompleteMsg is the constructor for [MsgPassComplete]
func passCompleteMsg(runs []*models.SyncRun, err error) Msg {
	return Msg{kind: MsgPassComplete, data: passResult{runs: runs, err: err}}
}
