// Package backup drives one retrieval run: it obtains a fresh manual backup
// from the server, unpacks it into the destination directory and cleans up.
package backup

import (
	"context"

	"github.com/imedwei/arr-backup/internal/arr"
)

// API is the subset of the server API a run needs.
type API interface {
	// ListBackups returns every backup known to the server.
	ListBackups(ctx context.Context) ([]arr.Backup, error)

	// TriggerBackup asks the server to start creating a manual backup.
	TriggerBackup(ctx context.Context) error

	// DeleteBackup removes the backup with the given id from the server.
	DeleteBackup(ctx context.Context, id int64) error
}

// StateObserver is notified of every state change of a run.
type StateObserver interface {
	SetState(state string, err error)
	SetBackup(id int64, name string)
}

// State is a step of the acquisition state machine or of the run around it.
type State string

// Acquisition states.
const (
	StateChecking   State = "checking"
	StateTriggering State = "triggering"
	StatePolling    State = "polling"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Run states after acquisition.
const (
	StateExtracting State = "extracting"
	StateUploading  State = "uploading"
	StateDeleting   State = "deleting"
	StateSucceeded  State = "succeeded"
)

type nopObserver struct{}

func (nopObserver) SetState(string, error) {}
func (nopObserver) SetBackup(int64, string) {}
