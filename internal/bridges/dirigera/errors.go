package dirigera

import "errors"

var (
	// ErrMissingDependency is returned by NewBridge when a required
	// collaborator is nil.
	ErrMissingDependency = errors.New("dirigera: missing dependency")

	// ErrSyncFailed is returned by Start when the initial sync fails.
	ErrSyncFailed = errors.New("dirigera: initial sync failed")
)
