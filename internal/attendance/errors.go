package attendance

import "errors"

// Every workflow error wraps one of these; match them with errors.Is.
// None is fatal: the caller retries or corrects the selection.
var (
	ErrNotFound            = errors.New("attendance: not found")
	ErrRetrieval           = errors.New("attendance: retrieval failed")
	ErrInvalidSelection    = errors.New("attendance: invalid selection")
	ErrIncompleteSelection = errors.New("attendance: incomplete selection")
	ErrSubmissionFailed    = errors.New("attendance: submission failed")
	ErrSubmitInProgress    = errors.New("attendance: submission already in progress")
	ErrStaleResult         = errors.New("attendance: session changed while loading")
	ErrSessionNotFound     = errors.New("attendance: session not found")
)
