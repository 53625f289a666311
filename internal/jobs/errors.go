package jobs

import "errors"

// ErrDuplicateInFlight indicates an active job already exists for the
// (media_id, stage) pair. Callers treat it as "someone got here first".
var ErrDuplicateInFlight = errors.New("active job already exists for media and stage")

// ErrNotClaimed indicates a terminal transition was attempted on a job the
// caller does not own (it is not in_progress).
var ErrNotClaimed = errors.New("job is not claimed by this worker")
