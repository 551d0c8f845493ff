package harvest

import "errors"

// Failure taxonomy for fetch-and-extract operations. Fetchers and sources
// classify outcomes into these sentinels; orchestrators map them onto task
// status transitions:
//
//   - ErrBlocked: anti-automation challenge. Re-queue as pending, keep
//     progress; the caller schedules the next run after a cooldown.
//   - ErrNotFound: search or page yields nothing. Terminal no_resource or a
//     candidate skip; not retried automatically.
//   - ErrUnparsable: page fetched but mandatory fields unextractable
//     (including a missing cover image). Candidate skip in a batch, task
//     failure when it is the whole task's subject.
//
// Anything else is a hard failure: the task is marked failed with the error
// text recorded and the run continues with the next task.
var (
	ErrBlocked    = errors.New("anti-automation challenge detected")
	ErrNotFound   = errors.New("no matching resource found")
	ErrUnparsable = errors.New("page could not be parsed")
)
