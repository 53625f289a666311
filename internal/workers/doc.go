// Package workers runs the per-stage worker pools that drain the job
// queue. Each stage gets a configurable number of workers; every worker
// polls for the oldest claimable attempt, claims it atomically, selects
// a vendor, executes the call under a timeout, and either advances the
// media through the stage graph or schedules a retry according to the
// retry policy.
package workers
