// Package jobs persists pipeline state in SQLite: one row per (media, stage)
// attempt, derived per-stage daily rollups, and vendor health.
//
// The store is the single coordination point between worker pools. A partial
// unique index guarantees at most one active attempt per (media_id, stage),
// and Claim is a conditional update that exactly one caller wins. Terminal
// transitions (Complete, Fail) only apply to in_progress rows, so a worker
// can never overwrite an attempt it does not own. Failed rows are never
// deleted; retries create new attempt rows.
package jobs
