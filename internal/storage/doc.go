// Package storage keeps the job history: one record per finished job.
//
// Queued jobs are never persisted; a restart drops them. Drivers:
//   - "file": JSON Lines, dependency-free
//   - "sqlite": modernc.org/sqlite (pure Go, no cgo)
package storage
