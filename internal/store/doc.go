// Package store provides the reactive SQLite-backed record store.
//
// Records live in tables declared by an AppSchema. Every record has two
// reserved columns managed by the store:
//   - id: generated on Create (UUIDv7 by default)
//   - seq: logical insertion clock, used as the ordering tiebreaker
//
// # Execution Model
//
// One actor goroutine owns the connection. Each public operation is queued
// as a job and executed in submission order. After a job that wrote
// commits, every subscription on a touched table re-runs its query and
// receives the full result set, before the writer is answered.
//
// # Schema Versions
//
// PRAGMA user_version holds the schema version. On Open:
//   - same version: nothing to do
//   - older file: additive migration (tables, columns, indexes)
//   - newer file: drop everything and recreate
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
