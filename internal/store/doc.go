// Package store provides the SQLite-backed depot for cycle definitions
// and their persistent subscriptions.
//
// The depot holds two tables:
//   - definitions: one row per (kind, name) with the definition as JSON
//     and its canonical spec hash
//   - subscriptions: subscriber URIs per definition, removed with it
//
// Listing queries order by name COLLATE BINARY so restores are
// deterministic.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
