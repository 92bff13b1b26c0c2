// Package storage persists subscriber-to-destination mappings.
//
// Drivers:
//   - "file": dependency-free JSON snapshot + append-only journal
//   - "sqlite": embedded SQLite database (modernc.org/sqlite, no cgo)
//   - "postgres": PostgreSQL via pgx
//
// The broadcaster only reads subscriptions (through the subscriber cache);
// Subscribe/Unsubscribe are used by operator tooling.
package storage
