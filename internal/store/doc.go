// Package store provides persistence for dni-gateway.
//
// Two entities are owned here: identity tokens (the never-expiring opaque
// token bound one-to-one to a DNI) and WebAuthn credentials (public-key
// records bound to a DNI, many per DNI). The store is the sole mutator of
// both tables.
//
// The SQLite implementation uses modernc.org/sqlite (pure Go, no cgo) with
// WAL mode enabled. The schema is created automatically on first open.
//
// Token issuance is race-safe: concurrent first-time requests for the same
// DNI resolve through the UNIQUE(dni) constraint, with the losing writer
// retrying the lookup so both callers observe the same persisted token.
package store
