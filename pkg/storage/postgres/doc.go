// Package postgres owns the database/sql handles shared by the Postgres-backed
// stores (billing profiles, API keys, favorites, billing events).
//
// ConnectionManager opens one primary and any number of read replicas through
// lib/pq. Writes always go to Primary; Replica round-robins over healthy
// replicas and falls back to the primary when none are configured.
// StartHealthCheckRoutine periodically drops replicas that stop answering pings.
//
// Migrate applies the idempotent schema and is run by `tollgate -migrate`.
package postgres
