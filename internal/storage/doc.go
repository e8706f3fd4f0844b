// Package storage persists small keyed documents (tracker state, the
// subscription registry) and an append-only audit trail.
//
// Drivers: memory, file (snapshot + journal), sqlite (modernc.org/sqlite) and
// postgres (lib/pq). Every write is durable before the call returns.
package storage
