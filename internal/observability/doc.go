// Package observability provides the outward-facing feeds of the
// pipeline engine: an append-only JSON Lines event log consumed by the
// UI broadcaster, and notification sinks for gate failures and
// dependency blocks. Both are best-effort collaborators; the engine
// never fails an operation because a feed write failed.
package observability
