// Package server implements the Ladybug hosting backend.
//
// Owns:
//   - The assignment engine: every available<->active transition for pool
//     servers, and the account flags/balances tied to them
//   - The billing scheduler that charges active servers and reclaims from
//     insolvent owners
//   - HTTP routing, handlers, and request/response contracts
//   - Session-token authentication and the admin gate
//
// Does not own:
//   - Wire types consumed by clients (internal/shared)
//   - Event transport (internal/events)
//
// Invariants:
//   - An account owns at most one active server, and HasActiveServer is true
//     iff such a server exists
//   - A server is active iff it has an owner iff it has an assignment time
//   - Grant/release/reclaim each run inside a single store transaction
//   - Admin endpoints must be wrapped by RequireAdmin
package server
