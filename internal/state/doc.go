// Package state holds the application's single source of truth: connection
// status, the lazily loaded entity tree, the current selection and the
// per-entity resource caches.
//
// # Ownership
//
// The tree, selection and caches are owned exclusively by the Store. UI
// code reads immutable snapshots via Snapshot() and dispatches actions;
// every mutation happens inside a store method under the store lock.
//
// # Concurrency rules
//
// Store actions block on the network with the lock released, then re-take
// it to apply results. Three guards keep overlapping actions consistent:
//
//   - loadingPaths: a second LoadChildren for a path whose request is in
//     flight is a no-op, so one request owns the right to populate a node.
//   - selectionGen: every (re-)selection bumps a generation counter; a
//     detail fetch applies its result only if the generation it captured
//     at start is still current. Last write wins, stale responses are
//     dropped silently. This also keeps timed-out requests inert. The
//     operation taking the slot resets both phase flags (loadingDetails,
//     refreshing) up front, so superseded fetches never leave one stuck.
//   - faultGen: the same rule per fault slot, so an overlapping poll tick
//     that resolves late never clobbers a newer fault list.
//
// # Tree load lifecycle
//
// A node's children go UNLOADED -> LOADING -> LOADED. A failed load
// returns the node to UNLOADED so the user can retry once the gateway
// recovers; there is no terminal error state. Re-expansion reuses cached
// children; ReloadChildren is the explicit refresh path.
//
// # Failure surface
//
// Actions never throw into the UI: failures flip the relevant loading flag
// back, record a Notice (rendered as a toast) and, where the caller awaits
// an outcome, return false.
package state
