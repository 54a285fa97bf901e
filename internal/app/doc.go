// Package app assembles the application: configuration and preferences
// loading, the gateway client, the state store, the background fault
// poller and the terminal UI.
//
// # Startup Order
//
// Run resolves the server URL (flag, then remembered server, then config
// default), builds the store with a dial function closing over the HTTP
// client, starts the fault poller and hands control to the UI until the
// context is cancelled.
//
// # Fault Polling
//
// The poller owns the refresh cadence but none of the fault data; it calls
// into the store, which deduplicates overlapping refreshes itself. Failures
// back off exponentially and recovery is immediate on the next success.
package app
