// Package sovd provides the typed REST client for an SOVD diagnostics
// gateway, plus the wire types shared by the rest of the application.
//
// # Overview
//
// The gateway exposes a discovery tree (areas containing components, apps
// and functions) and per-entity resources: data topics, configurations,
// operations, faults and bulk-data artifacts. Client maps each REST
// resource to one method and does nothing else: no caching, no retries.
// Cache and sequencing policy live in the state package.
//
// # URL normalization
//
// NewClient accepts a bare "host:port" (prefixed with http://) or a full
// URL; path, query, fragment and trailing slashes are stripped. The API
// base path defaults to /api/v1 and tolerates any slash decoration, so
// "api/v1", "/api/v1" and "/api/v1/" build identical request URLs.
//
// # Timeouts
//
// Three request classes carry fixed deadlines:
//
//   - 3s   health probe
//   - 10s  ordinary reads and writes
//   - 30s  long operations (invocation, bulk download, gateway refresh)
//
// A request aborted by its own deadline fails with the ErrTimeout sentinel,
// distinct from gateway-reported failures, which surface as *APIError with
// the message extracted from the response body's error/message/details
// fields (falling back to "HTTP <status>").
//
// # Payloads
//
// Tree entities carry an opaque, kind-specific data map. DecodePayload
// turns it into one of the Payload variants (AreaInfo, ComponentInfo,
// TopicInfo, OperationInfo, FaultGroupInfo) so consumers switch on the
// concrete type instead of probing for keys.
package sovd
