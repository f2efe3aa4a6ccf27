// Package marketfeed is a long-lived streaming market-data client that
// maintains a dynamic set of topic subscriptions over one persistent
// websocket connection.
//
// # Architecture
//
//	┌──────────────┐   bounded queue   ┌──────────────────────────┐
//	│ command      │ ────────────────► │ stream.Client            │
//	│ (stdin)      │                   │  event loop (single      │
//	└──────────────┘                   │  goroutine, sole writer) │
//	┌──────────────┐   frame channel   │   ├─ Reconciler          │
//	│ websocket    │ ────────────────► │   ├─ Monitor             │
//	│ reader       │                   │   └─ event classifier    │
//	└──────────────┘                   └──────────┬───────────────┘
//	                                              │ domain events
//	                                   ┌──────────▼───────────────┐
//	                                   │ event.Handler            │
//	                                   │ (log / NATS publish)     │
//	                                   └──────────────────────────┘
//
// The reconciler tracks which topics the operator wants (desired)
// versus which the server has confirmed (active), correlating
// request/response pairs by id and rolling back optimistic state when
// the server rejects a request. The connection manager re-establishes
// the full desired set after every reconnect.
//
// Supporting packages: config (JSON configuration), errors (classified
// error handling), metric (Prometheus registry and exposition),
// pkg/buffer (bounded queues with overflow policies), pkg/retry
// (backoff helper), natsclient (event-forwarding publisher), session
// (listen-key credential lifecycle).
package marketfeed
