// Package stream implements the reconnecting websocket client and the
// subscription reconciliation state machine.
//
// The Client owns one connection at a time. Per connection it runs a
// single-goroutine event loop over four sources: the operator command
// queue, inbound frames, the stats timer and the liveness-pong timer.
// All reconciliation state (desired set, active set, pending request
// table) is owned by that goroutine, so the Reconciler needs no locks.
//
// Desired-set mutations are optimistic and rolled back when the server
// rejects the request. The active set is rebuilt from scratch after
// every reconnect by replaying the full desired set in one subscribe
// request.
package stream
