// Package buffer provides a generic, thread-safe bounded buffer with
// configurable overflow policies.
//
// The command queue between the operator ingress and the stream event
// loop is the main consumer. Policies:
//
//   - Block: writers wait for space (the default for the command
//     queue - a full queue applies backpressure to the producer)
//   - DropOldest: the oldest queued item is discarded
//   - DropNewest: the incoming item is discarded
//
// Statistics are always collected; Prometheus export is optional via
// the WithMetrics functional option.
package buffer
