// Package metric provides a Prometheus metrics registry and an
// optional HTTP exposition server for the marketfeed client.
//
// Components register their collectors under a "component.metric" key
// so duplicate registrations are caught early, and the registry can be
// served on /metrics when enabled by configuration.
package metric
