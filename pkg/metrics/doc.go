// Package metrics exposes Prometheus counters for extraction runs.
//
// The collector implements the protocol call observer and the agent strategy
// observer, so wiring it into a run is a matter of attaching it to both.
package metrics
