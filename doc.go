// Package reactor provides the process-wide ambient pieces shared by the
// reactor runtime: structured logging, layered configuration, the error
// hook used for late/undeliverable errors, and the small set of error
// kinds the operator catalog raises.
//
// The flow-control core lives in reactor/rx, the scheduling core in
// reactor/executor. Both import this package for logging, configuration
// and the shared error vocabulary; neither is imported back, so there is
// no cycle.
package reactor
