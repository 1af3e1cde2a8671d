// Package metrics is the instrumentation facade for the gateway. The server
// counts protocol events (challenges issued, payments accepted, rejected,
// unavailable, replayed) and times the operations behind them (oracle reads,
// verification, completion streaming).
package metrics

import "time"

// Recorder receives gateway events and operation timings.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// Event names passed to IncCounter.
const (
	EventChallengeIssued    = "challenge_issued"
	EventPaymentAccepted    = "payment_accepted"
	EventPaymentRejected    = "payment_rejected"
	EventPaymentUnavailable = "payment_unavailable"
	EventPaymentReplayed    = "payment_replayed"
	EventStreamCompleted    = "stream_completed"
	EventStreamFailed       = "stream_failed"
)

// Operation names passed to ObserveLatency.
const (
	OpVerify = "verify"
	OpStream = "stream"
)
