package service

// Outcome names how a streaming connection ended.
type Outcome string

const (
	OutcomePlaceholder Outcome = "placeholder" // no live producers; one placeholder frame sent
	OutcomeSuperseded  Outcome = "superseded"  // a newer generation took over; terminal frame sent
	OutcomeEnded       Outcome = "ended"       // status stream observed the end sentinel
	OutcomeClosed      Outcome = "closed"      // client went away
	OutcomeFailed      Outcome = "failed"
)
