package model

import "time"

// CheckoutOutcome is the result signal of a checkout driver invocation.
type CheckoutOutcome struct {
	Complete bool
}

// RunStatus is the final status of a single task run.
type RunStatus string

const (
	// RunStatusComplete indicates the checkout was completed.
	RunStatusComplete RunStatus = "complete"
	// RunStatusIncomplete indicates the driver ended without completing the checkout,
	// the session is held open for manual intervention.
	RunStatusIncomplete RunStatus = "incomplete"
	// RunStatusFailed indicates the run ended before a checkout outcome existed.
	RunStatusFailed RunStatus = "failed"
)

// RunFailureReason categorizes failed runs.
type RunFailureReason string

const (
	RunFailureReasonNone       RunFailureReason = ""
	RunFailureReasonResolution RunFailureReason = "resolution"
	RunFailureReasonNoDriver   RunFailureReason = "no_driver"
	RunFailureReasonSession    RunFailureReason = "session"
	RunFailureReasonDriver     RunFailureReason = "driver"
	RunFailureReasonTimeout    RunFailureReason = "timeout"
	RunFailureReasonPanic      RunFailureReason = "panic"
)

// RunResult is the explicit outcome of one task run, consumed uniformly by
// the supervisor, logging and metrics.
type RunResult struct {
	Status RunStatus
	Reason RunFailureReason
	Err    error
	// HoldFor is how long the slot keeps the session open after the run
	// so an operator can intervene manually.
	HoldFor time.Duration
	// Notified is true when the completion notification was dispatched.
	Notified bool
}

// Failed returns a failed run result.
func Failed(reason RunFailureReason, err error) RunResult {
	return RunResult{Status: RunStatusFailed, Reason: reason, Err: err}
}
