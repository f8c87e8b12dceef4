package model

import "time"

// ActiveSession describes a live browser session bound to a running task.
type ActiveSession struct {
	TaskID    string
	SlotID    string
	SessionID string
	Backend   string
	// DebugURL is the remote debugging endpoint of the browser, if any, so
	// operators can attach to the session.
	DebugURL  string
	ProxyID   string
	StartedAt time.Time
	// HoldUntil is set when the session is being held open for manual intervention.
	HoldUntil *time.Time
}
