package api

import (
	"time"

	"github.com/slok/cartpool/internal/model"
)

// RunTaskRequest is the optional body of a task run request.
type RunTaskRequest struct {
	CardFriendlyName string `json:"card_friendly_name,omitempty"`
}

// RunTaskResponse is the response of a task run request.
type RunTaskResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// Session is an active browser session.
type Session struct {
	TaskID    string     `json:"task_id"`
	SlotID    string     `json:"slot_id"`
	SessionID string     `json:"session_id"`
	Backend   string     `json:"backend"`
	DebugURL  string     `json:"debug_url,omitempty"`
	ProxyID   string     `json:"proxy_id,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	HoldUntil *time.Time `json:"hold_until,omitempty"`
}

// ListSessionsResponse is the response of the active sessions listing.
type ListSessionsResponse struct {
	Sessions []Session `json:"sessions"`
}

// ErrorResponse is the body of the failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

func mapSessionToAPI(s model.ActiveSession) Session {
	return Session{
		TaskID:    s.TaskID,
		SlotID:    s.SlotID,
		SessionID: s.SessionID,
		Backend:   s.Backend,
		DebugURL:  s.DebugURL,
		ProxyID:   s.ProxyID,
		StartedAt: s.StartedAt,
		HoldUntil: s.HoldUntil,
	}
}

func mapSessionToModel(s Session) model.ActiveSession {
	return model.ActiveSession{
		TaskID:    s.TaskID,
		SlotID:    s.SlotID,
		SessionID: s.SessionID,
		Backend:   s.Backend,
		DebugURL:  s.DebugURL,
		ProxyID:   s.ProxyID,
		StartedAt: s.StartedAt,
		HoldUntil: s.HoldUntil,
	}
}
