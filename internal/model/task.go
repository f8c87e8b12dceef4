package model

import (
	"fmt"
	"time"
)

// Task is a single purchase checkout attempt with fixed input parameters.
// The orchestrator treats it as read-only input, it never creates or deletes them.
type Task struct {
	ID                       string
	SiteName                 string
	URL                      string
	ProductCode              string
	Size                     string
	StyleIndex               int
	ShippingAddressID        string
	BillingAddressID         string
	ShippingSpeedIndex       int
	AutoSolveCaptchas        bool
	NotificationEmailAddress string
	CreatedAt                time.Time
}

// Validate validates the task.
func (t Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task id is required: %w", ErrNotValid)
	}
	if t.SiteName == "" {
		return fmt.Errorf("task site name is required: %w", ErrNotValid)
	}
	if t.URL == "" {
		return fmt.Errorf("task url is required: %w", ErrNotValid)
	}
	if t.ShippingAddressID == "" {
		return fmt.Errorf("task shipping address is required: %w", ErrNotValid)
	}
	if t.BillingAddressID == "" {
		return fmt.Errorf("task billing address is required: %w", ErrNotValid)
	}
	if t.StyleIndex < 0 {
		return fmt.Errorf("task style index can't be negative: %w", ErrNotValid)
	}
	if t.ShippingSpeedIndex < 0 {
		return fmt.Errorf("task shipping speed index can't be negative: %w", ErrNotValid)
	}
	return nil
}

// Submission is a request to run a task, queued on the session supervisor.
type Submission struct {
	TaskID string
	// CardFriendlyName is the display name of the card the checkout should use.
	CardFriendlyName string
	SubmittedAt      time.Time
}
