package metrics

import (
	"context"
	"time"
)

// Recorder knows how to record the orchestrator metrics.
type Recorder interface {
	// AddInflightSlots adds (or subtracts with negative quantities) running slots.
	AddInflightSlots(ctx context.Context, quantity int)
	ObserveSlotResult(ctx context.Context, status, reason string, duration time.Duration)
	IncProxyAcquisition(ctx context.Context, result string)
	IncNotification(ctx context.Context, sink string, success bool)
}

// Noop is a recorder that doesn't record anything.
const Noop = noop(0)

type noop int

var _ Recorder = Noop

func (noop) AddInflightSlots(context.Context, int)                            {}
func (noop) ObserveSlotResult(context.Context, string, string, time.Duration) {}
func (noop) IncProxyAcquisition(context.Context, string)                      {}
func (noop) IncNotification(context.Context, string, bool)                    {}
