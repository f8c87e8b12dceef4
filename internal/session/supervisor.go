package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/cartpool/internal/browser"
	"github.com/slok/cartpool/internal/log"
	"github.com/slok/cartpool/internal/metrics"
	"github.com/slok/cartpool/internal/model"
	"github.com/slok/cartpool/internal/proxypool"
)

var (
	// ErrDraining is returned when submitting to a supervisor that is shutting down.
	ErrDraining = errors.New("supervisor is draining")
	// ErrSlotTimeout is the failure of the slots that reached their deadline.
	ErrSlotTimeout = errors.New("slot timeout")
)

// Slot is a reserved execution slot with its isolated resources.
type Slot struct {
	ID         string
	Submission model.Submission
	Session    browser.Session
	// Proxy is the proxy the session goes through, nil when running without proxy.
	Proxy *model.Proxy
}

// Handler runs the task of a slot, the context deadline is the slot deadline.
type Handler interface {
	Handle(ctx context.Context, slot Slot) model.RunResult
}

// HandlerFunc is a helper to implement Handler with functions.
type HandlerFunc func(ctx context.Context, slot Slot) model.RunResult

func (f HandlerFunc) Handle(ctx context.Context, slot Slot) model.RunResult { return f(ctx, slot) }

// ProxyAcquirer knows how to acquire proxy leases.
type ProxyAcquirer interface {
	Acquire(ctx context.Context) (*proxypool.Lease, error)
}

// SupervisorConfig is the configuration for the session supervisor.
type SupervisorConfig struct {
	Launcher browser.Launcher
	Handler  Handler
	// ProxyPool is optional, without it sessions run without proxy.
	ProxyPool ProxyAcquirer
	Registry  *Registry
	// MaxConcurrency is the number of slots.
	MaxConcurrency int
	// QueueSize is the number of submissions waiting for a slot before Submit blocks.
	QueueSize int
	// SlotTimeout is the wall-clock ceiling of a slot run, the manual hold is not part of it.
	SlotTimeout time.Duration
	// MaxHold is the ceiling of the manual hold a handler can ask for.
	MaxHold time.Duration
	// AbandonGrace is how long a timed out handler has to return after its session is closed.
	AbandonGrace time.Duration
	// OnResult is called with the result of every slot.
	OnResult        func(sub model.Submission, res model.RunResult)
	MetricsRecorder metrics.Recorder
	Logger          log.Logger
}

func (c *SupervisorConfig) defaults() error {
	if c.Launcher == nil {
		return fmt.Errorf("launcher is required")
	}
	if c.Handler == nil {
		return fmt.Errorf("handler is required")
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max concurrency can't be negative")
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.SlotTimeout <= 0 {
		c.SlotTimeout = 5 * time.Minute
	}
	if c.MaxHold < 0 {
		return fmt.Errorf("max hold can't be negative")
	}
	if c.MaxHold == 0 {
		c.MaxHold = 30 * time.Minute
	}
	if c.AbandonGrace <= 0 {
		c.AbandonGrace = 10 * time.Second
	}
	if c.Registry == nil {
		c.Registry = NewRegistry()
	}
	if c.OnResult == nil {
		c.OnResult = func(model.Submission, model.RunResult) {}
	}
	if c.MetricsRecorder == nil {
		c.MetricsRecorder = metrics.Noop
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "session.Supervisor"})
	return nil
}

// Supervisor owns a fixed number of slots that run the submitted tasks in
// FIFO order, each one with its own browser session and proxy.
type Supervisor struct {
	launcher       browser.Launcher
	handler        Handler
	proxyPool      ProxyAcquirer
	registry       *Registry
	maxConcurrency int
	slotTimeout    time.Duration
	maxHold        time.Duration
	abandonGrace   time.Duration
	onResult       func(sub model.Submission, res model.RunResult)
	metrics        metrics.Recorder
	logger         log.Logger

	queue    chan model.Submission
	stopped  chan struct{}
	stopOnce sync.Once
	// submitMu makes the draining switch wait for in progress submits.
	submitMu sync.RWMutex
	draining atomic.Bool
	running  atomic.Bool

	pendingMu sync.Mutex
	pending   map[string]struct{}
}

// NewSupervisor returns a new session supervisor.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Supervisor{
		launcher:       cfg.Launcher,
		handler:        cfg.Handler,
		proxyPool:      cfg.ProxyPool,
		registry:       cfg.Registry,
		maxConcurrency: cfg.MaxConcurrency,
		slotTimeout:    cfg.SlotTimeout,
		maxHold:        cfg.MaxHold,
		abandonGrace:   cfg.AbandonGrace,
		onResult:       cfg.OnResult,
		metrics:        cfg.MetricsRecorder,
		logger:         cfg.Logger,
		queue:          make(chan model.Submission, cfg.QueueSize),
		stopped:        make(chan struct{}),
		pending:        map[string]struct{}{},
	}, nil
}

// Registry returns the active sessions registry.
func (s *Supervisor) Registry() *Registry { return s.registry }

// Submit queues a task run. It blocks while the queue is full, a task
// can't be submitted again while it's queued or running.
func (s *Supervisor) Submit(ctx context.Context, sub model.Submission) error {
	if sub.TaskID == "" {
		return fmt.Errorf("task id is required: %w", model.ErrNotValid)
	}
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = time.Now().UTC()
	}

	s.submitMu.RLock()
	defer s.submitMu.RUnlock()

	if s.draining.Load() {
		return ErrDraining
	}
	if !s.addPending(sub.TaskID) {
		return fmt.Errorf("task %s is already queued or running: %w", sub.TaskID, model.ErrAlreadyExists)
	}

	select {
	case s.queue <- sub:
		s.logger.WithValues(log.Kv{"task-id": sub.TaskID}).Debugf("Task queued")
		return nil
	case <-ctx.Done():
		s.removePending(sub.TaskID)
		return ctx.Err()
	case <-s.stopped:
		s.removePending(sub.TaskID)
		return ErrDraining
	}
}

// Pending returns the number of queued or running tasks.
func (s *Supervisor) Pending() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pending)
}

// Run starts the slots and blocks until the context is cancelled. Then it
// drains: new submissions are rejected, queued ones discarded and it waits
// for the running slots to end.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("supervisor already running")
	}
	if s.draining.Load() {
		return ErrDraining
	}

	s.logger.Infof("Starting %d slots", s.maxConcurrency)
	var wg sync.WaitGroup
	for range s.maxConcurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx)
		}()
	}

	<-ctx.Done()
	s.logger.Infof("Draining supervisor")
	s.drain()
	wg.Wait()

	// Workers may race a last receive with the cancellation.
	s.discardQueued()
	s.logger.Infof("Supervisor drained")
	return nil
}

func (s *Supervisor) drain() {
	s.stopOnce.Do(func() { close(s.stopped) })

	s.submitMu.Lock()
	s.draining.Store(true)
	s.submitMu.Unlock()

	s.discardQueued()
}

func (s *Supervisor) discardQueued() {
	for {
		select {
		case sub := <-s.queue:
			s.discard(sub)
		default:
			return
		}
	}
}

func (s *Supervisor) discard(sub model.Submission) {
	s.removePending(sub.TaskID)
	s.logger.WithValues(log.Kv{"task-id": sub.TaskID}).Warningf("Queued task discarded, supervisor is draining")
}

func (s *Supervisor) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sub := <-s.queue:
			if ctx.Err() != nil {
				s.discard(sub)
				return
			}
			s.runSlot(ctx, sub)
		}
	}
}

func (s *Supervisor) runSlot(ctx context.Context, sub model.Submission) {
	defer s.removePending(sub.TaskID)

	slotID := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	logger := s.logger.WithValues(log.Kv{"slot-id": slotID, "task-id": sub.TaskID})

	s.metrics.AddInflightSlots(ctx, 1)
	defer s.metrics.AddInflightSlots(ctx, -1)

	start := time.Now()
	res := s.executeSlot(ctx, slotID, sub, logger)
	duration := time.Since(start)

	s.metrics.ObserveSlotResult(ctx, string(res.Status), string(res.Reason), duration)
	switch res.Status {
	case model.RunStatusFailed:
		logger.Errorf("Slot finished in %s: %s (%s): %v", duration, res.Status, res.Reason, res.Err)
	default:
		logger.Infof("Slot finished in %s: %s", duration, res.Status)
	}

	s.onResult(sub, res)
}

func (s *Supervisor) executeSlot(ctx context.Context, slotID string, sub model.Submission, logger log.Logger) model.RunResult {
	// Running slots are not cancelled on shutdown, they end by themselves or by their deadline.
	slotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.slotTimeout)
	defer cancel()

	var (
		lease   *proxypool.Lease
		proxy   *model.Proxy
		sess    browser.Session
		tracked bool
	)
	defer func() {
		if sess != nil {
			if err := sess.Close(); err != nil {
				logger.Warningf("Could not close browser session: %s", err)
			}
		}
		if tracked {
			s.registry.Remove(sub.TaskID)
		}
		if lease != nil {
			lease.Release()
		}
	}()

	if s.proxyPool != nil {
		l, err := s.proxyPool.Acquire(slotCtx)
		if err != nil {
			return s.slotFailure(slotCtx, model.RunFailureReasonSession, fmt.Errorf("could not acquire proxy: %w", err))
		}
		if l != nil {
			lease = l
			p := l.Proxy()
			proxy = &p
			logger.Debugf("Proxy %s attached to slot", p.Redacted())
		} else {
			logger.Warningf("No proxy available, running without proxy")
		}
	}

	var err error
	sess, err = s.launcher.Launch(slotCtx, browser.LaunchOptions{SessionID: slotID, Proxy: proxy})
	if err != nil {
		sess = nil
		return s.slotFailure(slotCtx, model.RunFailureReasonSession, fmt.Errorf("could not launch browser session: %w", err))
	}

	active := model.ActiveSession{
		TaskID:    sub.TaskID,
		SlotID:    slotID,
		SessionID: sess.ID(),
		Backend:   sess.Backend(),
		DebugURL:  sess.DebugURL(),
		StartedAt: time.Now().UTC(),
	}
	if proxy != nil {
		active.ProxyID = proxy.ID
	}
	if err := s.registry.Add(active); err != nil {
		return model.Failed(model.RunFailureReasonSession, fmt.Errorf("could not register session: %w", err))
	}
	tracked = true

	slot := Slot{ID: slotID, Submission: sub, Session: sess, Proxy: proxy}
	res, sessionClosed := s.handle(slotCtx, slot, logger)

	if res.HoldFor > 0 && !sessionClosed {
		s.hold(ctx, sub.TaskID, res.HoldFor, logger)
	}

	return res
}

// handle runs the handler under the slot deadline. When the deadline is
// reached the session is closed to unblock the handler, if it still
// doesn't return it's abandoned.
func (s *Supervisor) handle(ctx context.Context, slot Slot, logger log.Logger) (model.RunResult, bool) {
	done := make(chan model.RunResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- model.Failed(model.RunFailureReasonPanic, fmt.Errorf("handler panicked: %v", r))
			}
		}()
		done <- s.handler.Handle(ctx, slot)
	}()

	select {
	case res := <-done:
		if ctx.Err() != nil && res.Status == model.RunStatusFailed {
			return model.Failed(model.RunFailureReasonTimeout, fmt.Errorf("%w: %w", ErrSlotTimeout, res.Err)), false
		}
		return res, false
	case <-ctx.Done():
	}

	logger.Errorf("Slot timeout reached after %s, closing browser session", s.slotTimeout)
	if err := slot.Session.Close(); err != nil {
		logger.Warningf("Could not close browser session: %s", err)
	}

	timer := time.NewTimer(s.abandonGrace)
	defer timer.Stop()
	select {
	case res := <-done:
		if res.Status == model.RunStatusFailed {
			res = model.Failed(model.RunFailureReasonTimeout, fmt.Errorf("%w: %w", ErrSlotTimeout, res.Err))
		}
		res.HoldFor = 0
		return res, true
	case <-timer.C:
		logger.Errorf("Handler didn't return %s after closing its session, abandoning it", s.abandonGrace)
		return model.Failed(model.RunFailureReasonTimeout, ErrSlotTimeout), true
	}
}

// hold keeps the slot and its session for manual intervention, it lasts
// at most the max hold and the supervisor shutdown cuts it.
func (s *Supervisor) hold(ctx context.Context, taskID string, d time.Duration, logger log.Logger) {
	if d > s.maxHold {
		logger.Warningf("Requested hold of %s is over the %s ceiling", d, s.maxHold)
		d = s.maxHold
	}

	until := time.Now().Add(d).UTC()
	if err := s.registry.SetHold(taskID, until); err != nil {
		logger.Warningf("Could not mark session hold: %s", err)
	}

	logger.Infof("Holding browser session for manual intervention until %s", until.Format(time.RFC3339))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		logger.Warningf("Session hold cut by shutdown")
	}
}

func (s *Supervisor) slotFailure(ctx context.Context, reason model.RunFailureReason, err error) model.RunResult {
	if ctx.Err() != nil {
		return model.Failed(model.RunFailureReasonTimeout, fmt.Errorf("%w: %w", ErrSlotTimeout, err))
	}
	return model.Failed(reason, err)
}

func (s *Supervisor) addPending(taskID string) bool {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	if _, ok := s.pending[taskID]; ok {
		return false
	}
	s.pending[taskID] = struct{}{}
	return true
}

func (s *Supervisor) removePending(taskID string) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	delete(s.pending, taskID)
}
