package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slok/cartpool/internal/log"
	"github.com/slok/cartpool/internal/metrics"
)

// Notification is the completion notification of a task run.
type Notification struct {
	TaskID string
	// Recipient is the address of the task owner, sinks may ignore it.
	Recipient string
	Subject   string
	Message   string
	Complete  bool
}

// Sender is a notification sink.
type Sender interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Notifier knows how to notify task run completions.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc is a helper to implement Notifier with functions.
type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Noop is a notifier that doesn't notify.
var Noop = NotifierFunc(func(context.Context, Notification) {})

// DispatcherConfig is the configuration for the notification dispatcher.
type DispatcherConfig struct {
	Senders []Sender
	// SendTimeout bounds every sink send.
	SendTimeout     time.Duration
	MetricsRecorder metrics.Recorder
	Logger          log.Logger
}

func (c *DispatcherConfig) defaults() error {
	for i, s := range c.Senders {
		if s == nil {
			return fmt.Errorf("sender %d is nil", i)
		}
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	if c.MetricsRecorder == nil {
		c.MetricsRecorder = metrics.Noop
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "notify.Dispatcher"})
	return nil
}

// Dispatcher sends notifications to all the sinks at the same time. A
// failing sink doesn't affect the others and its error is only logged,
// sends are never retried.
type Dispatcher struct {
	senders     []Sender
	sendTimeout time.Duration
	metrics     metrics.Recorder
	logger      log.Logger
}

var _ Notifier = (*Dispatcher)(nil)

// NewDispatcher returns a new notification dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Dispatcher{
		senders:     cfg.Senders,
		sendTimeout: cfg.SendTimeout,
		metrics:     cfg.MetricsRecorder,
		logger:      cfg.Logger,
	}, nil
}

// Notify blocks until every sink has finished.
func (d *Dispatcher) Notify(ctx context.Context, n Notification) {
	logger := d.logger.WithValues(log.Kv{"task-id": n.TaskID})

	var wg sync.WaitGroup
	for _, s := range d.senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := d.send(ctx, s, n)
			d.metrics.IncNotification(ctx, s.Name(), err == nil)
			if err != nil {
				logger.Errorf("Notification through %s failed: %s", s.Name(), err)
				return
			}
			logger.Debugf("Notification sent through %s", s.Name())
		}()
	}
	wg.Wait()
}

func (d *Dispatcher) send(ctx context.Context, s Sender, n Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	return s.Send(ctx, n)
}
