package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/slok/cartpool/internal/checkout"
	"github.com/slok/cartpool/internal/conventions"
	"github.com/slok/cartpool/internal/log"
	"github.com/slok/cartpool/internal/model"
	"github.com/slok/cartpool/internal/notify"
	"github.com/slok/cartpool/internal/session"
	"github.com/slok/cartpool/internal/storage"
	"github.com/slok/cartpool/internal/tasklog"
)

const (
	successSubject = "Checkout task successful"
	failureSubject = "Checkout task unsuccessful"
)

// Repository is the persistence the runner reads from.
type Repository interface {
	storage.TaskRepository
	storage.AddressRepository
}

// DriverRegistry resolves the checkout driver of a site.
type DriverRegistry interface {
	Get(site string) (checkout.Driver, error)
}

// RunnerConfig is the configuration for the task runner.
type RunnerConfig struct {
	Repository Repository
	Drivers    DriverRegistry
	Notifier   notify.Notifier
	// TaskLoggers creates the logger of every task run.
	TaskLoggers tasklog.Factory
	// ManualHold is how long an incomplete checkout session is kept open.
	ManualHold time.Duration
	Logger     log.Logger
}

func (c *RunnerConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Drivers == nil {
		return fmt.Errorf("driver registry is required")
	}
	if c.Notifier == nil {
		c.Notifier = notify.Noop
	}
	if c.ManualHold < 0 {
		return fmt.Errorf("manual hold can't be negative")
	}
	if c.ManualHold == 0 {
		c.ManualHold = conventions.ManualHoldMinutes * time.Minute
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "runner.Runner"})
	if c.TaskLoggers == nil {
		c.TaskLoggers = tasklog.NewStdFactory(c.Logger)
	}
	return nil
}

// Runner runs one task inside a supervisor slot: it resolves the task,
// drives its checkout and notifies the outcome.
type Runner struct {
	repo        Repository
	drivers     DriverRegistry
	notifier    notify.Notifier
	taskLoggers tasklog.Factory
	manualHold  time.Duration
	logger      log.Logger
}

var _ session.Handler = (*Runner)(nil)

// NewRunner returns a new task runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Runner{
		repo:        cfg.Repository,
		drivers:     cfg.Drivers,
		notifier:    cfg.Notifier,
		taskLoggers: cfg.TaskLoggers,
		manualHold:  cfg.ManualHold,
		logger:      cfg.Logger,
	}, nil
}

// Handle runs the task of the slot. Failures are never notified, only
// checkout outcomes are.
func (r *Runner) Handle(ctx context.Context, slot session.Slot) model.RunResult {
	taskID := slot.Submission.TaskID
	logger := r.logger.WithValues(log.Kv{"task-id": taskID, "slot-id": slot.ID})

	task, err := r.repo.GetTask(ctx, taskID)
	if err != nil {
		logger.Errorf("Could not resolve task: %s", err)
		return failure(ctx, model.RunFailureReasonResolution, fmt.Errorf("could not get task: %w", err))
	}

	driver, err := r.drivers.Get(task.SiteName)
	if err != nil {
		logger.Errorf("Could not resolve checkout driver: %s", err)
		return failure(ctx, model.RunFailureReasonNoDriver, err)
	}

	tlog, err := r.taskLoggers.NewTaskLogger(task.ID)
	if err != nil {
		logger.Warningf("Could not create task logger, using default logger: %s", err)
		tlog = nopCloser{Logger: logger}
	}
	defer func() {
		if err := tlog.Close(); err != nil {
			logger.Warningf("Could not close task logger: %s", err)
		}
	}()
	tlog.Infof("Starting checkout task on %s for %s", task.SiteName, task.URL)

	shipping, err := r.repo.GetAddress(ctx, task.ShippingAddressID)
	if err != nil {
		tlog.Errorf("Could not resolve shipping address: %s", err)
		return failure(ctx, model.RunFailureReasonResolution, fmt.Errorf("could not get shipping address: %w", err))
	}
	billing, err := r.repo.GetAddress(ctx, task.BillingAddressID)
	if err != nil {
		tlog.Errorf("Could not resolve billing address: %s", err)
		return failure(ctx, model.RunFailureReasonResolution, fmt.Errorf("could not get billing address: %w", err))
	}

	if slot.Proxy != nil {
		if creds := slot.Proxy.Credentials(); creds != nil {
			if err := slot.Session.Authenticate(ctx, *creds); err != nil {
				tlog.Errorf("Could not authenticate proxy: %s", err)
				return failure(ctx, model.RunFailureReasonSession, fmt.Errorf("could not authenticate proxy: %w", err))
			}
		}
		tlog.Infof("Using proxy: %s", slot.Proxy.Redacted())
	}

	outcome, err := driver.GuestCheckout(ctx, checkout.Request{
		Logger:                   tlog,
		Session:                  slot.Session,
		URL:                      task.URL,
		ProductCode:              task.ProductCode,
		Proxy:                    slot.Proxy,
		StyleIndex:               task.StyleIndex,
		Size:                     task.Size,
		ShippingAddress:          *shipping,
		ShippingSpeedIndex:       task.ShippingSpeedIndex,
		BillingAddress:           *billing,
		AutoSolveCaptchas:        task.AutoSolveCaptchas,
		NotificationEmailAddress: task.NotificationEmailAddress,
		CardFriendlyName:         slot.Submission.CardFriendlyName,
	})
	if err != nil {
		if ctx.Err() != nil {
			tlog.Errorf("Checkout task timed out: %s", err)
		} else {
			tlog.Errorf("Checkout task failed: %s", err)
		}
		return failure(ctx, model.RunFailureReasonDriver, fmt.Errorf("checkout driver failed: %w", err))
	}

	n := notify.Notification{
		TaskID:    task.ID,
		Recipient: task.NotificationEmailAddress,
		Complete:  outcome.Complete,
	}
	res := model.RunResult{Status: model.RunStatusComplete, Notified: true}
	if outcome.Complete {
		n.Subject = successSubject
		n.Message = fmt.Sprintf("The checkout task for %s size %s has completed.", task.URL, task.Size)
	} else {
		n.Subject = failureSubject
		n.Message = fmt.Sprintf("The checkout task for %s size %s has a checkout error. Please open the browser to check on it within %s.", task.URL, task.Size, humanizeMinutes(r.manualHold))
		res.Status = model.RunStatusIncomplete
		res.HoldFor = r.manualHold
	}

	// The outcome is notified even if the slot deadline is reached meanwhile.
	r.notifier.Notify(context.WithoutCancel(ctx), n)
	tlog.Infof("%s", n.Message)

	return res
}

// failure returns a failed result, a reached deadline always ends as a timeout.
func failure(ctx context.Context, reason model.RunFailureReason, err error) model.RunResult {
	if ctx.Err() != nil {
		return model.Failed(model.RunFailureReasonTimeout, fmt.Errorf("%w: %w", session.ErrSlotTimeout, err))
	}
	return model.Failed(reason, err)
}

func humanizeMinutes(d time.Duration) string {
	m := int(d.Round(time.Minute) / time.Minute)
	if m <= 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}

type nopCloser struct{ log.Logger }

func (nopCloser) Close() error { return nil }
