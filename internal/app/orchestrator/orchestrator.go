package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/slok/cartpool/internal/log"
	"github.com/slok/cartpool/internal/model"
	"github.com/slok/cartpool/internal/session"
	"github.com/slok/cartpool/internal/storage"
)

// Supervisor is the session supervisor the orchestrator feeds.
type Supervisor interface {
	Run(ctx context.Context) error
	Submit(ctx context.Context, sub model.Submission) error
	Registry() *session.Registry
}

// DriverRegistry knows the sites that have a checkout driver.
type DriverRegistry interface {
	Sites() []string
	Validate(sites ...string) error
}

// ServiceConfig is the configuration for the orchestrator service.
type ServiceConfig struct {
	Repository storage.TaskRepository
	Drivers    DriverRegistry
	Supervisor Supervisor
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Drivers == nil {
		return fmt.Errorf("driver registry is required")
	}
	if c.Supervisor == nil {
		return fmt.Errorf("supervisor is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "orchestrator.Service"})
	return nil
}

// Service is the entrypoint of the task execution: it validates the tasks
// against the registered drivers and submits runs to the supervisor.
type Service struct {
	repo       storage.TaskRepository
	drivers    DriverRegistry
	supervisor Supervisor
	logger     log.Logger
}

// NewService returns a new orchestrator service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:       cfg.Repository,
		drivers:    cfg.Drivers,
		supervisor: cfg.Supervisor,
		logger:     cfg.Logger,
	}, nil
}

// Validate checks every stored task points to a site with a registered driver.
func (s *Service) Validate(ctx context.Context) error {
	tasks, err := s.repo.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("could not list tasks: %w", err)
	}

	sites := make([]string, 0, len(tasks))
	for _, t := range tasks {
		sites = append(sites, t.SiteName)
	}
	if err := s.drivers.Validate(sites...); err != nil {
		return fmt.Errorf("tasks with unregistered sites: %w", err)
	}

	s.logger.Debugf("%d tasks validated against sites %v", len(tasks), s.drivers.Sites())
	return nil
}

// RunRequest is the orchestrator run request.
type RunRequest struct {
	// Tasks are submitted as soon as the supervisor starts.
	Tasks []EnqueueRequest
}

// Run validates the tasks, starts the supervisor and blocks until the
// context is cancelled and the running slots are drained.
func (s *Service) Run(ctx context.Context, req RunRequest) error {
	if err := s.Validate(ctx); err != nil {
		return fmt.Errorf("startup validation failed: %w", err)
	}

	errC := make(chan error, 1)
	go func() {
		errC <- s.supervisor.Run(ctx)
	}()

	for _, r := range req.Tasks {
		if err := s.Enqueue(ctx, r); err != nil {
			s.logger.Errorf("Could not enqueue task %s: %s", r.TaskID, err)
		}
	}

	if err := <-errC; err != nil {
		return fmt.Errorf("supervisor failed: %w", err)
	}
	return nil
}

// EnqueueRequest is a request to run a task.
type EnqueueRequest struct {
	TaskID           string
	CardFriendlyName string
}

// Enqueue submits a run of an existing task.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) error {
	if req.TaskID == "" {
		return fmt.Errorf("task id is required: %w", model.ErrNotValid)
	}

	task, err := s.repo.GetTask(ctx, req.TaskID)
	if err != nil {
		return fmt.Errorf("could not get task: %w", err)
	}
	if err := s.drivers.Validate(task.SiteName); err != nil {
		return err
	}

	err = s.supervisor.Submit(ctx, model.Submission{
		TaskID:           task.ID,
		CardFriendlyName: req.CardFriendlyName,
		SubmittedAt:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("could not submit task: %w", err)
	}

	s.logger.Infof("Task %s enqueued", task.ID)
	return nil
}

// ListSessions returns the active browser sessions.
func (s *Service) ListSessions(ctx context.Context) []model.ActiveSession {
	return s.supervisor.Registry().List()
}

// GetSession returns the active browser session of a task.
func (s *Service) GetSession(ctx context.Context, taskID string) (*model.ActiveSession, error) {
	return s.supervisor.Registry().Get(taskID)
}
