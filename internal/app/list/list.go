package list

import (
	"context"
	"fmt"

	"github.com/slok/cartpool/internal/log"
	"github.com/slok/cartpool/internal/model"
	"github.com/slok/cartpool/internal/storage"
)

// ServiceConfig is the configuration for the list service.
type ServiceConfig struct {
	Repository storage.Repository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "list.Service"})

	return nil
}

// Service lists the stored tasks and proxies.
type Service struct {
	repo   storage.Repository
	logger log.Logger
}

// NewService creates a new list service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// TasksRequest represents the task list request parameters.
type TasksRequest struct {
	// SiteFilter is an optional filter to only show tasks of this site.
	SiteFilter string
}

// ListTasks lists the tasks, newest first, optionally filtered by site.
func (s *Service) ListTasks(ctx context.Context, req TasksRequest) ([]model.Task, error) {
	tasks, err := s.repo.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list tasks: %w", err)
	}

	if req.SiteFilter != "" {
		filtered := make([]model.Task, 0, len(tasks))
		for _, t := range tasks {
			if t.SiteName == req.SiteFilter {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}

	s.logger.Debugf("found %d tasks", len(tasks))
	return tasks, nil
}

// ProxiesRequest represents the proxy list request parameters.
type ProxiesRequest struct {
	// UsedFilter is an optional filter on the proxy used flag.
	UsedFilter *bool
}

// ListProxies lists the proxies, oldest first.
func (s *Service) ListProxies(ctx context.Context, req ProxiesRequest) ([]model.Proxy, error) {
	proxies, err := s.repo.ListProxies(ctx, model.ProxyFilter{HasBeenUsed: req.UsedFilter})
	if err != nil {
		return nil, fmt.Errorf("could not list proxies: %w", err)
	}

	s.logger.Debugf("found %d proxies", len(proxies))
	return proxies, nil
}
