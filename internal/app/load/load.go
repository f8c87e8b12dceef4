package load

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/cartpool/internal/log"
	"github.com/slok/cartpool/internal/model"
	"github.com/slok/cartpool/internal/storage"
	storageio "github.com/slok/cartpool/internal/storage/io"
)

// ServiceConfig is the configuration for the load service.
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "load.Service"})

	return nil
}

// Service seeds the persistence with the entities of an inventory.
type Service struct {
	repo   storage.Repository
	logger log.Logger
}

// NewService creates a new load service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the load request parameters.
type Request struct {
	Inventory storageio.Inventory
	// IgnoreExisting skips the entities that already exist instead of failing.
	IgnoreExisting bool
}

// Response is the load result.
type Response struct {
	Created int
	Skipped int
}

// Run stores the inventory entities, addresses first so tasks can reference them.
func (s *Service) Run(ctx context.Context, req Request) (*Response, error) {
	var resp Response
	now := time.Now().UTC()

	store := func(kind, id string, create func() error) error {
		err := create()
		switch {
		case err == nil:
			resp.Created++
			s.logger.Debugf("Created %s %s", kind, id)
			return nil
		case req.IgnoreExisting && errors.Is(err, model.ErrAlreadyExists):
			resp.Skipped++
			s.logger.Infof("Skipping already existing %s %s", kind, id)
			return nil
		default:
			return fmt.Errorf("could not create %s %s: %w", kind, id, err)
		}
	}

	for _, a := range req.Inventory.Addresses {
		if err := store("address", a.ID, func() error { return s.repo.CreateAddress(ctx, a) }); err != nil {
			return nil, err
		}
	}

	// Distinct creation times keep the listings order stable.
	for i, t := range req.Inventory.Tasks {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now.Add(time.Duration(i) * time.Millisecond)
		}
		if err := store("task", t.ID, func() error { return s.repo.CreateTask(ctx, t) }); err != nil {
			return nil, err
		}
	}

	for i, p := range req.Inventory.Proxies {
		if p.ID == "" {
			p.ID = ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now.Add(time.Duration(i) * time.Millisecond)
		}
		if err := store("proxy", p.ID, func() error { return s.repo.CreateProxy(ctx, p) }); err != nil {
			return nil, err
		}
	}

	s.logger.Infof("Inventory loaded: %d created, %d skipped", resp.Created, resp.Skipped)
	return &resp, nil
}
