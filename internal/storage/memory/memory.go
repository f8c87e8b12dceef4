package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/slok/cartpool/internal/log"
	"github.com/slok/cartpool/internal/model"
	"github.com/slok/cartpool/internal/storage"
)

var _ storage.Repository = (*Repository)(nil)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.Repository.
type Repository struct {
	tasks     map[string]model.Task
	addresses map[string]model.Address
	proxies   map[string]model.Proxy
	mu        sync.RWMutex
	logger    log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		tasks:     make(map[string]model.Task),
		addresses: make(map[string]model.Address),
		proxies:   make(map[string]model.Proxy),
		logger:    cfg.Logger,
	}, nil
}

// CreateTask creates a new task in the repository.
func (r *Repository) CreateTask(ctx context.Context, t model.Task) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[t.ID]; ok {
		return fmt.Errorf("task %s: %w", t.ID, model.ErrAlreadyExists)
	}
	for _, id := range []string{t.ShippingAddressID, t.BillingAddressID} {
		if _, ok := r.addresses[id]; !ok {
			return fmt.Errorf("task %s references missing address %s: %w", t.ID, id, model.ErrNotValid)
		}
	}

	r.tasks[t.ID] = t
	r.logger.Debugf("Created task in repository: %s", t.ID)

	return nil
}

// GetTask retrieves a task by ID.
func (r *Repository) GetTask(ctx context.Context, id string) (*model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}

	return &t, nil
}

// ListTasks returns all tasks, newest first.
func (r *Repository) ListTasks(ctx context.Context) ([]model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := make([]model.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	return tasks, nil
}

// CreateAddress creates a new address in the repository.
func (r *Repository) CreateAddress(ctx context.Context, a model.Address) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.addresses[a.ID]; ok {
		return fmt.Errorf("address %s: %w", a.ID, model.ErrAlreadyExists)
	}

	r.addresses[a.ID] = a
	r.logger.Debugf("Created address in repository: %s", a.ID)

	return nil
}

// GetAddress retrieves an address by ID.
func (r *Repository) GetAddress(ctx context.Context, id string) (*model.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.addresses[id]
	if !ok {
		return nil, fmt.Errorf("address %s: %w", id, model.ErrNotFound)
	}

	return &a, nil
}

// CreateProxy creates a new proxy in the repository.
func (r *Repository) CreateProxy(ctx context.Context, p model.Proxy) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid proxy: %w", err)
	}
	if p.Scheme == "" {
		p.Scheme = model.ProxySchemeHTTP
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.proxies[p.ID]; ok {
		return fmt.Errorf("proxy %s: %w", p.ID, model.ErrAlreadyExists)
	}
	for _, existing := range r.proxies {
		if existing.Scheme == p.Scheme && existing.Host == p.Host && existing.Port == p.Port && existing.Username == p.Username {
			return fmt.Errorf("proxy %s: %w", p.Redacted(), model.ErrAlreadyExists)
		}
	}

	r.proxies[p.ID] = p
	r.logger.Debugf("Created proxy in repository: %s", p.ID)

	return nil
}

// ListProxies returns the proxies matching the filter, oldest first.
func (r *Repository) ListProxies(ctx context.Context, filter model.ProxyFilter) ([]model.Proxy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	proxies := make([]model.Proxy, 0, len(r.proxies))
	for _, p := range r.proxies {
		if filter.HasBeenUsed != nil && p.HasBeenUsed != *filter.HasBeenUsed {
			continue
		}
		proxies = append(proxies, p)
	}
	sort.Slice(proxies, func(i, j int) bool {
		if proxies[i].CreatedAt.Equal(proxies[j].CreatedAt) {
			return proxies[i].ID < proxies[j].ID
		}
		return proxies[i].CreatedAt.Before(proxies[j].CreatedAt)
	})

	return proxies, nil
}

// MarkProxyUsed marks a proxy as used.
func (r *Repository) MarkProxyUsed(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.proxies[id]
	if !ok {
		return fmt.Errorf("proxy %s: %w", id, model.ErrNotFound)
	}
	p.HasBeenUsed = true
	r.proxies[id] = p
	r.logger.Debugf("Marked proxy as used: %s", id)

	return nil
}
