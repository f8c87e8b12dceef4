package checkout

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownSite is returned when there is no driver for a site.
var ErrUnknownSite = errors.New("unknown site")

// Registry maps site names to their checkout drivers.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{drivers: map[string]Driver{}}
}

// Register registers the driver of a site.
func (r *Registry) Register(site string, d Driver) error {
	if site == "" {
		return fmt.Errorf("site name is required")
	}
	if d == nil {
		return fmt.Errorf("driver for site %q is nil", site)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.drivers[site]; ok {
		return fmt.Errorf("driver for site %q already registered", site)
	}
	r.drivers[site] = d
	return nil
}

// Get returns the driver of a site.
func (r *Registry) Get(site string) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.drivers[site]
	if !ok {
		return nil, fmt.Errorf("site %q: %w", site, ErrUnknownSite)
	}
	return d, nil
}

// Sites returns the registered site names sorted.
func (r *Registry) Sites() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sites := make([]string, 0, len(r.drivers))
	for s := range r.drivers {
		sites = append(sites, s)
	}
	sort.Strings(sites)
	return sites
}

// Validate checks all the sites have a driver, it returns all the unknown ones at once.
func (r *Registry) Validate(sites ...string) error {
	var errs []error
	seen := map[string]bool{}
	for _, s := range sites {
		if seen[s] {
			continue
		}
		seen[s] = true
		if _, err := r.Get(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
