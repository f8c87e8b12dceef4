package proxypool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/slok/cartpool/internal/log"
	"github.com/slok/cartpool/internal/metrics"
	"github.com/slok/cartpool/internal/model"
	"github.com/slok/cartpool/internal/storage"
)

// PoolConfig is the configuration for the proxy pool.
type PoolConfig struct {
	Repository storage.ProxyRepository
	Checker    Checker
	// IncludeUnused makes never used proxies candidates too, by default
	// only the previously used (known) proxies are.
	IncludeUnused bool
	// MaxCandidates is the maximum number of candidates checked per acquisition, 0 checks all.
	MaxCandidates int
	// CheckTimeout bounds every candidate check, independent from the caller deadline.
	CheckTimeout    time.Duration
	MetricsRecorder metrics.Recorder
	Logger          log.Logger
}

func (c *PoolConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Checker == nil {
		return fmt.Errorf("checker is required")
	}
	if c.MaxCandidates < 0 {
		return fmt.Errorf("max candidates can't be negative")
	}
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = 15 * time.Second
	}
	if c.MetricsRecorder == nil {
		c.MetricsRecorder = metrics.Noop
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "proxypool.Pool"})
	return nil
}

// Pool hands out validated proxies to slots, making sure a proxy is
// attached to at most one slot at a time.
type Pool struct {
	repo          storage.ProxyRepository
	checker       Checker
	includeUnused bool
	maxCandidates int
	checkTimeout  time.Duration
	metrics       metrics.Recorder
	logger        log.Logger

	mu      sync.Mutex
	claimed map[string]struct{}
}

// NewPool returns a new proxy pool.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Pool{
		repo:          cfg.Repository,
		checker:       cfg.Checker,
		includeUnused: cfg.IncludeUnused,
		maxCandidates: cfg.MaxCandidates,
		checkTimeout:  cfg.CheckTimeout,
		metrics:       cfg.MetricsRecorder,
		logger:        cfg.Logger,
		claimed:       map[string]struct{}{},
	}, nil
}

const (
	acquireResultAcquired = "acquired"
	acquireResultNone     = "none"
	acquireResultError    = "error"
)

// Acquire claims and validates a proxy. It returns a nil lease when no
// candidate passes the check, callers should continue without proxy.
// The only error returned is the context one.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	var filter model.ProxyFilter
	if !p.includeUnused {
		used := true
		filter.HasBeenUsed = &used
	}

	candidates, err := p.repo.ListProxies(ctx, filter)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Warningf("Could not list proxy candidates: %s", err)
		p.metrics.IncProxyAcquisition(ctx, acquireResultError)
		return nil, nil
	}

	checked := 0
	for _, c := range candidates {
		if p.maxCandidates > 0 && checked >= p.maxCandidates {
			break
		}
		// Chrome can't authenticate against SOCKS5 proxies.
		if c.Scheme == model.ProxySchemeSOCKS5 && c.Credentials() != nil {
			p.logger.WithValues(log.Kv{"proxy-id": c.ID}).Warningf("Proxy candidate skipped, the browser doesn't support authenticated SOCKS5 proxies")
			continue
		}
		if !p.claim(c.ID) {
			continue
		}
		checked++

		logger := p.logger.WithValues(log.Kv{"proxy-id": c.ID})
		if err := p.validate(ctx, c); err != nil {
			p.unclaim(c.ID)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warningf("Proxy candidate discarded: %s", err)
			continue
		}

		if err := p.repo.MarkProxyUsed(ctx, c.ID); err != nil {
			p.unclaim(c.ID)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warningf("Could not mark proxy as used: %s", err)
			continue
		}
		c.HasBeenUsed = true

		logger.Debugf("Proxy acquired")
		p.metrics.IncProxyAcquisition(ctx, acquireResultAcquired)
		return &Lease{pool: p, proxy: c}, nil
	}

	p.logger.Infof("No usable proxy found between %d candidates", len(candidates))
	p.metrics.IncProxyAcquisition(ctx, acquireResultNone)
	return nil, nil
}

func (p *Pool) validate(ctx context.Context, c model.Proxy) error {
	ctx, cancel := context.WithTimeout(ctx, p.checkTimeout)
	defer cancel()

	_, err := p.checker.Check(ctx, c)
	return err
}

// Claimed returns the IDs of the proxies currently claimed by slots.
func (p *Pool) Claimed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.claimed))
	for id := range p.claimed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *Pool) claim(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.claimed[id]; ok {
		return false
	}
	p.claimed[id] = struct{}{}
	return true
}

func (p *Pool) unclaim(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.claimed, id)
}

// Lease is a proxy claimed by a slot until released.
type Lease struct {
	pool  *Pool
	proxy model.Proxy
	once  sync.Once
}

// Proxy returns the leased proxy.
func (l *Lease) Proxy() model.Proxy { return l.proxy }

// Release returns the proxy to the pool, it's safe to call multiple times.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.pool.unclaim(l.proxy.ID)
		l.pool.logger.WithValues(log.Kv{"proxy-id": l.proxy.ID}).Debugf("Proxy released")
	})
}
