package proxypool

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"

	"github.com/slok/cartpool/internal/log"
	"github.com/slok/cartpool/internal/model"
)

// Checker knows how to check the liveness of a proxy.
type Checker interface {
	// Check returns the latency of the check or an error if the proxy is not usable.
	Check(ctx context.Context, p model.Proxy) (time.Duration, error)
}

// CheckerFunc is a helper to implement Checker with functions.
type CheckerFunc func(ctx context.Context, p model.Proxy) (time.Duration, error)

func (f CheckerFunc) Check(ctx context.Context, p model.Proxy) (time.Duration, error) {
	return f(ctx, p)
}

const defaultCheckTarget = "https://www.google.com/generate_204"

// HTTPCheckerConfig is the configuration for the HTTP proxy checker.
type HTTPCheckerConfig struct {
	// Target is the URL requested through the proxy.
	Target string
	// Timeout is the maximum duration of a single check.
	Timeout time.Duration
	// MaxLatency marks as failed the proxies slower than this, 0 disables it.
	MaxLatency time.Duration
	// InsecureSkipVerify doesn't verify the target TLS certificate, for
	// targets behind intercepting proxies.
	InsecureSkipVerify bool
	Logger             log.Logger
}

func (c *HTTPCheckerConfig) defaults() error {
	if c.Target == "" {
		c.Target = defaultCheckTarget
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxLatency < 0 {
		return fmt.Errorf("max latency can't be negative")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "proxypool.HTTPChecker"})
	return nil
}

// HTTPChecker checks proxies making a real HTTP request through them.
// HTTP(S) proxies are used as HTTP proxies and SOCKS5 proxies as the
// transport dialer.
type HTTPChecker struct {
	target     string
	timeout    time.Duration
	maxLatency time.Duration
	insecure   bool
	logger     log.Logger
}

// NewHTTPChecker returns a new HTTP proxy checker.
func NewHTTPChecker(cfg HTTPCheckerConfig) (*HTTPChecker, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &HTTPChecker{
		target:     cfg.Target,
		timeout:    cfg.Timeout,
		maxLatency: cfg.MaxLatency,
		insecure:   cfg.InsecureSkipVerify,
		logger:     cfg.Logger,
	}, nil
}

func (c *HTTPChecker) Check(ctx context.Context, p model.Proxy) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	transport, err := c.transport(p)
	if err != nil {
		return 0, err
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		// Redirects are a valid answer, we only care that the proxy relays.
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.target, nil)
	if err != nil {
		return 0, fmt.Errorf("could not create check request: %w", err)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("proxy %s request failed: %w", p.Redacted(), err)
	}
	resp.Body.Close()
	latency := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return latency, fmt.Errorf("proxy %s received non-successful status code: %d", p.Redacted(), resp.StatusCode)
	}
	if c.maxLatency > 0 && latency > c.maxLatency {
		return latency, fmt.Errorf("proxy %s latency %s over %s", p.Redacted(), latency, c.maxLatency)
	}

	c.logger.Debugf("Proxy %s checked in %s", p.Redacted(), latency)
	return latency, nil
}

func (c *HTTPChecker) transport(p model.Proxy) (*http.Transport, error) {
	dialer := &net.Dialer{Timeout: c.timeout}
	t := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: c.insecure},
		TLSHandshakeTimeout: c.timeout / 2,
		DisableKeepAlives:   true,
	}

	switch p.Scheme {
	case model.ProxySchemeSOCKS5:
		var auth *proxy.Auth
		if creds := p.Credentials(); creds != nil {
			auth = &proxy.Auth{User: creds.Username, Password: creds.Password}
		}
		socks, err := proxy.SOCKS5("tcp", p.Address(), auth, dialer)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		cd, ok := socks.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("SOCKS5 dialer is not context aware")
		}
		t.DialContext = cd.DialContext
	default:
		t.Proxy = http.ProxyURL(p.URL())
	}

	return t, nil
}
