package browser

import (
	"context"
	"errors"

	"github.com/chromedp/chromedp"

	"github.com/slok/cartpool/internal/model"
)

// ErrClosed is returned when operating on a closed session.
var ErrClosed = errors.New("browser session closed")

// Session is an isolated browser execution context owned by a single slot.
type Session interface {
	ID() string
	// Backend is the name of the launcher that created the session.
	Backend() string
	// DebugURL is the DevTools endpoint to inspect the session, if any.
	DebugURL() string
	// Authenticate answers the proxy authentication challenges with the credentials.
	Authenticate(ctx context.Context, creds model.ProxyCredentials) error
	Navigate(ctx context.Context, url string) error
	// Run runs browser actions on the session page. Cancelling ctx aborts
	// the actions but doesn't close the session.
	Run(ctx context.Context, actions ...chromedp.Action) error
	// Close terminates the session, it's safe to call multiple times.
	Close() error
}

// LaunchOptions are the options of a new session.
type LaunchOptions struct {
	SessionID string
	// Proxy is configured as the browser proxy server, nil for direct connections.
	Proxy *model.Proxy
}

// Launcher knows how to launch isolated browser sessions.
type Launcher interface {
	// Check performs preflight checks and returns the results.
	Check(ctx context.Context) []model.CheckResult
	Launch(ctx context.Context, opts LaunchOptions) (Session, error)
}
