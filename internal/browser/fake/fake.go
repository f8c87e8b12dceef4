package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"

	"github.com/slok/cartpool/internal/browser"
	"github.com/slok/cartpool/internal/log"
	"github.com/slok/cartpool/internal/model"
)

const backendName = "fake"

// LauncherConfig is the configuration for the fake launcher.
type LauncherConfig struct {
	// LaunchErr is returned by every launch when set.
	LaunchErr error
	// AuthenticateErr and NavigateErr are returned by the launched sessions when set.
	AuthenticateErr error
	NavigateErr     error
	Logger          log.Logger
}

func (c *LauncherConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "browser.Fake"})
	return nil
}

// Launcher is a fake implementation of the browser.Launcher interface.
// It simulates sessions without starting any browser.
type Launcher struct {
	cfg       LauncherConfig
	logger    log.Logger
	mu        sync.Mutex
	sessions  []*Session
	active    int
	maxActive int
}

var _ browser.Launcher = (*Launcher)(nil)

// NewLauncher creates a new fake launcher.
func NewLauncher(cfg LauncherConfig) (*Launcher, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Launcher{cfg: cfg, logger: cfg.Logger}, nil
}

func (l *Launcher) Check(ctx context.Context) []model.CheckResult {
	return []model.CheckResult{{
		ID:      "fake_browser",
		Message: "Fake browser is always available",
		Status:  model.CheckStatusOK,
	}}
}

func (l *Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.cfg.LaunchErr != nil {
		return nil, l.cfg.LaunchErr
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	s := &Session{
		id:          opts.SessionID,
		proxy:       opts.Proxy,
		authErr:     l.cfg.AuthenticateErr,
		navigateErr: l.cfg.NavigateErr,
		launcher:    l,
		closed:      make(chan struct{}),
	}
	l.sessions = append(l.sessions, s)
	l.active++
	if l.active > l.maxActive {
		l.maxActive = l.active
	}

	l.logger.Debugf("Fake session launched: %s", opts.SessionID)
	return s, nil
}

// Sessions returns all the launched sessions.
func (l *Launcher) Sessions() []*Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Session{}, l.sessions...)
}

// Active returns the number of open sessions.
func (l *Launcher) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// MaxActive returns the peak of simultaneously open sessions.
func (l *Launcher) MaxActive() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxActive
}

func (l *Launcher) sessionClosed() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active--
}

// Session is a fake browser session that records the operations made on it.
type Session struct {
	id          string
	proxy       *model.Proxy
	authErr     error
	navigateErr error
	launcher    *Launcher

	mu          sync.Mutex
	navigations []string
	auths       []model.ProxyCredentials
	runs        int
	closed      chan struct{}
	closeOnce   sync.Once
}

var _ browser.Session = (*Session)(nil)

func (s *Session) ID() string       { return s.id }
func (s *Session) Backend() string  { return backendName }
func (s *Session) DebugURL() string { return "" }

// Proxy returns the proxy the session was launched with.
func (s *Session) Proxy() *model.Proxy { return s.proxy }

func (s *Session) Authenticate(ctx context.Context, creds model.ProxyCredentials) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if s.authErr != nil {
		return s.authErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.auths = append(s.auths, creds)
	return nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if s.navigateErr != nil {
		return s.navigateErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigations = append(s.navigations, url)
	return nil
}

// Run doesn't execute the actions, it only records the call.
func (s *Session) Run(ctx context.Context, actions ...chromedp.Action) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	return nil
}

func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.launcher.sessionClosed()
	})
	return nil
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} { return s.closed }

// Closed returns true if the session has been closed.
func (s *Session) Closed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Navigations returns the navigated URLs.
func (s *Session) Navigations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.navigations...)
}

// Authentications returns the credentials used to authenticate.
func (s *Session) Authentications() []model.ProxyCredentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ProxyCredentials{}, s.auths...)
}

// Runs returns the number of Run calls.
func (s *Session) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func (s *Session) check(ctx context.Context) error {
	if s.Closed() {
		return browser.ErrClosed
	}
	return ctx.Err()
}
