package chrome

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/chromedp"

	"github.com/slok/cartpool/internal/browser"
	"github.com/slok/cartpool/internal/log"
	"github.com/slok/cartpool/internal/model"
)

const closeTimeout = 10 * time.Second

// SessionConfig is the configuration to open a session on an already
// created chromedp allocator.
type SessionConfig struct {
	ID       string
	Backend  string
	DebugURL string
	// AllocatorCtx is the chromedp allocator context, the session owns it.
	AllocatorCtx    context.Context
	AllocatorCancel context.CancelFunc
	// OnClose is called after the browser has been closed.
	OnClose func() error
	Logger  log.Logger
}

func (c *SessionConfig) defaults() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.AllocatorCtx == nil || c.AllocatorCancel == nil {
		return fmt.Errorf("allocator is required")
	}
	if c.Backend == "" {
		c.Backend = "chrome"
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "browser.Session", "session-id": c.ID})
	return nil
}

// Session is a chromedp browser session.
type Session struct {
	id          string
	backend     string
	debugURL    string
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	onClose     func() error
	logger      log.Logger

	closeOnce sync.Once
	closeErr  error
}

var _ browser.Session = (*Session)(nil)

// OpenSession starts the browser on the allocator and opens the first tab.
// ctx only bounds the start, the session lives until closed.
func OpenSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	if err := cfg.defaults(); err != nil {
		cfg.AllocatorCancel()
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := cfg.Logger
	// chromedp.Cancel already waits for the browser, the session only needs
	// to cancel its context afterwards.
	sessionCtx, cancel := context.WithCancel(cfg.AllocatorCtx)
	browserCtx, _ := chromedp.NewContext(sessionCtx,
		chromedp.WithLogf(logger.Debugf),
		chromedp.WithErrorf(logger.Errorf),
	)

	s := &Session{
		id:          cfg.ID,
		backend:     cfg.Backend,
		debugURL:    cfg.DebugURL,
		ctx:         browserCtx,
		cancel:      cancel,
		allocCancel: cfg.AllocatorCancel,
		onClose:     cfg.OnClose,
		logger:      logger,
	}

	// The first run allocates the browser and its first tab, chromedp ties
	// both to the context of that run so it must be the session one.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()

	select {
	case err := <-started:
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("could not start browser: %w", err)
		}
	case <-ctx.Done():
		s.cancel()
		<-started
		_ = s.Close()
		return nil, fmt.Errorf("could not start browser: %w", ctx.Err())
	}

	logger.Debugf("Browser session opened")
	return s, nil
}

func (s *Session) ID() string       { return s.id }
func (s *Session) Backend() string  { return s.backend }
func (s *Session) DebugURL() string { return s.debugURL }

func (s *Session) Authenticate(ctx context.Context, creds model.ProxyCredentials) error {
	chromedp.ListenTarget(s.ctx, func(ev any) {
		switch ev := ev.(type) {
		case *fetch.EventAuthRequired:
			go s.runListenerAction(fetch.ContinueWithAuth(ev.RequestID, &fetch.AuthChallengeResponse{
				Response: fetch.AuthChallengeResponseResponseProvideCredentials,
				Username: creds.Username,
				Password: creds.Password,
			}))
		case *fetch.EventRequestPaused:
			go s.runListenerAction(fetch.ContinueRequest(ev.RequestID))
		}
	})

	if err := s.Run(ctx, fetch.Enable().WithHandleAuthRequests(true)); err != nil {
		return fmt.Errorf("could not enable proxy authentication: %w", err)
	}

	return nil
}

// runListenerAction runs an action from a target listener, these can't
// block the listener so they run on the tab executor directly.
func (s *Session) runListenerAction(action chromedp.Action) {
	c := chromedp.FromContext(s.ctx)
	if c == nil || c.Target == nil {
		return
	}
	if err := action.Do(cdp.WithExecutor(s.ctx, c.Target)); err != nil && s.ctx.Err() == nil {
		s.logger.Warningf("Could not answer browser event: %s", err)
	}
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.Run(ctx, chromedp.Navigate(url))
}

func (s *Session) Run(ctx context.Context, actions ...chromedp.Action) error {
	if s.ctx.Err() != nil {
		return browser.ErrClosed
	}

	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.ctx.Err() != nil {
			return browser.ErrClosed
		}
		return err
	}

	return nil
}

func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		// Graceful close first, then kill whatever is left of the allocator.
		ctx, cancel := context.WithTimeout(s.ctx, closeTimeout)
		if err := chromedp.Cancel(ctx); err != nil {
			s.logger.Debugf("Browser graceful close failed: %s", err)
		}
		cancel()
		s.cancel()
		s.allocCancel()

		if s.onClose != nil {
			s.closeErr = s.onClose()
		}
		s.logger.Debugf("Browser session closed")
	})

	return s.closeErr
}
