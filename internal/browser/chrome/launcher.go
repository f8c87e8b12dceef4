package chrome

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"

	"github.com/chromedp/chromedp"

	"github.com/slok/cartpool/internal/browser"
	"github.com/slok/cartpool/internal/log"
	"github.com/slok/cartpool/internal/model"
)

const backendName = "chrome"

// LauncherConfig is the configuration for the local Chrome launcher.
type LauncherConfig struct {
	// ExecPath is the browser binary, empty uses chromedp lookup.
	ExecPath     string
	Headless     bool
	WindowWidth  int
	WindowHeight int
	// ExtraFlags are appended to the default browser flags.
	ExtraFlags map[string]any
	Logger     log.Logger
}

func (c *LauncherConfig) defaults() error {
	if c.WindowWidth <= 0 {
		c.WindowWidth = 1366
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = 768
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "browser.Chrome"})
	return nil
}

// Launcher launches a local Chrome process per session.
type Launcher struct {
	execPath     string
	headless     bool
	windowWidth  int
	windowHeight int
	extraFlags   map[string]any
	logger       log.Logger
}

var _ browser.Launcher = (*Launcher)(nil)

// NewLauncher returns a new local Chrome launcher.
func NewLauncher(cfg LauncherConfig) (*Launcher, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Launcher{
		execPath:     cfg.ExecPath,
		headless:     cfg.Headless,
		windowWidth:  cfg.WindowWidth,
		windowHeight: cfg.WindowHeight,
		extraFlags:   cfg.ExtraFlags,
		logger:       cfg.Logger,
	}, nil
}

func (l *Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Session, error) {
	if opts.SessionID == "" {
		return nil, fmt.Errorf("session id is required: %w", model.ErrNotValid)
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if l.execPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(l.execPath))
	}
	allocOpts = append(allocOpts, chromedp.WindowSize(l.windowWidth, l.windowHeight))
	flags := l.flags(opts.Proxy)
	for _, name := range sortedKeys(flags) {
		allocOpts = append(allocOpts, chromedp.Flag(name, flags[name]))
	}

	// The browser outlives the launch request.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)

	s, err := OpenSession(ctx, SessionConfig{
		ID:              opts.SessionID,
		Backend:         backendName,
		AllocatorCtx:    allocCtx,
		AllocatorCancel: allocCancel,
		Logger:          l.logger,
	})
	if err != nil {
		return nil, err
	}

	l.logger.Infof("Launched local browser for session %s", opts.SessionID)
	return s, nil
}

// flags returns the browser command line flags of a session.
func (l *Launcher) flags(proxy *model.Proxy) map[string]any {
	flags := map[string]any{
		"headless":                  l.headless,
		"no-sandbox":                true,
		"disable-setuid-sandbox":    true,
		"disable-web-security":      true,
		"disable-features":          "IsolateOrigins,site-per-process",
		"hide-scrollbars":           l.headless,
		"mute-audio":                true,
		"disable-dev-shm-usage":     true,
		"ignore-certificate-errors": true,
	}
	if proxy != nil {
		flags["proxy-server"] = proxy.ServerURL()
	}
	for k, v := range l.extraFlags {
		flags[k] = v
	}
	return flags
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var execPathCandidates = []string{
	"google-chrome-stable",
	"google-chrome",
	"chromium",
	"chromium-browser",
	"chrome",
	"headless-shell",
}

// Check performs preflight checks for the local Chrome launcher.
func (l *Launcher) Check(ctx context.Context) []model.CheckResult {
	return []model.CheckResult{l.checkBinary()}
}

func (l *Launcher) checkBinary() model.CheckResult {
	if l.execPath != "" {
		info, err := os.Stat(l.execPath)
		if err != nil {
			return model.CheckResult{
				ID:      "browser_binary",
				Message: fmt.Sprintf("Browser binary %s not available: %v", l.execPath, err),
				Status:  model.CheckStatusError,
			}
		}
		if info.Mode()&0111 == 0 {
			return model.CheckResult{
				ID:      "browser_binary",
				Message: fmt.Sprintf("Browser binary %s is not executable", l.execPath),
				Status:  model.CheckStatusError,
			}
		}
		return model.CheckResult{
			ID:      "browser_binary",
			Message: fmt.Sprintf("Browser binary found at %s", l.execPath),
			Status:  model.CheckStatusOK,
		}
	}

	for _, name := range execPathCandidates {
		if p, err := exec.LookPath(name); err == nil {
			return model.CheckResult{
				ID:      "browser_binary",
				Message: fmt.Sprintf("Browser binary found at %s", p),
				Status:  model.CheckStatusOK,
			}
		}
	}

	return model.CheckResult{
		ID:      "browser_binary",
		Message: "No Chrome or Chromium binary found in PATH",
		Status:  model.CheckStatusError,
	}
}
