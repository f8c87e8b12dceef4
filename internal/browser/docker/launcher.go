package docker

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/slok/cartpool/internal/browser"
	"github.com/slok/cartpool/internal/browser/chrome"
	"github.com/slok/cartpool/internal/conventions"
	"github.com/slok/cartpool/internal/log"
	"github.com/slok/cartpool/internal/model"
	"github.com/slok/cartpool/internal/utils/env"
)

// DefaultImage is the default browser image.
const DefaultImage = "chromedp/headless-shell:latest"

const backendName = "docker"

var devtoolsPort = nat.Port(strconv.Itoa(conventions.DevToolsPort) + "/tcp")

// DockerClient is the interface for Docker operations that we use.
// This allows us to mock the Docker client for testing.
type DockerClient interface {
	Ping(ctx context.Context) (types.Ping, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
}

// SessionOpener opens a browser session on a running DevTools endpoint.
type SessionOpener func(ctx context.Context, id, debugURL string, onClose func() error) (browser.Session, error)

// LauncherConfig is the configuration for the Docker launcher.
type LauncherConfig struct {
	Client DockerClient
	// Image is a headless Chrome image exposing DevTools on 9222.
	Image        string
	SkipPull     bool
	StartTimeout time.Duration
	// Env is set on every browser container (e.g. TZ, LANG).
	Env map[string]string
	// SessionOpener is used to connect to the container browser, defaults to chromedp remote allocator.
	SessionOpener SessionOpener
	Logger        log.Logger
}

func (c *LauncherConfig) defaults() error {
	if c.Client == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return fmt.Errorf("could not create Docker client: %w", err)
		}
		c.Client = cli
	}
	if c.Image == "" {
		c.Image = DefaultImage
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "browser.Docker"})
	if c.SessionOpener == nil {
		c.SessionOpener = remoteSessionOpener(c.Logger)
	}
	return nil
}

// Launcher launches a headless browser container per session.
type Launcher struct {
	client       DockerClient
	image        string
	skipPull     bool
	startTimeout time.Duration
	env          []string
	openSession  SessionOpener
	logger       log.Logger
	httpClient   *http.Client

	pullMu      sync.Mutex
	imagePulled bool
}

var _ browser.Launcher = (*Launcher)(nil)

// NewLauncher creates a new Docker launcher.
func NewLauncher(cfg LauncherConfig) (*Launcher, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Launcher{
		client:       cfg.Client,
		image:        cfg.Image,
		skipPull:     cfg.SkipPull,
		startTimeout: cfg.StartTimeout,
		env:          env.ToList(cfg.Env),
		openSession:  cfg.SessionOpener,
		logger:       cfg.Logger,
		httpClient:   &http.Client{Timeout: 2 * time.Second},
	}, nil
}

func (l *Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Session, error) {
	if opts.SessionID == "" {
		return nil, fmt.Errorf("session id is required: %w", model.ErrNotValid)
	}
	containerName := conventions.SessionContainerPrefix + strings.ToLower(opts.SessionID)

	// Step 1: Pull the image
	if err := l.ensureImage(ctx); err != nil {
		return nil, err
	}

	// Step 2: Create container
	l.logger.Debugf("Creating browser container: %s", containerName)
	containerConfig := &container.Config{
		Image:        l.image,
		Cmd:          browserArgs(opts.Proxy),
		Env:          l.env,
		ExposedPorts: nat.PortSet{devtoolsPort: struct{}{}},
		Labels:       map[string]string{conventions.SessionIDLabel: opts.SessionID},
	}
	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			devtoolsPort: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: ""}},
		},
		ShmSize: 1 << 30,
	}
	resp, err := l.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	containerID := resp.ID

	var (
		cleanupOnce sync.Once
		cleanupErr  error
	)
	cleanup := func() error {
		cleanupOnce.Do(func() { cleanupErr = l.removeContainer(containerID) })
		return cleanupErr
	}

	// Step 3: Start the container
	l.logger.Debugf("Starting browser container: %s", containerID)
	if err := l.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		_ = cleanup()
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	// Step 4: Resolve the DevTools endpoint and wait for it.
	hostPort, err := l.devtoolsHostPort(ctx, containerID)
	if err != nil {
		_ = cleanup()
		return nil, err
	}
	debugURL := "ws://" + net.JoinHostPort("127.0.0.1", hostPort)
	if err := l.waitForDevtools(ctx, hostPort); err != nil {
		_ = cleanup()
		return nil, err
	}

	s, err := l.openSession(ctx, opts.SessionID, debugURL, cleanup)
	if err != nil {
		_ = cleanup()
		return nil, fmt.Errorf("could not open browser session: %w", err)
	}

	l.logger.Infof("Launched browser container %s for session %s", containerName, opts.SessionID)
	return s, nil
}

func (l *Launcher) ensureImage(ctx context.Context) error {
	if l.skipPull {
		return nil
	}

	l.pullMu.Lock()
	defer l.pullMu.Unlock()
	if l.imagePulled {
		return nil
	}

	l.logger.Infof("Pulling image: %s", l.image)
	pullResp, err := l.client.ImagePull(ctx, l.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", l.image, err)
	}
	// Consume the pull response to ensure it completes
	_, _ = io.Copy(io.Discard, pullResp)
	pullResp.Close()

	l.imagePulled = true
	return nil
}

func (l *Launcher) devtoolsHostPort(ctx context.Context, containerID string) (string, error) {
	info, err := l.client.ContainerInspect(ctx, containerID)
	if err != nil {
		return "", fmt.Errorf("failed to inspect container %s: %w", containerID, err)
	}
	if info.NetworkSettings == nil {
		return "", fmt.Errorf("container %s has no network settings", containerID)
	}
	bindings := info.NetworkSettings.Ports[devtoolsPort]
	for _, b := range bindings {
		if b.HostPort != "" {
			return b.HostPort, nil
		}
	}

	return "", fmt.Errorf("container %s has no devtools port binding", containerID)
}

func (l *Launcher) waitForDevtools(ctx context.Context, hostPort string) error {
	ctx, cancel := context.WithTimeout(ctx, l.startTimeout)
	defer cancel()

	versionURL := "http://" + net.JoinHostPort("127.0.0.1", hostPort) + "/json/version"
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, versionURL, nil)
		if err != nil {
			return err
		}
		resp, err := l.httpClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("browser devtools not ready on port %s: %w", hostPort, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *Launcher) removeContainer(containerID string) error {
	// Cleanup must happen even if the slot context is gone.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	timeout := 5
	if err := l.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		if !strings.Contains(err.Error(), "is not running") && !strings.Contains(err.Error(), "No such container") {
			l.logger.Warningf("Failed to stop container %s: %s", containerID, err)
		}
	}

	if err := l.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		if strings.Contains(err.Error(), "No such container") {
			return nil
		}
		return fmt.Errorf("failed to remove container %s: %w", containerID, err)
	}

	l.logger.Debugf("Removed browser container: %s", containerID)
	return nil
}

// Check performs preflight checks for the Docker launcher.
func (l *Launcher) Check(ctx context.Context) []model.CheckResult {
	if _, err := l.client.Ping(ctx); err != nil {
		return []model.CheckResult{{
			ID:      "docker_daemon",
			Message: fmt.Sprintf("Docker daemon not reachable: %v", err),
			Status:  model.CheckStatusError,
		}}
	}

	return []model.CheckResult{{
		ID:      "docker_daemon",
		Message: "Docker daemon is reachable",
		Status:  model.CheckStatusOK,
	}}
}

// browserArgs are appended to the headless shell entrypoint.
func browserArgs(proxy *model.Proxy) []string {
	args := []string{
		"--disable-web-security",
		"--disable-features=IsolateOrigins,site-per-process",
		"--disable-dev-shm-usage",
	}
	if proxy != nil {
		args = append(args, "--proxy-server="+proxy.ServerURL())
	}
	return args
}

func remoteSessionOpener(logger log.Logger) SessionOpener {
	return func(ctx context.Context, id, debugURL string, onClose func() error) (browser.Session, error) {
		allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.WithoutCancel(ctx), debugURL)
		return chrome.OpenSession(ctx, chrome.SessionConfig{
			ID:              id,
			Backend:         backendName,
			DebugURL:        debugURL,
			AllocatorCtx:    allocCtx,
			AllocatorCancel: allocCancel,
			OnClose:         onClose,
			Logger:          logger,
		})
	}
}
