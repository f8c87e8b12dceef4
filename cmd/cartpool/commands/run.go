package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/slok/cartpool/internal/api"
	"github.com/slok/cartpool/internal/app/orchestrator"
	"github.com/slok/cartpool/internal/browser"
	"github.com/slok/cartpool/internal/checkout"
	"github.com/slok/cartpool/internal/checkout/fake"
	"github.com/slok/cartpool/internal/checkout/manual"
	"github.com/slok/cartpool/internal/conventions"
	"github.com/slok/cartpool/internal/log"
	metricsprometheus "github.com/slok/cartpool/internal/metrics/prometheus"
	"github.com/slok/cartpool/internal/model"
	"github.com/slok/cartpool/internal/notify"
	"github.com/slok/cartpool/internal/notify/email"
	"github.com/slok/cartpool/internal/notify/webhook"
	"github.com/slok/cartpool/internal/proxypool"
	"github.com/slok/cartpool/internal/runner"
	"github.com/slok/cartpool/internal/session"
	"github.com/slok/cartpool/internal/tasklog"
)

const (
	environmentLocal  = "local"
	environmentDocker = "docker"

	browserExec   = "exec"
	browserDocker = "docker"
)

type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	parallelTasks int
	queueSize     int
	slotTimeout   time.Duration
	manualHold    time.Duration
	tasks         []string
	listenAddress string
	dryRun        bool

	environment  string
	browserType  string
	headless     bool
	chromePath   string
	dockerImage  string
	dockerNoPull bool
	browserEnv   []string

	proxyIncludeUnused bool
	proxyMaxCandidates int
	proxyCheckTarget   string
	proxyCheckTimeout  time.Duration
	proxyMaxLatency    time.Duration
	proxyCheckInsecure bool

	smtpHost      string
	smtpPort      int
	smtpUsername  string
	smtpPassword  string
	emailFrom     string
	emailTo       string
	webhookURL    string
	notifyTimeout time.Duration
}

// NewRunCommand returns the run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run", "Run the checkout orchestrator and its API.")
	c.Cmd.Flag("parallel-tasks", "Number of tasks running at the same time.").Envar("PARALLEL_TASKS").Default("1").IntVar(&c.parallelTasks)
	c.Cmd.Flag("queue-size", "Number of task runs waiting for a free slot.").Default("1024").IntVar(&c.queueSize)
	c.Cmd.Flag("slot-timeout", "Maximum duration of a task run, the manual hold is not part of it.").Default("5m").DurationVar(&c.slotTimeout)
	c.Cmd.Flag("manual-hold", "How long an incomplete checkout browser is kept open.").Default("5m").DurationVar(&c.manualHold)
	c.Cmd.Flag("task", "Task ID to run on startup (repeatable).").StringsVar(&c.tasks)
	c.Cmd.Flag("listen-address", "Address the HTTP API listens on.").Default(":8080").StringVar(&c.listenAddress)
	c.Cmd.Flag("dry-run", "Enable the \""+fake.SiteName+"\" site, its checkouts always complete without buying anything.").BoolVar(&c.dryRun)

	c.Cmd.Flag("environment", "Where the orchestrator runs, docker uses the image Chrome binary.").Envar("CARTPOOL_ENVIRONMENT").Default(environmentLocal).EnumVar(&c.environment, environmentLocal, environmentDocker)
	c.Cmd.Flag("browser", "Browser backend (exec, docker).").Default(browserExec).EnumVar(&c.browserType, browserExec, browserDocker)
	c.Cmd.Flag("headless", "Run the local browser headless.").BoolVar(&c.headless)
	c.Cmd.Flag("chrome-path", "Chrome binary path for the exec backend.").StringVar(&c.chromePath)
	c.Cmd.Flag("docker-image", "Browser image for the docker backend.").StringVar(&c.dockerImage)
	c.Cmd.Flag("docker-no-pull", "Don't pull the browser image.").BoolVar(&c.dockerNoPull)
	c.Cmd.Flag("browser-env", "Environment variables for the browser containers in KEY=VALUE or KEY form (repeatable).").StringsVar(&c.browserEnv)

	c.Cmd.Flag("proxy-include-unused", "Use never used proxies as candidates too.").BoolVar(&c.proxyIncludeUnused)
	c.Cmd.Flag("proxy-max-candidates", "Maximum proxies checked per acquisition, 0 checks all.").Default("0").IntVar(&c.proxyMaxCandidates)
	c.Cmd.Flag("proxy-check-target", "URL requested through the proxies to check them.").StringVar(&c.proxyCheckTarget)
	c.Cmd.Flag("proxy-check-timeout", "Timeout of a proxy check.").Default("10s").DurationVar(&c.proxyCheckTimeout)
	c.Cmd.Flag("proxy-max-latency", "Proxies slower than this are not used, 0 disables it.").Default("0").DurationVar(&c.proxyMaxLatency)
	c.Cmd.Flag("proxy-check-insecure", "Don't verify the check target TLS certificate.").BoolVar(&c.proxyCheckInsecure)

	c.Cmd.Flag("smtp-host", "SMTP server host, email notifications are disabled without it.").StringVar(&c.smtpHost)
	c.Cmd.Flag("smtp-port", "SMTP server port.").Default("587").IntVar(&c.smtpPort)
	c.Cmd.Flag("smtp-username", "SMTP username.").StringVar(&c.smtpUsername)
	c.Cmd.Flag("smtp-password", "SMTP password.").StringVar(&c.smtpPassword)
	c.Cmd.Flag("email-from", "Email notifications sender address.").StringVar(&c.emailFrom)
	c.Cmd.Flag("email-to", "Email notifications recipient address.").StringVar(&c.emailTo)
	c.Cmd.Flag("webhook-url", "Webhook notifications URL, webhook notifications are disabled without it.").StringVar(&c.webhookURL)
	c.Cmd.Flag("notify-timeout", "Timeout of a single notification send.").Default("30s").DurationVar(&c.notifyTimeout)

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	// Metrics.
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder, err := metricsprometheus.NewRecorder(reg)
	if err != nil {
		return fmt.Errorf("could not create metrics recorder: %w", err)
	}

	launcher, err := c.newLauncher(logger)
	if err != nil {
		return err
	}

	checker, err := proxypool.NewHTTPChecker(proxypool.HTTPCheckerConfig{
		Target:             c.proxyCheckTarget,
		Timeout:            c.proxyCheckTimeout,
		MaxLatency:         c.proxyMaxLatency,
		InsecureSkipVerify: c.proxyCheckInsecure,
		Logger:             logger,
	})
	if err != nil {
		return fmt.Errorf("could not create proxy checker: %w", err)
	}
	pool, err := proxypool.NewPool(proxypool.PoolConfig{
		Repository:      repo,
		Checker:         checker,
		IncludeUnused:   c.proxyIncludeUnused,
		MaxCandidates:   c.proxyMaxCandidates,
		CheckTimeout:    c.proxyCheckTimeout,
		MetricsRecorder: recorder,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("could not create proxy pool: %w", err)
	}

	senders, err := c.newSenders(logger)
	if err != nil {
		return err
	}
	dispatcher, err := notify.NewDispatcher(notify.DispatcherConfig{
		Senders:         senders,
		SendTimeout:     c.notifyTimeout,
		MetricsRecorder: recorder,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("could not create notification dispatcher: %w", err)
	}

	taskLogLevel := logrus.InfoLevel
	if c.rootCmd.Debug {
		taskLogLevel = logrus.DebugLevel
	}
	taskLoggers, err := tasklog.NewFileFactory(tasklog.FileFactoryConfig{
		Dir:    conventions.TaskLogsDir(c.rootCmd.DataDir),
		Level:  taskLogLevel,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create task loggers: %w", err)
	}

	drivers, err := newDrivers(c.dryRun)
	if err != nil {
		return err
	}
	if c.dryRun {
		logger.Warningf("Dry run enabled, %q site checkouts don't buy anything", fake.SiteName)
	}

	taskRunner, err := runner.NewRunner(runner.RunnerConfig{
		Repository:  repo,
		Drivers:     drivers,
		Notifier:    dispatcher,
		TaskLoggers: taskLoggers,
		ManualHold:  c.manualHold,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("could not create runner: %w", err)
	}

	supervisor, err := session.NewSupervisor(session.SupervisorConfig{
		Launcher:       launcher,
		Handler:        taskRunner,
		ProxyPool:      pool,
		MaxConcurrency: c.parallelTasks,
		QueueSize:      c.queueSize,
		SlotTimeout:    c.slotTimeout,
		MaxHold:        c.manualHold,
		OnResult: func(sub model.Submission, res model.RunResult) {
			logger.WithValues(log.Kv{"task-id": sub.TaskID}).Infof("Task finished: %s %s", res.Status, res.Reason)
		},
		MetricsRecorder: recorder,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("could not create supervisor: %w", err)
	}

	svc, err := orchestrator.NewService(orchestrator.ServiceConfig{
		Repository: repo,
		Drivers:    drivers,
		Supervisor: supervisor,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create orchestrator: %w", err)
	}

	handler, err := api.NewHandler(api.HandlerConfig{
		Service:        svc,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("could not create API handler: %w", err)
	}

	initialTasks := make([]orchestrator.EnqueueRequest, 0, len(c.tasks))
	for _, id := range c.tasks {
		initialTasks = append(initialTasks, orchestrator.EnqueueRequest{TaskID: id})
	}

	var g run.Group

	// Orchestrator.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				logger.Infof("Orchestrator running with %d parallel tasks", c.parallelTasks)
				return svc.Run(ctx, orchestrator.RunRequest{Tasks: initialTasks})
			},
			func(_ error) {
				cancel()
			},
		)
	}

	// HTTP API.
	{
		server := &http.Server{
			Addr:              c.listenAddress,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Add(
			func() error {
				logger.Infof("HTTP API listening on %s", c.listenAddress)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server failed: %w", err)
				}
				return nil
			},
			func(_ error) {
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logger.Errorf("Could not shut down HTTP server: %s", err)
				}
			},
		)
	}

	return g.Run()
}

func (c RunCommand) newLauncher(logger log.Logger) (browser.Launcher, error) {
	switch c.browserType {
	case browserDocker:
		browserEnv, err := parseBrowserEnv(c.browserEnv)
		if err != nil {
			return nil, err
		}
		l, err := newDockerLauncher(c.dockerImage, c.dockerNoPull, browserEnv, logger)
		if err != nil {
			return nil, fmt.Errorf("could not create docker browser launcher: %w", err)
		}
		return l, nil
	default:
		execPath := c.chromePath
		if execPath == "" && c.environment == environmentDocker {
			execPath = conventions.ChromeDockerExecPath
		}
		l, err := newChromeLauncher(execPath, c.headless, logger)
		if err != nil {
			return nil, fmt.Errorf("could not create browser launcher: %w", err)
		}
		return l, nil
	}
}

func (c RunCommand) newSenders(logger log.Logger) ([]notify.Sender, error) {
	var senders []notify.Sender

	if c.smtpHost != "" {
		s, err := email.NewSender(email.SenderConfig{
			SMTPHost:         c.smtpHost,
			SMTPPort:         c.smtpPort,
			Username:         c.smtpUsername,
			Password:         c.smtpPassword,
			From:             c.emailFrom,
			DefaultRecipient: c.emailTo,
			Logger:           logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create email sender: %w", err)
		}
		senders = append(senders, s)
	} else {
		logger.Warningf("SMTP host not set, email notifications disabled")
	}

	if c.webhookURL != "" {
		s, err := webhook.NewSender(webhook.SenderConfig{
			URL:    c.webhookURL,
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create webhook sender: %w", err)
		}
		senders = append(senders, s)
	} else {
		logger.Warningf("Webhook URL not set, webhook notifications disabled")
	}

	return senders, nil
}

// newDrivers returns the checkout drivers by site, the fake site is only
// available on dry runs.
func newDrivers(dryRun bool) (*checkout.Registry, error) {
	drivers := checkout.NewRegistry()
	if err := drivers.Register(manual.SiteName, manual.NewDriver()); err != nil {
		return nil, fmt.Errorf("could not register driver: %w", err)
	}
	if dryRun {
		if err := drivers.Register(fake.SiteName, fake.NewDriver(fake.DriverConfig{Complete: true})); err != nil {
			return nil, fmt.Errorf("could not register driver: %w", err)
		}
	}

	return drivers, nil
}
