package commands

import (
	"fmt"

	"github.com/slok/cartpool/internal/browser/chrome"
	"github.com/slok/cartpool/internal/browser/docker"
	"github.com/slok/cartpool/internal/log"
	"github.com/slok/cartpool/internal/utils/env"
)

func newChromeLauncher(execPath string, headless bool, logger log.Logger) (*chrome.Launcher, error) {
	return chrome.NewLauncher(chrome.LauncherConfig{
		ExecPath: execPath,
		Headless: headless,
		Logger:   logger,
	})
}

func newDockerLauncher(image string, skipPull bool, browserEnv map[string]string, logger log.Logger) (*docker.Launcher, error) {
	return docker.NewLauncher(docker.LauncherConfig{
		Image:    image,
		SkipPull: skipPull,
		Env:      browserEnv,
		Logger:   logger,
	})
}

func parseBrowserEnv(specs []string) (map[string]string, error) {
	browserEnv, err := env.ParseSpecs(specs)
	if err != nil {
		return nil, fmt.Errorf("invalid browser env: %w", err)
	}
	return browserEnv, nil
}
