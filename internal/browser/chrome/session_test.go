//go:build linux

package chrome_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/cartpool/internal/browser"
	"github.com/slok/cartpool/internal/browser/chrome"
	"github.com/slok/cartpool/internal/browser/chrome/chrometest"
	"github.com/slok/cartpool/internal/model"
)

// fakeChrome writes a browser binary that announces the DevTools server and
// stays alive until it's killed, it returns the binary and its pid file.
func fakeChrome(t *testing.T, wsURL string) (execPath, pidFile string) {
	t.Helper()

	dir := t.TempDir()
	pidFile = filepath.Join(dir, "chrome.pid")
	execPath = filepath.Join(dir, "chrome")
	script := fmt.Sprintf("#!/bin/sh\necho $$ > %q\necho \"DevTools listening on %s\"\nexec sleep 60\n", pidFile, wsURL)
	require.NoError(t, os.WriteFile(execPath, []byte(script), 0755))
	return execPath, pidFile
}

func readPID(t *testing.T, pidFile string) int {
	t.Helper()

	var pid int
	require.Eventually(t, func() bool {
		b, err := os.ReadFile(pidFile)
		if err != nil {
			return false
		}
		pid, err = strconv.Atoi(strings.TrimSpace(string(b)))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	return pid
}

func processAlive(pid int) bool { return syscall.Kill(pid, 0) == nil }

func killFromPIDFile(pidFile string) func() {
	return func() {
		b, err := os.ReadFile(pidFile)
		if err != nil {
			return
		}
		if pid, err := strconv.Atoi(strings.TrimSpace(string(b))); err == nil {
			_ = syscall.Kill(pid, syscall.SIGTERM)
		}
	}
}

func evaluate(expr string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, err := runtime.Evaluate(expr).Do(ctx)
		return err
	})
}

func TestLauncherSessionLifecycle(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var pidFile string
	srv := chrometest.NewServer(t, func() { killFromPIDFile(pidFile)() })
	execPath, pidFile := fakeChrome(t, srv.WebSocketURL())

	l, err := chrome.NewLauncher(chrome.LauncherConfig{ExecPath: execPath, Headless: true})
	require.NoError(err)

	// The launch context ends as soon as the launch returns, like a slot request does.
	launchCtx, launchCancel := context.WithTimeout(context.Background(), 10*time.Second)
	s, err := l.Launch(launchCtx, browser.LaunchOptions{SessionID: "01SESSION"})
	launchCancel()
	require.NoError(err)

	pid := readPID(t, pidFile)
	time.Sleep(100 * time.Millisecond)
	assert.True(processAlive(pid), "browser should be alive after the launch")
	assert.Equal(1, srv.Connections())

	// Later actions run on the same browser.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(s.Run(ctx, evaluate("document.title")))
	require.NoError(s.Authenticate(ctx, model.ProxyCredentials{Username: "u", Password: "secret"}))

	var exprs []string
	for _, c := range srv.Calls("Runtime.evaluate") {
		var p struct {
			Expression string `json:"expression"`
		}
		require.NoError(json.Unmarshal(c.Params, &p))
		exprs = append(exprs, p.Expression)
	}
	assert.Contains(exprs, "document.title")

	fetchCalls := srv.Calls("Fetch.enable")
	require.Len(fetchCalls, 1)
	assert.Equal("SESSION1", fetchCalls[0].SessionID)
	assert.Contains(string(fetchCalls[0].Params), `"handleAuthRequests":true`)

	// Closing terminates the browser.
	require.NoError(s.Close())
	assert.Eventually(func() bool { return !processAlive(pid) }, 5*time.Second, 10*time.Millisecond)
	assert.ErrorIs(s.Run(ctx, evaluate("1")), browser.ErrClosed)
}

func TestLauncherLaunchCancelled(t *testing.T) {
	srv := chrometest.NewServer(t, nil)
	execPath, _ := fakeChrome(t, srv.WebSocketURL())

	l, err := chrome.NewLauncher(chrome.LauncherConfig{ExecPath: execPath, Headless: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Launch(ctx, browser.LaunchOptions{SessionID: "01SESSION"})
	assert.Error(t, err)
}
