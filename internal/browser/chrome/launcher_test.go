package chrome

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/cartpool/internal/browser"
	"github.com/slok/cartpool/internal/model"
)

func TestLauncherFlags(t *testing.T) {
	tests := map[string]struct {
		cfg      LauncherConfig
		proxy    *model.Proxy
		expFlags map[string]any
	}{
		"Without proxy the browser should be visible and not use a proxy server.": {
			cfg: LauncherConfig{},
			expFlags: map[string]any{
				"headless":                  false,
				"no-sandbox":                true,
				"disable-setuid-sandbox":    true,
				"disable-web-security":      true,
				"disable-features":          "IsolateOrigins,site-per-process",
				"hide-scrollbars":           false,
				"mute-audio":                true,
				"disable-dev-shm-usage":     true,
				"ignore-certificate-errors": true,
			},
		},

		"A proxy should be set as proxy server without credentials.": {
			cfg:   LauncherConfig{Headless: true, ExtraFlags: map[string]any{"lang": "en-US", "mute-audio": false}},
			proxy: &model.Proxy{ID: "p1", Scheme: model.ProxySchemeSOCKS5, Host: "10.0.0.1", Port: 1080, Username: "u", Password: "secret"},
			expFlags: map[string]any{
				"headless":                  true,
				"no-sandbox":                true,
				"disable-setuid-sandbox":    true,
				"disable-web-security":      true,
				"disable-features":          "IsolateOrigins,site-per-process",
				"hide-scrollbars":           true,
				"mute-audio":                false,
				"disable-dev-shm-usage":     true,
				"ignore-certificate-errors": true,
				"proxy-server":              "socks5://10.0.0.1:1080",
				"lang":                      "en-US",
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			l, err := NewLauncher(test.cfg)
			require.NoError(t, err)
			assert.Equal(t, test.expFlags, l.flags(test.proxy))
		})
	}
}

func TestLauncherCheck(t *testing.T) {
	dir := t.TempDir()
	notExec := filepath.Join(dir, "chrome")
	require.NoError(t, os.WriteFile(notExec, []byte("#!/bin/sh\n"), 0644))
	execBin := filepath.Join(dir, "chrome-exec")
	require.NoError(t, os.WriteFile(execBin, []byte("#!/bin/sh\n"), 0755))

	tests := map[string]struct {
		execPath  string
		expStatus model.CheckStatus
	}{
		"A missing binary should fail.": {
			execPath:  filepath.Join(dir, "missing"),
			expStatus: model.CheckStatusError,
		},
		"A non executable binary should fail.": {
			execPath:  notExec,
			expStatus: model.CheckStatusError,
		},
		"An executable binary should pass.": {
			execPath:  execBin,
			expStatus: model.CheckStatusOK,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			l, err := NewLauncher(LauncherConfig{ExecPath: test.execPath})
			require.NoError(t, err)

			results := l.Check(context.Background())
			require.Len(t, results, 1)
			assert.Equal(t, "browser_binary", results[0].ID)
			assert.Equal(t, test.expStatus, results[0].Status)
		})
	}
}

func TestLauncherLaunchWithoutSessionID(t *testing.T) {
	l, err := NewLauncher(LauncherConfig{})
	require.NoError(t, err)

	_, err = l.Launch(context.Background(), browser.LaunchOptions{})
	assert.ErrorIs(t, err, model.ErrNotValid)
}

func TestOpenSessionInvalidConfig(t *testing.T) {
	cancelled := false
	_, err := OpenSession(context.Background(), SessionConfig{
		AllocatorCtx:    context.Background(),
		AllocatorCancel: func() { cancelled = true },
	})
	assert.Error(t, err)
	assert.True(t, cancelled)
}
