package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockrecs/internal/alphavantage"
	"stockrecs/internal/browser"
	"stockrecs/internal/coordinator"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", dir)
	return dir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "stockrecs dev\n", out)
}

func TestRun_InvalidConfig(t *testing.T) {
	isolate(t)
	t.Setenv("STOCKRECS_MAX_RESULTS", "0")

	_, _, err := execute(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_results must be at least 1")
}

func TestRun_UnknownLogLevel(t *testing.T) {
	isolate(t)

	_, _, err := execute(t, "run", "--log-level", "chatty")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown log level "chatty"`)
}

func TestRun_MissingSourceFails(t *testing.T) {
	dir := isolate(t)
	t.Setenv("STOCKRECS_SOURCE_PATH", filepath.Join(dir, "missing.txt"))
	t.Setenv("STOCKRECS_STORE_PATH", filepath.Join(dir, "wyniki.json"))
	t.Setenv("STOCKRECS_FETCHER", "alphavantage")
	t.Setenv("ALPHAVANTAGE_API_KEY", "key")

	_, _, err := execute(t, "run", "--quiet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source file not found")
	assert.NoFileExists(t, filepath.Join(dir, "wyniki.json"))
}

func TestNewFetcher(t *testing.T) {
	isolate(t)

	a, err := newApp("", "", &bytes.Buffer{})
	require.NoError(t, err)

	f, err := a.newFetcher()
	require.NoError(t, err)
	assert.IsType(t, &browser.MSNFetcher{}, f)

	a.cfg.Fetcher = "alphavantage"
	f, err = a.newFetcher()
	require.NoError(t, err)
	assert.IsType(t, &alphavantage.Fetcher{}, f)

	a.cfg.Fetcher = "telnet"
	_, err = a.newFetcher()
	assert.Error(t, err)
}

func TestServe_StartupRunAndShutdown(t *testing.T) {
	dir := isolate(t)
	t.Setenv("STOCKRECS_SERVER_ADDR", "127.0.0.1:0")
	t.Setenv("STOCKRECS_STORE_PATH", filepath.Join(dir, "wyniki.json"))

	a, err := newApp("", "", &bytes.Buffer{})
	require.NoError(t, err)

	ran := make(chan struct{})
	run := func(ctx context.Context) (coordinator.Summary, error) {
		close(ran)
		return coordinator.Summary{}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- serve(ctx, a, run, true) }()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("startup run was not submitted")
	}
	cancel()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not shut down")
	}
}

func TestServe_BadSchedule(t *testing.T) {
	isolate(t)

	a, err := newApp("", "", &bytes.Buffer{})
	require.NoError(t, err)
	a.cfg.Schedule = "whenever"

	err = serve(context.Background(), a, func(context.Context) (coordinator.Summary, error) {
		return coordinator.Summary{}, nil
	}, false)
	assert.Error(t, err)
}
