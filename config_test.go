package dashboard

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigEmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, "ws://localhost:2112/dashboard", cfg.Endpoint())
	require.NotNil(t, cfg.AutoSelect)
	assert.True(t, *cfg.AutoSelect)
	assert.Equal(t, 100*time.Millisecond, cfg.RedrawInterval)
	assert.False(t, cfg.Reconnect.Enabled)
	assert.Equal(t, 500*time.Millisecond, cfg.Reconnect.InitialInterval)
	assert.True(t, cfg.UI.Mouse)
	assert.Equal(t, LogConfig{Level: "info", Format: "console", Output: "stderr", FilePath: "simdash.log"}, cfg.Log)
	assert.Equal(t, "file", cfg.Log.ForTerminalUI().Output)
	assert.Equal(t, FeedConfig{
		Partitions: 3, StateWidth: 2, MillisecondDelay: 100, Seed: 42, Variance: 1,
	}, cfg.Feed)
}

func TestLoadConfigExplicitZeroes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zero.yaml")
	data := "redraw_interval: 0s\nui:\n  mouse: false\nfeed:\n  millisecond_delay: 0\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Zero(t, cfg.RedrawInterval)
	assert.False(t, cfg.UI.Mouse)
	assert.Zero(t, cfg.Feed.MillisecondDelay)
	assert.Equal(t, int64(42), cfg.Feed.Seed)
	assert.Equal(t, "simdash.log", cfg.Log.FilePath)
}

func TestLoadConfigFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "wss://sim.local:9000/stream", cfg.Endpoint())
	assert.Equal(t, 250*time.Millisecond, cfg.RedrawInterval)
	require.NotNil(t, cfg.AutoSelect)
	assert.False(t, *cfg.AutoSelect)
	assert.Equal(t, ColorConfig{Strategy: "seeded", Seed: 7}, cfg.Colors)
	assert.True(t, cfg.Reconnect.Enabled)
	assert.Equal(t, time.Second, cfg.Reconnect.InitialInterval)
	assert.Equal(t, 10*time.Second, cfg.Reconnect.MaxInterval)
	assert.Equal(t, PNGConfig{Path: "out/partition.png", Width: 800, Height: DefaultPNGHeight}, cfg.PNG)
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsAddress)
	assert.Equal(t, LogConfig{Level: "debug", Format: "json", Output: "stderr", FilePath: "simdash.log"}, cfg.Log)
	assert.True(t, cfg.UI.Mouse)
	assert.Equal(t, 200, cfg.UI.MaxPoints)
	assert.Equal(t, FeedConfig{
		Partitions: 4, StateWidth: DefaultFeedStateWidth, MillisecondDelay: 50,
		Seed: 42, Variance: 1, MaxSteps: 100,
	}, cfg.Feed)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("redraw_interval: [1, 2]\n"), 0o644))
	_, err = LoadConfig(bad)
	assert.Error(t, err)
}

func TestSetEndpoint(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.SetEndpoint("wss://example.com:443/feed"))
	assert.Equal(t, "example.com:443", cfg.Address)
	assert.Equal(t, "/feed", cfg.Handle)
	assert.True(t, cfg.TLS)
	assert.Equal(t, "wss://example.com:443/feed", cfg.Endpoint())

	assert.Error(t, cfg.SetEndpoint("http://example.com/feed"))
	assert.Error(t, cfg.SetEndpoint("ws:///feed"))
}
