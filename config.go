package dashboard

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the yaml-loadable configuration shared by the viewer and the
// demo feed.
type Config struct {
	Address        string          `yaml:"address"`
	Handle         string          `yaml:"handle"`
	TLS            bool            `yaml:"tls"`
	RedrawInterval time.Duration   `yaml:"redraw_interval"`
	AutoSelect     *bool           `yaml:"auto_select"`
	Colors         ColorConfig     `yaml:"colors"`
	Reconnect      ReconnectConfig `yaml:"reconnect"`
	PNG            PNGConfig       `yaml:"png"`
	MetricsAddress string          `yaml:"metrics_address"`
	Log            LogConfig       `yaml:"log"`
	UI             UIConfig        `yaml:"ui"`
	Feed           FeedConfig      `yaml:"feed"`
}

// ColorConfig selects the series colour strategy.
type ColorConfig struct {
	Strategy string `yaml:"strategy"` // keyed | seeded
	Seed     int64  `yaml:"seed"`
}

// ReconnectConfig drives the exponential backoff between sessions.
type ReconnectConfig struct {
	Enabled         bool          `yaml:"enabled"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	MaxElapsed      time.Duration `yaml:"max_elapsed"` // 0 retries forever
}

// PNGConfig configures the file sink. An empty path disables it.
type PNGConfig struct {
	Path   string `yaml:"path"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// LogConfig configures NewLogger.
type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"` // json | console
	Output   string `yaml:"output"` // stderr | stdout | file | discard
	FilePath string `yaml:"file_path"`
}

// UIConfig configures the terminal viewer.
type UIConfig struct {
	Title     string `yaml:"title"`
	NoColour  bool   `yaml:"no_colour"`
	Mouse     bool   `yaml:"mouse"`
	MaxPoints int    `yaml:"max_points"` // plotted tail per series, 0 = all
}

// FeedConfig configures the demo Wiener process feed.
type FeedConfig struct {
	Partitions       int     `yaml:"partitions"`
	StateWidth       int     `yaml:"state_width"`
	MillisecondDelay uint64  `yaml:"millisecond_delay"`
	Seed             int64   `yaml:"seed"`
	Variance         float64 `yaml:"variance"`
	MaxSteps         int     `yaml:"max_steps"` // 0 runs until stopped
}

// DefaultConfig returns the configuration used when no file is given.
// Loaded files are decoded on top of it, so keys a file leaves out keep
// these values.
func DefaultConfig() Config {
	on := true
	return Config{
		RedrawInterval: DefaultRedrawInterval,
		AutoSelect:     &on,
		Log:            LogConfig{FilePath: DefaultLogFile},
		UI:             UIConfig{Mouse: true},
		Feed: FeedConfig{
			MillisecondDelay: DefaultFeedDelayMs,
			Seed:             DefaultFeedSeed,
		},
	}.withDefaults()
}

// LoadConfig reads a yaml config from path. An empty path yields the
// defaults.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg.withDefaults(), nil
}

func (cfg Config) withDefaults() Config {
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}
	if cfg.Handle == "" {
		cfg.Handle = DefaultHandle
	}
	if !strings.HasPrefix(cfg.Handle, "/") {
		cfg.Handle = "/" + cfg.Handle
	}
	if cfg.AutoSelect == nil {
		on := true
		cfg.AutoSelect = &on
	}
	if cfg.Colors.Strategy == "" {
		cfg.Colors.Strategy = "keyed"
	}
	if cfg.Reconnect.InitialInterval <= 0 {
		cfg.Reconnect.InitialInterval = 500 * time.Millisecond
	}
	if cfg.Reconnect.MaxInterval <= 0 {
		cfg.Reconnect.MaxInterval = 10 * time.Second
	}
	if cfg.PNG.Width <= 0 {
		cfg.PNG.Width = DefaultPNGWidth
	}
	if cfg.PNG.Height <= 0 {
		cfg.PNG.Height = DefaultPNGHeight
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}
	if cfg.Feed.Partitions <= 0 {
		cfg.Feed.Partitions = DefaultFeedPartitions
	}
	if cfg.Feed.StateWidth <= 0 {
		cfg.Feed.StateWidth = DefaultFeedStateWidth
	}
	if cfg.Feed.Variance <= 0 {
		cfg.Feed.Variance = 1
	}
	return cfg
}

// Endpoint is the websocket URL the viewer dials.
func (cfg Config) Endpoint() string {
	scheme := "ws"
	if cfg.TLS {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: cfg.Address, Path: cfg.Handle}
	return u.String()
}

// SetEndpoint splits a ws:// URL back into address and handle.
func (cfg *Config) SetEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("endpoint %q: scheme must be ws or wss", endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint %q: missing host", endpoint)
	}
	cfg.Address = u.Host
	cfg.TLS = u.Scheme == "wss"
	cfg.Handle = u.Path
	if cfg.Handle == "" {
		cfg.Handle = "/"
	}
	return nil
}
