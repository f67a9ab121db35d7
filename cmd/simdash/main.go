// simdash is a live viewer for simulation partition-state streams. It
// dials the websocket endpoint a simulation publishes on, keeps the
// per-partition series in memory for the life of the connection and draws
// the selected partition in the terminal or, with --headless, into a PNG.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	dashboard "github.com/network-plane/simdash"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "simdash: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("simdash", pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "path to a yaml config file")
	endpoint := flagSet.String("endpoint", "", "websocket URL, e.g. ws://localhost:2112/dashboard")
	headless := flagSet.Bool("headless", false, "no terminal UI; render to the PNG file only")
	pngPath := flagSet.String("png", "", "also render the active partition to this PNG file")
	redrawInterval := flagSet.Duration("redraw-interval", dashboard.DefaultRedrawInterval, "minimum time between redraws (0 = every frame)")
	reconnect := flagSet.Bool("reconnect", false, "reconnect with backoff when the stream ends")
	metricsAddress := flagSet.String("metrics-address", "", "serve prometheus metrics on host:port")
	logLevel := flagSet.String("log-level", "", "debug | info | warn | error")
	logFile := flagSet.String("log-file", "", "write logs to this file")
	partition := flagSet.Int("partition", -1, "partition to show first (default: first one seen)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := dashboard.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *endpoint != "" {
		if err := cfg.SetEndpoint(*endpoint); err != nil {
			return err
		}
	}
	if *pngPath != "" {
		cfg.PNG.Path = *pngPath
	}
	if flagSet.Changed("redraw-interval") {
		cfg.RedrawInterval = *redrawInterval
	}
	if flagSet.Changed("reconnect") {
		cfg.Reconnect.Enabled = *reconnect
	}
	if *metricsAddress != "" {
		cfg.MetricsAddress = *metricsAddress
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFile != "" {
		cfg.Log.Output = "file"
		cfg.Log.FilePath = *logFile
	}
	if *headless && cfg.PNG.Path == "" {
		return errors.New("--headless needs --png or png.path in the config")
	}
	if _, err := dashboard.ColorStrategyFor(cfg.Colors); err != nil {
		return err
	}

	logCfg := cfg.Log
	if !*headless {
		logCfg = logCfg.ForTerminalUI()
	}
	logger, logCloser, err := dashboard.NewLogger(logCfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	reg := prometheus.NewRegistry()
	metrics := dashboard.NewMetrics(reg)

	selection := &dashboard.Selection{}
	if *partition >= 0 {
		selection.Select(*partition)
	}

	var (
		current atomic.Pointer[dashboard.Session]
		sinks   dashboard.MultiSink
		ui      *dashboard.UI
	)
	if cfg.PNG.Path != "" {
		sinks = append(sinks, dashboard.NewPNGSink(cfg.PNG))
	}
	if !*headless {
		ui = dashboard.NewUI(dashboard.UIOptions{
			Title:        uiTitle(cfg),
			NoColour:     cfg.UI.NoColour,
			MouseEnabled: cfg.UI.Mouse,
			MaxPoints:    cfg.UI.MaxPoints,
			OnSelect: func(p int) {
				if s := current.Load(); s != nil {
					s.Select(p)
					return
				}
				selection.Select(p)
			},
			OnExit: func(int) { cancel() },
		})
		sinks = append(sinks, ui)
	}

	rc := &dashboard.Reconnector{
		Policy: dashboard.NewBackOff(cfg.Reconnect),
		Logger: logger,
		NewSession: func() *dashboard.Session {
			// Validated above.
			colors, _ := dashboard.ColorStrategyFor(cfg.Colors)
			return dashboard.NewSession(dashboard.SessionOptions{
				Endpoint:       cfg.Endpoint(),
				Colors:         colors,
				Selection:      selection,
				Sink:           sinks,
				AutoSelect:     *cfg.AutoSelect,
				RedrawInterval: cfg.RedrawInterval,
				Logger:         logger,
				Metrics:        metrics,
				OnEvent: func(ev dashboard.Event) {
					if ui != nil {
						ui.HandleEvent(ev)
					}
				},
			})
		},
		OnSession: func(s *dashboard.Session) {
			if prev := current.Swap(s); prev != nil && ui != nil {
				ui.Reconnecting()
			}
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", dashboard.MetricsHandler(reg))
		srv := &http.Server{Addr: cfg.MetricsAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info().Str("address", cfg.MetricsAddress).Msg("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return srv.Close()
		})
	}

	g.Go(func() error {
		err := rc.Run(gctx)
		if s := current.Load(); s != nil {
			_ = s.Close()
		}
		return streamResult(logger, err, ui == nil, cancel)
	})

	if ui != nil {
		g.Go(func() error {
			defer cancel()
			return ui.Run()
		})
		g.Go(func() error {
			<-gctx.Done()
			ui.Stop()
			return nil
		})
	}

	return g.Wait()
}

// streamResult decides what the end of the reconnect loop means for the
// process. Headless runs exit with it; the terminal UI stays up showing the
// last state until the user quits.
func streamResult(logger zerolog.Logger, err error, headless bool, cancel context.CancelFunc) error {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return nil
	case errors.Is(err, dashboard.ErrStreamEnded):
		logger.Info().Msg("stream ended")
		if headless {
			cancel()
		}
		return nil
	}
	logger.Error().Err(err).Msg("stream stopped")
	if headless {
		cancel()
		return err
	}
	return nil
}

func uiTitle(cfg dashboard.Config) string {
	if cfg.UI.Title != "" {
		return cfg.UI.Title
	}
	return "simdash " + cfg.Endpoint()
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `simdash: live viewer for simulation partition-state streams.

Dials the websocket endpoint, keeps every partition's series in memory for
the life of the connection and draws the selected partition.

Usage:
  simdash [flags]

Examples:
  # View the demo feed started with simdash-feed
  simdash

  # Another endpoint, reconnecting when the stream drops
  simdash --endpoint ws://sim.local:2112/dashboard --reconnect

  # No terminal UI, refresh a PNG at most every 500ms
  simdash --headless --png partition.png --redraw-interval 500ms

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
