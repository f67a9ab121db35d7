// simdash-feed serves a demo partition-state stream: independent Wiener
// processes, one state vector per partition, published on a websocket for
// simdash to view.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	dashboard "github.com/network-plane/simdash"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "simdash-feed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("simdash-feed", pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "path to a yaml config file")
	address := flagSet.String("address", "", "listen host:port")
	handle := flagSet.String("handle", "", "websocket path")
	partitions := flagSet.Int("partitions", 0, "number of partitions")
	stateWidth := flagSet.Int("state-width", 0, "state vector length per partition")
	delay := flagSet.Uint64("millisecond-delay", dashboard.DefaultFeedDelayMs, "pause between steps in milliseconds")
	seed := flagSet.Int64("seed", dashboard.DefaultFeedSeed, "random seed")
	maxSteps := flagSet.Int("max-steps", 0, "stop stepping after this many steps (0 = never)")
	logLevel := flagSet.String("log-level", "", "debug | info | warn | error")
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

	cfg, err := dashboard.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *address != "" {
		cfg.Address = *address
	}
	if *handle != "" {
		cfg.Handle = *handle
	}
	if *partitions > 0 {
		cfg.Feed.Partitions = *partitions
	}
	if *stateWidth > 0 {
		cfg.Feed.StateWidth = *stateWidth
	}
	if flagSet.Changed("millisecond-delay") {
		cfg.Feed.MillisecondDelay = *delay
	}
	if flagSet.Changed("seed") {
		cfg.Feed.Seed = *seed
	}
	if flagSet.Changed("max-steps") {
		cfg.Feed.MaxSteps = *maxSteps
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger, logCloser, err := dashboard.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	broker := dashboard.NewBroker(dashboard.BrokerOptions{
		Address: cfg.Address,
		Handle:  cfg.Handle,
		Logger:  logger,
	})
	if err := broker.Start(); err != nil {
		return err
	}

	feed := dashboard.NewWienerFeed(cfg.Feed)
	logger.Info().
		Int("partitions", cfg.Feed.Partitions).
		Int("state_width", cfg.Feed.StateWidth).
		Uint64("millisecond_delay", cfg.Feed.MillisecondDelay).
		Str("endpoint", cfg.Endpoint()).
		Msg("feed starting")

	var g errgroup.Group
	g.Go(func() error {
		if err := feed.Run(ctx, broker.Publish); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		// Late viewers still get the replay until interrupted.
		logger.Info().Int("max_steps", cfg.Feed.MaxSteps).Msg("feed finished")
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		broker.Stop()
		return nil
	})
	return g.Wait()
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `simdash-feed: demo partition-state stream for simdash.

Each step adds Gaussian noise to every element of every partition's state
and publishes one frame per partition.

Usage:
  simdash-feed [flags]

Examples:
  # Three partitions of two elements, ten steps a second
  simdash-feed --partitions 3 --state-width 2 --millisecond-delay 100

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
