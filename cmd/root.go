// Package cmd implements the timetray CLI commands.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/timetray/internal/config"
	"github.com/theirongolddev/timetray/internal/daemon"
	"github.com/theirongolddev/timetray/internal/pipeline"
	"github.com/theirongolddev/timetray/internal/store"
	"github.com/theirongolddev/timetray/internal/timelog"
	"github.com/theirongolddev/timetray/internal/tracker"
)

var (
	flagDataFile string
	flagMaxWeeks int
	flagAddr     string
	flagNoCache  bool
	flagQuiet    bool
	flagLogLevel string
)

// settings is the effective configuration: file, then environment, then flags.
var (
	settings config.Config
	logger   = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "timetray",
	Short: "Working time tracker with ISO week totals",
	Long:  "Start and stop work sessions and see how much you worked per ISO calendar week.",

	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
	RunE:              runWeeks,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	defaults := config.DefaultConfig()

	rootCmd.PersistentFlags().StringVarP(&flagDataFile, "data-file", "f", "", "Interval log file (default "+config.DefaultDataFile()+")")
	rootCmd.PersistentFlags().IntVarP(&flagMaxWeeks, "max-weeks", "n", defaults.General.MaxWeeks, "Number of most recent weeks to show")
	rootCmd.PersistentFlags().StringVar(&flagAddr, "addr", defaults.Daemon.Addr, "Daemon HTTP address")
	rootCmd.PersistentFlags().BoolVar(&flagNoCache, "no-cache", false, "Skip SQLite cache, read the log directly")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", defaults.Log.Level, "Log level (debug, info, warn, error)")
}

func loadSettings(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("data-file") {
		cfg.General.DataFile = flagDataFile
	}
	if flags.Changed("max-weeks") {
		cfg.General.MaxWeeks = flagMaxWeeks
	}
	if flags.Changed("addr") {
		cfg.Daemon.Addr = flagAddr
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = flagLogLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	settings = cfg

	logger, err = newLogger(cfg.Log.Level, os.Stderr, true)
	return err
}

// newLogger builds the process logger. Interactive commands get a console
// writer; the detached daemon writes JSON lines to its log file.
func newLogger(level string, w io.Writer, console bool) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("parsing log level: %w", err)
	}
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// openTracker builds an in-process tracker over the configured log. Unless
// --no-cache is set, history is served through the SQLite interval cache.
// The returned func releases the cache.
func openTracker() (*tracker.Tracker, func()) {
	l := timelog.New(settings.DataFilePath())
	opts := []tracker.Option{tracker.WithLogger(logger)}
	release := func() {}

	if !flagNoCache {
		cache, err := store.Open(pipeline.CachePath())
		if err != nil {
			if !flagQuiet {
				fmt.Fprintf(os.Stderr, "  Cache unavailable, reading log directly\n")
			}
			logger.Debug().Err(err).Msg("opening interval cache")
		} else {
			opts = append(opts, tracker.WithHistory(pipeline.NewCachedHistory(l, cache, logger)))
			release = func() { _ = cache.Close() }
		}
	}

	return tracker.New(l, opts...), release
}

func daemonClient() *daemon.Client {
	return daemon.NewClient(settings.Daemon.Addr)
}

// reachableDaemon returns a client when a daemon answers on the configured
// address, nil otherwise.
func reachableDaemon(ctx context.Context) *daemon.Client {
	c := daemonClient()
	if err := c.Ping(ctx); err != nil {
		logger.Debug().Err(err).Str("addr", c.Addr()).Msg("daemon not reachable")
		return nil
	}
	return c
}

// requireDaemon is reachableDaemon for commands that change tracker state,
// which only the daemon owns.
func requireDaemon(ctx context.Context) (*daemon.Client, error) {
	c := reachableDaemon(ctx)
	if c == nil {
		return nil, fmt.Errorf("daemon is not running at %s (start it with `timetray daemon --detach`)", settings.Daemon.Addr)
	}
	return c, nil
}
