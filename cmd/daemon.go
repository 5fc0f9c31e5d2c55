package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/timetray/internal/cli"
	"github.com/theirongolddev/timetray/internal/daemon"
	"github.com/theirongolddev/timetray/internal/pipeline"
)

type daemonRuntimeState struct {
	PID       int       `json:"pid"`
	Addr      string    `json:"addr"`
	StartedAt time.Time `json:"started_at"`
	DataFile  string    `json:"data_file"`
}

var (
	flagDaemonInterval     time.Duration
	flagDaemonDetach       bool
	flagDaemonPIDFile      string
	flagDaemonLogFile      string
	flagDaemonEventsBuffer int
	flagDaemonChild        bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the tracker daemon with HTTP/SSE endpoints",
	Long:  "The daemon owns the running session. A session still running when it shuts down is saved.",
	RunE:  runDaemon,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon process and API status",
	RunE:  runDaemonStatus,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE:  runDaemonStop,
}

func init() {
	defaultPID := filepath.Join(pipeline.CacheDir(), "timetrayd.pid")
	defaultLog := filepath.Join(pipeline.CacheDir(), "timetrayd.log")

	daemonCmd.PersistentFlags().DurationVar(&flagDaemonInterval, "interval", 0, "Polling interval (default from config)")
	daemonCmd.PersistentFlags().StringVar(&flagDaemonPIDFile, "pid-file", defaultPID, "PID file path")
	daemonCmd.PersistentFlags().StringVar(&flagDaemonLogFile, "log-file", defaultLog, "Log file path for detached mode")
	daemonCmd.PersistentFlags().IntVar(&flagDaemonEventsBuffer, "events-buffer", 0, "Max in-memory events retained (default from config)")

	daemonCmd.Flags().BoolVar(&flagDaemonDetach, "detach", false, "Run daemon as a background process")
	daemonCmd.Flags().BoolVar(&flagDaemonChild, "child", false, "Internal: mark detached child process")
	_ = daemonCmd.Flags().MarkHidden("child")

	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(_ *cobra.Command, _ []string) error {
	if flagDaemonDetach && flagDaemonChild {
		return errors.New("invalid daemon launch mode")
	}

	if flagDaemonDetach {
		return startDaemonDetached()
	}

	return runDaemonForeground()
}

func startDaemonDetached() error {
	files := runtimeFiles{pidPath: flagDaemonPIDFile}
	if err := files.ensureNotRunning(); err != nil {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(flagDaemonLogFile), 0o750); err != nil {
		return fmt.Errorf("create daemon log directory: %w", err)
	}

	//nolint:gosec // daemon log path is configured by the local user
	logf, err := os.OpenFile(flagDaemonLogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open daemon log file: %w", err)
	}
	defer func() { _ = logf.Close() }()

	cmd := exec.Command(exe, childArgs(os.Args[1:])...) //nolint:gosec // exe/args come from current process invocation
	cmd.Stdout = logf
	cmd.Stderr = logf
	cmd.Stdin = nil
	cmd.Env = os.Environ()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start detached daemon: %w", err)
	}

	fmt.Printf("  Started daemon (pid %d)\n", cmd.Process.Pid)
	fmt.Printf("  PID file: %s\n", flagDaemonPIDFile)
	fmt.Printf("  API: http://%s/v1/status\n", settings.Daemon.Addr)
	fmt.Printf("  Log: %s\n", flagDaemonLogFile)
	return nil
}

func runDaemonForeground() error {
	files := runtimeFiles{pidPath: flagDaemonPIDFile}
	if err := files.ensureNotRunning(); err != nil {
		return err
	}

	pid := os.Getpid()
	err := files.write(daemonRuntimeState{
		PID:       pid,
		Addr:      settings.Daemon.Addr,
		StartedAt: time.Now(),
		DataFile:  settings.DataFilePath(),
	})
	if err != nil {
		return err
	}
	defer files.remove()

	if flagDaemonChild {
		// stdout is the daemon log file.
		child, err := newLogger(settings.Log.Level, os.Stdout, false)
		if err != nil {
			return err
		}
		logger = child
	}

	tr, release := openTracker()
	defer release()

	cfg := daemon.Config{
		DataFile:     settings.DataFilePath(),
		MaxWeeks:     settings.General.MaxWeeks,
		Interval:     settings.PollInterval(),
		Addr:         settings.Daemon.Addr,
		EventsBuffer: settings.Daemon.EventsBuffer,
		Logger:       logger,
	}
	if flagDaemonInterval > 0 {
		cfg.Interval = flagDaemonInterval
	}
	if flagDaemonEventsBuffer > 0 {
		cfg.EventsBuffer = flagDaemonEventsBuffer
	}
	svc := daemon.New(tr, cfg)

	if !flagDaemonChild {
		fmt.Printf("  timetray daemon listening on http://%s\n", cfg.Addr)
		fmt.Printf("  Tracking into %s\n", cfg.DataFile)
		fmt.Printf("  Stop with: timetray daemon stop --pid-file %s\n", flagDaemonPIDFile)
	}
	logger.Info().
		Str("addr", cfg.Addr).
		Str("data_file", cfg.DataFile).
		Dur("interval", cfg.Interval).
		Int("pid", pid).
		Msg("daemon starting")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("daemon exited")
		return err
	}
	logger.Info().Msg("daemon stopped")
	return nil
}

func runDaemonStatus(_ *cobra.Command, _ []string) error {
	files := runtimeFiles{pidPath: flagDaemonPIDFile}
	pid, err := files.pid()
	if err != nil {
		fmt.Printf("  Daemon: not running (pid file not found)\n")
		return nil
	}
	if !processAlive(pid) {
		fmt.Printf("  Daemon: stale pid file (pid %d not alive)\n", pid)
		return nil
	}

	addr := settings.Daemon.Addr
	if st, err := files.state(); err == nil && st.Addr != "" {
		addr = st.Addr
	}

	fmt.Printf("  Daemon PID: %d\n", pid)
	fmt.Printf("  Address: http://%s\n", addr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	st, err := daemon.NewClient(addr).Status(ctx)
	if err != nil {
		var apiErr *daemon.APIError
		if errors.As(err, &apiErr) {
			fmt.Printf("  API status: HTTP %d\n", apiErr.StatusCode)
		} else {
			fmt.Printf("  API status: unreachable (%v)\n", err)
		}
		return nil
	}

	if st.LastPollAt.IsZero() {
		fmt.Printf("  Last poll: pending\n")
	} else {
		fmt.Printf("  Last poll: %s\n", st.LastPollAt.Local().Format(time.RFC3339))
	}
	fmt.Printf("  Poll count: %d\n", st.PollCount)
	fmt.Printf("  Data file: %s\n", st.DataFile)
	fmt.Printf("  Session: %s\n", cli.RenderStatus(st.Summary.Running, st.Summary.StatusText))
	fmt.Printf("  This week: %s\n", st.Summary.WeekText)
	fmt.Printf("  Stream subscribers: %d\n", st.SubscriberCount)
	if st.LastError != "" {
		fmt.Printf("  Last error: %s\n", st.LastError)
	}
	return nil
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	files := runtimeFiles{pidPath: flagDaemonPIDFile}
	pid, err := files.pid()
	if err != nil {
		return errors.New("daemon is not running")
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find daemon process: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal daemon process: %w", err)
	}

	// The daemon saves a running session before exiting, so wait for it.
	deadline := time.Now().Add(8 * time.Second)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			files.remove()
			fmt.Printf("  Stopped daemon (pid %d)\n", pid)
			return nil
		}
		time.Sleep(150 * time.Millisecond)
	}

	return fmt.Errorf("daemon (pid %d) did not exit in time", pid)
}
