package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/timetray/internal/cli"
	"github.com/theirongolddev/timetray/internal/config"
	"github.com/theirongolddev/timetray/internal/tui"
	"github.com/theirongolddev/timetray/internal/tui/theme"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive TUI dashboard",
	RunE:  runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, _ []string) error {
	theme.SetActive(settings.Appearance.Theme)

	// Force TrueColor profile so all background styling produces ANSI codes
	// Without this, lipgloss may default to Ascii profile (no colors)
	lipgloss.SetColorProfile(termenv.TrueColor)

	backend, release := tuiBackend(cmd.Context())
	defer release()

	opts := tui.Options{
		Target:       settings.WeeklyTarget(),
		RefreshEvery: 15 * time.Second,
	}
	if !config.Exists() {
		cfg := config.DefaultConfig()
		opts.Setup = &cfg
	}

	app := tui.NewApp(backend, opts)
	p := tea.NewProgram(app, tea.WithAltScreen())

	_, runErr := p.Run()

	// A local session must be saved even when the program failed.
	if err := backend.Close(); err != nil {
		fmt.Fprintln(os.Stderr, cli.RenderError("Running session was NOT saved: "+err.Error()))
		if runErr == nil {
			return fmt.Errorf("saving running session: %w", err)
		}
	}
	if runErr != nil {
		return fmt.Errorf("TUI error: %w", runErr)
	}
	return nil
}

// tuiBackend drives the daemon when one is reachable, otherwise an
// in-process tracker that lives as long as the dashboard.
func tuiBackend(ctx context.Context) (tui.Backend, func()) {
	if c := reachableDaemon(ctx); c != nil {
		return &tui.RemoteBackend{Client: c, MaxWeeks: settings.General.MaxWeeks}, func() {}
	}

	tr, release := openTracker()
	return &tui.LocalBackend{Tracker: tr, MaxWeeks: settings.General.MaxWeeks}, release
}
