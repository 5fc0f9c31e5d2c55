package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/timetray/internal/cli"
	"github.com/theirongolddev/timetray/internal/daemon"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a work session",
	RunE:  runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running session and save it",
	RunE:  runStop,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a session is running",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
}

func runStart(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	c, err := requireDaemon(ctx)
	if err != nil {
		return err
	}
	resp, err := c.Start(ctx)
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}

	if !resp.Started {
		fmt.Printf("  Already running since %s\n", sinceText(resp.Status))
		return nil
	}
	startedAt := resp.Status.At
	if resp.Status.Since != nil {
		startedAt = *resp.Status.Since
	}
	fmt.Printf("  %s\n", cli.RenderStatus(true, "Started at "+startedAt.Local().Format("15:04")))
	return nil
}

func runStop(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	c, err := requireDaemon(ctx)
	if err != nil {
		return err
	}
	resp, err := c.Stop(ctx)
	if err != nil {
		var apiErr *daemon.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.StatusCode {
			case http.StatusConflict:
				return fmt.Errorf("session discarded, nothing saved: %s", apiErr.Message)
			case http.StatusInternalServerError:
				return fmt.Errorf("session NOT saved and still running: %s", apiErr.Message)
			}
		}
		return fmt.Errorf("stopping session: %w", err)
	}

	if !resp.Stopped || resp.Interval == nil {
		fmt.Println(cli.RenderMuted("  No session running."))
		return nil
	}
	iv := resp.Interval
	fmt.Printf("  %s  %s (%s - %s)\n",
		cli.RenderStatus(false, "Stopped"),
		cli.FormatDuration(iv.Duration()),
		iv.Start.Local().Format("15:04"),
		iv.End.Local().Format("15:04"),
	)
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	c, err := requireDaemon(ctx)
	if err != nil {
		return err
	}
	st, err := c.Status(ctx)
	if err != nil {
		return fmt.Errorf("fetching status: %w", err)
	}

	snap := st.Summary
	fmt.Println()
	if snap.Running {
		fmt.Printf("  %s\n", cli.RenderStatus(true, "Running since "+sinceText(snap)))
	} else {
		fmt.Printf("  %s\n", cli.RenderStatus(false, snap.StatusText))
	}
	fmt.Printf("  This week  %s\n", snap.WeekText)
	if st.LastError != "" {
		fmt.Println(cli.RenderError("Last error: " + st.LastError))
	}
	fmt.Println()
	return nil
}

func sinceText(snap daemon.Snapshot) string {
	if snap.Since == nil {
		return snap.StatusText
	}
	return cli.FormatSince(snap.Since.Local(), time.Now())
}
