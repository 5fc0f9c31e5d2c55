package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/timetray/internal/cli"
	"github.com/theirongolddev/timetray/internal/daemon"
	"github.com/theirongolddev/timetray/internal/isoweek"
	"github.com/theirongolddev/timetray/internal/report"
)

var weekCmd = &cobra.Command{
	Use:   "week",
	Short: "Show the current ISO week total",
	RunE:  runWeek,
}

func init() {
	rootCmd.AddCommand(weekCmd)
}

func runWeek(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	wk, err := loadCurrentWeek(ctx, time.Now())
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("Week %s", cli.FormatWeek(wk.ISOYear, wk.ISOWeek))))
	fmt.Println()
	fmt.Printf("  %s\n", cli.RenderMuted(cli.FormatDateRange(wk.From.Local(), wk.To.Local())))
	fmt.Printf("  Worked  %s\n", wk.Total)
	if wk.Running {
		fmt.Printf("  %s\n", cli.RenderStatus(true, "session running, included above"))
	}
	if target := settings.WeeklyTarget(); target > 0 {
		done := time.Duration(wk.Seconds) * time.Second
		fmt.Printf("  Target  %s\n", cli.RenderTargetBar(done, target, 24))
	}
	fmt.Println()
	return nil
}

func loadCurrentWeek(ctx context.Context, now time.Time) (daemon.WeekResponse, error) {
	if c := reachableDaemon(ctx); c != nil {
		wk, err := c.Week(ctx)
		if err != nil {
			return daemon.WeekResponse{}, fmt.Errorf("fetching week from daemon: %w", err)
		}
		return wk, nil
	}
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, "  Source: %s\n", settings.DataFilePath())
	}

	tr, release := openTracker()
	defer release()

	total, err := tr.CurrentWeekTotal(now)
	if err != nil {
		return daemon.WeekResponse{}, fmt.Errorf("reading %s: %w", settings.DataFilePath(), err)
	}
	key := isoweek.KeyOf(now)
	return daemon.WeekResponse{
		ISOYear: key.ISOYear,
		ISOWeek: key.ISOWeek,
		From:    isoweek.WeekStart(now),
		To:      isoweek.WeekEnd(now),
		Seconds: int64(total / time.Second),
		Total:   report.FormatHHMM(total),
	}, nil
}
