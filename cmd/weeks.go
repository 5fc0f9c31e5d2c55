package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/timetray/internal/cli"
	"github.com/theirongolddev/timetray/internal/model"
	"github.com/theirongolddev/timetray/internal/report"
)

var weeksCmd = &cobra.Command{
	Use:   "weeks",
	Short: "Show worked hours per ISO week",
	RunE:  runWeeks,
}

func init() {
	rootCmd.AddCommand(weeksCmd)
}

func runWeeks(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	rows, source, err := loadWeekRows(ctx, settings.General.MaxWeeks)
	if err != nil {
		return err
	}
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, "  Source: %s\n", source)
	}

	fmt.Println()
	if len(rows) == 0 {
		fmt.Println(cli.RenderMuted("  No tracked time yet. Run `timetray start` to begin."))
		fmt.Println()
		return nil
	}

	fmt.Println(cli.RenderTable(weeksTable(rows)))

	// Rows are newest first; the trend reads left to right.
	trend := make([]float64, len(rows))
	for i, r := range rows {
		trend[len(rows)-1-i] = r.Duration.Hours()
	}
	fmt.Printf("  Trend %s\n\n", cli.RenderSparkline(trend))
	return nil
}

// loadWeekRows asks the daemon when one is reachable, so a running session
// is counted, and otherwise reads the log in-process.
func loadWeekRows(ctx context.Context, maxWeeks int) ([]model.WeekRow, string, error) {
	if c := reachableDaemon(ctx); c != nil {
		resp, err := c.Weeks(ctx, maxWeeks)
		if err != nil {
			return nil, "", fmt.Errorf("fetching weeks from daemon: %w", err)
		}
		return resp.Weeks, "daemon " + c.Addr(), nil
	}

	tr, release := openTracker()
	defer release()

	rows, err := tr.Totals(maxWeeks)
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", settings.DataFilePath(), err)
	}
	return rows, settings.DataFilePath(), nil
}

func weeksTable(rows []model.WeekRow) cli.Table {
	t := cli.Table{
		Title:   "Weekly Hours",
		Headers: []string{"Year", "Week", "Hours"},
		Rows:    make([][]string, 0, len(rows)),
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(r.Year),
			fmt.Sprintf("%02d", r.Week),
			r.DurationText,
		})
	}
	t.Footer = []string{"Total", "", report.FormatHHMM(report.Total(rows))}
	return t
}
