package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/timetray/internal/config"
	"github.com/theirongolddev/timetray/internal/pipeline"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg := settings

	fmt.Printf("  Config file: %s\n", config.ConfigPath())
	if config.Exists() {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Printf("  Overrides: %s_* environment, then flags\n", config.EnvPrefix)
	fmt.Println()

	fmt.Println("  [General]")
	fmt.Printf("    Data file:     %s\n", cfg.DataFilePath())
	fmt.Printf("    Weeks shown:   %d\n", cfg.General.MaxWeeks)
	if cfg.General.WeeklyTargetHours > 0 {
		fmt.Printf("    Weekly target: %gh\n", cfg.General.WeeklyTargetHours)
	} else {
		fmt.Println("    Weekly target: not set")
	}
	fmt.Println()

	fmt.Println("  [Daemon]")
	fmt.Printf("    Address:       %s\n", cfg.Daemon.Addr)
	fmt.Printf("    Poll interval: %s\n", cfg.PollInterval())
	fmt.Printf("    Events buffer: %d\n", cfg.Daemon.EventsBuffer)
	fmt.Println()

	fmt.Println("  [Log]")
	fmt.Printf("    Level: %s\n", cfg.Log.Level)
	fmt.Println()

	fmt.Println("  [Appearance]")
	fmt.Printf("    Theme: %s\n", cfg.Appearance.Theme)
	fmt.Println()

	fmt.Printf("  Cache: %s\n", pipeline.CachePath())
	fmt.Println()
	fmt.Println("  Run `timetray setup` to reconfigure.")
	return nil
}
