package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/theirongolddev/timetray/internal/config"
	"github.com/theirongolddev/timetray/internal/tui/theme"
)

// SetupValues holds the raw answers of the setup form.
type SetupValues struct {
	DataFile    string
	MaxWeeks    string
	TargetHours string
	Theme       string
}

// SetupValuesFrom prefills the form from cfg.
func SetupValuesFrom(cfg config.Config) *SetupValues {
	target := ""
	if cfg.General.WeeklyTargetHours > 0 {
		target = strconv.FormatFloat(cfg.General.WeeklyTargetHours, 'f', -1, 64)
	}
	return &SetupValues{
		DataFile:    cfg.DataFilePath(),
		MaxWeeks:    strconv.Itoa(cfg.General.MaxWeeks),
		TargetHours: target,
		Theme:       cfg.Appearance.Theme,
	}
}

// Apply writes the answers into cfg.
func (v *SetupValues) Apply(cfg *config.Config) error {
	if path := strings.TrimSpace(v.DataFile); path != "" && path != config.DefaultDataFile() {
		cfg.General.DataFile = path
	}

	n, err := strconv.Atoi(strings.TrimSpace(v.MaxWeeks))
	if err != nil {
		return fmt.Errorf("weeks to show: %w", err)
	}
	cfg.General.MaxWeeks = n

	cfg.General.WeeklyTargetHours = 0
	if s := strings.TrimSpace(v.TargetHours); s != "" {
		h, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("weekly target: %w", err)
		}
		cfg.General.WeeklyTargetHours = h
	}

	cfg.Appearance.Theme = v.Theme
	return cfg.Validate()
}

// NewSetupForm builds the huh form that edits v.
func NewSetupForm(v *SetupValues) *huh.Form {
	themeOpts := make([]huh.Option[string], 0, len(theme.All))
	for _, name := range theme.Names() {
		themeOpts = append(themeOpts, huh.NewOption(name, name))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Welcome to timetray").
				Description("Tracks working time and totals it per ISO week."),
			huh.NewInput().
				Title("Interval log").
				Description("One line per tracked session.").
				Value(&v.DataFile),
			huh.NewInput().
				Title("Weeks to show").
				Value(&v.MaxWeeks).
				Validate(validateNonNegativeInt),
			huh.NewInput().
				Title("Weekly target hours").
				Description("Leave empty for no target.").
				Value(&v.TargetHours).
				Validate(validateOptionalHours),
			huh.NewSelect[string]().
				Title("Color theme").
				Options(themeOpts...).
				Value(&v.Theme),
		),
	).WithShowHelp(true)
}

func validateNonNegativeInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return fmt.Errorf("enter a whole number, 0 or more")
	}
	return nil
}

func validateOptionalHours(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	h, err := strconv.ParseFloat(s, 64)
	if err != nil || h < 0 {
		return fmt.Errorf("enter hours, e.g. 40 or 37.5")
	}
	return nil
}
