// Package tui provides the interactive Bubble Tea dashboard for timetray.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/timetray/internal/cli"
	"github.com/theirongolddev/timetray/internal/config"
	"github.com/theirongolddev/timetray/internal/isoweek"
	"github.com/theirongolddev/timetray/internal/report"
	"github.com/theirongolddev/timetray/internal/tui/components"
	"github.com/theirongolddev/timetray/internal/tui/theme"
)

const (
	minTerminalWidth = 50
	maxContentWidth  = 110
	actionTimeout    = 5 * time.Second
)

// stateMsg carries the result of a Load.
type stateMsg struct {
	state State
	err   error
}

// actionMsg carries the result of a start or stop.
type actionMsg struct {
	action string
	err    error
}

type tickMsg time.Time

// Options configures the dashboard.
type Options struct {
	Target       time.Duration // weekly target, zero hides the target card
	RefreshEvery time.Duration
	Now          func() time.Time

	// Setup, when non-nil, shows the first-run form before the dashboard and
	// saves its answers into the config file.
	Setup *config.Config
}

// App is the root Bubble Tea model.
type App struct {
	backend Backend
	state   State
	loaded  bool

	loadErr   string
	actionErr string
	busy      bool

	target       time.Duration
	refreshEvery time.Duration
	lastRefresh  time.Time
	now          func() time.Time

	width    int
	height   int
	showHelp bool
	keys     keyMap
	help     help.Model
	spinner  spinner.Model

	setupCfg  *config.Config
	setupVals *SetupValues
	setupForm *huh.Form
}

// NewApp creates the dashboard model for b.
func NewApp(b Backend, opts Options) App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Active.Accent)

	if opts.RefreshEvery < time.Second {
		opts.RefreshEvery = 15 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	a := App{
		backend:      b,
		target:       opts.Target,
		refreshEvery: opts.RefreshEvery,
		now:          opts.Now,
		keys:         defaultKeys(),
		help:         help.New(),
		spinner:      sp,
	}
	if opts.Setup != nil {
		a.setupCfg = opts.Setup
		a.setupVals = SetupValuesFrom(*opts.Setup)
		a.setupForm = NewSetupForm(a.setupVals)
	}
	return a
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.spinner.Tick, a.loadCmd(), tickCmd()}
	if a.setupForm != nil {
		cmds = append(cmds, a.setupForm.Init())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		if a.setupForm != nil {
			a.setupForm = a.setupForm.WithWidth(min(msg.Width, maxContentWidth)).WithHeight(msg.Height)
		}
		return a, nil

	case spinner.TickMsg:
		if a.loaded {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case tickMsg:
		if !a.busy && a.loaded && a.now().Sub(a.lastRefresh) >= a.refreshEvery {
			a.busy = true
			return a, tea.Batch(tickCmd(), a.loadCmd())
		}
		return a, tickCmd()

	case stateMsg:
		a.busy = false
		a.loaded = true
		a.lastRefresh = a.now()
		if !msg.state.At.IsZero() {
			a.state = msg.state
		}
		a.loadErr = ""
		if msg.err != nil {
			a.loadErr = "refresh failed: " + msg.err.Error()
		}
		return a, nil

	case actionMsg:
		a.actionErr = ""
		if msg.err != nil {
			a.actionErr = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
			if msg.action == "stop" {
				a.actionErr += " (still running)"
			}
		}
		a.busy = true
		return a, a.loadCmd()

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		if a.setupForm != nil {
			return a.updateSetupForm(msg)
		}
		if a.showHelp {
			a.showHelp = false
			return a, nil
		}
		return a.handleKey(msg)
	}

	if a.setupForm != nil {
		return a.updateSetupForm(msg)
	}
	return a, nil
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Quit):
		return a, tea.Quit
	case key.Matches(msg, a.keys.Help):
		a.showHelp = true
		return a, nil
	case key.Matches(msg, a.keys.Refresh):
		a.busy = true
		return a, a.loadCmd()
	case key.Matches(msg, a.keys.Start):
		return a, a.actionCmd("start")
	case key.Matches(msg, a.keys.Stop):
		return a, a.actionCmd("stop")
	case key.Matches(msg, a.keys.Toggle):
		if a.state.Running {
			return a, a.actionCmd("stop")
		}
		return a, a.actionCmd("start")
	}
	return a, nil
}

func (a App) updateSetupForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := a.setupForm.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		a.setupForm = f
	}

	switch a.setupForm.State {
	case huh.StateCompleted:
		if err := a.saveSetup(); err != nil {
			a.actionErr = "saving config: " + err.Error()
		}
		a.setupForm = nil
		return a, nil
	case huh.StateAborted:
		a.setupForm = nil
		return a, nil
	}
	return a, cmd
}

func (a *App) saveSetup() error {
	cfg := *a.setupCfg
	if err := a.setupVals.Apply(&cfg); err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return err
	}
	theme.SetActive(cfg.Appearance.Theme)
	a.target = cfg.WeeklyTarget()
	return nil
}

func (a App) loadCmd() tea.Cmd {
	b := a.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		st, err := b.Load(ctx)
		return stateMsg{state: st, err: err}
	}
}

func (a App) actionCmd(action string) tea.Cmd {
	b := a.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		var err error
		if action == "start" {
			err = b.Start(ctx)
		} else {
			err = b.Stop(ctx)
		}
		return actionMsg{action: action, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// View implements tea.Model.
func (a App) View() string {
	if a.width == 0 {
		return ""
	}
	if a.width < minTerminalWidth {
		return fmt.Sprintf("\n  Terminal too narrow (%d cols)\n  timetray needs at least %d columns.\n",
			a.width, minTerminalWidth)
	}
	if a.setupForm != nil {
		return a.setupForm.View()
	}
	if !a.loaded {
		return a.viewLoading()
	}
	if a.showHelp {
		return a.viewHelp()
	}
	return a.viewMain()
}

func (a App) contentWidth() int {
	return min(a.width, maxContentWidth)
}

func (a App) viewLoading() string {
	t := theme.Active
	card := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderAccent).
		Padding(1, 3).
		Render(a.spinner.View() + lipgloss.NewStyle().Foreground(t.TextMuted).Render(" Reading interval log..."))
	return lipgloss.Place(a.width, max(a.height, 5), lipgloss.Center, lipgloss.Center, card)
}

func (a App) viewHelp() string {
	t := theme.Active
	h := help.New()
	h.ShowAll = true
	body := lipgloss.NewStyle().Foreground(t.AccentBright).Bold(true).Render("Keys") +
		"\n\n" + h.View(a.keys) + "\n\n" +
		lipgloss.NewStyle().Foreground(t.TextDim).Render("any key to close")
	card := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderAccent).
		Padding(1, 3).
		Render(body)
	return lipgloss.Place(a.width, max(a.height, 10), lipgloss.Center, lipgloss.Center, card)
}

func (a App) viewMain() string {
	t := theme.Active
	cw := a.contentWidth()
	now := a.now()

	title := lipgloss.NewStyle().Foreground(t.AccentBright).Bold(true).Render("◈ timetray") +
		lipgloss.NewStyle().Foreground(t.TextDim).Render(" · "+a.backend.Name())

	cards := []components.Metric{a.statusMetric(now), a.weekMetric(now)}
	if a.target > 0 {
		cards = append(cards, a.targetMetric(now, components.CardInnerWidth(cw/3)))
	}
	cardRow := components.MetricCardRow(cards, cw)

	weeksBody := components.WeekBars(a.state.Rows, isoweek.KeyOf(now), components.CardInnerWidth(cw))
	weeksTitle := fmt.Sprintf("Weeks · total %s", report.FormatHHMM(a.state.Total))
	weeksCard := components.ContentCard(weeksTitle, weeksBody, cw)

	errText := a.actionErr
	if errText == "" {
		errText = a.loadErr
	}
	right := "updated " + a.lastRefresh.Format("15:04:05")
	status := components.RenderStatusBar(cw, a.help.View(a.keys), right, errText)

	body := lipgloss.JoinVertical(lipgloss.Left, title, cardRow, weeksCard)
	used := lipgloss.Height(body) + lipgloss.Height(status)
	if gap := a.height - used; gap > 0 {
		body += strings.Repeat("\n", gap)
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, status)
}

func (a App) statusMetric(now time.Time) components.Metric {
	if !a.state.Running {
		return components.Metric{Label: "Status", Value: "○ Stopped", Detail: "press space to start"}
	}
	return components.Metric{
		Label:     "Status",
		Value:     "● " + cli.FormatDuration(a.state.Elapsed(now)),
		Detail:    strings.TrimPrefix(a.state.StatusText, "Running "),
		Highlight: theme.Active.Running,
	}
}

func (a App) weekMetric(now time.Time) components.Metric {
	key := isoweek.KeyOf(now)
	return components.Metric{
		Label:  "This week · " + cli.FormatWeek(key.ISOYear, key.ISOWeek),
		Value:  report.FormatHHMM(a.state.LiveWeek(now)),
		Detail: cli.FormatDateRange(isoweek.WeekStart(now), isoweek.WeekEnd(now)),
	}
}

func (a App) targetMetric(now time.Time, width int) components.Metric {
	done := a.state.LiveWeek(now)
	remaining := a.target - done
	detail := "target reached"
	if remaining > 0 {
		detail = report.FormatHHMM(remaining) + " to go"
	}
	return components.Metric{
		Label:  "Target " + report.FormatHHMM(a.target),
		Value:  components.TargetBar(float64(done)/float64(a.target), width),
		Detail: detail,
	}
}
