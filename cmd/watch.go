// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Thermoquad/vibmon/pkg/bus"
	"github.com/Thermoquad/vibmon/pkg/config"
	"github.com/Thermoquad/vibmon/pkg/vibproto"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const refreshInterval = 100 * time.Millisecond

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the control loop with a live dashboard",
	Long: `Run the control loop on the local bus with a terminal dashboard.

The dashboard shows the link state, safety status, current, peak and RMS
magnitude, the latched e-stop trigger and recent log events. The operator
inputs are driven from the keyboard:

  e  toggle enable
  r  reset the peak
  q  quit`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	addPipelineFlags(watchCmd)
}

// watchKeys are the dashboard key bindings
type watchKeys struct {
	Enable    key.Binding
	ResetPeak key.Binding
	Help      key.Binding
	Quit      key.Binding
}

func defaultWatchKeys() watchKeys {
	return watchKeys{
		Enable: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "toggle enable"),
		),
		ResetPeak: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reset peak"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k watchKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Enable, k.ResetPeak, k.Help, k.Quit}
}

func (k watchKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Enable, k.ResetPeak}, {k.Help, k.Quit}}
}

// watchModel is the Bubble Tea model for the dashboard
type watchModel struct {
	local    *bus.Local
	feed     *dashboardFeed
	connInfo string
	started  time.Time

	keys  watchKeys
	help  help.Model
	gauge progress.Model

	inputs       bus.Inputs
	outputs      bus.Outputs
	snap         feedSnapshot
	resetPending bool

	width    int
	height   int
	quitting bool
}

type refreshMsg time.Time

func newWatchModel(local *bus.Local, feed *dashboardFeed, connInfo string) watchModel {
	return watchModel{
		local:    local,
		feed:     feed,
		connInfo: connInfo,
		started:  time.Now(),
		keys:     defaultWatchKeys(),
		help:     help.New(),
		gauge:    progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		inputs:   local.Inputs(),
		outputs:  local.Outputs(),
		width:    80,
		height:   24,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(
		refreshCmd(),
		tea.EnterAltScreen,
	)
}

func refreshCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Enable):
			m.local.SetEnable(!m.local.Inputs().Enable)
		case key.Matches(msg, m.keys.ResetPeak):
			// Held high until the next refresh so the loop sees a rising edge
			m.local.SetResetPeak(true)
			m.resetPending = true
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
		m.inputs = m.local.Inputs()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.gauge.Width = msg.Width - 24
		if m.gauge.Width < 10 {
			m.gauge.Width = 10
		}

	case refreshMsg:
		if m.resetPending {
			m.local.SetResetPeak(false)
			m.resetPending = false
		}
		m.inputs = m.local.Inputs()
		m.outputs = m.local.Outputs()
		m.snap = m.feed.snapshot()
		return m, refreshCmd()
	}

	return m, nil
}

// Styles
var titleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("12")).
	Background(lipgloss.Color("235")).
	Padding(0, 1)

var headerStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("241"))

var labelStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("12")).
	Bold(true)

var valueStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("10"))

var errorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("9")).
	Bold(true)

var warningStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("11"))

var estopStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("15")).
	Background(lipgloss.Color("9")).
	Padding(0, 1)

var boxStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("240")).
	Padding(0, 1)

// statusStyle colours a safety status
func statusStyle(s vibproto.SafetyStatus) lipgloss.Style {
	switch s {
	case vibproto.StatusOk:
		return valueStyle
	case vibproto.StatusWarning:
		return warningStyle
	default:
		return errorStyle
	}
}

// gaugePercent scales current against the critical threshold
func gaugePercent(current, crit float64) float64 {
	if crit <= 0 {
		return 0
	}
	p := current / crit
	if p > 1 {
		return 1
	}
	if p < 0 {
		return 0
	}
	return p
}

func (m watchModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	out, in := m.outputs, m.inputs

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("VIBMON - VIBRATION MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Running %s",
		m.connInfo, formatUptime(time.Since(m.started)))))
	s.WriteString("\n\n")

	// Link and safety state
	if out.Connected {
		s.WriteString(valueStyle.Render("✓ Connected"))
	} else {
		s.WriteString(warningStyle.Render("⏳ Waiting for probe..."))
	}
	s.WriteString("   ")
	if in.Enable {
		s.WriteString(valueStyle.Render("Monitoring ON"))
	} else {
		s.WriteString(headerStyle.Render("Monitoring OFF"))
	}
	if out.EstopTrigger {
		s.WriteString("   ")
		s.WriteString(estopStyle.Render("E-STOP TRIGGERED"))
	}
	s.WriteString("\n\n")

	// Readings
	readings := strings.Builder{}
	readings.WriteString(fmt.Sprintf("%s %s\n",
		labelStyle.Render("Status: "), statusStyle(out.Status).Render(out.Status.String())))
	readings.WriteString(fmt.Sprintf("%s %s %s\n",
		labelStyle.Render("Current:"), valueStyle.Render(fmt.Sprintf("%6.3f g", out.Current)),
		m.gauge.ViewAs(gaugePercent(out.Current, in.ThresholdCrit))))
	readings.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		labelStyle.Render("Peak:   "), valueStyle.Render(fmt.Sprintf("%6.3f g", out.Peak)),
		labelStyle.Render("RMS:"), valueStyle.Render(fmt.Sprintf("%6.3f g", out.RMS))))
	readings.WriteString(headerStyle.Render(fmt.Sprintf("Thresholds: warn %.2f g, crit %.2f g (advisory)",
		in.ThresholdWarn, in.ThresholdCrit)))

	s.WriteString(boxStyle.Render(readings.String()))
	s.WriteString("\n\n")

	// Diagnostics
	stats := strings.Builder{}
	stats.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		labelStyle.Render("Data:"), valueStyle.Render(fmt.Sprintf("%d", m.snap.frames[vibproto.EventData])),
		labelStyle.Render("Info:"), valueStyle.Render(fmt.Sprintf("%d", m.snap.frames[vibproto.EventInfo])),
		labelStyle.Render("Errors:"), func() string {
			n := m.snap.frames[vibproto.EventParseFailure]
			if n > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", n))
			}
			return valueStyle.Render("0")
		}(),
	))
	if sum := m.snap.summary; sum != nil {
		stats.WriteString("\n")
		stats.WriteString(fmt.Sprintf("%s %s",
			labelStyle.Render("Last report:"), headerStyle.Render(sum.String())))
	}
	s.WriteString(boxStyle.Render(stats.String()))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 20
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	events := m.snap.events
	startIdx := len(events) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(events) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for _, entry := range events[startIdx:] {
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))
	s.WriteString("\n")
	s.WriteString(m.help.View(m.keys))

	return s.String()
}

func runWatch(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("watch needs a terminal; use 'vibmon run' for headless operation")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyPipelineFlags(cmd, cfg); err != nil {
		return err
	}
	if cfg.Bus.Kind != config.BusLocal {
		fmt.Fprintf(os.Stderr, "watch drives inputs from the keyboard; using the local bus instead of %s\n", cfg.Bus.Kind)
		cfg.Bus.Kind = config.BusLocal
	}
	if err := resolveConnection(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Log output goes to the event panel while the dashboard owns the terminal
	feed := newDashboardFeed(100)
	prevOutput, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(feed)
	log.SetFlags(0)
	defer func() {
		log.SetOutput(prevOutput)
		log.SetFlags(prevFlags)
	}()

	p, err := newPipeline(ctx, cfg, feed)
	if err != nil {
		return err
	}

	loopCtx, cancelLoop := context.WithCancel(ctx)
	var wg sync.WaitGroup
	var runErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = p.Run(loopCtx)
	}()

	program := tea.NewProgram(newWatchModel(p.local, feed, describeProbe(cfg)), tea.WithContext(ctx))
	_, uiErr := program.Run()

	cancelLoop()
	wg.Wait()
	log.SetOutput(prevOutput)
	log.SetFlags(prevFlags)

	if err := p.Close(); err != nil {
		log.Printf("[vibmon] Error closing sample log: %v", err)
	}
	if uiErr != nil && ctx.Err() == nil {
		return fmt.Errorf("dashboard error: %w", uiErr)
	}
	return runErr
}
