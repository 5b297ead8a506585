// Package ui is the Bubble Tea dashboard: live prices, market fees,
// funding and open interest, and quote sessions with the best route
// highlighted.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fd1az/perp-router/pkg/ui/components"
)

// Phase is the screen being shown.
type Phase string

const (
	PhaseWelcome   Phase = "welcome"
	PhaseStartup   Phase = "startup"
	PhaseDashboard Phase = "dashboard"
)

// WelcomeDuration is how long the welcome screen shows before advancing.
const WelcomeDuration = 2 * time.Second

const (
	maxErrors   = 3
	maxActivity = 6
)

// StartupSteps are shown in this order while modules start.
var StartupSteps = []string{"config", "ethereum", "prices", "markets", "routes"}

var stepNames = map[string]string{
	"config":   "Loading configuration",
	"ethereum": "Connecting to node",
	"prices":   "Subscribing to price feed",
	"markets":  "Reading market registry",
	"routes":   "Preparing swap routes",
}

// ErrorEntry is one line in the error panel.
type ErrorEntry struct {
	Message   string
	Timestamp time.Time
}

// Options configures the dashboard.
type Options struct {
	Title      string
	StaleAfter time.Duration
}

// Model is the root Bubble Tea model.
type Model struct {
	opts Options
	keys KeyMap
	help help.Model

	prices  *components.PricesComponent
	markets *components.MarketsComponent
	quotes  *components.QuotesComponent
	status  *components.StatusComponent

	phase        Phase
	welcomeStart time.Time
	startupTime  time.Time
	steps        map[string]string

	width, height int
	paused        bool
	quitting      bool
	lastUpdate    time.Time
	errors        []ErrorEntry
	activity      []string
}

// New creates the dashboard model.
func New(opts Options) Model {
	if opts.Title == "" {
		opts.Title = "Perp Router"
	}
	steps := make(map[string]string, len(StartupSteps))
	for _, s := range StartupSteps {
		steps[s] = "pending"
	}
	now := time.Now()
	return Model{
		opts:         opts,
		keys:         DefaultKeyMap(),
		help:         help.New(),
		prices:       components.NewPricesComponent(opts.StaleAfter),
		markets:      components.NewMarketsComponent(),
		quotes:       components.NewQuotesComponent(4),
		status:       components.NewStatusComponent(),
		phase:        PhaseWelcome,
		welcomeStart: now,
		startupTime:  now,
		steps:        steps,
	}
}

func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width

	case TickMsg:
		if m.phase == PhaseWelcome && time.Since(m.welcomeStart) >= WelcomeDuration {
			m = m.enterStartup()
		}
		return m, tickCmd()

	case PricesMsg:
		m.markStep("prices", "connected")
		if !m.paused {
			m.prices.Update(PriceRows(msg.Quotes, time.Now()))
			m.lastUpdate = time.Now()
		}

	case MarketsMsg:
		m.markStep("markets", "connected")
		if !m.paused {
			m.markets.Update(MarketRows(msg.Markets))
			m.lastUpdate = time.Now()
		}

	case SessionMsg:
		if !m.paused {
			view := SessionRows(msg.Snapshot, msg.Pair)
			m.quotes.Upsert(view)
			if !msg.Snapshot.Loading && view.Best != "" {
				m.activity = addActivity(m.activity, fmt.Sprintf("%s %s best via %s", view.Pair, view.Amount, view.Best))
			}
			m.lastUpdate = time.Now()
		}

	case SessionClosedMsg:
		m.quotes.Remove(msg.ID)

	case ConnectionStatusMsg:
		m.status.Update(components.ConnectionStatus{
			Name:      msg.Name,
			Connected: msg.Connected,
			Latency:   msg.Latency,
			Block:     msg.Block,
			LastSeen:  time.Now(),
		})
		if strings.EqualFold(msg.Name, "node") {
			status := "connecting"
			if msg.Connected {
				status = "connected"
			}
			m.markStep("ethereum", status)
		}

	case StartupMsg:
		m.markStep(msg.Step, msg.Status)

	case ErrorMsg:
		m.errors = append(m.errors, ErrorEntry{Message: msg.Error.Error(), Timestamp: time.Now()})
		if len(m.errors) > maxErrors {
			m.errors = m.errors[len(m.errors)-maxErrors:]
		}

	case LogMsg:
		m.activity = addActivity(m.activity, fmt.Sprintf("%s: %s", msg.Level, msg.Message))
	}

	if m.phase == PhaseStartup && m.startupComplete() {
		m.phase = PhaseDashboard
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.quitting = true
		return m, tea.Quit
	}
	if m.phase == PhaseWelcome {
		return m.enterStartup(), nil
	}

	switch {
	case key.Matches(msg, m.keys.Pause):
		m.paused = !m.paused
	case key.Matches(msg, m.keys.Clear):
		m.quotes.Clear()
	case key.Matches(msg, m.keys.Errors):
		m.errors = nil
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m Model) enterStartup() Model {
	m.phase = PhaseStartup
	m.startupTime = time.Now()
	if OnStartModules != nil {
		go OnStartModules()
	}
	return m
}

func (m *Model) markStep(step, status string) {
	if _, ok := m.steps[step]; ok {
		m.steps[step] = status
	}
}

// startupComplete reports whether every step finished, either way.
func (m Model) startupComplete() bool {
	for _, s := range m.steps {
		switch s {
		case "connected", "done", "failed":
		default:
			return false
		}
	}
	return true
}

func addActivity(feed []string, message string) []string {
	feed = append(feed, fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), message))
	if len(feed) > maxActivity {
		feed = feed[len(feed)-maxActivity:]
	}
	return feed
}

func (m Model) View() string {
	if m.quitting {
		return "\n  Goodbye!\n\n"
	}
	switch m.phase {
	case PhaseWelcome:
		return m.renderWelcome()
	case PhaseStartup:
		return m.renderStartup()
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(" " + m.opts.Title + " "))
	b.WriteString("  ")
	b.WriteString(m.status.View())
	if !m.lastUpdate.IsZero() {
		b.WriteString(MutedValue.Render(fmt.Sprintf("  │  updated %s ago", time.Since(m.lastUpdate).Round(time.Second))))
	}
	b.WriteString("\n\n")

	left := m.prices.View() + "\n\n" + m.renderActivity()
	right := m.markets.View() + "\n\n" + m.quotes.View()
	if m.width > 110 {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			BoxStyle.Width(m.width/2-2).Render(left),
			BoxStyle.Width(m.width/2-2).Render(right)))
	} else {
		w := m.width - 4
		if w < 40 {
			w = 40
		}
		b.WriteString(BoxStyle.Width(w).Render(left))
		b.WriteString("\n")
		b.WriteString(BoxStyle.Width(w).Render(right))
	}
	b.WriteString("\n\n")

	if len(m.errors) > 0 {
		b.WriteString(ErrorHeader.Render("ERRORS"))
		b.WriteString("\n")
		for _, e := range m.errors {
			b.WriteString(ErrorText.Render("  • " + e.Message))
			b.WriteString(MutedValue.Render(fmt.Sprintf(" (%s ago)", time.Since(e.Timestamp).Round(time.Second))))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.paused {
		b.WriteString(PausedStyle.Render("⏸ PAUSED"))
		b.WriteString("  ")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) renderActivity() string {
	var b strings.Builder
	b.WriteString(HeaderStyle.Render("ACTIVITY"))
	b.WriteString("\n\n")
	if len(m.activity) == 0 {
		b.WriteString(MutedValue.Render("  Nothing yet..."))
		return b.String()
	}
	for _, a := range m.activity {
		b.WriteString(MutedValue.Render("  " + a))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderWelcome() string {
	dots := strings.Repeat(".", int(time.Since(m.welcomeStart).Milliseconds()/300)%4)

	var b strings.Builder
	b.WriteString("\n\n\n")
	b.WriteString(LogoStyle.Render(`
   ██████╗ ███████╗██████╗ ██████╗
   ██╔══██╗██╔════╝██╔══██╗██╔══██╗
   ██████╔╝█████╗  ██████╔╝██████╔╝
   ██╔═══╝ ██╔══╝  ██╔══██╗██╔═══╝
   ██║     ███████╗██║  ██║██║
   ╚═╝     ╚══════╝╚═╝  ╚═╝╚═╝
`))
	b.WriteString("\n")
	b.WriteString(MutedValue.Render("        R O U T E R"))
	b.WriteString("\n\n\n")
	b.WriteString(PositiveValue.Render("        Initializing" + dots))
	b.WriteString("\n\n")
	b.WriteString(MutedValue.Render("        Press any key to skip, or wait..."))
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderStartup() string {
	var b strings.Builder
	b.WriteString("\n\n")
	b.WriteString(HeaderStyle.Render("  " + m.opts.Title))
	b.WriteString("\n\n  Starting up...\n\n")

	spinners := []string{"◐", "◓", "◑", "◒"}
	for _, step := range StartupSteps {
		var icon, text string
		style := MutedValue
		switch m.steps[step] {
		case "connected", "done":
			icon, text, style = "✓", "Ready", PositiveValue
		case "connecting":
			idx := int(time.Since(m.startupTime).Milliseconds()/200) % len(spinners)
			icon, text, style = spinners[idx], "Connecting...", WarningValue
		case "failed":
			icon, text, style = "✗", "Failed", NegativeValue
		default:
			icon, text = "○", "Pending"
		}
		fmt.Fprintf(&b, "  %s %s %s\n", style.Render(icon), MutedValue.Render(stepNames[step]), style.Render(text))
	}

	b.WriteString("\n")
	b.WriteString(MutedValue.Render(fmt.Sprintf("  Elapsed: %s", time.Since(m.startupTime).Round(time.Second))))
	b.WriteString("\n")
	return b.String()
}

// Program is the running program, if any.
var Program *tea.Program

// OnStartModules is called once when the welcome screen ends.
var OnStartModules func()

// Run starts the program and blocks until it exits.
func Run(opts Options) error {
	Program = tea.NewProgram(New(opts), tea.WithAltScreen())
	_, err := Program.Run()
	return err
}

// Send delivers msg to the running program. It is a no-op without one.
func Send(msg tea.Msg) {
	if Program != nil {
		Program.Send(msg)
	}
}

// Forward relays every value from ch as a message until ctx is done or ch
// closes.
func Forward[T any](ctx context.Context, ch <-chan T, wrap func(T) tea.Msg) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-ch:
			if !ok {
				return
			}
			Send(wrap(v))
		}
	}
}
