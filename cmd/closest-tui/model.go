package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/adsb-closest/internal/refresh"
	"github.com/unklstewy/adsb-closest/pkg/closest"
	"github.com/unklstewy/adsb-closest/pkg/display"
)

// refresher is the part of the refresh loop the model drives.
type refresher interface {
	Refresh()
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)
	flightStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("231"))
	distanceStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("226")).
			Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(13)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("231"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	cardStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(1, 2)
	statusStyle = map[string]lipgloss.Style{
		display.StatusClimbing:   lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		display.StatusDescending: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		display.StatusLevel:      lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	}
)

type stateMsg refresh.State

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(150*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type model struct {
	loop  refresher
	title string
	state refresh.State
	now   time.Time
	frame int
	width int
}

func newModel(loop refresher, title string, initial refresh.State) model {
	return model{
		loop:  loop,
		title: title,
		state: initial,
		now:   time.Now(),
	}
}

func (m model) Init() tea.Cmd {
	return tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			m.loop.Refresh()
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case stateMsg:
		m.state = refresh.State(msg)
	case tickMsg:
		m.now = time.Time(msg)
		m.frame = (m.frame + 1) % len(spinnerFrames)
		return m, tick()
	}
	return m, nil
}

func (m model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(strings.ToUpper(m.title)))
	s.WriteString("\n\n")

	res := m.state.Result
	switch res.Outcome {
	case closest.OutcomeFound:
		s.WriteString(renderCard(display.NewCard(*res.Aircraft)))
	case closest.OutcomeError:
		s.WriteString(errStyle.Render(display.Headline(res)))
		if res.Failure != nil && res.Failure.Kind == closest.KindConfig {
			s.WriteString("\n")
			s.WriteString(mutedStyle.Render("Set the observer position in the config file or environment."))
		}
	default:
		s.WriteString(mutedStyle.Render(display.Headline(res)))
	}
	s.WriteString("\n\n")

	freshness := display.Freshness(m.state.UpdatedAt, m.state.Fetching, m.now)
	if m.state.Fetching {
		freshness = spinnerFrames[m.frame] + " " + freshness
	}
	s.WriteString(mutedStyle.Render(freshness))
	if res.Outcome == closest.OutcomeFound || res.Outcome == closest.OutcomeNone {
		s.WriteString(mutedStyle.Render(fmt.Sprintf("  ·  %d tracked, %d with position", res.Tracked, res.Positioned)))
	}
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("r: refresh  q: quit"))
	s.WriteString("\n")

	return s.String()
}

func renderCard(card display.Card) string {
	var b strings.Builder

	status := card.Status
	if style, ok := statusStyle[status]; ok {
		status = style.Render(status)
	}
	header := flightStyle.Render(card.Title) + "  " + status
	if card.Airline != "" {
		header += "\n" + mutedStyle.Render(card.Airline)
	}
	if card.RouteLine != "" {
		header += "\n" + valueStyle.Render(card.RouteLine)
	}
	header += "\n" + mutedStyle.Render(card.OriginDestination)

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, header, "   ", distanceStyle.Render(card.Distance)))
	b.WriteString("\n\n")

	altitude := card.Altitude
	if card.AltitudeMeters != "" {
		altitude += mutedStyle.Render(" (" + card.AltitudeMeters + ")")
	}
	if card.VerticalRate != "" {
		altitude += mutedStyle.Render("  " + card.VerticalRate)
	}
	speed := card.Speed
	if card.SpeedKmh != "" {
		speed += mutedStyle.Render(" (" + card.SpeedKmh + ")")
	}

	rows := [][2]string{
		{"Altitude", altitude},
		{"Speed", speed},
		{"Heading", card.Heading},
		{"Coordinates", card.Coordinates},
		{"Squawk", card.Squawk},
		{"ICAO", card.ICAO},
		{"Last seen", card.LastSeen},
		{"Signal", card.Signal},
	}
	for _, row := range rows {
		b.WriteString(labelStyle.Render(row[0]))
		b.WriteString(valueStyle.Render(row[1]))
		b.WriteString("\n")
	}

	return cardStyle.Render(strings.TrimRight(b.String(), "\n"))
}
