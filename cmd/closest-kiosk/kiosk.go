package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/unklstewy/adsb-closest/internal/refresh"
	"github.com/unklstewy/adsb-closest/pkg/closest"
	"github.com/unklstewy/adsb-closest/pkg/display"
)

// clockInterval redraws the freshness line between refresh cycles.
const clockInterval = time.Second

type refresher interface {
	Refresh()
}

// Kiosk is a full-screen card for unattended displays.
type Kiosk struct {
	loop  refresher
	title string

	app    *tview.Application
	header *tview.TextView
	card   *tview.TextView
	footer *tview.TextView
	root   *tview.Flex

	mu    sync.RWMutex
	state refresh.State

	// redraw holds at most one pending redraw request.
	redraw chan struct{}
}

// NewKiosk creates the kiosk layout.
func NewKiosk(loop refresher, title string) *Kiosk {
	k := &Kiosk{
		loop:   loop,
		title:  title,
		app:    tview.NewApplication(),
		redraw: make(chan struct{}, 1),
	}

	k.header = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	k.card = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	k.card.SetBorder(true).SetTitle(" Nearest Aircraft ")
	k.footer = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)

	k.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(k.header, 1, 0, false).
		AddItem(k.card, 0, 1, true).
		AddItem(k.footer, 1, 0, false)

	k.app.SetRoot(k.root, true)
	k.app.SetInputCapture(k.handleKeyboard)
	k.render(time.Now())

	return k
}

// Update stores a new loop state and requests a redraw. It never blocks,
// so it is safe to use as a refresh loop listener.
func (k *Kiosk) Update(s refresh.State) {
	k.mu.Lock()
	k.state = s
	k.mu.Unlock()

	select {
	case k.redraw <- struct{}{}:
	default:
	}
}

// Run blocks until the user quits.
func (k *Kiosk) Run() error {
	stopped := make(chan struct{})
	defer close(stopped)

	go k.renderLoop(stopped)

	return k.app.Run()
}

// renderLoop redraws on state updates and once per clockInterval until
// stopped is closed.
func (k *Kiosk) renderLoop(stopped <-chan struct{}) {
	ticker := time.NewTicker(clockInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopped:
			return
		case <-k.redraw:
		case <-ticker.C:
		}
		k.queueDraw(stopped)
	}
}

// queueDraw hands a render to the tview event loop. QueueUpdateDraw waits
// for the event loop, which never runs again once the app has stopped, so
// the wait is abandoned when stopped is closed.
func (k *Kiosk) queueDraw(stopped <-chan struct{}) {
	drawn := make(chan struct{})
	go func() {
		k.app.QueueUpdateDraw(func() {
			k.render(time.Now())
		})
		close(drawn)
	}()

	select {
	case <-drawn:
	case <-stopped:
	}
}

func (k *Kiosk) handleKeyboard(event *tcell.EventKey) *tcell.EventKey {
	if k.handleKey(event.Key(), event.Rune()) {
		return nil
	}
	return event
}

// handleKey reports whether the key was consumed.
func (k *Kiosk) handleKey(key tcell.Key, r rune) bool {
	switch {
	case key == tcell.KeyCtrlC || key == tcell.KeyEscape || r == 'q':
		k.app.Stop()
		return true
	case r == 'r':
		k.loop.Refresh()
		return true
	}
	return false
}

func (k *Kiosk) render(now time.Time) {
	k.mu.RLock()
	s := k.state
	k.mu.RUnlock()

	k.header.SetText(fmt.Sprintf("[::b]%s[-:-:-]", tview.Escape(strings.ToUpper(k.title))))
	k.card.SetText(cardText(s.Result))
	k.footer.SetText(footerText(s, now))
}

// cardText renders a result as tview-tagged text.
func cardText(res closest.Result) string {
	switch res.Outcome {
	case closest.OutcomeFound:
	case closest.OutcomeError:
		text := "\n[red]" + tview.Escape(display.Headline(res)) + "[-]"
		if res.Failure != nil && res.Failure.Kind == closest.KindConfig {
			text += "\n\n[gray]Set the observer position in the config file or environment.[-]"
		}
		return text
	default:
		return "\n[gray]" + tview.Escape(display.Headline(res)) + "[-]"
	}

	c := display.NewCard(*res.Aircraft)
	var b strings.Builder

	fmt.Fprintf(&b, "\n[white::b]%s[-:-:-]  [%s]%s[-]\n", tview.Escape(c.Title), statusColor(c.Status), c.Status)
	if c.Airline != "" {
		fmt.Fprintf(&b, "[gray]%s[-]\n", tview.Escape(c.Airline))
	}
	if c.RouteLine != "" {
		fmt.Fprintf(&b, "[white]%s[-]\n", tview.Escape(c.RouteLine))
	}
	fmt.Fprintf(&b, "[gray]%s[-]\n\n", tview.Escape(c.OriginDestination))
	fmt.Fprintf(&b, "[yellow::b]%s away[-:-:-]\n\n", c.Distance)

	altitude := c.Altitude
	if c.AltitudeMeters != "" {
		altitude += " [gray](" + c.AltitudeMeters + ")[-]"
	}
	if c.VerticalRate != "" {
		altitude += "  [gray]" + c.VerticalRate + "[-]"
	}
	speed := c.Speed
	if c.SpeedKmh != "" {
		speed += " [gray](" + c.SpeedKmh + ")[-]"
	}

	rows := [][2]string{
		{"Altitude", altitude},
		{"Speed", speed},
		{"Heading", c.Heading},
		{"Coordinates", c.Coordinates},
		{"Squawk", c.Squawk},
		{"ICAO", c.ICAO},
		{"Last seen", c.LastSeen},
		{"Signal", c.Signal},
	}
	for _, row := range rows {
		fmt.Fprintf(&b, "[gray]%-12s[-] %s\n", row[0], row[1])
	}

	return b.String()
}

func footerText(s refresh.State, now time.Time) string {
	text := display.Freshness(s.UpdatedAt, s.Fetching, now)
	res := s.Result
	if res.Outcome == closest.OutcomeFound || res.Outcome == closest.OutcomeNone {
		text += fmt.Sprintf("  ·  %d tracked, %d with position", res.Tracked, res.Positioned)
	}
	return "[gray]" + text + "  ·  r: refresh  q: quit[-]"
}

func statusColor(status string) string {
	switch status {
	case display.StatusClimbing:
		return "green"
	case display.StatusDescending:
		return "orange"
	case display.StatusLevel:
		return "aqua"
	default:
		return "white"
	}
}
