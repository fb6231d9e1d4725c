package server

import (
	"embed"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/unklstewy/adsb-closest/internal/refresh"
	"github.com/unklstewy/adsb-closest/pkg/closest"
	"github.com/unklstewy/adsb-closest/pkg/display"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// pageRefreshSeconds is how often the status page reloads itself.
const pageRefreshSeconds = 3

// pageData feeds templates/index.html.
type pageData struct {
	Title          string
	RefreshSeconds int
	Card           *display.Card
	StatusClass    string
	Error          bool
	Headline       string
	Freshness      string
}

func newPageData(title string, state refresh.State, now time.Time) pageData {
	data := pageData{
		Title:          title,
		RefreshSeconds: pageRefreshSeconds,
		Headline:       display.Headline(state.Result),
		Freshness:      display.Freshness(state.UpdatedAt, state.Fetching, now),
		Error:          state.Result.Outcome == closest.OutcomeError,
	}
	if state.Result.Outcome == closest.OutcomeFound {
		card := display.NewCard(*state.Result.Aircraft)
		data.Card = &card
		if fields := strings.Fields(card.Status); len(fields) > 0 {
			data.StatusClass = fields[0]
		}
	}
	return data
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := newPageData(s.title, s.source.Current(), time.Now())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		s.logger.Error("failed to render status page", "error", err)
	}
}
