package enrich

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/unklstewy/adsb-closest/pkg/adsb"
)

// routeRow is one line of a routes CSV file.
type routeRow struct {
	Hex          string `csv:"hex"`
	Airline      string `csv:"airline"`
	FlightNumber string `csv:"flight_number"`
	FromIATA     string `csv:"from_iata"`
	ToIATA       string `csv:"to_iata"`
	FromCity     string `csv:"from_city"`
	ToCity       string `csv:"to_city"`
	Status       string `csv:"status"`
}

// StaticTable annotates aircraft from a fixed hex -> route table.
type StaticTable struct {
	routes map[string]adsb.Route
}

// NewStaticTable builds a table from routes keyed by hex (any case).
func NewStaticTable(routes map[string]adsb.Route) *StaticTable {
	t := &StaticTable{routes: make(map[string]adsb.Route, len(routes))}
	for hex, r := range routes {
		r.Source = SourceTable
		t.routes[normalizeHex(hex)] = r
	}
	return t
}

// LoadStaticTable reads a routes CSV with the header
// hex,airline,flight_number,from_iata,to_iata,from_city,to_city,status.
func LoadStaticTable(path string) (*StaticTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open routes file: %w", err)
	}
	defer f.Close()
	return ReadStaticTable(f)
}

// ReadStaticTable parses a routes CSV from r.
func ReadStaticTable(r io.Reader) (*StaticTable, error) {
	var rows []*routeRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parse routes CSV: %w", err)
	}

	routes := make(map[string]adsb.Route, len(rows))
	for _, row := range rows {
		if strings.TrimSpace(row.Hex) == "" {
			continue
		}
		routes[row.Hex] = adsb.Route{
			Airline:      strings.TrimSpace(row.Airline),
			FlightNumber: strings.TrimSpace(row.FlightNumber),
			FromIATA:     strings.TrimSpace(row.FromIATA),
			ToIATA:       strings.TrimSpace(row.ToIATA),
			FromCity:     strings.TrimSpace(row.FromCity),
			ToCity:       strings.TrimSpace(row.ToCity),
			Status:       strings.TrimSpace(row.Status),
		}
	}
	return NewStaticTable(routes), nil
}

// Len returns the number of routes in the table.
func (t *StaticTable) Len() int {
	return len(t.routes)
}

// Enrich attaches the table entry for ac.Hex, if any.
func (t *StaticTable) Enrich(_ context.Context, ac *adsb.Aircraft) error {
	if r, ok := t.routes[normalizeHex(ac.Hex)]; ok {
		route := r
		ac.Route = &route
	}
	return nil
}

func normalizeHex(hex string) string {
	return strings.ToUpper(strings.TrimSpace(hex))
}
