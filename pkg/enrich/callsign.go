package enrich

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/unklstewy/adsb-closest/pkg/adsb"
)

// callsignPattern matches an airline designator followed by a flight number.
var callsignPattern = regexp.MustCompile(`^([A-Za-z]{2,3})(\d+)$`)

// defaultAirlines covers the IATA designators the dashboard knew about plus
// the ICAO designators that actually appear in ADS-B callsigns.
var defaultAirlines = map[string]string{
	"LH": "Lufthansa", "DLH": "Lufthansa",
	"BA": "British Airways", "BAW": "British Airways",
	"AF": "Air France", "AFR": "Air France",
	"UA": "United Airlines", "UAL": "United Airlines",
	"AA": "American Airlines", "AAL": "American Airlines",
	"DL": "Delta Airlines", "DAL": "Delta Airlines",
	"EZY": "EasyJet", "U2": "EasyJet",
	"FR": "Ryanair", "RYR": "Ryanair",
	"EK": "Emirates", "UAE": "Emirates",
	"QF": "Qantas", "QFA": "Qantas",
	"SQ": "Singapore Airlines", "SIA": "Singapore Airlines",
	"TK": "Turkish Airlines", "THY": "Turkish Airlines",
	"LX": "Swiss", "SWR": "Swiss",
	"OS": "Austrian", "AUA": "Austrian",
	"KL": "KLM", "KLM": "KLM",
}

// airlineRow is one line of an airlines CSV file.
type airlineRow struct {
	Code string `csv:"code"`
	Name string `csv:"name"`
}

// CallsignGuesser derives airline and flight number from the callsign.
// It is a heuristic: origin and destination are never known.
type CallsignGuesser struct {
	airlines map[string]string
}

// NewCallsignGuesser returns a guesser using the built-in airline table
// extended (and overridden) by extra.
func NewCallsignGuesser(extra map[string]string) *CallsignGuesser {
	airlines := make(map[string]string, len(defaultAirlines)+len(extra))
	for code, name := range defaultAirlines {
		airlines[code] = name
	}
	for code, name := range extra {
		airlines[strings.ToUpper(strings.TrimSpace(code))] = strings.TrimSpace(name)
	}
	return &CallsignGuesser{airlines: airlines}
}

// LoadAirlines reads a CSV with the header code,name.
func LoadAirlines(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open airlines file: %w", err)
	}
	defer f.Close()
	return ReadAirlines(f)
}

// ReadAirlines parses an airlines CSV from r.
func ReadAirlines(r io.Reader) (map[string]string, error) {
	var rows []*airlineRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parse airlines CSV: %w", err)
	}
	airlines := make(map[string]string, len(rows))
	for _, row := range rows {
		if row.Code == "" || row.Name == "" {
			continue
		}
		airlines[row.Code] = row.Name
	}
	return airlines, nil
}

// Guess returns the route implied by callsign, or nil when the callsign is
// not designator+number.
func (g *CallsignGuesser) Guess(callsign string) *adsb.Route {
	m := callsignPattern.FindStringSubmatch(strings.TrimSpace(callsign))
	if m == nil {
		return nil
	}
	code := strings.ToUpper(m[1])
	airline, ok := g.airlines[code]
	if !ok {
		airline = code
	}
	return &adsb.Route{
		Airline:      airline,
		FlightNumber: code + m[2],
		Status:       "En Route",
		Source:       SourceCallsign,
	}
}

// Enrich attaches a guessed route when the callsign has the expected shape.
func (g *CallsignGuesser) Enrich(_ context.Context, ac *adsb.Aircraft) error {
	if r := g.Guess(ac.Callsign()); r != nil {
		ac.Route = r
	}
	return nil
}
