// Package enrich attaches best-effort route annotations to a selected
// aircraft. Annotation runs after selection on the selector's copy and
// never influences which aircraft is chosen.
package enrich

import (
	"context"
	"io"
	"log/slog"
	"math"

	"github.com/unklstewy/adsb-closest/pkg/adsb"
)

// Route sources reported in adsb.Route.Source.
const (
	SourceTable       = "table"
	SourceFlightAware = "flightaware"
	SourceCallsign    = "callsign"
)

// Enricher annotates an aircraft in place. Implementations set ac.Route when
// they know something and leave it nil otherwise. An error means the lookup
// itself failed; the aircraft is still usable.
type Enricher interface {
	Enrich(ctx context.Context, ac *adsb.Aircraft) error
}

// Func adapts a function to the Enricher interface.
type Func func(ctx context.Context, ac *adsb.Aircraft) error

// Enrich calls f.
func (f Func) Enrich(ctx context.Context, ac *adsb.Aircraft) error {
	return f(ctx, ac)
}

// Chain runs enrichers in order until one attaches a route.
type Chain struct {
	enrichers []Enricher
	logger    *slog.Logger
}

// NewChain builds a chain; nil enrichers are skipped.
func NewChain(logger *slog.Logger, enrichers ...Enricher) *Chain {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	c := &Chain{logger: logger}
	for _, e := range enrichers {
		if e != nil {
			c.enrichers = append(c.enrichers, e)
		}
	}
	return c
}

// Len returns the number of enrichers in the chain.
func (c *Chain) Len() int {
	return len(c.enrichers)
}

// Enrich never fails: lookup errors are logged and the next enricher runs.
func (c *Chain) Enrich(ctx context.Context, ac *adsb.Aircraft) error {
	if ac == nil || ac.Route != nil {
		return nil
	}
	for _, e := range c.enrichers {
		if ctx.Err() != nil {
			return nil
		}
		if err := e.Enrich(ctx, ac); err != nil {
			c.logger.Debug("route lookup failed", "hex", ac.Hex, "callsign", ac.Callsign(), "error", err)
			continue
		}
		if ac.Route != nil {
			return nil
		}
	}
	return nil
}
