package enrich

import (
	"context"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/unklstewy/adsb-closest/pkg/adsb"
	"github.com/unklstewy/adsb-closest/pkg/flightaware"
)

// FlightLookup is the part of the AeroAPI client used here.
type FlightLookup interface {
	GetFlight(ctx context.Context, ident string) (*flightaware.Flight, error)
}

// RouteStore persists looked-up routes across restarts.
type RouteStore interface {
	// GetRoute returns a route stored within maxAge, or nil.
	GetRoute(ctx context.Context, callsign string, maxAge time.Duration) (*adsb.Route, error)
	// PutRoute records a route for callsign.
	PutRoute(ctx context.Context, callsign string, route adsb.Route) error
}

// FlightAwareEnricher looks routes up by callsign through AeroAPI, with an
// in-memory LRU in front and an optional RouteStore behind it. Misses are
// cached too so an unknown callsign costs one request per TTL.
type FlightAwareEnricher struct {
	lookup FlightLookup
	store  RouteStore
	cache  *expirable.LRU[string, *adsb.Route]
	ttl    time.Duration
	logger *slog.Logger
}

// FlightAwareOptions configures a FlightAwareEnricher.
type FlightAwareOptions struct {
	CacheSize int
	TTL       time.Duration
	Store     RouteStore
	Logger    *slog.Logger
}

// NewFlightAwareEnricher wraps lookup with caching.
func NewFlightAwareEnricher(lookup FlightLookup, opts FlightAwareOptions) *FlightAwareEnricher {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	return &FlightAwareEnricher{
		lookup: lookup,
		store:  opts.Store,
		cache:  expirable.NewLRU[string, *adsb.Route](opts.CacheSize, nil, opts.TTL),
		ttl:    opts.TTL,
		logger: opts.Logger,
	}
}

// Enrich attaches the AeroAPI route for ac's callsign.
func (e *FlightAwareEnricher) Enrich(ctx context.Context, ac *adsb.Aircraft) error {
	callsign := strings.ToUpper(ac.Callsign())
	if callsign == "" {
		return nil
	}

	if route, ok := e.cache.Get(callsign); ok {
		if route != nil {
			r := *route
			ac.Route = &r
		}
		return nil
	}

	if e.store != nil {
		route, err := e.store.GetRoute(ctx, callsign, e.ttl)
		if err != nil {
			e.logger.Warn("route store read failed", "callsign", callsign, "error", err)
		} else if route != nil {
			e.cache.Add(callsign, route)
			r := *route
			ac.Route = &r
			return nil
		}
	}

	flight, err := e.lookup.GetFlight(ctx, callsign)
	if err != nil {
		// Not cached: a rate-limited or failed lookup is retried on a later cycle.
		return err
	}

	route := routeFromFlight(flight)
	e.cache.Add(callsign, route)
	if route == nil {
		return nil
	}

	if e.store != nil {
		if err := e.store.PutRoute(ctx, callsign, *route); err != nil {
			e.logger.Warn("route store write failed", "callsign", callsign, "error", err)
		}
	}

	r := *route
	ac.Route = &r
	return nil
}

func routeFromFlight(f *flightaware.Flight) *adsb.Route {
	if f == nil {
		return nil
	}
	route := &adsb.Route{
		Airline:      f.Operator,
		FlightNumber: f.IdentIATA,
		Status:       f.Status,
		Source:       SourceFlightAware,
	}
	if route.FlightNumber == "" {
		route.FlightNumber = f.Ident
	}
	if f.Origin != nil {
		route.FromIATA = firstNonEmpty(f.Origin.CodeIATA, f.Origin.CodeICAO)
		route.FromCity = firstNonEmpty(f.Origin.City, f.Origin.Name)
	}
	if f.Destination != nil {
		route.ToIATA = firstNonEmpty(f.Destination.CodeIATA, f.Destination.CodeICAO)
		route.ToCity = firstNonEmpty(f.Destination.City, f.Destination.Name)
	}
	return route
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
