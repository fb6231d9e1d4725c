// Package app assembles the feed, enrichment chain, metrics and refresh
// loop from a Config. The server and both terminal front ends share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/unklstewy/adsb-closest/internal/db"
	"github.com/unklstewy/adsb-closest/internal/logging"
	"github.com/unklstewy/adsb-closest/internal/metrics"
	"github.com/unklstewy/adsb-closest/internal/refresh"
	"github.com/unklstewy/adsb-closest/pkg/adsb"
	"github.com/unklstewy/adsb-closest/pkg/config"
	"github.com/unklstewy/adsb-closest/pkg/coordinates"
	"github.com/unklstewy/adsb-closest/pkg/enrich"
	"github.com/unklstewy/adsb-closest/pkg/flightaware"
)

const (
	// dbConnectAttempts bounds the startup wait for the route cache database.
	dbConnectAttempts = 3
	// pruneInterval is how often stale cached routes are removed.
	pruneInterval = time.Hour
	// pruneAgeFactor scales the route TTL to the age at which rows are deleted.
	pruneAgeFactor = 24
)

// App owns everything a front end needs to show the nearest aircraft.
type App struct {
	Config    *config.Config
	Reference *coordinates.Geographic
	Feed      adsb.Feed
	Enricher  *enrich.Chain
	Metrics   *metrics.Collector
	Loop      *refresh.Loop

	database *db.DB
	routes   *db.RouteRepository
	logger   *slog.Logger
}

// Build wires the application. A missing observer position is not an error:
// the loop reports it on every cycle. A nil registerer keeps metrics in a
// private registry.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger = logging.OrDiscard(logger)

	a := &App{Config: cfg, logger: logger}

	ref, refErr := cfg.Observer.ReferencePoint()
	if refErr != nil {
		logger.Warn("observer position not configured; every refresh will report a config error", "error", refErr)
	} else {
		a.Reference = ref
		logger.Info("observer position", "name", cfg.Observer.Name, "position", ref.String())
	}

	a.Feed = newFeed(cfg.Feed, ref)
	logger.Info("aircraft feed", "type", cfg.Feed.Type, "poll_interval", cfg.Feed.PollInterval())

	collector, err := metrics.New(reg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	a.Metrics = collector

	if cfg.Enrichment.Enabled {
		chain, err := a.buildEnrichment(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Enricher = chain
	}

	opts := refresh.Options{
		Feed:         a.Feed,
		Reference:    ref,
		ReferenceErr: refErr,
		Interval:     cfg.Feed.PollInterval(),
		FetchTimeout: cfg.Feed.Timeout(),
		Metrics:      collector,
		Logger:       logger,
	}
	if a.Enricher != nil && a.Enricher.Len() > 0 {
		opts.Enricher = a.Enricher
	}

	loop, err := refresh.New(opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Loop = loop

	return a, nil
}

// newFeed builds the configured aircraft source.
func newFeed(cfg config.FeedConfig, ref *coordinates.Geographic) adsb.Feed {
	switch cfg.Type {
	case config.FeedAirplanesLive:
		var center coordinates.Geographic
		if ref != nil {
			center = *ref
		}
		return adsb.NewAirplanesLiveClient(adsb.AirplanesLiveConfig{
			BaseURL:     cfg.URL,
			Center:      center,
			RadiusNM:    cfg.RadiusNM,
			MinInterval: cfg.RateLimit(),
			Timeout:     cfg.Timeout(),
		})
	default:
		return adsb.NewUltrafeederClient(cfg.URL, cfg.Timeout())
	}
}

// buildEnrichment assembles route sources in priority order: the local
// table, FlightAware (optionally cached in Postgres), then callsign guessing.
func (a *App) buildEnrichment(ctx context.Context) (*enrich.Chain, error) {
	cfg := a.Config
	var enrichers []enrich.Enricher

	if cfg.Enrichment.RoutesFile != "" {
		table, err := enrich.LoadStaticTable(cfg.Enrichment.RoutesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load routes table: %w", err)
		}
		a.logger.Info("route table loaded", "file", cfg.Enrichment.RoutesFile, "routes", table.Len())
		enrichers = append(enrichers, table)
	}

	if cfg.FlightAware.Enabled {
		client := flightaware.NewClient(flightaware.Config{
			APIKey:          cfg.FlightAware.APIKey,
			RequestsPerHour: cfg.FlightAware.RequestsPerHour,
		})

		var store enrich.RouteStore
		if cfg.Database.Enabled {
			if repo := a.connectRouteCache(ctx); repo != nil {
				store = repo
			}
		}

		enrichers = append(enrichers, enrich.NewFlightAwareEnricher(client, enrich.FlightAwareOptions{
			CacheSize: cfg.FlightAware.CacheSize,
			TTL:       cfg.Enrichment.RouteTTL(),
			Store:     store,
			Logger:    a.logger,
		}))
		a.logger.Info("flightaware lookups enabled",
			"requests_per_hour", cfg.FlightAware.RequestsPerHour,
			"persistent_cache", store != nil,
		)
	} else if cfg.Database.Enabled {
		a.logger.Info("database route cache skipped: flightaware lookups are disabled")
	}

	if cfg.Enrichment.GuessFromCallsign {
		var airlines map[string]string
		if cfg.Enrichment.AirlinesFile != "" {
			loaded, err := enrich.LoadAirlines(cfg.Enrichment.AirlinesFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load airlines: %w", err)
			}
			airlines = loaded
		}
		enrichers = append(enrichers, enrich.NewCallsignGuesser(airlines))
	}

	return enrich.NewChain(a.logger, enrichers...), nil
}

// connectRouteCache opens the Postgres route cache. Failures are logged and
// lookups continue with the in-memory cache only.
func (a *App) connectRouteCache(ctx context.Context) *db.RouteRepository {
	database, err := db.ConnectWithRetry(ctx, a.Config.Database, dbConnectAttempts, time.Second, a.logger)
	if err != nil {
		a.logger.Warn("route cache database unavailable, continuing without it", "error", err)
		return nil
	}
	if err := database.InitSchema(ctx); err != nil {
		a.logger.Warn("failed to initialize route cache schema, continuing without it", "error", err)
		database.Close()
		return nil
	}

	a.database = database
	a.routes = db.NewRouteRepository(database)
	a.logger.Info("route cache database connected", "host", a.Config.Database.Host)
	return a.routes
}

// Run drives the refresh loop, plus route cache maintenance when a database
// is attached, until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Loop.Run(ctx)
	})

	if a.routes != nil {
		g.Go(func() error {
			a.maintainRouteCache(ctx)
			return nil
		})
	}

	return g.Wait()
}

func (a *App) maintainRouteCache(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	maxAge := a.Config.Enrichment.RouteTTL() * pruneAgeFactor
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := db.HealthCheck(ctx, a.database); err != nil {
				a.logger.Warn("route cache database unhealthy", "error", err)
				continue
			}
			removed, err := a.routes.DeleteStale(ctx, maxAge)
			if err != nil {
				a.logger.Warn("failed to prune route cache", "error", err)
				continue
			}
			if removed > 0 {
				a.logger.Info("pruned stale routes", "removed", removed)
			}
		}
	}
}

// Close releases the feed and the database.
func (a *App) Close() error {
	var errs []error
	if a.Feed != nil {
		if err := a.Feed.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.database != nil {
		if err := a.database.Close(); err != nil {
			errs = append(errs, err)
		}
		a.database = nil
	}
	return errors.Join(errs...)
}
