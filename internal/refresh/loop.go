// Package refresh runs the periodic fetch-and-select cycle and holds the
// latest result for presentation surfaces.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unklstewy/adsb-closest/internal/metrics"
	"github.com/unklstewy/adsb-closest/pkg/adsb"
	"github.com/unklstewy/adsb-closest/pkg/closest"
	"github.com/unklstewy/adsb-closest/pkg/coordinates"
	"github.com/unklstewy/adsb-closest/pkg/enrich"
)

const (
	// DefaultInterval is the time between cycle starts.
	DefaultInterval = 3 * time.Second
	// DefaultEnrichTimeout bounds route annotation of the selected aircraft.
	DefaultEnrichTimeout = 2 * time.Second
)

// ErrRunning is returned by Run when the loop is already running.
var ErrRunning = errors.New("refresh loop already running")

// State is a consistent view of the loop. Result is replaced wholesale by
// every completed cycle; callers must treat it as read-only.
type State struct {
	Result    closest.Result
	Fetching  bool
	UpdatedAt time.Time
	Cycle     uint64
}

// Options configures a Loop.
type Options struct {
	Feed adsb.Feed

	// Reference is the observer position. When nil every cycle stores a
	// config error built from ReferenceErr without fetching.
	Reference    *coordinates.Geographic
	ReferenceErr error

	Interval      time.Duration
	FetchTimeout  time.Duration
	Enricher      enrich.Enricher
	EnrichTimeout time.Duration

	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Loop owns the refresh cycle. It is safe for concurrent use.
type Loop struct {
	feed          adsb.Feed
	reference     *coordinates.Geographic
	referenceErr  error
	interval      time.Duration
	fetchTimeout  time.Duration
	enricher      enrich.Enricher
	enrichTimeout time.Duration
	metrics       *metrics.Collector
	logger        *slog.Logger

	mu        sync.RWMutex
	state     State
	listeners []func(State)

	running atomic.Bool
	trigger chan struct{}

	lifecycle sync.Mutex
	stop      context.CancelFunc
	done      chan struct{}
}

// New creates a loop. It does not start it.
func New(opts Options) (*Loop, error) {
	if opts.Feed == nil {
		return nil, errors.New("refresh: feed is required")
	}

	l := &Loop{
		feed:          opts.Feed,
		reference:     opts.Reference,
		referenceErr:  opts.ReferenceErr,
		interval:      opts.Interval,
		fetchTimeout:  opts.FetchTimeout,
		enricher:      opts.Enricher,
		enrichTimeout: opts.EnrichTimeout,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		trigger:       make(chan struct{}, 1),
	}
	if l.interval <= 0 {
		l.interval = DefaultInterval
	}
	if l.enrichTimeout <= 0 {
		l.enrichTimeout = DefaultEnrichTimeout
	}
	if l.logger == nil {
		l.logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	if l.reference != nil {
		ref := *l.reference
		l.reference = &ref
	} else if l.referenceErr == nil {
		l.referenceErr = closest.ErrReferenceUnset
	}
	return l, nil
}

// Interval returns the configured cycle interval.
func (l *Loop) Interval() time.Duration {
	return l.interval
}

// Current returns the latest state.
func (l *Loop) Current() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Notify registers fn to receive every state change. fn runs on the loop
// goroutine and must not block for long.
func (l *Loop) Notify(fn func(State)) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Refresh requests an out-of-band cycle. Requests made while one is already
// pending are collapsed into it.
func (l *Loop) Refresh() {
	select {
	case l.trigger <- struct{}{}:
	default:
	}
}

// Run performs the first cycle immediately and then one per interval until
// ctx is cancelled. Cancellation abandons an in-flight fetch.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)

	l.logger.Info("refresh loop started", "interval", l.interval, "reference_set", l.reference != nil)

	l.cycle(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("refresh loop stopped", "cycles", l.Current().Cycle)
			return nil
		case <-ticker.C:
			l.cycle(ctx)
		case <-l.trigger:
			l.cycle(ctx)
			ticker.Reset(l.interval)
		}
	}
}

// Start runs the loop in a background goroutine until Stop is called or
// ctx is cancelled.
func (l *Loop) Start(ctx context.Context) {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()
	if l.stop != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.stop = cancel
	l.done = done

	go func() {
		defer close(done)
		if err := l.Run(ctx); err != nil {
			l.logger.Error("refresh loop exited", "error", err)
		}
	}()
}

// Stop cancels a loop started with Start and waits for it to exit.
func (l *Loop) Stop() {
	l.lifecycle.Lock()
	cancel, done := l.stop, l.done
	l.stop, l.done = nil, nil
	l.lifecycle.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (l *Loop) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("panic in refresh cycle", "panic", r, "stack", string(debug.Stack()))
			l.store(closest.Failed(closest.Failure{
				Kind:   closest.KindInternal,
				Reason: fmt.Sprint(r),
			}), time.Since(start))
		}
	}()

	if l.reference == nil {
		l.store(closest.FromError(l.referenceErr), time.Since(start))
		return
	}

	l.setFetching(true)
	res, ok := l.fetch(ctx)
	if !ok {
		l.setFetching(false)
		l.logger.Debug("refresh cycle abandoned")
		return
	}
	l.store(res, time.Since(start))
}

// fetch returns false when ctx was cancelled and the result must be dropped.
func (l *Loop) fetch(ctx context.Context) (closest.Result, bool) {
	fetchCtx := ctx
	if l.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, l.fetchTimeout)
		defer cancel()
	}

	snap, err := l.feed.Snapshot(fetchCtx)
	if ctx.Err() != nil {
		return closest.Result{}, false
	}
	if err != nil {
		return closest.FromError(err), true
	}
	if snap.Skipped > 0 {
		l.logger.Debug("skipped malformed aircraft entries", "skipped", snap.Skipped, "kept", len(snap.Aircraft))
	}

	res := closest.Select(snap, l.reference)
	if res.Outcome == closest.OutcomeFound && l.enricher != nil {
		l.annotate(ctx, res.Aircraft)
		if ctx.Err() != nil {
			return closest.Result{}, false
		}
	}
	return res, true
}

func (l *Loop) annotate(ctx context.Context, ac *adsb.Aircraft) {
	ctx, cancel := context.WithTimeout(ctx, l.enrichTimeout)
	defer cancel()

	if err := l.enricher.Enrich(ctx, ac); err != nil {
		l.logger.Debug("enrichment failed", "hex", ac.Hex, "error", err)
		return
	}
	if ac.Route != nil {
		l.metrics.ObserveEnrichment(ac.Route.Source)
	}
}

func (l *Loop) setFetching(fetching bool) {
	l.mu.Lock()
	l.state.Fetching = fetching
	snapshot, listeners := l.state, l.listeners
	l.mu.Unlock()

	notify(listeners, snapshot)
}

func (l *Loop) store(res closest.Result, elapsed time.Duration) {
	l.mu.Lock()
	l.state = State{
		Result:    res,
		Fetching:  false,
		UpdatedAt: time.Now(),
		Cycle:     l.state.Cycle + 1,
	}
	snapshot, listeners := l.state, l.listeners
	l.mu.Unlock()

	l.metrics.ObserveCycle(res, elapsed)
	l.logResult(snapshot, elapsed)
	notify(listeners, snapshot)
}

func (l *Loop) logResult(s State, elapsed time.Duration) {
	res := s.Result
	switch res.Outcome {
	case closest.OutcomeFound:
		attrs := []any{
			"cycle", s.Cycle,
			"hex", res.Aircraft.Hex,
			"callsign", res.Aircraft.Callsign(),
			"distance_km", *res.Aircraft.DistanceKm,
			"tracked", res.Tracked,
			"elapsed", elapsed,
		}
		if res.Aircraft.Route != nil {
			attrs = append(attrs, "route_source", res.Aircraft.Route.Source)
		}
		l.logger.Debug("closest aircraft", attrs...)
	case closest.OutcomeNone:
		l.logger.Debug("no aircraft with coordinates", "cycle", s.Cycle, "tracked", res.Tracked)
	case closest.OutcomeError:
		l.logger.Warn("refresh failed, will retry in next cycle",
			"cycle", s.Cycle,
			"kind", res.Failure.Kind,
			"reason", res.Failure.Reason,
			"status_code", res.Failure.StatusCode,
		)
	}
}

func notify(listeners []func(State), s State) {
	for _, fn := range listeners {
		fn(s)
	}
}
