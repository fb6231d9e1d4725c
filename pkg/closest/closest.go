// Package closest selects the aircraft nearest to a fixed reference point
// and defines the result type shared by the refresh loop and presentation.
package closest

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/unklstewy/adsb-closest/pkg/adsb"
	"github.com/unklstewy/adsb-closest/pkg/coordinates"
)

// ErrReferenceUnset is returned when no observer position is configured.
var ErrReferenceUnset = errors.New("reference point not configured")

// Outcome is the variant held by a Result.
type Outcome int

const (
	// OutcomePending means no cycle has completed yet.
	OutcomePending Outcome = iota
	// OutcomeFound means an aircraft was selected.
	OutcomeFound
	// OutcomeNone means the snapshot had no aircraft with usable coordinates.
	OutcomeNone
	// OutcomeError means the cycle failed; see Result.Failure.
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeNone:
		return "none"
	case OutcomeError:
		return "error"
	default:
		return "pending"
	}
}

// ErrorKind classifies a failed cycle.
type ErrorKind string

const (
	// KindConfig is a missing or invalid reference point. Not retryable.
	KindConfig ErrorKind = "config"
	// KindTransport is an unreachable upstream, a timeout or a non-success status.
	KindTransport ErrorKind = "transport"
	// KindParse is a payload that is not valid JSON or lacks the aircraft list.
	KindParse ErrorKind = "parse"
	// KindInternal is a recovered panic inside a cycle.
	KindInternal ErrorKind = "internal"
)

// Failure describes why a cycle produced no selection.
type Failure struct {
	Kind       ErrorKind `json:"kind"`
	Reason     string    `json:"reason"`
	StatusCode int       `json:"status_code,omitempty"`
}

func (f *Failure) Error() string {
	if f.StatusCode != 0 {
		return fmt.Sprintf("%s error (%d): %s", f.Kind, f.StatusCode, f.Reason)
	}
	return fmt.Sprintf("%s error: %s", f.Kind, f.Reason)
}

// Result is the outcome of one selection. Exactly one of Aircraft (found),
// nothing (none) or Failure (error) is meaningful, as given by Outcome.
type Result struct {
	Outcome Outcome
	// Aircraft is an annotated copy; DistanceKm is always set.
	Aircraft *adsb.Aircraft
	Failure  *Failure

	// Tracked is the number of aircraft in the snapshot.
	Tracked int
	// Positioned is how many of them had usable coordinates.
	Positioned int
}

// Found builds a found result.
func Found(ac *adsb.Aircraft) Result {
	return Result{Outcome: OutcomeFound, Aircraft: ac}
}

// None builds an empty result.
func None() Result {
	return Result{Outcome: OutcomeNone}
}

// Failed builds an error result.
func Failed(f Failure) Result {
	return Result{Outcome: OutcomeError, Failure: &f}
}

// FromError classifies err into an error result.
func FromError(err error) Result {
	var (
		statusErr *adsb.StatusError
		parseErr  *adsb.ParseError
	)

	switch {
	case errors.Is(err, ErrReferenceUnset):
		return Failed(Failure{Kind: KindConfig, Reason: err.Error()})
	case errors.As(err, &statusErr):
		return Failed(Failure{
			Kind:       KindTransport,
			Reason:     statusErr.Error(),
			StatusCode: statusErr.StatusCode,
		})
	case errors.As(err, &parseErr):
		return Failed(Failure{Kind: KindParse, Reason: parseErr.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		return Failed(Failure{Kind: KindTransport, Reason: "upstream timed out"})
	default:
		return Failed(Failure{Kind: KindTransport, Reason: err.Error()})
	}
}

// Select returns the aircraft nearest to ref.
//
// Only samples with both latitude and longitude present and finite are
// candidates. The returned aircraft is a deep copy carrying DistanceKm;
// the snapshot is not modified. When two candidates are equally close the one
// earlier in the snapshot wins. A nil ref or a snapshot without candidates
// yields None.
func Select(snap *adsb.Snapshot, ref *coordinates.Geographic) Result {
	if ref == nil {
		return None()
	}
	if snap == nil {
		return None()
	}

	var (
		best       *adsb.Aircraft
		bestDist   float64
		positioned int
	)

	for i := range snap.Aircraft {
		ac := &snap.Aircraft[i]
		pos, ok := position(ac)
		if !ok {
			continue
		}
		positioned++

		d := coordinates.DistanceKm(*ref, pos)
		if best == nil || d < bestDist {
			best = ac
			bestDist = d
		}
	}

	result := None()
	if best != nil {
		selected := best.Clone()
		selected.DistanceKm = &bestDist
		result = Found(&selected)
	}
	result.Tracked = len(snap.Aircraft)
	result.Positioned = positioned
	return result
}

// position returns the sample's coordinates when both are usable.
func position(ac *adsb.Aircraft) (coordinates.Geographic, bool) {
	if !ac.HasPosition() {
		return coordinates.Geographic{}, false
	}
	lat, lon := *ac.Lat, *ac.Lon
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return coordinates.Geographic{}, false
	}
	return coordinates.Geographic{Latitude: lat, Longitude: lon}, true
}
