// Copyright 2025 Certen Protocol
//
// Shared measurement logic used by the built-in plugins: geodesic
// distance between stamp and claim location, and temporal overlap
// between their time windows.

package plugin

import (
	"encoding/json"
	"fmt"

	"github.com/certen/astral-location-services/pkg/geojson"
	"github.com/certen/astral-location-services/pkg/geometry"
	"github.com/certen/astral-location-services/pkg/types"
)

var backend = geometry.NewBackend()

func evaluateCommon(stamp types.LocationStamp, claim types.LocationClaim) (EvaluateResult, error) {
	stampGeom, err := geojson.Parse(stamp.Location)
	if err != nil {
		return EvaluateResult{}, fmt.Errorf("invalid input: stamp location: %w", err)
	}
	claimGeom, err := geojson.Parse(claim.Location)
	if err != nil {
		return EvaluateResult{}, fmt.Errorf("invalid input: claim location: %w", err)
	}

	distance, err := backend.Distance(stampGeom, claimGeom)
	if err != nil {
		return EvaluateResult{}, err
	}

	overlap := temporalOverlap(stamp.TemporalFootprint, claim.Time)

	withinRadius := claim.Radius > 0 && distance <= claim.Radius

	return EvaluateResult{
		DistanceMeters:  distance,
		TemporalOverlap: overlap,
		WithinRadius:    withinRadius,
		Details: map[string]interface{}{
			"distanceMeters": distance,
		},
	}, nil
}

// temporalOverlap returns the fraction of the claim's window covered by
// the stamp's footprint: 1.0 when the footprint fully contains the claim
// window, 0 when the two windows don't intersect at all.
func temporalOverlap(footprint, claimWindow types.TimeRange) float64 {
	start := max64(footprint.Start, claimWindow.Start)
	end := min64(footprint.End, claimWindow.End)
	overlap := end - start
	if overlap <= 0 {
		return 0
	}
	claimSpan := claimWindow.End - claimWindow.Start
	if claimSpan <= 0 {
		return 1
	}
	frac := float64(overlap) / float64(claimSpan)
	if frac > 1 {
		frac = 1
	}
	return frac
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func structureValid(stamp types.LocationStamp) (bool, map[string]interface{}) {
	details := map[string]interface{}{}
	ok := true

	if stamp.LPVersion == "" {
		ok, details["lpVersion"] = false, "missing"
	}
	if len(stamp.Location) == 0 {
		ok, details["location"] = false, "missing"
	}
	if stamp.TemporalFootprint.Start > stamp.TemporalFootprint.End {
		ok, details["temporalFootprint"] = false, "start after end"
	}
	if len(stamp.Signatures) == 0 {
		ok, details["signatures"] = false, "empty"
	}
	return ok, details
}

func canonicalStampMessage(stamp types.LocationStamp) ([]byte, error) {
	payload := map[string]interface{}{
		"location":          json.RawMessage(stamp.Location),
		"temporalFootprint": stamp.TemporalFootprint,
		"plugin":            stamp.Plugin,
	}
	return json.Marshal(payload)
}
