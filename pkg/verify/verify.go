// Copyright 2025 Certen Protocol
//
// Verification Pipeline
// Orchestrates per-stamp verify+evaluate against the plugin registry and
// aggregates the results into a four-dimensional CredibilityVector.

package verify

import (
	"fmt"
	"math"
	"sync"

	"github.com/certen/astral-location-services/pkg/plugin"
	"github.com/certen/astral-location-services/pkg/types"
)

const sentinelMeters = float64(1<<32) - 1

// Pipeline verifies location proofs and individual stamps.
type Pipeline struct {
	plugins *plugin.Registry
}

// New builds a verification pipeline over the given plugin registry.
func New(plugins *plugin.Registry) *Pipeline {
	return &Pipeline{plugins: plugins}
}

// VerifyStamp is a direct passthrough to the plugin's verify method.
func (p *Pipeline) VerifyStamp(stamp types.LocationStamp) (plugin.VerifyResult, error) {
	pl, err := p.plugins.Get(stamp.Plugin)
	if err != nil {
		return plugin.VerifyResult{}, err
	}
	return pl.Verify(stamp)
}

// VerifyProof runs verify+evaluate for every stamp concurrently and
// aggregates into a CredibilityVector.
func (p *Pipeline) VerifyProof(proof types.LocationProof, now int64, evaluationMode string) (*types.CredibilityVector, error) {
	n := len(proof.Stamps)
	results := make([]types.StampResult, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i, stamp := range proof.Stamps {
		go func(i int, stamp types.LocationStamp) {
			defer wg.Done()
			sr, err := p.verifyAndEvaluate(i, stamp, proof.Claim)
			results[i], errs[i] = sr, err
		}(i, stamp)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return aggregate(results, n, now, evaluationMode), nil
}

func (p *Pipeline) verifyAndEvaluate(index int, stamp types.LocationStamp, claim types.LocationClaim) (types.StampResult, error) {
	pl, err := p.plugins.Get(stamp.Plugin)
	if err != nil {
		return types.StampResult{}, wrapStampErr(index, err)
	}

	var (
		vr      plugin.VerifyResult
		er      plugin.EvaluateResult
		verr    error
		everr   error
		wg      sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		vr, verr = pl.Verify(stamp)
	}()
	go func() {
		defer wg.Done()
		er, everr = pl.Evaluate(stamp, claim)
	}()
	wg.Wait()

	if verr != nil {
		return types.StampResult{}, verr
	}
	if everr != nil {
		return types.StampResult{}, everr
	}

	details := map[string]interface{}{}
	for k, v := range vr.Details {
		details[k] = v
	}
	for k, v := range er.Details {
		details[k] = v
	}

	return types.StampResult{
		StampIndex:        index,
		Plugin:            stamp.Plugin,
		SignaturesValid:   vr.SignaturesValid,
		StructureValid:    vr.StructureValid,
		SignalsConsistent: vr.SignalsConsistent,
		Valid:             vr.Valid,
		DistanceMeters:    er.DistanceMeters,
		TemporalOverlap:   er.TemporalOverlap,
		WithinRadius:      er.WithinRadius,
		Details:           details,
	}, nil
}

func aggregate(results []types.StampResult, n int, now int64, evaluationMode string) *types.CredibilityVector {
	var (
		sumDistance      float64
		maxDistance      float64
		finiteCount      int
		withinCount      int
		outsideCount     int
		sumOverlap       float64
		minOverlap       = math.Inf(1)
		fullyOverlapping int
		sigValid         int
		structValid      int
		signalsConsistent int
		pluginNames      []string
		seenPlugins      = map[string]bool{}
	)

	for _, r := range results {
		if !math.IsInf(r.DistanceMeters, 1) && !math.IsNaN(r.DistanceMeters) {
			sumDistance += r.DistanceMeters
			if r.DistanceMeters > maxDistance {
				maxDistance = r.DistanceMeters
			}
			finiteCount++
		}
		if r.WithinRadius {
			withinCount++
		} else {
			outsideCount++
		}

		sumOverlap += r.TemporalOverlap
		if r.TemporalOverlap < minOverlap {
			minOverlap = r.TemporalOverlap
		}
		if r.TemporalOverlap >= 1.0 {
			fullyOverlapping++
		}

		if r.SignaturesValid {
			sigValid++
		}
		if r.StructureValid {
			structValid++
		}
		if r.SignalsConsistent {
			signalsConsistent++
		}

		if !seenPlugins[r.Plugin] {
			seenPlugins[r.Plugin] = true
			pluginNames = append(pluginNames, r.Plugin)
		}
	}

	meanDistance := sentinelMeters
	maxDist := sentinelMeters
	if finiteCount > 0 {
		meanDistance = clampSentinel(sumDistance / float64(finiteCount))
		maxDist = clampSentinel(maxDistance)
	}

	if n == 0 {
		minOverlap = 0
	} else if math.IsInf(minOverlap, 1) {
		minOverlap = 0
	}

	agreement := 0.0
	if n > 0 {
		agreement = float64(maxInt(withinCount, outsideCount)) / float64(n)
	}

	return &types.CredibilityVector{
		Spatial: types.SpatialDimension{
			MeanDistanceMeters:   meanDistance,
			MaxDistanceMeters:    maxDist,
			WithinRadiusFraction: fraction(withinCount, n),
		},
		Temporal: types.TemporalDimension{
			MeanOverlap:              safeAvg(sumOverlap, n),
			MinOverlap:               minOverlap,
			FullyOverlappingFraction: fraction(fullyOverlapping, n),
		},
		Validity: types.ValidityDimension{
			SignaturesValidFraction:   fraction(sigValid, n),
			StructureValidFraction:    fraction(structValid, n),
			SignalsConsistentFraction: fraction(signalsConsistent, n),
		},
		Independence: types.IndependenceDimension{
			UniquePluginRatio: fraction(len(pluginNames), n),
			SpatialAgreement:  agreement,
			PluginNames:       pluginNames,
		},
		StampResults: results,
		Meta: types.CredibilityMeta{
			StampCount:     n,
			EvaluatedAt:    now,
			EvaluationMode: evaluationMode,
		},
	}
}

func clampSentinel(x float64) float64 {
	if x > sentinelMeters {
		return sentinelMeters
	}
	return x
}

func fraction(count, n int) float64 {
	if n == 0 {
		return 0
	}
	return float64(count) / float64(n)
}

func safeAvg(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// wrapStampErr annotates an unsupported-plugin lookup failure with the
// stamp index, keeping any leading taxonomy prefix on err intact so
// problem.ClassifyError still recognises it.
func wrapStampErr(index int, err error) error {
	return fmt.Errorf("%w (stamp %d)", err, index)
}
