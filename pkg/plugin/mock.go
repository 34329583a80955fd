// Copyright 2025 Certen Protocol
//
// Mock plugin for integration testing and client development. Accepts any
// structurally well-formed stamp without verifying its signatures, and
// measures it against the claim with the shared evaluator.

package plugin

import "github.com/certen/astral-location-services/pkg/types"

// MockPlugin is the evidence source used by test harnesses and sandboxes.
type MockPlugin struct{}

// NewMockPlugin constructs the mock plugin.
func NewMockPlugin() *MockPlugin {
	return &MockPlugin{}
}

func (p *MockPlugin) Metadata() Metadata {
	return Metadata{
		Name:         "mock",
		Version:      "0.1.0",
		Environments: []string{"test", "sandbox"},
		Description:  "Accepts structurally well-formed stamps without signature verification; for integration testing only.",
	}
}

func (p *MockPlugin) Verify(stamp types.LocationStamp) (VerifyResult, error) {
	ok, details := structureValid(stamp)
	signaturesPresent := len(stamp.Signatures) > 0
	details["signatureVerification"] = "mock plugin accepts all signatures"

	return VerifyResult{
		SignaturesValid:   signaturesPresent,
		StructureValid:    ok,
		SignalsConsistent: true,
		Valid:             ok && signaturesPresent,
		Details:           details,
	}, nil
}

func (p *MockPlugin) Evaluate(stamp types.LocationStamp, claim types.LocationClaim) (EvaluateResult, error) {
	return evaluateCommon(stamp, claim)
}
