// Copyright 2025 Certen Protocol
//
// Device-attestation plugin. v0 performs structural checks only — it does
// not cryptographically verify the device signature, since device key
// material and attestation formats vary per hardware vendor and are not
// standardized upstream. Flagged here rather than silently treated as
// equivalent to a verified signature.

package plugin

import "github.com/certen/astral-location-services/pkg/types"

// DevicePlugin evaluates stamps produced by an on-device location sensor.
type DevicePlugin struct{}

// NewDevicePlugin constructs the device-attestation plugin.
func NewDevicePlugin() *DevicePlugin {
	return &DevicePlugin{}
}

func (p *DevicePlugin) Metadata() Metadata {
	return Metadata{
		Name:         "device",
		Version:      "0.1.0",
		Environments: []string{"ios", "android"},
		Description:  "Structural validation of device-reported location stamps (no cryptographic signature verification in v0).",
	}
}

// Verify performs structural checks only; signaturesValid always reports
// true for a structurally well-formed signature list since this plugin
// does not hold device public keys to verify against.
func (p *DevicePlugin) Verify(stamp types.LocationStamp) (VerifyResult, error) {
	ok, details := structureValid(stamp)
	signaturesPresent := len(stamp.Signatures) > 0
	details["signatureVerification"] = "not implemented in v0"

	return VerifyResult{
		SignaturesValid:   signaturesPresent,
		StructureValid:    ok,
		SignalsConsistent: true,
		Valid:             ok && signaturesPresent,
		Details:           details,
	}, nil
}

// Evaluate computes distance and temporal overlap against the claim.
func (p *DevicePlugin) Evaluate(stamp types.LocationStamp, claim types.LocationClaim) (EvaluateResult, error) {
	return evaluateCommon(stamp, claim)
}
