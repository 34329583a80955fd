// Copyright 2025 Certen Protocol
//
// Domain Types
// Request/response shapes shared across the resolver, signer, compute and
// verification pipelines. Kept free of package-specific logic so every
// layer can depend on it without a cycle.

package types

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Subject identifies the party a location claim or stamp is about.
type Subject struct {
	Scheme string `json:"scheme"`
	Value  string `json:"value"`
}

// TimeRange is an inclusive Unix-second interval.
type TimeRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// LocationClaim is an assertion about the location/time of an event,
// extending Location Protocol v0.2 with verification metadata.
type LocationClaim struct {
	LPVersion   string          `json:"lpVersion"`
	LocationType string         `json:"locationType"`
	Location    json.RawMessage `json:"location"`
	SRS         string          `json:"srs"`
	Subject     Subject         `json:"subject"`
	Radius      float64         `json:"radius"`
	Time        TimeRange       `json:"time"`
	EventType   string          `json:"eventType,omitempty"`
}

// Signature is one signed endorsement attached to a stamp.
type Signature struct {
	Signer    Subject `json:"signer"`
	Algorithm string  `json:"algorithm"`
	Value     string  `json:"value"`
	Timestamp int64   `json:"timestamp"`
}

// LocationStamp is evidence from a proof-of-location system.
type LocationStamp struct {
	LPVersion        string                 `json:"lpVersion"`
	LocationType     string                 `json:"locationType"`
	Location         json.RawMessage        `json:"location"`
	SRS              string                 `json:"srs"`
	TemporalFootprint TimeRange             `json:"temporalFootprint"`
	Plugin           string                 `json:"plugin"`
	PluginVersion    string                 `json:"pluginVersion"`
	Signals          map[string]interface{} `json:"signals,omitempty"`
	Signatures       []Signature            `json:"signatures"`
}

// LocationProof bundles a claim with the stamps offered as evidence.
type LocationProof struct {
	Claim  LocationClaim   `json:"claim"`
	Stamps []LocationStamp `json:"stamps"`
}

// SpatialDimension is the spatial slice of a CredibilityVector.
type SpatialDimension struct {
	MeanDistanceMeters  float64 `json:"meanDistanceMeters"`
	MaxDistanceMeters   float64 `json:"maxDistanceMeters"`
	WithinRadiusFraction float64 `json:"withinRadiusFraction"`
}

// TemporalDimension is the temporal slice of a CredibilityVector.
type TemporalDimension struct {
	MeanOverlap             float64 `json:"meanOverlap"`
	MinOverlap              float64 `json:"minOverlap"`
	FullyOverlappingFraction float64 `json:"fullyOverlappingFraction"`
}

// ValidityDimension is the validity slice of a CredibilityVector.
type ValidityDimension struct {
	SignaturesValidFraction   float64 `json:"signaturesValidFraction"`
	StructureValidFraction    float64 `json:"structureValidFraction"`
	SignalsConsistentFraction float64 `json:"signalsConsistentFraction"`
}

// IndependenceDimension is the independence slice of a CredibilityVector.
type IndependenceDimension struct {
	UniquePluginRatio float64  `json:"uniquePluginRatio"`
	SpatialAgreement  float64  `json:"spatialAgreement"`
	PluginNames       []string `json:"pluginNames"`
}

// CredibilityMeta carries evaluation bookkeeping, not a measurement.
type CredibilityMeta struct {
	StampCount     int    `json:"stampCount"`
	EvaluatedAt    int64  `json:"evaluatedAt"`
	EvaluationMode string `json:"evaluationMode"`
}

// StampResult is the per-stamp verify+evaluate outcome.
type StampResult struct {
	StampIndex        int                    `json:"stampIndex"`
	Plugin            string                 `json:"plugin"`
	SignaturesValid   bool                   `json:"signaturesValid"`
	StructureValid    bool                   `json:"structureValid"`
	SignalsConsistent bool                   `json:"signalsConsistent"`
	Valid             bool                   `json:"valid"`
	DistanceMeters    float64                `json:"distanceMeters"`
	TemporalOverlap   float64                `json:"temporalOverlap"`
	WithinRadius      bool                   `json:"withinRadius"`
	Details           map[string]interface{} `json:"details,omitempty"`
}

// CredibilityVector is the output of proof verification: four dimensions
// of raw measurements, never collapsed to a single score.
type CredibilityVector struct {
	Spatial      SpatialDimension      `json:"spatial"`
	Temporal     TemporalDimension     `json:"temporal"`
	Validity     ValidityDimension     `json:"validity"`
	Independence IndependenceDimension `json:"independence"`
	StampResults []StampResult         `json:"stampResults"`
	Meta         CredibilityMeta       `json:"meta"`
}

// FlatAttestation is the signed, ABI-encoded attestation payload returned
// alongside every compute/verify response.
type FlatAttestation struct {
	Schema    string `json:"schema"`
	Recipient string `json:"recipient"`
	Attester  string `json:"attester"`
	Data      string `json:"data"`
	Signature string `json:"signature"`
}

// DelegatedAttestation is the companion delegated-submission envelope.
type DelegatedAttestation struct {
	Attester string `json:"attester"`
	Deadline int64  `json:"deadline"`
	Nonce    string `json:"nonce"`
}

// ProofContext surfaces a verified proof's identity when it is consumed as
// a later compute input.
type ProofContext struct {
	Ref              string             `json:"ref"`
	Credibility      *CredibilityVector `json:"credibility,omitempty"`
	Claim            *LocationClaim     `json:"claim,omitempty"`
	EvaluatedAt      int64              `json:"evaluatedAt,omitempty"`
	EvaluationMethod string             `json:"evaluationMethod,omitempty"`
}

// EASAttestation mirrors the on-chain EAS Attestation struct.
type EASAttestation struct {
	UID            string `json:"uid"`
	Schema         string `json:"schema"`
	Time           uint64 `json:"time"`
	ExpirationTime uint64 `json:"expirationTime"`
	RevocationTime uint64 `json:"revocationTime"`
	RefUID         string `json:"refUID"`
	Recipient      string `json:"recipient"`
	Attester       string `json:"attester"`
	Revocable      bool          `json:"revocable"`
	Data           hexutil.Bytes `json:"data"`
	// Signature is populated only for freshly-signed (not yet submitted)
	// delegated attestations; it is absent from fetched on-chain records.
	Signature string `json:"signature,omitempty"`
}

// DecodedLocationAttestation is the result of decoding an on-chain
// Location Protocol v0.2 attestation payload.
type DecodedLocationAttestation struct {
	LPVersion    string
	SRS          string
	LocationType string
	Location     string
}
