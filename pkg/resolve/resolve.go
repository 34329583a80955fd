// Copyright 2025 Certen Protocol
//
// Input Resolver
// Normalises the four client input forms into a canonical
// geometry plus a 32-byte reference. Multiple inputs in one request are
// resolved concurrently by the caller via ResolveAll.

package resolve

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/certen/astral-location-services/pkg/eas"
	"github.com/certen/astral-location-services/pkg/geojson"
	"github.com/certen/astral-location-services/pkg/types"
)

// Input is the tagged union a client submits. Exactly one of the
// kind-specific fields is populated after parsing.
type Input struct {
	RawGeometry   json.RawMessage
	OnchainRef    *OnchainRef
	OffchainRef   *OffchainRef
	VerifiedProof *VerifiedProof
}

// UnmarshalJSON discriminates the input kind structurally: a geometry
// literal carries "type"/"coordinates", a chain reference carries "uid"
// (plus "uri" for the reserved off-chain form), and a verified proof
// arrives either under a "verifiedProof" key or as the entire
// VerifiedLocationProofResponse (recognised by its "proof" key).
func (in *Input) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	if wrapped, ok := probe["verifiedProof"]; ok {
		var vp VerifiedProof
		if err := json.Unmarshal(wrapped, &vp); err != nil {
			return err
		}
		in.VerifiedProof = &vp
		return nil
	}
	if _, ok := probe["proof"]; ok {
		var vp VerifiedProof
		if err := json.Unmarshal(data, &vp); err != nil {
			return err
		}
		in.VerifiedProof = &vp
		return nil
	}
	if rawUID, ok := probe["uid"]; ok {
		var uid string
		if err := json.Unmarshal(rawUID, &uid); err != nil {
			return err
		}
		if rawURI, ok := probe["uri"]; ok {
			var uri string
			if err := json.Unmarshal(rawURI, &uri); err != nil {
				return err
			}
			in.OffchainRef = &OffchainRef{UID: uid, URI: uri}
			return nil
		}
		in.OnchainRef = &OnchainRef{UID: uid}
		return nil
	}
	if _, ok := probe["type"]; ok {
		in.RawGeometry = append(json.RawMessage(nil), data...)
		return nil
	}

	// No recognisable keys; Resolve reports the missing input form.
	return nil
}

// MarshalJSON emits the same wire form UnmarshalJSON accepts.
func (in Input) MarshalJSON() ([]byte, error) {
	switch {
	case len(in.RawGeometry) > 0:
		return in.RawGeometry, nil
	case in.OnchainRef != nil:
		return json.Marshal(in.OnchainRef)
	case in.OffchainRef != nil:
		return json.Marshal(in.OffchainRef)
	case in.VerifiedProof != nil:
		return json.Marshal(map[string]*VerifiedProof{"verifiedProof": in.VerifiedProof})
	default:
		return []byte("null"), nil
	}
}

// OnchainRef names an attestation UID to fetch from a chain.
type OnchainRef struct {
	UID string `json:"uid"`
}

// OffchainRef is reserved; resolving one always fails.
type OffchainRef struct {
	UID string `json:"uid"`
	URI string `json:"uri"`
}

// VerifiedProof wraps a previously returned VerifiedLocationProofResponse.
type VerifiedProof struct {
	Attestation struct {
		UID string `json:"uid"`
	} `json:"attestation"`
	Proof struct {
		Claim types.LocationClaim `json:"claim"`
	} `json:"proof"`
	Credibility      *types.CredibilityVector `json:"credibility"`
	EvaluatedAt      int64                    `json:"evaluatedAt"`
	EvaluationMethod string                   `json:"evaluationMethod"`
}

// ResolvedInput is the resolver's output: a validated geometry, a
// deterministic 32-byte reference, and proof provenance when the input
// came from a previously verified location proof.
type ResolvedInput struct {
	Geometry     *geojson.Geometry
	Ref          [32]byte
	ProofContext *types.ProofContext
}

// Resolver turns Inputs into ResolvedInputs, consulting the EAS client for
// on-chain references.
type Resolver struct {
	eas *eas.Client
}

// New builds a resolver over the given EAS client.
func New(easClient *eas.Client) *Resolver {
	return &Resolver{eas: easClient}
}

// Resolve normalises a single input.
func (r *Resolver) Resolve(ctx context.Context, in Input, chainID int64) (*ResolvedInput, error) {
	switch {
	case len(in.RawGeometry) > 0:
		return r.resolveRaw(in.RawGeometry)
	case in.OnchainRef != nil:
		return r.resolveOnchain(ctx, *in.OnchainRef, chainID)
	case in.OffchainRef != nil:
		return nil, fmt.Errorf("not implemented: off-chain resolution")
	case in.VerifiedProof != nil:
		return r.resolveVerifiedProof(*in.VerifiedProof)
	default:
		return nil, fmt.Errorf("invalid input: no input form supplied")
	}
}

func (r *Resolver) resolveRaw(raw json.RawMessage) (*ResolvedInput, error) {
	geom, err := geojson.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	ref, err := RefFor(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	return &ResolvedInput{Geometry: geom, Ref: ref}, nil
}

func (r *Resolver) resolveOnchain(ctx context.Context, ref OnchainRef, chainID int64) (*ResolvedInput, error) {
	if chainID == 0 {
		return nil, fmt.Errorf("invalid input: chainId required for onchain reference")
	}
	att, err := r.eas.GetAttestation(ctx, ref.UID, chainID)
	if err != nil {
		return nil, err
	}
	decoded, err := eas.DecodeLocationAttestation(att.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if decoded.Location == "" {
		return nil, fmt.Errorf("invalid input: empty location")
	}

	geom, err := geometryFromLocation(decoded.Location)
	if err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	var refBytes [32]byte
	copy(refBytes[:], mustHex(att.UID))
	return &ResolvedInput{Geometry: geom, Ref: refBytes}, nil
}

func (r *Resolver) resolveVerifiedProof(vp VerifiedProof) (*ResolvedInput, error) {
	loc := vp.Proof.Claim.Location
	if len(loc) == 0 {
		return nil, fmt.Errorf("invalid input: verified proof has no claim location")
	}

	// A bare JSON string (e.g. an H3 index) is a non-GeoJSON location type.
	var asString string
	if err := json.Unmarshal(loc, &asString); err == nil {
		return nil, fmt.Errorf("invalid input: non-GeoJSON location")
	}

	geom, err := geojson.Parse(loc)
	if err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	var refBytes [32]byte
	copy(refBytes[:], mustHex(vp.Attestation.UID))

	claim := vp.Proof.Claim
	return &ResolvedInput{
		Geometry: geom,
		Ref:      refBytes,
		ProofContext: &types.ProofContext{
			Ref:              vp.Attestation.UID,
			Credibility:      vp.Credibility,
			Claim:            &claim,
			EvaluatedAt:      vp.EvaluatedAt,
			EvaluationMethod: vp.EvaluationMethod,
		},
	}, nil
}

// geometryFromLocation accepts either a bare GeoJSON geometry or a
// GeoJSON Feature, extracting Feature.geometry in the latter case.
func geometryFromLocation(location string) (*geojson.Geometry, error) {
	raw := json.RawMessage(location)

	var feature struct {
		Type     string          `json:"type"`
		Geometry json.RawMessage `json:"geometry"`
	}
	if err := json.Unmarshal(raw, &feature); err == nil && feature.Type == "Feature" {
		return geojson.Parse(feature.Geometry)
	}
	return geojson.Parse(raw)
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return make([]byte, 32)
	}
	return b
}

// ExtractProofMetadata collects proof contexts from a set of resolved
// inputs in request order, along with the refUID to use for the response
// attestation (the first proof's attestation UID; EAS supports only one).
func ExtractProofMetadata(resolved []*ResolvedInput) (proofInputs []*types.ProofContext, refUID string) {
	for _, ri := range resolved {
		if ri.ProofContext == nil {
			continue
		}
		proofInputs = append(proofInputs, ri.ProofContext)
		if refUID == "" {
			refUID = ri.ProofContext.Ref
		}
	}
	return proofInputs, refUID
}

// ResolveAll resolves every input concurrently, preserving request order
// in the returned slice. The first error encountered is returned; other
// in-flight resolutions are allowed to finish but their results discarded.
func ResolveAll(ctx context.Context, r *Resolver, inputs []Input, chainID int64) ([]*ResolvedInput, error) {
	out := make([]*ResolvedInput, len(inputs))
	errs := make([]error, len(inputs))
	done := make(chan int, len(inputs))

	for i, in := range inputs {
		go func(i int, in Input) {
			ri, err := r.Resolve(ctx, in, chainID)
			out[i], errs[i] = ri, err
			done <- i
		}(i, in)
	}
	for range inputs {
		<-done
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
