// Copyright 2025 Certen Protocol
//
// Compute Pipeline
// One entry point per spatial operation: resolve inputs, type-check,
// call the geometry backend, scale and ABI-encode the result, sign, and
// assemble the response.

package compute

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/certen/astral-location-services/pkg/geojson"
	"github.com/certen/astral-location-services/pkg/geometry"
	"github.com/certen/astral-location-services/pkg/payload"
	"github.com/certen/astral-location-services/pkg/resolve"
	"github.com/certen/astral-location-services/pkg/signer"
	"github.com/certen/astral-location-services/pkg/types"
)

// Operation names, used both as response "operation" fields and ABI
// payload operation strings.
const (
	OpDistance   = "distance"
	OpArea       = "area"
	OpLength     = "length"
	OpContains   = "contains"
	OpWithin     = "within"
	OpIntersects = "intersects"
)

const (
	distanceScale = 100   // metres -> centimetres
	areaScale     = 10000 // square metres -> square centimetres
)

// Request is the common envelope every compute operation accepts.
type Request struct {
	ChainID   int64
	Schema    string
	Recipient string
}

// NumericResponse is the flat numeric compute response.
type NumericResponse struct {
	Result               float64                    `json:"result"`
	Units                string                     `json:"units"`
	Operation            string                     `json:"operation"`
	Timestamp            int64                      `json:"timestamp"`
	InputRefs            []string                   `json:"inputRefs"`
	Attestation          *types.FlatAttestation     `json:"attestation"`
	DelegatedAttestation *types.DelegatedAttestation `json:"delegatedAttestation"`
	ProofInputs          []*types.ProofContext      `json:"proofInputs,omitempty"`
}

// BooleanResponse is the flat boolean compute response.
type BooleanResponse struct {
	Result               bool                       `json:"result"`
	Operation            string                     `json:"operation"`
	Timestamp            int64                      `json:"timestamp"`
	InputRefs            []string                   `json:"inputRefs"`
	Attestation          *types.FlatAttestation     `json:"attestation"`
	DelegatedAttestation *types.DelegatedAttestation `json:"delegatedAttestation"`
	ProofInputs          []*types.ProofContext      `json:"proofInputs,omitempty"`
}

// Pipeline wires the geometry backend, resolver and signer together.
type Pipeline struct {
	resolver *resolve.Resolver
	backend  *geometry.Backend
	signer   *signer.Signer
	schemas  SchemaLookup
}

// SchemaLookup resolves the default schema UID for a family, honouring a
// per-request override (pkg/config.Config.SchemaFor has this exact shape).
type SchemaLookup interface {
	SchemaFor(family, override string) (string, error)
}

// New builds a compute pipeline.
func New(resolver *resolve.Resolver, backend *geometry.Backend, sgn *signer.Signer, schemas SchemaLookup) *Pipeline {
	return &Pipeline{resolver: resolver, backend: backend, signer: sgn, schemas: schemas}
}

func (p *Pipeline) resolveInput(ctx context.Context, in resolve.Input, chainID int64) (*resolve.ResolvedInput, error) {
	return p.resolver.Resolve(ctx, in, chainID)
}

func (p *Pipeline) resolveTwo(ctx context.Context, a, b resolve.Input, chainID int64) (*resolve.ResolvedInput, *resolve.ResolvedInput, error) {
	resolved, err := resolve.ResolveAll(ctx, p.resolver, []resolve.Input{a, b}, chainID)
	if err != nil {
		return nil, nil, err
	}
	return resolved[0], resolved[1], nil
}

// Distance computes the geodesic distance between two inputs.
func (p *Pipeline) Distance(ctx context.Context, req Request, from, to resolve.Input) (*NumericResponse, error) {
	r1, r2, err := p.resolveTwo(ctx, from, to, req.ChainID)
	if err != nil {
		return nil, err
	}
	d, err := p.backend.Distance(r1.Geometry, r2.Geometry)
	if err != nil {
		return nil, err
	}
	return p.numericResponse(req, OpDistance, "meters", d, distanceScale, "centimeters", []*resolve.ResolvedInput{r1, r2})
}

// Area computes the geodesic area of a Polygon/MultiPolygon input.
func (p *Pipeline) Area(ctx context.Context, req Request, geom resolve.Input) (*NumericResponse, error) {
	r, err := p.resolveInput(ctx, geom, req.ChainID)
	if err != nil {
		return nil, err
	}
	if !isPolygonal(r.Geometry) {
		return nil, fmt.Errorf("invalid input: area requires Polygon or MultiPolygon")
	}
	a, err := p.backend.Area(r.Geometry)
	if err != nil {
		return nil, err
	}
	return p.numericResponse(req, OpArea, "square_meters", a, areaScale, "square_centimeters", []*resolve.ResolvedInput{r})
}

// Length computes the geodesic length of a LineString/MultiLineString input.
func (p *Pipeline) Length(ctx context.Context, req Request, geom resolve.Input) (*NumericResponse, error) {
	r, err := p.resolveInput(ctx, geom, req.ChainID)
	if err != nil {
		return nil, err
	}
	if !isLinear(r.Geometry) {
		return nil, fmt.Errorf("invalid input: length requires LineString or MultiLineString")
	}
	l, err := p.backend.Length(r.Geometry)
	if err != nil {
		return nil, err
	}
	return p.numericResponse(req, OpLength, "meters", l, distanceScale, "centimeters", []*resolve.ResolvedInput{r})
}

// Contains reports whether the containee lies within the container.
func (p *Pipeline) Contains(ctx context.Context, req Request, container, containee resolve.Input) (*BooleanResponse, error) {
	r1, r2, err := p.resolveTwo(ctx, container, containee, req.ChainID)
	if err != nil {
		return nil, err
	}
	result, err := p.backend.Contains(r1.Geometry, r2.Geometry)
	if err != nil {
		return nil, err
	}
	return p.booleanResponse(req, OpContains, result, []*resolve.ResolvedInput{r1, r2})
}

// Within reports whether geometry g lies within radius metres of target.
func (p *Pipeline) Within(ctx context.Context, req Request, g, target resolve.Input, radius float64) (*BooleanResponse, error) {
	if radius <= 0 {
		return nil, fmt.Errorf("invalid input: within requires radius > 0")
	}
	r1, r2, err := p.resolveTwo(ctx, g, target, req.ChainID)
	if err != nil {
		return nil, err
	}
	result, err := p.backend.Within(r1.Geometry, r2.Geometry, radius)
	if err != nil {
		return nil, err
	}
	operation := fmt.Sprintf("%s:%v", OpWithin, radius)
	return p.booleanResponse(req, operation, result, []*resolve.ResolvedInput{r1, r2})
}

// Intersects reports whether two geometries share any point.
func (p *Pipeline) Intersects(ctx context.Context, req Request, g1, g2 resolve.Input) (*BooleanResponse, error) {
	r1, r2, err := p.resolveTwo(ctx, g1, g2, req.ChainID)
	if err != nil {
		return nil, err
	}
	result, err := p.backend.Intersects(r1.Geometry, r2.Geometry)
	if err != nil {
		return nil, err
	}
	return p.booleanResponse(req, OpIntersects, result, []*resolve.ResolvedInput{r1, r2})
}

func (p *Pipeline) numericResponse(req Request, operation, units string, value float64, scale int64, scaledUnits string, resolved []*resolve.ResolvedInput) (*NumericResponse, error) {
	schemaUID, err := p.schemas.SchemaFor("numeric", req.Schema)
	if err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	schema, err := signer.ParseSchema(schemaUID)
	if err != nil {
		return nil, fmt.Errorf("invalid input: invalid schema: %w", err)
	}
	recipient, err := signer.ParseRecipient(req.Recipient)
	if err != nil {
		return nil, fmt.Errorf("invalid input: invalid recipient: %w", err)
	}

	timestamp := time.Now().Unix()
	scaled := new(big.Int).SetInt64(int64(value*float64(scale) + 0.5))
	inputRefs := refsOf(resolved)

	data, err := payload.EncodeNumeric(scaled, scaledUnits, inputRefs, timestamp, operation)
	if err != nil {
		return nil, fmt.Errorf("internal: encode payload: %w", err)
	}

	proofInputs, refUIDStr := resolve.ExtractProofMetadata(resolved)
	refUID, err := signer.ParseRefUID(refUIDStr)
	if err != nil {
		return nil, fmt.Errorf("internal: %w", err)
	}

	flat, delegated, err := p.signer.Sign(signer.AttestInput{
		Schema:    schema,
		Recipient: recipient,
		RefUID:    refUID,
		Data:      data,
		Revocable: true,
		ChainID:   req.ChainID,
	})
	if err != nil {
		return nil, err
	}

	return &NumericResponse{
		Result:               value,
		Units:                units,
		Operation:            operation,
		Timestamp:            timestamp,
		InputRefs:            refHexStrings(inputRefs),
		Attestation:          flat,
		DelegatedAttestation: delegated,
		ProofInputs:          proofInputs,
	}, nil
}

func (p *Pipeline) booleanResponse(req Request, operation string, result bool, resolved []*resolve.ResolvedInput) (*BooleanResponse, error) {
	schemaUID, err := p.schemas.SchemaFor("boolean", req.Schema)
	if err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	schema, err := signer.ParseSchema(schemaUID)
	if err != nil {
		return nil, fmt.Errorf("invalid input: invalid schema: %w", err)
	}
	recipient, err := signer.ParseRecipient(req.Recipient)
	if err != nil {
		return nil, fmt.Errorf("invalid input: invalid recipient: %w", err)
	}

	timestamp := time.Now().Unix()
	inputRefs := refsOf(resolved)

	data, err := payload.EncodeBoolean(result, inputRefs, timestamp, operation)
	if err != nil {
		return nil, fmt.Errorf("internal: encode payload: %w", err)
	}

	proofInputs, refUIDStr := resolve.ExtractProofMetadata(resolved)
	refUID, err := signer.ParseRefUID(refUIDStr)
	if err != nil {
		return nil, fmt.Errorf("internal: %w", err)
	}

	flat, delegated, err := p.signer.Sign(signer.AttestInput{
		Schema:    schema,
		Recipient: recipient,
		RefUID:    refUID,
		Data:      data,
		Revocable: true,
		ChainID:   req.ChainID,
	})
	if err != nil {
		return nil, err
	}

	return &BooleanResponse{
		Result:               result,
		Operation:            operation,
		Timestamp:            timestamp,
		InputRefs:            refHexStrings(inputRefs),
		Attestation:          flat,
		DelegatedAttestation: delegated,
		ProofInputs:          proofInputs,
	}, nil
}

func refsOf(resolved []*resolve.ResolvedInput) [][32]byte {
	out := make([][32]byte, len(resolved))
	for i, r := range resolved {
		out[i] = r.Ref
	}
	return out
}

func refHexStrings(refs [][32]byte) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = "0x" + fmt.Sprintf("%x", r)
	}
	return out
}

func isPolygonal(g *geojson.Geometry) bool {
	return g.Type == geojson.TypePolygon || g.Type == geojson.TypeMultiPolygon
}

func isLinear(g *geojson.Geometry) bool {
	return g.Type == geojson.TypeLineString || g.Type == geojson.TypeMultiLineString
}
