// Copyright 2025 Certen Protocol

package compute

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/astral-location-services/pkg/eas"
	"github.com/certen/astral-location-services/pkg/geometry"
	"github.com/certen/astral-location-services/pkg/resolve"
	"github.com/certen/astral-location-services/pkg/signer"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type fixedSchemas struct {
	numeric string
	boolean string
}

func (f fixedSchemas) SchemaFor(family, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if family == "numeric" {
		return f.numeric, nil
	}
	return f.boolean, nil
}

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	easClient, err := eas.NewClient(map[int64]eas.ChainConfig{}, 0)
	if err != nil {
		t.Fatalf("new eas client: %v", err)
	}
	r := resolve.New(easClient)
	backend := geometry.NewBackend()
	sgn, err := signer.New(testKey, map[int64]string{1: "0x1111111111111111111111111111111111111111"}, 0)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	schemas := fixedSchemas{
		numeric: "0x" + "11" + "2233445566778899aabbccddeeff00112233445566778899aabbccddeeff00",
		boolean: "0x" + "22" + "2233445566778899aabbccddeeff00112233445566778899aabbccddeeff00",
	}
	return New(r, backend, sgn, schemas)
}

func point(lon, lat float64) json.RawMessage {
	return json.RawMessage([]byte(`{"type":"Point","coordinates":[` + floatStr(lon) + `,` + floatStr(lat) + `]}`))
}

func floatStr(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}

func TestDistanceProducesMetricResultAndSignedAttestation(t *testing.T) {
	p := newTestPipeline(t)
	req := Request{ChainID: 1, Recipient: "0x2222222222222222222222222222222222222222"}

	sf := resolve.Input{RawGeometry: point(-122.4194, 37.7749)}
	nyc := resolve.Input{RawGeometry: point(-74.0060, 40.7128)}

	resp, err := p.Distance(context.Background(), req, sf, nyc)
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if resp.Result < 3.9e6 || resp.Result > 4.4e6 {
		t.Fatalf("unexpected distance: %v", resp.Result)
	}
	if resp.Units != "meters" {
		t.Fatalf("unexpected units: %s", resp.Units)
	}
	if resp.Attestation == nil || resp.Attestation.Signature == "" {
		t.Fatal("expected a signed attestation")
	}
	if resp.DelegatedAttestation == nil || resp.DelegatedAttestation.Nonce == "" {
		t.Fatal("expected a delegated attestation with a nonce")
	}
	if len(resp.InputRefs) != 2 {
		t.Fatalf("expected 2 input refs, got %d", len(resp.InputRefs))
	}
}

func TestAreaRejectsNonPolygonInput(t *testing.T) {
	p := newTestPipeline(t)
	req := Request{ChainID: 1, Recipient: "0x2222222222222222222222222222222222222222"}
	_, err := p.Area(context.Background(), req, resolve.Input{RawGeometry: point(0, 0)})
	if err == nil {
		t.Fatal("expected error for non-polygon area input")
	}
}

func TestWithinRejectsNonPositiveRadius(t *testing.T) {
	p := newTestPipeline(t)
	req := Request{ChainID: 1, Recipient: "0x2222222222222222222222222222222222222222"}
	_, err := p.Within(context.Background(), req, resolve.Input{RawGeometry: point(0, 0)}, resolve.Input{RawGeometry: point(0, 0)}, 0)
	if err == nil {
		t.Fatal("expected error for radius <= 0")
	}
}

func TestContainsReturnsBooleanAttestation(t *testing.T) {
	p := newTestPipeline(t)
	req := Request{ChainID: 1, Recipient: "0x2222222222222222222222222222222222222222"}
	polygon := resolve.Input{RawGeometry: json.RawMessage([]byte(
		`{"type":"Polygon","coordinates":[[[-1,-1],[1,-1],[1,1],[-1,1],[-1,-1]]]}`))}
	inside := resolve.Input{RawGeometry: point(0, 0)}

	resp, err := p.Contains(context.Background(), req, polygon, inside)
	if err != nil {
		t.Fatalf("contains: %v", err)
	}
	if !resp.Result {
		t.Fatal("expected polygon to contain the point")
	}
	if resp.Attestation == nil {
		t.Fatal("expected a signed attestation")
	}
}

func decodeArgs(t *testing.T, typeNames ...string) abi.Arguments {
	t.Helper()
	args := make(abi.Arguments, 0, len(typeNames))
	for _, name := range typeNames {
		typ, err := abi.NewType(name, "", nil)
		if err != nil {
			t.Fatalf("abi type %s: %v", name, err)
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}

func TestNumericAttestationDataRoundTrips(t *testing.T) {
	p := newTestPipeline(t)
	req := Request{ChainID: 1}

	resp, err := p.Distance(context.Background(), req,
		resolve.Input{RawGeometry: point(-122.4194, 37.7749)},
		resolve.Input{RawGeometry: point(-73.9857, 40.7484)})
	if err != nil {
		t.Fatalf("distance: %v", err)
	}

	args := decodeArgs(t, "uint256", "string", "bytes32[]", "uint256", "string")
	values, err := args.Unpack(common.FromHex(resp.Attestation.Data))
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}

	scaled := values[0].(*big.Int)
	want := new(big.Int).SetInt64(int64(resp.Result*100 + 0.5))
	if scaled.Cmp(want) != 0 {
		t.Fatalf("scaled result %s does not match round(result*100)=%s", scaled, want)
	}
	if units := values[1].(string); units != "centimeters" {
		t.Fatalf("expected payload units centimeters, got %s", units)
	}
	refs := values[2].([][32]uint8)
	if len(refs) != len(resp.InputRefs) {
		t.Fatalf("expected %d payload refs, got %d", len(resp.InputRefs), len(refs))
	}
	for i, ref := range refs {
		if got := "0x"+common.Bytes2Hex(ref[:]); got != resp.InputRefs[i] {
			t.Fatalf("payload ref %d = %s, response ref = %s", i, got, resp.InputRefs[i])
		}
	}
	if op := values[4].(string); op != resp.Operation {
		t.Fatalf("payload operation %s does not match response %s", op, resp.Operation)
	}
}

func TestBooleanAttestationDataRoundTrips(t *testing.T) {
	p := newTestPipeline(t)
	req := Request{ChainID: 1}
	polygon := resolve.Input{RawGeometry: json.RawMessage(
		`{"type":"Polygon","coordinates":[[[-1,-1],[1,-1],[1,1],[-1,1],[-1,-1]]]}`)}

	resp, err := p.Within(context.Background(), req, resolve.Input{RawGeometry: point(0, 0)}, polygon, 5000)
	if err != nil {
		t.Fatalf("within: %v", err)
	}

	args := decodeArgs(t, "bool", "bytes32[]", "uint256", "string")
	values, err := args.Unpack(common.FromHex(resp.Attestation.Data))
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if got := values[0].(bool); got != resp.Result {
		t.Fatalf("payload result %v does not match response %v", got, resp.Result)
	}
	if op := values[3].(string); op != resp.Operation {
		t.Fatalf("payload operation %s does not match response %s", op, resp.Operation)
	}
	if resp.Operation != "within:5000" {
		t.Fatalf("expected operation within:5000, got %s", resp.Operation)
	}
}
