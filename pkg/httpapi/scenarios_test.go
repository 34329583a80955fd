// Copyright 2025 Certen Protocol
//
// End-to-end request scenarios driven through the full HTTP surface.

package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/certen/astral-location-services/pkg/compute"
	"github.com/certen/astral-location-services/pkg/types"
)

func postJSON(t *testing.T, s *Server, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("X-API-Key", "dev-key")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

// goldenGatePark is a rough bounding polygon around the park.
var goldenGatePark = json.RawMessage(`{"type":"Polygon","coordinates":[[[-122.511,37.771],[-122.454,37.771],[-122.454,37.766],[-122.511,37.766],[-122.511,37.771]]]}`)

func TestAreaOfEquatorialDegreeSquare(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s, "/compute/v0/area", map[string]interface{}{
		"chainId":  1,
		"geometry": json.RawMessage(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp compute.NumericResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Units != "square_meters" {
		t.Fatalf("unexpected units: %s", resp.Units)
	}
	if resp.Result < 1.23e10*0.95 || resp.Result > 1.23e10*1.05 {
		t.Fatalf("expected ~1.23e10 m², got %v", resp.Result)
	}
}

func TestContainsPointInsidePark(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s, "/compute/v0/contains", map[string]interface{}{
		"chainId":   1,
		"container": goldenGatePark,
		"containee": json.RawMessage(point(-122.48, 37.769)),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp compute.BooleanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Result {
		t.Fatal("expected the park to contain the point")
	}
	if resp.Operation != "contains" {
		t.Fatalf("unexpected operation: %s", resp.Operation)
	}
}

func TestWithinRadiusFlipsWithRadius(t *testing.T) {
	s := newTestServer(t)
	sf := json.RawMessage(point(-122.4194, 37.7749))

	rec := postJSON(t, s, "/compute/v0/within", map[string]interface{}{
		"chainId":  1,
		"geometry": sf,
		"target":   goldenGatePark,
		"radius":   5000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var near compute.BooleanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &near); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !near.Result {
		t.Fatal("expected SF point within 5km of the park")
	}

	rec = postJSON(t, s, "/compute/v0/within", map[string]interface{}{
		"chainId": 1,
		"point":   sf, // legacy field name
		"target":  goldenGatePark,
		"radius":  1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var far compute.BooleanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &far); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if far.Result {
		t.Fatal("expected SF point not within 1m of the park")
	}
}

func mockProof(claimLocation json.RawMessage) map[string]interface{} {
	return map[string]interface{}{
		"proof": map[string]interface{}{
			"claim": map[string]interface{}{
				"lpVersion":    "0.2",
				"locationType": "geojson-point",
				"location":     claimLocation,
				"srs":          "EPSG:4326",
				"subject":      map[string]string{"scheme": "eth-address", "value": "0x2222222222222222222222222222222222222222"},
				"radius":       500,
				"time":         map[string]int64{"start": 100, "end": 200},
			},
			"stamps": []map[string]interface{}{{
				"lpVersion":         "0.2",
				"locationType":      "geojson-point",
				"location":          json.RawMessage(point(-122.4194, 37.7749)),
				"srs":               "EPSG:4326",
				"temporalFootprint": map[string]int64{"start": 50, "end": 300},
				"plugin":            "mock",
				"pluginVersion":     "0.1.0",
				"signatures": []map[string]interface{}{{
					"signer":    map[string]string{"scheme": "device-pubkey", "value": "abc"},
					"algorithm": "ed25519",
					"value":     "0xdeadbeef",
					"timestamp": 150,
				}},
			}},
		},
	}
}

func TestVerifyProofWithMockPluginFullyCredible(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s, "/verify/v0/proof", mockProof(json.RawMessage(point(-122.4194, 37.7749))))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Credibility types.CredibilityVector `json:"credibility"`
		Attestation types.EASAttestation    `json:"attestation"`
		ChainID     int64                   `json:"chainId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	cv := resp.Credibility
	if cv.Spatial.WithinRadiusFraction != 1 {
		t.Fatalf("expected withinRadiusFraction 1, got %v", cv.Spatial.WithinRadiusFraction)
	}
	if cv.Temporal.MeanOverlap != 1 || cv.Temporal.MinOverlap != 1 {
		t.Fatalf("expected full temporal overlap, got %+v", cv.Temporal)
	}
	if cv.Validity.SignaturesValidFraction != 1 || cv.Validity.StructureValidFraction != 1 || cv.Validity.SignalsConsistentFraction != 1 {
		t.Fatalf("expected full validity, got %+v", cv.Validity)
	}
	if len(cv.Independence.PluginNames) != 1 || cv.Independence.PluginNames[0] != "mock" {
		t.Fatalf("expected pluginNames [mock], got %v", cv.Independence.PluginNames)
	}
	if resp.Attestation.Signature == "" || resp.Attestation.UID == "" {
		t.Fatal("expected a signed attestation with a synthetic uid")
	}
	if resp.ChainID != 1 {
		t.Fatalf("expected the default chain id, got %d", resp.ChainID)
	}
}

func TestVerifyProofAntipodalClaimStillSigns(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s, "/verify/v0/proof", mockProof(json.RawMessage(point(57.5806, -37.7749))))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Credibility types.CredibilityVector `json:"credibility"`
		Attestation types.EASAttestation    `json:"attestation"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Credibility.Spatial.WithinRadiusFraction != 0 {
		t.Fatalf("expected withinRadiusFraction 0, got %v", resp.Credibility.Spatial.WithinRadiusFraction)
	}
	if resp.Credibility.Spatial.MeanDistanceMeters <= 1e7 {
		t.Fatalf("expected antipodal mean distance > 1e7, got %v", resp.Credibility.Spatial.MeanDistanceMeters)
	}
	if resp.Attestation.Signature == "" {
		t.Fatal("expected a signed attestation despite the failed spatial check")
	}
}

func TestVerifyProofRejectsWrongLPVersion(t *testing.T) {
	s := newTestServer(t)
	body := mockProof(json.RawMessage(point(0, 0)))
	body["proof"].(map[string]interface{})["claim"].(map[string]interface{})["lpVersion"] = "0.1"
	rec := postJSON(t, s, "/verify/v0/proof", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestVerifyStampEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s, "/verify/v0/stamp", map[string]interface{}{
		"stamp": map[string]interface{}{
			"lpVersion":         "0.2",
			"locationType":      "geojson-point",
			"location":          json.RawMessage(point(0, 0)),
			"srs":               "EPSG:4326",
			"temporalFootprint": map[string]int64{"start": 1, "end": 2},
			"plugin":            "mock",
			"pluginVersion":     "0.1.0",
			"signatures": []map[string]interface{}{{
				"signer":    map[string]string{"scheme": "device-pubkey", "value": "abc"},
				"algorithm": "ed25519",
				"value":     "0x00",
				"timestamp": 1,
			}},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp stampResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Valid {
		t.Fatalf("expected a valid stamp, got %+v", resp)
	}
}

func TestPluginListIncludesBuiltins(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/verify/v0/plugins", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Plugins []struct {
			Name string `json:"name"`
		} `json:"plugins"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	names := map[string]bool{}
	for _, p := range resp.Plugins {
		names[p.Name] = true
	}
	for _, want := range []string{"device", "network", "mock"} {
		if !names[want] {
			t.Fatalf("expected plugin %q in list, got %v", want, names)
		}
	}
}

func TestUnknownEndpointIsNotFoundProblem(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/no/such/route", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var p struct {
		Type   string `json:"type"`
		Status int    `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode problem: %v", err)
	}
	if p.Status != http.StatusNotFound {
		t.Fatalf("expected problem status 404, got %d", p.Status)
	}
}
