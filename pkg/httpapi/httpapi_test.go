// Copyright 2025 Certen Protocol

package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/certen/astral-location-services/pkg/compute"
	"github.com/certen/astral-location-services/pkg/config"
	"github.com/certen/astral-location-services/pkg/eas"
	"github.com/certen/astral-location-services/pkg/geometry"
	"github.com/certen/astral-location-services/pkg/plugin"
	"github.com/certen/astral-location-services/pkg/resolve"
	"github.com/certen/astral-location-services/pkg/signer"
	"github.com/certen/astral-location-services/pkg/verify"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		MaxBodyBytes:       1 << 20,
		RateLimitWindow:    time.Hour,
		RateLimitPublic:    2,
		RateLimitDeveloper: 1000,
		RateLimitInternal:  10000,
		EvaluationMode:     "tee",
		DefaultChainID:     1,
		APIKeys: map[string]config.APIKeyRecord{
			"dev-key": {Tier: "developer", Label: "test"},
		},
		Schemas: config.SchemaTable{
			Numeric: "0x1122334455667788990011223344556677889900112233445566778899aabbcc",
			Boolean: "0x2122334455667788990011223344556677889900112233445566778899aabbcc",
			Verify:  "0x3122334455667788990011223344556677889900112233445566778899aabbcc",
		},
	}

	easClient, err := eas.NewClient(map[int64]eas.ChainConfig{}, 0)
	if err != nil {
		t.Fatalf("new eas client: %v", err)
	}
	resolver := resolve.New(easClient)
	backend := geometry.NewBackend()
	sgn, err := signer.New(testKey, map[int64]string{1: "0x1111111111111111111111111111111111111111"}, 0)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	computePipeline := compute.New(resolver, backend, sgn, cfg)
	verifyPipeline := verify.New(plugin.Global())

	return New(cfg, computePipeline, verifyPipeline, sgn, cfg, plugin.Global(), nil)
}

func point(lon, lat float64) []byte {
	b, _ := json.Marshal(map[string]interface{}{
		"type":        "Point",
		"coordinates": []float64{lon, lat},
	})
	return b
}

func TestDistanceEndToEnd(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(map[string]interface{}{
		"chainId": 1,
		"from":    json.RawMessage(point(-122.4194, 37.7749)),
		"to":      json.RawMessage(point(-73.9857, 40.7484)),
	})
	req := httptest.NewRequest(http.MethodPost, "/compute/v0/distance", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp compute.NumericResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Result < 3.9e6 || resp.Result > 4.4e6 {
		t.Fatalf("unexpected distance: %v", resp.Result)
	}
	if len(resp.InputRefs) != 2 {
		t.Fatalf("expected 2 input refs, got %d", len(resp.InputRefs))
	}
}

func TestUnknownAPIKeyIsUnauthorised(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-API-Key", "not-a-real-key")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRateLimitExceededReturns429(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on 3rd request, got %d", rec.Code)
	}
}

func TestDeveloperKeyHasSeparateRateLimitBucket(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-API-Key", "dev-key")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected developer-tier request to succeed, got %d", rec.Code)
	}
}

func TestAreaRejectsNonPolygonWithInvalidInputProblem(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(map[string]interface{}{
		"chainId":  1,
		"geometry": json.RawMessage(point(0, 0)),
	})
	req := httptest.NewRequest(http.MethodPost, "/compute/v0/area", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	var p struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode problem: %v", err)
	}
	if p.Type == "" {
		t.Fatal("expected an RFC 7807 problem type")
	}
}
