// Copyright 2025 Certen Protocol

package geometry

import (
	"encoding/json"
	"testing"

	"github.com/certen/astral-location-services/pkg/geojson"
)

func mustGeometry(t *testing.T, raw string) *geojson.Geometry {
	t.Helper()
	g, err := geojson.Parse(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("parse geometry: %v", err)
	}
	return g
}

func TestDistanceIdenticalPointsIsZero(t *testing.T) {
	b := NewBackend()
	p := mustGeometry(t, `{"type":"Point","coordinates":[-122.4194,37.7749]}`)
	d, err := b.Distance(p, p)
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if d != 0 {
		t.Fatalf("expected 0, got %v", d)
	}
}

func TestDistanceSFToNYC(t *testing.T) {
	b := NewBackend()
	sf := mustGeometry(t, `{"type":"Point","coordinates":[-122.4194,37.7749]}`)
	nyc := mustGeometry(t, `{"type":"Point","coordinates":[-73.9857,40.7484]}`)
	d, err := b.Distance(sf, nyc)
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if d < 3.9e6 || d > 4.4e6 {
		t.Fatalf("expected distance in [3.9e6,4.4e6], got %v", d)
	}
}

func TestDistanceAntipodes(t *testing.T) {
	b := NewBackend()
	a := mustGeometry(t, `{"type":"Point","coordinates":[0,0]}`)
	c := mustGeometry(t, `{"type":"Point","coordinates":[180,0]}`)
	d, err := b.Distance(a, c)
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if d < 1.9e7 || d > 2.01e7 {
		t.Fatalf("expected antipodal distance in [1.9e7,2.01e7], got %v", d)
	}
}

func TestLengthRejectsPoint(t *testing.T) {
	b := NewBackend()
	p := mustGeometry(t, `{"type":"Point","coordinates":[0,0]}`)
	if _, err := b.Length(p); err == nil {
		t.Fatal("expected error for Point input to length")
	}
}

func TestAreaUnitSquareAtEquator(t *testing.T) {
	b := NewBackend()
	poly := mustGeometry(t, `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`)
	area, err := b.Area(poly)
	if err != nil {
		t.Fatalf("area: %v", err)
	}
	want := 1.23e10
	if area < want*0.95 || area > want*1.05 {
		t.Fatalf("expected area within 5%% of %v, got %v", want, area)
	}
}

func TestContainsInteriorPoint(t *testing.T) {
	b := NewBackend()
	square := mustGeometry(t, `{"type":"Polygon","coordinates":[[[-10,-10],[10,-10],[10,10],[-10,10],[-10,-10]]]}`)
	inside := mustGeometry(t, `{"type":"Point","coordinates":[0,0]}`)
	outside := mustGeometry(t, `{"type":"Point","coordinates":[50,50]}`)

	ok, err := b.Contains(square, inside)
	if err != nil {
		t.Fatalf("contains: %v", err)
	}
	if !ok {
		t.Fatal("expected square to contain interior point")
	}

	ok, err = b.Contains(square, outside)
	if err != nil {
		t.Fatalf("contains: %v", err)
	}
	if ok {
		t.Fatal("expected square not to contain exterior point")
	}
}

func TestWithinMatchesDistance(t *testing.T) {
	b := NewBackend()
	sf := mustGeometry(t, `{"type":"Point","coordinates":[-122.4194,37.7749]}`)
	near := mustGeometry(t, `{"type":"Point","coordinates":[-122.42,37.78]}`)

	ok, err := b.Within(sf, near, 5000)
	if err != nil {
		t.Fatalf("within: %v", err)
	}
	if !ok {
		t.Fatal("expected within radius 5000m")
	}

	ok, err = b.Within(sf, near, 1)
	if err != nil {
		t.Fatalf("within: %v", err)
	}
	if ok {
		t.Fatal("expected not within radius 1m")
	}
}

func TestWithinRejectsNonPositiveRadius(t *testing.T) {
	b := NewBackend()
	p := mustGeometry(t, `{"type":"Point","coordinates":[0,0]}`)
	if _, err := b.Within(p, p, 0); err == nil {
		t.Fatal("expected error for radius <= 0")
	}
}

func TestIntersectsSharedPoint(t *testing.T) {
	b := NewBackend()
	square := mustGeometry(t, `{"type":"Polygon","coordinates":[[[-10,-10],[10,-10],[10,10],[-10,10],[-10,-10]]]}`)
	inside := mustGeometry(t, `{"type":"Point","coordinates":[0,0]}`)
	outside := mustGeometry(t, `{"type":"Point","coordinates":[50,50]}`)

	ok, err := b.Intersects(square, inside)
	if err != nil {
		t.Fatalf("intersects: %v", err)
	}
	if !ok {
		t.Fatal("expected intersection with interior point")
	}

	ok, err = b.Intersects(square, outside)
	if err != nil {
		t.Fatalf("intersects: %v", err)
	}
	if ok {
		t.Fatal("expected no intersection with distant point")
	}
}
