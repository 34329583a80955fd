// Copyright 2025 Certen Protocol

package geometry

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/certen/astral-location-services/pkg/geojson"
)

func toPoint(coords []interface{}) (orb.Point, error) {
	if len(coords) < 2 {
		return orb.Point{}, fmt.Errorf("invalid position")
	}
	lon, ok1 := coords[0].(float64)
	lat, ok2 := coords[1].(float64)
	if !ok1 || !ok2 {
		return orb.Point{}, fmt.Errorf("non-numeric position")
	}
	return orb.Point{lon, lat}, nil
}

func toRing(coords []interface{}) (orb.Ring, error) {
	ring := make(orb.Ring, 0, len(coords))
	for _, c := range coords {
		pos, ok := c.([]interface{})
		if !ok {
			return nil, fmt.Errorf("invalid ring position")
		}
		p, err := toPoint(pos)
		if err != nil {
			return nil, err
		}
		ring = append(ring, p)
	}
	return ring, nil
}

func toPolygon(coords []interface{}) (orb.Polygon, error) {
	poly := make(orb.Polygon, 0, len(coords))
	for _, r := range coords {
		arr, ok := r.([]interface{})
		if !ok {
			return nil, fmt.Errorf("invalid polygon ring")
		}
		ring, err := toRing(arr)
		if err != nil {
			return nil, err
		}
		poly = append(poly, ring)
	}
	return poly, nil
}

func toLineString(coords []interface{}) (orb.LineString, error) {
	ls := make(orb.LineString, 0, len(coords))
	for _, c := range coords {
		pos, ok := c.([]interface{})
		if !ok {
			return nil, fmt.Errorf("invalid line position")
		}
		p, err := toPoint(pos)
		if err != nil {
			return nil, err
		}
		ls = append(ls, p)
	}
	return ls, nil
}

// polygons flattens a geometry into zero or more polygons. Non-polygonal
// geometries yield none.
func polygons(g *geojson.Geometry) ([]orb.Polygon, error) {
	switch g.Type {
	case geojson.TypePolygon:
		p, err := toPolygon(g.Coordinates)
		if err != nil {
			return nil, err
		}
		return []orb.Polygon{p}, nil
	case geojson.TypeMultiPolygon:
		var out []orb.Polygon
		for _, m := range g.Coordinates {
			arr, ok := m.([]interface{})
			if !ok {
				return nil, fmt.Errorf("invalid MultiPolygon member")
			}
			p, err := toPolygon(arr)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil
	case geojson.TypeGeometryCollection:
		var out []orb.Polygon
		for _, sub := range g.Geometries {
			p, err := polygons(sub)
			if err != nil {
				return nil, err
			}
			out = append(out, p...)
		}
		return out, nil
	}
	return nil, nil
}

// lineStrings flattens a geometry into zero or more line strings.
func lineStrings(g *geojson.Geometry) ([]orb.LineString, error) {
	switch g.Type {
	case geojson.TypeLineString:
		ls, err := toLineString(g.Coordinates)
		if err != nil {
			return nil, err
		}
		return []orb.LineString{ls}, nil
	case geojson.TypeMultiLineString:
		var out []orb.LineString
		for _, m := range g.Coordinates {
			arr, ok := m.([]interface{})
			if !ok {
				return nil, fmt.Errorf("invalid MultiLineString member")
			}
			ls, err := toLineString(arr)
			if err != nil {
				return nil, err
			}
			out = append(out, ls)
		}
		return out, nil
	case geojson.TypeGeometryCollection:
		var out []orb.LineString
		for _, sub := range g.Geometries {
			ls, err := lineStrings(sub)
			if err != nil {
				return nil, err
			}
			out = append(out, ls...)
		}
		return out, nil
	}
	return nil, nil
}

// vertices returns every coordinate in a geometry, regardless of type. Used
// for the nearest-point distance fallback between mismatched geometry kinds.
func vertices(g *geojson.Geometry) ([]orb.Point, error) {
	switch g.Type {
	case geojson.TypePoint:
		p, err := toPoint(g.Coordinates)
		if err != nil {
			return nil, err
		}
		return []orb.Point{p}, nil
	case geojson.TypeMultiPoint:
		var out []orb.Point
		for _, c := range g.Coordinates {
			pos, ok := c.([]interface{})
			if !ok {
				return nil, fmt.Errorf("invalid MultiPoint member")
			}
			p, err := toPoint(pos)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil
	case geojson.TypeLineString, geojson.TypeMultiLineString:
		lines, err := lineStrings(g)
		if err != nil {
			return nil, err
		}
		var out []orb.Point
		for _, l := range lines {
			out = append(out, l...)
		}
		return out, nil
	case geojson.TypePolygon, geojson.TypeMultiPolygon:
		polys, err := polygons(g)
		if err != nil {
			return nil, err
		}
		var out []orb.Point
		for _, p := range polys {
			for _, r := range p {
				out = append(out, r...)
			}
		}
		return out, nil
	case geojson.TypeGeometryCollection:
		var out []orb.Point
		for _, sub := range g.Geometries {
			pts, err := vertices(sub)
			if err != nil {
				return nil, err
			}
			out = append(out, pts...)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported geometry type %q", g.Type)
}

func asPoint(g *geojson.Geometry) (orb.Point, bool) {
	if g.Type != geojson.TypePoint {
		return orb.Point{}, false
	}
	p, err := toPoint(g.Coordinates)
	if err != nil {
		return orb.Point{}, false
	}
	return p, true
}
