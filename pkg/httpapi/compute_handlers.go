// Copyright 2025 Certen Protocol

package httpapi

import (
	"net/http"

	"github.com/certen/astral-location-services/pkg/problem"
	"github.com/certen/astral-location-services/pkg/resolve"
)

type distanceRequest struct {
	commonFields
	From resolve.Input `json:"from"`
	To   resolve.Input `json:"to"`
}

func (s *Server) handleDistance(w http.ResponseWriter, r *http.Request) error {
	var req distanceRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if err := req.validate(); err != nil {
		return err
	}
	resp, err := s.compute.Distance(r.Context(), req.toRequest(), req.From, req.To)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

type areaRequest struct {
	commonFields
	Geometry resolve.Input `json:"geometry"`
}

func (s *Server) handleArea(w http.ResponseWriter, r *http.Request) error {
	var req areaRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if err := req.validate(); err != nil {
		return err
	}
	resp, err := s.compute.Area(r.Context(), req.toRequest(), req.Geometry)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

type lengthRequest struct {
	commonFields
	Geometry resolve.Input `json:"geometry"`
}

func (s *Server) handleLength(w http.ResponseWriter, r *http.Request) error {
	var req lengthRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if err := req.validate(); err != nil {
		return err
	}
	resp, err := s.compute.Length(r.Context(), req.toRequest(), req.Geometry)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

type containsRequest struct {
	commonFields
	Container resolve.Input `json:"container"`
	Containee resolve.Input `json:"containee"`
}

func (s *Server) handleContains(w http.ResponseWriter, r *http.Request) error {
	var req containsRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if err := req.validate(); err != nil {
		return err
	}
	resp, err := s.compute.Contains(r.Context(), req.toRequest(), req.Container, req.Containee)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

// withinRequest accepts both the current "geometry"/"target" field names
// and the older "point" alias some callers still send.
type withinRequest struct {
	commonFields
	Geometry *resolve.Input `json:"geometry"`
	Point    *resolve.Input `json:"point"`
	Target   resolve.Input  `json:"target"`
	Radius   float64        `json:"radius"`
}

func (s *Server) handleWithin(w http.ResponseWriter, r *http.Request) error {
	var req withinRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if err := req.validate(); err != nil {
		return err
	}
	g := req.Geometry
	if g == nil {
		g = req.Point
	}
	if g == nil {
		return problem.ErrInvalidInput("within requires a geometry (or legacy point) field")
	}
	resp, err := s.compute.Within(r.Context(), req.toRequest(), *g, req.Target, req.Radius)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

type intersectsRequest struct {
	commonFields
	Geometry1 resolve.Input `json:"geometry1"`
	Geometry2 resolve.Input `json:"geometry2"`
}

func (s *Server) handleIntersects(w http.ResponseWriter, r *http.Request) error {
	var req intersectsRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if err := req.validate(); err != nil {
		return err
	}
	resp, err := s.compute.Intersects(r.Context(), req.toRequest(), req.Geometry1, req.Geometry2)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}
