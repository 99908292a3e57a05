package model

import (
	"fmt"
	"strings"
	"time"
)

// Location is the closed set of location shapes: Points, BBox, Postal, Route and PostalRoute.
type Location interface {
	isLocation()
}

type Points []Point

type Postal []string

// Route pairs every point with its own instant.
type Route struct {
	Times  []time.Time
	Points []Point
}

type PostalRoute struct {
	Times []time.Time
	Codes []string
}

func (Points) isLocation()      {}
func (BBox) isLocation()        {}
func (Postal) isLocation()      {}
func (Route) isLocation()       {}
func (PostalRoute) isLocation() {}

func (ps Points) Validate() error {
	if len(ps) == 0 {
		return Invalidf("at least one point is required")
	}
	for i, p := range ps {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("point %d: %w", i, err)
		}
	}
	return nil
}

func (pc Postal) Validate() error {
	if len(pc) == 0 {
		return Invalidf("at least one postal code is required")
	}
	for i, c := range pc {
		if strings.TrimSpace(c) == "" || strings.ContainsAny(c, "/+?&") {
			return Invalidf("postal code %d: %q is not a valid identifier", i, c)
		}
	}
	return nil
}

func (r Route) Validate() error {
	if len(r.Times) != len(r.Points) {
		return arity(len(r.Times), len(r.Points))
	}
	if len(r.Points) == 0 {
		return Invalidf("route needs at least one stop")
	}
	return Points(r.Points).Validate()
}

func (r PostalRoute) Validate() error {
	if len(r.Times) != len(r.Codes) {
		return arity(len(r.Times), len(r.Codes))
	}
	if len(r.Codes) == 0 {
		return Invalidf("route needs at least one stop")
	}
	return Postal(r.Codes).Validate()
}

func arity(times, stops int) error {
	return fmt.Errorf("%w: %d timestamps for %d locations", ErrArityMismatch, times, stops)
}
