// Package model defines core domain types shared across the query engine.
package model

import (
	"fmt"
	"strconv"
)

type Point struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

// String representation matching the service's "lat,lon" location syntax
func (p Point) String() string {
	return FormatFloat(p.Lat) + "," + FormatFloat(p.Lon)
}

func (p Point) Validate() error {
	// written as negated ranges so NaN fails too
	if !(p.Lat >= -90 && p.Lat <= 90) {
		return Invalidf("latitude %v out of range [-90,90]", p.Lat)
	}
	if !(p.Lon >= -180 && p.Lon <= 180) {
		return Invalidf("longitude %v out of range [-180,180]", p.Lon)
	}
	return nil
}

type ResolutionKind uint8

const (
	ResolutionNone ResolutionKind = iota
	ResolutionDegrees
	ResolutionPixels
)

func (k ResolutionKind) String() string {
	switch k {
	case ResolutionDegrees:
		return "degrees"
	case ResolutionPixels:
		return "pixels"
	default:
		return "none"
	}
}

// Resolution is either a degree step or a grid point count per axis.
// The zero value carries no resolution.
type Resolution struct {
	kind     ResolutionKind
	latStep  float64
	lonStep  float64
	latCount int
	lonCount int
}

func Degrees(latStep, lonStep float64) Resolution {
	return Resolution{kind: ResolutionDegrees, latStep: latStep, lonStep: lonStep}
}

// Pixels declares the number of grid points along latitude (rows) and longitude (columns).
func Pixels(latCount, lonCount int) Resolution {
	return Resolution{kind: ResolutionPixels, latCount: latCount, lonCount: lonCount}
}

func (r Resolution) Kind() ResolutionKind { return r.kind }

func (r Resolution) Steps() (lat, lon float64) { return r.latStep, r.lonStep }

func (r Resolution) Counts() (lat, lon int) { return r.latCount, r.lonCount }

// String renders "lat,lon" for degrees and "lonxlat" for grid point counts.
func (r Resolution) String() string {
	switch r.kind {
	case ResolutionDegrees:
		return FormatFloat(r.latStep) + "," + FormatFloat(r.lonStep)
	case ResolutionPixels:
		return strconv.Itoa(r.lonCount) + "x" + strconv.Itoa(r.latCount)
	default:
		return ""
	}
}

func (r Resolution) Validate() error {
	switch r.kind {
	case ResolutionNone:
		return nil
	case ResolutionDegrees:
		if !(r.latStep > 0) || !(r.lonStep > 0) {
			return Invalidf("degree resolution must be positive (got %v,%v)", r.latStep, r.lonStep)
		}
	case ResolutionPixels:
		if r.latCount <= 0 || r.lonCount <= 0 {
			return Invalidf("pixel resolution must be positive (got %dx%d)", r.lonCount, r.latCount)
		}
	default:
		return Invalidf("unknown resolution kind %d", r.kind)
	}
	return nil
}

type BBox struct {
	LatMin float64
	LatMax float64
	LonMin float64
	LonMax float64
	Res    Resolution
}

// String representation matching the service's grid syntax, north-west corner first
func (b BBox) String() string {
	s := fmt.Sprintf("%s,%s_%s,%s",
		FormatFloat(b.LatMax), FormatFloat(b.LonMin),
		FormatFloat(b.LatMin), FormatFloat(b.LonMax))
	if b.Res.kind == ResolutionNone {
		return s
	}
	return s + ":" + b.Res.String()
}

func (b BBox) Validate() error {
	for _, p := range []Point{{Lat: b.LatMin, Lon: b.LonMin}, {Lat: b.LatMax, Lon: b.LonMax}} {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("bbox: %w", err)
		}
	}
	if b.LatMin > b.LatMax {
		return Invalidf("bbox: lat_min %v > lat_max %v", b.LatMin, b.LatMax)
	}
	if b.LonMin > b.LonMax {
		return Invalidf("bbox: lon_min %v > lon_max %v", b.LonMin, b.LonMax)
	}
	if err := b.Res.Validate(); err != nil {
		return fmt.Errorf("bbox: %w", err)
	}
	return nil
}

// FormatFloat is the shortest decimal form that round-trips.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
