// Package invalidation describes the events that tell the gateway cached
// weather data for an area is out of date, for example after a new model run.
package invalidation

import (
	"fmt"
	"strings"
	"time"

	"github.com/mohammed-shakir/meteo-query/internal/core/model"
)

const (
	// OpRefresh drops cached payloads for the area.
	OpRefresh = "refresh"
	// OpPurge also forgets the area's hotness and cell index entries.
	OpPurge = "purge"
)

type Event struct {
	// Version increases per Source; an event not newer than the last one seen
	// from its source is skipped. Zero disables the check.
	Version uint64    `json:"version"`
	Op      string    `json:"op"`
	Source  string    `json:"source,omitempty"`
	TS      time.Time `json:"ts"`
	// Shapes limits the event to these query shapes; empty means all.
	Shapes []string `json:"shapes,omitempty"`

	// Exactly one of the following names the affected area.
	Key    string        `json:"key,omitempty"`
	Cells  []string      `json:"h3_cells,omitempty"`
	BBox   *BBox         `json:"bbox,omitempty"`
	Points []model.Point `json:"points,omitempty"`
}

type BBox struct {
	LatMin float64 `json:"lat_min"`
	LatMax float64 `json:"lat_max"`
	LonMin float64 `json:"lon_min"`
	LonMax float64 `json:"lon_max"`
}

func (b BBox) Model() model.BBox {
	return model.BBox{LatMin: b.LatMin, LatMax: b.LatMax, LonMin: b.LonMin, LonMax: b.LonMax}
}

func (e Event) Validate() error {
	switch e.Op {
	case OpRefresh, OpPurge:
	default:
		return fmt.Errorf("op must be refresh|purge")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	areas := 0
	if strings.TrimSpace(e.Key) != "" {
		areas++
	}
	if len(e.Cells) > 0 {
		areas++
	}
	if e.BBox != nil {
		areas++
	}
	if len(e.Points) > 0 {
		areas++
	}
	if areas != 1 {
		return fmt.Errorf("exactly one of key, h3_cells, bbox or points is required")
	}
	if e.BBox != nil {
		bb := *e.BBox
		if bb.LatMin < -90 || bb.LatMax > 90 || bb.LonMin < -180 || bb.LonMax > 180 {
			return fmt.Errorf("bbox out of range")
		}
		if !(bb.LatMax > bb.LatMin && bb.LonMax > bb.LonMin) {
			return fmt.Errorf("bbox must satisfy lat_max>lat_min and lon_max>lon_min")
		}
	}
	for i, p := range e.Points {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("point %d: %w", i, err)
		}
	}
	return nil
}

// Location is the area as a query location, or nil for key and cell events.
func (e Event) Location() model.Location {
	switch {
	case e.BBox != nil:
		return e.BBox.Model()
	case len(e.Points) > 0:
		return model.Points(e.Points)
	default:
		return nil
	}
}

// Matches reports whether a cached shape is covered by the event.
func (e Event) Matches(shape string) bool {
	if len(e.Shapes) == 0 {
		return true
	}
	for _, s := range e.Shapes {
		if s == shape {
			return true
		}
	}
	return false
}
