package h3mapper

import (
	"errors"
	"fmt"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/meteo-query/internal/core/model"
	"github.com/mohammed-shakir/meteo-query/internal/mapper"
)

// DefaultMaxCells bounds how many cells a single area query may expand to.
const DefaultMaxCells = 256

// Mapper turns query locations into H3 cell ids at a fixed resolution.
type Mapper struct {
	res      int
	maxCells int
}

var _ mapper.Interface = (*Mapper)(nil)

func New(res int) (*Mapper, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	return &Mapper{res: res, maxCells: DefaultMaxCells}, nil
}

func (m *Mapper) Resolution() int { return m.res }

// CellsForLocation returns the sorted, de-duplicated cells covering loc.
// Postal locations have no coordinates and map to no cells.
func (m *Mapper) CellsForLocation(loc model.Location) ([]string, error) {
	switch l := loc.(type) {
	case model.Points:
		return m.CellsForPoints(l)
	case model.Route:
		return m.CellsForPoints(l.Points)
	case model.BBox:
		return m.CellsForBBox(l)
	case model.Postal, model.PostalRoute, nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported location %T", loc)
	}
}

func (m *Mapper) CellsForPoints(pts []model.Point) ([]string, error) {
	out := make([]string, 0, len(pts))
	seen := make(map[string]struct{}, len(pts))
	for _, p := range pts {
		c, err := h3.LatLngToCell(h3.LatLng{Lat: p.Lat, Lng: p.Lon}, m.res)
		if err != nil {
			return nil, fmt.Errorf("h3 cell for %v,%v: %w", p.Lat, p.Lon, err)
		}
		s := c.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// CellsForBBox polyfills the box. When the fill at the configured resolution
// would exceed the cell budget, the finest coarser resolution that fits is
// used instead. A box smaller than one cell maps to the cell of its centre.
func (m *Mapper) CellsForBBox(bb model.BBox) ([]string, error) {
	if bb.LatMin > bb.LatMax || bb.LonMin > bb.LonMax {
		return nil, errors.New("bbox min exceeds max")
	}
	outer := h3.GeoLoop{
		{Lat: bb.LatMin, Lng: bb.LonMin},
		{Lat: bb.LatMin, Lng: bb.LonMax},
		{Lat: bb.LatMax, Lng: bb.LonMax},
		{Lat: bb.LatMax, Lng: bb.LonMin},
	}

	var best []string
	for r := 0; r <= m.res; r++ {
		cells, err := polyfill(outer, r)
		if err != nil {
			return nil, err
		}
		if len(cells) > m.maxCells {
			break
		}
		if len(cells) > 0 {
			best = cells
		}
	}
	if len(best) > 0 {
		return best, nil
	}
	centre := model.Point{Lat: (bb.LatMin + bb.LatMax) / 2, Lon: (bb.LonMin + bb.LonMax) / 2}
	return m.CellsForPoints([]model.Point{centre})
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

// polyfill computes unique cells and returns them sorted for determinism.
func polyfill(outer h3.GeoLoop, res int) ([]string, error) {
	indexes, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: outer}, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}
	out := make([]string, 0, len(indexes))
	seen := make(map[string]struct{}, len(indexes))
	for _, idx := range indexes {
		s := idx.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}
