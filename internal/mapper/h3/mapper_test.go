package h3mapper

import (
	"reflect"
	"sort"
	"testing"
	"time"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/meteo-query/internal/core/model"
)

func hasDups(xs []string) bool {
	seen := map[string]struct{}{}
	for _, x := range xs {
		if _, ok := seen[x]; ok {
			return true
		}
		seen[x] = struct{}{}
	}
	return false
}

func TestPoints_SameCellCollapses(t *testing.T) {
	m, err := New(6)
	if err != nil {
		t.Fatal(err)
	}
	cells, err := m.CellsForLocation(model.Points{{Lat: 52.520551, Lon: 13.461804}, {Lat: 52.5206, Lon: 13.4618}, {Lat: 47.37, Lon: 8.54}})
	if err != nil {
		t.Fatalf("cells: %v", err)
	}
	if len(cells) != 2 {
		t.Fatalf("cells = %v, want 2 distinct", cells)
	}
	if !sort.StringsAreSorted(cells) {
		t.Fatalf("cells must be sorted: %v", cells)
	}
	for _, s := range cells {
		var c h3.Cell
		if err := c.UnmarshalText([]byte(s)); err != nil || !c.IsValid() || c.Resolution() != 6 {
			t.Fatalf("bad cell %q (err=%v)", s, err)
		}
	}
}

func TestRoute_UsesStopCoordinates(t *testing.T) {
	m, _ := New(5)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	route := model.Route{Times: []time.Time{at, at}, Points: []model.Point{{Lat: 52.5, Lon: 13.4}, {Lat: 48.1, Lon: 11.6}}}
	got, err := m.CellsForLocation(route)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := m.CellsForPoints(route.Points)
	if !reflect.DeepEqual(got, want) || len(got) != 2 {
		t.Fatalf("route cells = %v, want %v", got, want)
	}
}

func TestBBox_SortedUniqueAndBounded(t *testing.T) {
	m, _ := New(8)
	bb := model.BBox{LatMin: 59.30, LatMax: 59.40, LonMin: 17.95, LonMax: 18.15}

	cells, err := m.CellsForBBox(bb)
	if err != nil {
		t.Fatalf("CellsForBBox err: %v", err)
	}
	if len(cells) == 0 || len(cells) > DefaultMaxCells {
		t.Fatalf("cells = %d, want 1..%d", len(cells), DefaultMaxCells)
	}
	if !sort.StringsAreSorted(cells) || hasDups(cells) {
		t.Fatalf("cells must be sorted + unique")
	}
	again, _ := m.CellsForBBox(bb)
	if !reflect.DeepEqual(cells, again) {
		t.Fatalf("expected identical output for identical input")
	}
}

func TestBBox_LargeAreaCoarsens(t *testing.T) {
	m, _ := New(9)
	europe := model.BBox{LatMin: 35, LatMax: 70, LonMin: -10, LonMax: 30}
	cells, err := m.CellsForBBox(europe)
	if err != nil {
		t.Fatal(err)
	}
	if len(cells) == 0 || len(cells) > DefaultMaxCells {
		t.Fatalf("cells = %d", len(cells))
	}
	var c h3.Cell
	_ = c.UnmarshalText([]byte(cells[0]))
	if c.Resolution() >= 9 {
		t.Fatalf("resolution = %d, want coarser than 9", c.Resolution())
	}
}

func TestBBox_TinyAreaFallsBackToCentre(t *testing.T) {
	m, _ := New(2)
	bb := model.BBox{LatMin: 52.50, LatMax: 52.51, LonMin: 13.40, LonMax: 13.41}
	cells, err := m.CellsForBBox(bb)
	if err != nil {
		t.Fatal(err)
	}
	if len(cells) != 1 {
		t.Fatalf("cells = %v, want the centre cell", cells)
	}
}

func TestPostalAndBounds(t *testing.T) {
	if _, err := New(-1); err == nil {
		t.Fatalf("expected error for res=-1")
	}
	if _, err := New(16); err == nil {
		t.Fatalf("expected error for res=16")
	}
	m, _ := New(6)
	cells, err := m.CellsForLocation(model.Postal{"DE10117"})
	if err != nil || cells != nil {
		t.Fatalf("postal = %v, %v; want no cells", cells, err)
	}
	if _, err := m.CellsForBBox(model.BBox{LatMin: 50, LatMax: 40, LonMin: 5, LonMax: 10}); err == nil {
		t.Fatalf("expected error for inverted bbox")
	}
}
