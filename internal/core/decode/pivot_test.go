package decode

import (
	"errors"
	"testing"

	"github.com/mohammed-shakir/meteo-query/internal/core/model"
)

const berlinPivot = `data,13.4,13.45,13.5
52.5,3.1,3.2,3.3
52.45,2.9,3,3.05
52.4,2.7,2.8,
`

func TestPivotedGrid_Shape(t *testing.T) {
	f, err := PivotedGrid([]byte(berlinPivot))
	if err != nil {
		t.Fatalf("PivotedGrid: %v", err)
	}
	if f.Height() != 3 || f.Width() != 4 {
		t.Fatalf("shape = %dx%d, want 3x4", f.Height(), f.Width())
	}
	names := f.Names()
	want := []string{"lat", "13.4", "13.45", "13.5"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
	for _, c := range f.Columns() {
		if c.Type != model.Float64 {
			t.Fatalf("column %q type = %s", c.Name, c.Type)
		}
	}
}

func TestPivotedGrid_KeepsServerOrder(t *testing.T) {
	f, err := PivotedGrid([]byte(berlinPivot))
	if err != nil {
		t.Fatalf("PivotedGrid: %v", err)
	}
	lat := f.ColumnAt(0)
	for i, want := range []float64{52.5, 52.45, 52.4} {
		if v, _ := lat.Float(i); v != want {
			t.Fatalf("lat[%d] = %v, want %v", i, v, want)
		}
	}
	if !f.ColumnAt(3).IsNull(2) {
		t.Fatalf("empty cell must be null")
	}
}

func TestPivotedGrid_RxC(t *testing.T) {
	payload := "x,-1,0,1,2,3\n10,1,2,3,4,5\n9,1,2,3,4,5\n"
	f, err := PivotedGrid([]byte(payload))
	if err != nil {
		t.Fatalf("PivotedGrid: %v", err)
	}
	if f.Height() != 2 || f.Width() != 6 {
		t.Fatalf("shape = %dx%d, want 2x6", f.Height(), f.Width())
	}
}

func TestPivotedGrid_Errors(t *testing.T) {
	for name, payload := range map[string]string{
		"no longitudes":    "data\n52.5\n",
		"bad longitude":    "data,east\n52.5,1\n",
		"text value":       "data,13.4\n52.5,warm\n",
		"missing latitude": "data,13.4\n,1\n",
		"empty":            "",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := PivotedGrid([]byte(payload)); !errors.Is(err, model.ErrDecode) {
				t.Fatalf("err = %v, want decode error", err)
			}
		})
	}
}
