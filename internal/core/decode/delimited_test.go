package decode

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mohammed-shakir/meteo-query/internal/core/model"
)

const pointSeries = `lat;lon;validdate;t_2m:C;precip_1h:mm
52.52;13.405;1989-11-09T18:00:00Z;3.4;0
52.52;13.405;1989-11-10T06:00:00Z;1.9;0.2
52.52;13.405;1989-11-10T18:00:00Z;4;
`

func TestDelimited_LongForm(t *testing.T) {
	f, err := Delimited([]byte(pointSeries))
	if err != nil {
		t.Fatalf("Delimited: %v", err)
	}
	if f.Height() != 3 || f.Width() != 5 {
		t.Fatalf("shape = %dx%d, want 3x5", f.Height(), f.Width())
	}
	want := []string{"lat", "lon", "validdate", "t_2m:C", "precip_1h:mm"}
	if got := f.Names(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("names = %v, want %v", got, want)
	}

	vd, _ := f.Column("validdate")
	if vd.Type != model.Time {
		t.Fatalf("validdate type = %s", vd.Type)
	}
	if ts, _ := vd.Time(1); !ts.Equal(time.Date(1989, 11, 10, 6, 0, 0, 0, time.UTC)) {
		t.Fatalf("validdate[1] = %v", ts)
	}

	temp, _ := f.Column("t_2m:C")
	if temp.Type != model.Float64 {
		t.Fatalf("int cells must widen to float, got %s", temp.Type)
	}
	if v, _ := temp.Float(2); v != 4 {
		t.Fatalf("t_2m:C[2] = %v", v)
	}

	precip, _ := f.Column("precip_1h:mm")
	if !precip.IsNull(2) {
		t.Fatalf("empty cell must decode as null")
	}
}

func TestDelimited_CommaAndPadding(t *testing.T) {
	payload := "\xef\xbb\xbfstation_id,name,elevation\n\n  a1b2,\"Zurich, Fluntern\",556  \n c3d4,Bern,553\n\n"
	f, err := Delimited([]byte(payload))
	if err != nil {
		t.Fatalf("Delimited: %v", err)
	}
	if f.Height() != 2 {
		t.Fatalf("height = %d, want 2", f.Height())
	}
	name, ok := f.Column("name")
	if !ok || name.Str(0) != "Zurich, Fluntern" {
		t.Fatalf("quoted cell not kept: %q", name.Str(0))
	}
	elev, _ := f.Column("elevation")
	if elev.Type != model.Int64 {
		t.Fatalf("elevation type = %s", elev.Type)
	}
	if f.Names()[0] != "station_id" {
		t.Fatalf("bom not stripped: %q", f.Names()[0])
	}
}

func TestDelimited_HeaderOnly(t *testing.T) {
	f, err := Delimited([]byte("lat;lon;validdate;t_2m:C\n"))
	if err != nil {
		t.Fatalf("Delimited: %v", err)
	}
	if f.Height() != 0 || f.Width() != 4 {
		t.Fatalf("shape = %dx%d, want 0x4", f.Height(), f.Width())
	}
	c, _ := f.Column("t_2m:C")
	if c.Type != model.String {
		t.Fatalf("all-null column type = %s, want str", c.Type)
	}
}

func TestDelimited_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		schema  bool
	}{
		{name: "empty", payload: "   \n\n"},
		{name: "ragged row", payload: "a;b\n1;2\n3\n"},
		{name: "number then text", payload: "a;b\n1;2\nx;3\n", schema: true},
		{name: "time then number", payload: "validdate\n2020-01-01T00:00:00Z\n5\n", schema: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, err := Delimited([]byte(tc.payload))
			if f != nil {
				t.Fatalf("partial frame returned")
			}
			if !errors.Is(err, model.ErrDecode) {
				t.Fatalf("err = %v, want decode error", err)
			}
			if tc.schema && !errors.Is(err, model.ErrSchemaInference) {
				t.Fatalf("err = %v, want schema inference error", err)
			}
		})
	}
}

func TestDelimited_ConflictAfterWindow(t *testing.T) {
	var b strings.Builder
	b.WriteString("id;v\n")
	for i := range SchemaWindow {
		fmt.Fprintf(&b, "%d;%d\n", i, i)
	}
	b.WriteString("101;oops\n")

	_, err := Delimited([]byte(b.String()))
	if !errors.Is(err, model.ErrDecode) {
		t.Fatalf("err = %v, want decode error", err)
	}
	if errors.Is(err, model.ErrSchemaInference) {
		t.Fatalf("conflict outside the window is a parse failure, not inference: %v", err)
	}
}

func TestDelimited_FloatAfterWindowIntoIntColumn(t *testing.T) {
	var b strings.Builder
	b.WriteString("v\n")
	for i := range SchemaWindow {
		fmt.Fprintf(&b, "%d\n", i)
	}
	b.WriteString("1.5\n")
	if _, err := Delimited([]byte(b.String())); !errors.Is(err, model.ErrDecode) {
		t.Fatalf("err = %v, want decode error", err)
	}
}

func TestDelimited_NameLikeNonFiniteStaysString(t *testing.T) {
	f, err := Delimited([]byte("ID;Name\n1;Bern\n2;Nan\n3;Zurich\n4;INF\n"))
	if err != nil {
		t.Fatalf("Delimited: %v", err)
	}
	name, _ := f.Column("Name")
	if name.Type != model.String {
		t.Fatalf("Name type = %s, want str", name.Type)
	}
	if name.Str(1) != "Nan" || name.Str(3) != "INF" {
		t.Fatalf("names = %q %q", name.Str(1), name.Str(3))
	}
	if f, err := Delimited([]byte("v\nnan\n")); err != nil || f.ColumnAt(0).Type != model.String {
		t.Fatalf("nan literal not kept as text: %v", err)
	}
	if f, err := Delimited([]byte("v\n-.5\n+2.25\n")); err != nil || f.ColumnAt(0).Type != model.Float64 {
		t.Fatalf("signed decimals not float: %v", err)
	}
}

func TestDelimited_QuotedMultilineKeepsIndent(t *testing.T) {
	payload := "id;note\n  1;\"first line\n   indented second\"\n2;plain\n"
	f, err := Delimited([]byte(payload))
	if err != nil {
		t.Fatalf("Delimited: %v", err)
	}
	if f.Height() != 2 {
		t.Fatalf("height = %d, want 2", f.Height())
	}
	note, _ := f.Column("note")
	if got := note.Str(0); got != "first line\n   indented second" {
		t.Fatalf("note[0] = %q", got)
	}
}
