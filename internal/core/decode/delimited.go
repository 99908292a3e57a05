// Package decode turns service payloads into frames, files and account records.
package decode

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/mohammed-shakir/meteo-query/internal/core/model"
)

// SchemaWindow is the number of leading rows used to infer column types.
const SchemaWindow = 100

// Delimited decodes a header-first delimited table. Types are inferred over the
// first SchemaWindow rows; Int64 widens to Float64, any other disagreement fails.
func Delimited(payload []byte) (*model.Frame, error) {
	header, rows, err := readTable(payload)
	if err != nil {
		return nil, err
	}

	types, err := inferSchema(header, rows)
	if err != nil {
		return nil, err
	}

	cols := make([]*model.Column, len(header))
	for j, name := range header {
		cols[j] = model.NewColumn(name, types[j])
	}
	for i, row := range rows {
		for j, cell := range row {
			if err := appendCell(cols[j], cell); err != nil {
				return nil, fmt.Errorf("%w: row %d column %q: %v", model.ErrDecode, i+1, header[j], err)
			}
		}
	}

	f, err := model.NewFrame(cols...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDecode, err)
	}
	return f, nil
}

// readTable normalises line padding, sniffs the delimiter from the header and
// reads every record in one pass.
func readTable(payload []byte) ([]string, [][]string, error) {
	body := normalise(payload)
	if len(body) == 0 {
		return nil, nil, model.Decodef("empty payload, header row is required")
	}

	r := csv.NewReader(bytes.NewReader(body))
	r.Comma = sniffDelimiter(body)

	header, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read header: %v", model.ErrDecode, err)
	}
	header = append([]string(nil), header...)

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", model.ErrDecode, err)
		}
		rows = append(rows, rec)
	}
	return header, rows, nil
}

// trims padding around records and drops blank lines; lines continuing a
// quoted field are kept verbatim
func normalise(payload []byte) []byte {
	payload = bytes.TrimPrefix(payload, []byte("\xef\xbb\xbf"))
	var out bytes.Buffer
	out.Grow(len(payload))
	inQuote := false
	for line := range bytes.SplitSeq(payload, []byte("\n")) {
		if inQuote {
			line = bytes.TrimSuffix(line, []byte("\r"))
		} else {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
		}
		out.Write(line)
		out.WriteByte('\n')
		// an escaped "" flips twice, so parity tracks the open field
		if bytes.Count(line, []byte(`"`))%2 == 1 {
			inQuote = !inQuote
		}
	}
	return out.Bytes()
}

func sniffDelimiter(body []byte) rune {
	header := body
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		header = body[:i]
	}
	if bytes.IndexByte(header, ';') >= 0 {
		return ';'
	}
	return ','
}

type kind uint8

const (
	kindNull kind = iota
	kindInt
	kindFloat
	kindTime
	kindString
)

func classify(cell string) kind {
	if cell == "" {
		return kindNull
	}
	if _, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return kindInt
	}
	if numeric(cell) {
		if _, err := strconv.ParseFloat(cell, 64); err == nil {
			return kindFloat
		}
	}
	if _, err := time.Parse(time.RFC3339Nano, cell); err == nil {
		return kindTime
	}
	return kindString
}

// numeric reports whether cell looks like a decimal literal, which keeps
// names such as "Nan" or "Inf" out of float columns.
func numeric(cell string) bool {
	if cell[0] == '+' || cell[0] == '-' {
		cell = cell[1:]
	}
	if cell == "" {
		return false
	}
	c := cell[0]
	return (c >= '0' && c <= '9') || c == '.'
}

func merge(a, b kind) (kind, bool) {
	switch {
	case a == b, b == kindNull:
		return a, true
	case a == kindNull:
		return b, true
	case (a == kindInt && b == kindFloat) || (a == kindFloat && b == kindInt):
		return kindFloat, true
	default:
		return a, false
	}
}

func inferSchema(header []string, rows [][]string) ([]model.ColumnType, error) {
	kinds := make([]kind, len(header))
	n := min(len(rows), SchemaWindow)
	for i := 0; i < n; i++ {
		for j, cell := range rows[i] {
			k := classify(cell)
			merged, ok := merge(kinds[j], k)
			if !ok {
				return nil, fmt.Errorf("%w: column %q mixes %s and %s (row %d: %q)",
					model.ErrSchemaInference, header[j], kinds[j], k, i+1, cell)
			}
			kinds[j] = merged
		}
	}

	out := make([]model.ColumnType, len(kinds))
	for j, k := range kinds {
		switch k {
		case kindInt:
			out[j] = model.Int64
		case kindFloat:
			out[j] = model.Float64
		case kindTime:
			out[j] = model.Time
		default:
			out[j] = model.String
		}
	}
	return out, nil
}

func appendCell(c *model.Column, cell string) error {
	if cell == "" {
		c.AppendNull()
		return nil
	}
	switch c.Type {
	case model.Int64:
		v, err := strconv.ParseInt(cell, 10, 64)
		if err != nil {
			return fmt.Errorf("parse int %q", cell)
		}
		c.AppendInt(v)
	case model.Float64:
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil || !numeric(cell) {
			return fmt.Errorf("parse float %q", cell)
		}
		c.AppendFloat(v)
	case model.Time:
		v, err := time.Parse(time.RFC3339Nano, cell)
		if err != nil {
			return fmt.Errorf("parse time %q", cell)
		}
		c.AppendTime(v.UTC())
	default:
		c.AppendString(cell)
	}
	return nil
}

func (k kind) String() string {
	switch k {
	case kindInt:
		return "int"
	case kindFloat:
		return "float"
	case kindTime:
		return "datetime"
	case kindString:
		return "string"
	default:
		return "null"
	}
}
