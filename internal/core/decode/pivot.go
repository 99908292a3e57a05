package decode

import (
	"fmt"
	"strconv"

	"github.com/mohammed-shakir/meteo-query/internal/core/model"
)

// PivotedGrid decodes a lat x lon matrix. The first header cell is a generic
// label and is renamed to "lat"; the remaining header cells are longitudes.
// Row order is kept as the server sent it.
func PivotedGrid(payload []byte) (*model.Frame, error) {
	header, rows, err := readTable(payload)
	if err != nil {
		return nil, err
	}
	if len(header) < 2 {
		return nil, model.Decodef("pivoted grid header has no longitude columns")
	}

	cols := make([]*model.Column, len(header))
	cols[0] = model.NewColumn("lat", model.Float64)
	for j := 1; j < len(header); j++ {
		if _, err := strconv.ParseFloat(header[j], 64); err != nil {
			return nil, model.Decodef("pivoted grid header cell %d: %q is not a longitude", j, header[j])
		}
		cols[j] = model.NewColumn(header[j], model.Float64)
	}

	for i, row := range rows {
		if row[0] == "" {
			return nil, model.Decodef("pivoted grid row %d has no latitude", i+1)
		}
		for j, cell := range row {
			if err := appendCell(cols[j], cell); err != nil {
				return nil, fmt.Errorf("%w: pivoted grid row %d column %q: %v", model.ErrDecode, i+1, cols[j].Name, err)
			}
		}
	}

	f, err := model.NewFrame(cols...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDecode, err)
	}
	return f, nil
}
