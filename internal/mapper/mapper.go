// Package mapper converts query locations into H3 cells.
package mapper

import (
	"github.com/mohammed-shakir/meteo-query/internal/core/model"
)

// Interface resolves the cells a location covers. Locations without a fixed
// area, such as postal codes, yield no cells and no error.
type Interface interface {
	CellsForLocation(loc model.Location) ([]string, error)
}
