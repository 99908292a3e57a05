package meteo

import (
	"fmt"

	"github.com/mohammed-shakir/meteo-query/internal/core/model"
)

// withPointColumns prepends constant lat and lon columns when the service left
// them out, which it does for single-point requests.
func withPointColumns(f *Frame, p Point) error {
	_, hasLat := f.Column("lat")
	_, hasLon := f.Column("lon")
	if hasLat || hasLon {
		return nil
	}
	lat := model.NewColumn("lat", model.Float64)
	lon := model.NewColumn("lon", model.Float64)
	for range f.Height() {
		lat.AppendFloat(p.Lat)
		lon.AppendFloat(p.Lon)
	}
	if err := f.Prepend(lat, lon); err != nil {
		return fmt.Errorf("%w: add location columns: %v", model.ErrDecode, err)
	}
	return nil
}

// withStationColumn prepends a constant station_id column for single postal
// area requests.
func withStationColumn(f *Frame, code string) error {
	if _, ok := f.Column("station_id"); ok {
		return nil
	}
	id := model.NewColumn("station_id", model.String)
	for range f.Height() {
		id.AppendString(code)
	}
	if err := f.Prepend(id); err != nil {
		return fmt.Errorf("%w: add station column: %v", model.ErrDecode, err)
	}
	return nil
}
