package main

import (
	"fmt"
	"math/rand"
	"net/url"
	"strconv"
	"time"

	h3 "github.com/uber/h3-go/v4"
)

const (
	kindTimeSeries = "timeseries"
	kindGrid       = "grid"
)

// query is one entry of the request pool; Path is relative to the gateway
// base URL.
type query struct {
	Kind string
	Path string
	Cell string
}

var hotCenters = [][2]float64{
	{47.3769, 8.5417},  // Zurich
	{46.9480, 7.4474},  // Bern
	{52.5200, 13.4050}, // Berlin
	{48.1351, 11.5820}, // Munich
}

// makeQueries builds a pool of count queries. The first hotShare of the pool
// sits on H3 neighbourhoods of a few city centres, so Zipf sampling over the
// pool keeps hitting overlapping cells; the rest is spread over central Europe.
func makeQueries(count int, hotShare float64, res int, now time.Time, r *rand.Rand) ([]query, error) {
	if count <= 0 {
		return nil, fmt.Errorf("query count must be positive, got %d", count)
	}
	day := now.UTC().Truncate(time.Hour)
	series := day.Format(time.RFC3339) + "--" + day.Add(24*time.Hour).Format(time.RFC3339) + ":PT1H"
	instant := day.Format(time.RFC3339)

	hot := int(float64(count) * hotShare)
	out := make([]query, 0, count)

	var ring []h3.Cell
	for _, c := range hotCenters {
		origin, err := h3.LatLngToCell(h3.LatLng{Lat: c[0], Lng: c[1]}, res)
		if err != nil {
			return nil, fmt.Errorf("center cell: %w", err)
		}
		disk, err := h3.GridDisk(origin, 2)
		if err != nil {
			return nil, fmt.Errorf("grid disk: %w", err)
		}
		ring = append(ring, disk...)
	}

	for i := 0; len(out) < hot; i++ {
		cell := ring[i%len(ring)]
		ll, err := h3.CellToLatLng(cell)
		if err != nil {
			return nil, fmt.Errorf("cell center: %w", err)
		}
		// every fourth hot query asks for a small grid around the cell
		if i%4 == 3 {
			out = append(out, gridQuery(ll.Lat, ll.Lng, 0.1, instant, cell.String()))
			continue
		}
		out = append(out, pointQuery(ll.Lat, ll.Lng, series, cell.String()))
	}

	for len(out) < count {
		lat := 44 + r.Float64()*(55-44)
		lon := 2 + r.Float64()*(18-2)
		if r.Intn(3) == 0 {
			out = append(out, gridQuery(lat, lon, 0.05+r.Float64()*0.2, instant, ""))
			continue
		}
		out = append(out, pointQuery(lat, lon, series, ""))
	}
	return out, nil
}

func pointQuery(lat, lon float64, series, cell string) query {
	q := url.Values{}
	q.Set("time", series)
	q.Set("parameters", "t_2m:C,precip_1h:mm")
	q.Set("point", coord(lat)+","+coord(lon))
	return query{Kind: kindTimeSeries, Path: "/v1/timeseries?" + q.Encode(), Cell: cell}
}

func gridQuery(lat, lon, half float64, instant, cell string) query {
	q := url.Values{}
	q.Set("time", instant)
	q.Set("parameters", "t_2m:C,wind_speed_10m:ms")
	q.Set("bbox", coord(lat-half)+","+coord(lon-half)+","+coord(lat+half)+","+coord(lon+half))
	q.Set("res", "0.05,0.05")
	return query{Kind: kindGrid, Path: "/v1/grid?" + q.Encode(), Cell: cell}
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
