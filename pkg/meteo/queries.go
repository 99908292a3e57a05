package meteo

import (
	"context"
	"time"

	"github.com/mohammed-shakir/meteo-query/internal/core/decode"
	"github.com/mohammed-shakir/meteo-query/internal/core/model"
	"github.com/mohammed-shakir/meteo-query/internal/core/request"
)

// TimeSeries queries params at points over ts. The frame is long form:
// lat, lon, validdate and one column per parameter in request order.
func (c *Client) TimeSeries(ctx context.Context, ts TimeSeries, params []string, points []Point, optionals []string) (*Frame, error) {
	if err := firstErr(checkSeries(ts), checkParams(params), checkPoints(points)); err != nil {
		return nil, c.reject(ctx, ShapeTimeSeries, err)
	}
	target, err := request.Assemble(request.Query{
		Time:       ts,
		Parameters: params,
		Location:   model.Points(points),
		Optionals:  optionals,
		Format:     model.FormatCSV,
	})
	if err != nil {
		return nil, c.reject(ctx, ShapeTimeSeries, err)
	}
	f, err := c.frame(ctx, ShapeTimeSeries, model.Points(points), target, decode.Delimited)
	if err != nil {
		return nil, err
	}
	if len(points) == 1 {
		if err := withPointColumns(f, points[0]); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// TimeSeriesPostal queries params at postal areas over ts.
func (c *Client) TimeSeriesPostal(ctx context.Context, ts TimeSeries, params []string, postal []string, optionals []string) (*Frame, error) {
	if err := firstErr(checkSeries(ts), checkParams(params), model.Postal(postal).Validate()); err != nil {
		return nil, c.reject(ctx, ShapeTimeSeriesPostal, err)
	}
	target, err := request.Assemble(request.Query{
		Time:       ts,
		Parameters: params,
		Location:   model.Postal(postal),
		Optionals:  optionals,
		Format:     model.FormatCSV,
	})
	if err != nil {
		return nil, c.reject(ctx, ShapeTimeSeriesPostal, err)
	}
	f, err := c.frame(ctx, ShapeTimeSeriesPostal, model.Postal(postal), target, decode.Delimited)
	if err != nil {
		return nil, err
	}
	if len(postal) == 1 {
		if err := withStationColumn(f, postal[0]); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// GridPivoted queries a single parameter over bb at one instant. The frame has
// a lat column followed by one column per longitude, rows in server order.
func (c *Client) GridPivoted(ctx context.Context, at time.Time, param string, bb BBox, optionals []string) (*Frame, error) {
	if err := firstErr(checkInstant(at), checkParams([]string{param}), checkGrid(bb)); err != nil {
		return nil, c.reject(ctx, ShapeGridPivoted, err)
	}
	target, err := request.Assemble(request.Query{
		Time:       model.Instant{Time: at},
		Parameters: []string{param},
		Location:   bb,
		Optionals:  optionals,
		Format:     model.FormatGridCSV,
	})
	if err != nil {
		return nil, c.reject(ctx, ShapeGridPivoted, err)
	}
	return c.frame(ctx, ShapeGridPivoted, bb, target, decode.PivotedGrid)
}

// GridUnpivoted queries params over bb at one instant, one row per grid point.
func (c *Client) GridUnpivoted(ctx context.Context, at time.Time, params []string, bb BBox, optionals []string) (*Frame, error) {
	if err := firstErr(checkInstant(at), checkParams(params), checkGrid(bb)); err != nil {
		return nil, c.reject(ctx, ShapeGrid, err)
	}
	return c.grid(ctx, ShapeGrid, model.Instant{Time: at}, params, bb, optionals)
}

// GridUnpivotedTimeSeries queries params over bb for every instant of ts.
func (c *Client) GridUnpivotedTimeSeries(ctx context.Context, ts TimeSeries, params []string, bb BBox, optionals []string) (*Frame, error) {
	if err := firstErr(checkSeries(ts), checkParams(params), checkGrid(bb)); err != nil {
		return nil, c.reject(ctx, ShapeGridTimeSeries, err)
	}
	return c.grid(ctx, ShapeGridTimeSeries, ts, params, bb, optionals)
}

func (c *Client) grid(ctx context.Context, shape string, t model.TimeSpec, params []string, bb BBox, optionals []string) (*Frame, error) {
	target, err := request.Assemble(request.Query{
		Time:       t,
		Parameters: params,
		Location:   bb,
		Optionals:  optionals,
		Format:     model.FormatCSV,
	})
	if err != nil {
		return nil, c.reject(ctx, shape, err)
	}
	return c.frame(ctx, shape, bb, target, decode.Delimited)
}

// RoutePoints samples params along a path where points[i] is visited at times[i].
func (c *Client) RoutePoints(ctx context.Context, times []time.Time, points []Point, params []string) (*Frame, error) {
	route := model.Route{Times: times, Points: points}
	if err := firstErr(route.Validate(), checkParams(params)); err != nil {
		return nil, c.reject(ctx, ShapeRoute, err)
	}
	return c.route(ctx, ShapeRoute, times, params, route)
}

// RoutePostal is RoutePoints over postal areas.
func (c *Client) RoutePostal(ctx context.Context, times []time.Time, codes []string, params []string) (*Frame, error) {
	route := model.PostalRoute{Times: times, Codes: codes}
	if err := firstErr(route.Validate(), checkParams(params)); err != nil {
		return nil, c.reject(ctx, ShapeRoutePostal, err)
	}
	return c.route(ctx, ShapeRoutePostal, times, params, route)
}

func (c *Client) route(ctx context.Context, shape string, times []time.Time, params []string, loc model.Location) (*Frame, error) {
	target, err := request.Assemble(request.Query{
		Time:       model.InstantList(times),
		Parameters: params,
		Location:   loc,
		Optionals:  []string{"route=true"},
		Format:     model.FormatCSV,
	})
	if err != nil {
		return nil, c.reject(ctx, shape, err)
	}
	return c.frame(ctx, shape, loc, target, decode.Delimited)
}

// StationList looks up stations; every filter in q is optional.
func (c *Client) StationList(ctx context.Context, q StationQuery) (*Frame, error) {
	if err := checkStations(q); err != nil {
		return nil, c.reject(ctx, ShapeStations, err)
	}
	return c.frame(ctx, ShapeStations, nil, request.StationList(q), decode.Delimited)
}

// AccountStats fetches the quota record of the authenticated account.
func (c *Client) AccountStats(ctx context.Context) (*AccountStats, error) {
	target := request.AccountStats()
	start := c.now()
	p, err := c.fetch(ctx, ShapeAccountStats, nil, target)
	if err != nil {
		c.finish(ctx, ShapeAccountStats, target, start, 0, err)
		return nil, err
	}
	s, err := decode.AccountStats(p.Body)
	c.finish(ctx, ShapeAccountStats, target, start, len(p.Body), err)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Lightning lists lightning strikes inside bb during ts. The bbox resolution
// is ignored.
func (c *Client) Lightning(ctx context.Context, ts TimeSeries, bb BBox) (*Frame, error) {
	if err := firstErr(checkSeries(ts), bb.Validate()); err != nil {
		return nil, c.reject(ctx, ShapeLightning, err)
	}
	return c.frame(ctx, ShapeLightning, bb, request.Lightning(ts, bb), decode.Delimited)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
