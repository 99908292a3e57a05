package meteo

import (
	"context"
	"time"

	"github.com/mohammed-shakir/meteo-query/internal/core/decode"
	"github.com/mohammed-shakir/meteo-query/internal/core/model"
	"github.com/mohammed-shakir/meteo-query/internal/core/request"
)

// GridPNG renders param over bb at one instant and writes the PNG to path.
func (c *Client) GridPNG(ctx context.Context, at time.Time, param string, bb BBox, path string, optionals []string) error {
	if err := firstErr(checkInstant(at), checkParams([]string{param}), checkGrid(bb), checkPath(path)); err != nil {
		return c.reject(ctx, ShapePNG, err)
	}
	return c.file(ctx, ShapePNG, request.Query{
		Time:       model.Instant{Time: at},
		Parameters: []string{param},
		Location:   bb,
		Optionals:  optionals,
		Format:     model.FormatPNG,
	}, path)
}

// GridPNGTimeSeries writes one PNG per instant of ts, in ascending order, to
// prefix_YYYYMMDD_HHMMSS.png. It returns the paths written. On failure the
// files already written stay on disk and their paths are returned with the error.
func (c *Client) GridPNGTimeSeries(ctx context.Context, ts TimeSeries, param string, bb BBox, prefix string, optionals []string) ([]string, error) {
	if err := firstErr(checkSeries(ts), checkParams([]string{param}), checkGrid(bb), checkPath(prefix)); err != nil {
		return nil, c.reject(ctx, ShapePNGTimeSeries, err)
	}
	instants := ts.Instants()
	written := make([]string, 0, len(instants))
	for _, at := range instants {
		path := decode.TimestampedPath(prefix, at, ".png")
		err := c.file(ctx, ShapePNGTimeSeries, request.Query{
			Time:       model.Instant{Time: at},
			Parameters: []string{param},
			Location:   bb,
			Optionals:  optionals,
			Format:     model.FormatPNG,
		}, path)
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// NetCDF writes the gridded binary file for param over bb and ts to path.
func (c *Client) NetCDF(ctx context.Context, ts TimeSeries, param string, bb BBox, path string, optionals []string) error {
	if err := firstErr(checkSeries(ts), checkParams([]string{param}), checkGrid(bb), checkPath(path)); err != nil {
		return c.reject(ctx, ShapeNetCDF, err)
	}
	return c.file(ctx, ShapeNetCDF, request.Query{
		Time:       ts,
		Parameters: []string{param},
		Location:   bb,
		Optionals:  optionals,
		Format:     model.FormatNetCDF,
	}, path)
}

func (c *Client) file(ctx context.Context, shape string, q request.Query, path string) error {
	target, err := request.Assemble(q)
	if err != nil {
		return c.reject(ctx, shape, err)
	}
	start := c.now()
	p, err := c.fetch(ctx, shape, q.Location, target)
	if err != nil {
		c.finish(ctx, shape, target, start, 0, err)
		return err
	}
	if len(p.Body) == 0 {
		err = model.Decodef("empty %s payload", q.Format)
	} else {
		err = decode.WriteFile(path, p.Body)
	}
	c.finish(ctx, shape, target, start, len(p.Body), err)
	return err
}
