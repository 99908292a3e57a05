// Package meteo is the query facade for the weather service: one call per
// query shape, each of which validates its arguments, assembles the request
// target, fetches it and decodes the payload into a frame, a file or an
// account record.
//
// A Client holds no mutable state beyond its fetcher and is safe for
// concurrent use. Every operation is all-or-nothing and is never retried.
package meteo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/meteo-query/internal/core/config"
	"github.com/mohammed-shakir/meteo-query/internal/core/model"
	"github.com/mohammed-shakir/meteo-query/internal/core/observability"
	"github.com/mohammed-shakir/meteo-query/internal/core/request"
	"github.com/mohammed-shakir/meteo-query/internal/core/transport"
)

type (
	Point          = model.Point
	BBox           = model.BBox
	Resolution     = model.Resolution
	TimeSeries     = model.TimeSeries
	Frame          = model.Frame
	Column         = model.Column
	AccountStats   = model.AccountStats
	FileWriteError = model.FileWriteError
	StationQuery   = request.StationQuery
	Fetcher        = transport.Fetcher
	Payload        = transport.Payload
	StatusError    = transport.StatusError
)

var (
	Degrees = model.Degrees
	Pixels  = model.Pixels
)

var (
	ErrInvalidArgument    = model.ErrInvalidArgument
	ErrArityMismatch      = model.ErrArityMismatch
	ErrEmptyParameterList = model.ErrEmptyParameterList
	ErrDecode             = model.ErrDecode
	ErrSchemaInference    = model.ErrSchemaInference
	ErrTransport          = transport.ErrTransport
)

// Query shapes, used as log fields, metric labels and cache TTL keys.
const (
	ShapeTimeSeries       = "timeseries"
	ShapeTimeSeriesPostal = "timeseries_postal"
	ShapeGridPivoted      = "grid_pivoted"
	ShapeGrid             = "grid"
	ShapeGridTimeSeries   = "grid_timeseries"
	ShapeRoute            = "route"
	ShapeRoutePostal      = "route_postal"
	ShapeStations         = "stations"
	ShapePNG              = "png"
	ShapePNGTimeSeries    = "png_timeseries"
	ShapeNetCDF           = "netcdf"
	ShapeAccountStats     = "account_stats"
	ShapeLightning        = "lightning"
)

// QueryEvent describes one finished upstream call (or one rejected call, in
// which case Target is empty).
type QueryEvent struct {
	Shape    string
	Target   string
	Duration time.Duration
	Bytes    int
	Err      error
}

type Client struct {
	fetcher Fetcher
	logger  *slog.Logger
	hook    func(context.Context, QueryEvent)
	now     func() time.Time
}

type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithQueryHook registers fn to be called after every operation.
func WithQueryHook(fn func(context.Context, QueryEvent)) Option {
	return func(c *Client) { c.hook = fn }
}

func New(f Fetcher, opts ...Option) *Client {
	c := &Client{
		fetcher: f,
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewFromConfig builds the upstream HTTP fetcher (with rate limiter and
// breaker when configured) and a client on top of it.
func NewFromConfig(cfg config.UpstreamCfg, opts ...Option) (*Client, error) {
	c := New(nil, opts...)
	f, err := transport.FromConfig(cfg, c.logger)
	if err != nil {
		return nil, err
	}
	c.fetcher = f
	return c, nil
}

// Outcome classifies an operation error for metrics and events.
func Outcome(err error) string {
	var fwe *model.FileWriteError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrInvalidArgument):
		return "invalid"
	case errors.Is(err, model.ErrDecode):
		return "decode_error"
	case errors.As(err, &fwe):
		return "write_error"
	default:
		return "transport_error"
	}
}

func (c *Client) finish(ctx context.Context, shape, target string, start time.Time, n int, err error) {
	outcome := Outcome(err)
	observability.ObserveQuery(shape, outcome)
	switch outcome {
	case "ok":
	case "decode_error":
		observability.IncDecodeError(shape)
		c.logger.WarnContext(ctx, "decode failed", "shape", shape, "target", target, "err", err)
	case "invalid":
		c.logger.DebugContext(ctx, "rejected query", "shape", shape, "err", err)
	default:
		c.logger.WarnContext(ctx, "query failed", "shape", shape, "target", target, "err", err)
	}
	if c.hook != nil {
		c.hook(ctx, QueryEvent{
			Shape:    shape,
			Target:   target,
			Duration: c.now().Sub(start),
			Bytes:    n,
			Err:      err,
		})
	}
}

func (c *Client) fetch(ctx context.Context, shape string, loc model.Location, target string) (Payload, error) {
	c.logger.DebugContext(ctx, "assembled request", "shape", shape, "target", target)
	if c.fetcher == nil {
		return Payload{}, fmt.Errorf("%w: client has no fetcher", transport.ErrTransport)
	}
	ctx = request.WithTrace(ctx, request.Trace{Shape: shape, Location: loc})
	return c.fetcher.Fetch(ctx, target)
}

// frame runs one fetch-and-decode round trip for a tabular shape.
func (c *Client) frame(ctx context.Context, shape string, loc model.Location, target string, decode func([]byte) (*Frame, error)) (*Frame, error) {
	start := c.now()
	p, err := c.fetch(ctx, shape, loc, target)
	if err != nil {
		c.finish(ctx, shape, target, start, 0, err)
		return nil, err
	}
	f, err := decode(p.Body)
	c.finish(ctx, shape, target, start, len(p.Body), err)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// reject records a call that failed validation before any network activity.
func (c *Client) reject(ctx context.Context, shape string, err error) error {
	c.finish(ctx, shape, "", c.now(), 0, err)
	return err
}
