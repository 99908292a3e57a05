package request

import (
	"context"

	"github.com/mohammed-shakir/meteo-query/internal/core/model"
)

// Trace describes the query behind an assembled target. Fetchers that sit
// between the facade and the network read it to key and age cached payloads.
type Trace struct {
	Shape    string
	Location model.Location
}

type traceKey struct{}

func WithTrace(ctx context.Context, t Trace) context.Context {
	return context.WithValue(ctx, traceKey{}, t)
}

func TraceFrom(ctx context.Context) (Trace, bool) {
	t, ok := ctx.Value(traceKey{}).(Trace)
	return t, ok
}
