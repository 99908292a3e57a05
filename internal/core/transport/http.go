package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mohammed-shakir/meteo-query/internal/core/observability"
)

const DefaultUserAgent = "meteo-query/1.0"

// HTTP fetches targets from the weather service with basic auth.
type HTTP struct {
	logger    *slog.Logger
	client    *http.Client
	base      *url.URL
	user      string
	password  string
	userAgent string
	startNow  func() time.Time // for tests
}

type HTTPOption func(*HTTP)

func WithCredentials(user, password string) HTTPOption {
	return func(h *HTTP) { h.user, h.password = user, password }
}

func WithUserAgent(ua string) HTTPOption {
	return func(h *HTTP) {
		if ua != "" {
			h.userAgent = ua
		}
	}
}

// NewHTTP builds a fetcher for baseURL. A nil client gets NewOutbound(10s).
func NewHTTP(logger *slog.Logger, client *http.Client, baseURL string, opts ...HTTPOption) (*HTTP, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("parse base url: %q is not absolute", baseURL)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if client == nil {
		client = NewOutbound(10 * time.Second)
	}
	h := &HTTP{
		logger:    logger,
		client:    client,
		base:      u,
		userAgent: DefaultUserAgent,
		startNow:  time.Now,
	}
	for _, o := range opts {
		o(h)
	}
	return h, nil
}

// Fetch issues one GET. The target is already escaped and is appended to the
// base URL verbatim.
func (h *HTTP) Fetch(ctx context.Context, target string) (Payload, error) {
	raw := h.base.String() + target
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	if h.user != "" || h.password != "" {
		req.SetBasicAuth(h.user, h.password)
	}
	req.Header.Set("User-Agent", h.userAgent)

	start := h.startNow()
	resp, err := h.client.Do(req)
	if err != nil {
		observability.ObserveUpstreamLatency("meteo", 0, time.Since(start).Seconds())
		return Payload{}, fmt.Errorf("%w: do request: %w", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	dur := time.Since(start)
	observability.ObserveUpstreamLatency("meteo", resp.StatusCode, dur.Seconds())
	h.logger.Debug("upstream done",
		"status", resp.StatusCode,
		"duration", dur.String(),
		"path", req.URL.Path)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return Payload{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}
	return Payload{Body: b, ContentType: resp.Header.Get("Content-Type")}, nil
}
