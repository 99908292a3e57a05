package router

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mohammed-shakir/meteo-query/pkg/meteo"
)

// Handlers translates gateway requests into facade calls.
type Handlers struct {
	client *meteo.Client
	logger *slog.Logger
}

func NewHandlers(client *meteo.Client, logger *slog.Logger) *Handlers {
	return &Handlers{client: client, logger: logger}
}

func (h *Handlers) TimeSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ts, err := series(q.Get("time"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	points, err := parsePoints(q["point"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	f, err := h.client.TimeSeries(r.Context(), ts, parseParams(q.Get("parameters")), points, q["opt"])
	h.frame(w, r, f, err)
}

func (h *Handlers) TimeSeriesPostal(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ts, err := series(q.Get("time"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	f, err := h.client.TimeSeriesPostal(r.Context(), ts, parseParams(q.Get("parameters")), q["postal"], q["opt"])
	h.frame(w, r, f, err)
}

// Grid serves the long-form grid; a time range selects the time series variant.
func (h *Handlers) Grid(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	at, ts, err := parseTime(q.Get("time"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	bb, err := parseBBox(q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	params := parseParams(q.Get("parameters"))
	var f *meteo.Frame
	if ts != nil {
		f, err = h.client.GridUnpivotedTimeSeries(r.Context(), *ts, params, bb, q["opt"])
	} else {
		f, err = h.client.GridUnpivoted(r.Context(), at, params, bb, q["opt"])
	}
	h.frame(w, r, f, err)
}

func (h *Handlers) GridPivoted(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	at, err := parseInstant(q.Get("time"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	bb, err := parseBBox(q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	f, err := h.client.GridPivoted(r.Context(), at, q.Get("parameter"), bb, q["opt"])
	h.frame(w, r, f, err)
}

// Route pairs the i-th "at" with the i-th "point" (or "postal").
func (h *Handlers) Route(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	times, err := parseInstants(q["at"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	params := parseParams(q.Get("parameters"))
	if codes := q["postal"]; len(codes) > 0 {
		f, err := h.client.RoutePostal(r.Context(), times, codes, params)
		h.frame(w, r, f, err)
		return
	}
	points, err := parsePoints(q["point"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	f, err := h.client.RoutePoints(r.Context(), times, points, params)
	h.frame(w, r, f, err)
}

func (h *Handlers) Stations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sq := meteo.StationQuery{Parameters: parseParams(q.Get("parameters"))}
	if v := q.Get("location"); v != "" {
		p, err := parsePoint(v)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		sq.Location = &p
	}
	if v := q.Get("elevation"); v != "" {
		e, err := parseFloat("elevation", v)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		sq.Elevation = &e
	}
	for _, f := range []struct {
		key string
		dst *time.Time
	}{{"start", &sq.Start}, {"end", &sq.End}} {
		if v := q.Get(f.key); v != "" {
			t, err := parseInstant(v)
			if err != nil {
				h.fail(w, r, err)
				return
			}
			*f.dst = t
		}
	}
	f, err := h.client.StationList(r.Context(), sq)
	h.frame(w, r, f, err)
}

func (h *Handlers) Lightning(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ts, err := series(q.Get("time"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	bb, err := parseBBox(q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	f, err := h.client.Lightning(r.Context(), ts, bb)
	h.frame(w, r, f, err)
}

func (h *Handlers) Account(w http.ResponseWriter, r *http.Request) {
	st, err := h.client.AccountStats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"username": st.Username, "stats": st.Fields})
}

// PNG renders one grid image through a temporary file.
func (h *Handlers) PNG(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	at, err := parseInstant(q.Get("time"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	bb, err := parseBBox(q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dir, err := os.MkdirTemp("", "meteo-png-*")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer func() {
		if rerr := os.RemoveAll(dir); rerr != nil {
			h.logger.WarnContext(r.Context(), "remove temp dir", "dir", dir, "err", rerr)
		}
	}()

	path := filepath.Join(dir, "grid.png")
	if err := h.client.GridPNG(r.Context(), at, q.Get("parameter"), bb, path, q["opt"]); err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := os.ReadFile(path)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	_, _ = w.Write(b)
}

func (h *Handlers) frame(w http.ResponseWriter, r *http.Request, f *meteo.Frame, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if r.URL.Query().Get("out") == "json" {
		writeJSON(w, http.StatusOK, f)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	cw := csv.NewWriter(w)
	_ = cw.Write(f.Names())
	for i := range f.Height() {
		_ = cw.Write(f.Row(i))
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.WarnContext(r.Context(), "write csv", "err", err)
	}
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusFor(err)
	if code >= 500 {
		h.logger.WarnContext(r.Context(), "request failed", "path", r.URL.Path, "status", code, "err", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// StatusFor maps facade errors onto gateway status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, meteo.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, meteo.ErrDecode), errors.Is(err, meteo.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
