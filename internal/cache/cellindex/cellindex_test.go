package cellindex

import (
	"context"
	"reflect"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/meteo-query/internal/cache"
	"github.com/mohammed-shakir/meteo-query/internal/cache/keys"
	"github.com/mohammed-shakir/meteo-query/internal/cache/redisstore"
	h3mapper "github.com/mohammed-shakir/meteo-query/internal/mapper/h3"
)

func cellAt(t *testing.T, lat, lon float64, res int) string {
	t.Helper()
	c, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lon}, res)
	if err != nil {
		t.Fatal(err)
	}
	return c.String()
}

func newIndex(t *testing.T, store cache.Interface) *Index {
	t.Helper()
	m, err := h3mapper.New(7)
	if err != nil {
		t.Fatal(err)
	}
	ix, err := New(store, m, DefaultRes, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return ix
}

func TestAddKeys_OverlapAcrossResolutions(t *testing.T) {
	mem, _ := cache.NewMemory(1024)
	ix := newIndex(t, mem)
	ctx := context.Background()

	m, _ := h3mapper.New(9)
	zurich9 := cellAt(t, 47.37, 8.54, 9)
	zurich7, _ := m.ToParent(zurich9, 7)
	zurich2, _ := m.ToParent(zurich9, 2)
	sydney7 := cellAt(t, -33.86, 151.2, 7)

	if err := ix.Add(ctx, []string{zurich7}, "meteo:timeseries:a"); err != nil {
		t.Fatal(err)
	}
	if err := ix.Add(ctx, []string{zurich2}, "meteo:grid:b"); err != nil {
		t.Fatal(err)
	}
	if err := ix.Add(ctx, []string{sydney7}, "meteo:timeseries:c"); err != nil {
		t.Fatal(err)
	}
	// adding twice keeps one copy
	if err := ix.Add(ctx, []string{zurich7}, "meteo:timeseries:a"); err != nil {
		t.Fatal(err)
	}

	got, err := ix.Keys(ctx, []string{zurich9})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"meteo:grid:b", "meteo:timeseries:a"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("fine lookup = %v, want %v", got, want)
	}

	got, _ = ix.Keys(ctx, []string{zurich2})
	if want := []string{"meteo:grid:b", "meteo:timeseries:a"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("coarse lookup = %v, want %v", got, want)
	}

	got, _ = ix.Keys(ctx, []string{cellAt(t, 40.7, -74.0, 7)})
	if len(got) != 0 {
		t.Fatalf("unrelated area = %v, want none", got)
	}
}

func TestAdd_CapsEntries(t *testing.T) {
	mem, _ := cache.NewMemory(1024)
	ix := newIndex(t, mem)
	ix.maxKeys = 2
	ctx := context.Background()
	c := cellAt(t, 47.37, 8.54, 5)

	for _, k := range []string{"k1", "k2", "k3"} {
		if err := ix.Add(ctx, []string{c}, k); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := ix.Keys(ctx, []string{c})
	if want := []string{"k2", "k3"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
}

func TestRedisIndex_TTLAndForget(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	rc, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })

	ix := newIndex(t, rc)
	c := cellAt(t, 47.37, 8.54, 5)
	if err := ix.Add(ctx, []string{c}, "meteo:timeseries:a"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	k := keys.CellIndexKey(c)
	if ttl := mr.TTL(k); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected TTL for %q: %v", k, ttl)
	}

	if err := ix.Forget(ctx, []string{c}); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if mr.Exists(k) {
		t.Fatalf("expected %q to be removed", k)
	}
}

func TestNew_Validation(t *testing.T) {
	mem, _ := cache.NewMemory(8)
	m, _ := h3mapper.New(7)
	if _, err := New(nil, m, 5, time.Hour); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := New(mem, m, 5, 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}
