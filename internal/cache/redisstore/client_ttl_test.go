package redisstore

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/meteo-query/internal/cache/keys"
)

func TestTTL_HotAndColdPayloadsExpireIndependently(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := New(ctx, mr.Addr(), WithPoolSize(4))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })

	hot := keys.Key("timeseries", "/2024-01-01T00:00:00Z/t_2m:C/47.37,8.54/csv")
	cold := keys.Key("grid", "/2024-01-01T00:00:00Z/t_2m:C/48,5_45,10:0.5,0.5/csv")
	if err := rc.Set(ctx, hot, []byte("text/csv\x00validdate;t_2m:C"), 4*time.Minute); err != nil {
		t.Fatalf("Set hot: %v", err)
	}
	if err := rc.Set(ctx, cold, []byte("text/csv\x00lat;lon;t_2m:C"), time.Minute); err != nil {
		t.Fatalf("Set cold: %v", err)
	}
	if got := mr.TTL(hot); got != 4*time.Minute {
		t.Fatalf("hot ttl = %v", got)
	}

	mr.FastForward(90 * time.Second)

	got, err := rc.MGet(ctx, []string{hot, cold})
	if err != nil {
		t.Fatalf("MGet: %v", err)
	}
	if _, ok := got[cold]; ok {
		t.Fatalf("cold payload outlived its ttl")
	}
	if string(got[hot]) != "text/csv\x00validdate;t_2m:C" {
		t.Fatalf("hot payload = %q", got[hot])
	}
}

func TestTTL_ZeroKeepsPayload(t *testing.T) {
	rc := newMini(t)
	ctx := context.Background()
	key := keys.Key("stations", "/find_station?location=47,8")
	if err := rc.Set(ctx, key, []byte("text/csv\x00id"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := rc.MGet(ctx, []string{key})
	if err != nil || len(got) != 1 {
		t.Fatalf("MGet = %v, %v", got, err)
	}
}
