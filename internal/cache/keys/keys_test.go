package keys

import (
	"regexp"
	"strings"
	"testing"
	"unicode"
)

const target = "/2024-01-01T00:00:00Z--2024-01-02T00:00:00Z:PT1H/t_2m:C,precip_1h:mm/52.520551,13.461804/csv?model=mix&source=mix-obs"

func TestDeterminism_SameInputsSameKey(t *testing.T) {
	if Key("timeseries", target) != Key("timeseries", target) {
		t.Fatalf("determinism failed")
	}
}

func TestNormalization_OptionOrderAndSpacing(t *testing.T) {
	swapped := "  /2024-01-01T00:00:00Z--2024-01-02T00:00:00Z:PT1H/t_2m:C,precip_1h:mm/52.520551,13.461804/csv?source=mix-obs&model=mix "
	k1 := Key(" timeseries", target)
	k2 := Key("timeseries", swapped)
	if k1 != k2 {
		t.Fatalf("normalized keys differ:\n k1=%s\n k2=%s", k1, k2)
	}
	if !regexp.MustCompile(`^[A-Za-z0-9:_=\-.,]+$`).MatchString(k1) {
		t.Fatalf("key contains disallowed characters: %s", k1)
	}
	if !strings.HasPrefix(k1, "meteo:timeseries:") {
		t.Fatalf("unexpected prefix: %s", k1)
	}
}

func TestNormalization_RepeatedOptionKeepsOrder(t *testing.T) {
	a := NormalizeTarget("/now/t_2m:C/47,8/csv?source=x&model=a&model=b")
	b := NormalizeTarget("/now/t_2m:C/47,8/csv?model=b&source=x&model=a")
	if a == b {
		t.Fatalf("repeated options in different order share a target: %s", a)
	}
	if a != "/now/t_2m:C/47,8/csv?model=a&model=b&source=x" {
		t.Fatalf("normalized = %s", a)
	}
	if b != "/now/t_2m:C/47,8/csv?model=b&model=a&source=x" {
		t.Fatalf("normalized = %s", b)
	}
}

func TestDifference_ParameterOrderMatters(t *testing.T) {
	other := strings.Replace(target, "t_2m:C,precip_1h:mm", "precip_1h:mm,t_2m:C", 1)
	if Key("timeseries", target) == Key("timeseries", other) {
		t.Fatalf("parameter order changes the response columns and must change the key")
	}
	if Key("timeseries", target) == Key("route", target) {
		t.Fatalf("different shapes must produce different keys")
	}
}

func TestLongTargets_TruncatedWithHash(t *testing.T) {
	long := "/2024-01-01T00:00:00Z/t_2m:C/" + strings.Repeat("52.5,13.4+", 200) + "47.3,8.5/csv"
	k := Key("timeseries", long)
	for _, r := range k {
		if r > unicode.MaxASCII {
			t.Fatalf("non-ASCII rune leaked into key: %q in %s", r, k)
		}
	}
	m := regexp.MustCompile(`:t=([0-9a-f]{16})$`).FindStringSubmatch(k)
	if len(m) != 2 {
		t.Fatalf("missing or invalid :t=<hex64> suffix in key: %s", k)
	}
	if len(k) > len("meteo:timeseries:")+maxReadableLen+len(":t=")+16 {
		t.Fatalf("key not truncated: %d bytes", len(k))
	}
}

func TestShapeOf(t *testing.T) {
	if got := ShapeOf(Key("grid_pivoted", target)); got != "grid_pivoted" {
		t.Fatalf("ShapeOf = %q", got)
	}
	for _, k := range []string{CellIndexKey("851f9b3bfffffff"), "other:timeseries:x", "meteo"} {
		if got := ShapeOf(k); got != "" {
			t.Fatalf("ShapeOf(%q) = %q, want empty", k, got)
		}
	}
	if CellIndexKey(" 851F9B3BFFFFFFF ") != "meteo:cellidx:851f9b3bfffffff" {
		t.Fatalf("cell index key = %q", CellIndexKey(" 851F9B3BFFFFFFF "))
	}
}
