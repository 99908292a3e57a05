// Package keys derives cache keys from assembled request targets.
package keys

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const prefix = "meteo"

// maxReadableLen bounds the human readable part of a key; the hash suffix
// keeps truncated keys distinct.
const maxReadableLen = 96

// Key returns "meteo:<shape>:<readable target>:t=<xxhash>". Targets that differ
// only in the order of their query options map to the same key.
func Key(shape, target string) string {
	norm := NormalizeTarget(target)
	readable := sanitize(norm)
	if len(readable) > maxReadableLen {
		readable = readable[:maxReadableLen]
	}
	return fmt.Sprintf("%s:%s:%s:t=%016x", prefix, sanitize(strings.TrimSpace(shape)), readable, xxhash.Sum64String(norm))
}

// CellIndexKey names the list of payload keys stored for one H3 cell.
func CellIndexKey(cell string) string {
	return prefix + ":cellidx:" + strings.ToLower(strings.TrimSpace(cell))
}

// ShapeOf returns the shape segment of a key built by Key, or "" for keys of
// another form.
func ShapeOf(key string) string {
	rest, ok := strings.CutPrefix(key, prefix+":")
	if !ok {
		return ""
	}
	shape, _, ok := strings.Cut(rest, ":")
	if !ok || shape == "cellidx" {
		return ""
	}
	return shape
}

// NormalizeTarget trims the target and orders its query options by name.
// Repeated names keep their relative order.
func NormalizeTarget(target string) string {
	target = strings.TrimSpace(target)
	path, query, ok := strings.Cut(target, "?")
	if !ok || query == "" {
		return path
	}
	opts := strings.Split(query, "&")
	sort.SliceStable(opts, func(i, j int) bool { return optName(opts[i]) < optName(opts[j]) })
	return path + "?" + strings.Join(opts, "&")
}

func optName(opt string) string {
	name, _, _ := strings.Cut(opt, "=")
	return name
}

// sanitize keeps [A-Za-z0-9:_=.,-] and maps everything else to '-' or, for
// separators, '_'; runs of the replacement collapse.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		var out rune
		switch {
		case r == '/' || r == '+' || r == '&' || r == '?' || unicode.IsSpace(r):
			out = '_'
		case isAlphaNum(r) || r == ':' || r == '_' || r == '-' || r == '=' || r == '.' || r == ',':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return strings.Trim(b.String(), "_")
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
