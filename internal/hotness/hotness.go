// Package hotness tracks how often H3 cells are queried so cache lifetimes can
// follow demand.
package hotness

type Interface interface {
	Inc(cell string)
	Score(cell string) float64
	Reset(cells ...string)
}

// Reader is the read-only view handed to TTL deciders.
type Reader interface {
	Score(cell string) float64
}
