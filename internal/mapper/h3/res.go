package h3mapper

import (
	"fmt"

	h3 "github.com/uber/h3-go/v4"
)

func parseCell(cell string) (h3.Cell, error) {
	var c h3.Cell
	if err := c.UnmarshalText([]byte(cell)); err != nil {
		return 0, fmt.Errorf("parse cell: %w", err)
	}
	if !c.IsValid() {
		return 0, fmt.Errorf("invalid h3 cell %q", cell)
	}
	return c, nil
}

func (m *Mapper) ToParent(cell string, parentRes int) (string, error) {
	if err := validateRes(parentRes); err != nil {
		return "", err
	}
	c, err := parseCell(cell)
	if err != nil {
		return "", err
	}
	curRes := c.Resolution()
	if parentRes > curRes {
		return "", fmt.Errorf("parentRes %d must be <= cell resolution %d", parentRes, curRes)
	}
	if parentRes == curRes {
		return cell, nil
	}
	p, err := c.Parent(parentRes)
	if err != nil {
		return "", fmt.Errorf("h3 parent: %w", err)
	}
	return p.String(), nil
}

// Lineage returns the cell truncated to maxRes followed by all of its
// ancestors down to resolution 0. Cells that overlap always share at least one
// lineage entry, whatever their resolutions.
func (m *Mapper) Lineage(cell string, maxRes int) ([]string, error) {
	if err := validateRes(maxRes); err != nil {
		return nil, err
	}
	c, err := parseCell(cell)
	if err != nil {
		return nil, err
	}
	top := min(c.Resolution(), maxRes)
	out := make([]string, 0, top+1)
	for r := top; r >= 0; r-- {
		if r == c.Resolution() {
			out = append(out, c.String())
			continue
		}
		p, err := c.Parent(r)
		if err != nil {
			return nil, fmt.Errorf("h3 parent: %w", err)
		}
		out = append(out, p.String())
	}
	return out, nil
}
