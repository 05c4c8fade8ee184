/*
Package palette implements the fixed colour table used by map artifacts and
the nearest colour lookup against it.

A Palette is immutable once built and safe for concurrent use. Lookups are
accelerated by a coarse grid over RGB space where each cell only holds the
entries that can be the nearest match for some colour inside that cell, so
the result is always identical to an exhaustive search.
*/
package palette

import (
	"errors"
	"image/color"
	"sort"
)

const (
	cellBits  = 3
	cellSize  = 1 << cellBits
	gridSide  = 256 >> cellBits
	gridCells = gridSide * gridSide * gridSide
)

// ErrEmpty is returned when a palette is built without any entries.
var ErrEmpty = errors.New("palette: no colors")

// Color is one entry of the palette.
type Color struct {
	Index uint8
	RGB   color.RGBA
}

// Palette is a read-only set of output colours.
type Palette struct {
	colors []Color
	grid   [gridCells][]uint16
}

// New builds a palette from the given entries. Entries are ordered by index
// and an index may only be used once.
func New(colors []Color) (*Palette, error) {
	if len(colors) == 0 {
		return nil, ErrEmpty
	}

	p := &Palette{
		colors: append(colors[:0:0], colors...),
	}
	sort.Slice(p.colors, func(i, j int) bool { return p.colors[i].Index < p.colors[j].Index })
	for i := 1; i < len(p.colors); i++ {
		if p.colors[i].Index == p.colors[i-1].Index {
			return nil, errors.New("palette: duplicate index")
		}
	}

	p.buildGrid()

	return p, nil
}

// Len returns the number of entries.
func (p *Palette) Len() int {
	return len(p.colors)
}

// Entries returns a copy of the palette entries in index order.
func (p *Palette) Entries() []Color {
	return append(p.colors[:0:0], p.colors...)
}

// Colors returns the entries as a color.Palette, in index order.
func (p *Palette) Colors() color.Palette {
	cp := make(color.Palette, len(p.colors))
	for i, c := range p.colors {
		cp[i] = c.RGB
	}
	return cp
}

// Nearest returns the entry closest to c by squared Euclidean distance in
// RGB. Ties resolve to the lowest index. Alpha is ignored.
func (p *Palette) Nearest(c color.Color) Color {
	rgba := color.RGBAModel.Convert(c).(color.RGBA)
	return p.colors[p.nearest(rgba.R, rgba.G, rgba.B)]
}

// Index is Nearest for a raw RGB triplet, returning only the palette index.
func (p *Palette) Index(r, g, b uint8) uint8 {
	return p.colors[p.nearest(r, g, b)].Index
}

// NearestLinear performs the same lookup as Nearest with an exhaustive scan.
func (p *Palette) NearestLinear(c color.Color) Color {
	rgba := color.RGBAModel.Convert(c).(color.RGBA)
	best, bestDist := 0, int(^uint(0)>>1)
	for i, e := range p.colors {
		if d := dist(rgba.R, rgba.G, rgba.B, e.RGB); d < bestDist {
			best, bestDist = i, d
		}
	}
	return p.colors[best]
}

func (p *Palette) nearest(r, g, b uint8) int {
	cell := p.grid[cellIndex(r, g, b)]
	best, bestDist := int(cell[0]), int(^uint(0)>>1)
	for _, i := range cell {
		if d := dist(r, g, b, p.colors[i].RGB); d < bestDist {
			best, bestDist = int(i), d
		}
	}
	return best
}

func cellIndex(r, g, b uint8) int {
	return int(r>>cellBits)*gridSide*gridSide + int(g>>cellBits)*gridSide + int(b>>cellBits)
}

func dist(r, g, b uint8, c color.RGBA) int {
	dr := int(r) - int(c.R)
	dg := int(g) - int(c.G)
	db := int(b) - int(c.B)
	return dr*dr + dg*dg + db*db
}

// Distance along one axis from v to the interval [lo, hi].
func axisMin(v, lo, hi int) int {
	switch {
	case v < lo:
		return lo - v
	case v > hi:
		return v - hi
	}
	return 0
}

// Largest distance along one axis from v to any point of [lo, hi].
func axisMax(v, lo, hi int) int {
	d1, d2 := abs(v-lo), abs(hi-v)
	if d1 > d2 {
		return d1
	}
	return d2
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func (p *Palette) buildGrid() {
	minDist := make([]int, len(p.colors))
	for cr := 0; cr < gridSide; cr++ {
		for cg := 0; cg < gridSide; cg++ {
			for cb := 0; cb < gridSide; cb++ {
				rlo, glo, blo := cr*cellSize, cg*cellSize, cb*cellSize
				rhi, ghi, bhi := rlo+cellSize-1, glo+cellSize-1, blo+cellSize-1

				// Any colour in the cell is at most bound away from
				// some entry, so only entries that can get that close
				// are candidates
				bound := int(^uint(0) >> 1)
				for i, c := range p.colors {
					r, g, b := int(c.RGB.R), int(c.RGB.G), int(c.RGB.B)

					dr, dg, db := axisMin(r, rlo, rhi), axisMin(g, glo, ghi), axisMin(b, blo, bhi)
					minDist[i] = dr*dr + dg*dg + db*db

					dr, dg, db = axisMax(r, rlo, rhi), axisMax(g, glo, ghi), axisMax(b, blo, bhi)
					if d := dr*dr + dg*dg + db*db; d < bound {
						bound = d
					}
				}

				var cell []uint16
				for i := range p.colors {
					if minDist[i] <= bound {
						cell = append(cell, uint16(i))
					}
				}
				p.grid[cr*gridSide*gridSide+cg*gridSide+cb] = cell
			}
		}
	}
}
