package tile

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"runtime"
	"strings"
	"sync"

	"github.com/bodgit/mcmap/palette"
	"github.com/disintegration/gift"
	"github.com/ericpauley/go-quantize/quantize"
)

// MaxColors is the largest posterize color count, the size of a paletted
// image's palette.
const MaxColors = 256

// Resampling selects the filter used when a frame has to be resized.
type Resampling int

const (
	// Box averages the source area covered by each output pixel
	Box Resampling = iota
	// Nearest picks the source pixel nearest to each output pixel
	Nearest
)

// ParseResampling converts a name to a Resampling.
func ParseResampling(s string) (Resampling, error) {
	switch strings.ToLower(s) {
	case "", "box", "area":
		return Box, nil
	case "nearest":
		return Nearest, nil
	}
	return Box, fmt.Errorf("tile: unknown resampling %q", s)
}

func (r Resampling) String() string {
	if r == Nearest {
		return "nearest"
	}
	return "box"
}

func (r Resampling) filter() gift.Resampling {
	if r == Nearest {
		return gift.NearestNeighborResampling
	}
	return gift.BoxResampling
}

// Options configure a Quantizer.
type Options struct {
	Columns int
	Rows    int

	// Workers bounds how many tiles are quantized concurrently, zero
	// means one per CPU
	Workers int

	Resampling Resampling

	// Colors, if non-zero, first reduces each frame to at most MaxColors
	// colors with a median cut before mapping it onto the palette
	Colors int
}

// Quantizer converts frames into tiles. It is safe for concurrent use.
type Quantizer struct {
	palette *palette.Palette
	opts    Options
	size    image.Point
}

// New returns a Quantizer mapping frames onto the colors of p.
func New(p *palette.Palette, opts Options) (*Quantizer, error) {
	if p == nil || p.Len() == 0 {
		return nil, palette.ErrEmpty
	}
	if opts.Columns <= 0 || opts.Rows <= 0 {
		return nil, ErrInvalidGrid
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Colors < 0 || opts.Colors > MaxColors {
		return nil, ErrInvalidColors
	}

	return &Quantizer{
		palette: p,
		opts:    opts,
		size:    image.Pt(opts.Columns*Width, opts.Rows*Height),
	}, nil
}

// Size returns the pixel dimensions frames are resized to.
func (q *Quantizer) Size() image.Point {
	return q.size
}

// Resize returns m unchanged if it is already the grid size, otherwise a
// resized copy.
func (q *Quantizer) Resize(m *image.RGBA) *image.RGBA {
	b := m.Bounds()
	if b.Size() == q.size {
		return m
	}

	g := gift.New(gift.Resize(q.size.X, q.size.Y, q.opts.Resampling.filter()))
	dst := image.NewRGBA(g.Bounds(b))
	g.Draw(dst, m)

	return dst
}

// indexer resolves the palette index of a pixel.
type indexer func(x, y int) uint8

func (q *Quantizer) rgbaIndexer(m *image.RGBA) indexer {
	return func(x, y int) uint8 {
		i := m.PixOffset(x, y)
		return q.palette.Index(m.Pix[i], m.Pix[i+1], m.Pix[i+2])
	}
}

// posterize reduces m to at most q.opts.Colors colors and returns an
// indexer through a lookup table from the reduced colors to the palette.
func (q *Quantizer) posterize(m *image.RGBA) indexer {
	b := m.Bounds()

	qz := quantize.MedianCutQuantizer{}
	cp := qz.Quantize(make(color.Palette, 0, q.opts.Colors), m)
	if len(cp) == 0 {
		return q.rgbaIndexer(m)
	}

	pm := image.NewPaletted(b, cp)
	draw.Draw(pm, b, m, b.Min, draw.Src)

	lut := make([]uint8, len(cp))
	for i, c := range cp {
		lut[i] = q.palette.Nearest(c).Index
	}

	return func(x, y int) uint8 {
		return lut[pm.ColorIndexAt(x, y)]
	}
}

// Quantize resizes m if required and returns its tiles in row-major order,
// labelled with frame. Tiles are quantized concurrently.
func (q *Quantizer) Quantize(ctx context.Context, frame int, m *image.RGBA) ([]*Tile, error) {
	if m == nil || m.Bounds().Empty() {
		return nil, ErrEmptyFrame
	}

	m = q.Resize(m)

	var at indexer
	if q.opts.Colors > 0 {
		at = q.posterize(m)
	} else {
		at = q.rgbaIndexer(m)
	}

	n := q.opts.Columns * q.opts.Rows
	tiles := make([]*Tile, n)
	min := m.Bounds().Min

	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := q.opts.Workers
	if workers > n {
		workers = n
	}
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for slot := range jobs {
				row, col := slot/q.opts.Columns, slot%q.opts.Columns
				tiles[slot] = quantizeTile(at, frame, row, col, Bounds(row, col).Add(min))
			}
		}()
	}

	var err error
loop:
	for slot := 0; slot < n; slot++ {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case jobs <- slot:
		case <-ctx.Done():
			err = ctx.Err()
			break loop
		}
	}
	close(jobs)
	wg.Wait()

	if err != nil {
		return nil, err
	}

	return tiles, nil
}

func quantizeTile(at indexer, frame, row, col int, r image.Rectangle) *Tile {
	t := &Tile{
		Frame:  frame,
		Row:    row,
		Col:    col,
		Width:  r.Dx(),
		Height: r.Dy(),
		Pix:    make([]uint8, r.Dx()*r.Dy()),
	}

	i := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			t.Pix[i] = at(x, y)
			i++
		}
	}

	return t
}
