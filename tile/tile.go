/*
Package tile splits video frames into map sized tiles and quantizes every
pixel of each tile to an index of a fixed palette.

A frame covering a grid of columns by rows tiles must be exactly
Width*columns by Height*rows pixels. Frames of any other size are resized to
that first, so no part of the picture is cropped away.
*/
package tile

import (
	"errors"
	"image"
)

// Dimensions of a single tile, which is one map item.
const (
	Width  = 128
	Height = Width
	Pixels = Width * Height
)

var (
	// ErrInvalidGrid is returned for non-positive grid dimensions.
	ErrInvalidGrid = errors.New("tile: invalid grid")

	// ErrInvalidColors is returned when the posterize color count does not
	// fit a paletted image.
	ErrInvalidColors = errors.New("tile: posterize colors must be between 0 and 256")

	// ErrEmptyFrame is returned when a frame has no pixels.
	ErrEmptyFrame = errors.New("tile: empty frame")
)

// Tile is the quantized content of one grid cell of one frame.
type Tile struct {
	// Frame is the ordinal of the sampled frame the tile belongs to
	Frame int
	Row   int
	Col   int

	Width  int
	Height int

	// Pix holds one palette index per pixel, row-major
	Pix []uint8
}

// Bounds returns the rectangle a tile at row, col occupies in a frame that
// has already been sized for the grid.
func Bounds(row, col int) image.Rectangle {
	return image.Rect(col*Width, row*Height, (col+1)*Width, (row+1)*Height)
}

// Split returns the columns*rows sub-images of m in row-major order. The
// sub-images share pixels with m. m must be exactly sized for the grid.
func Split(m *image.RGBA, columns, rows int) ([]*image.RGBA, error) {
	if columns <= 0 || rows <= 0 {
		return nil, ErrInvalidGrid
	}
	if m.Bounds().Dx() != columns*Width || m.Bounds().Dy() != rows*Height {
		return nil, errors.New("tile: frame is wrong size")
	}

	min := m.Bounds().Min
	tiles := make([]*image.RGBA, 0, columns*rows)
	for row := 0; row < rows; row++ {
		for col := 0; col < columns; col++ {
			tiles = append(tiles, m.SubImage(Bounds(row, col).Add(min)).(*image.RGBA))
		}
	}
	return tiles, nil
}
