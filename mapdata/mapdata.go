/*
Package mapdata implements the map item data file written for every tile of
every converted frame.

A file is a gzip compressed NBT document with an unnamed root compound
holding a "data" compound and the "DataVersion" of the game that is expected
to read it:

	data
	  scale              byte
	  dimension          string
	  width, height      short
	  trackingPosition   byte
	  unlimitedTracking  byte
	  locked             byte
	  xCenter, zCenter   int
	  colors             byte[width*height]
	DataVersion          int

Each entry of colors is a palette index, row-major.
*/
package mapdata

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/Tnze/go-mc/nbt"
	"github.com/bodgit/mcmap/palette"
	"github.com/klauspost/compress/gzip"
)

const (
	// DefaultDataVersion is the data version written unless overridden
	DefaultDataVersion = 3465

	// DefaultDimension is the dimension maps are attached to
	DefaultDimension = "minecraft:overworld"

	maxSize = 1<<15 - 1
)

var errBadSize = errors.New("mapdata: colors do not match dimensions")

// Map is the content of one map data file.
type Map struct {
	DataVersion       int32
	Scale             int8
	Dimension         string
	Width             int
	Height            int
	TrackingPosition  bool
	UnlimitedTracking bool
	Locked            bool
	XCenter           int32
	ZCenter           int32
	Colors            []uint8
}

// New returns a locked, untracked map of the given size with defaults for
// every other field.
func New(width, height int, colors []uint8) *Map {
	return &Map{
		DataVersion: DefaultDataVersion,
		Dimension:   DefaultDimension,
		Width:       width,
		Height:      height,
		Locked:      true,
		Colors:      colors,
	}
}

type nbtFile struct {
	Data        nbtData `nbt:"data"`
	DataVersion int32   `nbt:"DataVersion"`
}

type nbtData struct {
	Scale             int8   `nbt:"scale"`
	Dimension         string `nbt:"dimension"`
	Width             int16  `nbt:"width"`
	Height            int16  `nbt:"height"`
	TrackingPosition  int8   `nbt:"trackingPosition"`
	UnlimitedTracking int8   `nbt:"unlimitedTracking"`
	Locked            int8   `nbt:"locked"`
	XCenter           int32  `nbt:"xCenter"`
	ZCenter           int32  `nbt:"zCenter"`
	Colors            []byte `nbt:"colors"`
}

func flag(b bool) int8 {
	if b {
		return 1
	}
	return 0
}

func (m *Map) validate() error {
	if m.Width <= 0 || m.Height <= 0 || m.Width > maxSize || m.Height > maxSize {
		return fmt.Errorf("mapdata: invalid dimensions %dx%d", m.Width, m.Height)
	}
	if len(m.Colors) != m.Width*m.Height {
		return errBadSize
	}
	return nil
}

// Encode writes m to w.
func Encode(w io.Writer, m *Map) error {
	if err := m.validate(); err != nil {
		return err
	}

	f := nbtFile{
		Data: nbtData{
			Scale:             m.Scale,
			Dimension:         m.Dimension,
			Width:             int16(m.Width),
			Height:            int16(m.Height),
			TrackingPosition:  flag(m.TrackingPosition),
			UnlimitedTracking: flag(m.UnlimitedTracking),
			Locked:            flag(m.Locked),
			XCenter:           m.XCenter,
			ZCenter:           m.ZCenter,
			Colors:            m.Colors,
		},
		DataVersion: m.DataVersion,
	}

	zw := gzip.NewWriter(w)
	if err := nbt.NewEncoder(zw).Encode(f, ""); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// Decode reads a map from r.
func Decode(r io.Reader) (*Map, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var f nbtFile
	if _, err := nbt.NewDecoder(zr).Decode(&f); err != nil {
		return nil, err
	}

	m := &Map{
		DataVersion:       f.DataVersion,
		Scale:             f.Data.Scale,
		Dimension:         f.Data.Dimension,
		Width:             int(f.Data.Width),
		Height:            int(f.Data.Height),
		TrackingPosition:  f.Data.TrackingPosition != 0,
		UnlimitedTracking: f.Data.UnlimitedTracking != 0,
		Locked:            f.Data.Locked != 0,
		XCenter:           f.Data.XCenter,
		ZCenter:           f.Data.ZCenter,
		Colors:            f.Data.Colors,
	}
	if err := m.validate(); err != nil {
		return nil, err
	}

	return m, nil
}

// MarshalBinary encodes the map into its compressed file form
func (m *Map) MarshalBinary() ([]byte, error) {
	b := new(bytes.Buffer)
	if err := Encode(b, m); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// UnmarshalBinary decodes the map from its compressed file form
func (m *Map) UnmarshalBinary(b []byte) error {
	d, err := Decode(bytes.NewReader(b))
	if err != nil {
		return err
	}
	*m = *d
	return nil
}

// Image renders the map using the colors of p. Indices without a palette
// entry are transparent.
func (m *Map) Image(p *palette.Palette) *image.Paletted {
	cp := make(color.Palette, 256)
	for i := range cp {
		cp[i] = color.Transparent
	}
	for _, e := range p.Entries() {
		cp[e.Index] = e.RGB
	}

	pm := image.NewPaletted(image.Rect(0, 0, m.Width, m.Height), cp)
	copy(pm.Pix, m.Colors)

	return pm
}
