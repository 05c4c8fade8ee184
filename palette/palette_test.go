package palette

import (
	"image/color"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmpty(t *testing.T) {
	_, err := New(nil)
	assert.Equal(t, ErrEmpty, err)
}

func TestNewDuplicateIndex(t *testing.T) {
	_, err := New([]Color{
		{Index: 1, RGB: color.RGBA{A: 0xff}},
		{Index: 1, RGB: color.RGBA{R: 0xff, A: 0xff}},
	})
	assert.Error(t, err)
}

func TestMinecraftColors(t *testing.T) {
	colors := MinecraftColors()
	require.Len(t, colors, 61*NumShades)

	assert.Equal(t, uint8(4), colors[0].Index)
	assert.Equal(t, uint8(247), colors[len(colors)-1].Index)

	// Grass, normal shade
	assert.Equal(t, Color{Index: 5, RGB: color.RGBA{109, 153, 48, 0xff}}, colors[1])
	// Grass, high shade is the base colour itself
	assert.Equal(t, Color{Index: 6, RGB: color.RGBA{127, 178, 56, 0xff}}, colors[2])
}

func TestNearestMatchesLinear(t *testing.T) {
	p := Minecraft()
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 200000; i++ {
		c := color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 0xff}
		if !assert.Equal(t, p.NearestLinear(c), p.Nearest(c), "color %v", c) {
			return
		}
	}
}

func TestNearestCellCorners(t *testing.T) {
	p := Minecraft()

	for _, v := range []uint8{0, 7, 8, 127, 128, 248, 255} {
		for _, w := range []uint8{0, 7, 8, 127, 128, 248, 255} {
			for _, x := range []uint8{0, 7, 8, 127, 128, 248, 255} {
				c := color.RGBA{v, w, x, 0xff}
				assert.Equal(t, p.NearestLinear(c), p.Nearest(c), "color %v", c)
			}
		}
	}
}

func TestNearestIdempotent(t *testing.T) {
	p := Minecraft()

	for _, e := range p.Entries() {
		got := p.Nearest(e.RGB)
		assert.Equal(t, e.RGB, got.RGB)
		assert.Equal(t, got, p.Nearest(got.RGB))
	}
}

func TestNearestTieBreak(t *testing.T) {
	p, err := New([]Color{
		{Index: 9, RGB: color.RGBA{20, 0, 0, 0xff}},
		{Index: 3, RGB: color.RGBA{0, 0, 0, 0xff}},
	})
	require.NoError(t, err)

	// Equidistant from both entries
	got := p.Nearest(color.RGBA{10, 0, 0, 0xff})
	assert.Equal(t, uint8(3), got.Index)
	assert.Equal(t, uint8(3), p.Index(10, 0, 0))
	assert.Equal(t, got, p.NearestLinear(color.RGBA{10, 0, 0, 0xff}))
}

func TestNearestIgnoresTransparency(t *testing.T) {
	p := Minecraft()

	// Never the transparent entries
	for _, c := range []color.Color{color.Transparent, color.Black, color.White} {
		assert.GreaterOrEqual(t, p.Nearest(c).Index, uint8(NumShades))
	}
}

func TestColors(t *testing.T) {
	p := Minecraft()
	cp := p.Colors()
	require.Len(t, cp, p.Len())
	assert.Equal(t, p.Entries()[0].RGB, cp[0])
}

func BenchmarkNearest(b *testing.B) {
	p := Minecraft()
	for i := 0; i < b.N; i++ {
		p.Index(uint8(i), uint8(i>>8), uint8(i>>16))
	}
}
