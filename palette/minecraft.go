package palette

import "image/color"

// Base map colours, indexed by base colour ID. ID 0 is transparent and is
// never produced by a lookup.
var baseColors = [...]uint32{
	0x000000, // none
	0x7fb238, // grass
	0xf7e9a3, // sand
	0xc7c7c7, // wool
	0xff0000, // fire
	0xa0a0ff, // ice
	0xa7a7a7, // metal
	0x007c00, // plant
	0xffffff, // snow
	0xa4a8b8, // clay
	0x976d4d, // dirt
	0x707070, // stone
	0x4040ff, // water
	0x8f7748, // wood
	0xfffcf5, // quartz
	0xd87f33, // orange
	0xb24cd8, // magenta
	0x6699d8, // light blue
	0xe5e533, // yellow
	0x7fcc19, // lime
	0xf27fa5, // pink
	0x4c4c4c, // gray
	0x999999, // light gray
	0x4c7f99, // cyan
	0x7f3fb2, // purple
	0x334cb2, // blue
	0x664c33, // brown
	0x667f33, // green
	0x993333, // red
	0x191919, // black
	0xfaee4d, // gold
	0x5cdbd5, // diamond
	0x4a80ff, // lapis
	0x00d93a, // emerald
	0x815631, // podzol
	0x700200, // nether
	0xd1b1a1, // terracotta white
	0x9f5224, // terracotta orange
	0x95576c, // terracotta magenta
	0x706c8a, // terracotta light blue
	0xba8524, // terracotta yellow
	0x677535, // terracotta lime
	0xa04d4e, // terracotta pink
	0x392923, // terracotta gray
	0x876b62, // terracotta light gray
	0x575c5c, // terracotta cyan
	0x7a4958, // terracotta purple
	0x4c3e5c, // terracotta blue
	0x4c3223, // terracotta brown
	0x4c522a, // terracotta green
	0x8e3c2e, // terracotta red
	0x251610, // terracotta black
	0xbd3031, // crimson nylium
	0x943f61, // crimson stem
	0x5c191d, // crimson hyphae
	0x167e86, // warped nylium
	0x3a8e8c, // warped stem
	0x562c3e, // warped hyphae
	0x14b485, // warped wart block
	0x646464, // deepslate
	0xd8af93, // raw iron
	0x7fa796, // glow lichen
}

// Brightness multipliers applied to each base colour, in shade order.
var shades = [...]uint32{180, 220, 255, 135}

// NumShades is the number of palette entries derived from each base colour.
const NumShades = len(shades)

// MinecraftColors returns the map colour table. Each base colour expands to
// NumShades entries with index base*NumShades+shade; the transparent base
// colour is omitted.
func MinecraftColors() []Color {
	colors := make([]Color, 0, (len(baseColors)-1)*NumShades)
	for base, rgb := range baseColors[1:] {
		for shade, m := range shades {
			colors = append(colors, Color{
				Index: uint8((base+1)*NumShades + shade),
				RGB: color.RGBA{
					R: uint8((rgb >> 16 & 0xff) * m / 255),
					G: uint8((rgb >> 8 & 0xff) * m / 255),
					B: uint8((rgb & 0xff) * m / 255),
					A: 0xff,
				},
			})
		}
	}
	return colors
}

// Minecraft returns a Palette of the map colour table.
func Minecraft() *Palette {
	p, err := New(MinecraftColors())
	if err != nil {
		panic(err)
	}
	return p
}
