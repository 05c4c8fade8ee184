package mapdata

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	prefix = "map_"
	suffix = ".dat"

	// Pattern matches every map data file name, suitable for filepath.Glob
	Pattern = prefix + "*" + suffix
)

// Name returns the file name for the map with the given ID.
func Name(id int) string {
	return fmt.Sprintf("%s%d%s", prefix, id, suffix)
}

// ParseName returns the ID encoded in a map file name.
func ParseName(name string) (int, bool) {
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return 0, false
	}
	digits := name[len(prefix) : len(name)-len(suffix)]
	if digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
		return 0, false
	}
	id, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Layout assigns map IDs to the tiles of consecutive frames. IDs are
// allocated frame by frame, each frame in row-major tile order, so sorting
// IDs numerically gives playback order.
type Layout struct {
	First   int
	Columns int
	Rows    int
}

// ID returns the map ID of the tile at row, col of the given frame.
func (l Layout) ID(frame, row, col int) int {
	return l.First + frame*l.Columns*l.Rows + row*l.Columns + col
}

// Locate inverts ID. ok is false for IDs outside the layout.
func (l Layout) Locate(id int) (frame, row, col int, ok bool) {
	n := id - l.First
	if n < 0 || l.Columns <= 0 || l.Rows <= 0 {
		return 0, 0, 0, false
	}
	per := l.Columns * l.Rows
	frame, n = n/per, n%per
	return frame, n / l.Columns, n % l.Columns, true
}

// SortNames sorts map file names into playback order, which is numeric
// order of their IDs. Names that are not map files sort last.
func SortNames(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		a, aok := ParseName(names[i])
		b, bok := ParseName(names[j])
		switch {
		case aok && bok:
			return a < b
		case aok != bok:
			return aok
		}
		return names[i] < names[j]
	})
}
