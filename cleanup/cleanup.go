/*
Package cleanup removes the map files written by earlier conversions.
*/
package cleanup

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bodgit/mcmap/mapdata"
)

// Result reports what a cleanup removed.
type Result struct {
	Deleted int
	Bytes   int64
}

func (r Result) String() string {
	return fmt.Sprintf("removed %d map artifacts", r.Deleted)
}

// Run deletes every map file in dir, calling progress, if set, after each
// one. Files that only resemble map names are left alone. A missing dir
// is not an error.
func Run(dir string, progress func(i, n int)) (Result, error) {
	var result Result

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return result, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if _, ok := mapdata.ParseName(e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	mapdata.SortNames(names)

	for i, name := range names {
		file := filepath.Join(dir, name)

		info, err := os.Lstat(file)
		if err != nil {
			return result, err
		}

		if err := os.Remove(file); err != nil {
			return result, err
		}
		result.Deleted++
		result.Bytes += info.Size()

		if progress != nil {
			progress(i+1, len(names))
		}
	}

	return result, nil
}
