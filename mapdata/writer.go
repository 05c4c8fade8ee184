package mapdata

import (
	"bufio"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
)

// Artifact describes a map file that was written.
type Artifact struct {
	ID   int
	Path string
	Size int64
	// SHA1 of the file contents, hex encoded
	SHA1 string
}

// Writer writes map files into a directory. Concurrent calls are safe as
// long as they use distinct IDs.
type Writer struct {
	dir string
}

// NewWriter returns a Writer for dir, creating it if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Writer{dir: dir}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

type countWriter struct {
	w io.Writer
	n int64
}

func (c *countWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Write encodes m as the map with the given ID. The file only appears under
// its final name once it has been completely written and synced; on error
// nothing is left behind.
func (w *Writer) Write(id int, m *Map) (a *Artifact, err error) {
	if err := m.validate(); err != nil {
		return nil, err
	}

	name := Name(id)
	f, err := os.CreateTemp(w.dir, "."+name+".*.tmp")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	var h hash.Hash = sha1.New()
	cw := &countWriter{w: io.MultiWriter(f, h)}
	bw := bufio.NewWriter(cw)

	if err = Encode(bw, m); err != nil {
		return nil, fmt.Errorf("mapdata: encode %s: %w", name, err)
	}
	if err = bw.Flush(); err != nil {
		return nil, err
	}
	if err = f.Sync(); err != nil {
		return nil, err
	}
	if err = f.Close(); err != nil {
		return nil, err
	}

	path := filepath.Join(w.dir, name)
	if err = os.Rename(f.Name(), path); err != nil {
		return nil, err
	}

	return &Artifact{
		ID:   id,
		Path: path,
		Size: cw.n,
		SHA1: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// Remove deletes the map with the given ID. A missing file is not an error.
func (w *Writer) Remove(id int) error {
	if err := os.Remove(filepath.Join(w.dir, Name(id))); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
