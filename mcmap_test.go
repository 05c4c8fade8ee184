package mcmap

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/bodgit/mcmap/mapdata"
	"github.com/bodgit/mcmap/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// grass is an exact palette colour, index 6
var grass = color.RGBA{127, 178, 56, 0xff}

type fakeSource struct {
	info   source.Info
	img    *image.RGBA
	next   int
	failAt int
	closed bool
}

func newFakeSource(w, h int, fps, frames int) *fakeSource {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = grass.R, grass.G, grass.B, grass.A
	}
	return &fakeSource{
		info: source.Info{
			Width:      w,
			Height:     h,
			FrameRate:  source.Rate{Num: fps, Den: 1},
			FrameCount: frames,
		},
		img:    img,
		failAt: -1,
	}
}

func (s *fakeSource) Info() source.Info {
	return s.info
}

func (s *fakeSource) Next() (*source.Frame, error) {
	if s.next == s.failAt {
		return nil, errors.New("corrupt packet")
	}
	if s.next >= s.info.FrameCount {
		return nil, io.EOF
	}
	f := &source.Frame{Index: s.next, Image: s.img}
	s.next++
	return f, nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

func tempDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "mcmap")
	require.NoError(t, err)
	t.Cleanup(func() {
		os.RemoveAll(dir)
	})
	return dir
}

func mapFiles(t *testing.T, dir string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, mapdata.Pattern))
	require.NoError(t, err)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, filepath.Base(m))
	}
	mapdata.SortNames(names)
	return names
}

func assertContiguous(t *testing.T, names []string, first int) {
	for i, name := range names {
		require.Equal(t, mapdata.Name(first+i), name)
	}
}

func newTestConverter(t *testing.T, opts Options, db *JobDB) *Converter {
	if opts.OutputDir == "" {
		opts.OutputDir = filepath.Join(tempDir(t), "data", "video", "maps")
	}
	if opts.Workers == 0 {
		opts.Workers = 4
	}
	c, err := New(opts, db, nil)
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	_, err := New(Options{}, nil, nil)
	assert.True(t, errors.Is(err, ErrConfiguration))

	_, err = New(Options{OutputDir: "x", FirstMapID: -1}, nil, nil)
	assert.True(t, errors.Is(err, ErrConfiguration))

	_, err = New(Options{OutputDir: "x", Colors: 1000}, nil, nil)
	assert.True(t, errors.Is(err, ErrConfiguration))

	c, err := New(Options{OutputDir: "x"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, mapdata.DefaultDataVersion, c.opts.DataVersion)
	assert.NotNil(t, c.opts.Palette)
	assert.Positive(t, c.opts.Workers)
}

func TestProcessVideo(t *testing.T) {
	dir := tempDir(t)
	db, err := NewJobDB(filepath.Join(dir, "mcmap.db"))
	require.NoError(t, err)
	defer db.Close()

	var progress []Progress
	c := newTestConverter(t, Options{
		OutputDir:  filepath.Join(dir, "maps"),
		QueueDepth: 4,
		Progress: func(p Progress) {
			progress = append(progress, p)
		},
	}, db)

	src := newFakeSource(640, 480, 60, 600)
	c.open = func(_ context.Context, job Job) (source.Source, error) {
		assert.Equal(t, "clip.mp4", job.Source)
		return src, nil
	}

	result, err := c.ProcessVideo(context.Background(), "clip.mp4", 4, 3, 20)
	require.NoError(t, err)
	assert.True(t, src.closed)

	assert.Equal(t, 200, result.Frames)
	assert.Equal(t, 2400, result.Artifacts)
	assert.Equal(t, 0, result.FirstMapID)
	assert.Equal(t, 2399, result.LastMapID)
	assert.False(t, result.Cancelled)

	names := mapFiles(t, filepath.Join(dir, "maps"))
	require.Len(t, names, 2400)
	assertContiguous(t, names, 0)

	require.Len(t, progress, 200)
	assert.Equal(t, Progress{Done: 1, Total: 200, Artifacts: 12}, progress[0])
	assert.Equal(t, Progress{Done: 200, Total: 200, Artifacts: 2400}, progress[199])

	// Frame 5, row 2, column 1
	f, err := os.Open(filepath.Join(dir, "maps", mapdata.Name(5*12+2*4+1)))
	require.NoError(t, err)
	defer f.Close()
	m, err := mapdata.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 128, m.Width)
	assert.Equal(t, 128, m.Height)
	assert.True(t, m.Locked)
	require.Len(t, m.Colors, 128*128)
	for _, idx := range m.Colors {
		require.Equal(t, uint8(6), idx)
	}

	jobs, err := db.Jobs()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, result.ID, jobs[0].ID)
	assert.Equal(t, "completed", jobs[0].Status)
	assert.Equal(t, 200, jobs[0].Frames)
	assert.Equal(t, 2400, jobs[0].Artifacts)
	assert.True(t, jobs[0].Finished.Valid)

	next, err := db.NextMapID()
	require.NoError(t, err)
	assert.Equal(t, 2400, next)
}

func TestRunInvalidJob(t *testing.T) {
	dir := tempDir(t)
	c := newTestConverter(t, Options{OutputDir: filepath.Join(dir, "maps")}, nil)
	c.open = func(context.Context, Job) (source.Source, error) {
		t.Fatal("source opened for an invalid job")
		return nil, nil
	}

	for _, job := range []Job{
		{Source: "clip.mp4", Columns: 0, Rows: 3, Rate: 20},
		{Source: "clip.mp4", Columns: 4, Rows: -1, Rate: 20},
		{Source: "clip.mp4", Columns: 4, Rows: 3, Rate: 0},
		{Columns: 4, Rows: 3, Rate: 20},
	} {
		result, err := c.Run(context.Background(), job)
		assert.Nil(t, result, job.String())
		assert.True(t, errors.Is(err, ErrConfiguration), job.String())

		var je *JobError
		require.True(t, errors.As(err, &je))
		assert.Equal(t, StageConfig, je.Stage)
	}

	_, err := os.Stat(filepath.Join(dir, "maps"))
	assert.True(t, os.IsNotExist(err))
}

func TestProcessVideoFromURLUnreachable(t *testing.T) {
	var gets int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			atomic.AddInt32(&gets, 1)
		}
		http.NotFound(w, r)
	}))
	defer ts.Close()

	dir := tempDir(t)
	c := newTestConverter(t, Options{OutputDir: filepath.Join(dir, "maps")}, nil)

	result, err := c.ProcessVideoFromURL(context.Background(), ts.URL+"/clip.mp4", 4, 3, 20)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, ErrSourceUnreachable))
	assert.False(t, errors.Is(err, ErrDecode))
	assert.Zero(t, atomic.LoadInt32(&gets))

	_, err = os.Stat(filepath.Join(dir, "maps"))
	assert.True(t, os.IsNotExist(err))
}

func TestProcessVideoMissingFile(t *testing.T) {
	c := newTestConverter(t, Options{}, nil)

	_, err := c.ProcessVideo(context.Background(), filepath.Join(tempDir(t), "missing.mp4"), 1, 1, 1)
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestConvertDecodeError(t *testing.T) {
	dir := tempDir(t)
	c := newTestConverter(t, Options{OutputDir: dir, QueueDepth: 2}, nil)

	src := newFakeSource(128, 128, 10, 100)
	src.failAt = 30

	result, err := c.Convert(context.Background(), Job{Source: "clip", Columns: 1, Rows: 1, Rate: 10}, src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))

	var je *JobError
	require.True(t, errors.As(err, &je))
	assert.Equal(t, StageSource, je.Stage)
	assert.Equal(t, 30, je.SourceFrame)

	// Frames before the failure that were written are kept
	require.NotNil(t, result)
	assert.LessOrEqual(t, result.Frames, 30)
	names := mapFiles(t, dir)
	assert.Len(t, names, result.Artifacts)
	assertContiguous(t, names, 0)
}

func TestConvertNoFrames(t *testing.T) {
	c := newTestConverter(t, Options{}, nil)

	result, err := c.Convert(context.Background(), Job{Source: "clip", Columns: 1, Rows: 1, Rate: 10}, newFakeSource(128, 128, 25, 0))
	assert.True(t, errors.Is(err, ErrDecode))
	require.NotNil(t, result)
	assert.Zero(t, result.Artifacts)
	assert.Equal(t, -1, result.LastMapID)
}

func TestConvertInvalidFrameRate(t *testing.T) {
	c := newTestConverter(t, Options{}, nil)

	src := newFakeSource(128, 128, 0, 10)
	_, err := c.Convert(context.Background(), Job{Source: "clip", Columns: 1, Rows: 1, Rate: 10}, src)
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestConvertWriteError(t *testing.T) {
	dir := tempDir(t)
	c := newTestConverter(t, Options{OutputDir: dir}, nil)

	// A directory occupies the name of the sixth map
	require.NoError(t, os.MkdirAll(filepath.Join(dir, mapdata.Name(5), "x"), 0755))

	result, err := c.Convert(context.Background(), Job{Source: "clip", Columns: 1, Rows: 1, Rate: 10}, newFakeSource(128, 128, 10, 20))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWrite))

	var je *JobError
	require.True(t, errors.As(err, &je))
	assert.Equal(t, StageWrite, je.Stage)
	assert.Equal(t, 5, je.Frame)
	assert.Equal(t, 0, je.Row)
	assert.Equal(t, 0, je.Col)

	assert.Equal(t, 5, result.Frames)
	assert.Equal(t, 4, result.LastMapID)
	assertContiguous(t, mapFiles(t, dir)[:5], 0)
}

func TestConvertWriteErrorRemovesFrame(t *testing.T) {
	dir := tempDir(t)
	c := newTestConverter(t, Options{OutputDir: dir}, nil)

	// Frame 3 of a 3x1 grid is maps 9, 10 and 11; only the last one fails
	blocked := filepath.Join(dir, mapdata.Name(11))
	require.NoError(t, os.MkdirAll(filepath.Join(blocked, "x"), 0755))

	result, err := c.Convert(context.Background(), Job{Source: "clip", Columns: 3, Rows: 1, Rate: 10}, newFakeSource(384, 128, 10, 10))
	require.Error(t, err)

	var je *JobError
	require.True(t, errors.As(err, &je))
	assert.Equal(t, 3, je.Frame)
	assert.Equal(t, 2, je.Col)

	assert.Equal(t, 3, result.Frames)
	assert.Equal(t, 9, result.Artifacts)

	require.NoError(t, os.RemoveAll(blocked))
	names := mapFiles(t, dir)
	assert.Len(t, names, 9)
	assertContiguous(t, names, 0)
}

func TestConvertCancel(t *testing.T) {
	dir := tempDir(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newTestConverter(t, Options{
		OutputDir:  dir,
		QueueDepth: 2,
		Progress: func(p Progress) {
			if p.Done == 3 {
				cancel()
			}
		},
	}, nil)

	src := newFakeSource(256, 128, 10, 1000)
	result, err := c.Convert(ctx, Job{Source: "clip", Columns: 2, Rows: 1, Rate: 10}, src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.True(t, errors.Is(err, context.Canceled))

	require.NotNil(t, result)
	assert.True(t, result.Cancelled)
	assert.GreaterOrEqual(t, result.Frames, 3)
	assert.Less(t, result.Frames, 1000)

	// Only whole frames are written
	names := mapFiles(t, dir)
	assert.Len(t, names, result.Frames*2)
	assert.Equal(t, result.Frames*2, result.Artifacts)
	assertContiguous(t, names, 0)
}

func TestConvertAppend(t *testing.T) {
	dir := tempDir(t)
	db, err := NewJobDB(filepath.Join(dir, "mcmap.db"))
	require.NoError(t, err)
	defer db.Close()

	c := newTestConverter(t, Options{OutputDir: filepath.Join(dir, "maps"), Append: true}, db)
	job := Job{Source: "clip", Columns: 2, Rows: 2, Rate: 5}

	first, err := c.Convert(context.Background(), job, newFakeSource(256, 256, 10, 10))
	require.NoError(t, err)
	assert.Equal(t, 0, first.FirstMapID)
	assert.Equal(t, 19, first.LastMapID)

	second, err := c.Convert(context.Background(), job, newFakeSource(256, 256, 10, 10))
	require.NoError(t, err)
	assert.Equal(t, 20, second.FirstMapID)
	assert.Equal(t, 39, second.LastMapID)

	names := mapFiles(t, filepath.Join(dir, "maps"))
	require.Len(t, names, 40)
	assertContiguous(t, names, 0)

	jobs, err := db.Jobs()
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, 20, jobs[1].FirstMapID)
}

func TestConvertFirstMapID(t *testing.T) {
	dir := tempDir(t)
	c := newTestConverter(t, Options{OutputDir: dir, FirstMapID: 1000, DataVersion: 3700}, nil)

	result, err := c.Convert(context.Background(), Job{Source: "clip", Columns: 1, Rows: 1, Rate: 1}, newFakeSource(100, 50, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, 1000, result.FirstMapID)
	assert.Equal(t, 1002, result.LastMapID)
	assertContiguous(t, mapFiles(t, dir), 1000)

	f, err := os.Open(filepath.Join(dir, mapdata.Name(1001)))
	require.NoError(t, err)
	defer f.Close()
	m, err := mapdata.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, int32(3700), m.DataVersion)
}
