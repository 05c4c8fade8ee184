/*
Package mcmap converts videos into sequences of map item files so they can be
played back as an animation on a wall of maps inside a Minecraft world.

Each sampled frame is resized to cover a grid of maps, split into 128x128
tiles, quantized to the map colour palette and written as one gzip
compressed NBT file per tile. File names encode the frame and tile so
playback order is recovered from the names alone.
*/
package mcmap

import (
	"context"
	"runtime"

	"github.com/bodgit/mcmap/mapdata"
	"github.com/bodgit/mcmap/palette"
	"github.com/bodgit/mcmap/source"
	"github.com/bodgit/mcmap/tile"
	"go.uber.org/zap"
)

// Options configure a Converter.
type Options struct {
	// OutputDir receives the map files
	OutputDir string

	// Workers bounds concurrent tile quantization and writes
	Workers int
	// QueueDepth bounds how many frames may wait between stages
	QueueDepth int

	// FirstMapID is the ID of the first map written by a job. With
	// Append set and a JobDB available, IDs continue after those of
	// previous jobs instead.
	FirstMapID int
	Append     bool

	DataVersion int
	Resampling  tile.Resampling
	// Colors, if non-zero, posterizes frames to that many colors first
	Colors int

	Source source.Options

	// Palette defaults to the Minecraft map colours
	Palette *palette.Palette

	// Progress, if set, is called after every converted frame
	Progress func(Progress)
}

// Converter runs conversion jobs.
type Converter struct {
	opts   Options
	db     *JobDB
	logger *zap.Logger

	open func(context.Context, Job) (source.Source, error)
}

// New returns a Converter. db may be nil to disable the job catalog.
func New(opts Options, db *JobDB, logger *zap.Logger) (*Converter, error) {
	if opts.OutputDir == "" {
		return nil, configError("no output directory")
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 1
	}
	if opts.DataVersion <= 0 {
		opts.DataVersion = mapdata.DefaultDataVersion
	}
	if opts.FirstMapID < 0 {
		return nil, configError("first map ID must not be negative, got %d", opts.FirstMapID)
	}
	if opts.Colors < 0 || opts.Colors > tile.MaxColors {
		return nil, configError("posterize colors must be between 0 and %d, got %d", tile.MaxColors, opts.Colors)
	}
	if opts.Palette == nil {
		opts.Palette = palette.Minecraft()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Converter{
		opts:   opts,
		db:     db,
		logger: logger,
	}
	c.open = c.openSource

	return c, nil
}

func (c *Converter) openSource(ctx context.Context, job Job) (source.Source, error) {
	if job.Remote {
		return source.OpenURL(ctx, job.Source, c.opts.Source)
	}
	return source.Open(ctx, job.Source, c.opts.Source)
}

// ProcessVideo converts the video file at path using a grid of columns by
// rows maps, keeping rate frames per second.
func (c *Converter) ProcessVideo(ctx context.Context, path string, columns, rows, rate int) (*Result, error) {
	return c.Run(ctx, Job{
		Source:  path,
		Columns: columns,
		Rows:    rows,
		Rate:    rate,
	})
}

// ProcessVideoFromURL is ProcessVideo for a video streamed from url.
func (c *Converter) ProcessVideoFromURL(ctx context.Context, url string, columns, rows, rate int) (*Result, error) {
	return c.Run(ctx, Job{
		Source:  url,
		Remote:  true,
		Columns: columns,
		Rows:    rows,
		Rate:    rate,
	})
}

// Run converts the video described by job. It stops at the first failure;
// maps already written for earlier frames are kept. Cancelling ctx stops
// new frames from being scheduled while frames already in flight are
// finished.
func (c *Converter) Run(ctx context.Context, job Job) (*Result, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	srcCtx, srcCancel := context.WithCancel(ctx)
	defer srcCancel()

	c.logger.Info("opening source", zap.String("source", job.Source), zap.Bool("remote", job.Remote))

	src, err := c.open(srcCtx, job)
	if err != nil {
		if ctx.Err() != nil {
			return nil, newJobError(StageSource, ErrCancelled, ctx.Err())
		}
		return nil, sourceError(err)
	}
	defer src.Close()

	return c.convert(ctx, job, src, srcCancel)
}

// Convert runs job against an already opened source.
func (c *Converter) Convert(ctx context.Context, job Job, src source.Source) (*Result, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return c.convert(ctx, job, src, func() {})
}
