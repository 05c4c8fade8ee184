package mcmap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bodgit/mcmap/mapdata"
	"github.com/bodgit/mcmap/metrics"
	"github.com/bodgit/mcmap/sampler"
	"github.com/bodgit/mcmap/source"
	"github.com/bodgit/mcmap/tile"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type sampledFrame struct {
	ordinal int
	frame   *source.Frame
}

type quantizedFrame struct {
	ordinal int
	index   int
	tiles   []*tile.Tile
}

// producerState is written by the producer and only read once the pipeline
// has drained.
type producerState struct {
	decoded   int
	cancelled bool
}

// sampleFrames decodes frames in order and passes on the ones the sampler
// keeps. Cancelling ctx stops it cleanly, cancelling abort stops it because
// another stage failed.
func (c *Converter) sampleFrames(ctx, abort context.Context, src source.Source, s *sampler.Sampler, st *producerState) (<-chan sampledFrame, <-chan error) {
	out := make(chan sampledFrame, c.opts.QueueDepth)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)

		ordinal := 0
		for {
			if ctx.Err() != nil {
				st.cancelled = true
				return
			}

			f, err := src.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				switch {
				case ctx.Err() != nil:
					st.cancelled = true
				case abort.Err() == nil:
					je := sourceError(err)
					je.SourceFrame = st.decoded
					errc <- je
				}
				return
			}
			st.decoded++
			metrics.FramesDecodedTotal.Inc()

			if !s.Keep(f.Index) {
				continue
			}

			select {
			case out <- sampledFrame{ordinal: ordinal, frame: f}:
				ordinal++
			case <-abort.Done():
				return
			}
		}
	}()
	return out, errc
}

// quantizeFrames tiles and quantizes each frame, the tiles of a frame are
// processed concurrently by the quantizer's worker pool.
func (c *Converter) quantizeFrames(abort context.Context, q *tile.Quantizer, in <-chan sampledFrame) (<-chan quantizedFrame, <-chan error) {
	out := make(chan quantizedFrame, c.opts.QueueDepth)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		for sf := range in {
			start := time.Now()
			tiles, err := q.Quantize(abort, sf.ordinal, sf.frame.Image)
			if err != nil {
				if abort.Err() == nil {
					je := newJobError(StageQuantize, ErrQuantization, err)
					je.SourceFrame = sf.frame.Index
					je.Frame = sf.ordinal
					errc <- je
				}
				return
			}
			metrics.StageDuration.WithLabelValues(string(StageQuantize)).Observe(time.Since(start).Seconds())

			select {
			case out <- quantizedFrame{ordinal: sf.ordinal, index: sf.frame.Index, tiles: tiles}:
			case <-abort.Done():
				return
			}
		}
	}()
	return out, errc
}

type writeState struct {
	frames    int
	artifacts int
	lastID    int
}

// writeFrames writes every tile of a frame before moving to the next one.
// A frame that has started is always finished so no write is interrupted.
func (c *Converter) writeFrames(abort context.Context, id uuid.UUID, w *mapdata.Writer, layout mapdata.Layout, total int, in <-chan quantizedFrame, st *writeState) <-chan error {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		for qf := range in {
			if abort.Err() != nil {
				return
			}

			start := time.Now()
			artifacts, err := c.writeFrame(w, layout, qf)
			if err != nil {
				errc <- err
				return
			}
			metrics.StageDuration.WithLabelValues(string(StageWrite)).Observe(time.Since(start).Seconds())

			if c.db != nil {
				if err := c.db.AddFrame(id, qf.ordinal, qf.index, artifacts); err != nil {
					je := newJobError(StageWrite, ErrWrite, fmt.Errorf("catalog: %w", err))
					je.SourceFrame = qf.index
					je.Frame = qf.ordinal
					errc <- je
					return
				}
			}

			st.frames++
			st.artifacts += len(artifacts)
			st.lastID = artifacts[len(artifacts)-1].ID
			metrics.FramesConvertedTotal.Inc()

			c.logger.Debug("frame converted",
				zap.Int("frame", qf.ordinal),
				zap.Int("source_frame", qf.index),
				zap.Int("done", st.frames),
				zap.Int("total", total),
			)
			if c.opts.Progress != nil {
				c.opts.Progress(Progress{
					Done:      st.frames,
					Total:     total,
					Artifacts: st.artifacts,
				})
			}
		}
	}()
	return errc
}

// writeFrame writes the tiles of one frame concurrently and waits for all of
// them. Tiles target distinct names so writers never collide.
func (c *Converter) writeFrame(w *mapdata.Writer, layout mapdata.Layout, qf quantizedFrame) ([]*mapdata.Artifact, error) {
	artifacts := make([]*mapdata.Artifact, len(qf.tiles))
	errs := make([]error, len(qf.tiles))

	sem := make(chan struct{}, c.opts.Workers)
	var wg sync.WaitGroup
	for i, t := range qf.tiles {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, t *tile.Tile) {
			defer wg.Done()
			defer func() { <-sem }()

			m := mapdata.New(t.Width, t.Height, t.Pix)
			m.DataVersion = int32(c.opts.DataVersion)

			a, err := w.Write(layout.ID(t.Frame, t.Row, t.Col), m)
			if err != nil {
				errs[i] = err
				return
			}
			artifacts[i] = a
			metrics.ArtifactsWrittenTotal.Inc()
			metrics.ArtifactBytesTotal.Add(float64(a.Size))
		}(i, t)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			// A frame is either complete or absent
			for _, a := range artifacts {
				if a == nil {
					continue
				}
				if rerr := w.Remove(a.ID); rerr != nil {
					c.logger.Warn("could not remove map of failed frame", zap.Int("map_id", a.ID), zap.Error(rerr))
				}
			}

			je := newJobError(StageWrite, ErrWrite, err)
			je.SourceFrame = qf.index
			je.Frame = qf.ordinal
			je.Row = qf.tiles[i].Row
			je.Col = qf.tiles[i].Col
			return nil, je
		}
	}

	return artifacts, nil
}

// waitForPipeline returns the first error from any stage. It cancels the
// remaining stages on failure and only returns once all of them finished.
func waitForPipeline(cancel context.CancelFunc, errs ...<-chan error) error {
	var first error
	for err := range mergeErrors(errs...) {
		if err != nil && first == nil {
			first = err
			cancel()
		}
	}
	return first
}

func mergeErrors(cs ...<-chan error) <-chan error {
	var wg sync.WaitGroup
	out := make(chan error, len(cs))
	wg.Add(len(cs))
	for _, c := range cs {
		go func(c <-chan error) {
			for n := range c {
				out <- n
			}
			wg.Done()
		}(c)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

func (c *Converter) firstMapID() (int, error) {
	if c.opts.Append && c.db != nil {
		return c.db.NextMapID()
	}
	return c.opts.FirstMapID, nil
}

func (c *Converter) convert(ctx context.Context, job Job, src source.Source, stopSource context.CancelFunc) (*Result, error) {
	start := time.Now()
	info := src.Info()

	s, err := sampler.New(info.FrameRate, job.Rate)
	if err != nil {
		return nil, sourceError(fmt.Errorf("%w: frame rate %s: %v", ErrDecode, info.FrameRate, err))
	}

	q, err := tile.New(c.opts.Palette, tile.Options{
		Columns:    job.Columns,
		Rows:       job.Rows,
		Workers:    c.opts.Workers,
		Resampling: c.opts.Resampling,
		Colors:     c.opts.Colors,
	})
	if err != nil {
		return nil, newJobError(StageQuantize, ErrQuantization, err)
	}

	w, err := mapdata.NewWriter(c.opts.OutputDir)
	if err != nil {
		return nil, newJobError(StageWrite, ErrWrite, err)
	}

	first, err := c.firstMapID()
	if err != nil {
		return nil, newJobError(StageWrite, ErrWrite, fmt.Errorf("catalog: %w", err))
	}
	layout := mapdata.Layout{
		First:   first,
		Columns: job.Columns,
		Rows:    job.Rows,
	}

	result := &Result{
		ID:         uuid.New(),
		FirstMapID: first,
		LastMapID:  first - 1,
	}
	total := s.Expected(info.FrameCount)

	log := c.logger.With(zap.String("job_id", result.ID.String()))
	log.Info("converting",
		zap.String("source", job.Source),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.Stringer("frame_rate", info.FrameRate),
		zap.Int("columns", job.Columns),
		zap.Int("rows", job.Rows),
		zap.Int("rate", job.Rate),
		zap.Int("expected_frames", total),
		zap.Int("first_map_id", first),
	)

	if c.db != nil {
		if err := c.db.BeginJob(result.ID, job, first); err != nil {
			return nil, newJobError(StageWrite, ErrWrite, fmt.Errorf("catalog: %w", err))
		}
	}

	abort, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	var ps producerState
	ws := writeState{lastID: first - 1}

	frames, errc1 := c.sampleFrames(ctx, abort, src, s, &ps)
	tiles, errc2 := c.quantizeFrames(abort, q, frames)
	errc3 := c.writeFrames(abort, result.ID, w, layout, total, tiles, &ws)

	err = waitForPipeline(func() {
		cancel()
		stopSource()
	}, errc1, errc2, errc3)

	result.Frames = ws.frames
	result.Artifacts = ws.artifacts
	result.LastMapID = ws.lastID
	result.Elapsed = time.Since(start)

	if err == nil {
		switch {
		case ps.cancelled:
			result.Cancelled = true
			err = newJobError(StageSource, ErrCancelled, ctx.Err())
		case ps.decoded == 0:
			err = sourceError(fmt.Errorf("%w: no frames decoded", ErrDecode))
		}
	}

	c.finish(log, result, err)

	return result, err
}

func (c *Converter) finish(log *zap.Logger, result *Result, err error) {
	status := "completed"
	var je *JobError
	switch {
	case errors.Is(err, ErrCancelled):
		status = "cancelled"
	case err != nil:
		status = "failed"
		if errors.As(err, &je) {
			metrics.FailuresTotal.WithLabelValues(string(je.Stage)).Inc()
		}
	}
	metrics.JobsTotal.WithLabelValues(status).Inc()

	if c.db != nil {
		if dbErr := c.db.FinishJob(result.ID, status, result.Frames, result.Artifacts, err); dbErr != nil {
			log.Warn("could not record job result", zap.Error(dbErr))
		}
	}

	fields := []zap.Field{
		zap.String("status", status),
		zap.Int("frames", result.Frames),
		zap.Int("artifacts", result.Artifacts),
		zap.Int("first_map_id", result.FirstMapID),
		zap.Int("last_map_id", result.LastMapID),
		zap.Duration("elapsed", result.Elapsed),
	}
	if err != nil {
		log.Error("conversion stopped", append(fields, zap.Error(err))...)
		return
	}
	log.Info("conversion finished", fields...)
}
