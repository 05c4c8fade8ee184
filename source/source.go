/*
Package source turns a local video file or an HTTP(S) URL into a lazy,
single-pass sequence of decoded frames.

Decoding is delegated to ffmpeg which writes raw RGBA frames to a pipe, so a
video is never held in memory as a whole. For URLs the resource is first
checked with a HEAD request and then streamed into ffmpeg's standard input.
*/
package source

import (
	"errors"
	"fmt"
	"image"
	"io"
)

var (
	// ErrUnreachable is returned when a URL fails the reachability check.
	ErrUnreachable = errors.New("source: unreachable")

	// ErrDecode is returned when the video cannot be opened or a frame
	// cannot be decoded.
	ErrDecode = errors.New("source: decode failure")
)

// Rate is a frame rate expressed as a fraction.
type Rate struct {
	Num int
	Den int
}

// Float returns the rate in frames per second.
func (r Rate) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// Valid reports whether the rate is usable.
func (r Rate) Valid() bool {
	return r.Num > 0 && r.Den > 0
}

func (r Rate) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Info describes the native properties of a video stream.
type Info struct {
	Width     int
	Height    int
	FrameRate Rate
	// Duration in seconds, zero if unknown
	Duration float64
	// FrameCount is the number of frames, zero if unknown
	FrameCount int
}

// Frame is one decoded video frame at native resolution. It must not be
// modified once returned by a Source.
type Frame struct {
	// Index is the position of the frame in presentation order
	Index int
	Image *image.RGBA
}

// Source is a finite sequence of frames. Next returns io.EOF once the
// sequence is exhausted; it cannot be restarted.
type Source interface {
	Info() Info
	Next() (*Frame, error)
	Close() error
}

type reader struct {
	r    io.Reader
	info Info
	next int
	err  error
}

// NewReader returns a Source reading raw, tightly packed RGBA frames of the
// dimensions given in info from r.
func NewReader(r io.Reader, info Info) Source {
	return &reader{
		r:    r,
		info: info,
	}
}

func (r *reader) Info() Info {
	return r.info
}

func (r *reader) Next() (*Frame, error) {
	if r.err != nil {
		return nil, r.err
	}

	m := image.NewRGBA(image.Rect(0, 0, r.info.Width, r.info.Height))
	if _, err := io.ReadFull(r.r, m.Pix); err != nil {
		switch err {
		case io.EOF:
			r.err = io.EOF
		case io.ErrUnexpectedEOF:
			r.err = fmt.Errorf("%w: truncated frame %d", ErrDecode, r.next)
		default:
			r.err = fmt.Errorf("%w: frame %d: %v", ErrDecode, r.next, err)
		}
		return nil, r.err
	}

	f := &Frame{
		Index: r.next,
		Image: m,
	}
	r.next++

	return f, nil
}

func (r *reader) Close() error {
	if c, ok := r.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
