/*
Package sampler selects which frames of a video are kept when converting it
at a lower frame rate than its native one.

Output sample k corresponds to time k/rate and picks the source frame nearest
to it, so kept frame indices are round(k * native / rate). The arithmetic is
done with integers so fractional native rates such as 30000/1001 select the
same frames on every platform.
*/
package sampler

import (
	"errors"

	"github.com/bodgit/mcmap/source"
)

// ErrInvalidRate is returned for non-positive rates.
var ErrInvalidRate = errors.New("sampler: invalid rate")

// Sampler decides, frame by frame and strictly in order, whether a frame is
// kept.
type Sampler struct {
	num, den int64
	rate     int64
	all      bool

	k    int64
	next int64
	kept int
}

// New returns a Sampler converting from the native frame rate to rate
// frames per second.
func New(native source.Rate, rate int) (*Sampler, error) {
	if !native.Valid() || rate <= 0 {
		return nil, ErrInvalidRate
	}

	s := &Sampler{
		num:  int64(native.Num),
		den:  int64(native.Den),
		rate: int64(rate),
	}
	// rate >= num/den
	s.all = s.rate*s.den >= s.num

	return s, nil
}

// target returns the source frame index for output sample k, rounding half
// up.
func (s *Sampler) target(k int64) int64 {
	return (2*k*s.num + s.den*s.rate) / (2 * s.den * s.rate)
}

// Keep reports whether the frame with the given index is kept. Indices must
// be presented in increasing order.
func (s *Sampler) Keep(index int) bool {
	if s.all {
		s.kept++
		return true
	}

	i := int64(index)
	for s.next < i {
		s.k++
		s.next = s.target(s.k)
	}
	if s.next != i {
		return false
	}

	s.k++
	s.next = s.target(s.k)
	s.kept++

	return true
}

// Kept returns the number of frames kept so far.
func (s *Sampler) Kept() int {
	return s.kept
}

// Expected returns how many frames are kept out of n source frames, or -1
// if n is unknown.
func (s *Sampler) Expected(n int) int {
	if n <= 0 {
		return -1
	}
	if s.all {
		return n
	}

	// Largest k with target(k) <= n-1
	last := int64(n - 1)
	k := (2*last*s.den*s.rate + s.den*s.rate) / (2 * s.num)
	for k > 0 && s.target(k) > last {
		k--
	}
	for s.target(k+1) <= last {
		k++
	}
	return int(k) + 1
}
