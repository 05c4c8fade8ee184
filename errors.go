package mcmap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bodgit/mcmap/source"
)

// Kinds of failure. Every error returned by a job matches exactly one of
// these with errors.Is.
var (
	ErrSourceUnreachable = source.ErrUnreachable
	ErrDecode            = source.ErrDecode
	ErrConfiguration     = errors.New("mcmap: invalid configuration")
	ErrQuantization      = errors.New("mcmap: quantization failure")
	ErrWrite             = errors.New("mcmap: write failure")
	ErrCancelled         = errors.New("mcmap: cancelled")
)

// Stage identifies the part of the pipeline that failed.
type Stage string

// Pipeline stages
const (
	StageConfig   Stage = "config"
	StageSource   Stage = "source"
	StageQuantize Stage = "quantize"
	StageWrite    Stage = "write"
)

// JobError reports where a job failed. Fields that do not apply are -1.
type JobError struct {
	Stage Stage
	Kind  error

	// SourceFrame is the index of the frame in the video
	SourceFrame int
	// Frame is the ordinal of the sampled frame being converted
	Frame int
	Row   int
	Col   int

	Err error
}

func newJobError(stage Stage, kind, err error) *JobError {
	return &JobError{
		Stage:       stage,
		Kind:        kind,
		SourceFrame: -1,
		Frame:       -1,
		Row:         -1,
		Col:         -1,
		Err:         err,
	}
}

func (e *JobError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	fmt.Fprintf(&b, " [%s]", e.Stage)
	if e.SourceFrame >= 0 {
		fmt.Fprintf(&b, " source frame %d", e.SourceFrame)
	}
	if e.Frame >= 0 {
		fmt.Fprintf(&b, " frame %d", e.Frame)
	}
	if e.Row >= 0 && e.Col >= 0 {
		fmt.Fprintf(&b, " tile (%d,%d)", e.Row, e.Col)
	}
	if e.Err != nil && e.Err != e.Kind {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap allows matching both the kind and the underlying cause.
func (e *JobError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func sourceError(err error) *JobError {
	kind := ErrDecode
	if errors.Is(err, ErrSourceUnreachable) {
		kind = ErrSourceUnreachable
	}
	return newJobError(StageSource, kind, err)
}

func configError(format string, a ...interface{}) *JobError {
	return newJobError(StageConfig, ErrConfiguration, fmt.Errorf(format, a...))
}
