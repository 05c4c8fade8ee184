package mcmap

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job is a request to convert one video.
type Job struct {
	// Source is a local path, or a URL when Remote is set
	Source string
	Remote bool

	// Columns and Rows of maps covering each frame
	Columns int
	Rows    int

	// Rate is the number of frames per second to keep
	Rate int
}

// Validate rejects unusable parameters before any I/O happens.
func (j Job) Validate() error {
	switch {
	case j.Source == "":
		return configError("no source")
	case j.Columns <= 0:
		return configError("columns must be a positive integer, got %d", j.Columns)
	case j.Rows <= 0:
		return configError("rows must be a positive integer, got %d", j.Rows)
	case j.Rate <= 0:
		return configError("rate must be a positive integer, got %d", j.Rate)
	}
	return nil
}

func (j Job) String() string {
	return fmt.Sprintf("%s (%dx%d @ %d fps)", j.Source, j.Columns, j.Rows, j.Rate)
}

// Progress is reported after every converted frame.
type Progress struct {
	// Done is the number of frames fully written
	Done int
	// Total is the expected number of frames, -1 if unknown
	Total int

	Artifacts int
}

// Result summarises a job. A partially completed job still returns its
// result alongside the error.
type Result struct {
	ID uuid.UUID

	// Frames and Artifacts fully written
	Frames    int
	Artifacts int

	// FirstMapID and LastMapID bound the IDs of the written maps,
	// LastMapID is less than FirstMapID if nothing was written
	FirstMapID int
	LastMapID  int

	Cancelled bool
	Elapsed   time.Duration
}
