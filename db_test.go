package mcmap

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/bodgit/mcmap/mapdata"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func artifacts(ids ...int) []*mapdata.Artifact {
	a := make([]*mapdata.Artifact, 0, len(ids))
	for _, id := range ids {
		a = append(a, &mapdata.Artifact{
			ID:   id,
			Path: mapdata.Name(id),
			Size: 100,
			SHA1: "da39a3ee5e6b4b0d3255bfef95601890afd80709",
		})
	}
	return a
}

func TestJobDB(t *testing.T) {
	file := filepath.Join(tempDir(t), "mcmap.db")
	db, err := NewJobDB(file)
	require.NoError(t, err)

	next, err := db.NextMapID()
	require.NoError(t, err)
	assert.Equal(t, 0, next)

	id := uuid.New()
	job := Job{Source: "clip.mp4", Columns: 2, Rows: 1, Rate: 20}
	require.NoError(t, db.BeginJob(id, job, 10))

	require.NoError(t, db.AddFrame(id, 0, 0, artifacts(10, 11)))
	require.NoError(t, db.AddFrame(id, 1, 3, artifacts(12, 13)))
	assert.Error(t, db.AddFrame(id, 2, 6, artifacts(9)))
	assert.Error(t, db.AddFrame(uuid.New(), 0, 0, artifacts(100)))

	next, err = db.NextMapID()
	require.NoError(t, err)
	assert.Equal(t, 14, next)

	jobs, err := db.Jobs()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0].ID)
	assert.Equal(t, "running", jobs[0].Status)
	assert.Equal(t, 2, jobs[0].Frames)
	assert.Equal(t, 4, jobs[0].Artifacts)
	assert.Equal(t, 10, jobs[0].FirstMapID)
	assert.False(t, jobs[0].Finished.Valid)

	require.NoError(t, db.FinishJob(id, "failed", 2, 4, errors.New("boom")))
	require.NoError(t, db.Close())

	// Reopening keeps everything
	db, err = NewJobDB(file)
	require.NoError(t, err)
	defer db.Close()

	jobs, err = db.Jobs()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "failed", jobs[0].Status)
	assert.Equal(t, "boom", jobs[0].Error)
	assert.True(t, jobs[0].Finished.Valid)
	assert.Equal(t, job.Source, jobs[0].Source)
	assert.Equal(t, job.Rate, jobs[0].Rate)

	n, err := db.ForgetArtifacts()
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	next, err = db.NextMapID()
	require.NoError(t, err)
	assert.Equal(t, 0, next)
}
