package mcmap

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/bodgit/mcmap/mapdata"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// JobDB is a catalog of conversion jobs and the maps they wrote.
type JobDB struct {
	db *sql.DB
}

// JobRecord is one job as stored in the catalog.
type JobRecord struct {
	ID         uuid.UUID
	Source     string
	Columns    int
	Rows       int
	Rate       int
	FirstMapID int
	Status     string
	Frames     int
	Artifacts  int
	Error      string
	Started    time.Time
	Finished   sql.NullTime
}

// NewJobDB opens, creating if needed, the catalog stored in file.
func NewJobDB(file string) (*JobDB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_foreign_keys=on&_busy_timeout=5000", file))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS job (id TEXT PRIMARY KEY NOT NULL, source TEXT NOT NULL, columns INTEGER NOT NULL, rows INTEGER NOT NULL, rate INTEGER NOT NULL, first_map_id INTEGER NOT NULL, status TEXT NOT NULL, frames INTEGER NOT NULL DEFAULT 0, artifacts INTEGER NOT NULL DEFAULT 0, error TEXT NOT NULL DEFAULT '', started TIMESTAMP NOT NULL, finished TIMESTAMP)"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS artifact (map_id INTEGER PRIMARY KEY NOT NULL, job_id TEXT NOT NULL, frame INTEGER NOT NULL, source_frame INTEGER NOT NULL, row INTEGER NOT NULL, col INTEGER NOT NULL, sha1 TEXT NOT NULL, size INTEGER NOT NULL, FOREIGN KEY(job_id) REFERENCES job(id))"); err != nil {
		db.Close()
		return nil, err
	}

	return &JobDB{
		db: db,
	}, nil
}

// Close closes the catalog.
func (db *JobDB) Close() error {
	return db.db.Close()
}

// BeginJob records a job as running.
func (db *JobDB) BeginJob(id uuid.UUID, job Job, first int) error {
	_, err := db.db.Exec("INSERT INTO job (id, source, columns, rows, rate, first_map_id, status, started) VALUES (?, ?, ?, ?, ?, ?, 'running', ?)", id.String(), job.Source, job.Columns, job.Rows, job.Rate, first, time.Now().UTC())
	return err
}

// AddFrame records the maps written for one frame in a single transaction.
// A map ID written again replaces the older record.
func (db *JobDB) AddFrame(id uuid.UUID, frame, sourceFrame int, artifacts []*mapdata.Artifact) error {
	tx, err := db.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare("INSERT OR REPLACE INTO artifact (map_id, job_id, frame, source_frame, row, col, sha1, size) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	var layout mapdata.Layout
	if err := tx.QueryRow("SELECT first_map_id, columns, rows FROM job WHERE id = ?", id.String()).Scan(&layout.First, &layout.Columns, &layout.Rows); err != nil {
		tx.Rollback()
		return err
	}

	for _, a := range artifacts {
		_, row, col, ok := layout.Locate(a.ID)
		if !ok {
			tx.Rollback()
			return fmt.Errorf("map %d outside job layout", a.ID)
		}
		if _, err := stmt.Exec(a.ID, id.String(), frame, sourceFrame, row, col, a.SHA1, a.Size); err != nil {
			tx.Rollback()
			return err
		}
	}

	if _, err := tx.Exec("UPDATE job SET frames = frames + 1, artifacts = artifacts + ? WHERE id = ?", len(artifacts), id.String()); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// FinishJob records the outcome of a job.
func (db *JobDB) FinishJob(id uuid.UUID, status string, frames, artifacts int, jobErr error) error {
	var msg string
	if jobErr != nil {
		msg = jobErr.Error()
	}
	_, err := db.db.Exec("UPDATE job SET status = ?, frames = ?, artifacts = ?, error = ?, finished = ? WHERE id = ?", status, frames, artifacts, msg, time.Now().UTC(), id.String())
	return err
}

// Jobs returns every recorded job, oldest first.
func (db *JobDB) Jobs() ([]JobRecord, error) {
	rows, err := db.db.Query("SELECT id, source, columns, rows, rate, first_map_id, status, frames, artifacts, error, started, finished FROM job ORDER BY started, rowid")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []JobRecord
	for rows.Next() {
		var j JobRecord
		var id string
		if err := rows.Scan(&id, &j.Source, &j.Columns, &j.Rows, &j.Rate, &j.FirstMapID, &j.Status, &j.Frames, &j.Artifacts, &j.Error, &j.Started, &j.Finished); err != nil {
			return nil, err
		}
		if j.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}

	return jobs, rows.Err()
}

// NextMapID returns the ID following the highest recorded map.
func (db *JobDB) NextMapID() (int, error) {
	var max sql.NullInt64
	if err := db.db.QueryRow("SELECT MAX(map_id) FROM artifact").Scan(&max); err != nil {
		return 0, err
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64) + 1, nil
}

// ForgetArtifacts removes every map record, used once the map files have
// been deleted.
func (db *JobDB) ForgetArtifacts() (int64, error) {
	result, err := db.db.Exec("DELETE FROM artifact")
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
