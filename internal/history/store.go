// Package history persists task records to SQLite so rolling statistics
// survive the process that produced them.
package history

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/and-other-tales/juno/internal/metrics"
)

//go:embed schema.sql
var schemaSQL string

// Store manages the SQLite task record history.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (creating if needed) the history database at dbPath.
// ":memory:" is supported for tests.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &Store{db: db, dbPath: dbPath}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append writes one task record under the given run id.
func (s *Store) Append(runID string, rec *metrics.TaskRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO task_records (
			run_id, task_id, team_name, agent_name, description,
			start_time, end_time, deadline, success, error_message,
			quality, task_size, tokens_used, agent_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.TaskID, rec.TeamName, rec.AgentName, rec.Description,
		encodeTime(rec.StartTime), encodeTime(rec.EndTime), encodeTime(rec.Deadline),
		rec.Success, rec.ErrorMessage,
		rec.Quality, rec.TaskSize, rec.TokensUsed, rec.AgentCount)
	if err != nil {
		return fmt.Errorf("append task record: %w", err)
	}
	return nil
}

// PatchQuality back-fills the quality score for every record of a task,
// mirroring the review step's single sanctioned late mutation.
func (s *Store) PatchQuality(taskID string, score float64) (int64, error) {
	res, err := s.db.Exec(`UPDATE task_records SET quality = ? WHERE task_id = ?`, score, taskID)
	if err != nil {
		return 0, fmt.Errorf("patch quality: %w", err)
	}
	return res.RowsAffected()
}

// Recent returns up to n of the most recent records, oldest first.
func (s *Store) Recent(n int) ([]*metrics.TaskRecord, error) {
	rows, err := s.db.Query(`
		SELECT task_id, team_name, agent_name, description,
		       start_time, end_time, deadline, success, error_message,
		       quality, task_size, tokens_used, agent_count
		FROM task_records ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent records: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	// Reverse into chronological order
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// ByTeam returns all records for a team, oldest first.
func (s *Store) ByTeam(team string) ([]*metrics.TaskRecord, error) {
	rows, err := s.db.Query(`
		SELECT task_id, team_name, agent_name, description,
		       start_time, end_time, deadline, success, error_message,
		       quality, task_size, tokens_used, agent_count
		FROM task_records WHERE team_name = ? ORDER BY id ASC`, team)
	if err != nil {
		return nil, fmt.Errorf("query team records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Count returns the total number of stored records.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM task_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

func scanRecords(rows *sql.Rows) ([]*metrics.TaskRecord, error) {
	var records []*metrics.TaskRecord
	for rows.Next() {
		rec := &metrics.TaskRecord{}
		var start, end, deadline int64
		if err := rows.Scan(
			&rec.TaskID, &rec.TeamName, &rec.AgentName, &rec.Description,
			&start, &end, &deadline, &rec.Success, &rec.ErrorMessage,
			&rec.Quality, &rec.TaskSize, &rec.TokensUsed, &rec.AgentCount,
		); err != nil {
			return nil, fmt.Errorf("scan task record: %w", err)
		}
		rec.StartTime = decodeTime(start)
		rec.EndTime = decodeTime(end)
		rec.Deadline = decodeTime(deadline)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// encodeTime stores timestamps as unix nanoseconds, with 0 for the zero
// time so "no deadline" round-trips.
func encodeTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func decodeTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
