package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pevans/threadmood"
	"github.com/pevans/threadmood/postdate"
	"github.com/pevans/threadmood/report"
	"github.com/pevans/threadmood/scraper"
)

// Custom errors for run history operations
var (
	ErrRunNotFound   = errors.New("run not found")
	ErrDuplicateRun  = errors.New("run with this ID already exists")
	ErrInvalidStatus = errors.New("status must be succeeded or failed")
)

// Run statuses
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// RunStore keeps a history of scrape runs and their aggregated rows in
// SQLite.
type RunStore struct {
	db *sql.DB
}

// Run is one recorded invocation of the scraper.
type Run struct {
	RunID        uuid.UUID             `json:"run_id"`
	ThreadURL    string                `json:"thread_url"`
	Status       string                `json:"status"` // "succeeded", "failed"
	Pages        int                   `json:"pages"`
	Posts        int                   `json:"posts"`
	Skipped      int                   `json:"skipped"`
	Dates        int                   `json:"dates"`
	OutputPath   *string               `json:"output_path,omitempty"`
	Error        *string               `json:"error,omitempty"`
	ThreadConfig *scraper.ThreadConfig `json:"thread_config,omitempty"`
	StartedAt    time.Time             `json:"started_at"`
	FinishedAt   time.Time             `json:"finished_at"`
}

// Succeeded returns true if the run completed and wrote a report.
func (r *Run) Succeeded() bool {
	return r.Status == StatusSucceeded
}

// Duration returns how long the run took.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunFilter represents filtering options for listing runs.
type RunFilter struct {
	ThreadURL *string // Filter by thread URL
	Status    *string // Filter by status
	Limit     int     // Pagination limit
	Offset    int     // Pagination offset
}

// NewRunFromResult builds a succeeded run record from a finished result.
func NewRunFromResult(result *threadmood.Result, config *scraper.ThreadConfig, outputPath string) *Run {
	run := &Run{
		RunID:        result.RunID,
		ThreadURL:    result.Thread.URL,
		Status:       StatusSucceeded,
		Pages:        result.Pages,
		Posts:        report.TotalPosts(result.Rows),
		Skipped:      result.Skipped,
		Dates:        len(result.Rows),
		ThreadConfig: config,
		StartedAt:    result.StartedAt,
		FinishedAt:   result.FinishedAt,
	}
	if outputPath != "" {
		run.OutputPath = &outputPath
	}
	return run
}

// NewFailedRun builds a failed run record.
func NewFailedRun(threadURL string, config *scraper.ThreadConfig, startedAt, finishedAt time.Time, runErr error) *Run {
	message := runErr.Error()
	return &Run{
		RunID:        uuid.New(),
		ThreadURL:    threadURL,
		Status:       StatusFailed,
		Error:        &message,
		ThreadConfig: config,
		StartedAt:    startedAt,
		FinishedAt:   finishedAt,
	}
}

// NewRunStore creates a new run store with the given database path.
func NewRunStore(dbPath string) (*RunStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &RunStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the runs and run_rows tables if they don't exist.
func (s *RunStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		thread_url TEXT NOT NULL,
		status TEXT NOT NULL,
		pages INTEGER NOT NULL DEFAULT 0,
		posts INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		dates INTEGER NOT NULL DEFAULT 0,
		output_path TEXT,
		error TEXT,
		thread_config TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_thread_url ON runs(thread_url);

	CREATE TABLE IF NOT EXISTS run_rows (
		run_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		date TEXT NOT NULL,
		score REAL NOT NULL,
		posts INTEGER NOT NULL,
		PRIMARY KEY (run_id, position)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// RecordRun stores a run and its rows in one transaction. Rows keep the
// order they are given in.
func (s *RunStore) RecordRun(run *Run, rows []report.Row) error {
	if run.Status != StatusSucceeded && run.Status != StatusFailed {
		return ErrInvalidStatus
	}

	// Serialize thread_config to JSON if present
	var threadConfigJSON *string
	if run.ThreadConfig != nil {
		data, err := json.Marshal(run.ThreadConfig)
		if err != nil {
			return fmt.Errorf("failed to marshal thread_config: %w", err)
		}
		jsonStr := string(data)
		threadConfigJSON = &jsonStr
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO runs (
			run_id, thread_url, status, pages, posts, skipped, dates,
			output_path, error, thread_config, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.Exec(query,
		run.RunID.String(),
		run.ThreadURL,
		run.Status,
		run.Pages,
		run.Posts,
		run.Skipped,
		run.Dates,
		run.OutputPath,
		run.Error,
		threadConfigJSON,
		formatTime(&run.StartedAt),
		formatTime(&run.FinishedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrDuplicateRun
		}
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO run_rows (run_id, position, date, score, posts) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare row insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		if _, err := stmt.Exec(run.RunID.String(), i, row.Date.ISO(), row.Score, row.Posts); err != nil {
			return fmt.Errorf("failed to insert row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	return nil
}

// GetRun retrieves a run by ID.
func (s *RunStore) GetRun(runID uuid.UUID) (*Run, error) {
	query := `
		SELECT run_id, thread_url, status, pages, posts, skipped, dates,
		       output_path, error, thread_config, started_at, finished_at
		FROM runs
		WHERE run_id = ?
	`

	run, err := scanRun(s.db.QueryRow(query, runID.String()))
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	return run, nil
}

// ListRuns lists runs, newest first, with optional filtering.
func (s *RunStore) ListRuns(filter RunFilter) ([]Run, error) {
	// Build query with WHERE clause based on filter
	query := `
		SELECT run_id, thread_url, status, pages, posts, skipped, dates,
		       output_path, error, thread_config, started_at, finished_at
		FROM runs
	`

	var whereClauses []string
	var args []any

	if filter.ThreadURL != nil {
		whereClauses = append(whereClauses, "thread_url = ?")
		args = append(args, *filter.ThreadURL)
	}

	if filter.Status != nil {
		whereClauses = append(whereClauses, "status = ?")
		args = append(args, *filter.Status)
	}

	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}

	query += " ORDER BY started_at DESC"

	// SQLite only accepts OFFSET after a LIMIT
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	} else if filter.Offset > 0 {
		query += " LIMIT -1"
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, nil
}

// GetRows returns the aggregated rows of a run in their recorded order.
func (s *RunStore) GetRows(runID uuid.UUID) ([]report.Row, error) {
	if _, err := s.GetRun(runID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		"SELECT date, score, posts FROM run_rows WHERE run_id = ? ORDER BY position",
		runID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rows.Close()

	result := []report.Row{}
	for rows.Next() {
		var dateStr string
		var row report.Row
		if err := rows.Scan(&dateStr, &row.Score, &row.Posts); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row.Date, err = postdate.ParseISO(dateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse row date: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return result, nil
}

// DeleteRun deletes a run and its rows.
func (s *RunStore) DeleteRun(runID uuid.UUID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec("DELETE FROM runs WHERE run_id = ?", runID.String())
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrRunNotFound
	}

	if _, err := tx.Exec("DELETE FROM run_rows WHERE run_id = ?", runID.String()); err != nil {
		return fmt.Errorf("failed to delete run rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}

	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRun parses one runs row. sql.ErrNoRows is returned unwrapped.
func scanRun(scanner rowScanner) (*Run, error) {
	var runIDStr, threadURL, status, startedAtStr, finishedAtStr string
	var pages, posts, skipped, dates int
	var outputPath, runError, threadConfigJSON sql.NullString

	err := scanner.Scan(
		&runIDStr, &threadURL, &status, &pages, &posts, &skipped, &dates,
		&outputPath, &runError, &threadConfigJSON, &startedAtStr, &finishedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	runID, err := uuid.Parse(runIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse run ID: %w", err)
	}

	run := &Run{
		RunID:      runID,
		ThreadURL:  threadURL,
		Status:     status,
		Pages:      pages,
		Posts:      posts,
		Skipped:    skipped,
		Dates:      dates,
		StartedAt:  parseTime(startedAtStr),
		FinishedAt: parseTime(finishedAtStr),
	}

	// Parse optional strings
	if outputPath.Valid {
		run.OutputPath = &outputPath.String
	}
	if runError.Valid {
		run.Error = &runError.String
	}

	// Parse thread_config JSON
	if threadConfigJSON.Valid {
		var config scraper.ThreadConfig
		if err := json.Unmarshal([]byte(threadConfigJSON.String), &config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal thread_config: %w", err)
		}
		run.ThreadConfig = &config
	}

	return run, nil
}

// Helper functions for time formatting
func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	// Strip monotonic clock for consistent storage and comparisons
	return t.Truncate(0).UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	// Try RFC3339Nano first, fall back to RFC3339 for compatibility
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}
