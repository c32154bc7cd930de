// store.go provides the typed access layer over the generations table.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sdserve/imagegen"
)

// DefaultHistoryLimit is the number of records returned when no limit is
// given.
const DefaultHistoryLimit = 50

// errNoDatabase guards Store methods called on a zero-value Store.
var errNoDatabase = errors.New("store has no database")

// GenerationRecord represents a row in the generations table: one
// generation attempt, completed or failed. Image bytes are never stored.
type GenerationRecord struct {
	ID             int64     `json:"id"`
	RequestID      string    `json:"request_id"`
	Prompt         string    `json:"prompt"`
	NegativePrompt string    `json:"negative_prompt,omitempty"`
	Seed           int64     `json:"seed"`
	Steps          int       `json:"steps"`
	Guidance       float64   `json:"guidance_scale"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	Scheduler      string    `json:"scheduler"`
	Device         string    `json:"device,omitempty"`
	DurationMS     int64     `json:"duration_ms"`
	Status         string    `json:"status"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store provides typed operations on the generations table. It satisfies
// imagegen.Recorder, so the generation service can persist attempts
// without knowing about SQL.
//
// Writes go through the AsyncWriter when one is configured and started,
// falling back to synchronous writes when the queue is full.
type Store struct {
	db          *Database
	asyncWriter *AsyncWriter
}

// NewStore creates a new Store. The asyncWriter parameter is optional;
// if nil, all writes are synchronous.
func NewStore(db *Database, asyncWriter *AsyncWriter) *Store {
	return &Store{
		db:          db,
		asyncWriter: asyncWriter,
	}
}

// NewAsyncStore creates a Store wired to its own background write queue.
// The returned writer is not started; call Start before serving and
// StopWithTimeout during shutdown so queued rows drain before the
// database closes.
func NewAsyncStore(db *Database) (*Store, *AsyncWriter) {
	s := &Store{db: db}
	s.asyncWriter = NewAsyncWriter(s.CreateAsyncWriteHandler())
	return s, s.asyncWriter
}

// RecordGeneration persists one generation attempt. Implements
// imagegen.Recorder.
func (s *Store) RecordGeneration(ctx context.Context, rec imagegen.Record) error {
	row := GenerationRecord{
		RequestID:      rec.RequestID,
		Prompt:         rec.Prompt,
		NegativePrompt: rec.NegativePrompt,
		Seed:           rec.Seed,
		Steps:          rec.Steps,
		Guidance:       rec.Guidance,
		Width:          rec.Width,
		Height:         rec.Height,
		Scheduler:      rec.Scheduler,
		Device:         rec.Device,
		DurationMS:     rec.Duration.Milliseconds(),
		Status:         rec.Status,
		ErrorMessage:   rec.ErrorMessage,
	}

	_, err := s.InsertGeneration(ctx, row)
	return err
}

// InsertGeneration writes one record. With a running AsyncWriter the row
// is queued and the returned ID is 0; a full queue falls back to a
// synchronous insert so no attempt is ever dropped.
func (s *Store) InsertGeneration(ctx context.Context, rec GenerationRecord) (int64, error) {
	if s.db == nil {
		return 0, errNoDatabase
	}

	query := `
		INSERT INTO generations (
			request_id, prompt, negative_prompt, seed, steps, guidance,
			width, height, scheduler, device, duration_ms, status,
			error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	args := []interface{}{
		rec.RequestID,
		rec.Prompt,
		nullString(rec.NegativePrompt),
		rec.Seed,
		rec.Steps,
		rec.Guidance,
		rec.Width,
		rec.Height,
		rec.Scheduler,
		nullString(rec.Device),
		rec.DurationMS,
		rec.Status,
		nullString(rec.ErrorMessage),
	}

	if s.asyncWriter != nil && s.asyncWriter.IsStarted() {
		if s.asyncWriter.Write(asyncInsertOp{query: query, args: args}) {
			return 0, nil
		}
		// Queue full or stopping; insert on the caller's goroutine.
	}

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert generation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return id, nil
}

// RecentGenerations retrieves the most recent generation records,
// ordered newest first. A non-positive limit uses DefaultHistoryLimit.
func (s *Store) RecentGenerations(ctx context.Context, limit int) ([]GenerationRecord, error) {
	if s.db == nil {
		return nil, errNoDatabase
	}

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := selectGenerations + `
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query generations: %w", err)
	}
	defer rows.Close()

	return scanGenerations(rows)
}

// GenerationsByRequestID retrieves the records for a single request,
// newest first.
func (s *Store) GenerationsByRequestID(ctx context.Context, requestID string) ([]GenerationRecord, error) {
	if s.db == nil {
		return nil, errNoDatabase
	}

	query := selectGenerations + `
		WHERE request_id = ?
		ORDER BY created_at DESC, id DESC`

	rows, err := s.db.Query(query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query generations: %w", err)
	}
	defer rows.Close()

	return scanGenerations(rows)
}

// CountGenerations returns the total count of generation records.
func (s *Store) CountGenerations(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, errNoDatabase
	}

	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM generations").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count generations: %w", err)
	}

	return count, nil
}

// selectGenerations is the shared column list for generation queries.
const selectGenerations = `
	SELECT id, request_id, prompt, COALESCE(negative_prompt, ''),
		   seed, steps, guidance, width, height, scheduler,
		   COALESCE(device, ''), duration_ms, status,
		   COALESCE(error_message, ''), created_at
	FROM generations`

// sqliteTimeLayout matches the text form CURRENT_TIMESTAMP stores.
const sqliteTimeLayout = "2006-01-02 15:04:05"

// scanGenerations reads all rows of a generation query.
func scanGenerations(rows *sql.Rows) ([]GenerationRecord, error) {
	var records []GenerationRecord
	for rows.Next() {
		var rec GenerationRecord
		var createdAt string

		err := rows.Scan(
			&rec.ID,
			&rec.RequestID,
			&rec.Prompt,
			&rec.NegativePrompt,
			&rec.Seed,
			&rec.Steps,
			&rec.Guidance,
			&rec.Width,
			&rec.Height,
			&rec.Scheduler,
			&rec.Device,
			&rec.DurationMS,
			&rec.Status,
			&rec.ErrorMessage,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan generation row: %w", err)
		}

		rec.CreatedAt, _ = time.Parse(sqliteTimeLayout, createdAt)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating generation rows: %w", err)
	}

	return records, nil
}

// asyncInsertOp carries a prepared insert through the write queue.
type asyncInsertOp struct {
	query string
	args  []interface{}
}

// CreateAsyncWriteHandler returns the WriteHandler that executes queued
// inserts against the store's connection.
func (s *Store) CreateAsyncWriteHandler() WriteHandler {
	return func(op WriteOperation) error {
		insertOp, ok := op.Data.(asyncInsertOp)
		if !ok {
			return fmt.Errorf("invalid operation type: expected asyncInsertOp")
		}

		_, err := s.db.Exec(insertOp.query, insertOp.args...)
		return err
	}
}

// nullString maps "" to NULL so empty optional fields do not store empty
// text.
func nullString(s string) interface{} {
	if s == "" {
		return sql.NullString{String: "", Valid: false}
	}
	return s
}
