// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/rigrun-chatlink/internal/chat"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrRecordNotFound is returned when an exchange is not in the journal.
// Use errors.Is(err, ErrRecordNotFound) to check for this error.
var ErrRecordNotFound = &JournalError{Message: "exchange not found"}

// JournalError represents a journal-related error.
type JournalError struct {
	Message string
}

// Error implements the error interface.
func (e *JournalError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing journal errors.
func (e *JournalError) Is(target error) bool {
	t, ok := target.(*JournalError)
	return ok && e.Message == t.Message
}

// =============================================================================
// RECORD
// =============================================================================

// Record states.
const (
	StateStarting  = "starting"
	StateActive    = "active"
	StateCompleted = "completed"
	StateFailed    = "failed"
	StateCancelled = "cancelled"
)

// Record is one journaled exchange.
type Record struct {
	ID               string    `json:"id"`
	Model            string    `json:"model"`
	Prompt           string    `json:"prompt"`
	Message          string    `json:"message"` // composed request content as dispatched
	Fragments        int       `json:"fragments"`
	State            string    `json:"state"`
	Response         string    `json:"response"`        // full response, or partial text for failed/cancelled
	Error            string    `json:"error,omitempty"` // failure diagnostic, one cause per line
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	Chunks           int       `json:"chunks"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
}

// Duration returns how long the exchange ran, or zero while unfinished.
func (r *Record) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// =============================================================================
// JOURNAL
// =============================================================================

// writeTimeout bounds listener writes so a locked database cannot stall the
// exchange worker.
const writeTimeout = 5 * time.Second

// Journal records exchanges in SQLite. It implements chat.Listener and is
// safe for concurrent use.
type Journal struct {
	db     *sql.DB
	logger *zap.Logger

	mu     sync.Mutex
	chunks map[string]int
}

var _ chat.Listener = (*Journal)(nil)

// Option configures a Journal.
type Option func(*Journal)

// WithLogger sets the logger used for write failures.
func WithLogger(logger *zap.Logger) Option {
	return func(j *Journal) {
		if logger != nil {
			j.logger = logger
		}
	}
}

// OpenJournal opens or creates the journal database at path.
func OpenJournal(path string, opts ...Option) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	// A single connection also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	j := &Journal{
		db:     db,
		logger: zap.NewNop(),
		chunks: make(map[string]int),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// =============================================================================
// LISTENER
// =============================================================================

// ExchangeStarting inserts the exchange. It never vetoes.
func (j *Journal) ExchangeStarting(ev *chat.Starting) error {
	message := ""
	if ev.Message != nil {
		message = ev.Message.Content
	}
	j.exec("insert", ev.ID,
		`INSERT OR REPLACE INTO exchanges (id, model, prompt, message, fragments, state, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Model, ev.Prompt, message, len(ev.Fragments), StateStarting, ev.At.UnixNano())
	return nil
}

// ExchangeStarted records the message as dispatched, after any listener edits.
func (j *Journal) ExchangeStarted(ev *chat.Started) {
	j.exec("activate", ev.ExchangeID(),
		`UPDATE exchanges SET state = ?, message = ? WHERE id = ?`,
		StateActive, ev.UserMessage().Content, ev.ExchangeID())
}

// ResponseArriving counts chunks in memory; they are written with the outcome.
func (j *Journal) ResponseArriving(ev *chat.ResponseArriving) {
	j.mu.Lock()
	j.chunks[ev.ExchangeID()]++
	j.mu.Unlock()
}

// ResponseArrived records a completed exchange.
func (j *Journal) ResponseArrived(ev *chat.ResponseArrived) {
	id := ev.ExchangeID()
	j.exec("complete", id,
		`UPDATE exchanges SET state = ?, response = ?, prompt_tokens = ?, completion_tokens = ?,
		 chunks = ?, finished_at = ? WHERE id = ?`,
		StateCompleted, ev.Response, ev.Usage.PromptTokens, ev.Usage.CompletionTokens,
		j.takeChunks(id), ev.Time().UnixNano(), id)
}

// ExchangeFailed records a failed exchange with its diagnostic.
func (j *Journal) ExchangeFailed(ev *chat.Failed) {
	id := ev.ExchangeID()
	j.exec("fail", id,
		`UPDATE exchanges SET state = ?, response = ?, error = ?, chunks = ?, finished_at = ? WHERE id = ?`,
		StateFailed, ev.Partial, ev.Diagnostic(), j.takeChunks(id), ev.Time().UnixNano(), id)
}

// ExchangeCancelled records a cancelled or vetoed exchange.
func (j *Journal) ExchangeCancelled(ev *chat.Cancelled) {
	id := ev.ExchangeID()
	j.exec("cancel", id,
		`UPDATE exchanges SET state = ?, response = ?, chunks = ?, finished_at = ? WHERE id = ?`,
		StateCancelled, ev.Partial, j.takeChunks(id), ev.Time().UnixNano(), id)
}

func (j *Journal) takeChunks(id string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := j.chunks[id]
	delete(j.chunks, id)
	return n
}

func (j *Journal) exec(op, id, query string, args ...any) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if _, err := j.db.ExecContext(ctx, query, args...); err != nil {
		j.logger.Warn("journal write failed",
			zap.String("op", op),
			zap.String("exchange_id", id),
			zap.Error(err))
	}
}

// =============================================================================
// QUERIES
// =============================================================================

const selectColumns = `id, model, prompt, message, fragments, state, response, error,
	prompt_tokens, completion_tokens, chunks, started_at, finished_at`

// List returns up to limit exchanges, newest first. limit <= 0 means all.
func (j *Journal) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1
	}
	return j.query(ctx,
		`SELECT `+selectColumns+` FROM exchanges ORDER BY started_at DESC LIMIT ?`, limit)
}

// Search returns exchanges whose prompt or response contains query,
// case-insensitively for ASCII, newest first.
func (j *Journal) Search(ctx context.Context, query string, limit int) ([]Record, error) {
	if strings.TrimSpace(query) == "" {
		return j.List(ctx, limit)
	}
	if limit <= 0 {
		limit = -1
	}
	pattern := "%" + escapeLike(query) + "%"
	return j.query(ctx,
		`SELECT `+selectColumns+` FROM exchanges
		 WHERE prompt LIKE ? ESCAPE '\' OR response LIKE ? ESCAPE '\'
		 ORDER BY started_at DESC LIMIT ?`, pattern, pattern, limit)
}

// Get returns one exchange by id, or by a unique id prefix.
func (j *Journal) Get(ctx context.Context, id string) (*Record, error) {
	records, err := j.query(ctx,
		`SELECT `+selectColumns+` FROM exchanges WHERE id LIKE ? ESCAPE '\'
		 ORDER BY id = ? DESC, started_at DESC LIMIT 2`,
		escapeLike(id)+"%", id)
	if err != nil {
		return nil, err
	}
	switch len(records) {
	case 0:
		return nil, ErrRecordNotFound
	case 1:
		return &records[0], nil
	default:
		if records[0].ID == id {
			return &records[0], nil
		}
		return nil, fmt.Errorf("exchange id prefix %q is ambiguous", id)
	}
}

// Count returns the number of journaled exchanges.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exchanges`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count exchanges: %w", err)
	}
	return n, nil
}

// Delete removes one exchange.
func (j *Journal) Delete(ctx context.Context, id string) error {
	res, err := j.db.ExecContext(ctx, `DELETE FROM exchanges WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete exchange: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// Clear removes every exchange and returns how many were deleted.
func (j *Journal) Clear(ctx context.Context) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM exchanges`)
	if err != nil {
		return 0, fmt.Errorf("clear journal: %w", err)
	}
	return res.RowsAffected()
}

func (j *Journal) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.Model, &r.Prompt, &r.Message, &r.Fragments, &r.State,
			&r.Response, &r.Error, &r.PromptTokens, &r.CompletionTokens, &r.Chunks,
			&started, &finished); err != nil {
			return nil, fmt.Errorf("scan exchange: %w", err)
		}
		r.StartedAt = time.Unix(0, started)
		if finished != 0 {
			r.FinishedAt = time.Unix(0, finished)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return records, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
