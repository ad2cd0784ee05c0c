// Package journal persists every supervisor command and gate transition
// to SQLite so the status API can show what the daemon did and why.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Page size limits for List queries.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Entry is one command issued to a supervised service.
type Entry struct {
	ID      string `json:"id"`
	Service string `json:"service"`
	Command string `json:"command"`
	// Source is the binding or gate that issued the command.
	Source    string    `json:"source"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// GateTransition is one edge of a condition gate.
type GateTransition struct {
	ID        string    `json:"id"`
	Gate      string    `json:"gate"`
	Active    bool      `json:"active"`
	Reasons   []string  `json:"reasons"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter controls which entries List returns.
type Filter struct {
	Service string // optional
	Command string // optional: up, down, restart
	Source  string // optional
	Limit   int    // default 50, max 200
	Offset  int
}

// ListResult is a page of journal entries.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores journal records.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	CreateGateTransition(ctx context.Context, g *GateTransition) error
	ListGateTransitions(ctx context.Context, gate string, limit int) ([]GateTransition, error)
}

// SQLiteRepository is the Repository backed by the command_journal and
// gate_transitions tables.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing journal timestamp %q: %w", s, err)
	}
	return t, nil
}

// Create inserts e. ID and CreatedAt are filled in when empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = "cmd-" + uuid.NewString()[:8]
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_journal (id, service, command, source, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Service, e.Command, e.Source,
		nullableString(e.Error),
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}
	return nil
}

// List returns entries matching filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	filter.Limit = clampLimit(filter.Limit)
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Service != "" {
		conditions = append(conditions, "service = ?")
		args = append(args, filter.Service)
	}
	if filter.Command != "" {
		conditions = append(conditions, "command = ?")
		args = append(args, filter.Command)
	}
	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, filter.Source)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM command_journal " + where //nolint:gosec // WHERE built from fixed conditions
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting journal entries: %w", err)
	}

	query := "SELECT id, service, command, source, error, created_at FROM command_journal " + //nolint:gosec // WHERE built from fixed conditions
		where + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var errText sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Service, &e.Command, &e.Source, &errText, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		e.Error = errText.String
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// CreateGateTransition inserts g. ID and CreatedAt are filled in when empty.
func (r *SQLiteRepository) CreateGateTransition(ctx context.Context, g *GateTransition) error {
	if g.ID == "" {
		g.ID = "gate-" + uuid.NewString()[:8]
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	reasons, err := json.Marshal(g.Reasons)
	if err != nil {
		return fmt.Errorf("marshalling gate reasons: %w", err)
	}

	active := 0
	if g.Active {
		active = 1
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO gate_transitions (id, gate, active, reasons, created_at) VALUES (?, ?, ?, ?, ?)`,
		g.ID, g.Gate, active, string(reasons), g.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting gate transition: %w", err)
	}
	return nil
}

// ListGateTransitions returns the latest transitions, optionally for one gate.
func (r *SQLiteRepository) ListGateTransitions(ctx context.Context, gate string, limit int) ([]GateTransition, error) {
	query := "SELECT id, gate, active, reasons, created_at FROM gate_transitions"
	var args []any
	if gate != "" {
		query += " WHERE gate = ?"
		args = append(args, gate)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, clampLimit(limit))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying gate transitions: %w", err)
	}
	defer rows.Close()

	out := []GateTransition{}
	for rows.Next() {
		var g GateTransition
		var active int
		var reasons sql.NullString
		var createdAt string
		if err := rows.Scan(&g.ID, &g.Gate, &active, &reasons, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning gate transition: %w", err)
		}
		g.Active = active != 0
		if reasons.Valid && reasons.String != "" {
			if err := json.Unmarshal([]byte(reasons.String), &g.Reasons); err != nil {
				return nil, fmt.Errorf("decoding gate reasons: %w", err)
			}
		}
		if g.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating gate transitions: %w", err)
	}
	return out, nil
}

// Prune deletes commands and gate transitions recorded before cutoff and
// returns how many rows went.
func (r *SQLiteRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("pruning journal: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	before := cutoff.UTC().Format(timeLayout)
	var total int64
	for _, table := range []string{"command_journal", "gate_transitions"} {
		res, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE created_at < ?", before) //nolint:gosec // fixed table names
		if err != nil {
			return 0, fmt.Errorf("pruning %s: %w", table, err)
		}
		n, _ := res.RowsAffected() //nolint:errcheck // sqlite always reports it
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("pruning journal: %w", err)
	}
	return total, nil
}
