// Package audit records every evaluated command and its outcome in the
// audit_logs table.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Actions.
const (
	ActionCommand = "command"
	ActionScene   = "scene"
)

// Entity types.
const (
	EntityDevice = "device"
	EntityScene  = "scene"
)

// Outcomes.
const (
	OutcomeExecuted            = "executed"
	OutcomeFailed              = "failed"
	OutcomeDenied              = "denied"
	OutcomeConfirmationPending = "confirmation_required"
)

// timeFormat is fixed-width so created_at sorts as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Log is a single audit trail entry.
type Log struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	AdapterID  string         `json:"adapter_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Source     string         `json:"source"`
	Decision   string         `json:"decision,omitempty"`
	RiskLevel  string         `json:"risk_level,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Outcome    string         `json:"outcome"`
	Error      string         `json:"error,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Action     string
	EntityType string
	EntityID   string
	AdapterID  string
	Outcome    string
	Limit      int // default 50, max 200
	Offset     int
}

// ListResult is one page of logs, newest first.
type ListResult struct {
	Logs   []Log `json:"logs"`
	Total  int   `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// Repository stores audit logs.
type Repository interface {
	Create(ctx context.Context, log *Log) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository is the audit_logs table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Create inserts log, filling ID and CreatedAt when empty.
func (r *SQLiteRepository) Create(ctx context.Context, log *Log) error {
	if log.ID == "" {
		log.ID = "aud-" + uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = r.now().UTC()
	}

	var details *string
	if log.Details != nil {
		b, err := json.Marshal(log.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		s := string(b)
		details = &s
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, action, entity_type, entity_id, adapter_id, user_id, source,
		   decision, risk_level, reason, outcome, error, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.Action, log.EntityType,
		nullable(log.EntityID), nullable(log.AdapterID), nullable(log.UserID), log.Source,
		nullable(log.Decision), nullable(log.RiskLevel), nullable(log.Reason),
		log.Outcome, nullable(log.Error), details,
		log.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns logs matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var (
		conditions []string
		args       []any
	)
	for _, c := range []struct{ column, value string }{
		{"action", filter.Action},
		{"entity_type", filter.EntityType},
		{"entity_id", filter.EntityID},
		{"adapter_id", filter.AdapterID},
		{"outcome", filter.Outcome},
	} {
		if c.value != "" {
			conditions = append(conditions, c.column+" = ?")
			args = append(args, c.value)
		}
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	//nolint:gosec // WHERE is built from fixed column names with ? placeholders
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}

	query := `SELECT id, action, entity_type, entity_id, adapter_id, user_id, source,
	            decision, risk_level, reason, outcome, error, details, created_at
	          FROM audit_logs ` + where + ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	logs := []Log{}
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit logs: %w", err)
	}

	return &ListResult{Logs: logs, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func scanLog(rows *sql.Rows) (Log, error) {
	var (
		log                                                 Log
		entityID, adapterID, userID, decision, risk, reason sql.NullString
		errText, details                                    sql.NullString
		createdAt                                           string
	)
	if err := rows.Scan(&log.ID, &log.Action, &log.EntityType, &entityID, &adapterID, &userID, &log.Source,
		&decision, &risk, &reason, &log.Outcome, &errText, &details, &createdAt); err != nil {
		return Log{}, fmt.Errorf("scanning audit log: %w", err)
	}
	log.EntityID = entityID.String
	log.AdapterID = adapterID.String
	log.UserID = userID.String
	log.Decision = decision.String
	log.RiskLevel = risk.String
	log.Reason = reason.String
	log.Error = errText.String
	if details.Valid && details.String != "" {
		var m map[string]any
		if json.Unmarshal([]byte(details.String), &m) == nil {
			log.Details = m
		}
	}
	t, err := time.Parse(timeFormat, createdAt)
	if err != nil {
		return Log{}, fmt.Errorf("parsing audit log timestamp %q: %w", createdAt, err)
	}
	log.CreatedAt = t
	return log, nil
}
