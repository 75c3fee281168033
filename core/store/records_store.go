package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type LogRecord struct {
	ID              int64      `json:"id"`
	EventID         int64      `json:"event_id"`
	LogNo           string     `json:"log_no"`
	Occurrence      string     `json:"occurrence"`
	ActionTaken     string     `json:"action_taken"`
	Location        string     `json:"location"`
	Priority        string     `json:"priority"`
	OccurredAt      time.Time  `json:"occurred_at"`
	Category        string     `json:"category"`
	EscalationLevel int        `json:"escalation_level"`
	Locked          bool       `json:"locked"`
	LockedAt        *time.Time `json:"locked_at,omitempty"`
	LockedBy        *int64     `json:"locked_by,omitempty"`
	LoggedBy        int64      `json:"logged_by"`
	LoggedCallsign  string     `json:"logged_callsign"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type RecordFilter struct {
	EventID  int64
	Category string
	Priority string
	Search   string
	Limit    int
	Offset   int
}

type RecordsStore interface {
	CreateLogRecord(ctx context.Context, rec *LogRecord) (int64, error)
	GetLogRecord(ctx context.Context, id int64) (*LogRecord, error)
	GetLogRecordTx(ctx context.Context, tx *sql.Tx, id int64) (*LogRecord, error)
	ListLogRecords(ctx context.Context, filter RecordFilter) ([]LogRecord, error)
	UpdateLogRecordFieldTx(ctx context.Context, tx *sql.Tx, id int64, column string, value any) error
	LockLogRecord(ctx context.Context, id int64, userID int64) (*LogRecord, error)
}

// Columns the engine is allowed to touch through per-field updates. Anything
// outside this set is a system column and never a legal update target.
var mutableRecordColumns = map[string]struct{}{
	"occurrence":       {},
	"action_taken":     {},
	"location":         {},
	"priority":         {},
	"occurred_at":      {},
	"category":         {},
	"escalation_level": {},
}

const recordSelectColumns = `id, event_id, log_no, occurrence, action_taken, location, priority, occurred_at, category, escalation_level, locked, locked_at, locked_by, logged_by, logged_callsign, created_at, updated_at`

type recordsStore struct {
	db *DB
}

func NewRecordsStore(db *DB) RecordsStore {
	return &recordsStore{db: db}
}

func (s *recordsStore) CreateLogRecord(ctx context.Context, rec *LogRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(rec.LogNo) == "" {
		seq, err := s.nextLogNoSeqTx(ctx, tx, rec.EventID)
		if err != nil {
			tx.Rollback()
			return 0, err
		}
		rec.LogNo = fmt.Sprintf("LOG-%d-%04d", rec.EventID, seq)
	}
	if strings.TrimSpace(rec.Priority) == "" {
		rec.Priority = "medium"
	}
	if strings.TrimSpace(rec.Category) == "" {
		rec.Category = "other"
	}
	now := time.Now().UTC()
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = now
	}
	var id int64
	if err := tx.QueryRowContext(ctx, s.db.Rebind(`
		INSERT INTO log_records(event_id, log_no, occurrence, action_taken, location, priority, occurred_at, category, escalation_level, locked, locked_at, locked_by, logged_by, logged_callsign, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?) RETURNING id`),
		rec.EventID, rec.LogNo, strings.TrimSpace(rec.Occurrence), strings.TrimSpace(rec.ActionTaken), strings.TrimSpace(rec.Location), rec.Priority, rec.OccurredAt.UTC(), rec.Category, rec.EscalationLevel, rec.Locked, nullableTime(rec.LockedAt), nullableID(rec.LockedBy), rec.LoggedBy, strings.TrimSpace(rec.LoggedCallsign), now, now,
	).Scan(&id); err != nil {
		tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	rec.ID = id
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return id, nil
}

func (s *recordsStore) GetLogRecord(ctx context.Context, id int64) (*LogRecord, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT `+recordSelectColumns+` FROM log_records WHERE id=?`), id)
	return scanLogRecord(row)
}

func (s *recordsStore) GetLogRecordTx(ctx context.Context, tx *sql.Tx, id int64) (*LogRecord, error) {
	query := `SELECT ` + recordSelectColumns + ` FROM log_records WHERE id=?`
	if s.db.Driver() == "postgres" {
		query += " FOR UPDATE"
	}
	row := tx.QueryRowContext(ctx, s.db.Rebind(query), id)
	return scanLogRecord(row)
}

func (s *recordsStore) ListLogRecords(ctx context.Context, filter RecordFilter) ([]LogRecord, error) {
	var clauses []string
	var args []any
	if filter.EventID > 0 {
		clauses = append(clauses, "event_id=?")
		args = append(args, filter.EventID)
	}
	if filter.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, filter.Category)
	}
	if filter.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, filter.Priority)
	}
	if filter.Search != "" {
		clauses = append(clauses, "(occurrence LIKE ? OR action_taken LIKE ? OR location LIKE ? OR log_no LIKE ?)")
		q := "%" + filter.Search + "%"
		args = append(args, q, q, q, q)
	}
	query := `SELECT ` + recordSelectColumns + ` FROM log_records`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY occurred_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []LogRecord
	for rows.Next() {
		rec, err := scanLogRecordRow(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func (s *recordsStore) UpdateLogRecordFieldTx(ctx context.Context, tx *sql.Tx, id int64, column string, value any) error {
	if _, ok := mutableRecordColumns[column]; !ok {
		return fmt.Errorf("column %q is not updatable", column)
	}
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, s.db.Rebind(
		`UPDATE log_records SET `+column+`=?, updated_at=? WHERE id=?`),
		value, now, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *recordsStore) LockLogRecord(ctx context.Context, id int64, userID int64) (*LogRecord, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE log_records SET locked=?, locked_at=?, locked_by=?, updated_at=? WHERE id=? AND locked=?`),
		true, now, userID, now, id, false)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		existing, err := s.GetLogRecord(ctx, id)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, nil
		}
		return nil, ErrConflict
	}
	return s.GetLogRecord(ctx, id)
}

func (s *recordsStore) nextLogNoSeqTx(ctx context.Context, tx *sql.Tx, eventID int64) (int64, error) {
	var seq int64
	if err := tx.QueryRowContext(ctx, s.db.Rebind(`
		INSERT INTO log_no_counters(event_id, seq)
		VALUES(?,1)
		ON CONFLICT (event_id)
		DO UPDATE SET seq = log_no_counters.seq + 1
		RETURNING seq
	`), eventID).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLogRecord(row *sql.Row) (*LogRecord, error) {
	rec, err := scanLogRecordFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func scanLogRecordRow(rows *sql.Rows) (LogRecord, error) {
	return scanLogRecordFrom(rows)
}

func scanLogRecordFrom(row rowScanner) (LogRecord, error) {
	var rec LogRecord
	var lockedAt sql.NullTime
	var lockedBy sql.NullInt64
	if err := row.Scan(&rec.ID, &rec.EventID, &rec.LogNo, &rec.Occurrence, &rec.ActionTaken, &rec.Location, &rec.Priority, &rec.OccurredAt, &rec.Category, &rec.EscalationLevel, &rec.Locked, &lockedAt, &lockedBy, &rec.LoggedBy, &rec.LoggedCallsign, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return rec, err
	}
	if lockedAt.Valid {
		rec.LockedAt = &lockedAt.Time
	}
	if lockedBy.Valid {
		rec.LockedBy = &lockedBy.Int64
	}
	return rec, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
