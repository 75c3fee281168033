package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Revision is one immutable audit entry. Rows are only ever inserted;
// nothing in this store mutates or deletes them.
type Revision struct {
	ID           string          `json:"id"`
	RecordID     int64           `json:"record_id"`
	Seq          int             `json:"seq"`
	FieldChanged string          `json:"field_changed"`
	OldValue     json.RawMessage `json:"old_value"`
	NewValue     json.RawMessage `json:"new_value"`
	ChangeReason string          `json:"change_reason"`
	ChangeType   string          `json:"change_type"`
	ActorID      int64           `json:"actor_id"`
	ActorLabel   string          `json:"actor_label"`
	CreatedAt    time.Time       `json:"created_at"`
}

type RevisionsStore interface {
	AppendRevisionTx(ctx context.Context, tx *sql.Tx, rev *Revision) error
	NextRevisionSeqTx(ctx context.Context, tx *sql.Tx, recordID int64) (int, error)
	ListRevisions(ctx context.Context, recordID int64) ([]Revision, error)
	CountRevisions(ctx context.Context, recordID int64) (int, error)
	ListRevisedRecordIDs(ctx context.Context) ([]int64, error)
}

type revisionsStore struct {
	db *DB
}

func NewRevisionsStore(db *DB) RevisionsStore {
	return &revisionsStore{db: db}
}

// NextRevisionSeqTx allocates the next per-record sequence number through an
// upsert counter, which also serializes concurrent writers on the same record.
func (s *revisionsStore) NextRevisionSeqTx(ctx context.Context, tx *sql.Tx, recordID int64) (int, error) {
	var seq int
	if err := tx.QueryRowContext(ctx, s.db.Rebind(`
		INSERT INTO log_revision_counters(record_id, seq)
		VALUES(?,1)
		ON CONFLICT (record_id)
		DO UPDATE SET seq = log_revision_counters.seq + 1
		RETURNING seq
	`), recordID).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *revisionsStore) AppendRevisionTx(ctx context.Context, tx *sql.Tx, rev *Revision) error {
	if strings.TrimSpace(rev.ID) == "" {
		rev.ID = uuid.Must(uuid.NewV4()).String()
	}
	now := time.Now().UTC()
	if rev.CreatedAt.IsZero() {
		rev.CreatedAt = now
	}
	if len(rev.OldValue) == 0 {
		rev.OldValue = json.RawMessage("null")
	}
	if len(rev.NewValue) == 0 {
		rev.NewValue = json.RawMessage("null")
	}
	_, err := tx.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO log_revisions(id, record_id, seq, field_changed, old_value, new_value, change_reason, change_type, actor_id, actor_label, created_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?)`),
		rev.ID, rev.RecordID, rev.Seq, rev.FieldChanged, string(rev.OldValue), string(rev.NewValue), strings.TrimSpace(rev.ChangeReason), rev.ChangeType, rev.ActorID, rev.ActorLabel, rev.CreatedAt)
	return err
}

func (s *revisionsStore) ListRevisions(ctx context.Context, recordID int64) ([]Revision, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
		SELECT id, record_id, seq, field_changed, old_value, new_value, change_reason, change_type, actor_id, actor_label, created_at
		FROM log_revisions WHERE record_id=? ORDER BY seq ASC`), recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Revision
	for rows.Next() {
		var rev Revision
		var oldRaw, newRaw string
		if err := rows.Scan(&rev.ID, &rev.RecordID, &rev.Seq, &rev.FieldChanged, &oldRaw, &newRaw, &rev.ChangeReason, &rev.ChangeType, &rev.ActorID, &rev.ActorLabel, &rev.CreatedAt); err != nil {
			return nil, err
		}
		rev.OldValue = json.RawMessage(oldRaw)
		rev.NewValue = json.RawMessage(newRaw)
		res = append(res, rev)
	}
	return res, rows.Err()
}

func (s *revisionsStore) ListRevisedRecordIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT record_id FROM log_revisions ORDER BY record_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

func (s *revisionsStore) CountRevisions(ctx context.Context, recordID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT COUNT(*) FROM log_revisions WHERE record_id=?`), recordID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
