package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name,omitempty"`
	Callsign  string    `json:"callsign,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// DisplayLabel is the human-readable label frozen into revisions at write
// time. Labels resolved later may differ; history keeps what was true then.
func (u *User) DisplayLabel() string {
	if u == nil {
		return ""
	}
	if strings.TrimSpace(u.FullName) != "" {
		if strings.TrimSpace(u.Callsign) != "" {
			return u.FullName + " (" + u.Callsign + ")"
		}
		return u.FullName
	}
	return u.Username
}

type UsersStore interface {
	CreateUser(ctx context.Context, u *User) (int64, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByToken(ctx context.Context, token string) (*User, error)
	SaveToken(ctx context.Context, userID int64, token string) error
	AssignEventRole(ctx context.Context, userID, eventID int64, role string) error
	ListEventRoles(ctx context.Context, userID, eventID int64) ([]string, error)
}

type usersStore struct {
	db *DB
}

func NewUsersStore(db *DB) UsersStore {
	return &usersStore{db: db}
}

func (s *usersStore) CreateUser(ctx context.Context, u *User) (int64, error) {
	now := time.Now().UTC()
	var id int64
	if err := s.db.QueryRowContext(ctx, s.db.Rebind(`
		INSERT INTO users(username, full_name, callsign, active, created_at)
		VALUES(?,?,?,?,?) RETURNING id`),
		strings.TrimSpace(u.Username), strings.TrimSpace(u.FullName), strings.TrimSpace(u.Callsign), u.Active, now,
	).Scan(&id); err != nil {
		return 0, err
	}
	u.ID = id
	u.CreatedAt = now
	return id, nil
}

func (s *usersStore) GetUser(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`
		SELECT id, username, full_name, callsign, active, created_at FROM users WHERE id=?`), id)
	return scanUser(row)
}

func (s *usersStore) GetUserByToken(ctx context.Context, token string) (*User, error) {
	digest := hashToken(token)
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`
		SELECT u.id, u.username, u.full_name, u.callsign, u.active, u.created_at
		FROM users u JOIN api_tokens t ON t.user_id = u.id
		WHERE t.token_sha256=?`), digest)
	return scanUser(row)
}

func (s *usersStore) SaveToken(ctx context.Context, userID int64, token string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO api_tokens(token_sha256, user_id, created_at) VALUES(?,?,?)`),
		hashToken(token), userID, time.Now().UTC())
	return err
}

func (s *usersStore) AssignEventRole(ctx context.Context, userID, eventID int64, role string) error {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return errors.New("role required")
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO user_event_roles(user_id, event_id, role) VALUES(?,?,?)
		ON CONFLICT (user_id, event_id, role) DO NOTHING`),
		userID, eventID, role)
	return err
}

func (s *usersStore) ListEventRoles(ctx context.Context, userID, eventID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
		SELECT role FROM user_event_roles WHERE user_id=? AND event_id=? ORDER BY role ASC`),
		userID, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		res = append(res, role)
	}
	return res, rows.Err()
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.Callsign, &u.Active, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}
