package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type Event struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Venue     string     `json:"venue,omitempty"`
	StartsAt  *time.Time `json:"starts_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type EventsStore interface {
	CreateEvent(ctx context.Context, ev *Event) (int64, error)
	GetEvent(ctx context.Context, id int64) (*Event, error)
}

type eventsStore struct {
	db *DB
}

func NewEventsStore(db *DB) EventsStore {
	return &eventsStore{db: db}
}

func (s *eventsStore) CreateEvent(ctx context.Context, ev *Event) (int64, error) {
	now := time.Now().UTC()
	var id int64
	if err := s.db.QueryRowContext(ctx, s.db.Rebind(`
		INSERT INTO events(name, venue, starts_at, created_at) VALUES(?,?,?,?) RETURNING id`),
		strings.TrimSpace(ev.Name), strings.TrimSpace(ev.Venue), nullableTime(ev.StartsAt), now,
	).Scan(&id); err != nil {
		return 0, err
	}
	ev.ID = id
	ev.CreatedAt = now
	return id, nil
}

func (s *eventsStore) GetEvent(ctx context.Context, id int64) (*Event, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`
		SELECT id, name, venue, starts_at, created_at FROM events WHERE id=?`), id)
	var ev Event
	var startsAt sql.NullTime
	if err := row.Scan(&ev.ID, &ev.Name, &ev.Venue, &startsAt, &ev.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if startsAt.Valid {
		ev.StartsAt = &startsAt.Time
	}
	return &ev, nil
}
