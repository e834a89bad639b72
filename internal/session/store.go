package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"autoconnect/pkg/db"
)

type PGStore struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{db: pool, now: time.Now}
}

func (s *PGStore) Create(ctx context.Context, sess *Session) error {
	user, err := json.Marshal(sess.User)
	if err != nil {
		return err
	}
	var search []byte
	if sess.Search != nil {
		if search, err = json.Marshal(sess.Search); err != nil {
			return err
		}
	}
	// The user's stale sessions go in the same transaction as the new one.
	return db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1 AND expires_at <= $2`, sess.User.ID, s.now()); err != nil {
			return err
		}
		const q = `
INSERT INTO sessions (id, user_id, user_data, search, created_at, expires_at)
VALUES ($1, $2, $3::jsonb, $4::jsonb, $5, $6)
`
		_, err := tx.Exec(ctx, q, sess.ID, sess.User.ID, string(user), nullableJSON(search), sess.CreatedAt, sess.ExpiresAt)
		return err
	})
}

func (s *PGStore) Get(ctx context.Context, id string) (*Session, error) {
	const q = `
SELECT id::text, user_data, search, created_at, expires_at
FROM sessions
WHERE id = $1 AND expires_at > $2
`
	var sess Session
	var user, search []byte
	err := s.db.QueryRow(ctx, q, id, s.now()).Scan(&sess.ID, &user, &search, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(user, &sess.User); err != nil {
		return nil, err
	}
	if len(search) > 0 {
		sess.Search = &Search{}
		if err := json.Unmarshal(search, sess.Search); err != nil {
			return nil, err
		}
	}
	return &sess, nil
}

func (s *PGStore) SaveSearch(ctx context.Context, id string, search *Search) error {
	var b []byte
	if search != nil {
		var err error
		if b, err = json.Marshal(search); err != nil {
			return err
		}
	}
	tag, err := s.db.Exec(ctx, `UPDATE sessions SET search = $2::jsonb WHERE id = $1 AND expires_at > $3`, id, nullableJSON(b), s.now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

func (s *PGStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nullableJSON(b []byte) *string {
	if b == nil {
		return nil
	}
	s := string(b)
	return &s
}

// MemoryStore keeps sessions in process. Sessions are lost on restart.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]Session
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Session), now: time.Now}
}

func (m *MemoryStore) Create(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[s.ID] = clone(s)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok || s.Expired(m.now()) {
		return nil, ErrNotFound
	}
	out := clone(&s)
	return &out, nil
}

func (m *MemoryStore) SaveSearch(ctx context.Context, id string, search *Search) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok || s.Expired(m.now()) {
		return ErrNotFound
	}
	if search != nil {
		cp := *search
		s.Search = &cp
	} else {
		s.Search = nil
	}
	m.items[id] = s
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

func (m *MemoryStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.items {
		if s.Expired(now) {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}

func clone(s *Session) Session {
	out := *s
	if s.Search != nil {
		cp := *s.Search
		out.Search = &cp
	}
	return out
}
