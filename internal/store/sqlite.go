package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ListLimit caps the listing window: only the newest sessions remain
// visible; older ones age out of the index.
const ListLimit = 50

// ErrNotFound is returned by Get and Update when no session exists under
// the given id. Callers treat it as absence, not failure.
var ErrNotFound = errors.New("session not found")

type Session struct {
	ID         string    `json:"id"`
	Transcript string    `json:"transcript"`
	Insights   string    `json:"insights"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Partial names the session fields an update may merge. Nil fields are
// left untouched.
type Partial struct {
	Transcript *string
	Insights   *string
}

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "earshot.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			transcript TEXT NOT NULL DEFAULT '',
			insights TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at)"); err != nil {
		return fmt.Errorf("create sessions index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Snapshot writes a consistent copy of the database to destPath. VACUUM
// INTO runs inside its own read transaction, so the copy is safe while
// writers are active. destPath must not already exist.
func (s *SQLiteStore) Snapshot(destPath string) error {
	if _, err := s.db.Exec(`VACUUM INTO ?`, destPath); err != nil {
		return fmt.Errorf("snapshot database: %w", err)
	}
	return nil
}

// Create allocates a fresh session with a unique id and empty transcript
// and insights. The session is visible to List immediately.
func (s *SQLiteStore) Create() (Session, error) {
	now := s.now().UTC()
	sess := Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.Exec(
		`INSERT INTO sessions(id, transcript, insights, created_at, updated_at) VALUES(?, '', '', ?, ?)`,
		sess.ID,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Session{}, fmt.Errorf("create session %s: %w", sess.ID, err)
	}
	return sess, nil
}

func (s *SQLiteStore) Get(id string) (Session, error) {
	row := s.db.QueryRow(
		`SELECT id, transcript, insights, created_at, updated_at FROM sessions WHERE id = ?`,
		id,
	)

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("query session %s: %w", id, err)
	}
	return sess, nil
}

// Update merges only the supplied fields into the session record and bumps
// UpdatedAt. It is a read-modify-write: concurrent updates to the same
// session race and the later write wins. That is the accepted contract for
// the single-writer-per-session usage pattern.
func (s *SQLiteStore) Update(id string, partial Partial) (Session, error) {
	sess, err := s.Get(id)
	if err != nil {
		return Session{}, err
	}

	if partial.Transcript != nil {
		sess.Transcript = *partial.Transcript
	}
	if partial.Insights != nil {
		sess.Insights = *partial.Insights
	}
	sess.UpdatedAt = s.now().UTC()

	res, err := s.db.Exec(
		`UPDATE sessions SET transcript = ?, insights = ?, updated_at = ? WHERE id = ?`,
		sess.Transcript,
		sess.Insights,
		sess.UpdatedAt.Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return Session{}, fmt.Errorf("update session %s: %w", id, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return Session{}, fmt.Errorf("update session rows affected: %w", err)
	}
	if rows == 0 {
		return Session{}, ErrNotFound
	}

	return sess, nil
}

// List returns up to ListLimit sessions, newest first.
func (s *SQLiteStore) List() ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT id, transcript, insights, created_at, updated_at
		 FROM sessions
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		ListLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]Session, 0, 16)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions rows: %w", err)
	}

	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var sess Session
	var createdAt, updatedAt string
	if err := row.Scan(&sess.ID, &sess.Transcript, &sess.Insights, &createdAt, &updatedAt); err != nil {
		return Session{}, err
	}

	parsedCreated, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Session{}, fmt.Errorf("parse created_at: %w", err)
	}
	sess.CreatedAt = parsedCreated

	parsedUpdated, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return Session{}, fmt.Errorf("parse updated_at: %w", err)
	}
	sess.UpdatedAt = parsedUpdated

	return sess, nil
}
