package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/portfolio-assistant/internal/domain"
	"github.com/ashureev/portfolio-assistant/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	retry shared.RetryPolicy
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, retry: shared.DefaultRetryPolicy}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS visitors (
		visitor_id TEXT PRIMARY KEY,
		visits INTEGER NOT NULL DEFAULT 0,
		first_seen_at INTEGER NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS visit_sessions (
		session_id TEXT PRIMARY KEY,
		visitor_id TEXT NOT NULL,
		started_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_visit_sessions_visitor ON visit_sessions(visitor_id);

	CREATE TABLE IF NOT EXISTS contact_submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		visitor_id TEXT NOT NULL,
		sender_email TEXT NOT NULL,
		subject TEXT NOT NULL,
		status TEXT NOT NULL,
		failure_kind TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_contact_created ON contact_submissions(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetVisitor retrieves a visitor by ID.
func (s *SQLiteStore) GetVisitor(ctx context.Context, visitorID string) (*domain.Visitor, error) {
	query := `
		SELECT visitor_id, visits, first_seen_at, last_seen_at, created_at, updated_at
		FROM visitors WHERE visitor_id = ?`

	var v domain.Visitor
	var firstSeen, lastSeen, createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx, query, visitorID).Scan(
		&v.VisitorID, &v.Visits, &firstSeen, &lastSeen, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan visitor row: %w", err)
	}

	v.FirstSeenAt = time.Unix(firstSeen, 0)
	v.LastSeenAt = time.Unix(lastSeen, 0)
	v.CreatedAt = time.Unix(createdAt, 0)
	v.UpdatedAt = time.Unix(updatedAt, 0)
	return &v, nil
}

// UpsertVisitor creates or updates a visitor record. The visit tally is
// only written on insert; RecordVisit owns increments.
func (s *SQLiteStore) UpsertVisitor(ctx context.Context, v *domain.Visitor) error {
	query := `
	INSERT INTO visitors (visitor_id, visits, first_seen_at, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(visitor_id) DO UPDATE SET
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	return shared.RetryOnConflict(ctx, s.retry, "upsert visitor", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query,
			v.VisitorID, v.Visits,
			v.FirstSeenAt.Unix(), v.LastSeenAt.Unix(),
			v.CreatedAt.Unix(), v.UpdatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("upsert visitor: %w", err)
		}
		return nil
	})
}

// RecordVisit counts browserSessionID once and bumps the visitor tally.
func (s *SQLiteStore) RecordVisit(ctx context.Context, visitorID, browserSessionID string, at time.Time) (bool, error) {
	var counted bool
	err := shared.RetryOnConflict(ctx, s.retry, "record visit", func(ctx context.Context) error {
		var err error
		counted, err = s.recordVisitOnce(ctx, visitorID, browserSessionID, at)
		return err
	})
	return counted, err
}

func (s *SQLiteStore) recordVisitOnce(ctx context.Context, visitorID, browserSessionID string, at time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin visit tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Warn("failed to roll back visit tx", "error", rbErr)
		}
	}()

	ts := at.Unix()
	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO visit_sessions (session_id, visitor_id, started_at) VALUES (?, ?, ?)`,
		browserSessionID, visitorID, ts)
	if err != nil {
		return false, fmt.Errorf("insert visit session: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	counted := rows > 0
	increment := 0
	if counted {
		increment = 1
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO visitors (visitor_id, visits, first_seen_at, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(visitor_id) DO UPDATE SET
		visits = visitors.visits + ?,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`,
		visitorID, increment, ts, ts, ts, ts, increment)
	if err != nil {
		return false, fmt.Errorf("update visitor tally: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit visit tx: %w", err)
	}
	return counted, nil
}

// VisitCount returns the number of counted browser sessions.
func (s *SQLiteStore) VisitCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM visit_sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count visits: %w", err)
	}
	return n, nil
}

// RecordContact stores a contact delivery outcome and sets sub.ID.
func (s *SQLiteStore) RecordContact(ctx context.Context, sub *domain.ContactSubmission) error {
	query := `
	INSERT INTO contact_submissions (visitor_id, sender_email, subject, status, failure_kind, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	var failureKind any
	if sub.FailureKind != "" {
		failureKind = sub.FailureKind
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}

	return shared.RetryOnConflict(ctx, s.retry, "record contact", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, query,
			sub.VisitorID, sub.SenderEmail, sub.Subject,
			string(sub.Status), failureKind, sub.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("insert contact submission: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("contact submission id: %w", err)
		}
		sub.ID = id
		return nil
	})
}

// RecentContacts returns the latest contact outcomes, newest first.
func (s *SQLiteStore) RecentContacts(ctx context.Context, limit int) ([]domain.ContactSubmission, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, visitor_id, sender_email, subject, status, failure_kind, created_at
		FROM contact_submissions ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query contact submissions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close contact rows", "error", closeErr)
		}
	}()

	var out []domain.ContactSubmission
	for rows.Next() {
		var sub domain.ContactSubmission
		var status string
		var failureKind sql.NullString
		var createdAt int64
		if err := rows.Scan(&sub.ID, &sub.VisitorID, &sub.SenderEmail, &sub.Subject,
			&status, &failureKind, &createdAt); err != nil {
			return nil, fmt.Errorf("scan contact submission: %w", err)
		}
		sub.Status = domain.ContactStatus(status)
		sub.FailureKind = failureKind.String
		sub.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contact submissions: %w", err)
	}
	return out, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
