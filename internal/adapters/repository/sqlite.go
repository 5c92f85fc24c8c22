package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/okian/dropout/internal/domain/model"
	"github.com/okian/dropout/pkg/logger"
	"github.com/okian/dropout/pkg/metrics"
)

const defaultBusyTimeout = 5 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS predictions (
	seq                       INTEGER PRIMARY KEY AUTOINCREMENT,
	id                        TEXT NOT NULL UNIQUE,
	calificaciones            REAL NOT NULL,
	asistencia                REAL NOT NULL,
	incidentes_comportamiento REAL NOT NULL,
	probabilidad              REAL NOT NULL,
	riesgo                    TEXT NOT NULL,
	model_version             TEXT NOT NULL,
	created_at                TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
`

const selectColumns = `SELECT id, calificaciones, asistencia, incidentes_comportamiento, probabilidad, riesgo, model_version, created_at FROM predictions`

// SQLiteStore is a Store backed by a single SQLite file.
type SQLiteStore struct {
	db          *sql.DB
	busyTimeout time.Duration
	log         logger.Logger
}

// OpenSQLite opens (creating if needed) the audit database at path.
// ":memory:" is accepted for tests.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{busyTimeout: defaultBusyTimeout, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL", path, s.busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpenStore, err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:" shared.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: create schema: %v", ErrOpenStore, err)
	}
	s.db = db
	s.log.Info(ctx, "audit store opened", logger.String("path", path))
	return s, nil
}

// Record inserts rec.
func (s *SQLiteStore) Record(ctx context.Context, rec model.PredictionRecord) error {
	start := time.Now()
	if rec.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRecord)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO predictions (id, calificaciones, asistencia, incidentes_comportamiento, probabilidad, riesgo, model_version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Features.Grades,
		rec.Features.Attendance,
		rec.Features.BehaviorIncidents,
		rec.Probability,
		string(rec.Tier),
		rec.ModelVersion,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		metrics.RecordAuditWriteError()
		metrics.RecordErrorByComponent("repository", "write")
		return fmt.Errorf("insert prediction %s: %w", rec.ID, err)
	}
	metrics.RecordAuditWrite()
	s.log.Debug(ctx, "prediction audited",
		logger.String("id", rec.ID),
		logger.Duration("latency", time.Since(start)),
	)
	return nil
}

// Recent returns up to n records, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]model.PredictionRecord, error) {
	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]model.PredictionRecord, 0, n)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate predictions: %w", err)
	}
	return out, nil
}

// Get returns the record with the given id or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (model.PredictionRecord, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.PredictionRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// Count returns the number of audited predictions.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count predictions: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (model.PredictionRecord, error) {
	var (
		rec       model.PredictionRecord
		tier      string
		createdAt string
	)
	err := row.Scan(
		&rec.ID,
		&rec.Features.Grades,
		&rec.Features.Attendance,
		&rec.Features.BehaviorIncidents,
		&rec.Probability,
		&tier,
		&rec.ModelVersion,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, err
	}
	if err != nil {
		return rec, fmt.Errorf("scan prediction: %w", err)
	}
	rec.Tier = model.RiskTier(tier)
	rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return rec, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	return rec, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
