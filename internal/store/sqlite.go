package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/jobsync/pkg/models"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// SQLiteStore is a SQLite-backed implementation of Store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite database at dsn and applies the schema.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// In-memory databases are per-connection; keep a single connection so
	// the schema and every query see the same data.
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrStorage, err)
	}
	return nil
}

func (s *SQLiteStore) SelectRecent(ctx context.Context, q RecentQuery) ([]*models.JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any

	if q.BeforeID > 0 {
		query += " WHERE id < ?"
		args = append(args, q.BeforeID)
	}
	query += " ORDER BY id DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: select recent jobs: %w", ErrStorage, err)
	}
	defer rows.Close()

	recs := []*models.JobRecord{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan job: %w", ErrStorage, err)
		}
		recs = append(recs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate jobs: %w", ErrStorage, err)
	}
	return recs, nil
}

func (s *SQLiteStore) SelectByID(ctx context.Context, id int64) (*models.JobRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get job: %w", ErrStorage, err)
	}
	return j, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, rec *models.JobRecord) (*models.JobRecord, error) {
	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO jobs (handle, running, numerator, denominator, name, owner, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING `+jobColumns,
		rec.Handle, rec.Running, rec.Numerator, models.GuardDenominator(rec.Denominator),
		rec.Name, rec.Owner, now, now)
	j, err := scanJob(row)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, ErrDuplicateHandle
		}
		return nil, fmt.Errorf("%w: insert job: %w", ErrStorage, err)
	}
	return j, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id int64, opts ...UpdateOption) error {
	params := applyOptions(opts)
	if params.empty() {
		return nil
	}

	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if params.Running != nil {
		sets = append(sets, "running = ?")
		args = append(args, *params.Running)
	}
	if params.Numerator != nil {
		sets = append(sets, "numerator = ?")
		args = append(args, *params.Numerator)
	}
	if params.Denominator != nil {
		sets = append(sets, "denominator = ?")
		args = append(args, *params.Denominator)
	}
	if params.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *params.Name)
	}
	if params.Owner != nil {
		sets = append(sets, "owner = ?")
		args = append(args, *params.Owner)
	}
	args = append(args, id)

	query := "UPDATE jobs SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: update job: %w", ErrStorage, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, c Criteria) (int64, error) {
	if c.empty() {
		return 0, ErrEmptyCriteria
	}

	var conditions []string
	var args []any
	if c.ID != 0 {
		conditions = append(conditions, "id = ?")
		args = append(args, c.ID)
	}
	if c.Handle != "" {
		conditions = append(conditions, "handle = ?")
		args = append(args, c.Handle)
	}
	if c.Running != nil {
		conditions = append(conditions, "running = ?")
		args = append(args, *c.Running)
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM jobs WHERE "+strings.Join(conditions, " AND "), args...)
	if err != nil {
		return 0, fmt.Errorf("%w: delete jobs: %w", ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %w", ErrStorage, err)
	}
	return n, nil
}

func (s *SQLiteStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs`)
	if err != nil {
		return 0, fmt.Errorf("%w: delete all jobs: %w", ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %w", ErrStorage, err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.JobRecord, error) {
	var j models.JobRecord
	if err := row.Scan(&j.ID, &j.Handle, &j.Running, &j.Numerator, &j.Denominator,
		&j.Name, &j.Owner, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

func isSQLiteUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

var _ Store = (*SQLiteStore)(nil)
