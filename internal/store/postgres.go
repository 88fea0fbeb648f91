package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/jobsync/pkg/models"
)

const jobColumns = `id, handle, running, numerator, denominator, name, owner, created_at, updated_at`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrStorage, err)
	}
	return nil
}

func (s *PostgresStore) SelectRecent(ctx context.Context, q RecentQuery) ([]*models.JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	argIdx := 1

	if q.BeforeID > 0 {
		query += fmt.Sprintf(" WHERE id < $%d", argIdx)
		args = append(args, q.BeforeID)
		argIdx++
	}
	query += " ORDER BY id DESC"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, q.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: select recent jobs: %w", ErrStorage, err)
	}
	defer rows.Close()

	recs := []*models.JobRecord{}
	for rows.Next() {
		var j models.JobRecord
		if err := rows.Scan(&j.ID, &j.Handle, &j.Running, &j.Numerator, &j.Denominator,
			&j.Name, &j.Owner, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan job: %w", ErrStorage, err)
		}
		recs = append(recs, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate jobs: %w", ErrStorage, err)
	}
	return recs, nil
}

func (s *PostgresStore) SelectByID(ctx context.Context, id int64) (*models.JobRecord, error) {
	var j models.JobRecord
	err := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.Handle, &j.Running, &j.Numerator, &j.Denominator,
		&j.Name, &j.Owner, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get job: %w", ErrStorage, err)
	}
	return &j, nil
}

func (s *PostgresStore) Insert(ctx context.Context, rec *models.JobRecord) (*models.JobRecord, error) {
	var j models.JobRecord
	err := s.pool.QueryRow(ctx,
		`INSERT INTO jobs (handle, running, numerator, denominator, name, owner, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		 RETURNING `+jobColumns,
		rec.Handle, rec.Running, rec.Numerator, models.GuardDenominator(rec.Denominator), rec.Name, rec.Owner,
	).Scan(&j.ID, &j.Handle, &j.Running, &j.Numerator, &j.Denominator,
		&j.Name, &j.Owner, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrDuplicateHandle
		}
		return nil, fmt.Errorf("%w: insert job: %w", ErrStorage, err)
	}
	return &j, nil
}

func (s *PostgresStore) Update(ctx context.Context, id int64, opts ...UpdateOption) error {
	params := applyOptions(opts)
	if params.empty() {
		return nil
	}

	sets := []string{"updated_at = NOW()"}
	args := []any{id}
	argIdx := 2

	if params.Running != nil {
		sets = append(sets, fmt.Sprintf("running = $%d", argIdx))
		args = append(args, *params.Running)
		argIdx++
	}
	if params.Numerator != nil {
		sets = append(sets, fmt.Sprintf("numerator = $%d", argIdx))
		args = append(args, *params.Numerator)
		argIdx++
	}
	if params.Denominator != nil {
		sets = append(sets, fmt.Sprintf("denominator = $%d", argIdx))
		args = append(args, *params.Denominator)
		argIdx++
	}
	if params.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", argIdx))
		args = append(args, *params.Name)
		argIdx++
	}
	if params.Owner != nil {
		sets = append(sets, fmt.Sprintf("owner = $%d", argIdx))
		args = append(args, *params.Owner)
		argIdx++
	}

	// Zero rows affected means the record is gone; that is not an error.
	query := "UPDATE jobs SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: update job: %w", ErrStorage, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, c Criteria) (int64, error) {
	if c.empty() {
		return 0, ErrEmptyCriteria
	}

	var conditions []string
	var args []any
	argIdx := 1

	if c.ID != 0 {
		conditions = append(conditions, fmt.Sprintf("id = $%d", argIdx))
		args = append(args, c.ID)
		argIdx++
	}
	if c.Handle != "" {
		conditions = append(conditions, fmt.Sprintf("handle = $%d", argIdx))
		args = append(args, c.Handle)
		argIdx++
	}
	if c.Running != nil {
		conditions = append(conditions, fmt.Sprintf("running = $%d", argIdx))
		args = append(args, *c.Running)
		argIdx++
	}

	tag, err := s.pool.Exec(ctx, "DELETE FROM jobs WHERE "+strings.Join(conditions, " AND "), args...)
	if err != nil {
		return 0, fmt.Errorf("%w: delete jobs: %w", ErrStorage, err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs`)
	if err != nil {
		return 0, fmt.Errorf("%w: delete all jobs: %w", ErrStorage, err)
	}
	return tag.RowsAffected(), nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
