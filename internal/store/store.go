package store

import (
	"context"
	"errors"

	"github.com/kiranshivaraju/jobsync/pkg/models"
)

var (
	ErrNotFound        = errors.New("resource not found")
	ErrDuplicateHandle = errors.New("job handle already tracked")
	ErrEmptyCriteria   = errors.New("delete criteria must not be empty")
	// ErrStorage marks every failure of the underlying database. The driver
	// error stays in the chain.
	ErrStorage = errors.New("storage error")
)

// Store is the data access interface for job records. All database operations go through here.
// Implementations must be safe for concurrent use.
type Store interface {
	Ping(ctx context.Context) error

	// SelectRecent returns records ordered by descending ID.
	SelectRecent(ctx context.Context, q RecentQuery) ([]*models.JobRecord, error)
	SelectByID(ctx context.Context, id int64) (*models.JobRecord, error)
	Insert(ctx context.Context, rec *models.JobRecord) (*models.JobRecord, error)
	// Update applies opts to the record with the given ID. Updating a record
	// that no longer exists is a silent no-op.
	Update(ctx context.Context, id int64, opts ...UpdateOption) error
	Delete(ctx context.Context, c Criteria) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// RecentQuery selects the most recent records. A Limit of zero or less
// returns the whole table. A positive BeforeID restricts the result to
// records with a smaller ID.
type RecentQuery struct {
	Limit    int
	BeforeID int64
}

// Criteria are equality filters combined with AND. At least one must be set.
type Criteria struct {
	ID      int64
	Handle  string
	Running *bool
}

func (c Criteria) empty() bool {
	return c.ID == 0 && c.Handle == "" && c.Running == nil
}

type updateParams struct {
	Running     *bool
	Numerator   *int64
	Denominator *int64
	Name        *string
	Owner       *string
}

func (p *updateParams) empty() bool {
	return p.Running == nil && p.Numerator == nil && p.Denominator == nil &&
		p.Name == nil && p.Owner == nil
}

type UpdateOption func(*updateParams)

func WithRunning(running bool) UpdateOption {
	return func(p *updateParams) {
		p.Running = &running
	}
}

// WithProgress sets both halves of the progress fraction.
func WithProgress(numerator, denominator int64) UpdateOption {
	return func(p *updateParams) {
		p.Numerator = &numerator
		p.Denominator = &denominator
	}
}

func WithNumerator(numerator int64) UpdateOption {
	return func(p *updateParams) {
		p.Numerator = &numerator
	}
}

func WithDenominator(denominator int64) UpdateOption {
	return func(p *updateParams) {
		p.Denominator = &denominator
	}
}

func WithName(name string) UpdateOption {
	return func(p *updateParams) {
		p.Name = &name
	}
}

func WithOwner(owner string) UpdateOption {
	return func(p *updateParams) {
		p.Owner = &owner
	}
}

func applyOptions(opts []UpdateOption) *updateParams {
	params := &updateParams{}
	for _, opt := range opts {
		opt(params)
	}
	return params
}
