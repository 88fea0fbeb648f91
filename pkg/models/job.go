package models

import (
	"time"
)

// JobRecord is the locally persisted view of a job submitted to the queue.
// Progress fields are kept in sync with the queue by the reconciler; Name and
// Owner are descriptive payload and never touched by reconciliation.
type JobRecord struct {
	ID          int64     `db:"id"          json:"id"`
	Handle      string    `db:"handle"      json:"handle"`
	Running     bool      `db:"running"     json:"running"`
	Numerator   int64     `db:"numerator"   json:"numerator"`
	Denominator int64     `db:"denominator" json:"denominator"`
	Name        string    `db:"name"        json:"name"`
	Owner       string    `db:"owner"       json:"owner"`
	CreatedAt   time.Time `db:"created_at"  json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"  json:"updated_at"`
}

// Percent returns the progress of the job in the range [0, 100].
func (j *JobRecord) Percent() float64 {
	den := GuardDenominator(j.Denominator)
	if j.Numerator <= 0 {
		return 0
	}
	p := float64(j.Numerator) / float64(den) * 100
	if p > 100 {
		return 100
	}
	return p
}

// GuardDenominator substitutes 1 for a non-positive denominator so that a
// persisted progress fraction can always be divided out.
func GuardDenominator(d int64) int64 {
	if d <= 0 {
		return 1
	}
	return d
}

// RefreshStatus records the outcome of the most recent reconciliation pass.
type RefreshStatus struct {
	At       time.Time `json:"at"`
	OK       bool      `json:"ok"`
	Checked  int       `json:"checked"`
	Updated  int       `json:"updated"`
	Deleted  int       `json:"deleted"`
	Failed   int       `json:"failed"`
	Error    string    `json:"error,omitempty"`
	Duration int64     `json:"duration_ms"`
}
