// Package models contains shared data models used across the jobsync codebase.
package models

import (
	"context"
	"errors"
)

// Sentinel errors for queue adapter failures. A timeout is never reported as
// an unknown job.
var (
	ErrQueueUnavailable = errors.New("job queue unavailable")
	ErrQueueTimeout     = errors.New("job queue request timeout")
	ErrQueueProtocol    = errors.New("job queue protocol error")
)

// JobStatus is the queue's authoritative answer for a single job handle.
// Known is false when the queue has no record of the handle, either because
// the job completed and expired or because it never existed.
type JobStatus struct {
	Handle      string `json:"handle"`
	Known       bool   `json:"known"`
	Running     bool   `json:"running"`
	Numerator   int64  `json:"numerator"`
	Denominator int64  `json:"denominator"`
}

// QueueConnector opens sessions against the external job queue.
// Never talk to a queue implementation directly; always inject this interface.
type QueueConnector interface {
	// Connect establishes a session. Returns ErrQueueUnavailable when no
	// configured endpoint can be reached.
	Connect(ctx context.Context) (QueueSession, error)
	// Ping checks that the queue is reachable.
	Ping(ctx context.Context) error
	// Name returns the driver identifier (e.g., "gearman", "redis").
	Name() string
}

// QueueSession is a scoped connection to the queue. Callers must Close it on
// every exit path. A session is not safe for concurrent use.
type QueueSession interface {
	JobStatus(ctx context.Context, handle string) (JobStatus, error)
	Close() error
}
