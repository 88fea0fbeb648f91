// Package redisq reads job status from Redis hashes written by queue workers.
package redisq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/kiranshivaraju/jobsync/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Hash fields written by workers under <prefix>:<handle>.
const (
	fieldRunning     = "running"
	fieldNumerator   = "numerator"
	fieldDenominator = "denominator"
)

// Connector shares one Redis client across sessions.
type Connector struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

func NewConnector(client *redis.Client, prefix string, timeout time.Duration) *Connector {
	return &Connector{client: client, prefix: prefix, timeout: timeout}
}

func (c *Connector) Name() string { return "redis" }

func (c *Connector) Connect(ctx context.Context) (models.QueueSession, error) {
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}
	return &Session{c: c}, nil
}

func (c *Connector) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrQueueUnavailable, err)
	}
	return nil
}

// StatusKey returns the hash key holding the status of handle.
func (c *Connector) StatusKey(handle string) string {
	return c.prefix + ":" + handle
}

func (c *Connector) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Session is a view over the shared client. Close does not close the client.
type Session struct {
	c *Connector
}

func (s *Session) JobStatus(ctx context.Context, handle string) (models.JobStatus, error) {
	ctx, cancel := s.c.withTimeout(ctx)
	defer cancel()

	fields, err := s.c.client.HGetAll(ctx, s.c.StatusKey(handle)).Result()
	if err != nil {
		return models.JobStatus{}, classifyError(err)
	}
	if len(fields) == 0 {
		return models.JobStatus{Handle: handle}, nil
	}

	num, err := parseCount(fields[fieldNumerator])
	if err != nil {
		return models.JobStatus{}, err
	}
	den, err := parseCount(fields[fieldDenominator])
	if err != nil {
		return models.JobStatus{}, err
	}

	return models.JobStatus{
		Handle:      handle,
		Known:       true,
		Running:     parseFlag(fields[fieldRunning]),
		Numerator:   num,
		Denominator: den,
	}, nil
}

func (s *Session) Close() error { return nil }

func parseFlag(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func parseCount(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid progress value %q", models.ErrQueueProtocol, v)
	}
	return n, nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", models.ErrQueueTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", models.ErrQueueTimeout, err)
	}
	return fmt.Errorf("%w: %v", models.ErrQueueUnavailable, err)
}

var (
	_ models.QueueConnector = (*Connector)(nil)
	_ models.QueueSession   = (*Session)(nil)
)
