// Package gearman implements the job queue ports over the Gearman binary
// protocol. Only the admin-free status calls are used.
package gearman

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/kiranshivaraju/jobsync/internal/config"
	"github.com/kiranshivaraju/jobsync/pkg/models"
)

var echoPayload = []byte("jobsync")

// Connector dials the configured job servers in order.
type Connector struct {
	servers []string
	timeout time.Duration
	dialer  net.Dialer
}

// NewConnector creates a Gearman connector. Each address is host:port.
func NewConnector(cfg config.QueueConfig) *Connector {
	return &Connector{
		servers: append([]string(nil), cfg.Servers...),
		timeout: cfg.Timeout,
	}
}

func (c *Connector) Name() string { return "gearman" }

// Connect returns a session on the first server that answers an ECHO.
func (c *Connector) Connect(ctx context.Context) (models.QueueSession, error) {
	if len(c.servers) == 0 {
		return nil, fmt.Errorf("%w: no servers configured", models.ErrQueueUnavailable)
	}

	var errs []error
	for _, addr := range c.servers {
		s, err := c.dial(ctx, addr)
		if err == nil {
			return s, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", addr, err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: %w", models.ErrQueueUnavailable, errors.Join(errs...))
}

func (c *Connector) Ping(ctx context.Context) error {
	s, err := c.Connect(ctx)
	if err != nil {
		return err
	}
	return s.Close()
}

func (c *Connector) dial(ctx context.Context, addr string) (*Session, error) {
	dialCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	conn, err := c.dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &Session{conn: conn, addr: addr, timeout: c.timeout}
	if err := s.echo(dialCtx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// Session is a single TCP connection to one job server.
type Session struct {
	conn    net.Conn
	addr    string
	timeout time.Duration
}

func (s *Session) JobStatus(ctx context.Context, handle string) (models.JobStatus, error) {
	pkt, err := s.roundTrip(ctx, typeGetStatus, []byte(handle))
	if err != nil {
		return models.JobStatus{}, err
	}

	switch pkt.Type {
	case typeStatusRes:
		st, err := parseStatus(pkt.Data)
		if err != nil {
			return models.JobStatus{}, err
		}
		if st.Handle != handle {
			return models.JobStatus{}, fmt.Errorf("%w: status for %q, asked for %q", models.ErrQueueProtocol, st.Handle, handle)
		}
		return st, nil
	case typeError:
		return models.JobStatus{}, parseError(pkt.Data)
	default:
		return models.JobStatus{}, fmt.Errorf("%w: unexpected packet type %d", models.ErrQueueProtocol, pkt.Type)
	}
}

func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) echo(ctx context.Context) error {
	pkt, err := s.roundTrip(ctx, typeEchoReq, echoPayload)
	if err != nil {
		return err
	}
	if pkt.Type != typeEchoRes || !bytes.Equal(pkt.Data, echoPayload) {
		return fmt.Errorf("%w: bad echo reply from %s", models.ErrQueueProtocol, s.addr)
	}
	return nil
}

// roundTrip writes one request and reads one response under the earlier of
// the context deadline and the configured timeout.
func (s *Session) roundTrip(ctx context.Context, typ uint32, data []byte) (packet, error) {
	if err := ctx.Err(); err != nil {
		return packet{}, classifyError(err)
	}

	deadline := time.Time{}
	if s.timeout > 0 {
		deadline = time.Now().Add(s.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := s.conn.SetDeadline(deadline); err != nil {
		return packet{}, classifyError(err)
	}

	// Unblock the connection if ctx is cancelled without a deadline.
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err := writePacket(s.conn, typ, data); err != nil {
		return packet{}, classifyError(err)
	}
	pkt, err := readPacket(s.conn)
	if err != nil {
		if errors.Is(err, models.ErrQueueProtocol) {
			return packet{}, err
		}
		if ctx.Err() != nil {
			return packet{}, classifyError(ctx.Err())
		}
		return packet{}, classifyError(err)
	}
	return pkt, nil
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
