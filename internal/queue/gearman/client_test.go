package gearman

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/jobsync/internal/config"
	"github.com/kiranshivaraju/jobsync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer is an in-process job server that answers ECHO and GET_STATUS.
type fakeServer struct {
	ln net.Listener

	mu       sync.Mutex
	statuses map[string]string // handle -> raw STATUS_RES body
	errorFor map[string]bool
	stall    bool
	requests []string
}

func startFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeServer{ln: ln, statuses: map[string]string{}, errorFor: map[string]bool{}}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.serve(conn)
		}
	}()
	return s
}

func (s *fakeServer) addr() string { return s.ln.Addr().String() }

func (s *fakeServer) setStatus(handle string, known, running bool, num, den int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[handle] = fmt.Sprintf("%s\x00%d\x00%d\x00%d\x00%d", handle, b2i(known), b2i(running), num, den)
}

func (s *fakeServer) setRaw(handle, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[handle] = body
}

func (s *fakeServer) setError(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorFor[handle] = true
}

func (s *fakeServer) setStall(stall bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stall = stall
}

func (s *fakeServer) requestLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *fakeServer) serve(conn net.Conn) {
	defer conn.Close()
	for {
		var hdr [12]byte
		if _, err := io.ReadFull(conn, hdr[:]); err != nil {
			return
		}
		typ := binary.BigEndian.Uint32(hdr[4:8])
		data := make([]byte, binary.BigEndian.Uint32(hdr[8:12]))
		if _, err := io.ReadFull(conn, data); err != nil {
			return
		}

		s.mu.Lock()
		stall := s.stall
		if typ == typeGetStatus {
			s.requests = append(s.requests, string(data))
		}
		body, ok := s.statuses[string(data)]
		isErr := s.errorFor[string(data)]
		s.mu.Unlock()

		switch typ {
		case typeEchoReq:
			writeRes(conn, typeEchoRes, data)
		case typeGetStatus:
			if stall {
				continue
			}
			switch {
			case isErr:
				writeRes(conn, typeError, []byte("ERR_TEST\x00boom"))
			case ok:
				writeRes(conn, typeStatusRes, []byte(body))
			default:
				writeRes(conn, typeStatusRes, []byte(string(data)+"\x000\x000\x000\x000"))
			}
		}
	}
}

func writeRes(w io.Writer, typ uint32, data []byte) {
	var buf bytes.Buffer
	buf.Write(magicRes[:])
	_ = binary.Write(&buf, binary.BigEndian, typ)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(data)))
	buf.Write(data)
	_, _ = w.Write(buf.Bytes())
}

func newTestConnector(servers ...string) *Connector {
	return NewConnector(config.QueueConfig{Servers: servers, Timeout: 500 * time.Millisecond})
}

// deadAddr returns an address nothing is listening on.
func deadAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestJobStatus_Known(t *testing.T) {
	srv := startFakeServer(t)
	srv.setStatus("H:host:1", true, true, 4, 10)

	sess, err := newTestConnector(srv.addr()).Connect(context.Background())
	require.NoError(t, err)
	defer sess.Close()

	st, err := sess.JobStatus(context.Background(), "H:host:1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatus{Handle: "H:host:1", Known: true, Running: true, Numerator: 4, Denominator: 10}, st)
}

func TestJobStatus_Unknown(t *testing.T) {
	srv := startFakeServer(t)

	sess, err := newTestConnector(srv.addr()).Connect(context.Background())
	require.NoError(t, err)
	defer sess.Close()

	st, err := sess.JobStatus(context.Background(), "H:host:gone")
	require.NoError(t, err)
	assert.False(t, st.Known)
	assert.False(t, st.Running)
}

func TestJobStatus_SessionReusedForManyCalls(t *testing.T) {
	srv := startFakeServer(t)
	srv.setStatus("A", true, false, 0, 0)
	srv.setStatus("B", true, true, 1, 2)

	sess, err := newTestConnector(srv.addr()).Connect(context.Background())
	require.NoError(t, err)
	defer sess.Close()

	for _, h := range []string{"A", "B", "A"} {
		st, err := sess.JobStatus(context.Background(), h)
		require.NoError(t, err)
		assert.Equal(t, h, st.Handle)
	}
	assert.Equal(t, []string{"A", "B", "A"}, srv.requestLog())
}

func TestJobStatus_ServerError(t *testing.T) {
	srv := startFakeServer(t)
	srv.setError("bad")

	sess, err := newTestConnector(srv.addr()).Connect(context.Background())
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.JobStatus(context.Background(), "bad")
	assert.ErrorIs(t, err, models.ErrQueueProtocol)
}

func TestJobStatus_MalformedResponse(t *testing.T) {
	tests := map[string]string{
		"too few fields":     "H\x001\x001",
		"negative numerator": "H\x001\x001\x00-3\x0010",
		"not a number":       "H\x001\x001\x00x\x0010",
		"handle mismatch":    "other\x001\x001\x001\x0010",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			srv := startFakeServer(t)
			srv.setRaw("H", body)

			sess, err := newTestConnector(srv.addr()).Connect(context.Background())
			require.NoError(t, err)
			defer sess.Close()

			_, err = sess.JobStatus(context.Background(), "H")
			assert.ErrorIs(t, err, models.ErrQueueProtocol)
		})
	}
}

func TestJobStatus_TimeoutIsNotUnknown(t *testing.T) {
	srv := startFakeServer(t)
	srv.setStall(true)

	sess, err := newTestConnector(srv.addr()).Connect(context.Background())
	require.NoError(t, err)
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	st, err := sess.JobStatus(ctx, "H:slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrQueueTimeout)
	assert.False(t, st.Known)
}

func TestConnect_FailsOverToNextServer(t *testing.T) {
	srv := startFakeServer(t)
	srv.setStatus("H", true, true, 1, 1)

	sess, err := newTestConnector(deadAddr(t), srv.addr()).Connect(context.Background())
	require.NoError(t, err)
	defer sess.Close()

	st, err := sess.JobStatus(context.Background(), "H")
	require.NoError(t, err)
	assert.True(t, st.Known)
}

func TestConnect_NoServerAnswers(t *testing.T) {
	_, err := newTestConnector(deadAddr(t), deadAddr(t)).Connect(context.Background())
	assert.ErrorIs(t, err, models.ErrQueueUnavailable)
}

func TestConnect_NoServersConfigured(t *testing.T) {
	_, err := newTestConnector().Connect(context.Background())
	assert.ErrorIs(t, err, models.ErrQueueUnavailable)
}

func TestPing(t *testing.T) {
	srv := startFakeServer(t)
	assert.NoError(t, newTestConnector(srv.addr()).Ping(context.Background()))
	assert.Error(t, newTestConnector(deadAddr(t)).Ping(context.Background()))
}

func TestClassifyError(t *testing.T) {
	assert.ErrorIs(t, classifyError(context.DeadlineExceeded), models.ErrQueueTimeout)
	assert.ErrorIs(t, classifyError(context.Canceled), models.ErrQueueTimeout)
	assert.ErrorIs(t, classifyError(io.ErrUnexpectedEOF), models.ErrQueueUnavailable)
}

func TestName(t *testing.T) {
	assert.Equal(t, "gearman", newTestConnector().Name())
}
