package gearman

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"

	"github.com/kiranshivaraju/jobsync/pkg/models"
)

// Packet types used by the status client.
const (
	typeEchoReq   uint32 = 16
	typeEchoRes   uint32 = 17
	typeError     uint32 = 19
	typeGetStatus uint32 = 15
	typeStatusRes uint32 = 20
)

var (
	magicReq = [4]byte{0, 'R', 'E', 'Q'}
	magicRes = [4]byte{0, 'R', 'E', 'S'}
)

const headerSize = 12

// maxPacketSize bounds a single response body. Status replies are tiny.
const maxPacketSize = 1 << 20

type packet struct {
	Type uint32
	Data []byte
}

func writePacket(w io.Writer, typ uint32, data []byte) error {
	buf := make([]byte, headerSize+len(data))
	copy(buf[0:4], magicReq[:])
	binary.BigEndian.PutUint32(buf[4:8], typ)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(data)))
	copy(buf[headerSize:], data)
	_, err := w.Write(buf)
	return err
}

func readPacket(r io.Reader) (packet, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return packet{}, err
	}
	if !bytes.Equal(hdr[0:4], magicRes[:]) {
		return packet{}, fmt.Errorf("%w: bad response magic %q", models.ErrQueueProtocol, hdr[0:4])
	}
	typ := binary.BigEndian.Uint32(hdr[4:8])
	size := binary.BigEndian.Uint32(hdr[8:12])
	if size > maxPacketSize {
		return packet{}, fmt.Errorf("%w: packet of %d bytes exceeds limit", models.ErrQueueProtocol, size)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return packet{}, err
	}
	return packet{Type: typ, Data: data}, nil
}

// parseStatus decodes a STATUS_RES body:
// handle \0 known \0 running \0 numerator \0 denominator
func parseStatus(data []byte) (models.JobStatus, error) {
	parts := bytes.Split(data, []byte{0})
	if len(parts) != 5 {
		return models.JobStatus{}, fmt.Errorf("%w: status response has %d fields", models.ErrQueueProtocol, len(parts))
	}

	num, err := parseCount(parts[3])
	if err != nil {
		return models.JobStatus{}, err
	}
	den, err := parseCount(parts[4])
	if err != nil {
		return models.JobStatus{}, err
	}

	return models.JobStatus{
		Handle:      string(parts[0]),
		Known:       string(parts[1]) == "1",
		Running:     string(parts[2]) == "1",
		Numerator:   num,
		Denominator: den,
	}, nil
}

func parseCount(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid progress value %q", models.ErrQueueProtocol, b)
	}
	return n, nil
}

// parseError decodes an ERROR body: code \0 text
func parseError(data []byte) error {
	code, text, _ := bytes.Cut(data, []byte{0})
	return fmt.Errorf("%w: server error %s: %s", models.ErrQueueProtocol, code, text)
}
