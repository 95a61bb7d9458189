package protocol

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrProtocolViolation is returned by Buffer.Next when the framed length
// field is out of bounds (below 2, or larger than the maximum packet length).
// The caller must disconnect the connection that produced it.
var ErrProtocolViolation = errors.New("protocol: invalid packet length")

// ErrBufferFull is returned by Write when appending would exceed the
// buffer's capacity. The caller must disconnect the connection.
var ErrBufferFull = errors.New("protocol: receive buffer full")

// Buffer is a per-connection receive buffer (C1). It accumulates bytes
// from the wire and exposes Next, which extracts at most one packet per
// call. Buffer owns no socket; callers feed it bytes from reads.
//
// Wire layout, all fields big-endian:
//
//	length(u16) type(u16) payload[length-2]
//
// length is sizeof(type)+len(payload): length>=2, length<=2+MaxPayload.
type Buffer struct {
	data []byte // data[:len] holds valid, unconsumed bytes
	cap  int
}

// NewBuffer allocates a framing buffer with the given high-water capacity
// (RECV_BUF in the source design).
func NewBuffer(capacity int) *Buffer {
	return &Buffer{
		data: make([]byte, 0, capacity),
		cap:  capacity,
	}
}

// Len reports the number of unconsumed, buffered bytes.
func (b *Buffer) Len() int { return len(b.data) }

// Free reports how many more bytes can be appended before Write errors.
func (b *Buffer) Free() int { return b.cap - len(b.data) }

// Write appends p to the buffer. It never partially appends: either all
// of p fits and is appended, or ErrBufferFull is returned and the buffer
// is left unchanged.
func (b *Buffer) Write(p []byte) (int, error) {
	if len(p) > b.Free() {
		return 0, ErrBufferFull
	}
	b.data = append(b.data, p...)
	return len(p), nil
}

// Next attempts to extract exactly one packet from the buffered bytes.
//
// Results:
//   - (pkt, true, nil): a packet was extracted; the consumed prefix is
//     compacted out of the buffer.
//   - (Packet{}, false, nil): fewer bytes are buffered than a full packet
//     needs (NeedMore). The buffer is not mutated.
//   - (Packet{}, false, ErrProtocolViolation): the length field is out of
//     range. The buffer is not mutated; the caller must disconnect.
//
// Next must be called in a loop until it returns NeedMore or an error,
// since a single read may deliver zero, one, or many whole packets plus
// a trailing fragment.
func (b *Buffer) Next() (Packet, bool, error) {
	if len(b.data) < headerSize {
		return Packet{}, false, nil
	}

	length := binary.BigEndian.Uint16(b.data[0:2])
	if length < 2 || int(length) > MaxPacketLen {
		return Packet{}, false, ErrProtocolViolation
	}

	total := 2 + int(length)
	if len(b.data) < total {
		return Packet{}, false, nil
	}

	typ := Type(binary.BigEndian.Uint16(b.data[2:4]))
	payloadLen := int(length) - 2
	payload := make([]byte, payloadLen)
	copy(payload, b.data[4:total])

	// Compact: shift the remaining tail to the front and shrink.
	remaining := len(b.data) - total
	copy(b.data[0:remaining], b.data[total:])
	b.data = b.data[:remaining]

	return Packet{Type: typ, Payload: payload}, true, nil
}

// Encode serializes pkt onto the wire: htons(length)||htons(type)||payload.
// It rejects payloads that would overflow MaxPayload.
func Encode(pkt Packet) ([]byte, error) {
	if len(pkt.Payload) > MaxPayload {
		return nil, errors.Errorf("protocol: payload of %d bytes exceeds MaxPayload", len(pkt.Payload))
	}
	out := make([]byte, headerSize+len(pkt.Payload))
	binary.BigEndian.PutUint16(out[0:2], uint16(pkt.WireLength()))
	binary.BigEndian.PutUint16(out[2:4], uint16(pkt.Type))
	copy(out[4:], pkt.Payload)
	return out, nil
}
