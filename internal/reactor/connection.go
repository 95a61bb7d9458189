package reactor

import (
	"github.com/xtaci/chatd/internal/protocol"
	"github.com/xtaci/chatd/internal/queue"
)

// connection is per-socket state owned exclusively by the reactor
// (Connection in the spec's data model). Workers never see this type;
// they only ever reach a connection indirectly, by handle, through the
// io queue.
type connection struct {
	handle queue.Handle
	recv   *protocol.Buffer

	sendBuf    []byte
	sendLen    int
	sendOffset int
	sendCap    int

	writeInterest bool
}

func newConnection(h queue.Handle, recvCap, sendCap int) *connection {
	return &connection{
		handle:  h,
		recv:    protocol.NewBuffer(recvCap),
		sendBuf: make([]byte, sendCap),
		sendCap: sendCap,
	}
}

// appendSend serializes pkt and appends it to the send buffer. It
// reports false if doing so would overflow sendCap; the caller must then
// disconnect this connection.
func (c *connection) appendSend(pkt protocol.Packet) bool {
	wire, err := protocol.Encode(pkt)
	if err != nil {
		return false
	}
	if c.sendLen+len(wire) > c.sendCap {
		return false
	}
	copy(c.sendBuf[c.sendLen:], wire)
	c.sendLen += len(wire)
	return true
}

// pendingWrite reports whether there are unsent bytes in the send
// buffer.
func (c *connection) pendingWrite() bool {
	return c.sendOffset < c.sendLen
}

// resetSendBuffer is called once the send buffer has been fully drained.
func (c *connection) resetSendBuffer() {
	c.sendLen = 0
	c.sendOffset = 0
}
