package queue

import "github.com/xtaci/chatd/internal/protocol"

// Kind tags the union carried by Job, mirroring job_t's discriminator.
type Kind int

const (
	// JobPacket carries an inbound packet decoded by the reactor, to be
	// dispatched by a worker.
	JobPacket Kind = iota
	// JobDisconnect tells workers to tear down session/room state for a
	// handle the reactor has already closed.
	JobDisconnect
	// JobShutdown tells one worker to run the shutdown sweep over every
	// handle and then stop. One is posted per worker thread.
	JobShutdown
	// JobSend carries an outbound packet a worker wants the reactor to
	// write to a handle.
	JobSend
)

// Handle identifies a connection. It is the reactor's internal fd-like
// key, shared verbatim with the state layer so that sessions and rooms
// can be indexed without ever touching reactor-owned memory.
type Handle int

// Job is the tagged union passed between the reactor and the worker
// pool over the logic and io queues.
type Job struct {
	Kind   Kind
	Handle Handle
	Packet protocol.Packet
}
