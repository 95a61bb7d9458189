package reactor

import (
	"github.com/xtaci/chatd/internal/protocol"
	"github.com/xtaci/chatd/internal/queue"
)

// Outbox adapts the reactor's io queue and wakeup handle to the
// chatstate.Outbox interface, so the state layer and worker pool never
// import the reactor package directly (workers reach the reactor only
// through the io queue plus Wakeup, per the spec's ownership rules).
type Outbox struct {
	IOQueue *queue.Bounded[queue.Job]
	Reactor *Reactor
}

func (o Outbox) Send(h queue.Handle, pkt protocol.Packet) {
	o.IOQueue.Push(queue.Job{Kind: queue.JobSend, Handle: h, Packet: pkt})
}

func (o Outbox) Wakeup() {
	o.Reactor.Wakeup()
}
