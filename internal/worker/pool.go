// Package worker implements the logic worker pool (C6): a fixed number
// of goroutines (WORKER_THREAD_NUM in the source) consuming the logic queue, dispatching by job type, and
// mutating session/room state. This is the Go translation of logic.c's
// worker_thread plus its three handlers.
package worker

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/xtaci/chatd/internal/chatstate"
	"github.com/xtaci/chatd/internal/metrics"
	"github.com/xtaci/chatd/internal/queue"
)

// Pool is WORKER_THREAD_NUM logic workers sharing one logic queue, one
// state layer, and one outbox back to the reactor.
type Pool struct {
	count  int
	logicQ *queue.Bounded[queue.Job]
	state  *chatstate.State
	outbox chatstate.Outbox
	mx     *metrics.Counters
	log    *logrus.Entry

	wg sync.WaitGroup
}

// NewPool builds a pool of count workers. Start must be called to spawn
// them.
func NewPool(count int, logicQ *queue.Bounded[queue.Job], state *chatstate.State, outbox chatstate.Outbox, mx *metrics.Counters, log *logrus.Entry) *Pool {
	return &Pool{
		count:  count,
		logicQ: logicQ,
		state:  state,
		outbox: outbox,
		mx:     mx,
		log:    log,
	}
}

// Start spawns the pool's goroutines. Each runs until it pops a
// JobShutdown, at which point it runs the full shutdown sweep over every
// handle (see handleShutdown) and returns.
func (p *Pool) Start() {
	p.wg.Add(p.count)
	for i := 0; i < p.count; i++ {
		id := i
		go func() {
			defer p.wg.Done()
			p.run(id)
		}()
	}
}

// Wait blocks until every worker has observed JobShutdown and returned.
// Callers use this to know the logic queue has been fully drained
// before the process exits.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(id int) {
	log := p.log.WithField("worker", id)
	for {
		job := p.logicQ.PopBlocking()
		switch job.Kind {
		case queue.JobPacket:
			p.mx.JobsPacket.Add(1)
			sess := p.state.SessionGet(job.Handle)
			if sess == nil {
				sess = p.state.SessionCreate(job.Handle)
			}
			if sess == nil || !sess.Alive {
				log.WithField("handle", job.Handle).Warn("dropping packet: no live session")
				continue
			}
			p.handlePacket(sess, job.Packet, log)

		case queue.JobDisconnect:
			p.mx.JobsDisconnect.Add(1)
			p.handleDisconnect(job.Handle, log)

		case queue.JobShutdown:
			p.handleShutdown(log)
			return

		default:
			log.WithField("kind", job.Kind).Warn("unknown job kind, ignoring")
		}
	}
}
