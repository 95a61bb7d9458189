// Package reactor implements the single-threaded, non-blocking I/O loop
// (C4): accept, read, write, and wakeup multiplexed over every socket
// with a Linux epoll instance, exactly mirroring net.c's net_init/
// net_run. The reactor owns every connection object exclusively; workers
// reach it only through the io queue and Wakeup.
package reactor

import (
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/xtaci/chatd/internal/metrics"
	"github.com/xtaci/chatd/internal/protocol"
	"github.com/xtaci/chatd/internal/queue"
)

// Config mirrors the source's compile-time constants that bound the
// reactor's resource usage.
type Config struct {
	ListenAddr string
	Backlog    int
	MaxClients int
	RecvBuf    int
	SendBuf    int
}

// Reactor is the process-wide I/O service. Like the session/room
// tables, it is a composed long-lived value with explicit
// initialization (Open) and teardown (embedded in Run's return path),
// never an ambient global.
type Reactor struct {
	cfg Config
	log *logrus.Entry
	mx  *metrics.Counters

	pfd    *epollPoller
	wake   *wakeupHandle
	listen int

	connections map[queue.Handle]*connection

	logicQueue *queue.Bounded[queue.Job]
	ioQueue    *queue.Bounded[queue.Job]

	terminate atomic.Bool
}

// Open performs the fallible, fatal-on-error part of startup: creating
// the listen socket, the epoll instance, and the wakeup handle. Any
// error here is an init failure and the caller should exit non-zero.
func Open(cfg Config, logicQueue, ioQueue *queue.Bounded[queue.Job], mx *metrics.Counters, log *logrus.Entry) (*Reactor, error) {
	listenFD, err := listenTCP(cfg.ListenAddr, cfg.Backlog)
	if err != nil {
		return nil, errors.Wrap(err, "listen")
	}

	pfd, err := newPoller()
	if err != nil {
		unix.Close(listenFD)
		return nil, errors.Wrap(err, "create poller")
	}

	wake, err := newWakeupHandle()
	if err != nil {
		pfd.close()
		unix.Close(listenFD)
		return nil, errors.Wrap(err, "create wakeup handle")
	}

	if err := pfd.addRead(wake.fd); err != nil {
		wake.close()
		pfd.close()
		unix.Close(listenFD)
		return nil, errors.Wrap(err, "register wakeup handle")
	}
	if err := pfd.addRead(listenFD); err != nil {
		wake.close()
		pfd.close()
		unix.Close(listenFD)
		return nil, errors.Wrap(err, "register listen socket")
	}

	return &Reactor{
		cfg:         cfg,
		log:         log,
		mx:          mx,
		pfd:         pfd,
		wake:        wake,
		listen:      listenFD,
		connections: make(map[queue.Handle]*connection, cfg.MaxClients),
		logicQueue:  logicQueue,
		ioQueue:     ioQueue,
	}, nil
}

// Wakeup interrupts a blocked epoll_wait from any goroutine. Workers
// call this (through the Outbox adapter) after pushing SEND jobs.
func (r *Reactor) Wakeup() {
	r.wake.signal()
}

// RequestShutdown sets the termination flag observed between epoll_wait
// returns, and wakes the reactor so the flag is noticed promptly even if
// no socket is otherwise ready.
func (r *Reactor) RequestShutdown() {
	r.terminate.Store(true)
	r.wake.signal()
}

// Run drives the reactor loop until shutdown is requested, then closes
// the listen socket, every remaining connection, and the multiplexer,
// and posts one JobShutdown per worker so the pool drains deterministically.
func (r *Reactor) Run(workerCount int) error {
	events := make([]readyEvent, 0, 64)
	for !r.terminate.Load() {
		var err error
		events, err = r.pfd.wait(events)
		if err != nil {
			return errors.Wrap(err, "poller wait")
		}

		// Mandatory ordering (open question in the spec, resolved):
		// drain the wakeup counter, then drain io_queue to empty, then
		// process readiness events. A SEND pushed between these two
		// steps is still guaranteed prompt service because io_queue is
		// always drained to empty on every wake, including the next one.
		for _, ev := range events {
			if ev.fd == r.wake.fd {
				r.wake.drain()
				break
			}
		}

		r.drainIOQueue()

		for _, ev := range events {
			if ev.fd == r.wake.fd {
				continue
			}
			r.handleEvent(ev)
		}
	}

	r.shutdown(workerCount)
	return nil
}

func (r *Reactor) drainIOQueue() {
	for {
		job, ok := r.ioQueue.PopNonblocking()
		if !ok {
			return
		}
		if job.Kind != queue.JobSend {
			continue
		}
		r.handleSendJob(job)
	}
}

func (r *Reactor) handleSendJob(job queue.Job) {
	conn, ok := r.connections[job.Handle]
	if !ok {
		return // already disconnected; silently ignore per spec
	}
	if !conn.appendSend(job.Packet) {
		r.disconnect(job.Handle)
		return
	}
	if !conn.writeInterest {
		if err := r.pfd.enableWrite(int(job.Handle)); err != nil {
			r.log.WithError(err).Warn("enableWrite failed")
			r.disconnect(job.Handle)
			return
		}
		conn.writeInterest = true
	}
}

func (r *Reactor) handleEvent(ev readyEvent) {
	h := queue.Handle(ev.fd)

	if ev.fd == r.listen {
		if ev.readable {
			r.acceptLoop()
		}
		return
	}

	if ev.hangup {
		r.disconnect(h)
		return
	}
	if ev.readable {
		r.readLoop(h)
	}
	if ev.writable {
		r.writeLoop(h)
	}
}

func (r *Reactor) acceptLoop() {
	for {
		fd, _, err := unix.Accept4(r.listen, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			r.log.WithError(err).Warn("accept error")
			return
		}

		if fd >= r.cfg.MaxClients {
			unix.Close(fd)
			r.mx.ConnectionsRejected.Add(1)
			r.log.WithField("fd", fd).Warn("rejecting connection: at MaxClients capacity")
			continue
		}

		h := queue.Handle(fd)
		conn := newConnection(h, r.cfg.RecvBuf, r.cfg.SendBuf)
		r.connections[h] = conn

		if err := r.pfd.addRead(fd); err != nil {
			r.log.WithError(err).Warn("failed to register accepted connection")
			delete(r.connections, h)
			unix.Close(fd)
			continue
		}

		r.mx.ConnectionsAccepted.Add(1)
		r.log.WithField("handle", h).Debug("accepted connection")
	}
}

func (r *Reactor) readLoop(h queue.Handle) {
	conn, ok := r.connections[h]
	if !ok {
		return
	}

	var scratch []byte
	if scratchP := protocol.DefaultAllocator.Get(r.cfg.RecvBuf); scratchP != nil {
		scratch = *scratchP
		defer protocol.DefaultAllocator.Put(scratchP)
	} else {
		scratch = make([]byte, r.cfg.RecvBuf)
	}

	for {
		free := conn.recv.Free()
		if free == 0 {
			// Buffer is full of undecodable bytes; the source treats
			// this the same as any other hard condition on the
			// connection and disconnects.
			r.disconnect(h)
			return
		}
		if free > len(scratch) {
			free = len(scratch)
		}

		n, err := unix.Read(int(h), scratch[:free])
		if n > 0 {
			r.mx.BytesRead.Add(uint64(n))
			if _, werr := conn.recv.Write(scratch[:n]); werr != nil {
				r.disconnect(h)
				return
			}
			if !r.drainPackets(h, conn) {
				return // disconnected due to a protocol error
			}
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			r.disconnect(h)
			return
		}
		if n == 0 {
			r.disconnect(h) // peer EOF
			return
		}
	}
}

// drainPackets decodes every complete packet currently buffered for h
// and enqueues one JobPacket per packet. It returns false if a protocol
// violation caused h to be disconnected.
func (r *Reactor) drainPackets(h queue.Handle, conn *connection) bool {
	for {
		pkt, ok, err := conn.recv.Next()
		if err != nil {
			r.mx.ProtocolErrors.Add(1)
			r.log.WithField("handle", h).Warn("protocol violation")
			r.disconnect(h)
			return false
		}
		if !ok {
			return true
		}
		r.mx.PacketsDecoded.Add(1)
		r.logicQueue.Push(queue.Job{Kind: queue.JobPacket, Handle: h, Packet: pkt})
	}
}

func (r *Reactor) writeLoop(h queue.Handle) {
	conn, ok := r.connections[h]
	if !ok {
		return
	}

	for conn.pendingWrite() {
		n, err := unix.Write(int(h), conn.sendBuf[conn.sendOffset:conn.sendLen])
		if n > 0 {
			conn.sendOffset += n
			r.mx.BytesWritten.Add(uint64(n))
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			r.disconnect(h)
			return
		}
		if n == 0 {
			break
		}
	}

	if !conn.pendingWrite() {
		conn.resetSendBuffer()
		if conn.writeInterest {
			if err := r.pfd.disableWrite(int(h)); err != nil {
				r.log.WithError(err).Warn("disableWrite failed")
			}
			conn.writeInterest = false
		}
	}
}

// disconnect is the only path that tears down a connection: deregister,
// close, free, and hand state cleanup to the workers via JobDisconnect.
// It is idempotent against double-calls within the same readiness pass.
func (r *Reactor) disconnect(h queue.Handle) {
	if _, ok := r.connections[h]; !ok {
		return
	}
	r.pfd.remove(int(h))
	unix.Close(int(h))
	delete(r.connections, h)
	r.log.WithField("handle", h).Debug("connection closed")

	r.logicQueue.Push(queue.Job{Kind: queue.JobDisconnect, Handle: h})
}

func (r *Reactor) shutdown(workerCount int) {
	unix.Close(r.listen)
	for h := range r.connections {
		r.pfd.remove(int(h))
		unix.Close(int(h))
	}
	r.connections = map[queue.Handle]*connection{}
	r.wake.close()
	r.pfd.close()

	for i := 0; i < workerCount; i++ {
		r.logicQueue.Push(queue.Job{Kind: queue.JobShutdown})
	}
}
