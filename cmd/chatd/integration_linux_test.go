//go:build linux

package main

import (
	"bufio"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xtaci/chatd/internal/chatstate"
	"github.com/xtaci/chatd/internal/metrics"
	"github.com/xtaci/chatd/internal/protocol"
	"github.com/xtaci/chatd/internal/queue"
	"github.com/xtaci/chatd/internal/reactor"
	"github.com/xtaci/chatd/internal/worker"
)

// testServer boots a full reactor+worker-pool stack on an ephemeral
// port and tears it down on t.Cleanup, exercising the same wiring as
// run() in main.go without going through the CLI or os/signal.
type testServer struct {
	addr string
	re   *reactor.Reactor
	pool *worker.Pool

	once     sync.Once
	runErr   error
	timedOut bool
	rawDone  chan error
}

// waitDone blocks until the reactor's Run goroutine has returned,
// caching the result so it can be observed both by a test that checks
// it directly and by the cleanup teardown that follows without racing
// on the same channel receive.
func (ts *testServer) waitDone(timeout time.Duration) (error, bool) {
	ts.once.Do(func() {
		select {
		case ts.runErr = <-ts.rawDone:
		case <-time.After(timeout):
			ts.timedOut = true
		}
	})
	return ts.runErr, !ts.timedOut
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)
	entry := logrus.NewEntry(log)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe for a free port: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	mx := &metrics.Counters{}
	logicQ := queue.NewBounded[queue.Job](64)
	ioQ := queue.NewBounded[queue.Job](64)

	rcfg := reactor.Config{
		ListenAddr: addr,
		Backlog:    16,
		MaxClients: 32,
		RecvBuf:    4096,
		SendBuf:    4096,
	}
	re, err := reactor.Open(rcfg, logicQ, ioQ, mx, entry.WithField("component", "reactor"))
	if err != nil {
		t.Fatalf("reactor.Open: %v", err)
	}

	scfg := chatstate.Config{MaxClients: 32, MaxRooms: 8, MaxRoomUser: 4}
	state := chatstate.New(scfg, entry.WithField("component", "state"), mx)
	outbox := reactor.Outbox{IOQueue: ioQ, Reactor: re}

	pool := worker.NewPool(2, logicQ, state, outbox, mx, entry.WithField("component", "worker"))
	pool.Start()

	ts := &testServer{addr: addr, re: re, pool: pool, rawDone: make(chan error, 1)}
	go func() { ts.rawDone <- re.Run(2) }()

	// Give the Run goroutine a moment to enter its poller wait before the
	// first dial (Open has already registered the listen socket).
	time.Sleep(20 * time.Millisecond)

	t.Cleanup(func() {
		re.RequestShutdown()
		if _, ok := ts.waitDone(2 * time.Second); !ok {
			t.Error("reactor did not shut down in time")
		}
		pool.Wait()
	})

	return ts
}

func mustDial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func sendPacket(t *testing.T, conn net.Conn, pkt protocol.Packet) {
	t.Helper()
	wire, err := protocol.Encode(pkt)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := conn.Write(wire); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readPacket(t *testing.T, r *bufio.Reader) protocol.Packet {
	t.Helper()
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		t.Fatalf("read header: %v", err)
	}
	length := int(header[0])<<8 | int(header[1])
	typ := protocol.Type(int(header[2])<<8 | int(header[3]))
	payload := make([]byte, length-2)
	if _, err := io.ReadFull(r, payload); err != nil {
		t.Fatalf("read payload: %v", err)
	}
	return protocol.Packet{Type: typ, Payload: payload}
}

// TestJoinAndChatBroadcast exercises S1: two clients join the same
// room; a CHAT from one is rebroadcast to the other (with a trailing
// newline) and not echoed back to the sender.
func TestJoinAndChatBroadcast(t *testing.T) {
	ts := startTestServer(t)

	a := mustDial(t, ts.addr)
	defer a.Close()
	b := mustDial(t, ts.addr)
	defer b.Close()

	sendPacket(t, a, protocol.Packet{Type: protocol.JoinRoom})
	sendPacket(t, b, protocol.Packet{Type: protocol.JoinRoom})
	time.Sleep(50 * time.Millisecond)

	sendPacket(t, a, protocol.Packet{Type: protocol.Chat, Payload: []byte("hello")})

	rb := bufio.NewReader(b)
	b.SetReadDeadline(time.Now().Add(2 * time.Second))
	got := readPacket(t, rb)

	if got.Type != protocol.Chat {
		t.Fatalf("expected CHAT rebroadcast, got %v", got.Type)
	}
	if string(got.Payload) != "hello\n" {
		t.Fatalf("expected payload 'hello\\n', got %q", got.Payload)
	}

	// a must not see its own chat echoed back.
	a.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 1)
	if _, err := a.Read(buf); err == nil {
		t.Fatalf("sender unexpectedly received its own broadcast")
	}
}

// TestChatBeforeJoinIsSilentlyIgnored exercises S2: a CHAT sent before
// any JOIN_ROOM produces no broadcast and does not disconnect the
// sender.
func TestChatBeforeJoinIsSilentlyIgnored(t *testing.T) {
	ts := startTestServer(t)

	a := mustDial(t, ts.addr)
	defer a.Close()
	b := mustDial(t, ts.addr)
	defer b.Close()

	sendPacket(t, b, protocol.Packet{Type: protocol.JoinRoom})
	time.Sleep(20 * time.Millisecond)
	sendPacket(t, a, protocol.Packet{Type: protocol.Chat, Payload: []byte("nobody home")})

	b.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	buf := make([]byte, 1)
	if _, err := b.Read(buf); err == nil {
		t.Fatalf("expected no broadcast for a chat sent before joining any room")
	}

	// a's connection must still be alive: it can join and chat normally
	// afterward.
	sendPacket(t, a, protocol.Packet{Type: protocol.JoinRoom})
	sendPacket(t, a, protocol.Packet{Type: protocol.Chat, Payload: []byte("hi")})
	rb := bufio.NewReader(b)
	b.SetReadDeadline(time.Now().Add(2 * time.Second))
	got := readPacket(t, rb)
	if string(got.Payload) != "hi\n" {
		t.Fatalf("expected 'hi\\n' after a properly joined, got %q", got.Payload)
	}
}

// TestGracefulShutdownClosesConnections exercises S6: once shutdown is
// requested, every open connection observes EOF and the reactor's Run
// and the worker pool's Wait both return.
func TestGracefulShutdownClosesConnections(t *testing.T) {
	ts := startTestServer(t)

	a := mustDial(t, ts.addr)
	defer a.Close()
	sendPacket(t, a, protocol.Packet{Type: protocol.JoinRoom})
	time.Sleep(20 * time.Millisecond)

	ts.re.RequestShutdown()

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	n, err := a.Read(buf)
	if n != 0 || err != io.EOF {
		t.Fatalf("expected EOF after graceful shutdown, got n=%d err=%v", n, err)
	}

	runErr, ok := ts.waitDone(2 * time.Second)
	if !ok {
		t.Fatal("reactor.Run did not return after shutdown")
	}
	if runErr != nil {
		t.Fatalf("Run returned error: %v", runErr)
	}
	ts.pool.Wait()
}
