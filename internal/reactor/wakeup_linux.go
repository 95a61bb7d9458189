//go:build linux

package reactor

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// wakeupHandle is the counter-like eventfd that lets any goroutine
// interrupt the reactor's blocking epoll_wait. Spurious wakeups are
// permitted by contract; drain always reads until EAGAIN.
type wakeupHandle struct {
	fd int
}

func newWakeupHandle() (*wakeupHandle, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "eventfd")
	}
	return &wakeupHandle{fd: fd}, nil
}

// signal writes one unit to the eventfd. It is safe to call from any
// goroutine. A full counter (EAGAIN) is not an error: the reactor is
// already guaranteed to wake up from a previous, still-unconsumed
// signal.
func (w *wakeupHandle) signal() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(w.fd, buf[:])
		if err == nil || err == unix.EAGAIN {
			return
		}
		if err == unix.EINTR {
			continue
		}
		return
	}
}

// drain consumes every pending unit so epoll doesn't keep reporting the
// eventfd as readable.
func (w *wakeupHandle) drain() {
	var buf [8]byte
	for {
		_, err := unix.Read(w.fd, buf[:])
		if err != nil {
			return
		}
	}
}

func (w *wakeupHandle) close() error {
	return unix.Close(w.fd)
}
