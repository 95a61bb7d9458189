//go:build linux

package reactor

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// epollPoller is the Linux backend for poller, a direct translation of
// net.c's epoll usage: one epoll instance, EPOLLIN always armed,
// EPOLLOUT armed only while a connection has pending output.
type epollPoller struct {
	epfd int
}

func newPoller() (*epollPoller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "epoll_create1")
	}
	return &epollPoller{epfd: fd}, nil
}

func (p *epollPoller) addRead(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	return errors.Wrap(unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev), "epoll_ctl add")
}

func (p *epollPoller) enableWrite(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLOUT, Fd: int32(fd)}
	return errors.Wrap(unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev), "epoll_ctl mod (enable write)")
}

func (p *epollPoller) disableWrite(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	return errors.Wrap(unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev), "epoll_ctl mod (disable write)")
}

func (p *epollPoller) remove(fd int) error {
	// EPOLL_CTL_DEL historically required a non-nil event pointer on
	// older kernels; pass one for portability.
	ev := unix.EpollEvent{}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, &ev); err != nil {
		return errors.Wrap(err, "epoll_ctl del")
	}
	return nil
}

func (p *epollPoller) wait(buf []readyEvent) ([]readyEvent, error) {
	raw := make([]unix.EpollEvent, cap(buf))
	if cap(raw) == 0 {
		raw = make([]unix.EpollEvent, 64)
	}
	for {
		n, err := unix.EpollWait(p.epfd, raw, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, errors.Wrap(err, "epoll_wait")
		}
		out := buf[:0]
		for i := 0; i < n; i++ {
			out = append(out, readyEvent{
				fd:       int(raw[i].Fd),
				readable: raw[i].Events&unix.EPOLLIN != 0,
				writable: raw[i].Events&unix.EPOLLOUT != 0,
				hangup:   raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0,
			})
		}
		return out, nil
	}
}

func (p *epollPoller) close() error {
	return errors.Wrap(unix.Close(p.epfd), "close epoll fd")
}
