//go:build !linux

package reactor

import "github.com/pkg/errors"

// On non-Linux platforms the epoll/eventfd reactor described by the
// spec has no backend. This mirrors the teacher's own platform split
// (server/listen.go vs. server/listen_linux.go): these stubs return
// errUnsupportedPlatform, so Open fails with a clear startup error
// rather than silently degrading to a different concurrency model.
// reactor.go itself still calls unix.Accept4 with SOCK_NONBLOCK, so the
// package does not compile on targets whose unix package lacks them
// (darwin, windows).
var errUnsupportedPlatform = errors.New("reactor: epoll-based reactor is only implemented for linux")

type epollPoller struct{}

func newPoller() (*epollPoller, error) {
	return nil, errUnsupportedPlatform
}

func (p *epollPoller) addRead(fd int) error                       { return errUnsupportedPlatform }
func (p *epollPoller) enableWrite(fd int) error                    { return errUnsupportedPlatform }
func (p *epollPoller) disableWrite(fd int) error                   { return errUnsupportedPlatform }
func (p *epollPoller) remove(fd int) error                         { return errUnsupportedPlatform }
func (p *epollPoller) wait(buf []readyEvent) ([]readyEvent, error) { return nil, errUnsupportedPlatform }
func (p *epollPoller) close() error                                { return errUnsupportedPlatform }
