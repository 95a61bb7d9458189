//go:build linux

package reactor

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// listenTCP opens a non-blocking IPv4 listening socket bound to addr
// ("host:port"), with SO_REUSEADDR set and the given backlog, the same
// way net_init() does in the source.
func listenTCP(addr string, backlog int) (int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return -1, errors.Wrapf(err, "split listen address %q", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return -1, errors.Wrapf(err, "parse port in %q", addr)
	}

	var ipArr [4]byte
	if host == "" {
		ipArr = [4]byte{0, 0, 0, 0}
	} else {
		ip := net.ParseIP(host)
		if ip == nil {
			return -1, errors.Errorf("invalid listen host %q", host)
		}
		ip4 := ip.To4()
		if ip4 == nil {
			return -1, errors.Errorf("only IPv4 listen addresses are supported, got %q", host)
		}
		copy(ipArr[:], ip4)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, errors.Wrap(err, "socket")
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, errors.Wrap(err, "setsockopt SO_REUSEADDR")
	}

	sa := &unix.SockaddrInet4{Port: port, Addr: ipArr}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, errors.Wrap(err, "bind")
	}

	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, errors.Wrap(err, "listen")
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, errors.Wrap(err, "set listen socket non-blocking")
	}

	return fd, nil
}
