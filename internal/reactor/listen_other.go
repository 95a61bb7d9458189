//go:build !linux

package reactor

func listenTCP(addr string, backlog int) (int, error) {
	return -1, errUnsupportedPlatform
}
