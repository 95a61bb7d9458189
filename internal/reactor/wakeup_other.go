//go:build !linux

package reactor

type wakeupHandle struct{}

func newWakeupHandle() (*wakeupHandle, error) { return nil, errUnsupportedPlatform }
func (w *wakeupHandle) signal()               {}
func (w *wakeupHandle) drain()                {}
func (w *wakeupHandle) close() error          { return errUnsupportedPlatform }
