package metrics

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

func itoa(v uint64) string { return strconv.FormatUint(v, 10) }

// RunLogger periodically appends a CSV snapshot of c to path, the same
// ticker-driven copy-and-append idiom as the teacher's SnmpLogger: one
// row per interval, with a header written once when the file is empty.
// It returns when stop is closed. A zero interval or empty path disables
// logging entirely, matching the teacher's guard in SnmpLogger.
func RunLogger(c *Counters, path string, interval time.Duration, log *logrus.Entry, stop <-chan struct{}) {
	if path == "" || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if err := appendSnapshot(c, path, now); err != nil {
				log.WithError(err).Warn("metrics: failed to append snapshot")
			}
		}
	}
}

func appendSnapshot(c *Counters, path string, now time.Time) error {
	dir, file := filepath.Split(path)
	fullPath := dir + now.Format(file)

	f, err := os.OpenFile(fullPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
		if err := w.Write(append([]string{"Unix"}, Snapshot{}.Header()...)); err != nil {
			return err
		}
	}

	snap := c.Snapshot()
	if err := w.Write(append([]string{strconv.FormatInt(now.Unix(), 10)}, snap.ToSlice()...)); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
