package main

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// Config collects every knob the spec fixes as a compile-time constant
// in the source, with the source's values as defaults. It is built from
// CLI flags in main, then optionally overridden by a JSON file, the
// same two-stage approach as the teacher's server/config.go.
type Config struct {
	Listen  string `json:"listen"`
	Backlog int    `json:"backlog"`

	MaxClients  int `json:"max_clients"`
	MaxRooms    int `json:"max_rooms"`
	MaxRoomUser int `json:"max_room_user"`

	Workers   int `json:"workers"`
	QueueSize int `json:"queue_size"`
	RecvBuf   int `json:"recv_buf"`
	SendBuf   int `json:"send_buf"`

	LogPath   string `json:"log"`
	LogFormat string `json:"log_format"`

	MetricsLog    string `json:"metrics_log"`
	MetricsPeriod int    `json:"metrics_period"`

	Pprof bool `json:"pprof"`
}

// defaultConfig mirrors common.h's #define block.
func defaultConfig() Config {
	return Config{
		Listen:  "0.0.0.0:3800",
		Backlog: 256,

		MaxClients:  512,
		MaxRooms:    256,
		MaxRoomUser: 8,

		Workers:   4,
		QueueSize: 1024,
		RecvBuf:   4096,
		SendBuf:   4096,

		LogFormat:     "text",
		MetricsPeriod: 60,
	}
}

// Validate rejects a Config whose limits could never satisfy the data
// model's invariants (e.g. a room bigger than the client cap makes no
// sense) before any resource is allocated.
func (c *Config) Validate() error {
	switch {
	case c.Listen == "":
		return errors.New("listen address must not be empty")
	case c.MaxClients <= 0:
		return errors.New("max-clients must be positive")
	case c.MaxRooms <= 0:
		return errors.New("max-rooms must be positive")
	case c.MaxRoomUser <= 0:
		return errors.New("max-room-users must be positive")
	case c.MaxRoomUser > c.MaxClients:
		return errors.New("max-room-users must not exceed max-clients")
	case c.Workers <= 0:
		return errors.New("workers must be positive")
	case c.QueueSize <= 0:
		return errors.New("queue-size must be positive")
	case c.RecvBuf <= 0:
		return errors.New("recv-buf must be positive")
	case c.SendBuf <= 0:
		return errors.New("send-buf must be positive")
	case c.LogFormat != "text" && c.LogFormat != "json":
		return errors.Errorf("log-format must be 'text' or 'json', got %q", c.LogFormat)
	}
	return nil
}

// parseJSONConfig loads path and decodes it over cfg, letting a config
// file override whatever CLI flags set, the same override order as the
// teacher's parseJSONConfig.
func parseJSONConfig(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open config file")
	}
	defer f.Close()

	return errors.Wrap(json.NewDecoder(f).Decode(cfg), "decode config file")
}
