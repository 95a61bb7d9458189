package main

import (
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/xtaci/chatd/internal/chatstate"
	"github.com/xtaci/chatd/internal/metrics"
	"github.com/xtaci/chatd/internal/queue"
	"github.com/xtaci/chatd/internal/reactor"
	"github.com/xtaci/chatd/internal/worker"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	myApp := cli.NewApp()
	myApp.Name = "chatd"
	myApp.Usage = "multi-room TCP chat server"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "listen, l",
			Value: "0.0.0.0:3800",
			Usage: "listen address, eg: \"0.0.0.0:3800\"",
		},
		cli.IntFlag{
			Name:  "backlog",
			Value: 256,
			Usage: "listen socket backlog",
		},
		cli.IntFlag{
			Name:  "max-clients",
			Value: 512,
			Usage: "maximum number of simultaneously connected clients",
		},
		cli.IntFlag{
			Name:  "max-rooms",
			Value: 256,
			Usage: "maximum number of rooms that may exist at once",
		},
		cli.IntFlag{
			Name:  "max-room-users",
			Value: 8,
			Usage: "maximum number of members per room",
		},
		cli.IntFlag{
			Name:  "workers",
			Value: 4,
			Usage: "number of logic worker goroutines",
		},
		cli.IntFlag{
			Name:  "queue-size",
			Value: 1024,
			Usage: "capacity of the logic and io job queues",
		},
		cli.IntFlag{
			Name:  "recv-buf",
			Value: 4096,
			Usage: "per-connection receive buffer size",
		},
		cli.IntFlag{
			Name:  "send-buf",
			Value: 4096,
			Usage: "per-connection send buffer size",
		},
		cli.StringFlag{
			Name:  "log",
			Usage: "redirect logs to this file instead of stderr",
		},
		cli.StringFlag{
			Name:  "log-format",
			Value: "text",
			Usage: "text or json",
		},
		cli.StringFlag{
			Name:  "metrics-log",
			Usage: "path to periodically append a CSV counter snapshot, eg \"chatd-2006-01-02.csv\"",
		},
		cli.IntFlag{
			Name:  "metrics-period",
			Value: 60,
			Usage: "metrics snapshot interval, in seconds",
		},
		cli.BoolFlag{
			Name:  "pprof",
			Usage: "enable pprof profiling server on :6060",
		},
		cli.StringFlag{
			Name:  "c",
			Usage: "path to a JSON configuration file; overrides the flags above",
		},
	}

	myApp.Action = func(c *cli.Context) error {
		cfg := defaultConfig()
		cfg.Listen = c.String("listen")
		cfg.Backlog = c.Int("backlog")
		cfg.MaxClients = c.Int("max-clients")
		cfg.MaxRooms = c.Int("max-rooms")
		cfg.MaxRoomUser = c.Int("max-room-users")
		cfg.Workers = c.Int("workers")
		cfg.QueueSize = c.Int("queue-size")
		cfg.RecvBuf = c.Int("recv-buf")
		cfg.SendBuf = c.Int("send-buf")
		cfg.LogPath = c.String("log")
		cfg.LogFormat = c.String("log-format")
		cfg.MetricsLog = c.String("metrics-log")
		cfg.MetricsPeriod = c.Int("metrics-period")
		cfg.Pprof = c.Bool("pprof")

		if c.String("c") != "" {
			if err := parseJSONConfig(&cfg, c.String("c")); err != nil {
				return err
			}
		}

		if err := cfg.Validate(); err != nil {
			return errors.Wrap(err, "invalid configuration")
		}

		return run(cfg)
	}

	if err := myApp.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("chatd exited with error")
	}
}

func run(cfg Config) error {
	log := newLogger(cfg)
	log.WithFields(logrus.Fields{
		"listen":        cfg.Listen,
		"max_clients":   cfg.MaxClients,
		"max_rooms":     cfg.MaxRooms,
		"max_room_user": cfg.MaxRoomUser,
		"workers":       cfg.Workers,
		"queue_size":    cfg.QueueSize,
	}).Info("starting chatd")

	signal.Ignore(syscall.SIGPIPE)

	mx := &metrics.Counters{}
	logicQueue := queue.NewBounded[queue.Job](cfg.QueueSize)
	ioQueue := queue.NewBounded[queue.Job](cfg.QueueSize)

	rcfg := reactor.Config{
		ListenAddr: cfg.Listen,
		Backlog:    cfg.Backlog,
		MaxClients: cfg.MaxClients,
		RecvBuf:    cfg.RecvBuf,
		SendBuf:    cfg.SendBuf,
	}
	re, err := reactor.Open(rcfg, logicQueue, ioQueue, mx, log.WithField("component", "reactor"))
	if err != nil {
		return errors.Wrap(err, "reactor init failed")
	}

	scfg := chatstate.Config{
		MaxClients:  cfg.MaxClients,
		MaxRooms:    cfg.MaxRooms,
		MaxRoomUser: cfg.MaxRoomUser,
	}
	state := chatstate.New(scfg, log.WithField("component", "state"), mx)
	outbox := reactor.Outbox{IOQueue: ioQueue, Reactor: re}

	pool := worker.NewPool(cfg.Workers, logicQueue, state, outbox, mx, log.WithField("component", "worker"))
	pool.Start()

	metricsStop := make(chan struct{})
	go metrics.RunLogger(mx, cfg.MetricsLog, time.Duration(cfg.MetricsPeriod)*time.Second, log.WithField("component", "metrics"), metricsStop)

	if cfg.Pprof {
		go func() {
			log.WithError(http.ListenAndServe(":6060", nil)).Warn("pprof server exited")
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		log.WithField("signal", s).Info("shutdown requested")
		re.RequestShutdown()
	}()

	runErr := re.Run(cfg.Workers)
	pool.Wait()
	close(metricsStop)

	if runErr != nil {
		return errors.Wrap(runErr, "reactor run failed")
	}
	log.Info("chatd stopped")
	return nil
}

func newLogger(cfg Config) *logrus.Entry {
	l := logrus.New()
	if cfg.LogFormat == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if cfg.LogPath != "" {
		f, err := os.OpenFile(cfg.LogPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err == nil {
			l.SetOutput(f)
		} else {
			l.WithError(err).Warn("failed to open log file, falling back to stderr")
		}
	}
	return logrus.NewEntry(l)
}
