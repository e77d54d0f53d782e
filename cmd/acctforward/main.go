package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgeisp/acctforward/config"
	"github.com/edgeisp/acctforward/forwarder"
	"github.com/edgeisp/acctforward/metrics"
	"github.com/edgeisp/acctforward/sink"
	"github.com/edgeisp/acctforward/source"
)

const notifyChannel = "radacct_change"

var (
	version    = ""
	buildinfos = ""
	AppVersion = "acctforward " + version + " " + buildinfos

	LogLevel = flag.String("loglevel", "", "Log level (overrides LOG_LEVEL)")
	LogFmt   = flag.String("logfmt", "normal", "Log formatter")

	ConfigFile = flag.String("config", "", "Optional YAML configuration file")

	Addr = flag.String("addr", ":8080", "HTTP server address for metrics and health")

	Version = flag.Bool("v", false, "Print version")
)

func main() {
	flag.Parse()

	if *Version {
		fmt.Println(AppVersion)
		os.Exit(0)
	}

	cfg, err := config.Load(*ConfigFile)
	if err != nil {
		log.Fatal("error loading configuration: ", err)
	}
	if *LogLevel != "" {
		cfg.LogLevel = *LogLevel
	}

	var loglevel slog.Level
	if err := loglevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatal("error parsing log level")
	}

	lo := slog.HandlerOptions{
		Level: loglevel,
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &lo))

	switch *LogFmt {
	case "json":
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &lo))
	}

	slog.SetDefault(logger)

	logger.Info("starting accounting forwarder",
		slog.String("postgres", cfg.Postgres.Addr()+"/"+cfg.Postgres.Database),
		slog.String("clickhouse", cfg.ClickHouse.Addr()+"/"+cfg.ClickHouse.Database),
		slog.Int("batch_size", cfg.BatchSize),
		slog.Int("poll_interval_seconds", cfg.PollIntervalSeconds),
		slog.String("edge_site_id", cfg.EdgeSiteID))

	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-c
		logger.Info("received signal, shutting down", slog.String("signal", sig.String()))
		cancel()
	}()

	var running bool
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/__health", func(wr http.ResponseWriter, r *http.Request) {
		if !running {
			wr.WriteHeader(http.StatusServiceUnavailable)
			if _, err := wr.Write([]byte("Not OK\n")); err != nil {
				logger.Error("error writing HTTP", slog.String("error", err.Error()))
			}
		} else {
			wr.WriteHeader(http.StatusOK)
			if _, err := wr.Write([]byte("OK\n")); err != nil {
				logger.Error("error writing HTTP", slog.String("error", err.Error()))
			}
		}
	})
	srv := http.Server{
		Addr:              *Addr,
		ReadHeaderTimeout: time.Second * 5,
	}
	if *Addr != "" {
		go func() {
			err := srv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", slog.String("error", err.Error()))
				os.Exit(1)
			}
		}()
	}

	src, err := source.Open(ctx, cfg.Postgres, logger.With(slog.String("store", "postgres")))
	if err != nil {
		logger.Info("shutdown requested before source connected")
		os.Exit(0)
	}
	snk, err := sink.Open(ctx, cfg.ClickHouse, logger.With(slog.String("store", "clickhouse")))
	if err != nil {
		logger.Info("shutdown requested before sink connected")
		src.Close()
		os.Exit(0)
	}
	if err := src.Listen(notifyChannel); err != nil {
		logger.Error("error subscribing to notifications", slog.String("error", err.Error()))
		os.Exit(1)
	}

	recorder := metrics.NewRecorder(time.Now().UTC())
	loop := &forwarder.Loop{
		Cycle: &forwarder.Cycle{
			Source:    src,
			Sink:      snk,
			BatchSize: cfg.BatchSize,
			SiteID:    cfg.EdgeSiteID,
			Now:       func() time.Time { return time.Now().UTC() },
			Log:       logger,
		},
		Notifier:     src,
		SourceConn:   src,
		SinkConn:     snk,
		PollInterval: time.Duration(cfg.PollIntervalSeconds) * time.Second,
		Metrics:      recorder,
		Log:          logger,
	}

	running = true
	loop.Run(ctx)
	running = false

	snap := recorder.Snapshot()
	logger.Info("final metrics",
		slog.Uint64("total_forwarded", snap.TotalForwarded),
		slog.Uint64("total_batches", snap.TotalBatches),
		slog.Uint64("total_errors", snap.TotalErrors),
		slog.Time("started_at", snap.StartedAt),
		slog.Time("last_forward_time", snap.LastForwardTime))

	src.Close()
	snk.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
	}

	logger.Info("accounting forwarder stopped")
}
