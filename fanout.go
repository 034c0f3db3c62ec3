package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/beandb/fanout/admin"
	"github.com/beandb/fanout/cache"
	"github.com/beandb/fanout/cfg"
	"github.com/beandb/fanout/cluster"
	"github.com/beandb/fanout/index"
	_ "github.com/beandb/fanout/index/sink"
	"github.com/beandb/fanout/listener"
	"github.com/beandb/fanout/pipeline"
	"github.com/beandb/fanout/telemetry"
)

func main() {
	flag.Parse()

	// Load configuration
	err := cfg.Load(*cfg.ConfigPathFlag)
	if err != nil {
		panic(err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	// Setup logging
	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Str("server", cfg.Config.ServerName).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Msg("Fanout - Post-Commit Change Propagation")
	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()
	telemetry.InitMetrics()

	// Cache layer: per-bean-type LRU buckets plus the table name map used for
	// table-keyed invalidation.
	store := cache.NewStore(cfg.Config.Cache.BucketSize)
	tables := cache.NewTableMap()
	notifier := cache.NewNotifier(store, tables)

	// The daemon registers no listeners of its own; embedding applications
	// populate the registry before building their coordinator.
	dispatcher := listener.NewDispatcher(listener.NewBuilder().Build())

	// Cluster transport
	var transport cluster.Transport
	if cfg.Config.Cluster.Enabled {
		transport = cluster.NewNatsTransport(cfg.Config.Cluster.NatsURL, cfg.Config.Cluster.Subject)
	}
	broadcaster := cluster.NewBroadcaster(cfg.Config.ServerName, transport, notifier)
	if broadcaster.IsClustering() {
		if err := broadcaster.Join(); err != nil {
			log.Fatal().Err(err).Msg("Failed to join cluster")
			return
		}
		log.Info().
			Str("url", cfg.Config.Cluster.NatsURL).
			Str("subject", cfg.Config.Cluster.Subject).
			Msg("Joined cluster")
	}

	// Index path: collector + durable queue log + delivery worker. Without a
	// direct doc store client the queue-backed store routes bulk ops through
	// the sink as well.
	var (
		collector *index.Collector
		processor *index.Processor
		queueLog  *index.QueueLog
		worker    *index.Worker
	)
	if cfg.Config.Index.Enabled {
		filter, err := index.NewTypeFilter(cfg.Config.Index.EnabledTypes)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid index type patterns")
			return
		}
		collector = index.NewCollector(filter)

		queueLog, err = index.OpenQueueLog(cfg.Config.DataDir)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open index queue log")
			return
		}
		processor = index.NewProcessor(index.NewQueueBackedStore(queueLog), queueLog)

		if cfg.Config.Index.QueueSink != "" {
			sink, err := index.NewSink(cfg.Config.Index)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to create index sink")
				return
			}
			worker, err = index.NewWorker(index.WorkerConfig{
				Name:         cfg.Config.ServerName,
				Queue:        queueLog,
				Sink:         sink,
				TopicPrefix:  cfg.Config.Index.QueueTopic,
				PollInterval: time.Duration(cfg.Config.Index.PollIntervalMS) * time.Millisecond,
			})
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to create index delivery worker")
				return
			}
			worker.Start()
		}
	}

	// Pipeline: bounded background pool + coordinator
	pool := pipeline.NewPool(
		cfg.Config.Worker.PoolSize,
		cfg.Config.Worker.QueueSize,
		cfg.Config.Worker.QueueFullPolicy,
	)

	coord, err := pipeline.NewCoordinator(pipeline.Config{
		ServerName:  cfg.Config.ServerName,
		Notifier:    notifier,
		Dispatcher:  dispatcher,
		Collector:   collector,
		Processor:   processor,
		Broadcaster: broadcaster,
		Pool:        pool,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create pipeline coordinator")
		return
	}

	// HTTP surfaces
	var adminServer, metricsServer *http.Server
	if cfg.Config.Admin.Enabled {
		mux := http.NewServeMux()
		admin.RegisterRoutes(mux, admin.NewHandlers(broadcaster, coord, store, worker))
		adminServer = serveHTTP(cfg.Config.Admin.Address, cfg.Config.Admin.Port, mux, "admin")
	}
	if cfg.Config.Prometheus.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.GetMetricsHandler())
		metricsServer = serveHTTP(cfg.Config.Prometheus.Address, cfg.Config.Prometheus.Port, mux, "metrics")
	}

	log.Info().
		Str("server_name", cfg.Config.ServerName).
		Str("data_dir", cfg.Config.DataDir).
		Bool("clustering", broadcaster.IsClustering()).
		Bool("index", cfg.Config.Index.Enabled).
		Msg("Fanout started successfully")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	// Teardown order: stop accepting admin traffic, drain the background
	// pool, stop index delivery, leave the cluster, close the queue log.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shutdownHTTP(ctx, adminServer, "admin")
	shutdownHTTP(ctx, metricsServer, "metrics")

	pool.Stop()

	if worker != nil {
		worker.Stop()
	}

	if broadcaster.IsClustering() {
		if err := broadcaster.Leave(); err != nil {
			log.Warn().Err(err).Msg("Failed to leave cluster cleanly")
		}
	}

	if queueLog != nil {
		if err := queueLog.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close index queue log")
		}
	}

	log.Info().Msg("Shutdown complete")
}

func serveHTTP(address string, port int, mux *http.ServeMux, name string) *http.Server {
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", address, port),
		Handler: mux,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msgf("Starting %s HTTP server", name)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msgf("%s HTTP server failed", name)
		}
	}()
	return server
}

func shutdownHTTP(ctx context.Context, server *http.Server, name string) {
	if server == nil {
		return
	}
	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msgf("Failed to shut down %s HTTP server", name)
	}
}
