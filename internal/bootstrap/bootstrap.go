// Package bootstrap wires together one group server process: load
// config, connect to the directory, load every owned region's graph,
// publish ownership, start the worker pool and dispatcher, serve until
// cancelled, then shut down with a bounded timeout.
//
// Grounded on cmd/qumo-relay/main.go's load-config / build-dependencies /
// start-servers / wait-for-signal / graceful-shutdown skeleton.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	cfgpkg "github.com/okdaichi/pathmesh/internal/config"
	"github.com/okdaichi/pathmesh/internal/directory"
	"github.com/okdaichi/pathmesh/internal/dispatcher"
	"github.com/okdaichi/pathmesh/internal/graph"
	"github.com/okdaichi/pathmesh/internal/health"
	"github.com/okdaichi/pathmesh/internal/objectstore"
	"github.com/okdaichi/pathmesh/internal/request"
	"github.com/okdaichi/pathmesh/internal/transport"
	"github.com/okdaichi/pathmesh/internal/transport/pubsubtransport"
	"github.com/okdaichi/pathmesh/internal/transport/zmqtransport"
	"github.com/okdaichi/pathmesh/internal/worker"
)

// shutdownTimeout bounds how long the health/metrics HTTP server's graceful
// shutdown may take, matching cmd/qumo-relay/main.go's own bound. Workers,
// the dispatcher and the transport are stopped without waiting for
// in-flight requests.
const shutdownTimeout = 10 * time.Second

// Run executes the full bootstrap sequence and blocks until ctx is
// cancelled, then shuts every component down.
func Run(ctx context.Context, cfg cfgpkg.Config, log *slog.Logger) error {
	dir, err := directory.New(cfg.RedisURL, cfg.RedisConnectionCount, log)
	if err != nil {
		return fmt.Errorf("bootstrap: connecting to directory: %w", err)
	}
	defer dir.Close()

	store, err := newObjectStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: building object store: %w", err)
	}

	manifest, err := store.LoadGroupManifest(ctx, cfg.GroupID)
	if err != nil {
		return fmt.Errorf("bootstrap: loading group manifest: %w", err)
	}

	graphs := make(map[uint32]*graph.Graph, len(manifest.Regions))
	for _, regionID := range manifest.Regions {
		g, err := store.LoadRegion(ctx, regionID)
		if err != nil {
			return fmt.Errorf("bootstrap: loading region %d: %w", regionID, err)
		}
		graphs[regionID] = g
		if err := dir.SetRegion(ctx, cfg.GroupID, cfg.ForwardAddr, g); err != nil {
			return fmt.Errorf("bootstrap: publishing ownership of region %d: %w", regionID, err)
		}
		log.Info("loaded region", "region_id", regionID, "nodes", len(g.Nodes), "edges", len(g.Edges))
	}

	listener, sender, replier, closeTransport, err := newTransport(ctx, cfg, dir, log)
	if err != nil {
		return fmt.Errorf("bootstrap: building transport: %w", err)
	}
	defer closeTransport()

	reg := prometheus.NewRegistry()
	metrics := health.NewMetrics(reg)

	free := make(chan uint32, cfg.WorkerCount)
	workers := make(map[uint32]chan<- request.PathRequest, cfg.WorkerCount)
	deps := worker.Deps{Graphs: graphs, Directory: dir, Sender: sender, Replier: replier, Log: log, Metrics: metrics}

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	for i := 0; i < cfg.WorkerCount; i++ {
		w := worker.New(uint32(i), free, deps)
		workers[w.ID] = w.In
		go w.Run(workerCtx)
	}

	healthHandler := health.New(cfg.WorkerCount, func() []health.RegionStats {
		stats := make([]health.RegionStats, 0, len(graphs))
		for id, g := range graphs {
			stats = append(stats, health.RegionStats{RegionID: id, Nodes: len(g.Nodes), Edges: len(g.Edges)})
		}
		return stats
	})
	healthHandler.SetDirectoryUp(true)

	var httpServer *http.Server
	if cfg.HealthAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", healthHandler.ServeHTTP)
		mux.HandleFunc("/health/live", healthHandler.ServeLive)
		mux.HandleFunc("/health/ready", healthHandler.ServeReady)
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

		httpServer = &http.Server{Addr: cfg.HealthAddr, Handler: mux}
		go func() {
			log.Info("health/metrics server starting", "addr", cfg.HealthAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("health/metrics server error", "error", err)
			}
		}()
	}

	d := &dispatcher.Dispatcher{Listener: listener, Free: free, Workers: workers, Log: log}
	go d.Run(workerCtx)

	log.Info("group server started", "group_id", cfg.GroupID, "regions", manifest.Regions, "worker_count", cfg.WorkerCount)

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("error shutting down health server", "error", err)
		}
	}

	return nil
}

func newObjectStore(ctx context.Context, cfg cfgpkg.Config) (*objectstore.S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.GoogleCloudRegion),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.GoogleAccessKey, cfg.GoogleSecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// GCS's S3-interoperability (XML API) endpoint.
		o.BaseEndpoint = aws.String("https://storage.googleapis.com")
		o.UsePathStyle = true
	})
	return objectstore.New(client, cfg.GoogleCloudBucket), nil
}

// newTransport picks the ZMQ or pub/sub backend per cfg.ZMQMode, never
// mixing the two.
func newTransport(ctx context.Context, cfg cfgpkg.Config, dir *directory.Client, log *slog.Logger) (transport.Listener, transport.Sender, transport.Replier, func(), error) {
	if cfg.ZMQMode {
		listener, err := zmqtransport.NewListener(cfg.ListenAddr, cfg.ForwardAddr)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		replier, err := zmqtransport.NewReplier(cfg.ReplyAddr)
		if err != nil {
			listener.Close()
			return nil, nil, nil, nil, err
		}
		servers, err := dir.GetServers(ctx)
		if err != nil {
			listener.Close()
			replier.Close()
			return nil, nil, nil, nil, err
		}
		addrs := make(map[uint32]string, len(servers))
		for id, info := range servers {
			addrs[id] = info.Addr
		}
		sender := zmqtransport.NewSender(addrs, log)
		return listener, sender, replier, func() { listener.Close(); replier.Close() }, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	listener, err := pubsubtransport.NewListener(ctx, rdb, cfg.GroupID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	replier := pubsubtransport.NewReplier(rdb)
	sender := pubsubtransport.NewSender(rdb)
	return listener, sender, replier, func() { listener.Close(); rdb.Close() }, nil
}
