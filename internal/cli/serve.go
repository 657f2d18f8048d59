package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/graphsync/pkg/config"
	"github.com/matzehuels/graphsync/pkg/fanout"
	"github.com/matzehuels/graphsync/pkg/gateway"
	"github.com/matzehuels/graphsync/pkg/graph"
	"github.com/matzehuels/graphsync/pkg/layout"
	"github.com/matzehuels/graphsync/pkg/mirror"
	"github.com/matzehuels/graphsync/pkg/observability"
)

// serveCommand creates the serve command that runs the graph server.
func (c *CLI) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the graph sync server",
		Long: `Run the graph sync server until interrupted.

Settings come from the built-in defaults, the config file, GRAPHSYNC_*
environment variables and finally the flags below. On SIGINT or SIGTERM the
server stops accepting requests, finishes in-flight mutations and closes every
subscriber and mirror.`,
		Example: `  graphsync serve
  graphsync serve --addr :9090 --metrics
  graphsync serve --load snapshot.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(cmd)
			if err != nil {
				return err
			}
			seed, _ := cmd.Flags().GetString("load")
			return c.runServe(cmd.Context(), cfg, seed)
		},
	}

	cmd.Flags().String("config", "", "config file (default $XDG_CONFIG_HOME/graphsync/config.toml)")
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	cmd.Flags().Bool("metrics", false, "expose Prometheus metrics on /metrics")
	cmd.Flags().String("load", "", "seed the graph from a node-link JSON snapshot")

	return cmd
}

// loadServeConfig layers explicitly set flags over the loaded configuration.
func loadServeConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if flags.Changed("addr") {
		cfg.Server.Addr, _ = flags.GetString("addr")
	}
	if flags.Changed("metrics") {
		cfg.Metrics.Enabled, _ = flags.GetBool("metrics")
	}
	return cfg, cfg.Validate()
}

// runServe wires the store, hub and gateway from cfg and serves until ctx is
// cancelled or the listener fails. A non-empty seed is loaded into the store
// before the listener opens.
func (c *CLI) runServe(ctx context.Context, cfg config.Config, seed string) error {
	if c.Logger.GetLevel() > log.DebugLevel {
		level, err := config.ParseLevel(cfg.Log.Level)
		if err != nil {
			return err
		}
		c.SetLogLevel(level)
	}
	logger := c.Logger

	var metrics http.Handler
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		prom := observability.NewPrometheus(reg)
		observability.SetGraphHooks(prom)
		observability.SetFanoutHooks(prom)
		observability.SetHTTPHooks(prom)
		defer observability.Reset()
		metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	store := graph.NewStore(graph.Options{
		Width:  cfg.Graph.CanvasWidth,
		Height: cfg.Graph.CanvasHeight,
		Logger: logger,
	})
	if seed != "" {
		g, err := graph.ReadGraphFile(seed)
		if err != nil {
			return err
		}
		stats := graph.Load(store, g)
		logger.Info("loaded snapshot", "file", seed, "nodes", stats.Nodes, "edges", stats.Edges, "dropped_edges", stats.DroppedEdges)
	}

	hub := fanout.NewHub(logger)
	defer hub.Shutdown()

	if err := attachMirrors(ctx, cfg.Mirror, hub, logger); err != nil {
		return err
	}

	gw := gateway.New(store, hub, gateway.Options{
		Layout: layout.New(layout.Config{
			Width:      cfg.Graph.CanvasWidth,
			Height:     cfg.Graph.CanvasHeight,
			Iterations: cfg.Graph.LayoutIterations,
			Padding:    cfg.Graph.LayoutPadding,
			Logger:     logger,
		}),
		LayoutIterations: cfg.Graph.LayoutIterations,
		Logger:           logger,
	})

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: gateway.NewServer(gw, gateway.ServerOptions{
			MaxBodyBytes:   cfg.Server.MaxBodyBytes,
			MaxDepth:       cfg.Server.MaxDepth,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			WebSocket: fanout.WebSocketOptions{
				SendBuffer:   cfg.Fanout.SendBuffer,
				WriteTimeout: cfg.Fanout.WriteTimeout.Duration,
				PingInterval: cfg.Fanout.PingInterval.Duration,
				Logger:       logger,
			},
			Metrics: metrics,
			Logger:  logger,
		}),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout.Duration,
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
	}

	logger.Info("graph sync server listening", "addr", ln.Addr().String(), "metrics", cfg.Metrics.Enabled)
	prog := newProgress(logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "subscribers", hub.Count())

		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		err := srv.Shutdown(sctx)
		// Websocket connections are hijacked, so Shutdown does not wait for
		// them. Closing the hub ends them and drains the mirrors.
		hub.Shutdown()
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	prog.done("Server stopped")
	return nil
}

// attachMirrors connects the enabled mirrors and registers their relays as
// hub sinks.
func attachMirrors(ctx context.Context, cfg config.MirrorConfig, hub *fanout.Hub, logger *log.Logger) error {
	if cfg.Redis.Enabled {
		pub, err := mirror.NewRedisPublisher(ctx, mirror.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		})
		if err != nil {
			return err
		}
		relay := mirror.NewRelay("redis", pub, mirror.RelayOptions{QueueSize: cfg.Redis.QueueSize, Logger: logger})
		if err := hub.Attach(relay.Name(), relay); err != nil {
			relay.Close()
			return err
		}
		logger.Info("mirroring events to redis", "addr", cfg.Redis.Addr, "channel", pub.Channel())
	}

	if cfg.Mongo.Enabled {
		pub, err := mirror.NewMongoJournal(ctx, mirror.MongoOptions{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
		})
		if err != nil {
			return err
		}
		relay := mirror.NewRelay("mongo", pub, mirror.RelayOptions{QueueSize: cfg.Mongo.QueueSize, Logger: logger})
		if err := hub.Attach(relay.Name(), relay); err != nil {
			relay.Close()
			return err
		}
		logger.Info("journaling events to mongo", "database", cfg.Mongo.Database, "collection", cfg.Mongo.Collection)
	}
	return nil
}
