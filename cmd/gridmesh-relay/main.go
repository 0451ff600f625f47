package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/gridmesh-go/internal/auth"
	"github.com/yndnr/gridmesh-go/internal/config"
	"github.com/yndnr/gridmesh-go/internal/discovery"
	"github.com/yndnr/gridmesh-go/internal/infra/confloader"
	"github.com/yndnr/gridmesh-go/internal/infra/shutdown"
	"github.com/yndnr/gridmesh-go/internal/relay"
	"github.com/yndnr/gridmesh-go/internal/rpc"
	"github.com/yndnr/gridmesh-go/internal/telemetry/logger"
	"github.com/yndnr/gridmesh-go/internal/telemetry/metric"
	"github.com/yndnr/gridmesh-go/internal/transport"
)

// Build information, set via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("gridmesh-relay %s (commit: %s, built: %s)\n", version, commit, buildTime)
		return nil
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	slog.SetDefault(log)

	log.Info("starting gridmesh-relay",
		"version", version,
		"commit", commit,
		"config", *configFile)

	// Metrics registry, exposed only when enabled.
	metrics := metric.NewNop()
	var promReg *prometheus.Registry
	if cfg.Metrics.Enabled {
		promReg = prometheus.NewRegistry()
		metrics = metric.NewPrometheus(promReg)
	}

	codec, err := initCodec(cfg)
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}

	if cfg.Comm.BindAddress != "" {
		if err := transport.SetLocalBind(cfg.Comm.BindAddress); err != nil {
			return fmt.Errorf("resolve bind address: %w", err)
		}
	}

	nodeName := cfg.Gossip.NodeName
	if nodeName == "" {
		nodeName, _ = os.Hostname()
	}

	// Subtree forwards resolve peers through the gossip view once it is
	// up; the pointer is filled after the relay binds its port.
	var gossip atomic.Pointer[discovery.Discovery]
	srv := relay.New(relay.FromSections(cfg, nodeName), codec, nil,
		relay.WithLogger(log),
		relay.WithMetrics(metrics),
		relay.WithPeerResolver(func(node string) string {
			if d := gossip.Load(); d != nil {
				return d.RelayAddr(node)
			}
			return ""
		}))

	ctx := context.Background()
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start relay: %w", err)
	}
	log.Info("relay listening", "addr", cfg.Relay.Addr, "port", srv.Port())

	disc, err := initDiscovery(cfg, nodeName, srv.Port(), log)
	if err != nil {
		srv.Shutdown(ctx)
		return fmt.Errorf("init discovery: %w", err)
	}
	if disc != nil {
		gossip.Store(disc)
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = startMetrics(cfg.Metrics.Addr, promReg, log)
	}

	watcher, err := watchConfig(*configFile, log)
	if err != nil {
		log.Warn("config reload disabled", "error", err)
	}

	shutdownHandler := shutdown.NewHandler(30 * time.Second)

	// Hooks run in reverse order of startup.
	if watcher != nil {
		shutdownHandler.OnShutdown(func(ctx context.Context) error {
			return watcher.Stop()
		})
	}
	if metricsSrv != nil {
		shutdownHandler.OnShutdown(func(ctx context.Context) error {
			log.Info("shutting down metrics endpoint")
			return metricsSrv.Shutdown(ctx)
		})
	}
	if disc != nil {
		shutdownHandler.OnShutdown(func(ctx context.Context) error {
			log.Info("leaving gossip mesh")
			disc.Leave()
			return disc.Shutdown()
		})
	}
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down relay")
		return srv.Shutdown(ctx)
	})

	log.Info("relay started", "node", nodeName)
	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("relay stopped gracefully")
	return nil
}

// loadConfig loads configuration from file and environment.
func loadConfig(configFile string) (*config.Config, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}

	loader := confloader.NewLoader(opts...)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// initCodec loads the cluster key, and the cross-cluster key when one
// is configured, and builds the frame codec.
func initCodec(cfg *config.Config) (*rpc.Codec, error) {
	var clusterKey []byte
	if cfg.Auth.Backend != "null" {
		var err error
		clusterKey, err = cfg.Auth.KeyLoader()()
		if err != nil {
			return nil, err
		}
	}

	var opts []rpc.CodecOption
	if cfg.Auth.GlobalKeyFile != "" {
		globalKey, err := auth.GlobalKey(cfg.Auth.GlobalKeyLoader())
		if err != nil {
			return nil, err
		}
		opts = append(opts, rpc.WithGlobalKey(globalKey))
	}
	return rpc.NewCodec(cfg.Auth.Backend, clusterKey, opts...)
}

// initDiscovery joins the gossip mesh, advertising the relay's
// control port. Disabled when no bind address is configured.
func initDiscovery(cfg *config.Config, nodeName string, relayPort int, log *slog.Logger) (*discovery.Discovery, error) {
	if cfg.Gossip.BindAddr == "" {
		log.Info("gossip discovery disabled")
		return nil, nil
	}

	host, _, err := net.SplitHostPort(cfg.Relay.Addr)
	if err != nil || host == "" || host == "0.0.0.0" {
		host, _ = os.Hostname()
	}

	return discovery.New(discovery.Config{
		NodeName:  nodeName,
		BindAddr:  cfg.Gossip.BindAddr,
		BindPort:  cfg.Gossip.BindPort,
		RelayAddr: net.JoinHostPort(host, strconv.Itoa(relayPort)),
		Seeds:     cfg.Gossip.Seeds,
		Logger:    log,
	})
}

// watchConfig reloads the mutable log level when the config file
// changes. Immutable keys (addresses, keys, limits) require a restart.
func watchConfig(configFile string, log *slog.Logger) (*confloader.Watcher, error) {
	if configFile == "" {
		return nil, nil
	}

	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(configFile); err != nil {
		watcher.Stop()
		return nil, err
	}

	watcher.OnChange(func(path string) {
		cfg, err := loadConfig(path)
		if err != nil {
			log.Warn("config reload failed, keeping current settings",
				"path", path, "error", err)
			return
		}
		if cfg.Log.Level != logger.GetLevel() {
			log.Info("log level changed", "level", cfg.Log.Level)
			logger.SetLevel(cfg.Log.Level)
		}
	})

	watcher.StartAsync()
	return watcher, nil
}

// startMetrics serves the Prometheus exposition endpoint.
func startMetrics(addr string, reg *prometheus.Registry, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metric.Handler(reg))

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Info("metrics endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics endpoint error", "error", err)
		}
	}()
	return srv
}
