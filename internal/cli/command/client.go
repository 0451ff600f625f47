package command

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/gridmesh-go/internal/auth"
	"github.com/yndnr/gridmesh-go/internal/config"
	"github.com/yndnr/gridmesh-go/internal/infra/confloader"
	"github.com/yndnr/gridmesh-go/internal/locator"
	"github.com/yndnr/gridmesh-go/internal/rpc"
	"github.com/yndnr/gridmesh-go/internal/telemetry/logger"
	"github.com/yndnr/gridmesh-go/internal/transport"
)

// newClient builds an RPC client from configuration and flags.
func newClient(c *cli.Context) (*rpc.Client, *config.Config, error) {
	flags := ParseGlobalFlags(c)

	cfg := config.Default()
	opts := []confloader.Option{}
	if flags.Config != "" {
		opts = append(opts, confloader.WithConfigFile(flags.Config))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Verify(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log := cliLogger(cfg, flags.Verbose)

	if cfg.Comm.BindAddress != "" {
		if err := transport.SetLocalBind(cfg.Comm.BindAddress); err != nil {
			return nil, nil, fmt.Errorf("resolve bind address: %w", err)
		}
	}

	var clusterKey []byte
	if cfg.Auth.Backend != "null" {
		var err error
		clusterKey, err = cfg.Auth.KeyLoader()()
		if err != nil {
			return nil, nil, fmt.Errorf("load cluster key: %w", err)
		}
	}
	codecOpts := []rpc.CodecOption{rpc.WithCodecLogger(log)}
	if cfg.Auth.GlobalKeyFile != "" {
		globalKey, err := auth.GlobalKey(cfg.Auth.GlobalKeyLoader())
		if err != nil {
			return nil, nil, fmt.Errorf("load global key: %w", err)
		}
		codecOpts = append(codecOpts, rpc.WithGlobalKey(globalKey))
	}
	codec, err := rpc.NewCodec(cfg.Auth.Backend, clusterKey, codecOpts...)
	if err != nil {
		return nil, nil, err
	}

	loc := locator.New(locator.ClusterFromConfig(&cfg.Controller),
		cfg.Comm.MsgTimeout,
		locator.WithLogger(log))

	nodePort := relayPort(cfg)
	client := rpc.NewClient(codec, loc,
		cfg.Comm.MsgTimeout, cfg.Comm.TreeWidth, nodePort,
		rpc.WithClientLogger(log))

	return client, cfg, nil
}

// cliLogger logs to stderr so command output stays clean on stdout.
func cliLogger(cfg *config.Config, verbose bool) *slog.Logger {
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	var out io.Writer = os.Stderr
	if !verbose && level != "debug" {
		level = "error"
	}
	return logger.New(logger.Config{
		Level:  level,
		Format: "text",
		Output: out,
	})
}

// relayPort extracts the node relay port from the configured listen
// address.
func relayPort(cfg *config.Config) int {
	_, portStr, err := net.SplitHostPort(cfg.Relay.Addr)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}
