// Package main is the opsdesk command: a terminal client for the catalog
// and delivery-partner panels, and a local JSON portal over the same state.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/pitabwire/opsdesk/internal/config"
	"github.com/pitabwire/opsdesk/internal/endpoint"
	"github.com/pitabwire/opsdesk/internal/observability"
	"github.com/pitabwire/opsdesk/internal/oplog"
	"github.com/pitabwire/opsdesk/internal/store"
	"github.com/pitabwire/opsdesk/internal/tokenstore"
	"github.com/pitabwire/opsdesk/internal/transport"
	"github.com/pitabwire/opsdesk/model"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

const usage = `usage: opsdesk [-config path] <command> [flags]

commands:
  serve                       run the local portal
  attributes|brands|offers    list a catalog collection
  delivery                    show the delivery-partner panel
  statement -from -to         export an earnings statement
  token set|clear|inspect     manage the stored bearer token
  version                     print the build version
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// Step 1: Parse global flags.
	fs := flag.NewFlagSet("opsdesk", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", config.DefaultPath, "path to configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	name, rest := fs.Arg(0), fs.Args()[1:]
	if name == "version" {
		fmt.Fprintf(stdout, "opsdesk %s (%s)\n", version, commit)
		return 0
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		fs.Usage()
		return 2
	}

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "opsdesk", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}
	defer tracingShutdown(context.Background())

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a, err := newApp(cfg, logger, reg)
	if err != nil {
		logger.Error("initialization failed", zap.Error(err))
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	return cmd(ctx, a, rest, stdout, stderr)
}

// app holds the wired client: one transport, one set of endpoint wrappers,
// and the shared operation log. Stores are built per command.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *observability.Metrics
	gatherer prometheus.Gatherer
	tokens   tokenstore.Store
	api      *endpoint.API
	oplog    *oplog.Log
}

func newApp(cfg *config.Config, logger *zap.Logger, reg *prometheus.Registry) (*app, error) {
	var metrics *observability.Metrics
	if cfg.Observability.Metrics.Enabled {
		metrics = observability.InitMetrics(reg)
	}

	tokens, err := tokenstore.Open(cfg.Auth)
	if err != nil {
		return nil, err
	}

	client, err := transport.New(transport.ConfigFrom(cfg.API),
		transport.WithLogger(logger),
		transport.WithMetrics(metrics),
		transport.WithRequestInterceptor(transport.RequestIDInterceptor()),
		transport.WithRequestInterceptor(transport.AuthInterceptor(tokens, logger)),
		transport.WithResponseInterceptor(transport.NewLoggingInterceptor(logger)),
	)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		gatherer: reg,
		tokens:   tokens,
		api:      endpoint.New(client, logger, endpoint.WithMetrics(metrics)),
		oplog:    oplog.New(cfg.Stores.OperationLogCapacity),
	}, nil
}

// storeOptions returns the options shared by every state container. f is
// applied on top of the configured page size.
func (a *app) storeOptions(f model.Filter) []store.Option {
	var base model.Filter
	if a.cfg.Stores.PerPage > 0 {
		base.PerPage = model.Int(a.cfg.Stores.PerPage)
	}
	opts := []store.Option{
		store.WithLogger(a.logger),
		store.WithMetrics(a.metrics),
		store.WithOperationLog(a.oplog),
		store.WithFilter(base.Merge(f)),
	}
	if a.cfg.Stores.DiscardStale {
		opts = append(opts, store.WithStaleGuard())
	}
	return opts
}

// exitCode maps an action result to a process exit code.
func exitCode(res model.Result) int {
	if res.Success {
		return 0
	}
	return 1
}
