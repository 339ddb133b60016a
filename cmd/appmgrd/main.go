// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/appmgr/lib/clock"
	"github.com/bureau-foundation/appmgr/lib/config"
	"github.com/bureau-foundation/appmgr/lib/container"
	"github.com/bureau-foundation/appmgr/lib/install"
	"github.com/bureau-foundation/appmgr/lib/manager"
	"github.com/bureau-foundation/appmgr/lib/migration"
	"github.com/bureau-foundation/appmgr/lib/netctl"
	"github.com/bureau-foundation/appmgr/lib/pkgconfig"
	"github.com/bureau-foundation/appmgr/lib/pkgstate"
	"github.com/bureau-foundation/appmgr/lib/process"
	"github.com/bureau-foundation/appmgr/lib/registry"
	"github.com/bureau-foundation/appmgr/lib/sealed"
	"github.com/bureau-foundation/appmgr/lib/secretstore"
	"github.com/bureau-foundation/appmgr/lib/service"
	"github.com/bureau-foundation/appmgr/lib/version"
	"github.com/bureau-foundation/appmgr/lib/volume"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)

	flags := pflag.NewFlagSet("appmgrd", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", os.Getenv(config.EnvVar), "path to the daemon config file (default $"+config.EnvVar+")")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("appmgrd %s\n", version.Info())
		return nil
	}

	if configPath == "" {
		return fmt.Errorf("--config or %s is required", config.EnvVar)
	}
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger := service.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hostVersion, err := version.Host()
	if err != nil {
		return err
	}

	identity, created, err := sealed.EnsureIdentityFile(cfg.Secrets.IdentityFile)
	if err != nil {
		return fmt.Errorf("loading secret store identity: %w", err)
	}
	defer identity.Close()
	if created {
		logger.Info("generated secret store identity", "path", cfg.Secrets.IdentityFile)
	}

	clk := clock.Real()

	packages, err := pkgstate.Open(pkgstate.Config{
		Path:   cfg.Paths.RegistryPath(),
		Clock:  clk,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer packages.Close()

	secrets, err := secretstore.Open(secretstore.Config{
		Path:     cfg.Paths.SecretsPath(),
		Identity: identity,
		Clock:    clk,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer secrets.Close()

	runtime, err := container.Detect(cfg.Container.Engine, container.WithLogger(logger))
	if err != nil {
		return err
	}

	registryClient, err := registry.NewClient(registry.Config{
		BaseURL:    cfg.Registry.URL,
		HTTPClient: registryHTTPClient(cfg.Registry.RequestTimeout.Std()),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	volumes := &volume.Manager{Root: cfg.Paths.AppData, Logger: logger}
	managers := manager.NewRegistry(runtime, logger)
	defer managers.Close()

	metricsRegistry := prometheus.NewRegistry()
	metricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := newInstallMetrics(metricsRegistry)

	pipeline, err := install.New(install.Config{
		Registry:         registryClient,
		Packages:         packages,
		Secrets:          secrets,
		Images:           runtime,
		Volumes:          volumes,
		Interfaces:       &netctl.Controller{Logger: logger},
		Managers:         managers,
		Migrations:       &migration.Runner{Executor: runtime, Volumes: volumes, Logger: logger},
		Configurator:     &pkgconfig.Engine{Executor: runtime, Volumes: volumes, Logger: logger},
		CacheDir:         cfg.Paths.Cache,
		PublicDir:        cfg.Paths.Public,
		HostVersion:      hostVersion,
		DownloadTimeout:  cfg.Install.DownloadTimeout.Std(),
		ImageLoadTimeout: cfg.Install.ImageLoadTimeout.Std(),
		ProgressInterval: cfg.Install.ProgressInterval.Std(),
		Clock:            clk,
		Metrics:          metrics,
		Logger:           logger,
	})
	if err != nil {
		return err
	}
	// Runs before the stores close: in-flight installs are cancelled
	// and recorded as broken while the registry is still open.
	defer pipeline.Close()

	// Markers left by a crash between the two store commits.
	if outcomes, err := pipeline.Reconcile(ctx); err != nil {
		logger.Error("startup reconcile failed", "error", err)
	} else if len(outcomes) > 0 {
		logger.Warn("reconciled interrupted installs", "markers", len(outcomes))
	}

	daemon := &Daemon{
		installer: pipeline,
		packages:  packages,
		clock:     clk,
		startedAt: clk.Now(),
		logger:    logger,
	}

	socketServer := service.NewSocketServer(cfg.Paths.Socket, logger)
	daemon.registerActions(socketServer)

	socketDone := make(chan error, 1)
	go func() {
		socketDone <- socketServer.Serve(ctx)
	}()

	var metricsDone chan error
	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))
		metricsServer := service.NewHTTPServer(service.HTTPServerConfig{
			Address: cfg.Metrics.Listen,
			Handler: mux,
			Logger:  logger,
		})
		metricsDone = make(chan error, 1)
		go func() {
			metricsDone <- metricsServer.Serve(ctx)
		}()
	}

	logger.Info("appmgrd running",
		"version", version.Info(),
		"socket", cfg.Paths.Socket,
		"engine", runtime.Engine(),
		"registry", cfg.Registry.URL,
	)

	var socketErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		socketErr = <-socketDone
	case socketErr = <-socketDone:
		// The socket server only returns early when it cannot listen.
		stop()
	}

	if metricsDone != nil {
		if err := <-metricsDone; err != nil {
			logger.Error("metrics server error", "error", err)
		}
	}
	if socketErr != nil {
		return fmt.Errorf("socket server: %w", socketErr)
	}
	return nil
}

// registryHTTPClient bounds connection setup and response headers by
// requestTimeout. Bodies are bounded by the install's download
// timeout, so the client itself has no overall Timeout.
func registryHTTPClient(requestTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: requestTimeout}).DialContext
	transport.TLSHandshakeTimeout = requestTimeout
	transport.ResponseHeaderTimeout = requestTimeout
	return &http.Client{Transport: transport}
}
