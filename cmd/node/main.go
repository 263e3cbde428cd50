package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/nfrund/wirecall/internal/app"
	"github.com/nfrund/wirecall/internal/cluster"
	"github.com/nfrund/wirecall/internal/config"
	"github.com/nfrund/wirecall/internal/events"
	"github.com/nfrund/wirecall/internal/schema"
)

// version can be set at build time.
// Example: go build -ldflags "-X 'main.version=1.2.0'"
var version = "dev"

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := run(cfg); err != nil {
		slog.Error("Node stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if cfg.SchemaFile != "" {
		if err := checkDefinitions(afero.NewOsFs(), cfg.SchemaFile); err != nil {
			return err
		}
	}

	samples := newSamples()
	a := app.New(cfg, app.Options{
		Version: version,
		Cluster: func(c *cluster.Configuration) { samples.configureCluster(c) },
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := start(ctx, a, cfg, samples)
	if err == nil {
		// Wait for interrupt signal to gracefully shut down the node.
		select {
		case <-ctx.Done():
		case err = <-a.Serving():
			if err != nil {
				err = fmt.Errorf("admin server: %w", err)
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := a.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}

func start(ctx context.Context, a *app.App, cfg *config.Config, samples *samples) error {
	logger, err := a.Logger()
	if err != nil {
		return err
	}
	n, err := a.Node()
	if err != nil {
		return err
	}
	if err := samples.register(n, cfg); err != nil {
		return err
	}
	client, err := a.ClusterClient()
	if err != nil {
		return err
	}
	if err := samples.connectCluster(n, client); err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	go samples.heartbeat(ctx, logger)
	logger.Info("node running", "version", version, "admin", cfg.AdminAddr)
	return nil
}

// checkDefinitions fails when the definition file disagrees with the
// interfaces compiled into this binary.
func checkDefinitions(fs afero.Fs, path string) error {
	loaded, err := schema.LoadFile(fs, path, events.Catalog())
	if err != nil {
		return err
	}
	compiled := make(map[string]*schema.InterfaceDescriptor)
	for _, d := range events.Descriptors() {
		compiled[d.Name] = d
	}
	for _, d := range loaded {
		if c, ok := compiled[d.Name]; ok && c.Fingerprint() != d.Fingerprint() {
			return fmt.Errorf("definition of %s in %s does not match the compiled interface", d.Name, path)
		}
	}
	return nil
}
