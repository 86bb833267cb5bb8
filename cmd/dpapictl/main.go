// Package main provides dpapictl, a thin operator CLI wrapping Protect and
// Unprotect for manual testing, plus a serve-metrics command for hosts that
// want to scrape this library's counters out of process.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/allisson/dpapi-ng/dpaping"
	"github.com/allisson/dpapi-ng/internal/app"
	"github.com/allisson/dpapi-ng/internal/config"
)

func closeContainer(container *app.Container, logger *slog.Logger) {
	if err := container.Shutdown(context.Background()); err != nil {
		logger.Error("failed to shutdown container", slog.Any("error", err))
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "dpapictl",
		Usage:   "DPAPI-NG protect/unprotect operator CLI",
		Version: "1.0.0",
		Commands: []*cli.Command{
			{
				Name:  "protect",
				Usage: "Protect stdin under a protection-descriptor SID, writing the DPAPI-NG blob to stdout",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "sid",
						Usage:    "Protection-descriptor SID (e.g. S-1-5-21-...)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "root-key-id",
						Usage: "Pin to a specific locally-loaded root key instead of auto-selecting",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runProtect(ctx, cmd.String("sid"), cmd.String("root-key-id"))
				},
			},
			{
				Name:  "unprotect",
				Usage: "Unprotect a base64 DPAPI-NG blob from stdin, writing the plaintext to stdout",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runUnprotect(ctx)
				},
			},
			{
				Name:  "serve-metrics",
				Usage: "Serve the /metrics Prometheus endpoint",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runServeMetrics(ctx)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("dpapictl error", slog.Any("error", err))
		os.Exit(1)
	}
}

// options builds the dpaping.Option set shared by protect/unprotect: a
// locally-loaded root-key chain (when ROOT_KEYS is set), the container's
// shared cache, and its metrics/audit sink.
func options(container *app.Container, rootKeyID string) ([]dpaping.Option, error) {
	opts := []dpaping.Option{
		dpaping.WithCache(container.Cache()),
		dpaping.WithLogger(container.Logger()),
		dpaping.WithAuditSink(container.AuditSink()),
	}

	if chain, err := container.RootKeys(); err == nil {
		opts = append(opts, dpaping.WithRootKeys(chain))
	}

	if m, err := container.Metrics(); err == nil {
		opts = append(opts, dpaping.WithMetrics(m))
	}

	if rootKeyID != "" {
		id, err := uuid.Parse(rootKeyID)
		if err != nil {
			return nil, fmt.Errorf("invalid --root-key-id: %w", err)
		}
		opts = append(opts, dpaping.WithRootKeyID(id))
	}

	return opts, nil
}

func runProtect(ctx context.Context, sid, rootKeyID string) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("failed to read stdin: %w", err)
	}

	opts, err := options(container, rootKeyID)
	if err != nil {
		return err
	}

	blob, err := dpaping.Protect(ctx, data, sid, opts...)
	if err != nil {
		return fmt.Errorf("protect failed: %w", err)
	}

	fmt.Println(base64.StdEncoding.EncodeToString(blob))
	return nil
}

func runUnprotect(ctx context.Context) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	encoded, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("failed to read stdin: %w", err)
	}

	blob, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(encoded)))
	if err != nil {
		return fmt.Errorf("stdin is not valid base64: %w", err)
	}

	opts, err := options(container, "")
	if err != nil {
		return err
	}

	plaintext, err := dpaping.Unprotect(ctx, blob, opts...)
	if err != nil {
		return fmt.Errorf("unprotect failed: %w", err)
	}

	_, err = os.Stdout.Write(plaintext)
	return err
}

func runServeMetrics(ctx context.Context) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	server, err := container.HTTPServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		return server.Shutdown(context.Background())
	case err := <-serverErr:
		return err
	}
}

