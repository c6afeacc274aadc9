package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"netrunner/internal/deployment"
	"netrunner/internal/metrics"
	"netrunner/internal/server"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	serveHost      string
	servePort      int
	serveNoRefresh bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the deployment records over HTTP",
	Long: `Start a read-only JSON API over the recorded deployments, comparisons and
workflow runs, with Prometheus metrics on /metrics.

Unfinished runs are refreshed from GitHub in the background every
server.refresh_interval.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", getEnvOrDefault("NETRUNNER_HOST", ""), "Host to bind to (default: server.host)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default: server.port)")
	serveCmd.Flags().BoolVar(&serveNoRefresh, "no-refresh", false, "Do not poll GitHub; serve the records as they are")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(appOptions{jsonLogs: true})
	if err != nil {
		return err
	}
	defer a.Close()

	host := a.cfg.Server.Host
	if serveHost != "" {
		host = serveHost
	}
	port := a.cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}

	m := metrics.New()
	opts := server.Options{
		RateLimit: a.cfg.Server.RateLimit,
		Metrics:   m,
		Version:   version,
	}

	var refresher *deployment.Refresher
	if !serveNoRefresh {
		client, err := a.client()
		if err != nil {
			return err
		}
		refresher = deployment.NewRefresher(client, a.hist, m, a.logger)
		opts.Refresher = refresher
	}

	srv := server.NewServer(a.hist, a.logger, opts)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	if refresher != nil {
		g.Go(func() error {
			refresher.Run(ctx, a.cfg.Server.RefreshInterval)
			return nil
		})
	}
	g.Go(func() error {
		// A listen failure must also stop the refresher.
		defer stop()
		return srv.Start(ctx, host, port)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("Server failed", "error", err)
		return err
	}
	return nil
}
