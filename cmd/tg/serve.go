package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alfredjeanlab/timegate/internal/archive"
	"github.com/alfredjeanlab/timegate/internal/config"
	"github.com/alfredjeanlab/timegate/internal/events"
	"github.com/alfredjeanlab/timegate/internal/policy"
	"github.com/alfredjeanlab/timegate/internal/server"
	"github.com/alfredjeanlab/timegate/internal/store"
	"github.com/alfredjeanlab/timegate/internal/telemetry"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the timegate server",
	GroupID: "system",
	Args:    cobra.NoArgs,
	// The server does not talk to another server.
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		slog.SetDefault(logger)

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx := context.Background()

		shutdownTracing, err := telemetry.Setup(ctx, cfg.OTELEndpoint)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("error flushing traces", "err", err)
			}
		}()
		if cfg.OTELEndpoint != "" {
			logger.Info("tracing enabled", "endpoint", cfg.OTELEndpoint)
		}

		st, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}

		// Create event publisher.
		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (TIMEGATE_NATS_URL not set)")
		}

		// Pick the policy source.
		var src policy.Source = policy.FileSource{Path: cfg.PolicyFile}
		if cfg.PolicyFromS3() {
			s3src, err := policy.NewS3Source(ctx, cfg.PolicyS3Bucket, cfg.PolicyS3Key, cfg.PolicyS3Region, cfg.PolicyS3Endpoint)
			if err != nil {
				publisher.Close()
				st.Close()
				return err
			}
			src = s3src
		}
		logger.Info("policy source", "source", src.String(), "poll_interval", cfg.PolicyPollInterval)

		gs := server.NewGateServer(st, publisher, policy.NewLoader(src), server.Options{
			TickInterval:  cfg.TickInterval,
			PollInterval:  cfg.PolicyPollInterval,
			PresenceStale: cfg.PresenceStale,
		})
		if err := gs.Enable(ctx); err != nil {
			publisher.Close()
			st.Close()
			return err
		}

		// Start the audit log archive.
		var archiver *archive.Scheduler
		if cfg.ArchiveEnabled() {
			var dests []archive.Destination
			if cfg.ArchiveS3Bucket != "" {
				d, err := archive.NewS3Destination(ctx, cfg.ArchiveS3Bucket, cfg.ArchiveS3Key, cfg.ArchiveS3Region, cfg.ArchiveS3Endpoint)
				if err != nil {
					logger.Error("failed to create S3 archive destination", "err", err)
				} else {
					dests = append(dests, d)
				}
			}
			if cfg.ArchiveGitRepo != "" {
				dests = append(dests, archive.NewGitDestination(cfg.ArchiveGitRepo, cfg.ArchiveGitFile, cfg.ArchiveGitBranch))
			}
			if len(dests) > 0 {
				archiver = archive.NewScheduler(st, dests, cfg.ArchiveInterval, cfg.ArchiveWindow, logger)
				archiver.Start()
				logger.Info("audit archive enabled", "interval", cfg.ArchiveInterval, "destinations", len(dests))
			}
		}

		grpcServer := server.NewGRPCServer(gs, cfg.AuthToken)
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			gs.Disable()
			if archiver != nil {
				archiver.Stop()
			}
			publisher.Close()
			st.Close()
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		// Cancelling the base context ends open event streams on shutdown.
		baseCtx, cancelStreams := context.WithCancel(ctx)
		defer cancelStreams()
		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           gs.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return baseCtx },
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Apply reload and override requests sent over NATS.
		var controlCancel context.CancelFunc
		controlDone := make(chan struct{})
		if cfg.NATSURL != "" {
			sub, err := events.NewNATSSubscriber(cfg.NATSURL)
			if err != nil {
				logger.Error("failed to create control subscriber", "err", err)
				close(controlDone)
			} else {
				var controlCtx context.Context
				controlCtx, controlCancel = context.WithCancel(ctx)
				go func() {
					defer close(controlDone)
					if err := gs.StartControlSubscriber(controlCtx, sub); err != nil {
						logger.Error("control subscriber error", "err", err)
					}
					sub.Close()
				}()
			}
		} else {
			close(controlDone)
		}

		logger.Info("timegate server started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"auth", cfg.AuthToken != "",
		)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		if controlCancel != nil {
			controlCancel()
		}
		<-controlDone

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		cancelStreams()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		gs.Disable()

		if archiver != nil {
			archiver.Stop()
		}

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}
