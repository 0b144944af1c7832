// Package main serves pipeline animations over HTTP: JSON frames for
// polling renderers, Server-Sent Events for live viewers, the run journal,
// and debug endpoints.
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

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentflow/agentflow/internal/app/dto"
	"github.com/agentflow/agentflow/internal/app/services"
	"github.com/agentflow/agentflow/internal/bootstrap"
	"github.com/agentflow/agentflow/internal/config"
	"github.com/agentflow/agentflow/internal/core/channel"
	"github.com/agentflow/agentflow/internal/logging"
	"github.com/agentflow/agentflow/pkg/agentflow"
	"github.com/agentflow/agentflow/pkg/prebuilt"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "agentflow-server",
		Short:         "Serve pipeline animations over HTTP",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, nil)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	return cmd
}

// serve runs the server until ctx is done. A nil listener listens on the
// configured address.
func serve(ctx context.Context, cfg *config.Config, ln net.Listener) error {
	logger, err := bootstrap.Logger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	logger = logging.Component(logger, "server")

	repo, defaultName, err := bootstrap.Catalog(ctx, cfg.Pipeline)
	if err != nil {
		return err
	}
	journal, err := bootstrap.OpenJournal(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer journal.Close()

	srv := newServer(repo, defaultName,
		dto.CanvasQuery{Width: cfg.Canvas.Width, Height: cfg.Canvas.Height},
		runtimeFactory(cfg, journal, logger, nil),
		logger,
	)
	defer srv.Close()

	if ln == nil {
		if ln, err = net.Listen("tcp", cfg.Server.Addr); err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
		}
	}
	httpServer := &http.Server{Handler: srv.routes()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening",
			zap.String("addr", ln.Addr().String()),
			zap.String("pipeline", defaultName),
			zap.String("journal", journal.Backend),
		)
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		// SSE handlers only return once their runtime's hub closes.
		if err := srv.Close(); err != nil {
			logger.Warn("close runtimes", zap.Error(err))
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// runtimeFactory builds runtimes from cfg. extra options are appended,
// which lets tests inject a virtual scheduler.
func runtimeFactory(cfg *config.Config, journal *bootstrap.Journal, logger *zap.Logger, extra []agentflow.Option) RuntimeFactory {
	return func(name string, p *prebuilt.Pipeline) (*agentflow.Runtime, error) {
		opts := []agentflow.Option{
			agentflow.WithPipeline(name, p),
			agentflow.WithLogger(logger),
			agentflow.WithHub(channel.HubConfig{
				Buffer:         cfg.Server.EventBuffer,
				MaxSubscribers: cfg.Server.MaxSubscribers,
			}),
		}
		if cfg.Pipeline.Seed != nil {
			opts = append(opts, agentflow.WithSeed(*cfg.Pipeline.Seed))
		}
		if journal != nil && journal.Saver != nil {
			opts = append(opts, agentflow.WithJournal(journal.Saver, journal.Backend,
				services.WithQueueSize(cfg.Journal.QueueSize),
				services.WithSaveTimeout(cfg.Journal.SaveTimeout),
			))
		}
		return agentflow.New(append(opts, extra...)...)
	}
}
