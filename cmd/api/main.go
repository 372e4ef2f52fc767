package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"call-evaluator-go/internal/config"
	"call-evaluator-go/internal/gateway"
	"call-evaluator-go/internal/httpapi"
	"call-evaluator-go/internal/logger"
	"call-evaluator-go/internal/pipeline"
	"call-evaluator-go/internal/scheduler"
	"call-evaluator-go/internal/sheet"
)

func main() {
	log := logger.New()
	log.WithField("service", "call-evaluator-go").Info("starting service")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if cfg.LocalSourceDir != "" {
		log.WithField("local_source_dir", cfg.LocalSourceDir).Warn("local file sources enabled")
	}
	if cfg.UseMockLLM {
		log.Warn("USE_MOCK_LLM=true, evaluations are synthetic")
	}

	log.WithField("sheet_path", cfg.SheetPath).WithField("sheet", cfg.SheetName).Info("opening workbook")
	store, err := sheet.Open(cfg.SheetPath, cfg.SheetName, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open workbook")
	}

	hub := gateway.NewHub(cfg.InboxSize, cfg.WebhookURL, log, gateway.WithMaxOwners(cfg.InboxOwners))
	sched := scheduler.New(
		store,
		pipeline.FromConfig(cfg, store, log),
		hub,
		hub,
		scheduler.WithDecisionTimeout(cfg.DecisionTimeout),
		scheduler.WithLogger(log),
	)

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpapi.New(sched, hub, store, log).Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		// running jobs are cancelled; queued ones are reported failed
		sched.Close()
		hub.Close(shutdownCtx)
		return err
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("server terminated")
	}
	log.Info("stopped")
}
