package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fiapx/fiapx-frame-ingest/internal/infra/archive"
	"github.com/fiapx/fiapx-frame-ingest/internal/infra/config"
	"github.com/fiapx/fiapx-frame-ingest/internal/infra/extractsvc"
	"github.com/fiapx/fiapx-frame-ingest/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-frame-ingest/internal/infra/metrics"
	"github.com/fiapx/fiapx-frame-ingest/internal/infra/tracing"
	"github.com/fiapx/fiapx-frame-ingest/pkg/logger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadExtractor()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting fiapx-extractd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := tracing.InitTracer(ctx, "fiapx-extractd", cfg.JaegerEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	extractor := ffmpeg.NewExtractor(cfg.FFmpegBin, cfg.FFprobeBin, cfg.FrameFormat, log)
	handler := extractsvc.NewHandler(extractor, archive.NewWriter(), extractsvc.HandlerConfig{
		TempDir:        cfg.TempDir,
		MaxRequestSize: cfg.MaxRequestSize,
		MaxVideos:      cfg.MaxVideos,
		MaxConcurrent:  cfg.MaxConcurrent,
		RatePerMinute:  cfg.RatePerMinute,
		RequestTimeout: cfg.RequestTimeout,
	}, log)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           otelhttp.NewHandler(extractsvc.NewRouter(handler), "extractd"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, nil, log)

	go func() {
		log.Info("extraction service listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("extraction server error", zap.Error(err))
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Shutdown(shutdownCtx)

	log.Info("fiapx-extractd stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
