package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fiapx/fiapx-frame-ingest/internal/infra/archive"
	"github.com/fiapx/fiapx-frame-ingest/internal/infra/config"
	"github.com/fiapx/fiapx-frame-ingest/internal/infra/email"
	"github.com/fiapx/fiapx-frame-ingest/internal/infra/extraction"
	"github.com/fiapx/fiapx-frame-ingest/internal/infra/metrics"
	miniostorage "github.com/fiapx/fiapx-frame-ingest/internal/infra/minio"
	"github.com/fiapx/fiapx-frame-ingest/internal/infra/postgres"
	"github.com/fiapx/fiapx-frame-ingest/internal/infra/rabbitmq"
	"github.com/fiapx/fiapx-frame-ingest/internal/infra/tracing"
	"github.com/fiapx/fiapx-frame-ingest/internal/usecase"
	"github.com/fiapx/fiapx-frame-ingest/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/olebedev/emitter"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()
	zap.ReplaceGlobals(log)

	log.Info("starting fiapx-ingest-worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if Jaeger unavailable)
	tp, err := tracing.InitTracer(ctx, "fiapx-ingest-worker", cfg.JaegerEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()
	fatalOnErr(postgres.RunMigrations(ctx, pool), "run migrations")

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      cfg.MinIOEndpoint,
		AccessKey:     cfg.MinIOAccessKey,
		SecretKey:     cfg.MinIOSecretKey,
		UseSSL:        cfg.MinIOUseSSL,
		UploadBucket:  cfg.MinIOUploadBucket,
		ResultBucket:  cfg.MinIOResultBucket,
		MaxUploadSize: cfg.MaxUploadSizeBytes,
	}, log)
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")
	defer pub.Close()

	statusPub := rabbitmq.NewStatusPublisher(pub, cfg.RabbitMQStatusRouting)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	// Cycle state events
	events := emitter.New(16)
	go logCycleEvents(ctx, events, log)

	// Ingestion pipeline
	orchestrator := usecase.NewOrchestrator(
		extraction.NewClient(extraction.ClientConfig{
			BaseURL: cfg.ExtractionServiceURL,
			Timeout: cfg.ExtractionTimeout,
		}, log),
		archive.NewDecoder(cfg.MaxEntrySizeBytes),
		usecase.NewReassembler(cfg.DecodeConcurrency, log),
		storage,
		events,
		log,
		usecase.OrchestratorConfig{DefaultInterval: cfg.DefaultCaptureInterval},
	)

	repo := postgres.NewIngestJobRepository(pool)
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	uc := usecase.NewProcessIngestUseCase(
		repo, storage, orchestrator,
		statusPub, dlqPub, notifier,
		log,
		usecase.ProcessIngestConfig{MaxRetries: cfg.MaxRetries},
	)

	// Consumer (worker pool)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:               cfg.RabbitMQURL,
		Exchange:          cfg.RabbitMQExchange,
		Queue:             cfg.RabbitMQRequestQueue,
		RequestRoutingKey: cfg.RabbitMQRequestRouting,
		StatusQueue:       cfg.RabbitMQStatusQueue,
		StatusRoutingKey:  cfg.RabbitMQStatusRouting,
		DLQ:               cfg.RabbitMQDLQ,
		Prefetch:          cfg.RabbitMQPrefetch,
		WorkerCount:       cfg.WorkerCount,
		BaseDelayMs:       cfg.RetryBaseDelayMs,
		MaxDelayMs:        cfg.RetryMaxDelayMs,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	// Metrics server
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, consumer.Ready, log)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("fiapx-ingest-worker started, consuming messages")

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info("fiapx-ingest-worker stopped")
}

func logCycleEvents(ctx context.Context, events *emitter.Emitter, log *zap.Logger) {
	ch := events.On(usecase.TopicCycleState)
	defer events.Off(usecase.TopicCycleState, ch)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			ev, ok := e.Args[0].(usecase.StateEvent)
			if !ok {
				continue
			}
			fields := []zap.Field{zap.String("cycle_id", ev.CycleID), zap.String("state", string(ev.State))}
			if ev.Err != nil {
				fields = append(fields, zap.Error(ev.Err))
			}
			log.Debug("cycle state changed", fields...)
		}
	}
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
