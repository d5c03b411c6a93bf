// Package bootstrap provides dependency initialization for the clipline server.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hibiken/asynq"

	"github.com/maauso/clipline/internal/beam"
	"github.com/maauso/clipline/internal/config"
	"github.com/maauso/clipline/internal/gateway"
	"github.com/maauso/clipline/internal/orchestrator"
	"github.com/maauso/clipline/internal/outbox"
	"github.com/maauso/clipline/internal/persistence"
	"github.com/maauso/clipline/internal/production"
	"github.com/maauso/clipline/internal/replicate"
	"github.com/maauso/clipline/internal/runpod"
	"github.com/maauso/clipline/internal/stitch"
	"github.com/maauso/clipline/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Orchestrator *orchestrator.Orchestrator
	Stitcher     *stitch.Manager

	logger  *slog.Logger
	outbox  *outbox.MemoryOutbox
	workers *asynq.Server
	mux     *asynq.ServeMux
	closers []func()
	wg      sync.WaitGroup
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	d := &Dependencies{logger: logger}

	gw, err := initGateway(cfg)
	if err != nil {
		return nil, err
	}

	saver, err := d.initSaver(ctx, cfg)
	if err != nil {
		d.Close()
		return nil, err
	}

	publisher := d.initOutbox(cfg, saver)

	store, err := initStorage(cfg, logger)
	if err != nil {
		d.Close()
		return nil, err
	}

	broker := orchestrator.NewBroker(64, logger)
	d.Orchestrator = orchestrator.New(production.NewMemoryStore(), gw,
		orchestrator.WithLogger(logger),
		orchestrator.WithTickInterval(cfg.TickInterval),
		orchestrator.WithStaleAfter(cfg.StaleAfter),
		orchestrator.WithMaxConcurrentSubmits(cfg.MaxConcurrentSubmits),
		orchestrator.WithMaxConcurrentPolls(cfg.MaxConcurrentPolls),
		orchestrator.WithPublisher(publisher),
		orchestrator.WithBroker(broker),
	)

	d.Stitcher = stitch.NewManager(d.Orchestrator, store,
		stitch.WithLogger(logger),
		stitch.WithNotify(broker.PublishStitch),
		stitch.WithToolLoader(stitch.FFmpegLoader(cfg.FFmpegPath)),
		stitch.WithPublish(cfg.PublishArtifacts),
	)
	d.closers = append(d.closers, d.Stitcher.Close)

	return d, nil
}

// Start launches the orchestrator loop and the outbox workers. They stop
// when ctx is cancelled.
func (d *Dependencies) Start(ctx context.Context) error {
	if d.workers != nil {
		if err := d.workers.Start(d.mux); err != nil {
			return fmt.Errorf("start outbox workers: %w", err)
		}
		d.closers = append(d.closers, d.workers.Shutdown)
	}

	if d.outbox != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.outbox.Run(ctx)
		}()
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.Orchestrator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("orchestrator stopped", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Close waits for background loops started by Start to exit and releases
// external connections. Cancel the Start context first.
func (d *Dependencies) Close() {
	d.wg.Wait()
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

// initGateway creates the job gateway for the configured provider.
func initGateway(cfg *config.Config) (gateway.Gateway, error) {
	switch strings.ToLower(cfg.GatewayProvider) {
	case config.ProviderRunPod:
		client, err := runpod.NewClient(cfg.RunPodEndpointID, runpod.WithAPIKey(cfg.RunPodAPIKey))
		if err != nil {
			return nil, fmt.Errorf("create RunPod client: %w", err)
		}
		return gateway.NewRunPodAdapter(client), nil
	case config.ProviderBeam:
		client, err := beam.NewClient(cfg.BeamQueueURL, beam.WithToken(cfg.BeamToken))
		if err != nil {
			return nil, fmt.Errorf("create Beam client: %w", err)
		}
		return gateway.NewBeamAdapter(client), nil
	case config.ProviderReplicate:
		client, err := replicate.NewClient(replicate.WithToken(cfg.ReplicateAPIToken))
		if err != nil {
			return nil, fmt.Errorf("create Replicate client: %w", err)
		}
		return gateway.NewReplicateAdapter(client, cfg.ReplicateVideoModel, cfg.ReplicateImageModel), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownProvider, cfg.GatewayProvider)
	}
}

// initSaver connects to PostgreSQL when configured and falls back to
// logging results.
func (d *Dependencies) initSaver(ctx context.Context, cfg *config.Config) (persistence.Saver, error) {
	if !cfg.PostgresEnabled() {
		d.logger.Info("no database configured, results are logged only")
		return persistence.NewLogSaver(d.logger), nil
	}

	pool, err := persistence.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, pool.Close)

	saver := persistence.NewPostgresSaver(pool)
	if err := saver.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	d.logger.Info("PostgreSQL persistence configured")
	return saver, nil
}

// initOutbox uses Redis-backed asynq tasks when Redis is configured and an
// in-process retry queue otherwise.
func (d *Dependencies) initOutbox(cfg *config.Config, saver persistence.Saver) outbox.Publisher {
	if cfg.RedisEnabled() {
		redis := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}

		client := asynq.NewClient(redis)
		d.closers = append(d.closers, func() { _ = client.Close() })

		d.workers = asynq.NewServer(redis, asynq.Config{
			Concurrency: 4,
			Queues:      map[string]int{"default": 1},
			Logger:      asynqLogger{d.logger},
		})
		d.mux = outbox.NewServeMux(outbox.NewHandler(saver, d.logger))

		d.logger.Info("asynq outbox configured", slog.String("redis_addr", cfg.RedisAddr))
		return outbox.NewAsynqOutbox(client, cfg.OutboxMaxAttempts)
	}

	d.outbox = outbox.NewMemoryOutbox(saver,
		outbox.WithLogger(d.logger),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
	)
	return d.outbox
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.String("temp_dir", s3Store.TempDir()),
		)
		return s3Store, nil
	}

	if cfg.MinIOEnabled() {
		minioStore, err := storage.NewMinIOStorage(cfg.TempDir, storage.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("create MinIO storage: %w", err)
		}
		logger.Info("MinIO storage configured",
			slog.String("endpoint", cfg.MinIOEndpoint),
			slog.String("bucket", cfg.MinIOBucket),
			slog.String("temp_dir", minioStore.TempDir()),
		)
		return minioStore, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", localStore.TempDir()),
	)
	return localStore, nil
}

// asynqLogger adapts slog to the asynq.Logger interface.
type asynqLogger struct {
	logger *slog.Logger
}

func (l asynqLogger) Debug(args ...any) {
	l.logger.Debug(fmt.Sprint(args...), slog.String("component", "asynq"))
}

func (l asynqLogger) Info(args ...any) {
	l.logger.Info(fmt.Sprint(args...), slog.String("component", "asynq"))
}

func (l asynqLogger) Warn(args ...any) {
	l.logger.Warn(fmt.Sprint(args...), slog.String("component", "asynq"))
}

func (l asynqLogger) Error(args ...any) {
	l.logger.Error(fmt.Sprint(args...), slog.String("component", "asynq"))
}

// Fatal logs at error level. asynq exits the process itself after calling it.
func (l asynqLogger) Fatal(args ...any) {
	l.logger.Error(fmt.Sprint(args...), slog.String("component", "asynq"))
}

var _ asynq.Logger = asynqLogger{}
