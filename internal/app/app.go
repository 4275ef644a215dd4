// Package app assembles the gateway and its audit trail from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"growth_quest/internal/config"
	"growth_quest/internal/logging"
	"growth_quest/internal/models"
	"growth_quest/internal/providers"
	"growth_quest/internal/queue"
	"growth_quest/internal/storage"
	"growth_quest/internal/utils"
)

// Dependencies holds the components built by Build. Optional parts are nil
// when their configuration is absent or they could not be reached.
type Dependencies struct {
	Config  *config.Config
	Gateway *providers.Gateway

	Queue      queue.Queue[models.GenerationRecord]
	DLQ        queue.DeadLetterQueue[models.GenerationRecord]
	Worker     *storage.GenerationQueueWorker
	Sink       *logging.QueueSink
	DB         *storage.DB
	Records    *storage.GenerationRepository
	RecordFile *logging.RecordFile
	S3         *logging.S3Writer
	Redis      *redis.Client

	logger       *utils.Logger
	shutdownOnce sync.Once
	shutdownErr  error
}

const defaultShutdownTimeout = 10 * time.Second

// Build wires every component. Only a configuration that cannot be honoured
// safely (a bad encryption key) is an error; unreachable Redis, Postgres or
// S3 are logged and skipped.
func Build(ctx context.Context, cfg *config.Config, opts ...providers.Option) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		logger: utils.NewLogger("app"),
	}

	for _, id := range cfg.MissingCredentials() {
		deps.logger.Warn("Provider has no API key and will be unavailable", "provider", id)
	}

	if cfg.Recorder.Enabled {
		recorder, err := deps.buildRecorder(ctx)
		if err != nil {
			deps.Shutdown(ctx)
			return nil, err
		}
		if recorder != nil {
			opts = append([]providers.Option{providers.WithRecorder(recorder)}, opts...)
		}
	}

	deps.Gateway = providers.NewGateway(cfg.GatewayConfig(), opts...)
	deps.logger.Info("Gateway ready", "selection", deps.Gateway.Selection(), "writers", deps.writerNames())
	return deps, nil
}

func (d *Dependencies) queueConfig() *queue.Config {
	rc := d.Config.Recorder
	qc := queue.DefaultConfig(rc.QueueName)
	qc.BatchSize = rc.BatchSize
	qc.BatchTimeout = rc.BatchTimeout
	qc.MaxRetries = rc.MaxRetries
	qc.RetryBackoff = rc.RetryBackoff
	qc.Capacity = rc.QueueCapacity
	qc.UseRedis = d.Config.Redis.Address != ""
	qc.RedisAddr = d.Config.Redis.Address
	qc.RedisPassword = d.Config.Redis.Password
	qc.RedisDB = d.Config.Redis.DB
	return qc
}

// buildRecorder returns nil when no writer is available
func (d *Dependencies) buildRecorder(ctx context.Context) (providers.Recorder, error) {
	rc := d.Config.Recorder

	var sinkOpts []logging.SinkOption
	if rc.EncryptionKey != "" {
		enc, err := storage.NewEncryptionFromBase64(rc.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("invalid RECORD_ENCRYPTION_KEY: %w", err)
		}
		sinkOpts = append(sinkOpts, logging.WithSealer(enc))
	}
	sinkOpts = append(sinkOpts, logging.WithEnqueueTimeout(rc.EnqueueTimeout))

	writers := d.buildWriters(ctx)
	if len(writers) == 0 {
		d.logger.Warn("Generation recorder enabled but no writer is available, records are discarded")
		return nil, nil
	}

	qc := d.queueConfig()
	d.buildQueues(ctx, qc)

	d.Worker = storage.NewGenerationQueueWorker(d.Queue, d.DLQ, qc, writers...)
	d.Worker.Start(context.WithoutCancel(ctx))

	d.Sink = logging.NewQueueSink(d.Queue, sinkOpts...)
	return d.Sink, nil
}

func (d *Dependencies) buildQueues(ctx context.Context, qc *queue.Config) {
	if qc.UseRedis {
		client, err := newRedisClient(ctx, d.Config.Redis)
		if err == nil {
			d.Redis = client
			d.Queue = queue.NewRedisQueueWithClient[models.GenerationRecord](client, qc)
			d.DLQ = queue.NewRedisDeadLetterQueueWithClient[models.GenerationRecord](client, qc)
			d.logger.Info("Using Redis generation queue", "address", qc.RedisAddr, "queue", qc.QueueName)
			return
		}
		d.logger.Warn("Redis unavailable, falling back to in-memory queue", "address", qc.RedisAddr, "error", err)
	}

	d.Queue = queue.NewMemoryQueue[models.GenerationRecord](qc)
	d.DLQ = queue.NewMemoryDeadLetterQueue[models.GenerationRecord]()
}

func newRedisClient(ctx context.Context, rc config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         rc.Address,
		Password:     rc.Password,
		DB:           rc.DB,
		PoolSize:     rc.PoolSize,
		MinIdleConns: rc.MinIdleConns,
		DialTimeout:  rc.DialTimeout,
		ReadTimeout:  rc.ReadTimeout,
		WriteTimeout: rc.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, rc.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (d *Dependencies) buildWriters(ctx context.Context) []storage.RecordWriter {
	var writers []storage.RecordWriter
	cfg := d.Config

	if cfg.Database.URL != "" {
		if repo, err := d.openDatabase(ctx); err != nil {
			d.logger.Warn("Database unavailable, generation records will not be stored in Postgres", "error", err)
		} else {
			writers = append(writers, repo)
		}
	}

	if cfg.Recorder.FileEnabled {
		rf, err := logging.NewRecordFile(cfg.Recorder.FilePathTemplate, cfg.Recorder.MaxSize, cfg.Recorder.MaxFiles)
		if err != nil {
			d.logger.Warn("Record file unavailable", "template", cfg.Recorder.FilePathTemplate, "error", err)
		} else {
			d.RecordFile = rf
			writers = append(writers, rf)
		}
	}

	if cfg.LoggingSink.Enabled {
		sink := cfg.LoggingSink
		s3w, err := logging.NewS3Writer(ctx, logging.S3Config{
			Bucket:          sink.S3Bucket,
			Region:          sink.S3Region,
			Prefix:          sink.S3Prefix,
			PodName:         sink.PodName,
			Endpoint:        sink.S3Endpoint,
			AccessKeyID:     sink.S3AccessKey,
			SecretAccessKey: sink.S3SecretKey,
		})
		if err != nil {
			d.logger.Warn("S3 archive unavailable", "bucket", sink.S3Bucket, "error", err)
		} else {
			d.S3 = s3w
			writers = append(writers, s3w)
		}
	}

	return writers
}

func (d *Dependencies) openDatabase(ctx context.Context) (*storage.GenerationRepository, error) {
	dbc := d.Config.Database
	db, err := storage.NewDB(storage.DBConfig{
		URL:             dbc.URL,
		MaxOpenConns:    dbc.MaxOpenConns,
		MaxIdleConns:    dbc.MaxIdleConns,
		ConnMaxLifetime: dbc.ConnMaxLifetime,
		ConnMaxIdleTime: dbc.ConnMaxIdleTime,
		QueryTimeout:    dbc.QueryTimeout,
	})
	if err != nil {
		return nil, err
	}

	repo := db.NewGenerationRepository()
	if err := repo.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	d.DB = db
	d.Records = repo
	return repo, nil
}

func (d *Dependencies) writerNames() []string {
	if d.Worker == nil {
		return nil
	}
	return d.Worker.Writers()
}

// Shutdown closes the gateway, lets the worker write what is still queued,
// then releases queues, writers and connections. Later calls return the
// first call's result.
func (d *Dependencies) Shutdown(ctx context.Context) error {
	d.shutdownOnce.Do(func() { d.shutdownErr = d.shutdown(ctx) })
	return d.shutdownErr
}

func (d *Dependencies) shutdown(ctx context.Context) error {
	var errs []error
	add := func(what string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", what, err))
		}
	}

	if d.Gateway != nil {
		add("gateway", d.Gateway.Close())
	}

	if d.Worker != nil {
		timeout := d.Config.Recorder.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		stopCtx, cancel := context.WithTimeout(ctx, timeout)
		add("worker", d.Worker.Stop(stopCtx))
		cancel()
	}
	if d.Sink != nil && d.Sink.Dropped() > 0 {
		d.logger.Warn("Some generation records were dropped", "count", d.Sink.Dropped())
	}

	if d.Queue != nil {
		add("queue", d.Queue.Close())
	}
	if d.DLQ != nil {
		add("dead letter queue", d.DLQ.Close())
	}
	if d.RecordFile != nil {
		add("record file", d.RecordFile.Close())
	}
	if d.DB != nil {
		add("database", d.DB.Close())
	}
	if d.Redis != nil {
		add("redis", d.Redis.Close())
	}

	return errors.Join(errs...)
}
