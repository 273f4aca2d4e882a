package main

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	apiserver "github.com/statspub/publisher/internal/api_server"
	"github.com/statspub/publisher/internal/cache"
	"github.com/statspub/publisher/internal/config"
	"github.com/statspub/publisher/internal/events"
	"github.com/statspub/publisher/internal/jobs"
	"github.com/statspub/publisher/internal/opa"
	"github.com/statspub/publisher/internal/service"
	"github.com/statspub/publisher/internal/storage"
	"github.com/statspub/publisher/internal/store"
	"github.com/statspub/publisher/pkg/dataset"
)

const (
	blobCacheBackend   = "blob"
	memoryCacheBackend = "memory"
	blobCachePrefix    = "cache"
)

// newServices builds the service layer on top of the store. The returned
// func releases what was opened.
func newServices(ctx context.Context, cfg *config.Config, s store.Store) (apiserver.Services, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	blobs, err := newStorage(ctx, cfg.Service.S3)
	if err != nil {
		return apiserver.Services{}, nil, err
	}

	producer, err := newEventProducer(cfg.Service.Kafka)
	if err != nil {
		return apiserver.Services{}, nil, err
	}
	closers = append(closers, func() { _ = producer.Close() })
	ev := events.NewPublisher(producer)

	validator, err := newReleaseValidator(cfg.Service.Publisher.PoliciesFolder)
	if err != nil {
		closeAll()
		return apiserver.Services{}, nil, err
	}

	duck, err := dataset.Open(cfg.Service.DataSets.DuckDBPath)
	if err != nil {
		closeAll()
		return apiserver.Services{}, nil, fmt.Errorf("opening duckdb: %w", err)
	}
	closers = append(closers, func() { _ = duck.Close() })
	parser := dataset.New(duck, dataset.Options{MaxPageSize: cfg.Service.DataSets.MaxPageSize})

	registry := cache.NewRegistry()
	registry.Register(memoryCacheBackend, cache.NewMemoryBackend())
	registry.Register(blobCacheBackend, cache.NewBlobBackend(blobs, cfg.Service.S3.PrivateBucket, blobCachePrefix))

	dataSetService, err := service.NewDataSetServiceFromRegistry(s, parser, registry, cfg.Service.DataSets.CacheBackend, cfg.Service.DataSets.CacheTTL)
	if err != nil {
		closeAll()
		return apiserver.Services{}, nil, err
	}

	queue := jobs.NewDeferredQueue()

	publisher := service.NewPublisher(s, queue, blobs, validator, parser, ev, service.PublisherConfig{
		PrivateBucket:   cfg.Service.S3.PrivateBucket,
		PublicBucket:    cfg.Service.S3.PublicBucket,
		DataSetsFolder:  filepath.Clean(cfg.Service.DataSets.Folder),
		StagingLeadTime: cfg.Service.Publisher.StagingLeadTime,
	})

	health := service.NewHealthService().Register("duckdb", parser.Ping)

	return apiserver.Services{
		Publisher:      publisher,
		ReleaseVersion: service.NewReleaseVersionService(s),
		ReleaseStatus:  service.NewReleaseStatusService(s, queue, ev),
		DataSet:        dataSetService,
		Health:         health,
		Queue:          queue,
	}, closeAll, nil
}

// newStorage connects to S3 when an endpoint is configured and keeps blobs in
// memory otherwise.
func newStorage(ctx context.Context, cfg config.S3) (storage.Storage, error) {
	if cfg.Endpoint == "" {
		zap.S().Warn("no S3 endpoint configured, release files are kept in memory")
		return storage.NewMemoryStorage(), nil
	}

	minio, err := storage.NewMinioStorage(
		storage.WithEndpoint(cfg.Endpoint),
		storage.WithAccessKey(cfg.AccessKey),
		storage.WithSecretKey(cfg.SecretKey),
		storage.WithSSL(cfg.UseSSL),
		storage.WithBuckets(cfg.PrivateBucket, cfg.PublicBucket),
	)
	if err != nil {
		return nil, err
	}
	if err := minio.EnsureBuckets(ctx); err != nil {
		return nil, err
	}
	return minio, nil
}

// newEventProducer sends to kafka when brokers are configured and logs the
// events otherwise.
func newEventProducer(cfg config.Kafka) (*events.EventProducer, error) {
	opts := []events.ProducerOptions{
		events.WithOutputTopic(cfg.Topic),
		events.WithBufferCapacity(cfg.Buffer),
	}
	if len(cfg.Brokers) == 0 {
		return events.NewEventProducer(&events.StdoutWriter{}, opts...), nil
	}

	writer, err := events.NewKafkaWriter(cfg.Brokers, cfg.ClientID, cfg.Version)
	if err != nil {
		return nil, err
	}
	zap.S().Infow("publishing events to kafka", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return events.NewEventProducer(writer, opts...), nil
}

func newReleaseValidator(policiesFolder string) (*opa.Validator, error) {
	if policiesFolder == "" {
		return opa.NewDefaultValidator()
	}
	return opa.NewValidatorFromDir(policiesFolder)
}
