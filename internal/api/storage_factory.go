package api

import (
	"fmt"
	"strings"

	"github.com/kenneth/identity-helper/internal/config"
	s3client "github.com/kenneth/identity-helper/internal/s3"
	"github.com/kenneth/identity-helper/internal/storage"
	"github.com/sirupsen/logrus"
)

// BuildBackend builds the raw object backend selected by configuration.
func BuildBackend(cfg *config.ObjectStorageConfig) (storage.Backend, error) {
	switch strings.ToLower(cfg.Type) {
	case config.StorageTypeFilesystem, "":
		return storage.NewFilesystemBackend(cfg.Bucket)
	case config.StorageTypeAWS:
		client, err := s3client.NewClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		return storage.NewS3Backend(client, cfg.Bucket), nil
	default:
		return nil, fmt.Errorf("unsupported object storage type %q", cfg.Type)
	}
}

// BuildStore wraps the configured backend in the versioned store.
func BuildStore(cfg *config.ObjectStorageConfig, logger *logrus.Logger, opts ...storage.Option) (*storage.Versioned, error) {
	backend, err := BuildBackend(cfg)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"type":   cfg.Type,
		"host":   cfg.Host,
		"bucket": cfg.Bucket,
	}).Info("Object storage configured")

	opts = append([]storage.Option{storage.WithLogger(logger)}, opts...)
	return storage.NewVersioned(backend, opts...), nil
}
