package api

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kenneth/identity-helper/internal/config"
	"github.com/kenneth/identity-helper/internal/crypto"
	"github.com/kenneth/identity-helper/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOracle(t *testing.T) {
	t.Run("local", func(t *testing.T) {
		oracle, closer, err := BuildOracle(&config.OracleConfig{Type: "LOCAL"}, quietLogger())
		require.NoError(t, err)
		assert.IsType(t, &crypto.LocalOracle{}, oracle)
		assert.NoError(t, closer.Close())
	})

	t.Run("grpc connects lazily", func(t *testing.T) {
		oracle, closer, err := BuildOracle(&config.OracleConfig{
			Type:    config.OracleTypeGRPC,
			Address: "localhost:1",
			Timeout: time.Second,
		}, quietLogger())
		require.NoError(t, err)
		assert.IsType(t, &crypto.GRPCOracle{}, oracle)
		assert.NoError(t, closer.Close())
	})

	t.Run("grpc without address", func(t *testing.T) {
		_, _, err := BuildOracle(&config.OracleConfig{Type: config.OracleTypeGRPC}, quietLogger())
		assert.Error(t, err)
	})

	t.Run("unreadable CA", func(t *testing.T) {
		_, _, err := BuildOracle(&config.OracleConfig{
			Address: "localhost:1",
			TLS: config.OracleTLSConfig{
				Enabled: true,
				CAFile:  filepath.Join(t.TempDir(), "missing.pem"),
			},
		}, quietLogger())
		assert.ErrorContains(t, err, "CA certificate")
	})

	t.Run("CA without certificates", func(t *testing.T) {
		caFile := filepath.Join(t.TempDir(), "ca.pem")
		require.NoError(t, os.WriteFile(caFile, []byte("not a certificate"), 0o600))
		_, _, err := BuildOracle(&config.OracleConfig{
			Address: "localhost:1",
			TLS:     config.OracleTLSConfig{Enabled: true, CAFile: caFile},
		}, quietLogger())
		assert.ErrorContains(t, err, "failed to parse")
	})

	t.Run("unsupported", func(t *testing.T) {
		_, _, err := BuildOracle(&config.OracleConfig{Type: "hsm"}, quietLogger())
		assert.ErrorContains(t, err, "unsupported oracle type")
	})
}

func TestBuildBackend(t *testing.T) {
	dir := t.TempDir()
	backend, err := BuildBackend(&config.ObjectStorageConfig{Type: config.StorageTypeFilesystem, Bucket: dir})
	require.NoError(t, err)
	fs, ok := backend.(*storage.FilesystemBackend)
	require.True(t, ok)
	assert.Equal(t, dir, fs.Root())

	_, err = BuildBackend(&config.ObjectStorageConfig{Type: "gcs", Bucket: dir})
	assert.ErrorContains(t, err, "unsupported object storage type")

	_, err = BuildBackend(&config.ObjectStorageConfig{Type: config.StorageTypeFilesystem})
	assert.Error(t, err)
}

func TestBuildStoreUsesBackend(t *testing.T) {
	dir := t.TempDir()
	store, err := BuildStore(&config.ObjectStorageConfig{Bucket: dir}, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &storage.FilesystemBackend{}, store.Backend())
}
