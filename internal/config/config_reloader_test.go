package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigReloader(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise

	// Test with valid config and no file (SIGHUP only)
	cfg := &Config{LogLevel: "info"}
	reloader, err := NewConfigReloader("", cfg, logger)
	require.NoError(t, err)
	require.NotNil(t, reloader)
	reloader.Stop()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	err = os.WriteFile(configPath, []byte("log_level: info\n"), 0644)
	require.NoError(t, err)

	reloader, err = NewConfigReloader(configPath, cfg, logger)
	require.NoError(t, err)
	require.NotNil(t, reloader)
	reloader.Stop()
	reloader.Stop() // idempotent

	_, err = NewConfigReloader("", nil, logger)
	assert.Error(t, err)
}

func TestConfigReloader_FileWatching(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	initialYAML := "log_level: info\nrate_limit:\n  enabled: false\n" + testKeysYAML
	err := os.WriteFile(configPath, []byte(initialYAML), 0644)
	require.NoError(t, err)

	initialConfig, err := LoadConfig(configPath)
	require.NoError(t, err)

	reloader, err := NewConfigReloader(configPath, initialConfig, logger)
	require.NoError(t, err)
	defer reloader.Stop()

	var callbackCalled int64
	var firstCallbackOld, firstCallbackNew atomic.Pointer[Config]
	reloader.SetOnReloadCallback(func(old, new *Config) error {
		if atomic.AddInt64(&callbackCalled, 1) == 1 {
			firstCallbackOld.Store(old)
			firstCallbackNew.Store(new)
		}
		return nil
	})

	go reloader.Start()
	time.Sleep(100 * time.Millisecond)

	updatedYAML := "log_level: debug\nrate_limit:\n  enabled: true\n  limit: 200\n  window: 120s\n" + testKeysYAML
	err = os.WriteFile(configPath, []byte(updatedYAML), 0644)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&callbackCalled) >= 1
	}, 2*time.Second, 20*time.Millisecond)

	require.NotNil(t, firstCallbackOld.Load())
	require.NotNil(t, firstCallbackNew.Load())
	assert.Equal(t, "info", firstCallbackOld.Load().LogLevel)
	assert.Equal(t, "debug", firstCallbackNew.Load().LogLevel)

	require.Eventually(t, func() bool {
		return reloader.GetCurrentConfig().RateLimit.Limit == 200
	}, time.Second, 20*time.Millisecond)
}

func TestConfigReloader_RejectsUnsafeChange(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(testKeysYAML), 0644))
	initial, err := LoadConfig(configPath)
	require.NoError(t, err)

	reloader, err := NewConfigReloader(configPath, initial, logger)
	require.NoError(t, err)
	defer reloader.Stop()

	var called int64
	reloader.SetOnReloadCallback(func(old, new *Config) error {
		atomic.AddInt64(&called, 1)
		return nil
	})

	changed := testKeysYAML + "  root_data_folder: elsewhere\n"
	require.NoError(t, os.WriteFile(configPath, []byte(changed), 0644))
	reloader.reload()

	assert.Equal(t, int64(0), atomic.LoadInt64(&called))
	assert.Equal(t, "data", reloader.GetCurrentConfig().Identity.RootDataFolder)
}

func TestConfigReloader_SIGHUP(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	initialConfig := &Config{
		LogLevel:  "info",
		RateLimit: RateLimitConfig{Enabled: false},
	}

	// No path: SIGHUP is handled but there is nothing to reload.
	reloader, err := NewConfigReloader("", initialConfig, logger)
	require.NoError(t, err)
	defer reloader.Stop()

	var callbackCalled int64
	reloader.SetOnReloadCallback(func(old, new *Config) error {
		atomic.AddInt64(&callbackCalled, 1)
		return nil
	})

	go reloader.Start()
	time.Sleep(100 * time.Millisecond)

	process, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, process.Signal(syscall.SIGHUP))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int64(0), atomic.LoadInt64(&callbackCalled))
}

func TestValidateReloadSafety(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cfg := &Config{}
	reloader, err := NewConfigReloader("", cfg, logger)
	require.NoError(t, err)
	defer reloader.Stop()

	tests := []struct {
		name        string
		oldConfig   *Config
		newConfig   *Config
		expectError bool
		errorMsg    string
	}{
		{
			name:        "safe changes allowed",
			oldConfig:   &Config{LogLevel: "info", RateLimit: RateLimitConfig{Limit: 10}},
			newConfig:   &Config{LogLevel: "debug", RateLimit: RateLimitConfig{Limit: 20}},
			expectError: false,
		},
		{
			name:        "root folder change rejected",
			oldConfig:   &Config{Identity: IdentityConfig{RootDataFolder: "data"}},
			newConfig:   &Config{Identity: IdentityConfig{RootDataFolder: "other"}},
			expectError: true,
			errorMsg:    "identity.root_data_folder cannot be changed during hot reload",
		},
		{
			name:        "key change rejected",
			oldConfig:   &Config{Identity: IdentityConfig{HelperSignaturePrivateKey: "a"}},
			newConfig:   &Config{Identity: IdentityConfig{HelperSignaturePrivateKey: "b"}},
			expectError: true,
			errorMsg:    "identity keys cannot be changed during hot reload",
		},
		{
			name:        "storage type change rejected",
			oldConfig:   &Config{ObjectStorage: ObjectStorageConfig{Type: StorageTypeFilesystem}},
			newConfig:   &Config{ObjectStorage: ObjectStorageConfig{Type: StorageTypeAWS}},
			expectError: true,
			errorMsg:    "object_storage.type cannot be changed during hot reload",
		},
		{
			name:        "storage bucket change rejected",
			oldConfig:   &Config{ObjectStorage: ObjectStorageConfig{Bucket: "a"}},
			newConfig:   &Config{ObjectStorage: ObjectStorageConfig{Bucket: "b"}},
			expectError: true,
			errorMsg:    "object_storage settings cannot be changed during hot reload",
		},
		{
			name:        "oracle change rejected",
			oldConfig:   &Config{Oracle: OracleConfig{Address: "a:1"}},
			newConfig:   &Config{Oracle: OracleConfig{Address: "b:1"}},
			expectError: true,
			errorMsg:    "oracle settings cannot be changed during hot reload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reloader.validateReloadSafety(tt.oldConfig, tt.newConfig)
			if tt.expectError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetCurrentConfig(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	originalConfig := &Config{LogLevel: "info"}
	reloader, err := NewConfigReloader("", originalConfig, logger)
	require.NoError(t, err)
	defer reloader.Stop()

	current := reloader.GetCurrentConfig()
	assert.Equal(t, "info", current.LogLevel)

	// Modify returned config (should not affect internal state)
	current.LogLevel = "debug"
	assert.Equal(t, "info", reloader.GetCurrentConfig().LogLevel)
}
