package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testKeysYAML holds dummy key material; only presence and encoding are
// checked at load time.
const testKeysYAML = `identity:
  gateway_signature_public_key: Z3NpZw==
  gateway_encryption_public_key: Z2VuYw==
  helper_signature_private_key: aHNpZw==
  helper_encryption_private_key: aGVuYw==
`

func setTestKeyEnv(t *testing.T) {
	t.Helper()
	t.Setenv("IDENTITY_GATEWAY_SIGNATURE_PUBLIC_KEY", "Z3NpZw==")
	t.Setenv("IDENTITY_GATEWAY_ENCRYPTION_PUBLIC_KEY", "Z2VuYw==")
	t.Setenv("IDENTITY_HELPER_SIGNATURE_PRIVATE_KEY", "aHNpZw==")
	t.Setenv("IDENTITY_HELPER_ENCRYPTION_PRIVATE_KEY", "aGVuYw==")
}

func validConfig() *Config {
	cfg := Default()
	cfg.Identity.GatewaySignaturePublicKey = "Z3NpZw=="
	cfg.Identity.GatewayEncryptionPublicKey = "Z2VuYw=="
	cfg.Identity.HelperSignaturePrivateKey = "aHNpZw=="
	cfg.Identity.HelperEncryptionPrivateKey = "aGVuYw=="
	return cfg
}

func TestLoadConfig_Defaults(t *testing.T) {
	setTestKeyEnv(t)

	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.ListenAddr != ":8080" {
		t.Errorf("expected ListenAddr :8080, got %s", config.ListenAddr)
	}
	if config.LogLevel != "info" {
		t.Errorf("expected LogLevel info, got %s", config.LogLevel)
	}
	assert.Equal(t, "data", config.Identity.RootDataFolder)
	assert.Equal(t, StorageTypeFilesystem, config.ObjectStorage.Type)
	assert.Equal(t, "application/x-binary", config.ObjectStorage.ContentType)
	assert.Equal(t, "private", config.ObjectStorage.ACL)
	assert.Equal(t, OracleTypeGRPC, config.Oracle.Type)
	assert.Equal(t, "derec_crypto.DeRecCryptographyService", config.Oracle.ServiceName)
	assert.Equal(t, 10*time.Second, config.Oracle.Timeout)
	assert.Equal(t, int64(4<<20), config.Server.MaxBodyBytes)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	setTestKeyEnv(t)
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("OBJECT_STORAGE_TYPE", "aws")
	t.Setenv("OBJECT_STORAGE_HOST", "http://localhost:9000")
	t.Setenv("OBJECT_STORAGE_KEY", "test-key")
	t.Setenv("OBJECT_STORAGE_SECRET", "test-secret")
	t.Setenv("OBJECT_STORAGE_USE_PATH_STYLE", "true")
	t.Setenv("ORACLE_TIMEOUT", "3s")
	t.Setenv("LOGGING_REDACT_HEADERS", "Authorization, X-Api-Key")
	t.Setenv("ARCHIVE_CACHE_ENABLED", "true")
	t.Setenv("ARCHIVE_CACHE_MAX_ITEMS", "50")
	t.Setenv("ARCHIVE_CACHE_TTL", "10m")

	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.ListenAddr != ":9090" {
		t.Errorf("expected ListenAddr :9090, got %s", config.ListenAddr)
	}
	if config.LogLevel != "debug" {
		t.Errorf("expected LogLevel debug, got %s", config.LogLevel)
	}
	assert.Equal(t, StorageTypeAWS, config.ObjectStorage.Type)
	assert.Equal(t, "http://localhost:9000", config.ObjectStorage.Host)
	assert.True(t, config.ObjectStorage.UsePathStyle)
	assert.Equal(t, 3*time.Second, config.Oracle.Timeout)
	assert.Equal(t, []string{"Authorization", "X-Api-Key"}, config.Logging.RedactHeaders)
	assert.True(t, config.ArchiveCache.Enabled)
	assert.Equal(t, 50, config.ArchiveCache.MaxItems)
	assert.Equal(t, int64(64<<20), config.ArchiveCache.MaxBytes)
	assert.Equal(t, 10*time.Minute, config.ArchiveCache.TTL)
}

func TestLoadConfig_FromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := testKeysYAML + `  root_data_folder: /custody/
object_storage:
  type: filesystem
  bucket: /var/lib/helper
oracle:
  type: local
rate_limit:
  enabled: true
  limit: 5
  window: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "custody", cfg.RootFolder())
	assert.Equal(t, "/var/lib/helper", cfg.ObjectStorage.Bucket)
	assert.Equal(t, OracleTypeLocal, cfg.Oracle.Type)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 5, cfg.RateLimit.Limit)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.Window)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	setTestKeyEnv(t)
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: [oops"), 0644))
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{
			name:    "missing listen addr",
			mutate:  func(c *Config) { c.ListenAddr = "" },
			wantErr: "listen_addr is required",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.LogLevel = "trace" },
			wantErr: "invalid log_level",
		},
		{
			name:    "missing gateway signature key",
			mutate:  func(c *Config) { c.Identity.GatewaySignaturePublicKey = "" },
			wantErr: "gateway signature public key",
		},
		{
			name:    "key not base64",
			mutate:  func(c *Config) { c.Identity.HelperSignaturePrivateKey = "!!not-base64!!" },
			wantErr: "identity.helper_signature_private_key is not valid base64",
		},
		{
			name:    "empty root folder",
			mutate:  func(c *Config) { c.Identity.RootDataFolder = "/" },
			wantErr: "identity.root_data_folder is required",
		},
		{
			name:    "unknown storage type",
			mutate:  func(c *Config) { c.ObjectStorage.Type = "azure" },
			wantErr: "invalid object_storage.type",
		},
		{
			name: "aws without credentials",
			mutate: func(c *Config) {
				c.ObjectStorage.Type = StorageTypeAWS
				c.ObjectStorage.Key = ""
			},
			wantErr: "object_storage.key is required",
		},
		{
			name:    "unknown oracle type",
			mutate:  func(c *Config) { c.Oracle.Type = "hsm" },
			wantErr: "invalid oracle.type",
		},
		{
			name:    "grpc oracle without address",
			mutate:  func(c *Config) { c.Oracle.Address = "" },
			wantErr: "oracle.address is required",
		},
		{
			name: "tls without cert",
			mutate: func(c *Config) {
				c.TLS.Enabled = true
				c.TLS.KeyFile = "key.pem"
			},
			wantErr: "tls.cert_file is required",
		},
		{
			name: "archive cache without capacity",
			mutate: func(c *Config) {
				c.ArchiveCache.Enabled = true
				c.ArchiveCache.MaxItems = 0
			},
			wantErr: "archive_cache.max_items must be positive",
		},
		{
			name:    "bad access log format",
			mutate:  func(c *Config) { c.Logging.AccessLogFormat = "xml" },
			wantErr: "invalid logging.access_log_format",
		},
		{
			name:    "clf access log format is not offered",
			mutate:  func(c *Config) { c.Logging.AccessLogFormat = "clf" },
			wantErr: "must be default or json",
		},
		{
			name: "jaeger without endpoint",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "jaeger"
			},
			wantErr: "tracing.jaeger_endpoint is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_DecodeKeys(t *testing.T) {
	cfg := validConfig()
	keys, err := cfg.DecodeKeys()
	require.NoError(t, err)
	assert.Equal(t, []byte("gsig"), keys.GatewaySignaturePublic)
	assert.Equal(t, []byte("genc"), keys.GatewayEncryptionPublic)
	assert.Equal(t, []byte("hsig"), keys.HelperSignaturePrivate)
	assert.Equal(t, []byte("henc"), keys.HelperEncryptionPrivate)
	assert.Nil(t, keys.HelperSignaturePublic)
}
