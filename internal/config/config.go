package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kenneth/identity-helper/internal/crypto"
)

// Storage backend types.
const (
	StorageTypeAWS        = "aws"
	StorageTypeFilesystem = "filesystem"
)

// Oracle types.
const (
	OracleTypeGRPC  = "grpc"
	OracleTypeLocal = "local"
)

// Config holds the complete application configuration.
type Config struct {
	ListenAddr    string              `yaml:"listen_addr" env:"LISTEN_ADDR"`
	LogLevel      string              `yaml:"log_level" env:"LOG_LEVEL"`
	Identity      IdentityConfig      `yaml:"identity"`
	ObjectStorage ObjectStorageConfig `yaml:"object_storage"`
	ArchiveCache  ArchiveCacheConfig  `yaml:"archive_cache"`
	Oracle        OracleConfig        `yaml:"oracle"`
	Audit         AuditConfig         `yaml:"audit"`
	TLS           TLSConfig           `yaml:"tls"`
	Server        ServerConfig        `yaml:"server"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Logging       LoggingConfig       `yaml:"logging"`
	Tracing       TracingConfig       `yaml:"tracing"`
}

// IdentityConfig holds the base64 encoded key material and the root folder
// under which every identity's documents live.
type IdentityConfig struct {
	GatewaySignaturePublicKey  string `yaml:"gateway_signature_public_key" env:"IDENTITY_GATEWAY_SIGNATURE_PUBLIC_KEY"`
	GatewayEncryptionPublicKey string `yaml:"gateway_encryption_public_key" env:"IDENTITY_GATEWAY_ENCRYPTION_PUBLIC_KEY"`
	HelperSignaturePublicKey   string `yaml:"helper_signature_public_key" env:"IDENTITY_HELPER_SIGNATURE_PUBLIC_KEY"`
	HelperSignaturePrivateKey  string `yaml:"helper_signature_private_key" env:"IDENTITY_HELPER_SIGNATURE_PRIVATE_KEY"`
	HelperEncryptionPublicKey  string `yaml:"helper_encryption_public_key" env:"IDENTITY_HELPER_ENCRYPTION_PUBLIC_KEY"`
	HelperEncryptionPrivateKey string `yaml:"helper_encryption_private_key" env:"IDENTITY_HELPER_ENCRYPTION_PRIVATE_KEY"`
	RootDataFolder             string `yaml:"root_data_folder" env:"IDENTITY_ROOT_DATA_FOLDER"`
}

// ObjectStorageConfig selects and configures the document store backend.
type ObjectStorageConfig struct {
	Type         string `yaml:"type" env:"OBJECT_STORAGE_TYPE"` // aws or filesystem
	Host         string `yaml:"host" env:"OBJECT_STORAGE_HOST"` // S3 compatible endpoint, empty for AWS defaults
	Region       string `yaml:"region" env:"OBJECT_STORAGE_REGION"`
	Bucket       string `yaml:"bucket" env:"OBJECT_STORAGE_BUCKET"` // directory for the filesystem backend
	Key          string `yaml:"key" env:"OBJECT_STORAGE_KEY"`
	Secret       string `yaml:"secret" env:"OBJECT_STORAGE_SECRET"`
	UsePathStyle bool   `yaml:"use_path_style" env:"OBJECT_STORAGE_USE_PATH_STYLE"`
	ContentType  string `yaml:"content_type" env:"OBJECT_STORAGE_CONTENT_TYPE"`
	ACL          string `yaml:"acl" env:"OBJECT_STORAGE_ACL"`
}

// ArchiveCacheConfig bounds the in-memory cache of archived versions.
type ArchiveCacheConfig struct {
	Enabled  bool          `yaml:"enabled" env:"ARCHIVE_CACHE_ENABLED"`
	MaxBytes int64         `yaml:"max_bytes" env:"ARCHIVE_CACHE_MAX_BYTES"`
	MaxItems int           `yaml:"max_items" env:"ARCHIVE_CACHE_MAX_ITEMS"`
	TTL      time.Duration `yaml:"ttl" env:"ARCHIVE_CACHE_TTL"` // 0 keeps entries until evicted
}

// OracleConfig configures the cryptography oracle.
type OracleConfig struct {
	Type        string          `yaml:"type" env:"ORACLE_TYPE"` // grpc or local
	Address     string          `yaml:"address" env:"ORACLE_ADDRESS"`
	ServiceName string          `yaml:"service_name" env:"ORACLE_SERVICE_NAME"`
	Timeout     time.Duration   `yaml:"timeout" env:"ORACLE_TIMEOUT"`
	TLS         OracleTLSConfig `yaml:"tls"`
}

// OracleTLSConfig holds client TLS settings for the oracle connection.
type OracleTLSConfig struct {
	Enabled    bool   `yaml:"enabled" env:"ORACLE_TLS_ENABLED"`
	CAFile     string `yaml:"ca_file" env:"ORACLE_TLS_CA_FILE"`
	ServerName string `yaml:"server_name" env:"ORACLE_TLS_SERVER_NAME"`
}

// TLSConfig holds TLS configuration.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" env:"TLS_ENABLED"`
	CertFile string `yaml:"cert_file" env:"TLS_CERT_FILE"`
	KeyFile  string `yaml:"key_file" env:"TLS_KEY_FILE"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	ReadTimeout       time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"SERVER_READ_HEADER_TIMEOUT"`
	MaxHeaderBytes    int           `yaml:"max_header_bytes" env:"SERVER_MAX_HEADER_BYTES"`
	// MaxBodyBytes bounds the size of an inbound envelope.
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"SERVER_MAX_BODY_BYTES"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled" env:"RATE_LIMIT_ENABLED"`
	Limit   int           `yaml:"limit" env:"RATE_LIMIT_REQUESTS"`
	Window  time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW"`
}

// AuditConfig holds audit logging configuration.
type AuditConfig struct {
	Enabled   bool `yaml:"enabled" env:"AUDIT_ENABLED"`
	MaxEvents int  `yaml:"max_events" env:"AUDIT_MAX_EVENTS"` // Max events to keep in memory
}

// LoggingConfig controls the access log.
type LoggingConfig struct {
	AccessLogFormat string   `yaml:"access_log_format" env:"LOGGING_ACCESS_LOG_FORMAT"` // default, json
	RedactHeaders   []string `yaml:"redact_headers" env:"LOGGING_REDACT_HEADERS"`
}

// TracingConfig holds OpenTelemetry tracing configuration.
type TracingConfig struct {
	Enabled         bool    `yaml:"enabled" env:"TRACING_ENABLED"`
	ServiceName     string  `yaml:"service_name" env:"TRACING_SERVICE_NAME"`
	ServiceVersion  string  `yaml:"service_version" env:"TRACING_SERVICE_VERSION"`
	Exporter        string  `yaml:"exporter" env:"TRACING_EXPORTER"` // stdout, jaeger, otlp
	JaegerEndpoint  string  `yaml:"jaeger_endpoint" env:"TRACING_JAEGER_ENDPOINT"`
	OtlpEndpoint    string  `yaml:"otlp_endpoint" env:"TRACING_OTLP_ENDPOINT"`
	SamplingRatio   float64 `yaml:"sampling_ratio" env:"TRACING_SAMPLING_RATIO"`
	RedactSensitive bool    `yaml:"redact_sensitive" env:"TRACING_REDACT_SENSITIVE"`
}

// Default returns a configuration populated with defaults only.
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		LogLevel:   "info",
		Identity: IdentityConfig{
			RootDataFolder: "data",
		},
		ObjectStorage: ObjectStorageConfig{
			Type:        StorageTypeFilesystem,
			Region:      "us-east-1",
			Bucket:      "shares",
			ContentType: "application/x-binary",
			ACL:         "private",
		},
		ArchiveCache: ArchiveCacheConfig{
			Enabled:  false,
			MaxBytes: 64 << 20, // 64MB
			MaxItems: 10000,
		},
		Oracle: OracleConfig{
			Type:        OracleTypeGRPC,
			Address:     "localhost:50051",
			ServiceName: crypto.DefaultServiceName,
			Timeout:     10 * time.Second,
		},
		Server: ServerConfig{
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			MaxHeaderBytes:    1 << 20, // 1MB
			MaxBodyBytes:      4 << 20, // 4MB
		},
		RateLimit: RateLimitConfig{
			Enabled: false,
			Limit:   100,
			Window:  60 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:   false,
			MaxEvents: 10000,
		},
		Logging: LoggingConfig{
			AccessLogFormat: "default",
		},
		Tracing: TracingConfig{
			Enabled:         false,
			ServiceName:     "identity-helper",
			ServiceVersion:  "dev",
			Exporter:        "stdout",
			SamplingRatio:   1.0,
			RedactSensitive: true,
		},
	}
}

// LoadConfig loads configuration from a file and environment variables.
func LoadConfig(path string) (*Config, error) {
	config := Default()

	// Load from file if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	loadFromEnv(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func envBool(v string) bool {
	return v == "true" || v == "1"
}

func envList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// loadFromEnv loads configuration values from environment variables.
func loadFromEnv(config *Config) {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		config.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}

	// Identity
	if v := os.Getenv("IDENTITY_GATEWAY_SIGNATURE_PUBLIC_KEY"); v != "" {
		config.Identity.GatewaySignaturePublicKey = v
	}
	if v := os.Getenv("IDENTITY_GATEWAY_ENCRYPTION_PUBLIC_KEY"); v != "" {
		config.Identity.GatewayEncryptionPublicKey = v
	}
	if v := os.Getenv("IDENTITY_HELPER_SIGNATURE_PUBLIC_KEY"); v != "" {
		config.Identity.HelperSignaturePublicKey = v
	}
	if v := os.Getenv("IDENTITY_HELPER_SIGNATURE_PRIVATE_KEY"); v != "" {
		config.Identity.HelperSignaturePrivateKey = v
	}
	if v := os.Getenv("IDENTITY_HELPER_ENCRYPTION_PUBLIC_KEY"); v != "" {
		config.Identity.HelperEncryptionPublicKey = v
	}
	if v := os.Getenv("IDENTITY_HELPER_ENCRYPTION_PRIVATE_KEY"); v != "" {
		config.Identity.HelperEncryptionPrivateKey = v
	}
	if v := os.Getenv("IDENTITY_ROOT_DATA_FOLDER"); v != "" {
		config.Identity.RootDataFolder = v
	}

	// Object storage
	if v := os.Getenv("OBJECT_STORAGE_TYPE"); v != "" {
		config.ObjectStorage.Type = v
	}
	if v := os.Getenv("OBJECT_STORAGE_HOST"); v != "" {
		config.ObjectStorage.Host = v
	}
	if v := os.Getenv("OBJECT_STORAGE_REGION"); v != "" {
		config.ObjectStorage.Region = v
	}
	if v := os.Getenv("OBJECT_STORAGE_BUCKET"); v != "" {
		config.ObjectStorage.Bucket = v
	}
	if v := os.Getenv("OBJECT_STORAGE_KEY"); v != "" {
		config.ObjectStorage.Key = v
	}
	if v := os.Getenv("OBJECT_STORAGE_SECRET"); v != "" {
		config.ObjectStorage.Secret = v
	}
	if v := os.Getenv("OBJECT_STORAGE_USE_PATH_STYLE"); v != "" {
		config.ObjectStorage.UsePathStyle = envBool(v)
	}
	if v := os.Getenv("OBJECT_STORAGE_CONTENT_TYPE"); v != "" {
		config.ObjectStorage.ContentType = v
	}
	if v := os.Getenv("OBJECT_STORAGE_ACL"); v != "" {
		config.ObjectStorage.ACL = v
	}

	if v := os.Getenv("ARCHIVE_CACHE_ENABLED"); v != "" {
		config.ArchiveCache.Enabled = envBool(v)
	}
	if v := os.Getenv("ARCHIVE_CACHE_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			config.ArchiveCache.MaxBytes = n
		}
	}
	if v := os.Getenv("ARCHIVE_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.ArchiveCache.MaxItems = n
		}
	}
	if v := os.Getenv("ARCHIVE_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ArchiveCache.TTL = d
		}
	}

	// Oracle
	if v := os.Getenv("ORACLE_TYPE"); v != "" {
		config.Oracle.Type = v
	}
	if v := os.Getenv("ORACLE_ADDRESS"); v != "" {
		config.Oracle.Address = v
	}
	if v := os.Getenv("ORACLE_SERVICE_NAME"); v != "" {
		config.Oracle.ServiceName = v
	}
	if v := os.Getenv("ORACLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Oracle.Timeout = d
		}
	}
	if v := os.Getenv("ORACLE_TLS_ENABLED"); v != "" {
		config.Oracle.TLS.Enabled = envBool(v)
	}
	if v := os.Getenv("ORACLE_TLS_CA_FILE"); v != "" {
		config.Oracle.TLS.CAFile = v
	}
	if v := os.Getenv("ORACLE_TLS_SERVER_NAME"); v != "" {
		config.Oracle.TLS.ServerName = v
	}

	if v := os.Getenv("TLS_ENABLED"); v != "" {
		config.TLS.Enabled = envBool(v)
	}
	if v := os.Getenv("TLS_CERT_FILE"); v != "" {
		config.TLS.CertFile = v
	}
	if v := os.Getenv("TLS_KEY_FILE"); v != "" {
		config.TLS.KeyFile = v
	}

	// Server timeouts from environment
	if v := os.Getenv("SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Server.WriteTimeout = d
		}
	}
	if v := os.Getenv("SERVER_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Server.IdleTimeout = d
		}
	}
	if v := os.Getenv("SERVER_READ_HEADER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Server.ReadHeaderTimeout = d
		}
	}
	if v := os.Getenv("SERVER_MAX_HEADER_BYTES"); v != "" {
		var maxBytes int
		if _, err := fmt.Sscanf(v, "%d", &maxBytes); err == nil && maxBytes > 0 {
			config.Server.MaxHeaderBytes = maxBytes
		}
	}
	if v := os.Getenv("SERVER_MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			config.Server.MaxBodyBytes = n
		}
	}

	if v := os.Getenv("RATE_LIMIT_ENABLED"); v != "" {
		config.RateLimit.Enabled = envBool(v)
	}
	if v := os.Getenv("RATE_LIMIT_REQUESTS"); v != "" {
		var limit int
		if _, err := fmt.Sscanf(v, "%d", &limit); err == nil && limit > 0 {
			config.RateLimit.Limit = limit
		}
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.RateLimit.Window = d
		}
	}

	// Audit configuration
	if v := os.Getenv("AUDIT_ENABLED"); v != "" {
		config.Audit.Enabled = envBool(v)
	}
	if v := os.Getenv("AUDIT_MAX_EVENTS"); v != "" {
		var maxEvents int
		if _, err := fmt.Sscanf(v, "%d", &maxEvents); err == nil && maxEvents > 0 {
			config.Audit.MaxEvents = maxEvents
		}
	}

	if v := os.Getenv("LOGGING_ACCESS_LOG_FORMAT"); v != "" {
		config.Logging.AccessLogFormat = v
	}
	if v := os.Getenv("LOGGING_REDACT_HEADERS"); v != "" {
		config.Logging.RedactHeaders = envList(v)
	}

	// Tracing configuration
	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		config.Tracing.Enabled = envBool(v)
	}
	if v := os.Getenv("TRACING_SERVICE_NAME"); v != "" {
		config.Tracing.ServiceName = v
	}
	if v := os.Getenv("TRACING_SERVICE_VERSION"); v != "" {
		config.Tracing.ServiceVersion = v
	}
	if v := os.Getenv("TRACING_EXPORTER"); v != "" {
		config.Tracing.Exporter = v
	}
	if v := os.Getenv("TRACING_JAEGER_ENDPOINT"); v != "" {
		config.Tracing.JaegerEndpoint = v
	}
	if v := os.Getenv("TRACING_OTLP_ENDPOINT"); v != "" {
		config.Tracing.OtlpEndpoint = v
	}
	if v := os.Getenv("TRACING_SAMPLING_RATIO"); v != "" {
		if ratio, err := strconv.ParseFloat(v, 64); err == nil && ratio >= 0.0 && ratio <= 1.0 {
			config.Tracing.SamplingRatio = ratio
		}
	}
	if v := os.Getenv("TRACING_REDACT_SENSITIVE"); v != "" {
		config.Tracing.RedactSensitive = envBool(v)
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}

	if c.LogLevel != "" {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[c.LogLevel] {
			return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", c.LogLevel)
		}
	}

	if _, err := c.DecodeKeys(); err != nil {
		return err
	}
	if strings.Trim(c.Identity.RootDataFolder, "/") == "" {
		return fmt.Errorf("identity.root_data_folder is required")
	}

	switch c.ObjectStorage.Type {
	case StorageTypeFilesystem:
		if c.ObjectStorage.Bucket == "" {
			return fmt.Errorf("object_storage.bucket is required (directory for the filesystem backend)")
		}
	case StorageTypeAWS:
		if c.ObjectStorage.Bucket == "" {
			return fmt.Errorf("object_storage.bucket is required")
		}
		if c.ObjectStorage.Key == "" {
			return fmt.Errorf("object_storage.key is required for the aws backend")
		}
		if c.ObjectStorage.Secret == "" {
			return fmt.Errorf("object_storage.secret is required for the aws backend")
		}
	default:
		return fmt.Errorf("invalid object_storage.type: %s (must be aws or filesystem)", c.ObjectStorage.Type)
	}

	if c.ArchiveCache.Enabled {
		if c.ArchiveCache.MaxBytes <= 0 {
			return fmt.Errorf("archive_cache.max_bytes must be positive when the cache is enabled")
		}
		if c.ArchiveCache.MaxItems <= 0 {
			return fmt.Errorf("archive_cache.max_items must be positive when the cache is enabled")
		}
		if c.ArchiveCache.TTL < 0 {
			return fmt.Errorf("archive_cache.ttl must not be negative")
		}
	}

	switch c.Oracle.Type {
	case OracleTypeLocal:
	case OracleTypeGRPC:
		if c.Oracle.Address == "" {
			return fmt.Errorf("oracle.address is required when oracle.type is grpc")
		}
		if c.Oracle.Timeout < 0 {
			return fmt.Errorf("oracle.timeout must not be negative")
		}
	default:
		return fmt.Errorf("invalid oracle.type: %s (must be grpc or local)", c.Oracle.Type)
	}

	// Validate TLS configuration
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" {
			return fmt.Errorf("tls.cert_file is required when TLS is enabled")
		}
		if c.TLS.KeyFile == "" {
			return fmt.Errorf("tls.key_file is required when TLS is enabled")
		}
	}

	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server.max_body_bytes must not be negative")
	}

	switch c.Logging.AccessLogFormat {
	case "", "default", "json":
	default:
		return fmt.Errorf("invalid logging.access_log_format: %s (must be default or json)", c.Logging.AccessLogFormat)
	}

	// Validate tracing configuration
	if c.Tracing.Enabled {
		if c.Tracing.ServiceName == "" {
			return fmt.Errorf("tracing.service_name is required when tracing is enabled")
		}
		validExporters := map[string]bool{
			"stdout": true,
			"jaeger": true,
			"otlp":   true,
		}
		if !validExporters[c.Tracing.Exporter] {
			return fmt.Errorf("invalid tracing.exporter: %s (must be stdout, jaeger, or otlp)", c.Tracing.Exporter)
		}
		if c.Tracing.SamplingRatio < 0.0 || c.Tracing.SamplingRatio > 1.0 {
			return fmt.Errorf("tracing.sampling_ratio must be between 0.0 and 1.0")
		}
		if c.Tracing.Exporter == "jaeger" && c.Tracing.JaegerEndpoint == "" {
			return fmt.Errorf("tracing.jaeger_endpoint is required when exporter is jaeger")
		}
		if c.Tracing.Exporter == "otlp" && c.Tracing.OtlpEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is otlp")
		}
	}

	return nil
}

// RootFolder returns the configured root data folder without surrounding
// slashes, ready to prefix object keys.
func (c *Config) RootFolder() string {
	return strings.Trim(c.Identity.RootDataFolder, "/")
}

type keyField struct {
	name  string
	value string
	dst   *[]byte
}

// DecodeKeys base64 decodes the identity key material.
func (c *Config) DecodeKeys() (*crypto.KeySet, error) {
	keys := &crypto.KeySet{}
	fields := []keyField{
		{"identity.gateway_signature_public_key", c.Identity.GatewaySignaturePublicKey, &keys.GatewaySignaturePublic},
		{"identity.gateway_encryption_public_key", c.Identity.GatewayEncryptionPublicKey, &keys.GatewayEncryptionPublic},
		{"identity.helper_signature_public_key", c.Identity.HelperSignaturePublicKey, &keys.HelperSignaturePublic},
		{"identity.helper_signature_private_key", c.Identity.HelperSignaturePrivateKey, &keys.HelperSignaturePrivate},
		{"identity.helper_encryption_public_key", c.Identity.HelperEncryptionPublicKey, &keys.HelperEncryptionPublic},
		{"identity.helper_encryption_private_key", c.Identity.HelperEncryptionPrivateKey, &keys.HelperEncryptionPrivate},
	}

	for _, f := range fields {
		if f.value == "" {
			continue
		}
		b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(f.value))
		if err != nil {
			return nil, fmt.Errorf("%s is not valid base64: %w", f.name, err)
		}
		*f.dst = b
	}

	if err := keys.Validate(); err != nil {
		return nil, err
	}
	return keys, nil
}
