package api

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kenneth/identity-helper/internal/config"
	"github.com/kenneth/identity-helper/internal/crypto"
	"github.com/sirupsen/logrus"
)

// BuildOracle builds the cryptography oracle from configuration. The
// returned closer releases the oracle connection; it is a no-op for the local
// oracle.
func BuildOracle(cfg *config.OracleConfig, logger *logrus.Logger) (crypto.Oracle, io.Closer, error) {
	oracleType := strings.ToLower(cfg.Type)
	if oracleType == "" {
		oracleType = config.OracleTypeGRPC
	}

	switch oracleType {
	case config.OracleTypeGRPC:
		return newGRPCOracle(cfg, logger)
	case config.OracleTypeLocal:
		logger.Warn("Using the in-process local oracle; not for production key custody")
		return crypto.NewLocalOracle(), closerFunc(func() error { return nil }), nil
	default:
		return nil, nil, fmt.Errorf("unsupported oracle type %q", cfg.Type)
	}
}

func newGRPCOracle(cfg *config.OracleConfig, logger *logrus.Logger) (crypto.Oracle, io.Closer, error) {
	if cfg.Address == "" {
		return nil, nil, fmt.Errorf("oracle.address is required")
	}

	var tlsCfg *tls.Config
	if cfg.TLS.Enabled {
		var err error
		tlsCfg, err = buildOracleTLSConfig(cfg.TLS)
		if err != nil {
			return nil, nil, err
		}
	}

	oracle, err := crypto.NewGRPCOracle(crypto.GRPCOptions{
		Address:     cfg.Address,
		ServiceName: cfg.ServiceName,
		Timeout:     cfg.Timeout,
		TLSConfig:   tlsCfg,
	})
	if err != nil {
		return nil, nil, err
	}

	logger.WithFields(logrus.Fields{
		"address": cfg.Address,
		"service": cfg.ServiceName,
		"timeout": cfg.Timeout,
		"tls":     cfg.TLS.Enabled,
	}).Info("Cryptography oracle client configured")

	return oracle, oracle, nil
}

func buildOracleTLSConfig(cfg config.OracleTLSConfig) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: cfg.ServerName,
	}

	if cfg.CAFile != "" {
		caData, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read oracle CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caData) {
			return nil, fmt.Errorf("failed to parse oracle CA certificate")
		}
		tlsCfg.RootCAs = pool
	}

	return tlsCfg, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
