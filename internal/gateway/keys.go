package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"github.com/kenneth/identity-helper/internal/config"
	"github.com/kenneth/identity-helper/internal/crypto"
	"gopkg.in/yaml.v3"
)

// PrivateKeys holds the gateway's base64 encoded private keys.
type PrivateKeys struct {
	SignaturePrivateKey  string `yaml:"signature_private_key"`
	EncryptionPrivateKey string `yaml:"encryption_private_key"`
}

// KeyFile is the YAML document written by key generation: the helper's
// identity section, optionally followed by the matching gateway keys.
type KeyFile struct {
	Identity config.IdentityConfig `yaml:"identity"`
	Gateway  *PrivateKeys          `yaml:"gateway,omitempty"`
}

// GenerateKeyFile mints helper and gateway key pairs with generator.
func GenerateKeyFile(ctx context.Context, generator crypto.KeyGenerator, rootFolder string) (*KeyFile, error) {
	gens := []func(context.Context) (*crypto.KeyPair, error){
		generator.GenerateSigningKey,
		generator.GenerateEncryptionKey,
		generator.GenerateSigningKey,
		generator.GenerateEncryptionKey,
	}
	pairs := make([]*crypto.KeyPair, len(gens))
	for i, gen := range gens {
		pair, err := gen(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to generate key pair: %w", err)
		}
		pairs[i] = pair
	}
	helperSign, helperEnc, gwSign, gwEnc := pairs[0], pairs[1], pairs[2], pairs[3]

	return &KeyFile{
		Identity: config.IdentityConfig{
			GatewaySignaturePublicKey:  b64(gwSign.PublicKey),
			GatewayEncryptionPublicKey: b64(gwEnc.PublicKey),
			HelperSignaturePublicKey:   b64(helperSign.PublicKey),
			HelperSignaturePrivateKey:  b64(helperSign.PrivateKey),
			HelperEncryptionPublicKey:  b64(helperEnc.PublicKey),
			HelperEncryptionPrivateKey: b64(helperEnc.PrivateKey),
			RootDataFolder:             rootFolder,
		},
		Gateway: &PrivateKeys{
			SignaturePrivateKey:  b64(gwSign.PrivateKey),
			EncryptionPrivateKey: b64(gwEnc.PrivateKey),
		},
	}, nil
}

// LoadKeyFile reads a key file from disk.
func LoadKeyFile(path string) (*KeyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	var kf KeyFile
	if err := yaml.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("failed to parse key file: %w", err)
	}
	return &kf, nil
}

// HelperKeys decodes the helper's key set.
func (kf *KeyFile) HelperKeys() (*crypto.KeySet, error) {
	cfg := config.Config{Identity: kf.Identity}
	return cfg.DecodeKeys()
}

// GatewayKeys decodes the keys a gateway client needs.
func (kf *KeyFile) GatewayKeys() (Keys, error) {
	if kf.Gateway == nil {
		return Keys{}, errors.New("key file has no gateway section")
	}
	var (
		keys Keys
		err  error
	)
	fields := []struct {
		name  string
		value string
		dst   *[]byte
	}{
		{"gateway.signature_private_key", kf.Gateway.SignaturePrivateKey, &keys.SignaturePrivateKey},
		{"gateway.encryption_private_key", kf.Gateway.EncryptionPrivateKey, &keys.EncryptionPrivateKey},
		{"identity.helper_signature_public_key", kf.Identity.HelperSignaturePublicKey, &keys.HelperSignaturePublicKey},
		{"identity.helper_encryption_public_key", kf.Identity.HelperEncryptionPublicKey, &keys.HelperEncryptionPublicKey},
	}
	for _, f := range fields {
		if f.value == "" {
			return Keys{}, fmt.Errorf("%s is required", f.name)
		}
		if *f.dst, err = base64.StdEncoding.DecodeString(f.value); err != nil {
			return Keys{}, fmt.Errorf("%s: invalid base64: %w", f.name, err)
		}
	}
	return keys, nil
}

func b64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
