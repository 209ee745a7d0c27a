package crypto

import (
	"context"
	"errors"
)

var (
	// ErrOracleUnavailable is returned when the cryptography oracle cannot be
	// reached or does not answer in time.
	ErrOracleUnavailable = errors.New("crypto: oracle unavailable")
	// ErrDecryptionFailed is returned when a ciphertext cannot be opened with
	// the supplied key.
	ErrDecryptionFailed = errors.New("crypto: decryption failed")
	// ErrInvalidKey is returned when key material has the wrong shape.
	ErrInvalidKey = errors.New("crypto: invalid key")
)

// Oracle performs every cryptographic primitive on behalf of the helper.
//
// The helper never holds an implementation of an algorithm on the request
// path; it hands raw key bytes and data to the oracle and acts on the result.
// A false VerifySignature result with a nil error means the signature was
// checked and rejected.
type Oracle interface {
	Decrypt(ctx context.Context, ciphertext, secretKey []byte) ([]byte, error)
	VerifySignature(ctx context.Context, message, publicKey, signature []byte) (bool, error)
	Sign(ctx context.Context, message, secretKey []byte) ([]byte, error)
	Encrypt(ctx context.Context, plaintext, publicKey []byte) ([]byte, error)
}

// KeyGenerator is implemented by oracles that can mint key pairs.
type KeyGenerator interface {
	GenerateSigningKey(ctx context.Context) (*KeyPair, error)
	GenerateEncryptionKey(ctx context.Context) (*KeyPair, error)
}

// KeyPair holds raw public and private key bytes as produced by the oracle.
type KeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// KeySet is the key material the helper works with, decoded once at startup.
type KeySet struct {
	GatewaySignaturePublic  []byte
	GatewayEncryptionPublic []byte
	HelperSignaturePublic   []byte
	HelperSignaturePrivate  []byte
	HelperEncryptionPublic  []byte
	HelperEncryptionPrivate []byte
}

// Validate checks that every key the request pipeline needs is present.
// The helper's public keys are optional; they are only published to peers.
func (k *KeySet) Validate() error {
	switch {
	case k == nil:
		return errors.New("crypto: key set is nil")
	case len(k.GatewaySignaturePublic) == 0:
		return errors.New("crypto: gateway signature public key is required")
	case len(k.GatewayEncryptionPublic) == 0:
		return errors.New("crypto: gateway encryption public key is required")
	case len(k.HelperSignaturePrivate) == 0:
		return errors.New("crypto: helper signature private key is required")
	case len(k.HelperEncryptionPrivate) == 0:
		return errors.New("crypto: helper encryption private key is required")
	}
	return nil
}
