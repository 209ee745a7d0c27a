package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"golang.org/x/crypto/hkdf"
)

const (
	envelopeInfo = "identity-helper envelope v1"
	aesKeySize   = 32
	gcmNonceSize = 12
)

// LocalOracle performs envelope cryptography in process using ML-KEM-768
// for key encapsulation, AES-256-GCM for the payload, and ML-DSA-65 for
// signatures. Ciphertexts have the layout kemCiphertext || nonce || sealed.
type LocalOracle struct {
	rand io.Reader
}

// NewLocalOracle returns an in-process oracle backed by crypto/rand.
func NewLocalOracle() *LocalOracle {
	return &LocalOracle{rand: rand.Reader}
}

// Encrypt implements Oracle.
func (o *LocalOracle) Encrypt(ctx context.Context, plaintext, publicKey []byte) ([]byte, error) {
	if len(publicKey) != mlkem768.PublicKeySize {
		return nil, fmt.Errorf("%w: encryption public key must be %d bytes, got %d", ErrInvalidKey, mlkem768.PublicKeySize, len(publicKey))
	}
	var pk mlkem768.PublicKey
	if err := pk.Unpack(publicKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	seed := make([]byte, mlkem768.EncapsulationSeedSize)
	if _, err := io.ReadFull(o.rand, seed); err != nil {
		return nil, fmt.Errorf("failed to read encapsulation seed: %w", err)
	}
	ctKem := make([]byte, mlkem768.CiphertextSize)
	shared := make([]byte, mlkem768.SharedKeySize)
	pk.EncapsulateTo(ctKem, shared, seed)

	aead, err := envelopeAEAD(shared, ctKem)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(ctKem)+gcmNonceSize+len(plaintext)+aead.Overhead())
	out = append(out, ctKem...)
	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(o.rand, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, ctKem), nil
}

// Decrypt implements Oracle.
func (o *LocalOracle) Decrypt(ctx context.Context, ciphertext, secretKey []byte) ([]byte, error) {
	if len(secretKey) != mlkem768.PrivateKeySize {
		return nil, fmt.Errorf("%w: encryption secret key must be %d bytes, got %d", ErrInvalidKey, mlkem768.PrivateKeySize, len(secretKey))
	}
	if len(ciphertext) < mlkem768.CiphertextSize+gcmNonceSize+16 {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}

	var sk mlkem768.PrivateKey
	if err := sk.Unpack(secretKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	ctKem := ciphertext[:mlkem768.CiphertextSize]
	nonce := ciphertext[mlkem768.CiphertextSize : mlkem768.CiphertextSize+gcmNonceSize]
	sealed := ciphertext[mlkem768.CiphertextSize+gcmNonceSize:]

	shared := make([]byte, mlkem768.SharedKeySize)
	sk.DecapsulateTo(shared, ctKem)

	aead, err := envelopeAEAD(shared, ctKem)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, sealed, ctKem)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// Sign implements Oracle.
func (o *LocalOracle) Sign(ctx context.Context, message, secretKey []byte) ([]byte, error) {
	if len(secretKey) != mldsa65.PrivateKeySize {
		return nil, fmt.Errorf("%w: signing secret key must be %d bytes, got %d", ErrInvalidKey, mldsa65.PrivateKeySize, len(secretKey))
	}
	sk := &mldsa65.PrivateKey{}
	if err := sk.UnmarshalBinary(secretKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	sig := make([]byte, mldsa65.SignatureSize)
	if err := mldsa65.SignTo(sk, message, nil, false, sig); err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	return sig, nil
}

// VerifySignature implements Oracle. A malformed signature is reported as
// invalid rather than as an error; only an unusable key is an error.
func (o *LocalOracle) VerifySignature(ctx context.Context, message, publicKey, signature []byte) (bool, error) {
	if len(publicKey) != mldsa65.PublicKeySize {
		return false, fmt.Errorf("%w: signature public key must be %d bytes, got %d", ErrInvalidKey, mldsa65.PublicKeySize, len(publicKey))
	}
	pk := &mldsa65.PublicKey{}
	if err := pk.UnmarshalBinary(publicKey); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(signature) != mldsa65.SignatureSize {
		return false, nil
	}
	return mldsa65.Verify(pk, message, nil, signature), nil
}

// GenerateSigningKey implements KeyGenerator.
func (o *LocalOracle) GenerateSigningKey(ctx context.Context) (*KeyPair, error) {
	pub, priv, err := mldsa65.GenerateKey(o.rand)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	pubBytes, _ := pub.MarshalBinary()
	privBytes, _ := priv.MarshalBinary()
	return &KeyPair{PublicKey: pubBytes, PrivateKey: privBytes}, nil
}

// GenerateEncryptionKey implements KeyGenerator.
func (o *LocalOracle) GenerateEncryptionKey(ctx context.Context) (*KeyPair, error) {
	pub, priv, err := mlkem768.GenerateKeyPair(o.rand)
	if err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	pubBytes, _ := pub.MarshalBinary()
	privBytes, _ := priv.MarshalBinary()
	return &KeyPair{PublicKey: pubBytes, PrivateKey: privBytes}, nil
}

func envelopeAEAD(shared, ctKem []byte) (cipher.AEAD, error) {
	key := make([]byte, aesKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, ctKem, []byte(envelopeInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive envelope key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}
