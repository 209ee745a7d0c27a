package crypto

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// DefaultServiceName is the fully qualified gRPC service exposed by the
// DeRec cryptography service.
const DefaultServiceName = "derec_crypto.DeRecCryptographyService"

const (
	methodDecrypt               = "EncryptDecrypt"
	methodVerify                = "SignVerify"
	methodSign                  = "SignSign"
	methodEncrypt               = "EncryptEncrypt"
	methodGenerateSigningKey    = "SignGenerateSigningKey"
	methodGenerateEncryptionKey = "EncryptGenerateEncryptionKey"
)

// oracleCodec moves oracle messages over gRPC in protobuf wire format
// without generated stubs. It registers under the "proto" name so peers see
// a regular application/grpc+proto exchange.
type oracleCodec struct{}

func (oracleCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("oracle codec: cannot marshal %T", v)
	}
	return m.marshalWire(), nil
}

func (oracleCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("oracle codec: cannot unmarshal into %T", v)
	}
	return m.unmarshalWire(data)
}

func (oracleCodec) Name() string { return "proto" }

// GRPCOptions configures the remote oracle client.
type GRPCOptions struct {
	Address     string
	ServiceName string
	Timeout     time.Duration
	TLSConfig   *tls.Config
	DialOptions []grpc.DialOption
}

// GRPCOracle is an Oracle backed by a remote cryptography service.
type GRPCOracle struct {
	conn    *grpc.ClientConn
	service string
	timeout time.Duration
}

// NewGRPCOracle creates a client for the oracle at opts.Address. The
// connection is established lazily on the first call.
func NewGRPCOracle(opts GRPCOptions) (*GRPCOracle, error) {
	address := strings.TrimSpace(opts.Address)
	if address == "" {
		return nil, errors.New("oracle: address is required")
	}
	service := opts.ServiceName
	if service == "" {
		service = DefaultServiceName
	}

	creds := insecure.NewCredentials()
	if opts.TLSConfig != nil {
		creds = credentials.NewTLS(opts.TLSConfig.Clone())
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(oracleCodec{})),
	}
	dialOpts = append(dialOpts, opts.DialOptions...)

	conn, err := grpc.NewClient(address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("oracle: failed to create client for %s: %w", address, err)
	}

	return &GRPCOracle{
		conn:    conn,
		service: service,
		timeout: opts.Timeout,
	}, nil
}

// Decrypt implements Oracle.
func (o *GRPCOracle) Decrypt(ctx context.Context, ciphertext, secretKey []byte) ([]byte, error) {
	resp := &decryptResponse{}
	err := o.invoke(ctx, methodDecrypt, &decryptRequest{Ciphertext: ciphertext, SecretKey: secretKey}, resp)
	if err != nil {
		return nil, err
	}
	return resp.Message, nil
}

// VerifySignature implements Oracle.
func (o *GRPCOracle) VerifySignature(ctx context.Context, message, publicKey, signature []byte) (bool, error) {
	resp := &verifyResponse{}
	err := o.invoke(ctx, methodVerify, &verifyRequest{Message: message, PublicKey: publicKey, Signature: signature}, resp)
	if err != nil {
		return false, err
	}
	return resp.Valid, nil
}

// Sign implements Oracle.
func (o *GRPCOracle) Sign(ctx context.Context, message, secretKey []byte) ([]byte, error) {
	resp := &signResponse{}
	err := o.invoke(ctx, methodSign, &signRequest{Message: message, SecretKey: secretKey}, resp)
	if err != nil {
		return nil, err
	}
	return resp.Signature, nil
}

// Encrypt implements Oracle.
func (o *GRPCOracle) Encrypt(ctx context.Context, plaintext, publicKey []byte) ([]byte, error) {
	resp := &encryptResponse{}
	err := o.invoke(ctx, methodEncrypt, &encryptRequest{Message: plaintext, PublicKey: publicKey}, resp)
	if err != nil {
		return nil, err
	}
	return resp.Ciphertext, nil
}

// GenerateSigningKey implements KeyGenerator.
func (o *GRPCOracle) GenerateSigningKey(ctx context.Context) (*KeyPair, error) {
	resp := &generateKeyResponse{}
	if err := o.invoke(ctx, methodGenerateSigningKey, &generateKeyRequest{}, resp); err != nil {
		return nil, err
	}
	return &KeyPair{PublicKey: resp.PublicKey, PrivateKey: resp.PrivateKey}, nil
}

// GenerateEncryptionKey implements KeyGenerator.
func (o *GRPCOracle) GenerateEncryptionKey(ctx context.Context) (*KeyPair, error) {
	resp := &generateKeyResponse{}
	if err := o.invoke(ctx, methodGenerateEncryptionKey, &generateKeyRequest{}, resp); err != nil {
		return nil, err
	}
	return &KeyPair{PublicKey: resp.PublicKey, PrivateKey: resp.PrivateKey}, nil
}

// Close releases the underlying connection.
func (o *GRPCOracle) Close() error {
	return o.conn.Close()
}

func (o *GRPCOracle) invoke(ctx context.Context, method string, req, resp wireMessage) error {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	err := o.conn.Invoke(ctx, "/"+o.service+"/"+method, req, resp)
	if err == nil {
		return nil
	}

	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s: %v", ErrOracleUnavailable, method, err)
	case codes.InvalidArgument:
		if method == methodDecrypt {
			return fmt.Errorf("%w: %v", ErrDecryptionFailed, status.Convert(err).Message())
		}
	}
	return fmt.Errorf("oracle: %s failed: %w", method, err)
}
