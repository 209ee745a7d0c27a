package crypto

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

func startOracleServer(t *testing.T, generator KeyGenerator) *GRPCOracle {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := NewOracleServer(NewLocalOracle(), generator, "")
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	client, err := NewGRPCOracle(GRPCOptions{
		Address: "passthrough:///bufnet",
		Timeout: 10 * time.Second,
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestGRPCOracle_RoundTrip(t *testing.T) {
	client := startOracleServer(t, NewLocalOracle())
	ctx := context.Background()

	sign, err := client.GenerateSigningKey(ctx)
	require.NoError(t, err)
	enc, err := client.GenerateEncryptionKey(ctx)
	require.NoError(t, err)

	ct, err := client.Encrypt(ctx, []byte("share bytes"), enc.PublicKey)
	require.NoError(t, err)
	pt, err := client.Decrypt(ctx, ct, enc.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("share bytes"), pt)

	sig, err := client.Sign(ctx, []byte("doc"), sign.PrivateKey)
	require.NoError(t, err)
	ok, err := client.VerifySignature(ctx, []byte("doc"), sign.PublicKey, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.VerifySignature(ctx, []byte("other"), sign.PublicKey, sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGRPCOracle_DecryptFailureMapsToSentinel(t *testing.T) {
	client := startOracleServer(t, NewLocalOracle())
	ctx := context.Background()

	enc, err := client.GenerateEncryptionKey(ctx)
	require.NoError(t, err)

	_, err = client.Decrypt(ctx, []byte("not a ciphertext"), enc.PrivateKey)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecryptionFailed), "got %v", err)
}

func TestGRPCOracle_KeyGenerationUnimplemented(t *testing.T) {
	client := startOracleServer(t, nil)

	_, err := client.GenerateSigningKey(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrOracleUnavailable))
}

func TestGRPCOracle_Unavailable(t *testing.T) {
	lis := bufconn.Listen(1 << 10)
	require.NoError(t, lis.Close())

	client, err := NewGRPCOracle(GRPCOptions{
		Address: "passthrough:///bufnet",
		Timeout: 500 * time.Millisecond,
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		},
	})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Sign(context.Background(), []byte("m"), []byte("k"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOracleUnavailable), "got %v", err)
}

func TestNewGRPCOracle_RequiresAddress(t *testing.T) {
	_, err := NewGRPCOracle(GRPCOptions{Address: "  "})
	assert.Error(t, err)
}
