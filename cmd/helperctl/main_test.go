package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/kenneth/identity-helper/internal/config"
	"github.com/kenneth/identity-helper/internal/gateway"
	"github.com/kenneth/identity-helper/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestKeygenProducesUsableIdentity(t *testing.T) {
	out := run(t, "keygen", "--root", "shares", "--with-gateway-private")

	var parsed gateway.KeyFile
	require.NoError(t, yaml.Unmarshal([]byte(out), &parsed))

	cfg := config.Default()
	cfg.Identity = parsed.Identity
	keys, err := cfg.DecodeKeys()
	require.NoError(t, err)
	require.NoError(t, keys.Validate())
	assert.Equal(t, "shares", cfg.RootFolder())

	gw, err := parsed.GatewayKeys()
	require.NoError(t, err)
	assert.Equal(t, keys.HelperEncryptionPublic, gw.HelperEncryptionPublicKey)
}

func TestKeygenOmitsGatewayPrivateByDefault(t *testing.T) {
	out := run(t, "keygen")
	assert.NotContains(t, out, "gateway:")
	assert.Contains(t, out, "helper_signature_private_key:")
}

func seedStore(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	backend, err := storage.NewFilesystemBackend(dir)
	require.NoError(t, err)

	now := time.Unix(1741519100, 0)
	store := storage.NewVersioned(backend, storage.WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))

	ctx := context.Background()
	key := storage.ObjectKey("data", "alice", "doc1")
	require.NoError(t, store.Upload(ctx, key, []byte("v1"), "application/x-binary", "private"))
	require.NoError(t, store.Upload(ctx, key, []byte("v2"), "application/x-binary", "private"))
	require.NoError(t, store.Upload(ctx, storage.ObjectKey("data", "alice", "doc2"), []byte("x"), "application/x-binary", "private"))
	return dir
}

func TestVersionsListsTokens(t *testing.T) {
	dir := seedStore(t)

	out := run(t, "versions", "--bucket", dir, "alice", "doc1")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "doc1", lines[0])
	assert.Equal(t, "doc1.share.1741519101.archive", lines[1])
}

func TestVersionsKeysAsJSON(t *testing.T) {
	dir := seedStore(t)

	out := run(t, "versions", "--bucket", dir, "--json", "--keys", "alice", "doc1")
	var keys []string
	require.NoError(t, json.Unmarshal([]byte(out), &keys))
	assert.Equal(t, []string{
		"data/alice/doc1.share",
		"data/alice/doc1.share.1741519101.archive",
	}, keys)
}

func TestDocumentsSkipsArchives(t *testing.T) {
	dir := seedStore(t)

	out := run(t, "documents", "--bucket", dir, "alice")
	assert.Equal(t, "doc1\ndoc2\n", out)

	out = run(t, "documents", "--bucket", dir, "bob")
	assert.Empty(t, out)
}

func TestVersionsRequiresArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"versions", "alice"})
	assert.Error(t, cmd.Execute())
}
