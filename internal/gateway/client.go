// Package gateway implements the trusted peer side of the envelope protocol.
// It is used by the load generator and by end-to-end tests to talk to a
// running helper the way the production gateway does.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kenneth/identity-helper/internal/api"
	"github.com/kenneth/identity-helper/internal/crypto"
	"github.com/kenneth/identity-helper/internal/wire"
)

// ErrBadSignature is returned when a response is not signed by the helper.
var ErrBadSignature = errors.New("gateway: response signature is not valid")

// Keys is the gateway's key material plus the helper's public keys.
type Keys struct {
	SignaturePrivateKey       []byte
	EncryptionPrivateKey      []byte
	HelperSignaturePublicKey  []byte
	HelperEncryptionPublicKey []byte
}

// Client sends sealed envelopes to a helper over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	oracle     crypto.Oracle
	keys       Keys
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// NewClient returns a client for the helper at baseURL.
func NewClient(baseURL string, oracle crypto.Oracle, keys Keys, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		oracle:     oracle,
		keys:       keys,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HTTPClient returns the underlying HTTP client.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Exchange reports the wire size of one round trip.
type Exchange struct {
	BytesSent     int64
	BytesReceived int64
}

// StoreDocument stores share under identity/docid.
func (c *Client) StoreDocument(ctx context.Context, identity, docid string, share []byte) (*wire.StoreDocumentResponse, Exchange, error) {
	payload := &wire.StoreDocumentPayload{Identity: []byte(identity), DocID: []byte(docid), Share: share}
	plain, ex, err := c.roundTrip(ctx, api.PathStoreDocument, payload.Marshal())
	if err != nil {
		return nil, ex, err
	}
	resp, err := wire.UnmarshalStoreDocumentResponse(plain)
	return resp, ex, err
}

// GetDocument fetches the document addressed by docid, which may be a
// version token.
func (c *Client) GetDocument(ctx context.Context, identity, docid string) (*wire.GetDocumentResponse, Exchange, error) {
	payload := &wire.DocumentRequest{Identity: []byte(identity), DocID: []byte(docid)}
	plain, ex, err := c.roundTrip(ctx, api.PathGetDocument, payload.Marshal())
	if err != nil {
		return nil, ex, err
	}
	resp, err := wire.UnmarshalGetDocumentResponse(plain)
	return resp, ex, err
}

// GetDocumentVersions lists the version tokens of a document.
func (c *Client) GetDocumentVersions(ctx context.Context, identity, docid string) (*wire.ListResponse, Exchange, error) {
	payload := &wire.DocumentRequest{Identity: []byte(identity), DocID: []byte(docid)}
	plain, ex, err := c.roundTrip(ctx, api.PathGetDocumentVersions, payload.Marshal())
	if err != nil {
		return nil, ex, err
	}
	resp, err := wire.UnmarshalListResponse(plain)
	return resp, ex, err
}

// GetUserDocuments lists the documents stored for identity.
func (c *Client) GetUserDocuments(ctx context.Context, identity string) (*wire.ListResponse, Exchange, error) {
	payload := &wire.UserDocumentsRequest{Identity: []byte(identity)}
	plain, ex, err := c.roundTrip(ctx, api.PathGetUserDocuments, payload.Marshal())
	if err != nil {
		return nil, ex, err
	}
	resp, err := wire.UnmarshalListResponse(plain)
	return resp, ex, err
}

// Seal signs document and encrypts it for the helper.
func (c *Client) Seal(ctx context.Context, document []byte) ([]byte, error) {
	sig, err := c.oracle.Sign(ctx, document, c.keys.SignaturePrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}
	req := &wire.SignedRequest{Document: document, Signature: sig}
	envelope, err := c.oracle.Encrypt(ctx, req.Marshal(), c.keys.HelperEncryptionPublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt request: %w", err)
	}
	return envelope, nil
}

// Open decrypts a response and checks the helper's signature over its body.
// It returns the full signed response bytes.
func (c *Client) Open(ctx context.Context, response []byte) ([]byte, error) {
	plain, err := c.oracle.Decrypt(ctx, response, c.keys.EncryptionPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt response: %w", err)
	}
	body, sig, err := wire.SplitSigned(plain)
	if err != nil {
		return nil, err
	}
	valid, err := c.oracle.VerifySignature(ctx, body, c.keys.HelperSignaturePublicKey, sig)
	if err != nil {
		return nil, fmt.Errorf("failed to verify response: %w", err)
	}
	if !valid {
		return nil, ErrBadSignature
	}
	return plain, nil
}

func (c *Client) roundTrip(ctx context.Context, path string, document []byte) ([]byte, Exchange, error) {
	var ex Exchange

	envelope, err := c.Seal(ctx, document)
	if err != nil {
		return nil, ex, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(envelope))
	if err != nil {
		return nil, ex, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	ex.BytesSent = int64(len(envelope))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ex, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	ex.BytesReceived = int64(len(body))
	if err != nil {
		return nil, ex, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &api.APIError{HTTPStatus: resp.StatusCode}
		if jsonErr := json.Unmarshal(body, apiErr); jsonErr != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return nil, ex, apiErr
	}

	plain, err := c.Open(ctx, body)
	return plain, ex, err
}
