// Package helper implements the envelope exchange protocol: every request is
// decrypted, its signature checked against the gateway key, acted upon
// against the versioned store, and answered with a signed response encrypted
// for the gateway.
package helper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kenneth/identity-helper/internal/audit"
	"github.com/kenneth/identity-helper/internal/crypto"
	"github.com/kenneth/identity-helper/internal/storage"
	"github.com/kenneth/identity-helper/internal/wire"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrDecode is returned when an envelope cannot be opened or parsed.
	// No signed response can be built for such a request.
	ErrDecode = errors.New("helper: undecodable envelope")
	// ErrIntegrity is returned when a stored document no longer matches the
	// request that addressed it.
	ErrIntegrity = errors.New("helper: stored document failed integrity check")
)

// Operation names, shared with metrics labels and audit event types.
const (
	OpStoreDocument       = string(audit.EventTypeStore)
	OpGetDocument         = string(audit.EventTypeFetch)
	OpGetDocumentVersions = string(audit.EventTypeListVersions)
	OpGetUserDocuments    = string(audit.EventTypeListDocuments)
)

// Response memos.
const (
	MemoInvalidSignature = "Invalid message received. The signature is not valid."
	MemoMalformed        = "Invalid message received. The document is malformed."
	MemoStoreFailed      = "Unable to store the document."
	MemoArchiveImmutable = "Archived versions are immutable."
)

// Recorder receives one outcome per processed envelope.
type Recorder interface {
	RecordEnvelope(operation, outcome string)
}

// Engine executes the four helper operations.
type Engine struct {
	oracle      crypto.Oracle
	keys        *crypto.KeySet
	store       storage.Store
	root        string
	contentType string
	acl         string

	logger   logrus.FieldLogger
	recorder Recorder
	audit    audit.Logger
	tracer   trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithRecorder sets the envelope outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithAuditLogger sets the audit logger.
func WithAuditLogger(l audit.Logger) Option {
	return func(e *Engine) { e.audit = l }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithObjectOptions sets the content type and canned ACL of stored shares.
func WithObjectOptions(contentType, acl string) Option {
	return func(e *Engine) {
		e.contentType = contentType
		e.acl = acl
	}
}

// NewEngine creates an engine. root is the storage folder every identity
// lives under.
func NewEngine(oracle crypto.Oracle, keys *crypto.KeySet, store storage.Store, root string, opts ...Option) (*Engine, error) {
	if oracle == nil {
		return nil, errors.New("helper: oracle is required")
	}
	if store == nil {
		return nil, errors.New("helper: store is required")
	}
	if err := keys.Validate(); err != nil {
		return nil, err
	}
	if root == "" {
		return nil, errors.New("helper: root folder is required")
	}

	e := &Engine{
		oracle:      oracle,
		keys:        keys,
		store:       store,
		root:        root,
		contentType: "application/x-binary",
		acl:         "private",
		logger:      logrus.StandardLogger(),
		tracer:      otel.Tracer("identity-helper"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// StoreDocument persists the inbound envelope verbatim under the key derived
// from its payload.
func (e *Engine) StoreDocument(ctx context.Context, envelope []byte) (out []byte, err error) {
	ctx, span := e.tracer.Start(ctx, "helper.StoreDocument")
	op := e.begin(ctx, OpStoreDocument)
	defer func() { op.finish(span, err) }()

	fail := func(memo string) ([]byte, error) {
		op.reject(memo)
		return e.seal(ctx, &wire.StoreDocumentResponse{Result: wire.Fail(memo)})
	}

	req, valid, err := e.open(ctx, envelope)
	if err != nil {
		return nil, err
	}
	if !valid {
		return fail(MemoInvalidSignature)
	}
	payload, err := wire.UnmarshalStoreDocumentPayload(req.Document)
	if err != nil {
		op.logger.WithError(err).Warn("Malformed store payload")
		return fail(MemoMalformed)
	}

	docid := string(payload.DocID)
	key := storage.ObjectKey(e.root, string(payload.Identity), docid)
	op.key = key
	span.SetAttributes(attribute.Int("helper.share_bytes", len(payload.Share)))

	if storage.IsVersionToken(docid) {
		return fail(MemoArchiveImmutable)
	}

	if err := e.store.Upload(ctx, key, envelope, e.contentType, e.acl); err != nil {
		op.logger.WithError(err).Error("Failed to store document")
		op.reject(MemoStoreFailed)
		op.uploadErr = err
		return e.seal(ctx, &wire.StoreDocumentResponse{Result: wire.Fail(MemoStoreFailed)})
	}

	return e.seal(ctx, &wire.StoreDocumentResponse{Result: wire.OK(), IsSuccess: true})
}

// GetDocument loads a stored envelope, re-verifies it and returns its share.
// docid may name the current document or one of its archived versions.
func (e *Engine) GetDocument(ctx context.Context, envelope []byte) (out []byte, err error) {
	ctx, span := e.tracer.Start(ctx, "helper.GetDocument")
	op := e.begin(ctx, OpGetDocument)
	defer func() { op.finish(span, err) }()

	fail := func(memo string) ([]byte, error) {
		op.reject(memo)
		return e.seal(ctx, &wire.GetDocumentResponse{Result: wire.Fail(memo)})
	}

	req, valid, err := e.open(ctx, envelope)
	if err != nil {
		return nil, err
	}
	if !valid {
		return fail(MemoInvalidSignature)
	}
	docReq, err := wire.UnmarshalDocumentRequest(req.Document)
	if err != nil {
		op.logger.WithError(err).Warn("Malformed document request")
		return fail(MemoMalformed)
	}

	key := storage.ObjectKey(e.root, string(docReq.Identity), string(docReq.DocID))
	op.key = key

	stored, err := e.store.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}

	payload, err := e.openStored(ctx, stored)
	if err != nil {
		return nil, err
	}
	if string(payload.Identity) != string(docReq.Identity) {
		return nil, fmt.Errorf("%w: identity mismatch", ErrIntegrity)
	}
	if !storage.TokenMatches(string(payload.DocID), string(docReq.DocID)) {
		return nil, fmt.Errorf("%w: docid mismatch", ErrIntegrity)
	}

	return e.seal(ctx, &wire.GetDocumentResponse{Result: wire.OK(), Document: payload.Share})
}

// GetDocumentVersions lists the version tokens of one document, current
// version first.
func (e *Engine) GetDocumentVersions(ctx context.Context, envelope []byte) (out []byte, err error) {
	ctx, span := e.tracer.Start(ctx, "helper.GetDocumentVersions")
	op := e.begin(ctx, OpGetDocumentVersions)
	defer func() { op.finish(span, err) }()

	fail := func(memo string) ([]byte, error) {
		op.reject(memo)
		return e.seal(ctx, &wire.ListResponse{Result: wire.Fail(memo)})
	}

	req, valid, err := e.open(ctx, envelope)
	if err != nil {
		return nil, err
	}
	if !valid {
		return fail(MemoInvalidSignature)
	}
	docReq, err := wire.UnmarshalDocumentRequest(req.Document)
	if err != nil {
		op.logger.WithError(err).Warn("Malformed document request")
		return fail(MemoMalformed)
	}

	folder := storage.FolderKey(e.root, string(docReq.Identity))
	key := storage.ObjectKey(e.root, string(docReq.Identity), string(docReq.DocID))
	op.key = key

	keys, err := e.store.ListVersions(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("list versions of %s: %w", key, err)
	}
	span.SetAttributes(attribute.Int("helper.versions", len(keys)))

	return e.seal(ctx, &wire.ListResponse{Result: wire.OK(), Items: tokens(folder, keys)})
}

// GetUserDocuments lists the documents stored for one identity.
func (e *Engine) GetUserDocuments(ctx context.Context, envelope []byte) (out []byte, err error) {
	ctx, span := e.tracer.Start(ctx, "helper.GetUserDocuments")
	op := e.begin(ctx, OpGetUserDocuments)
	defer func() { op.finish(span, err) }()

	fail := func(memo string) ([]byte, error) {
		op.reject(memo)
		return e.seal(ctx, &wire.ListResponse{Result: wire.Fail(memo)})
	}

	req, valid, err := e.open(ctx, envelope)
	if err != nil {
		return nil, err
	}
	if !valid {
		return fail(MemoInvalidSignature)
	}
	userReq, err := wire.UnmarshalUserDocumentsRequest(req.Document)
	if err != nil {
		op.logger.WithError(err).Warn("Malformed user documents request")
		return fail(MemoMalformed)
	}

	folder := storage.FolderKey(e.root, string(userReq.Identity))
	op.key = folder

	keys, err := e.store.ListDocumentsInFolder(ctx, folder, storage.ShareSuffix)
	if err != nil {
		return nil, fmt.Errorf("list documents in %s: %w", folder, err)
	}
	span.SetAttributes(attribute.Int("helper.documents", len(keys)))

	return e.seal(ctx, &wire.ListResponse{Result: wire.OK(), Items: tokens(folder, keys)})
}

// open decrypts an inbound envelope and checks its signature. valid is false
// when the signature was checked and rejected.
func (e *Engine) open(ctx context.Context, envelope []byte) (req *wire.SignedRequest, valid bool, err error) {
	plain, err := e.oracle.Decrypt(ctx, envelope, e.keys.HelperEncryptionPrivate)
	if err != nil {
		if errors.Is(err, crypto.ErrOracleUnavailable) {
			return nil, false, fmt.Errorf("decrypt envelope: %w", err)
		}
		return nil, false, fmt.Errorf("%w: decrypt: %w", ErrDecode, err)
	}
	req, err = wire.UnmarshalSignedRequest(plain)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	valid, err = e.oracle.VerifySignature(ctx, req.Document, e.keys.GatewaySignaturePublic, req.Signature)
	if err != nil {
		return nil, false, fmt.Errorf("verify signature: %w", err)
	}
	return req, valid, nil
}

// openStored opens an envelope read back from the store. Anything short of a
// valid, parseable, signed store payload is an integrity failure.
func (e *Engine) openStored(ctx context.Context, stored []byte) (*wire.StoreDocumentPayload, error) {
	req, valid, err := e.open(ctx, stored)
	if err != nil {
		if errors.Is(err, ErrDecode) {
			return nil, fmt.Errorf("%w: %w", ErrIntegrity, err)
		}
		return nil, err
	}
	if !valid {
		return nil, fmt.Errorf("%w: stored signature is not valid", ErrIntegrity)
	}
	payload, err := wire.UnmarshalStoreDocumentPayload(req.Document)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIntegrity, err)
	}
	return payload, nil
}

// seal signs the response body and encrypts the signed response for the
// gateway.
func (e *Engine) seal(ctx context.Context, resp wire.SignedResponse) ([]byte, error) {
	body := resp.Body()
	sig, err := e.oracle.Sign(ctx, body, e.keys.HelperSignaturePrivate)
	if err != nil {
		return nil, fmt.Errorf("sign response: %w", err)
	}
	out, err := e.oracle.Encrypt(ctx, wire.Seal(body, sig), e.keys.GatewayEncryptionPublic)
	if err != nil {
		return nil, fmt.Errorf("encrypt response: %w", err)
	}
	return out, nil
}

func tokens(folder string, keys []string) [][]byte {
	items := make([][]byte, len(keys))
	for i, key := range keys {
		items[i] = []byte(storage.VersionToken(folder, key))
	}
	return items
}

// operation tracks one request for logging, metrics and audit.
type operation struct {
	engine    *Engine
	name      string
	start     time.Time
	logger    logrus.FieldLogger
	meta      map[string]interface{}
	key       string
	memo      string
	uploadErr error
}

func (e *Engine) begin(ctx context.Context, name string) *operation {
	logger := e.logger.WithField("operation", name)
	var meta map[string]interface{}
	if info, ok := RequestInfoFromContext(ctx); ok {
		logger = logger.WithField("request_id", info.ID)
		meta = map[string]interface{}{"request_id": info.ID, "client_ip": info.ClientIP}
	}
	return &operation{engine: e, name: name, start: time.Now(), logger: logger, meta: meta}
}

func (o *operation) reject(memo string) {
	o.memo = memo
}

func (o *operation) finish(span trace.Span, err error) {
	defer span.End()

	outcome := audit.OutcomeOK
	switch {
	case err != nil:
		outcome = audit.OutcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case o.memo != "":
		outcome = audit.OutcomeRejected
		span.SetStatus(codes.Error, o.memo)
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.String("helper.operation", o.name), attribute.String("helper.outcome", outcome))

	duration := time.Since(o.start)
	fields := logrus.Fields{"outcome": outcome, "duration_ms": duration.Milliseconds()}
	switch outcome {
	case audit.OutcomeError:
		o.logger.WithFields(fields).WithError(err).Error("Request failed")
	case audit.OutcomeRejected:
		o.logger.WithFields(fields).WithField("memo", o.memo).Warn("Request rejected")
	default:
		o.logger.WithFields(fields).Debug("Request completed")
	}

	e := o.engine
	if e.recorder != nil {
		e.recorder.RecordEnvelope(o.name, outcome)
	}
	if e.audit != nil {
		auditErr := err
		if auditErr == nil {
			auditErr = o.uploadErr
		}
		memo := o.memo
		if outcome == audit.OutcomeOK {
			memo = "OK"
		}
		e.audit.LogOperation(audit.EventType(o.name), o.key, outcome, memo, auditErr, duration, o.meta)
	}
}
