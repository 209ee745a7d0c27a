package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// SignedRequest is the decrypted form of every inbound envelope. Signature is
// computed by the gateway over the exact bytes of Document.
type SignedRequest struct {
	Document  []byte
	Signature []byte
}

// Marshal encodes the request.
func (r *SignedRequest) Marshal() []byte {
	var b []byte
	b = AppendBytesField(b, 1, r.Document)
	b = AppendBytesField(b, 2, r.Signature)
	return b
}

// UnmarshalSignedRequest decodes a SignedRequest.
func UnmarshalSignedRequest(b []byte) (*SignedRequest, error) {
	r := &SignedRequest{}
	err := Walk(b, func(f Field) error {
		var err error
		switch f.Num {
		case 1:
			r.Document, err = f.BytesValue()
		case 2:
			r.Signature, err = f.BytesValue()
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("signed request: %w", err)
	}
	return r, nil
}

// StoreDocumentPayload is the signed body of a store request.
type StoreDocumentPayload struct {
	Identity []byte
	DocID    []byte
	Share    []byte
}

// Marshal encodes the payload.
func (p *StoreDocumentPayload) Marshal() []byte {
	var b []byte
	b = AppendBytesField(b, 1, p.Identity)
	b = AppendBytesField(b, 2, p.DocID)
	b = AppendBytesField(b, 3, p.Share)
	return b
}

// UnmarshalStoreDocumentPayload decodes a StoreDocumentPayload.
func UnmarshalStoreDocumentPayload(b []byte) (*StoreDocumentPayload, error) {
	p := &StoreDocumentPayload{}
	err := Walk(b, func(f Field) error {
		var err error
		switch f.Num {
		case 1:
			p.Identity, err = f.BytesValue()
		case 2:
			p.DocID, err = f.BytesValue()
		case 3:
			p.Share, err = f.BytesValue()
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store document payload: %w", err)
	}
	return p, nil
}

// DocumentRequest is the signed body of fetch and list-versions requests.
type DocumentRequest struct {
	Identity []byte
	DocID    []byte
}

// Marshal encodes the request body.
func (p *DocumentRequest) Marshal() []byte {
	var b []byte
	b = AppendBytesField(b, 1, p.Identity)
	b = AppendBytesField(b, 2, p.DocID)
	return b
}

// UnmarshalDocumentRequest decodes a DocumentRequest.
func UnmarshalDocumentRequest(b []byte) (*DocumentRequest, error) {
	p := &DocumentRequest{}
	err := Walk(b, func(f Field) error {
		var err error
		switch f.Num {
		case 1:
			p.Identity, err = f.BytesValue()
		case 2:
			p.DocID, err = f.BytesValue()
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("document request: %w", err)
	}
	return p, nil
}

// UserDocumentsRequest is the signed body of a list-user-documents request.
type UserDocumentsRequest struct {
	Identity []byte
}

// Marshal encodes the request body.
func (p *UserDocumentsRequest) Marshal() []byte {
	return AppendBytesField(nil, 1, p.Identity)
}

// UnmarshalUserDocumentsRequest decodes a UserDocumentsRequest.
func UnmarshalUserDocumentsRequest(b []byte) (*UserDocumentsRequest, error) {
	p := &UserDocumentsRequest{}
	err := Walk(b, func(f Field) error {
		var err error
		if f.Num == 1 {
			p.Identity, err = f.BytesValue()
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("user documents request: %w", err)
	}
	return p, nil
}

// Status is the outcome carried in every response.
type Status int32

const (
	StatusOK   Status = 0
	StatusFail Status = 1
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusFail:
		return "FAIL"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

// Result reports the outcome of an operation inside the signed response.
type Result struct {
	Status Status
	Memo   string
}

// OK returns a successful result.
func OK() Result {
	return Result{Status: StatusOK, Memo: "OK"}
}

// Fail returns a failed result with the given memo.
func Fail(memo string) Result {
	return Result{Status: StatusFail, Memo: memo}
}

func (r Result) marshal() []byte {
	var b []byte
	if r.Status != StatusOK {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.Status))
	}
	return AppendStringField(b, 2, r.Memo)
}

func unmarshalResult(b []byte) (Result, error) {
	var r Result
	err := Walk(b, func(f Field) error {
		switch f.Num {
		case 1:
			if f.Type != protowire.VarintType {
				return fmt.Errorf("%w: result status is not a varint", ErrMalformed)
			}
			r.Status = Status(int32(f.Varint))
		case 2:
			v, err := f.BytesValue()
			if err != nil {
				return err
			}
			r.Memo = string(v)
		}
		return nil
	})
	return r, err
}
