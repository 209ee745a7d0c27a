package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// SignatureField is the field number of the helper signature in every
// response. It is always the last field on the wire; the signature covers
// every byte that precedes it.
const SignatureField protowire.Number = 3

// ErrNoSignature is returned by SplitSigned when a response is unsigned.
var ErrNoSignature = errors.New("wire: response carries no signature")

// SignedResponse is implemented by every response record.
type SignedResponse interface {
	// Body returns the encoding of all fields except the signature.
	Body() []byte
}

// Seal appends the signature field to a response body.
func Seal(body, signature []byte) []byte {
	out := make([]byte, 0, len(body)+len(signature)+8)
	out = append(out, body...)
	out = protowire.AppendTag(out, SignatureField, protowire.BytesType)
	return protowire.AppendBytes(out, signature)
}

// SplitSigned returns the signed bytes and the signature of an encoded
// response. The returned body is a sub-slice of raw, byte-for-byte what the
// helper signed.
func SplitSigned(raw []byte) (body, signature []byte, err error) {
	offset := 0
	for offset < len(raw) {
		num, typ, n := protowire.ConsumeTag(raw[offset:])
		if n < 0 {
			return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		if num == SignatureField && typ == protowire.BytesType {
			sig, m := protowire.ConsumeBytes(raw[offset+n:])
			if m < 0 {
				return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
			}
			return raw[:offset], sig, nil
		}
		m := protowire.ConsumeFieldValue(num, typ, raw[offset+n:])
		if m < 0 {
			return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
		}
		offset += n + m
	}
	return nil, nil, ErrNoSignature
}

// StoreDocumentResponse answers a store request.
type StoreDocumentResponse struct {
	Result    Result
	IsSuccess bool
	Signature []byte
}

// Body implements SignedResponse.
func (r *StoreDocumentResponse) Body() []byte {
	b := appendMessageField(nil, 1, r.Result.marshal())
	return AppendBoolField(b, 2, r.IsSuccess)
}

// Marshal encodes the response including its signature.
func (r *StoreDocumentResponse) Marshal() []byte {
	return Seal(r.Body(), r.Signature)
}

// UnmarshalStoreDocumentResponse decodes a StoreDocumentResponse.
func UnmarshalStoreDocumentResponse(b []byte) (*StoreDocumentResponse, error) {
	r := &StoreDocumentResponse{}
	err := Walk(b, func(f Field) error {
		var err error
		switch f.Num {
		case 1:
			r.Result, err = decodeResultField(f)
		case 2:
			r.IsSuccess, err = f.BoolValue()
		case SignatureField:
			r.Signature, err = f.BytesValue()
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store document response: %w", err)
	}
	return r, nil
}

// GetDocumentResponse answers a fetch request.
type GetDocumentResponse struct {
	Result    Result
	Document  []byte
	Signature []byte
}

// Body implements SignedResponse.
func (r *GetDocumentResponse) Body() []byte {
	b := appendMessageField(nil, 1, r.Result.marshal())
	return AppendBytesField(b, 2, r.Document)
}

// Marshal encodes the response including its signature.
func (r *GetDocumentResponse) Marshal() []byte {
	return Seal(r.Body(), r.Signature)
}

// UnmarshalGetDocumentResponse decodes a GetDocumentResponse.
func UnmarshalGetDocumentResponse(b []byte) (*GetDocumentResponse, error) {
	r := &GetDocumentResponse{}
	err := Walk(b, func(f Field) error {
		var err error
		switch f.Num {
		case 1:
			r.Result, err = decodeResultField(f)
		case 2:
			r.Document, err = f.BytesValue()
		case SignatureField:
			r.Signature, err = f.BytesValue()
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get document response: %w", err)
	}
	return r, nil
}

// ListResponse answers list-versions and list-user-documents requests. Items
// holds version tokens or document ids respectively.
type ListResponse struct {
	Result    Result
	Items     [][]byte
	Signature []byte
}

// Body implements SignedResponse.
func (r *ListResponse) Body() []byte {
	b := appendMessageField(nil, 1, r.Result.marshal())
	return appendRepeatedBytes(b, 2, r.Items)
}

// Marshal encodes the response including its signature.
func (r *ListResponse) Marshal() []byte {
	return Seal(r.Body(), r.Signature)
}

// Strings returns Items as strings.
func (r *ListResponse) Strings() []string {
	out := make([]string, len(r.Items))
	for i, item := range r.Items {
		out[i] = string(item)
	}
	return out
}

// UnmarshalListResponse decodes a ListResponse.
func UnmarshalListResponse(b []byte) (*ListResponse, error) {
	r := &ListResponse{}
	err := Walk(b, func(f Field) error {
		switch f.Num {
		case 1:
			res, err := decodeResultField(f)
			r.Result = res
			return err
		case 2:
			v, err := f.BytesValue()
			if err != nil {
				return err
			}
			r.Items = append(r.Items, v)
		case SignatureField:
			v, err := f.BytesValue()
			r.Signature = v
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list response: %w", err)
	}
	return r, nil
}

func decodeResultField(f Field) (Result, error) {
	if f.Type != protowire.BytesType {
		return Result{}, fmt.Errorf("%w: result is not a message", ErrMalformed)
	}
	return unmarshalResult(f.Bytes)
}
