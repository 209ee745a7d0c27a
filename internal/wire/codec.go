// Package wire encodes and decodes the request and response records exchanged
// with the gateway. Records use the protobuf binary wire format so that they
// interoperate with gateways built from the shared .proto contract.
package wire

import (
	"bytes"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned when a record cannot be decoded.
var ErrMalformed = errors.New("wire: malformed message")

// Field is a single decoded top-level field of a record.
type Field struct {
	Num    protowire.Number
	Type   protowire.Type
	Bytes  []byte
	Varint uint64
}

// Walk decodes b field by field and calls visit for each one. Groups and
// fixed-width fields are skipped; unknown fields are passed to visit as-is.
func Walk(b []byte, visit func(Field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		f := Field{Num: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			f.Varint, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.Bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := visit(f); err != nil {
			return err
		}
	}
	return nil
}

// BytesValue returns a copy of a length-delimited field value.
func (f Field) BytesValue() ([]byte, error) {
	if f.Type != protowire.BytesType {
		return nil, fmt.Errorf("%w: field %d is not length-delimited", ErrMalformed, f.Num)
	}
	return bytes.Clone(f.Bytes), nil
}

// BoolValue returns the value of a varint field interpreted as bool.
func (f Field) BoolValue() (bool, error) {
	if f.Type != protowire.VarintType {
		return false, fmt.Errorf("%w: field %d is not a varint", ErrMalformed, f.Num)
	}
	return protowire.DecodeBool(f.Varint), nil
}

// AppendBytesField appends a length-delimited field. Empty values are omitted,
// matching proto3 encoding of scalar bytes and strings.
func AppendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// AppendStringField appends a string field.
func AppendStringField(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// AppendBoolField appends a bool field; false is omitted.
func AppendBoolField(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

// appendRepeatedBytes appends one length-delimited entry per element, keeping
// empty elements so list positions survive a round trip.
func appendRepeatedBytes(b []byte, num protowire.Number, values [][]byte) []byte {
	for _, v := range values {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, v)
	}
	return b
}

// appendMessageField appends an embedded message. Unlike scalars, a present
// message is always written, even when its encoding is empty.
func appendMessageField(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}
