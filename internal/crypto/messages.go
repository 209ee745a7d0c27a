package crypto

import (
	"github.com/kenneth/identity-helper/internal/wire"
)

// wireMessage is implemented by every oracle RPC message.
type wireMessage interface {
	marshalWire() []byte
	unmarshalWire([]byte) error
}

type decryptRequest struct {
	Ciphertext []byte
	SecretKey  []byte
}

func (m *decryptRequest) marshalWire() []byte {
	b := wire.AppendBytesField(nil, 1, m.Ciphertext)
	return wire.AppendBytesField(b, 2, m.SecretKey)
}

func (m *decryptRequest) unmarshalWire(b []byte) error {
	return wire.Walk(b, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			m.Ciphertext, err = f.BytesValue()
		case 2:
			m.SecretKey, err = f.BytesValue()
		}
		return err
	})
}

type decryptResponse struct {
	Message []byte
}

func (m *decryptResponse) marshalWire() []byte {
	return wire.AppendBytesField(nil, 1, m.Message)
}

func (m *decryptResponse) unmarshalWire(b []byte) error {
	return wire.Walk(b, func(f wire.Field) (err error) {
		if f.Num == 1 {
			m.Message, err = f.BytesValue()
		}
		return err
	})
}

type verifyRequest struct {
	Message   []byte
	PublicKey []byte
	Signature []byte
}

func (m *verifyRequest) marshalWire() []byte {
	b := wire.AppendBytesField(nil, 1, m.Message)
	b = wire.AppendBytesField(b, 2, m.PublicKey)
	return wire.AppendBytesField(b, 3, m.Signature)
}

func (m *verifyRequest) unmarshalWire(b []byte) error {
	return wire.Walk(b, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			m.Message, err = f.BytesValue()
		case 2:
			m.PublicKey, err = f.BytesValue()
		case 3:
			m.Signature, err = f.BytesValue()
		}
		return err
	})
}

type verifyResponse struct {
	Valid bool
}

func (m *verifyResponse) marshalWire() []byte {
	return wire.AppendBoolField(nil, 1, m.Valid)
}

func (m *verifyResponse) unmarshalWire(b []byte) error {
	return wire.Walk(b, func(f wire.Field) (err error) {
		if f.Num == 1 {
			m.Valid, err = f.BoolValue()
		}
		return err
	})
}

type signRequest struct {
	Message   []byte
	SecretKey []byte
}

func (m *signRequest) marshalWire() []byte {
	b := wire.AppendBytesField(nil, 1, m.Message)
	return wire.AppendBytesField(b, 2, m.SecretKey)
}

func (m *signRequest) unmarshalWire(b []byte) error {
	return wire.Walk(b, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			m.Message, err = f.BytesValue()
		case 2:
			m.SecretKey, err = f.BytesValue()
		}
		return err
	})
}

type signResponse struct {
	Signature []byte
}

func (m *signResponse) marshalWire() []byte {
	return wire.AppendBytesField(nil, 1, m.Signature)
}

func (m *signResponse) unmarshalWire(b []byte) error {
	return wire.Walk(b, func(f wire.Field) (err error) {
		if f.Num == 1 {
			m.Signature, err = f.BytesValue()
		}
		return err
	})
}

type encryptRequest struct {
	Message   []byte
	PublicKey []byte
}

func (m *encryptRequest) marshalWire() []byte {
	b := wire.AppendBytesField(nil, 1, m.Message)
	return wire.AppendBytesField(b, 2, m.PublicKey)
}

func (m *encryptRequest) unmarshalWire(b []byte) error {
	return wire.Walk(b, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			m.Message, err = f.BytesValue()
		case 2:
			m.PublicKey, err = f.BytesValue()
		}
		return err
	})
}

type encryptResponse struct {
	Ciphertext []byte
}

func (m *encryptResponse) marshalWire() []byte {
	return wire.AppendBytesField(nil, 1, m.Ciphertext)
}

func (m *encryptResponse) unmarshalWire(b []byte) error {
	return wire.Walk(b, func(f wire.Field) (err error) {
		if f.Num == 1 {
			m.Ciphertext, err = f.BytesValue()
		}
		return err
	})
}

type generateKeyRequest struct{}

func (m *generateKeyRequest) marshalWire() []byte { return nil }

func (m *generateKeyRequest) unmarshalWire(b []byte) error {
	return wire.Walk(b, func(wire.Field) error { return nil })
}

type generateKeyResponse struct {
	PublicKey  []byte
	PrivateKey []byte
}

func (m *generateKeyResponse) marshalWire() []byte {
	b := wire.AppendBytesField(nil, 1, m.PublicKey)
	return wire.AppendBytesField(b, 2, m.PrivateKey)
}

func (m *generateKeyResponse) unmarshalWire(b []byte) error {
	return wire.Walk(b, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			m.PublicKey, err = f.BytesValue()
		case 2:
			m.PrivateKey, err = f.BytesValue()
		}
		return err
	})
}
