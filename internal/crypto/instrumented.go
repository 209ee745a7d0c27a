package crypto

import (
	"context"
	"time"
)

// Recorder receives the outcome of every oracle call.
type Recorder interface {
	RecordOracleOperation(operation string, duration time.Duration, err error)
}

type instrumentedOracle struct {
	next     Oracle
	recorder Recorder
}

// Instrument wraps o so each call is reported to recorder. A nil recorder
// returns o unchanged.
func Instrument(o Oracle, recorder Recorder) Oracle {
	if recorder == nil {
		return o
	}
	return &instrumentedOracle{next: o, recorder: recorder}
}

func (i *instrumentedOracle) Decrypt(ctx context.Context, ciphertext, secretKey []byte) ([]byte, error) {
	start := time.Now()
	out, err := i.next.Decrypt(ctx, ciphertext, secretKey)
	i.recorder.RecordOracleOperation("decrypt", time.Since(start), err)
	return out, err
}

func (i *instrumentedOracle) VerifySignature(ctx context.Context, message, publicKey, signature []byte) (bool, error) {
	start := time.Now()
	ok, err := i.next.VerifySignature(ctx, message, publicKey, signature)
	i.recorder.RecordOracleOperation("verify", time.Since(start), err)
	return ok, err
}

func (i *instrumentedOracle) Sign(ctx context.Context, message, secretKey []byte) ([]byte, error) {
	start := time.Now()
	out, err := i.next.Sign(ctx, message, secretKey)
	i.recorder.RecordOracleOperation("sign", time.Since(start), err)
	return out, err
}

func (i *instrumentedOracle) Encrypt(ctx context.Context, plaintext, publicKey []byte) ([]byte, error) {
	start := time.Now()
	out, err := i.next.Encrypt(ctx, plaintext, publicKey)
	i.recorder.RecordOracleOperation("encrypt", time.Since(start), err)
	return out, err
}
