package crypto

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// oracleHandler is the handler type registered with the gRPC server.
type oracleHandler interface {
	backend() (Oracle, KeyGenerator)
}

type oracleService struct {
	oracle    Oracle
	generator KeyGenerator
}

func (s *oracleService) backend() (Oracle, KeyGenerator) { return s.oracle, s.generator }

// NewOracleServer exposes an Oracle over the cryptography service gRPC
// contract. It is used to run a development oracle and in tests; generator
// may be nil, in which case key generation RPCs return Unimplemented.
func NewOracleServer(oracle Oracle, generator KeyGenerator, serviceName string, opts ...grpc.ServerOption) *grpc.Server {
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	opts = append([]grpc.ServerOption{grpc.ForceServerCodec(oracleCodec{})}, opts...)
	srv := grpc.NewServer(opts...)
	srv.RegisterService(oracleServiceDesc(serviceName), &oracleService{oracle: oracle, generator: generator})
	return srv
}

func oracleServiceDesc(serviceName string) *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*oracleHandler)(nil),
		Methods: []grpc.MethodDesc{
			unaryMethod(serviceName, methodDecrypt, func() wireMessage { return &decryptRequest{} },
				func(ctx context.Context, o Oracle, _ KeyGenerator, m wireMessage) (wireMessage, error) {
					req := m.(*decryptRequest)
					plain, err := o.Decrypt(ctx, req.Ciphertext, req.SecretKey)
					if err != nil {
						return nil, status.Error(codes.InvalidArgument, err.Error())
					}
					return &decryptResponse{Message: plain}, nil
				}),
			unaryMethod(serviceName, methodVerify, func() wireMessage { return &verifyRequest{} },
				func(ctx context.Context, o Oracle, _ KeyGenerator, m wireMessage) (wireMessage, error) {
					req := m.(*verifyRequest)
					valid, err := o.VerifySignature(ctx, req.Message, req.PublicKey, req.Signature)
					if err != nil {
						return nil, status.Error(codes.InvalidArgument, err.Error())
					}
					return &verifyResponse{Valid: valid}, nil
				}),
			unaryMethod(serviceName, methodSign, func() wireMessage { return &signRequest{} },
				func(ctx context.Context, o Oracle, _ KeyGenerator, m wireMessage) (wireMessage, error) {
					req := m.(*signRequest)
					sig, err := o.Sign(ctx, req.Message, req.SecretKey)
					if err != nil {
						return nil, status.Error(codes.InvalidArgument, err.Error())
					}
					return &signResponse{Signature: sig}, nil
				}),
			unaryMethod(serviceName, methodEncrypt, func() wireMessage { return &encryptRequest{} },
				func(ctx context.Context, o Oracle, _ KeyGenerator, m wireMessage) (wireMessage, error) {
					req := m.(*encryptRequest)
					ct, err := o.Encrypt(ctx, req.Message, req.PublicKey)
					if err != nil {
						return nil, status.Error(codes.InvalidArgument, err.Error())
					}
					return &encryptResponse{Ciphertext: ct}, nil
				}),
			unaryMethod(serviceName, methodGenerateSigningKey, func() wireMessage { return &generateKeyRequest{} },
				func(ctx context.Context, _ Oracle, g KeyGenerator, _ wireMessage) (wireMessage, error) {
					if g == nil {
						return nil, status.Error(codes.Unimplemented, "key generation is not available")
					}
					kp, err := g.GenerateSigningKey(ctx)
					if err != nil {
						return nil, status.Error(codes.Internal, err.Error())
					}
					return &generateKeyResponse{PublicKey: kp.PublicKey, PrivateKey: kp.PrivateKey}, nil
				}),
			unaryMethod(serviceName, methodGenerateEncryptionKey, func() wireMessage { return &generateKeyRequest{} },
				func(ctx context.Context, _ Oracle, g KeyGenerator, _ wireMessage) (wireMessage, error) {
					if g == nil {
						return nil, status.Error(codes.Unimplemented, "key generation is not available")
					}
					kp, err := g.GenerateEncryptionKey(ctx)
					if err != nil {
						return nil, status.Error(codes.Internal, err.Error())
					}
					return &generateKeyResponse{PublicKey: kp.PublicKey, PrivateKey: kp.PrivateKey}, nil
				}),
		},
		Streams: []grpc.StreamDesc{},
	}
}

type oracleCall func(ctx context.Context, o Oracle, g KeyGenerator, req wireMessage) (wireMessage, error)

func unaryMethod(serviceName, name string, newRequest func() wireMessage, call oracleCall) grpc.MethodDesc {
	fullMethod := "/" + serviceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			h, ok := srv.(oracleHandler)
			if !ok {
				return nil, errors.New("oracle: unexpected handler type")
			}
			req := newRequest()
			if err := dec(req); err != nil {
				return nil, status.Error(codes.InvalidArgument, err.Error())
			}
			o, g := h.backend()
			if interceptor == nil {
				return call(ctx, o, g, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, req, info, func(ctx context.Context, r any) (any, error) {
				return call(ctx, o, g, r.(wireMessage))
			})
		},
	}
}
