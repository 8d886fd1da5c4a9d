// Package grpcauth adapts the bearer-token guard to gRPC unary calls.
package grpcauth

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"aegisid.org/internal/auth"
)

// UnaryServerInterceptor authenticates every unary call from the incoming
// "authorization" metadata and enforces the permissions registered for the
// full method name. Methods absent from perms require authentication only.
func UnaryServerInterceptor(guard *auth.Guard, perms map[string][]auth.Permission) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		principal, err := guard.Check(ctx, bearerFromMetadata(ctx), perms[info.FullMethod]...)
		if err != nil {
			return nil, toStatus(err)
		}
		return handler(auth.ContextWithPrincipal(ctx, principal), req)
	}
}

func bearerFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		return status.Error(codes.Unauthenticated, "authentication required")
	case errors.Is(err, auth.ErrForbidden):
		return status.Error(codes.PermissionDenied, "insufficient permissions")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
