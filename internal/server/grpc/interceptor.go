package grpc

import (
	"context"
	"time"

	"github.com/dmitrijs2005/requestmanager/internal/logging"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const requestIDKey = "x-request-id"

// requestID returns the caller's x-request-id or a fresh one.
func requestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(requestIDKey); len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	return uuid.NewString()
}

// loggingInterceptor stores the request id in the call context for every log
// line below it and logs the outcome of the call.
func (s *GRPCServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	id := requestID(ctx)
	ctx = logging.WithRequestID(ctx, id)
	// fails outside a real transport stream; the id is still logged
	_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDKey, id))

	start := time.Now()
	resp, err := handler(ctx, req)

	s.logger.Debug(ctx, "grpc request",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return resp, err
}
