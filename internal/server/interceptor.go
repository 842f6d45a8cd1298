package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/review-orchestrator/internal/common"
)

// UnaryInterceptor tags the request id, logs each call and converts service
// errors into gRPC statuses.
func UnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		reqID := incomingRequestID(ctx)
		ctx = common.WithRequestID(ctx, reqID)
		resp, err := handler(ctx, req)
		if err != nil {
			err = common.ToStatus(err)
			logger.Warn("grpc.request.failed",
				"method", info.FullMethod,
				"req_id", reqID,
				"code", status.Code(err).String(),
				"error", err,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return nil, err
		}
		logger.Info("grpc.request.ok",
			"method", info.FullMethod,
			"req_id", reqID,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return resp, nil
	}
}

// incomingRequestID returns the caller's x-request-id, or a fresh id.
func incomingRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get("x-request-id"); len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	return uuid.NewString()
}
