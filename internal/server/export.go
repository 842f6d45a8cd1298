package server

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/review-orchestrator/internal/common"
)

type ExportReviewResultsRequest struct {
	JobID uuid.UUID `json:"jobId"`
}

// ExportReviewResultsResponse carries the workbook; Xlsx is base64 on the wire.
type ExportReviewResultsResponse struct {
	Filename string `json:"filename"`
	Xlsx     []byte `json:"xlsx"`
}

func (s *ReviewServer) ExportReviewResults(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ExportReviewResultsRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := common.NewValidator().Field("jobId", req.JobID, common.UUID).Err(); err != nil {
		return nil, err
	}

	xlsx, err := s.exporter.ExportReviewResultsXLSX(ctx, req.JobID)
	if err != nil {
		s.logger.Error("export.xlsx.failed", "req_id", common.RequestIDFromContext(ctx), "job_id", req.JobID, "err", err)
		return nil, err
	}
	return encode(ExportReviewResultsResponse{
		Filename: fmt.Sprintf("review-%s.xlsx", req.JobID),
		Xlsx:     xlsx,
	})
}
