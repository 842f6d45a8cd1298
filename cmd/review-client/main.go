package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/joseph-ayodele/review-orchestrator/internal/server"
)

const usage = `usage:
  review-client submit <check_list_id> <document_key>...
  review-client get <job_id>
  review-client override <result_id> [comment]
  review-client extract <checklist_name> <text_key>
  review-client export <job_id> [out.xlsx]
  review-client dead-letters`

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		logger.Error(usage)
		os.Exit(2)
	}
	addr := getenv("REVIEW_ADDR", "localhost:8080")

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		logger.Error("dial", "addr", addr, "error", err)
		os.Exit(1)
	}
	defer func() { _ = conn.Close() }()
	client := server.NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cmd, args := os.Args[1], os.Args[2:]
	var out any
	switch cmd {
	case "submit":
		if len(args) < 2 {
			logger.Error(usage)
			os.Exit(2)
		}
		req := server.SubmitReviewRequest{CheckListID: mustUUID(logger, args[0])}
		for _, key := range args[1:] {
			req.Documents = append(req.Documents, server.DocumentInput{Path: key})
		}
		var resp server.SubmitReviewResponse
		out = &resp
		err = client.Call(ctx, server.MethodSubmitReview, req, &resp)
	case "get":
		if len(args) != 1 {
			logger.Error(usage)
			os.Exit(2)
		}
		var resp server.GetReviewJobResponse
		out = &resp
		err = client.Call(ctx, server.MethodGetReviewJob, server.GetReviewJobRequest{JobID: mustUUID(logger, args[0])}, &resp)
	case "override":
		if len(args) < 1 {
			logger.Error(usage)
			os.Exit(2)
		}
		req := server.OverrideResultRequest{ResultID: mustUUID(logger, args[0])}
		if len(args) > 1 {
			req.Comment = &args[1]
		}
		var resp server.OverrideResultResponse
		out = &resp
		err = client.Call(ctx, server.MethodOverrideResult, req, &resp)
	case "extract":
		if len(args) != 2 {
			logger.Error(usage)
			os.Exit(2)
		}
		var resp server.ExtractChecklistResponse
		out = &resp
		err = client.Call(ctx, server.MethodExtractChecklist, server.ExtractChecklistRequest{Name: args[0], TextPath: args[1]}, &resp)
	case "export":
		if len(args) < 1 {
			logger.Error(usage)
			os.Exit(2)
		}
		var resp server.ExportReviewResultsResponse
		if err = client.Call(ctx, server.MethodExportReviewResults, server.ExportReviewResultsRequest{JobID: mustUUID(logger, args[0])}, &resp); err == nil {
			path := resp.Filename
			if len(args) > 1 {
				path = args[1]
			}
			//nolint:gosec // G306: report is meant to be shared
			if err = os.WriteFile(path, resp.Xlsx, 0644); err == nil {
				logger.Info("export.written", "path", path, "bytes", len(resp.Xlsx))
				return
			}
		}
	case "dead-letters":
		var resp server.ListDeadLettersResponse
		out = &resp
		err = client.Call(ctx, server.MethodListDeadLetters, struct{}{}, &resp)
	default:
		logger.Error(usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("request failed", "command", cmd, "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Error("encode output", "error", err)
		os.Exit(1)
	}
}

func mustUUID(logger *slog.Logger, s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		logger.Error("invalid id", "arg", s, "error", err)
		os.Exit(2)
	}
	return id
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
