package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/review-orchestrator/constants"
	"github.com/joseph-ayodele/review-orchestrator/internal/agent"
	"github.com/joseph-ayodele/review-orchestrator/internal/checklist"
	"github.com/joseph-ayodele/review-orchestrator/internal/common"
	"github.com/joseph-ayodele/review-orchestrator/internal/entity"
	"github.com/joseph-ayodele/review-orchestrator/internal/export"
	"github.com/joseph-ayodele/review-orchestrator/internal/ingest"
	"github.com/joseph-ayodele/review-orchestrator/internal/llm/openai"
	repo "github.com/joseph-ayodele/review-orchestrator/internal/repository"
	"github.com/joseph-ayodele/review-orchestrator/internal/server"
	"github.com/joseph-ayodele/review-orchestrator/internal/storage"
	"github.com/joseph-ayodele/review-orchestrator/internal/tools"
	"github.com/joseph-ayodele/review-orchestrator/internal/workflow"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		scratch       = flag.Bool("scratch", false, "use a throwaway SQLite database")
		dir           = flag.String("dir", "", "directory of documents to review (required)")
		checklistPath = flag.String("checklist", "", "text file with the checklist source, pages separated by form feeds (required)")
		checkListID   = flag.String("checklist-id", "", "reuse a stored checklist instead of extracting one")
		out           = flag.String("out", "", "output XLSX file path (optional, defaults to parent directory)")
		promptPath    = flag.String("prompt", "", "prompt template file for next-action generation (optional)")
		language      = flag.String("language", "", "language for agent explanations (optional)")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *checklistPath == "" && *checkListID == "" {
		printError("Error: --checklist or --checklist-id is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(filepath.Clean(*dir)), "review.xlsx")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()
	cfg := common.LoadConfig()
	if cfg.Agent.RuntimeURL == "" {
		printError("Error: AGENT_RUNTIME_URL is required\n")
		os.Exit(1)
	}

	db, err := repo.InitDatabase(ctx, cfg.Database, *scratch, logger)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Cleanup()

	docs, err := storage.FromConfig(ctx, cfg.Storage)
	if err != nil {
		logger.Error("failed to open object store", "error", err)
		os.Exit(1)
	}

	cl, err := loadChecklist(ctx, cfg, db.Store, *checkListID, *checklistPath, logger)
	if err != nil {
		logger.Error("failed to prepare checklist", "error", err)
		os.Exit(1)
	}

	results, stats, err := ingest.NewFSIngestor(docs, "", logger).IngestDirectory(ctx, *dir, true)
	if err != nil {
		logger.Error("failed to ingest documents", "dir", *dir, "error", err)
		os.Exit(1)
	}
	logger.Info("documents ingested",
		"matched", stats.Matched, "succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated, "failed", stats.Failed)
	documents := ingest.Documents(results)
	if len(documents) == 0 {
		printError("Error: no supported documents found in %s\n", *dir)
		os.Exit(1)
	}

	job := &entity.ReviewJob{
		CheckListID: cl.ID,
		Name:        cl.Name + " (batch)",
		Status:      constants.JobStatusPending,
		Documents:   documents,
	}
	if err := db.Store.CreateReviewJob(ctx, job); err != nil {
		logger.Error("failed to create review job", "error", err)
		os.Exit(1)
	}

	registry, err := tools.LoadRegistry(cfg.Tools.MCPRegistryFile)
	if err != nil {
		logger.Error("failed to load mcp registry", "error", err)
		os.Exit(1)
	}
	gateway := agent.NewGateway(
		agent.NewHTTPRuntime(cfg.Agent.RuntimeURL, &http.Client{}, nil),
		agent.WithTimeout(cfg.Agent.Timeout),
		agent.WithRateLimit(cfg.Agent.RateLimit, cfg.Agent.RateBurst),
		agent.WithLogger(logger),
	)
	executor := workflow.NewExecutor(db.Store, docs, gateway, workflow.Config{
		FanOutLimit:          cfg.Workflow.FanOutLimit,
		RetryMaxAttempts:     cfg.Workflow.RetryMaxAttempts,
		RetryInitialInterval: cfg.Workflow.RetryInitialInterval,
		RetryMaxInterval:     cfg.Workflow.RetryMaxInterval,
		DefaultMCPServers:    registry.Servers,
	}, logger)

	req := entity.ReviewRequest{JobID: job.ID, LanguageName: *language}
	if *promptPath != "" {
		prompt, err := os.ReadFile(*promptPath)
		if err != nil {
			logger.Error("failed to read prompt template", "error", err)
			os.Exit(1)
		}
		req.ShouldGenerate = true
		req.PromptTemplate = &entity.PromptTemplate{Prompt: string(prompt)}
	}

	logger.Info("starting review", "job_id", job.ID, "documents", len(documents), "check_list_id", cl.ID)
	summary, err := executor.Execute(ctx, req)
	if err != nil && !workflow.Settled(err) {
		logger.Error("review did not finish", "job_id", job.ID, "error", err)
		os.Exit(1)
	}

	logger.Info("exporting to XLSX", "output", *out)
	xlsx, err := export.NewService(db.Store, logger).ExportReviewResultsXLSX(ctx, job.ID)
	if err != nil {
		logger.Error("failed to export review results", "error", err)
		os.Exit(1)
	}
	//nolint:gosec // G306: report is meant to be shared
	if err := os.WriteFile(*out, xlsx, 0644); err != nil {
		logger.Error("failed to write output file", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Review complete!\n")
	fmt.Printf("- Job: %s (%s)\n", job.ID, summary.Status)
	fmt.Printf("- Documents: %d\n", len(documents))
	fmt.Printf("- Items evaluated: %d (reused %d)\n", summary.Evaluated, summary.Reused)
	fmt.Printf("- Pass/Fail/Warning: %d/%d/%d (errors %d)\n",
		summary.Counts.Pass, summary.Counts.Fail, summary.Counts.Warning, summary.Counts.Failed)
	fmt.Printf("- Output: %s\n", *out)
}

func loadChecklist(ctx context.Context, cfg *common.Config, store *repo.Store, id, path string, logger *slog.Logger) (*entity.CheckList, error) {
	if id != "" {
		clID, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid --checklist-id: %w", err)
		}
		return store.GetCheckList(ctx, clID)
	}
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required to extract a checklist")
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pages := server.SplitPages(string(text))
	if len(pages) == 0 {
		return nil, fmt.Errorf("%s has no text", path)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	cl := &entity.CheckList{Name: name}
	if err := store.CreateCheckList(ctx, cl); err != nil {
		return nil, err
	}
	artifacts, err := storage.NewFileStore(cfg.Storage.LocalDir)
	if err != nil {
		return nil, err
	}
	generator := openai.NewClient(openai.Config{
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, nil, logger)
	res, err := checklist.NewExtractor(generator, artifacts, store, checklist.WithLogger(logger)).Extract(ctx, checklist.ExtractRequest{
		CheckListID:  cl.ID,
		DocumentName: filepath.Base(path),
		Pages:        pages,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("checklist extracted", "check_list_id", cl.ID, "items", len(res.Items), "input_tokens", res.Usage.InputTokens)
	return cl, nil
}
