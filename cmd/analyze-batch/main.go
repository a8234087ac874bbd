// Command analyze-batch ingests one PDF, runs the default category set
// against every extracted unit, and writes an XLSX summary.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/propdoc/analyzer/constants"
	"github.com/propdoc/analyzer/internal/batch"
	"github.com/propdoc/analyzer/internal/category"
	"github.com/propdoc/analyzer/internal/common"
	"github.com/propdoc/analyzer/internal/export"
	"github.com/propdoc/analyzer/internal/extract"
	"github.com/propdoc/analyzer/internal/llm/openai"
	"github.com/propdoc/analyzer/internal/pipeline"
	"github.com/propdoc/analyzer/internal/repository"
	"github.com/propdoc/analyzer/internal/stage"
)

// printError prints to stderr, falling back to stdout if stderr fails.
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		file      = flag.String("file", "", "PDF to analyze (required)")
		model     = flag.String("model", "", "model display name or id (defaults to LLM_MODEL)")
		batchSize = flag.Int("batch", 0, "concurrent calls per group (defaults to BATCH_SIZE)")
		withText  = flag.Bool("text", false, "also analyze page text, not just images")
		out       = flag.String("out", "", "output XLSX path (defaults next to the input)")
		inmem     = flag.Bool("inmem", false, "use an in-memory SQLite database")
	)
	flag.Parse()

	if *file == "" {
		printError("Error: --file is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = strings.TrimSuffix(*file, filepath.Ext(*file)) + "_findings.xlsx"
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	modelID := cfg.LLM.Model
	if *model != "" {
		resolved, ok := constants.ResolveModel(*model)
		if !ok {
			printError("Error: unknown model %q\n", *model)
			os.Exit(1)
		}
		modelID = resolved
	}
	if *batchSize == 0 {
		*batchSize = cfg.Batch.Size
	}

	ctx := context.Background()

	dbPath := cfg.Database.SQLitePath
	if *inmem {
		dbPath = ":memory:"
	}
	store, err := repository.NewSQLiteStore(ctx, dbPath, logger)
	if err != nil {
		printError("Error: open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	st, err := stage.NewFSStage(cfg.Stage.LocalDir, logger)
	if err != nil {
		printError("Error: init stage: %v\n", err)
		os.Exit(1)
	}

	completer := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       modelID,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	orch := batch.New(completer, cfg.Batch.CallTimeout, logger)
	orch.OnProgress(func(completed, total int) {
		fmt.Printf("\ranalyzed %d/%d units", completed, total)
	})

	extractor := extract.New(logger)
	proc := pipeline.NewProcessor(extractor.Extract, st, store, orch, cfg.Stage.SignedURLTTL, logger)

	data, err := os.ReadFile(*file)
	if err != nil {
		printError("Error: read %s: %v\n", *file, err)
		os.Exit(1)
	}
	fileName := filepath.Base(*file)

	ingest, err := proc.Ingest(ctx, fileName, data)
	if err != nil {
		printError("Error: ingest: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("ingested %s: %d pages, %d images\n", fileName, ingest.Pages, ingest.Images)

	_, report, err := proc.Analyze(ctx, fileName, category.NewSchema(), pipeline.AnalyzeOptions{
		ModelID:         modelID,
		BatchSize:       *batchSize,
		IncludePageText: *withText,
	})
	fmt.Println()
	if err != nil && report == nil {
		printError("Error: analyze: %v\n", err)
		os.Exit(1)
	}
	if err != nil {
		printError("Warning: some findings were not persisted: %v\n", err)
	}
	fmt.Printf("done: %d succeeded, %d failed\n", report.Succeeded, report.Failed)
	for _, f := range report.Failures {
		printError("  failed: %s (page %d): %s\n", f.UnitName, f.Page, f.Error)
	}

	xlsx, err := export.NewService(store, logger).ExportFindingsXLSX(ctx, fileName, 0)
	if err != nil {
		printError("Error: export: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsx, 0o644); err != nil {
		printError("Error: write %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", *out)
}
