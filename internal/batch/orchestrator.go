// Package batch runs the active category set against many analysis units
// with bounded concurrency and per-unit failure isolation.
package batch

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/propdoc/analyzer/internal/category"
	"github.com/propdoc/analyzer/internal/common"
	"github.com/propdoc/analyzer/internal/entity"
	"github.com/propdoc/analyzer/internal/llm"
)

// UnitFailure records one unit whose inference call failed after fallback.
type UnitFailure struct {
	UnitName string `json:"unit_name"`
	Page     int    `json:"page"`
	Error    string `json:"error"`
}

// Report summarizes one batch run.
type Report struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Failures  []UnitFailure `json:"failures,omitempty"`
}

// ProgressFunc is invoked after every unit finishes, successful or not.
type ProgressFunc func(completed, total int)

type Orchestrator struct {
	completer   llm.Completer
	logger      *slog.Logger
	progress    ProgressFunc
	callTimeout time.Duration
}

func New(completer llm.Completer, callTimeout time.Duration, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if callTimeout <= 0 {
		callTimeout = 90 * time.Second
	}
	return &Orchestrator{completer: completer, logger: logger, callTimeout: callTimeout}
}

// OnProgress registers a callback fired once per finished unit.
func (o *Orchestrator) OnProgress(fn ProgressFunc) { o.progress = fn }

// Run analyzes every unit with at most batchSize calls in flight at once.
// Units are grouped in input order; each group completes before the next
// starts. A failing unit never cancels its siblings: it is recorded in the
// report and the run continues. Findings come back in no particular order.
func (o *Orchestrator) Run(ctx context.Context, units []entity.Unit, modelID string, cats []category.Category, batchSize int) ([]entity.Finding, *Report, error) {
	if batchSize < 1 {
		return nil, nil, common.NewAppError("INVALID_BATCH_SIZE", "batch size must be at least 1", common.ErrInvalidInput)
	}

	basePrompt := llm.BuildAnalysisPrompt(cats)
	schema := llm.BuildFindingsJSONSchema(cats)

	report := &Report{Total: len(units)}
	var (
		mu        sync.Mutex
		findings  []entity.Finding
		completed atomic.Int64
	)

	o.logger.Info("batch.run.start",
		"units", len(units), "model", modelID, "batch_size", batchSize, "categories", len(cats))
	start := time.Now()

	for groupStart := 0; groupStart < len(units); groupStart += batchSize {
		groupEnd := min(groupStart+batchSize, len(units))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(batchSize)

		for _, unit := range units[groupStart:groupEnd] {
			g.Go(func() error {
				finding, err := o.analyzeUnit(gctx, unit, modelID, basePrompt, schema, cats)

				mu.Lock()
				if err != nil {
					report.Failed++
					report.Failures = append(report.Failures, UnitFailure{
						UnitName: unit.UnitName,
						Page:     unit.PageNumber,
						Error:    err.Error(),
					})
				} else {
					report.Succeeded++
					findings = append(findings, finding)
				}
				mu.Unlock()

				done := int(completed.Add(1))
				if o.progress != nil {
					o.progress(done, len(units))
				}
				// Failures are per-unit; returning nil keeps siblings running.
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			o.logger.Warn("batch.run.canceled", "completed", completed.Load(), "total", len(units))
			return findings, report, err
		}
	}

	o.logger.Info("batch.run.done",
		"total", report.Total, "succeeded", report.Succeeded, "failed", report.Failed,
		"elapsed_ms", time.Since(start).Milliseconds())
	return findings, report, nil
}

func (o *Orchestrator) analyzeUnit(ctx context.Context, unit entity.Unit, modelID, basePrompt string, schema map[string]any, cats []category.Category) (entity.Finding, error) {
	prompt := basePrompt
	if unit.Text != "" {
		prompt = llm.WithContent(basePrompt, unit.Text)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	raw, err := o.completer.Complete(callCtx, modelID, prompt, unit.ImageRef)
	if err != nil {
		return entity.Finding{}, err
	}

	o.validateAdvisory(raw, schema, unit.UnitName)

	return entity.Finding{
		ID:          uuid.New(),
		FileName:    unit.FileName,
		UnitName:    unit.UnitName,
		ModelName:   modelID,
		PageNumber:  unit.PageNumber,
		Categories:  llm.ParseFindings(raw, cats),
		RawResponse: raw,
		AnalyzedAt:  time.Now().UTC(),
	}, nil
}

// validateAdvisory logs a warning for responses that stray from the expected
// shape. The tolerant parser still handles them; this only surfaces drift.
func (o *Orchestrator) validateAdvisory(raw string, schema map[string]any, unitName string) {
	doc, ok := llm.ExtractJSON(raw)
	if !ok {
		o.logger.Warn("batch.response.not_json", "unit", unitName, "raw_len", len(raw))
		return
	}
	var v any
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		o.logger.Warn("batch.response.malformed_json", "unit", unitName, "error", err)
		return
	}
	if err := llm.ValidateAgainstSchema(schema, v); err != nil {
		o.logger.Warn("batch.response.schema_mismatch", "unit", unitName, "error", err)
	}
}
