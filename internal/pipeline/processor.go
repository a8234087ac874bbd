// Package pipeline wires document ingestion and batch analysis end to end:
// extract, stage, analyze, persist.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/propdoc/analyzer/internal/batch"
	"github.com/propdoc/analyzer/internal/category"
	"github.com/propdoc/analyzer/internal/common"
	"github.com/propdoc/analyzer/internal/entity"
	"github.com/propdoc/analyzer/internal/repository"
	"github.com/propdoc/analyzer/internal/stage"
)

// ExtractFunc parses raw document bytes. Injectable so tests can run the
// pipeline without real PDF fixtures.
type ExtractFunc func(fileName string, data []byte) ([]entity.PageText, []entity.ImageUnit, error)

type Processor struct {
	logger       *slog.Logger
	extract      ExtractFunc
	stage        stage.Stage
	store        repository.Store
	orch         *batch.Orchestrator
	signedURLTTL time.Duration
}

func NewProcessor(extract ExtractFunc, st stage.Stage, store repository.Store, orch *batch.Orchestrator, signedURLTTL time.Duration, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if signedURLTTL <= 0 {
		signedURLTTL = 15 * time.Minute
	}
	return &Processor{
		logger:       logger,
		extract:      extract,
		stage:        st,
		store:        store,
		orch:         orch,
		signedURLTTL: signedURLTTL,
	}
}

// IngestResult summarizes one document ingestion.
type IngestResult struct {
	FileName string `json:"file_name"`
	Pages    int    `json:"pages"`
	Images   int    `json:"images"`
}

// Ingest stages the raw document, extracts page texts and embedded images,
// persists the texts, and stages every image for later analysis. Re-ingesting
// the same file name replaces nothing in the stage (writes are
// create-if-absent) but appends fresh page-text rows.
func (p *Processor) Ingest(ctx context.Context, fileName string, data []byte) (*IngestResult, error) {
	reqID := common.RequestIDFromContext(ctx)
	p.logger.Info("pipeline.ingest.start", "req_id", reqID, "file", fileName, "bytes", len(data))

	if err := p.stage.Put(ctx, fileName, data, "application/pdf"); err != nil {
		return nil, common.WrapError(err, "stage document")
	}

	pages, images, err := p.extract(fileName, data)
	if err != nil {
		return nil, err
	}

	if err := p.store.SavePageTexts(ctx, pages); err != nil {
		return nil, err
	}

	for _, img := range images {
		if err := p.stage.Put(ctx, img.Name(), img.Data, "image/"+img.Format); err != nil {
			return nil, common.WrapError(err, fmt.Sprintf("stage image %s", img.Name()))
		}
	}

	p.logger.Info("pipeline.ingest.ok", "req_id", reqID, "file", fileName, "pages", len(pages), "images", len(images))
	return &IngestResult{FileName: fileName, Pages: len(pages), Images: len(images)}, nil
}

// AnalyzeOptions selects what a batch run covers.
type AnalyzeOptions struct {
	ModelID         string
	BatchSize       int
	IncludePageText bool
}

// Analyze re-extracts the staged document, builds one analysis unit per
// embedded image (plus one per text page when requested), runs the batch
// orchestrator, and persists every finding. Findings are returned even when
// some persistence writes fail; the persist error travels alongside so
// callers can retry the writes independently.
func (p *Processor) Analyze(ctx context.Context, fileName string, sc *category.Schema, opts AnalyzeOptions) ([]entity.Finding, *batch.Report, error) {
	reqID := common.RequestIDFromContext(ctx)

	data, err := p.stage.Get(ctx, fileName)
	if err != nil {
		return nil, nil, common.NewAppError("DOCUMENT_NOT_STAGED", fileName, common.ErrNotFound)
	}

	pages, images, err := p.extract(fileName, data)
	if err != nil {
		return nil, nil, err
	}

	units, err := p.buildUnits(ctx, pages, images, opts.IncludePageText)
	if err != nil {
		return nil, nil, err
	}
	if len(units) == 0 {
		return nil, &batch.Report{}, nil
	}

	p.logger.Info("pipeline.analyze.start",
		"req_id", reqID, "file", fileName, "units", len(units),
		"model", opts.ModelID, "batch_size", opts.BatchSize)

	findings, report, err := p.orch.Run(ctx, units, opts.ModelID, sc.List(), opts.BatchSize)
	if err != nil {
		return findings, report, err
	}

	var persistErrs []error
	for _, f := range findings {
		if err := p.store.SaveFinding(ctx, f); err != nil {
			p.logger.Error("pipeline.analyze.persist_error", "req_id", reqID, "unit", f.UnitName, "error", err)
			persistErrs = append(persistErrs, err)
		}
	}

	p.logger.Info("pipeline.analyze.ok",
		"req_id", reqID, "file", fileName,
		"succeeded", report.Succeeded, "failed", report.Failed,
		"persist_errors", len(persistErrs))
	return findings, report, errors.Join(persistErrs...)
}

// buildUnits assembles the batch input: one unit per staged image, referenced
// by signed URL, and optionally one text unit per non-empty page. Page-text
// units carry the document's file name as their unit name.
func (p *Processor) buildUnits(ctx context.Context, pages []entity.PageText, images []entity.ImageUnit, includeText bool) ([]entity.Unit, error) {
	units := make([]entity.Unit, 0, len(images)+len(pages))
	for _, img := range images {
		ref, err := p.stage.SignedURL(ctx, img.Name(), p.signedURLTTL)
		if err != nil {
			return nil, common.WrapError(err, fmt.Sprintf("sign %s", img.Name()))
		}
		units = append(units, entity.Unit{
			FileName:   img.FileName,
			UnitName:   img.Name(),
			PageNumber: img.PageNumber,
			ImageRef:   ref,
		})
	}
	if includeText {
		for _, pg := range pages {
			if strings.TrimSpace(pg.Text) == "" {
				continue
			}
			units = append(units, entity.Unit{
				FileName:   pg.FileName,
				UnitName:   pg.FileName,
				PageNumber: pg.PageNumber,
				Text:       pg.Text,
			})
		}
	}
	return units, nil
}
