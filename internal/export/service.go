// Package export produces XLSX workbooks from persisted findings.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/propdoc/analyzer/internal/entity"
	"github.com/propdoc/analyzer/internal/repository"
)

// Service is a tiny façade over the result store that produces XLSX bytes.
type Service struct {
	store  repository.Store
	logger *slog.Logger
}

func NewService(store repository.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// ExportFindingsXLSX returns an XLSX workbook for a document's findings.
// An empty fileName exports across all documents (bounded by limit).
func (s *Service) ExportFindingsXLSX(ctx context.Context, fileName string, limit int) ([]byte, error) {
	start := time.Now()

	findings, err := s.store.ListFindings(ctx, fileName, limit)
	if err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Findings"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"File",
		"Unit",
		"Page",
		"Model",
		"For-Sale Sign",
		"Solar Panels",
		"Human Presence",
		"Potential Damage",
		"Damage Description",
		"Analyzed At",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, fd := range findings {
		canon := entity.Canonicalize(fd.Categories)

		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, fd.FileName)
		write(2, fd.UnitName)
		write(3, fd.PageNumber)
		write(4, fd.ModelName)
		write(5, verdict(canon.ForSaleSign))
		write(6, verdict(canon.SolarPanels))
		write(7, verdict(canon.HumanPresence))
		write(8, verdict(canon.PotentialDamage))
		write(9, truncate(canon.PotentialDamage.Description, 140))
		if !fd.AnalyzedAt.IsZero() {
			write(10, fd.AnalyzedAt.Format("2006-01-02 15:04:05"))
		}

		row++
	}

	// Widen a few columns
	_ = f.SetColWidth(sheet, "A", "B", 32)
	_ = f.SetColWidth(sheet, "C", "C", 6)
	_ = f.SetColWidth(sheet, "D", "D", 18)
	_ = f.SetColWidth(sheet, "E", "H", 16)
	_ = f.SetColWidth(sheet, "I", "I", 48)
	_ = f.SetColWidth(sheet, "J", "J", 20)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"file", fileName,
		"rows", len(findings),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func verdict(c entity.CategoryFinding) string {
	if !c.Detected {
		return "NO"
	}
	return fmt.Sprintf("YES (%.0f%%)", c.Confidence)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
