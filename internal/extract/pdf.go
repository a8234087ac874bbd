// Package extract parses PDF documents into ordered page-text and
// embedded-image records using pdfcpu.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/propdoc/analyzer/constants"
	"github.com/propdoc/analyzer/internal/common"
	"github.com/propdoc/analyzer/internal/entity"
)

// Extractor turns raw document bytes into page texts and image units.
type Extractor struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Extract parses the document and returns one PageText per page (text may be
// empty) and every decodable embedded raster image, both in document order.
// A malformed embedded image is skipped, never fatal; a document that cannot
// be parsed at all fails the whole call with common.ErrParse.
func (e *Extractor) Extract(fileName string, data []byte) ([]entity.PageText, []entity.ImageUnit, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", common.ErrParse, err)
	}

	e.logger.Info("extract.start", "file", fileName, "pages", ctx.PageCount)

	pages := make([]entity.PageText, 0, ctx.PageCount)
	var images []entity.ImageUnit
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		pages = append(pages, entity.PageText{
			FileName:   fileName,
			PageNumber: pageNr,
			Text:       pageText(ctx, pageNr),
		})
		images = append(images, e.pageImages(ctx, fileName, pageNr)...)
	}

	e.logger.Info("extract.done", "file", fileName, "pages", len(pages), "images", len(images))
	return pages, images, nil
}

// pageImages enumerates the image XObjects of one page. The per-page sequence
// counter starts at 1 and only advances for images that decode.
func (e *Extractor) pageImages(ctx *model.Context, fileName string, pageNr int) []entity.ImageUnit {
	found, err := pdfcpu.ExtractPageImages(ctx, pageNr, false)
	if err != nil {
		e.logger.Warn("extract.page_images.failed", "file", fileName, "page", pageNr, "error", err)
		return nil
	}

	// Map iteration order is random; sort by object number for a stable
	// sequence across extraction passes.
	objNrs := make([]int, 0, len(found))
	for objNr := range found {
		objNrs = append(objNrs, objNr)
	}
	sort.Ints(objNrs)

	var units []entity.ImageUnit
	seq := 1
	for _, objNr := range objNrs {
		img := found[objNr]
		raw, err := io.ReadAll(img)
		if err != nil || len(raw) == 0 {
			e.logger.Warn("extract.image.skipped",
				"file", fileName, "page", pageNr, "obj", objNr,
				"error", common.WrapError(err, common.ErrImageDecode.Error()))
			continue
		}
		units = append(units, entity.ImageUnit{
			FileName:   fileName,
			PageNumber: pageNr,
			Sequence:   seq,
			Data:       raw,
			Format:     constants.NormalizeImageFormat(img.FileType),
		})
		seq++
	}
	return units
}
