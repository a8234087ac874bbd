// Package repository persists page texts and analysis findings. Findings are
// append-only: saving the same (document, unit, model) again inserts a new
// row rather than updating the prior one.
package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/propdoc/analyzer/constants"
	"github.com/propdoc/analyzer/internal/common"
	"github.com/propdoc/analyzer/internal/entity"
)

// rawResponseLimit caps how much of the raw model response a finding row
// keeps. Lossy on purpose; the full text is not retained.
const rawResponseLimit = 500

// Store is the persistence surface for extraction and analysis output.
type Store interface {
	SavePageTexts(ctx context.Context, pages []entity.PageText) error
	SaveFinding(ctx context.Context, f entity.Finding) error
	ListFindings(ctx context.Context, fileName string, limit int) ([]entity.Finding, error)
	Close()
}

// row flattens a Finding into the persisted column shape. Canonical category
// columns default to detected=false, confidence=0 when the active schema did
// not produce them; the metadata column keeps the full mapping either way.
type row struct {
	canon    entity.Canonical
	property bool
	metadata []byte
	raw      string
}

func flatten(f entity.Finding) (row, error) {
	meta, err := json.Marshal(f.Categories)
	if err != nil {
		return row{}, fmt.Errorf("%w: encode metadata: %v", common.ErrPersistence, err)
	}
	return row{
		canon:    entity.Canonicalize(f.Categories),
		property: f.Categories[constants.KeyPropertyImage].Detected,
		metadata: meta,
		raw:      truncateRaw(f.RawResponse),
	}, nil
}

func truncateRaw(s string) string {
	if len(s) <= rawResponseLimit {
		return s
	}
	return s[:rawResponseLimit]
}
