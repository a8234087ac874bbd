package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/propdoc/analyzer/constants"
)

// CategoryFinding is the model's verdict for one category on one unit.
type CategoryFinding struct {
	Detected    bool    `json:"detected"`
	Confidence  float64 `json:"confidence"`  // 0..100
	Description string  `json:"description"` // brief observation
}

// PageText is the extractable text of one document page. Text may be empty if
// the page has none; page numbers are 1-based and contiguous per extraction.
type PageText struct {
	FileName   string
	PageNumber int
	Text       string
}

// ImageUnit is one embedded raster image extracted from a document page.
// Sequence restarts at 1 on every page.
type ImageUnit struct {
	FileName   string
	PageNumber int
	Sequence   int
	Data       []byte
	Format     string
}

// Name returns the storage key for this image, unique within its document.
func (u ImageUnit) Name() string {
	return constants.ImageName(u.FileName, u.PageNumber, u.Sequence, u.Format)
}

// Unit is the atomic thing a batch run analyzes: either a staged image
// (ImageRef set) or a page-text record (Text set). For page-text units the
// unit name falls back to the document's file name.
type Unit struct {
	FileName   string
	UnitName   string
	PageNumber int
	Text       string
	ImageRef   string
}

// Finding is one outcome of running the active category set against one unit
// with one model. Findings are append-only: re-analysis creates a new Finding,
// never mutates a prior one.
type Finding struct {
	ID          uuid.UUID
	FileName    string
	UnitName    string
	ModelName   string
	PageNumber  int
	Categories  map[string]CategoryFinding
	RawResponse string
	AnalyzedAt  time.Time
}

// Canonical flattens the four well-known categories out of a per-category
// mapping. Absent ids default to detected=false, confidence=0.
type Canonical struct {
	ForSaleSign     CategoryFinding
	SolarPanels     CategoryFinding
	HumanPresence   CategoryFinding
	PotentialDamage CategoryFinding
}

func Canonicalize(per map[string]CategoryFinding) Canonical {
	return Canonical{
		ForSaleSign:     per[constants.CategoryForSaleSign],
		SolarPanels:     per[constants.CategorySolarPanels],
		HumanPresence:   per[constants.CategoryHumanPresence],
		PotentialDamage: per[constants.CategoryPotentialDamage],
	}
}
