package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/propdoc/analyzer/internal/batch"
	"github.com/propdoc/analyzer/internal/category"
	"github.com/propdoc/analyzer/internal/common"
	"github.com/propdoc/analyzer/internal/entity"
	"github.com/propdoc/analyzer/internal/repository"
	"github.com/propdoc/analyzer/internal/stage"
)

// fakeExtract stands in for the PDF parser: two pages, one image on page 2.
func fakeExtract(fileName string, _ []byte) ([]entity.PageText, []entity.ImageUnit, error) {
	return []entity.PageText{
			{FileName: fileName, PageNumber: 1, Text: "For sale: charming bungalow"},
			{FileName: fileName, PageNumber: 2, Text: ""},
		}, []entity.ImageUnit{
			{FileName: fileName, PageNumber: 2, Sequence: 1, Data: []byte{0xff, 0xd8}, Format: "jpg"},
		}, nil
}

type fakeCompleter struct {
	lastImageRef string
	lastPrompt   string
}

func (f *fakeCompleter) Complete(_ context.Context, _, prompt, imageRef string) (string, error) {
	f.lastPrompt = prompt
	f.lastImageRef = imageRef
	return `{"is_property_image": {"detected": true, "confidence": 90, "description": ""},
		"for_sale_sign": {"detected": true, "confidence": 85, "description": "sign visible"}}`, nil
}

func newTestProcessor(t *testing.T, completer *fakeCompleter) (*Processor, repository.Store) {
	t.Helper()
	store, err := repository.NewSQLiteStore(context.Background(), ":memory:", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(store.Close)

	st, err := stage.NewFSStage(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}

	orch := batch.New(completer, time.Minute, nil)
	return NewProcessor(fakeExtract, st, store, orch, time.Minute, nil), store
}

func TestIngestStagesAndPersists(t *testing.T) {
	proc, _ := newTestProcessor(t, &fakeCompleter{})
	ctx := context.Background()

	res, err := proc.Ingest(ctx, "listing.pdf", []byte("%PDF-fake"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Pages != 2 || res.Images != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestAnalyzeImagesOnly(t *testing.T) {
	fc := &fakeCompleter{}
	proc, store := newTestProcessor(t, fc)
	ctx := context.Background()

	if _, err := proc.Ingest(ctx, "listing.pdf", []byte("%PDF-fake")); err != nil {
		t.Fatal(err)
	}

	findings, report, err := proc.Analyze(ctx, "listing.pdf", category.NewSchema(), AnalyzeOptions{
		ModelID:   "gpt-4o",
		BatchSize: 2,
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if report.Total != 1 || report.Succeeded != 1 {
		t.Fatalf("report = %+v", report)
	}
	if len(findings) != 1 {
		t.Fatalf("got %d findings", len(findings))
	}
	if findings[0].UnitName != "listing_page2_img1.jpg" {
		t.Errorf("unit name = %q", findings[0].UnitName)
	}
	if !strings.HasPrefix(fc.lastImageRef, "file://") {
		t.Errorf("image ref = %q, want signed stage url", fc.lastImageRef)
	}

	persisted, err := store.ListFindings(ctx, "listing.pdf", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(persisted) != 1 {
		t.Fatalf("persisted %d findings, want 1", len(persisted))
	}
}

func TestAnalyzeIncludesPageText(t *testing.T) {
	fc := &fakeCompleter{}
	proc, _ := newTestProcessor(t, fc)
	ctx := context.Background()

	if _, err := proc.Ingest(ctx, "listing.pdf", []byte("%PDF-fake")); err != nil {
		t.Fatal(err)
	}

	findings, report, err := proc.Analyze(ctx, "listing.pdf", category.NewSchema(), AnalyzeOptions{
		ModelID:         "gpt-4o",
		BatchSize:       2,
		IncludePageText: true,
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	// One image plus one non-empty text page; the blank page is skipped.
	if report.Total != 2 {
		t.Fatalf("report = %+v", report)
	}

	var textUnit *entity.Finding
	for i := range findings {
		if findings[i].UnitName == "listing.pdf" {
			textUnit = &findings[i]
		}
	}
	if textUnit == nil {
		t.Fatal("page-text unit missing; its unit name should be the document file name")
	}
	if textUnit.PageNumber != 1 {
		t.Errorf("text unit page = %d, want 1", textUnit.PageNumber)
	}
}

func TestAnalyzeUnstagedDocument(t *testing.T) {
	proc, _ := newTestProcessor(t, &fakeCompleter{})

	_, _, err := proc.Analyze(context.Background(), "never-uploaded.pdf", category.NewSchema(), AnalyzeOptions{
		ModelID:   "gpt-4o",
		BatchSize: 1,
	})
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestIngestExtractFailurePropagates(t *testing.T) {
	store, err := repository.NewSQLiteStore(context.Background(), ":memory:", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(store.Close)
	st, err := stage.NewFSStage(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}

	failing := func(string, []byte) ([]entity.PageText, []entity.ImageUnit, error) {
		return nil, nil, common.ErrParse
	}
	proc := NewProcessor(failing, st, store, batch.New(&fakeCompleter{}, time.Minute, nil), time.Minute, nil)

	if _, err := proc.Ingest(context.Background(), "bad.pdf", []byte("junk")); !errors.Is(err, common.ErrParse) {
		t.Fatalf("err = %v, want ErrParse", err)
	}
}
