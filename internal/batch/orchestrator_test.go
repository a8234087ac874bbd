package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/propdoc/analyzer/internal/category"
	"github.com/propdoc/analyzer/internal/common"
	"github.com/propdoc/analyzer/internal/entity"
)

// fakeCompleter tracks concurrent in-flight calls and fails selected units.
type fakeCompleter struct {
	mu       sync.Mutex
	inFlight int
	maxSeen  int
	failFor  map[string]bool
	delay    time.Duration
}

func (f *fakeCompleter) Complete(_ context.Context, _, prompt, imageRef string) (string, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	fail := f.failFor[imageRef]
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if fail {
		return "", errors.New("simulated inference failure")
	}
	return `{"is_property_image": {"detected": true, "confidence": 90, "description": ""},
		"for_sale_sign": {"detected": true, "confidence": 80, "description": "sign"},
		"solar_panels": {"detected": false, "confidence": 0, "description": ""},
		"human_presence": {"detected": false, "confidence": 0, "description": ""},
		"potential_damage": {"detected": false, "confidence": 0, "description": ""}}`, nil
}

func makeUnits(n int) []entity.Unit {
	units := make([]entity.Unit, n)
	for i := range units {
		units[i] = entity.Unit{
			FileName:   "doc.pdf",
			UnitName:   fmt.Sprintf("doc_page1_img%d.png", i+1),
			PageNumber: 1,
			ImageRef:   fmt.Sprintf("file:///stage/img%d", i+1),
		}
	}
	return units
}

func TestRunBoundedConcurrency(t *testing.T) {
	fc := &fakeCompleter{delay: 10 * time.Millisecond}
	o := New(fc, time.Minute, nil)
	cats := category.NewSchema().List()

	const n, b = 10, 3
	findings, report, err := o.Run(context.Background(), makeUnits(n), "gpt-4o", cats, b)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Total != n || report.Succeeded != n || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}
	if len(findings) != n {
		t.Fatalf("got %d findings, want %d", len(findings), n)
	}
	if fc.maxSeen > b {
		t.Errorf("saw %d concurrent calls, batch size is %d", fc.maxSeen, b)
	}
}

func TestRunIsolatesSingleFailure(t *testing.T) {
	units := makeUnits(4)
	fc := &fakeCompleter{failFor: map[string]bool{units[1].ImageRef: true}}
	o := New(fc, time.Minute, nil)

	findings, report, err := o.Run(context.Background(), units, "gpt-4o", category.NewSchema().List(), 4)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Succeeded != 3 || report.Failed != 1 {
		t.Fatalf("report = %+v", report)
	}
	if len(findings) != 3 {
		t.Fatalf("got %d findings, want 3", len(findings))
	}
	if len(report.Failures) != 1 || report.Failures[0].UnitName != units[1].UnitName {
		t.Fatalf("failures = %+v", report.Failures)
	}
	for _, f := range findings {
		if f.UnitName == units[1].UnitName {
			t.Error("failed unit appeared in successful findings")
		}
	}
}

func TestRunProgressMonotonic(t *testing.T) {
	fc := &fakeCompleter{}
	o := New(fc, time.Minute, nil)

	var mu sync.Mutex
	var seen []int
	o.OnProgress(func(completed, total int) {
		mu.Lock()
		seen = append(seen, completed)
		mu.Unlock()
		if total != 7 {
			t.Errorf("total = %d, want 7", total)
		}
	})

	if _, _, err := o.Run(context.Background(), makeUnits(7), "gpt-4o", category.NewSchema().List(), 2); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 7 {
		t.Fatalf("progress fired %d times, want 7", len(seen))
	}
	for i, c := range seen {
		if c != i+1 {
			t.Fatalf("progress sequence %v is not monotonic", seen)
		}
	}
}

func TestRunFindingsCarryParsedCategories(t *testing.T) {
	fc := &fakeCompleter{}
	o := New(fc, time.Minute, nil)

	findings, _, err := o.Run(context.Background(), makeUnits(1), "gpt-4o", category.NewSchema().List(), 1)
	if err != nil {
		t.Fatal(err)
	}
	f := findings[0]
	if !f.Categories["for_sale_sign"].Detected || f.Categories["for_sale_sign"].Confidence != 80 {
		t.Errorf("for_sale_sign = %+v", f.Categories["for_sale_sign"])
	}
	if f.ModelName != "gpt-4o" || f.FileName != "doc.pdf" {
		t.Errorf("finding identity = %+v", f)
	}
	if !strings.Contains(f.RawResponse, "is_property_image") {
		t.Error("raw response not preserved")
	}
	if f.ID == uuid.Nil {
		t.Error("finding has zero id")
	}
}

func TestRunRejectsBadBatchSize(t *testing.T) {
	o := New(&fakeCompleter{}, time.Minute, nil)
	_, _, err := o.Run(context.Background(), makeUnits(1), "gpt-4o", category.NewSchema().List(), 0)
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestRunStopsBetweenGroupsOnCancel(t *testing.T) {
	fc := &fakeCompleter{delay: 20 * time.Millisecond}
	o := New(fc, time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	var calls atomic.Int64
	o.OnProgress(func(completed, total int) {
		calls.Add(1)
		once.Do(cancel)
	})

	_, report, err := o.Run(ctx, makeUnits(6), "gpt-4o", category.NewSchema().List(), 2)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	// The in-flight group drains; later groups never start.
	if report.Total != 6 {
		t.Errorf("report total = %d", report.Total)
	}
	if got := calls.Load(); got > 2 {
		t.Errorf("%d units ran after cancellation, want at most the first group", got)
	}
}
