package consensus

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/hyperjump/yomitori/internal/models"
)

func result(source string, conf float64, data map[string]interface{}) models.ExtractionResult {
	return models.ExtractionResult{Source: source, Confidence: conf, Data: data}
}

func TestBuildNoResults(t *testing.T) {
	e := NewEngine()
	_, err := e.Build(1, 100, "invoice", nil)
	if !errors.Is(err, ErrNoExtractionResults) {
		t.Errorf("err = %v, want ErrNoExtractionResults", err)
	}
}

func TestBuildSingleSourcePassthrough(t *testing.T) {
	e := NewEngine()
	r, err := e.Build(1, 100, "invoice", []models.ExtractionResult{
		result("textract", 0.85, map[string]interface{}{"vendor": "Acme", "totalAmount": 150.0}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if r.ConsensusMethod != MethodSingleSource {
		t.Errorf("method = %s", r.ConsensusMethod)
	}
	if r.Confidence != 0.85 {
		t.Errorf("confidence = %f", r.Confidence)
	}
	if r.Data["vendor"] != "Acme" {
		t.Errorf("data = %+v", r.Data)
	}
	if fc := r.Fields["vendor"]; !fc.Agreement || len(fc.Sources) != 1 {
		t.Errorf("field provenance = %+v", fc)
	}
}

func TestBuildAgreementAveragesConfidence(t *testing.T) {
	e := NewEngine()
	r, err := e.Build(1, 100, "invoice", []models.ExtractionResult{
		result("a", 0.8, map[string]interface{}{"vendor": "Acme Corp"}),
		result("b", 0.6, map[string]interface{}{"vendor": "acme corp"}),
	})
	if err != nil {
		t.Fatal(err)
	}
	fc := r.Fields["vendor"]
	if !fc.Agreement {
		t.Errorf("case-insensitive match should agree: %+v", fc)
	}
	if fc.Confidence != 0.7 {
		t.Errorf("confidence = %f, want 0.7", fc.Confidence)
	}
	if len(fc.Sources) != 2 {
		t.Errorf("sources = %v", fc.Sources)
	}
}

func TestBuildDisagreementHighestSummedConfidenceWins(t *testing.T) {
	e := NewEngine()
	// Two sources say 150.00 (sum 1.0), one says 160.00 (0.9).
	r, err := e.Build(1, 100, "invoice", []models.ExtractionResult{
		result("a", 0.9, map[string]interface{}{"totalAmount": 160.0}),
		result("b", 0.5, map[string]interface{}{"totalAmount": 150.0}),
		result("c", 0.5, map[string]interface{}{"totalAmount": 150.0}),
	})
	if err != nil {
		t.Fatal(err)
	}
	fc := r.Fields["totalAmount"]
	if fc.Value != 150.0 {
		t.Errorf("value = %v, want 150 (summed confidence 1.0 beats 0.9)", fc.Value)
	}
	if fc.Agreement {
		t.Error("disagreement should not report agreement")
	}
}

func TestBuildTieBreakIndividualConfidence(t *testing.T) {
	e := NewEngine()
	// Summed confidence ties at 0.8; "b" has the higher individual confidence.
	r, err := e.Build(1, 100, "invoice", []models.ExtractionResult{
		result("a1", 0.4, map[string]interface{}{"vendor": "Alpha"}),
		result("a2", 0.4, map[string]interface{}{"vendor": "Alpha"}),
		result("b", 0.8, map[string]interface{}{"vendor": "Beta"}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := r.Fields["vendor"].Value; got != "Beta" {
		t.Errorf("value = %v, want Beta (individual confidence tie-break)", got)
	}
}

func TestBuildTieBreakSourceOrder(t *testing.T) {
	e := NewEngine()
	results := []models.ExtractionResult{
		result("first", 0.7, map[string]interface{}{"vendor": "Alpha"}),
		result("second", 0.7, map[string]interface{}{"vendor": "Beta"}),
	}
	for i := 0; i < 5; i++ {
		r, err := e.Build(1, 100, "invoice", results)
		if err != nil {
			t.Fatal(err)
		}
		if got := r.Fields["vendor"].Value; got != "Alpha" {
			t.Fatalf("run %d: value = %v, want Alpha (source order tie-break)", i, got)
		}
	}
}

func TestBuildUnionOfFields(t *testing.T) {
	e := NewEngine()
	r, err := e.Build(1, 100, "invoice", []models.ExtractionResult{
		result("a", 0.8, map[string]interface{}{"vendor": "Acme"}),
		result("b", 0.7, map[string]interface{}{"invoiceNumber": "INV-1", "customNote": "extra"}),
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"vendor", "invoiceNumber", "customNote"} {
		if _, ok := r.Data[key]; !ok {
			t.Errorf("missing field %q in merged data: %+v", key, r.Data)
		}
	}
}

func TestBuildSkipsNilValues(t *testing.T) {
	e := NewEngine()
	r, err := e.Build(1, 100, "invoice", []models.ExtractionResult{
		result("a", 0.9, map[string]interface{}{"vendor": nil}),
		result("b", 0.4, map[string]interface{}{"vendor": "Acme"}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := r.Fields["vendor"].Value; got != "Acme" {
		t.Errorf("value = %v, nil must not participate in the vote", got)
	}
}

func TestMergeLineItems(t *testing.T) {
	a := models.ExtractionResult{
		Source: "a", Confidence: 0.9,
		LineItems: []models.LineItem{
			{Description: "Office chair", Quantity: 2, Amount: 300.00},
			{Description: "Desk lamp", Quantity: 1, Amount: 45.00},
		},
	}
	b := models.ExtractionResult{
		Source: "b", Confidence: 0.7,
		LineItems: []models.LineItem{
			{Description: "office  chair!", Quantity: 2, Amount: 300.00},
			{Description: "Monitor stand", Quantity: 1, Amount: 80.00},
		},
	}
	items := mergeLineItems([]models.ExtractionResult{a, b})
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3 (chair deduplicated): %+v", len(items), items)
	}
	byDesc := make(map[string]models.LineItem, len(items))
	for _, it := range items {
		if it.Description == "office  chair!" {
			t.Error("lower-confidence variant kept over higher-confidence one")
		}
		byDesc[it.Description] = it
	}

	chair := byDesc["Office chair"]
	if len(chair.Sources) != 2 || chair.Sources[0] != "a" || chair.Sources[1] != "b" {
		t.Errorf("chair sources = %v, want union [a b]", chair.Sources)
	}
	if math.Abs(chair.Confidence-0.8) > 1e-9 {
		t.Errorf("chair confidence = %f, want 0.8 (average of contributors)", chair.Confidence)
	}

	lamp := byDesc["Desk lamp"]
	if len(lamp.Sources) != 1 || lamp.Sources[0] != "a" {
		t.Errorf("lamp sources = %v, want [a]", lamp.Sources)
	}
	if lamp.Confidence != 0.9 {
		t.Errorf("lamp confidence = %f, want 0.9", lamp.Confidence)
	}
}

func TestSingleSourceLineItemProvenance(t *testing.T) {
	e := NewEngine()
	r, err := e.Build(1, 10, "invoice", []models.ExtractionResult{{
		Source: "solo", Confidence: 0.85,
		Data:      map[string]interface{}{"vendor": "Acme"},
		LineItems: []models.LineItem{{Description: "Office chair", Amount: 300.00}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(r.LineItems) != 1 {
		t.Fatalf("items = %+v", r.LineItems)
	}
	item := r.LineItems[0]
	if item.Confidence != 0.85 {
		t.Errorf("confidence = %f, want 0.85", item.Confidence)
	}
	if len(item.Sources) != 1 || item.Sources[0] != "solo" {
		t.Errorf("sources = %v, want [solo]", item.Sources)
	}
}

func TestSimilarity(t *testing.T) {
	if s := Similarity("office chair", "office chair"); s != 1 {
		t.Errorf("identical similarity = %f", s)
	}
	if s := Similarity("office chair", "office chairs"); s < 0.9 {
		t.Errorf("near-identical similarity = %f", s)
	}
	if s := Similarity("office chair", "laptop"); s > 0.4 {
		t.Errorf("unrelated similarity = %f", s)
	}
}

func TestNormalizeDescription(t *testing.T) {
	if got := normalizeDescription("  Office   CHAIR!! "); got != "office chair" {
		t.Errorf("got %q", got)
	}
}

func TestStoreUpsertIdempotent(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "consensus.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	e := NewEngine(WithStore(store))
	results := []models.ExtractionResult{
		result("a", 0.8, map[string]interface{}{"vendor": "Acme", "totalAmount": 150.0}),
		result("b", 0.6, map[string]interface{}{"vendor": "Acme", "totalAmount": 150.0}),
	}
	first, err := e.BuildAndStore(7, 42, "invoice", results)
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.BuildAndStore(7, 42, "invoice", results)
	if err != nil {
		t.Fatal(err)
	}
	if first.Confidence != second.Confidence {
		t.Errorf("re-run changed confidence: %f vs %f", first.Confidence, second.Confidence)
	}

	got, err := store.Get(7, 42)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("stored consensus not found")
	}
	if got.Data["vendor"] != "Acme" {
		t.Errorf("stored data = %+v", got.Data)
	}

	// Tenant isolation: a different tenant sees nothing.
	other, err := store.Get(8, 42)
	if err != nil {
		t.Fatal(err)
	}
	if other != nil {
		t.Errorf("tenant 8 should not see tenant 7 consensus: %+v", other)
	}
}
