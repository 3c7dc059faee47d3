package migration

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rflorenc/field-migration-workbench/internal/models"
	"github.com/rflorenc/field-migration-workbench/internal/store"
)

func newDiscoveryStore() *store.Memory {
	m := store.NewMemory()
	for _, name := range []string{"volunteer-2023", "volunteer-2024", "donor-major", "Category"} {
		m.AddField(models.FieldMetadata{Name: name, Kind: models.KindCustom, DataType: models.TypeText})
	}
	m.AddRecord("1", map[string]interface{}{})
	m.AddRecord("2", map[string]interface{}{})
	m.AddRecord("3", map[string]interface{}{})
	m.SetCustom("1", "volunteer-2023", "yes")
	m.SetCustom("2", "volunteer-2023", "yes")
	m.SetCustom("2", "volunteer-2024", "yes")
	m.SetCustom("3", "donor-major", "true")
	return m
}

func TestDiscover_ProbeCounts(t *testing.T) {
	m := newDiscoveryStore()
	d := NewDiscoverer(m, zerolog.Nop())

	report, err := d.Discover(context.Background(),
		[]string{"volunteer-2023", "volunteer-2024", "donor-major"}, 50, nil)
	if err != nil {
		t.Fatalf("Discover returned error: %v", err)
	}

	counts := make(map[string]int)
	for _, u := range report.Fields {
		if u.Error != "" {
			t.Errorf("probe of %s failed: %s", u.FieldName, u.Error)
		}
		counts[u.FieldName] = u.Count
	}
	want := map[string]int{"volunteer-2023": 2, "volunteer-2024": 1, "donor-major": 1}
	for name, n := range want {
		if counts[name] != n {
			t.Errorf("%s count = %d, want %d", name, counts[name], n)
		}
	}
	if report.TotalRecords != 2 {
		t.Errorf("TotalRecords = %d, want 2 (densest field)", report.TotalRecords)
	}
}

func TestDiscover_OneProbePerField(t *testing.T) {
	m := newDiscoveryStore()
	d := NewDiscoverer(m, zerolog.Nop())

	m.ResetCalls()
	if _, err := d.Discover(context.Background(), []string{"volunteer-2023", "donor-major"}, 50, nil); err != nil {
		t.Fatalf("Discover returned error: %v", err)
	}
	if calls := m.Calls(); calls != 2 {
		t.Errorf("discovery made %d store calls for 2 fields, want 2", calls)
	}
}

func TestDiscover_PrefixGrouping(t *testing.T) {
	m := newDiscoveryStore()
	d := NewDiscoverer(m, zerolog.Nop())

	report, err := d.Discover(context.Background(),
		[]string{"volunteer-2023", "volunteer-2024", "donor-major", "Category"}, 50, nil)
	if err != nil {
		t.Fatalf("Discover returned error: %v", err)
	}

	if len(report.Opportunities) != 1 {
		t.Fatalf("opportunities = %d, want 1 (%+v)", len(report.Opportunities), report.Opportunities)
	}
	opp := report.Opportunities[0]
	if opp.Prefix != "volunteer" {
		t.Errorf("prefix = %s, want volunteer", opp.Prefix)
	}
	if len(opp.SourceFields) != 2 {
		t.Errorf("source fields = %v, want the two volunteer fields", opp.SourceFields)
	}
	if opp.ResourceCount != 3 {
		t.Errorf("resource count = %d, want 3", opp.ResourceCount)
	}
	if opp.Confidence <= 0 || opp.Confidence > 1.0 {
		t.Errorf("confidence = %v, want within (0, 1]", opp.Confidence)
	}
}

func TestDiscover_EmptyFieldsExcluded(t *testing.T) {
	m := newDiscoveryStore()
	m.AddField(models.FieldMetadata{Name: "volunteer-2025", Kind: models.KindCustom, DataType: models.TypeText})
	d := NewDiscoverer(m, zerolog.Nop())

	report, err := d.Discover(context.Background(),
		[]string{"volunteer-2023", "volunteer-2024", "volunteer-2025"}, 50, nil)
	if err != nil {
		t.Fatalf("Discover returned error: %v", err)
	}
	for _, opp := range report.Opportunities {
		for _, f := range opp.SourceFields {
			if f == "volunteer-2025" {
				t.Error("empty field appeared in an opportunity")
			}
		}
	}
}

func TestClassifyValue(t *testing.T) {
	tests := []struct {
		value interface{}
		want  string
	}{
		{"hello", "text"},
		{"true", "boolean"},
		{"Yes", "boolean"},
		{true, "boolean"},
		{float64(3), "number"},
		{[]interface{}{"a"}, "list"},
		{struct{}{}, "unknown"},
	}
	for _, tc := range tests {
		if got := classifyValue(tc.value); got != tc.want {
			t.Errorf("classifyValue(%v) = %s, want %s", tc.value, got, tc.want)
		}
	}
}

func TestRecommendStrategy(t *testing.T) {
	boolGroup := []models.FieldUsage{
		{FieldName: "a", Count: 5, ValueTypes: []string{"boolean"}},
	}
	if got := recommendStrategy(boolGroup); got != models.StrategyAddOption {
		t.Errorf("boolean-only group = %s, want add_option", got)
	}

	lowCard := []models.FieldUsage{
		{FieldName: "b", Count: 20, ValueTypes: []string{"text"},
			Samples: []interface{}{"x", "y", "x", "y"}},
	}
	if got := recommendStrategy(lowCard); got != models.StrategyAddOption {
		t.Errorf("low-cardinality group = %s, want add_option", got)
	}

	freeText := []models.FieldUsage{
		{FieldName: "c", Count: 20, ValueTypes: []string{"text"},
			Samples: []interface{}{"one", "two", "three", "four", "five"}},
	}
	if got := recommendStrategy(freeText); got != models.StrategyCopyIfEmpty {
		t.Errorf("free-text group = %s, want copy_if_empty", got)
	}
}

func TestSuggestPlan(t *testing.T) {
	opp := models.Opportunity{
		Prefix:              "volunteer",
		SourceFields:        []string{"volunteer-2023", "volunteer-2024", "volunteer"},
		RecommendedStrategy: models.StrategyAddOption,
	}
	report := &models.DiscoveryReport{TotalRecords: 500}

	plan := SuggestPlan(opp, "volunteer", report)
	if len(plan.Mappings) != 2 {
		t.Fatalf("mappings = %d, want 2 (target excluded from sources)", len(plan.Mappings))
	}
	for _, m := range plan.Mappings {
		if m.TargetField != "volunteer" {
			t.Errorf("target = %s, want volunteer", m.TargetField)
		}
		if m.Strategy != models.StrategyAddOption {
			t.Errorf("strategy = %s, want add_option", m.Strategy)
		}
		if !m.PreserveSource {
			t.Error("suggested mappings must preserve the source")
		}
	}
}

func TestDeriveBatchSize(t *testing.T) {
	tests := []struct {
		records, fields, want int
	}{
		{1000, 1, 50},
		{1000, 2, 50},
		{1000, 4, 25},
		{1000, 20, 10},
		{5, 2, 5},
		{0, 3, 33},
	}
	for _, tc := range tests {
		if got := deriveBatchSize(tc.records, tc.fields); got != tc.want {
			t.Errorf("deriveBatchSize(%d, %d) = %d, want %d", tc.records, tc.fields, got, tc.want)
		}
	}
}
