package migration

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rflorenc/field-migration-workbench/internal/fields"
	"github.com/rflorenc/field-migration-workbench/internal/models"
	"github.com/rflorenc/field-migration-workbench/internal/store"
)

func newTestEngine(m *store.Memory) (*Engine, *fields.Accessor) {
	acc := fields.NewAccessor(m, 0, zerolog.Nop())
	return NewEngine(m, acc, zerolog.Nop()), acc
}

func TestExecute_BasicMigration(t *testing.T) {
	m := newTestSchema()
	m.AddRecord("1001", map[string]interface{}{"LegacyTag": "Volunteer", "Category": ""})
	engine, _ := newTestEngine(m)

	plan := &models.Plan{
		Mappings: []models.Mapping{
			{SourceField: "LegacyTag", TargetField: "Category", Strategy: models.StrategyReplace, PreserveSource: true},
		},
		ResourceIDs: []string{"1001"},
	}
	result, err := engine.Execute(context.Background(), plan, StrategyAuto, nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.Successful != 1 || result.Failed != 0 {
		t.Errorf("result = %d successful, %d failed, want 1/0 (errors: %v)", result.Successful, result.Failed, result.Errors)
	}
	if got := m.StandardValue("1001", "Category"); got != "Volunteer" {
		t.Errorf("Category = %v, want Volunteer", got)
	}
	if got := m.StandardValue("1001", "LegacyTag"); got != "Volunteer" {
		t.Errorf("preserve_source should leave the source intact, got %v", got)
	}
}

func TestExecute_ClearsSource(t *testing.T) {
	m := newTestSchema()
	m.AddRecord("2001", map[string]interface{}{"LegacyTag": "Volunteer", "Category": ""})
	engine, _ := newTestEngine(m)

	plan := &models.Plan{
		Mappings: []models.Mapping{
			{SourceField: "LegacyTag", TargetField: "Category", Strategy: models.StrategyReplace},
		},
		ResourceIDs: []string{"2001"},
	}
	if _, err := engine.Execute(context.Background(), plan, StrategyParallel, nil); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if got := m.StandardValue("2001", "LegacyTag"); got != "" {
		t.Errorf("source should have been cleared, got %v", got)
	}
	if got := m.StandardValue("2001", "Category"); got != "Volunteer" {
		t.Errorf("Category = %v, want Volunteer", got)
	}
}

func TestExecute_CopyIfEmptyNonDestructive(t *testing.T) {
	m := newTestSchema()
	m.AddRecord("3001", map[string]interface{}{"LegacyTag": "New", "Category": "Existing"})
	engine, _ := newTestEngine(m)

	plan := &models.Plan{
		Mappings: []models.Mapping{
			{SourceField: "LegacyTag", TargetField: "Category", Strategy: models.StrategyCopyIfEmpty, PreserveSource: true},
		},
		ResourceIDs: []string{"3001"},
	}
	result, err := engine.Execute(context.Background(), plan, StrategyParallel, nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if got := m.StandardValue("3001", "Category"); got != "Existing" {
		t.Errorf("occupied target was changed to %v", got)
	}
	// Skip-as-success: the mapping is already satisfied.
	if result.Successful != 1 {
		t.Errorf("successful = %d, want 1", result.Successful)
	}
}

func TestExecute_AddOptionIdempotentAcrossRuns(t *testing.T) {
	m := newTestSchema()
	m.AddRecord("4001", map[string]interface{}{"LegacyTag": "Hiking"})
	engine, _ := newTestEngine(m)

	plan := &models.Plan{
		Mappings: []models.Mapping{
			{SourceField: "LegacyTag", TargetField: "Interests", Strategy: models.StrategyAddOption, PreserveSource: true},
		},
		ResourceIDs: []string{"4001"},
	}
	for run := 0; run < 2; run++ {
		if _, err := engine.Execute(context.Background(), plan, StrategyParallel, nil); err != nil {
			t.Fatalf("run %d returned error: %v", run, err)
		}
	}
	v, ok := m.CustomValue("4001", "Interests")
	if !ok {
		t.Fatal("Interests was never written")
	}
	list, ok := v.([]interface{})
	if !ok || len(list) != 1 || list[0] != "Hiking" {
		t.Errorf("Interests = %v, want [Hiking] after two runs", v)
	}
}

func TestExecute_DryRunPurity(t *testing.T) {
	build := func() *store.Memory {
		m := newTestSchema()
		m.AddRecord("5001", map[string]interface{}{"LegacyTag": "Volunteer", "Category": ""})
		m.AddRecord("5002", map[string]interface{}{"LegacyTag": "", "Category": ""})
		m.AddRecord("5003", map[string]interface{}{"LegacyTag": "Donor", "Category": "Member"})
		return m
	}
	newPlan := func(dry bool) *models.Plan {
		return &models.Plan{
			Mappings: []models.Mapping{
				{SourceField: "LegacyTag", TargetField: "Category", Strategy: models.StrategyCopyIfEmpty, PreserveSource: true},
			},
			ResourceIDs: []string{"5001", "5002", "5003"},
			DryRun:      dry,
		}
	}

	m := build()
	engine, _ := newTestEngine(m)
	dry, err := engine.Execute(context.Background(), newPlan(true), StrategyBatched, nil)
	if err != nil {
		t.Fatalf("dry run returned error: %v", err)
	}

	// The dry run must not have written anything.
	if got := m.StandardValue("5001", "Category"); got != "" {
		t.Fatalf("dry run wrote Category = %v", got)
	}

	live, err := engine.Execute(context.Background(), newPlan(false), StrategyBatched, nil)
	if err != nil {
		t.Fatalf("live run returned error: %v", err)
	}

	if dry.Successful != live.Successful || dry.Failed != live.Failed || dry.Skipped != live.Skipped {
		t.Errorf("dry run (%d/%d/%d) and live run (%d/%d/%d) disagree",
			dry.Successful, dry.Failed, dry.Skipped,
			live.Successful, live.Failed, live.Skipped)
	}
	if got := m.StandardValue("5001", "Category"); got != "Volunteer" {
		t.Errorf("live run Category = %v, want Volunteer", got)
	}
}

func TestExecute_BatchedRoundTripBound(t *testing.T) {
	m := newTestSchema()
	m.AddField(models.FieldMetadata{Name: "Alt1", Kind: models.KindStandard, DataType: models.TypeText})
	m.AddField(models.FieldMetadata{Name: "Alt2", Kind: models.KindStandard, DataType: models.TypeText})
	m.AddField(models.FieldMetadata{Name: "Alt3", Kind: models.KindStandard, DataType: models.TypeText})
	m.AddRecord("6001", map[string]interface{}{
		"LegacyTag": "a", "Alt1": "b", "Alt2": "c", "Alt3": "d", "Category": "",
	})
	engine, acc := newTestEngine(m)

	plan := &models.Plan{
		Mappings: []models.Mapping{
			{SourceField: "LegacyTag", TargetField: "Category", Strategy: models.StrategyReplace, PreserveSource: true},
			{SourceField: "Alt1", TargetField: "Category", Strategy: models.StrategyMerge, PreserveSource: true},
			{SourceField: "Alt2", TargetField: "Category", Strategy: models.StrategyMerge, PreserveSource: true},
			{SourceField: "Alt3", TargetField: "Category", Strategy: models.StrategyMerge, PreserveSource: true},
		},
		ResourceIDs: []string{"6001"},
	}

	// Prime the metadata cache so only record traffic is counted.
	for _, name := range []string{"LegacyTag", "Alt1", "Alt2", "Alt3", "Category"} {
		if _, err := acc.Metadata(context.Background(), name); err != nil {
			t.Fatalf("priming metadata: %v", err)
		}
	}
	m.ResetCalls()

	result, err := engine.Execute(context.Background(), plan, StrategyBatched, nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.Failed != 0 {
		t.Fatalf("unexpected failures: %v", result.Errors)
	}
	// All fields are standard: 1 fetch + 1 patch, independent of mapping count.
	if calls := m.Calls(); calls > 2 {
		t.Errorf("batched driver made %d store calls, want at most 2", calls)
	}
	if result.Detailed == nil || result.Detailed.RoundTrips != m.Calls() {
		t.Errorf("reported round trips %v do not match actual calls %d", result.Detailed, m.Calls())
	}
}

func TestExecute_BatchedLaterMappingSeesEarlierEffect(t *testing.T) {
	m := newTestSchema()
	m.AddRecord("6101", map[string]interface{}{"LegacyTag": "first", "Category": ""})
	engine, _ := newTestEngine(m)

	// Mapping 1 fills Category; mapping 2 merges Category-bound value again.
	plan := &models.Plan{
		Mappings: []models.Mapping{
			{SourceField: "LegacyTag", TargetField: "Category", Strategy: models.StrategyReplace, PreserveSource: true},
			{SourceField: "LegacyTag", TargetField: "Category", Strategy: models.StrategyCopyIfEmpty, PreserveSource: true},
		},
		ResourceIDs: []string{"6101"},
	}
	result, err := engine.Execute(context.Background(), plan, StrategyBatched, nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	// The second mapping observes the first one's pending write and skips
	// as already satisfied instead of overwriting.
	if result.Failed != 0 {
		t.Fatalf("unexpected failures: %v", result.Errors)
	}
	if got := m.StandardValue("6101", "Category"); got != "first" {
		t.Errorf("Category = %v, want first", got)
	}
}

func TestExecute_SmartMigrationSkipsWrite(t *testing.T) {
	m := newTestSchema()
	m.AddRecord("7001", map[string]interface{}{"LegacyTag": "Volunteer", "Category": "Volunteer"})
	engine, acc := newTestEngine(m)

	plan := &models.Plan{
		Mappings: []models.Mapping{
			{SourceField: "LegacyTag", TargetField: "Category", Strategy: models.StrategyReplace, PreserveSource: true},
		},
		ResourceIDs:    []string{"7001"},
		SmartMigration: true,
	}

	for _, name := range []string{"LegacyTag", "Category"} {
		if _, err := acc.Metadata(context.Background(), name); err != nil {
			t.Fatalf("priming metadata: %v", err)
		}
	}
	m.ResetCalls()

	result, err := engine.Execute(context.Background(), plan, StrategyBatched, nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.Successful != 1 {
		t.Errorf("smart pre-check should report success, got %+v", result)
	}
	// Fetch happened, but the write was elided.
	if calls := m.Calls(); calls != 1 {
		t.Errorf("store calls = %d, want 1 (fetch only)", calls)
	}
}

func TestExecute_CleanupOnly(t *testing.T) {
	m := newTestSchema()
	m.AddRecord("8001", map[string]interface{}{"LegacyTag": "stale", "Category": "keep"})
	m.SetCustom("8001", "Notes", "old note")
	engine, _ := newTestEngine(m)

	plan := &models.Plan{
		Mappings: []models.Mapping{
			{SourceField: "LegacyTag", TargetField: "Category", Strategy: models.StrategyReplace},
			{SourceField: "Notes", TargetField: "Category", Strategy: models.StrategyReplace},
		},
		ResourceIDs: []string{"8001"},
		CleanupOnly: true,
	}
	result, err := engine.Execute(context.Background(), plan, StrategyParallel, nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.Failed != 0 {
		t.Fatalf("unexpected failures: %v", result.Errors)
	}
	if got := m.StandardValue("8001", "Category"); got != "keep" {
		t.Errorf("cleanup-only must not migrate; Category = %v", got)
	}
	if got := m.StandardValue("8001", "LegacyTag"); got != "" {
		t.Errorf("source not cleared: %v", got)
	}
	if _, ok := m.CustomValue("8001", "Notes"); ok {
		t.Error("custom source should have been removed entirely")
	}
}

func TestExecute_CleanupOnlyRejectsPreserveSource(t *testing.T) {
	m := newTestSchema()
	m.AddRecord("8101", map[string]interface{}{"LegacyTag": "keepme"})
	engine, _ := newTestEngine(m)

	plan := &models.Plan{
		Mappings: []models.Mapping{
			{SourceField: "LegacyTag", TargetField: "Category", Strategy: models.StrategyReplace, PreserveSource: true},
		},
		ResourceIDs: []string{"8101"},
		CleanupOnly: true,
	}
	if _, err := engine.Execute(context.Background(), plan, StrategyParallel, nil); err == nil {
		t.Fatal("cleanup-only plan with a preserve_source mapping must be rejected")
	}
	if got := m.StandardValue("8101", "LegacyTag"); got != "keepme" {
		t.Errorf("rejected plan still cleared the source: %v", got)
	}
}

func TestExecute_FailureIsolation(t *testing.T) {
	m := newTestSchema()
	m.AddRecord("9001", map[string]interface{}{"LegacyTag": "ok", "Category": ""})
	m.AddRecord("9002", map[string]interface{}{"LegacyTag": "bad", "Category": ""})
	m.FailPatch = map[string]error{"9002": fmt.Errorf("rate limited")}
	engine, _ := newTestEngine(m)

	plan := &models.Plan{
		Mappings: []models.Mapping{
			{SourceField: "LegacyTag", TargetField: "Category", Strategy: models.StrategyReplace, PreserveSource: true},
		},
		ResourceIDs: []string{"9001", "9002"},
	}
	result, err := engine.Execute(context.Background(), plan, StrategyBatched, nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.Successful != 1 || result.Failed != 1 {
		t.Errorf("result = %d/%d, want 1 successful and 1 failed", result.Successful, result.Failed)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "9002") {
		t.Errorf("error should be attributed to record 9002: %v", result.Errors)
	}
	if got := m.StandardValue("9001", "Category"); got != "ok" {
		t.Errorf("healthy record should still migrate, Category = %v", got)
	}
}

func TestExecute_TransformSuppression(t *testing.T) {
	m := newTestSchema()
	m.AddRecord("9101", map[string]interface{}{"LegacyTag": "skipme", "Category": ""})
	m.AddRecord("9102", map[string]interface{}{"LegacyTag": "keep", "Category": ""})
	engine, _ := newTestEngine(m)

	plan := &models.Plan{
		Mappings: []models.Mapping{
			{
				SourceField: "LegacyTag",
				TargetField: "Category",
				Strategy:    models.StrategyTransform,
				Transform: func(v interface{}) (interface{}, bool) {
					if v == "skipme" {
						return nil, false
					}
					return strings.ToUpper(v.(string)), true
				},
				PreserveSource: true,
			},
		},
		ResourceIDs: []string{"9101", "9102"},
	}
	result, err := engine.Execute(context.Background(), plan, StrategyParallel, nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.Successful != 1 || result.Skipped != 1 {
		t.Errorf("result = %d successful, %d skipped, want 1/1", result.Successful, result.Skipped)
	}
	if got := m.StandardValue("9101", "Category"); got != "" {
		t.Errorf("suppressed record was written: %v", got)
	}
	if got := m.StandardValue("9102", "Category"); got != "KEEP" {
		t.Errorf("Category = %v, want KEEP", got)
	}
}

func TestExecute_Cancelled(t *testing.T) {
	m := newTestSchema()
	m.AddRecord("9201", map[string]interface{}{"LegacyTag": "x", "Category": ""})
	engine, _ := newTestEngine(m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plan := &models.Plan{
		Mappings: []models.Mapping{
			{SourceField: "LegacyTag", TargetField: "Category", Strategy: models.StrategyReplace, PreserveSource: true},
		},
		ResourceIDs: []string{"9201"},
	}
	result, err := engine.Execute(ctx, plan, StrategyParallel, nil)
	if err != nil {
		t.Fatalf("Execute must return a partial result, got error: %v", err)
	}
	if got := m.StandardValue("9201", "Category"); got != "" {
		t.Errorf("cancelled run performed a write: %v", got)
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "cancelled") {
			found = true
		}
	}
	if !found {
		t.Errorf("result should warn about cancellation: %v", result.Warnings)
	}
}

func TestExecute_UnknownStrategy(t *testing.T) {
	engine, _ := newTestEngine(newTestSchema())
	if _, err := engine.Execute(context.Background(), &models.Plan{}, "bogus", nil); err == nil {
		t.Fatal("expected error for unknown execution strategy, got nil")
	}
}

func TestExecute_ResourceFilter(t *testing.T) {
	m := newTestSchema()
	m.AddRecord("9301", map[string]interface{}{"LegacyTag": "a", "Category": ""})
	m.AddRecord("9302", map[string]interface{}{"LegacyTag": "", "Category": ""})
	engine, _ := newTestEngine(m)

	plan := &models.Plan{
		Mappings: []models.Mapping{
			{SourceField: "LegacyTag", TargetField: "Category", Strategy: models.StrategyReplace, PreserveSource: true},
		},
		ResourceFilter: "LegacyTag",
	}
	result, err := engine.Execute(context.Background(), plan, StrategyParallel, nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.TotalResources != 1 {
		t.Errorf("filter should match 1 record, processed %d", result.TotalResources)
	}
}

func TestSelectStrategy(t *testing.T) {
	tests := []struct {
		records, mappings int
		want              string
	}{
		{1, 1, StrategyParallel},
		{9, 10, StrategyParallel},
		{150, 6, StrategyHybrid},
		{150, 2, StrategyBatched},
		{60, 3, StrategyBatched},
		{20, 3, StrategyParallel},
	}
	for _, tc := range tests {
		if got := selectStrategy(tc.records, tc.mappings); got != tc.want {
			t.Errorf("selectStrategy(%d, %d) = %s, want %s", tc.records, tc.mappings, got, tc.want)
		}
	}
}
