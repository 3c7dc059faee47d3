package migration

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rflorenc/field-migration-workbench/internal/fields"
	"github.com/rflorenc/field-migration-workbench/internal/models"
	"github.com/rflorenc/field-migration-workbench/internal/store"
)

// newTestSchema builds an in-memory store with a representative field mix.
func newTestSchema() *store.Memory {
	m := store.NewMemory()
	m.AddField(models.FieldMetadata{Name: "Category", Kind: models.KindStandard, DataType: models.TypeText})
	m.AddField(models.FieldMetadata{Name: "LegacyTag", Kind: models.KindStandard, DataType: models.TypeText})
	m.AddField(models.FieldMetadata{Name: "Email", Kind: models.KindStandard, DataType: models.TypeEmail, Required: true})
	m.AddField(models.FieldMetadata{Name: "JoinDate", Kind: models.KindStandard, DataType: models.TypeDate})
	m.AddField(models.FieldMetadata{Name: "Donation", Kind: models.KindCustom, DataType: models.TypeCurrency})
	m.AddField(models.FieldMetadata{Name: "Interests", Kind: models.KindCustom, DataType: models.TypeEnum, MultiValue: true})
	m.AddField(models.FieldMetadata{Name: "Notes", Kind: models.KindCustom, DataType: models.TypeText})
	return m
}

func newTestValidator(m *store.Memory) *Validator {
	acc := fields.NewAccessor(m, 0, zerolog.Nop())
	return NewValidator(acc)
}

func hasIssue(result *models.MappingValidationResult, issueType string, severity models.Severity) bool {
	for _, issue := range result.Issues {
		if issue.IssueType == issueType && issue.Severity == severity {
			return true
		}
	}
	return false
}

func TestValidate_MissingField(t *testing.T) {
	v := newTestValidator(newTestSchema())

	result, err := v.ValidateFieldMap(context.Background(), map[string]string{"Ghost": "Category"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsValid() {
		t.Fatal("expected invalid result for missing source field")
	}
	errs := result.Errors()
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1: %v", len(errs), errs)
	}
	if errs[0].IssueType != models.IssueFieldNotFound {
		t.Errorf("issue type = %q, want %q", errs[0].IssueType, models.IssueFieldNotFound)
	}
	found := false
	for _, s := range result.Suggestions {
		if strings.Contains(s, "Ghost") {
			found = true
		}
	}
	if !found {
		t.Errorf("suggestions should name the missing field: %v", result.Suggestions)
	}
}

func TestValidate_UnknownStrategy(t *testing.T) {
	v := newTestValidator(newTestSchema())

	result, err := v.Validate(context.Background(), []models.Mapping{
		{SourceField: "LegacyTag", TargetField: "Category", Strategy: models.Strategy("bogus")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsValid() {
		t.Fatal("unknown strategy must invalidate the mapping set")
	}
	if !hasIssue(result, models.IssueInvalidStrategy, models.SeverityError) {
		t.Errorf("expected an invalid_strategy error, got %+v", result.Issues)
	}
}

func TestValidate_TypeMismatch(t *testing.T) {
	v := newTestValidator(newTestSchema())

	// date → currency is incompatible.
	mappings := []models.Mapping{{SourceField: "JoinDate", TargetField: "Donation", Strategy: models.StrategyReplace}}
	result, err := v.Validate(context.Background(), mappings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasIssue(result, models.IssueTypeMismatch, models.SeverityError) {
		t.Errorf("replace mismatch should be an error: %+v", result.Issues)
	}

	// Under any other strategy it degrades to a warning with a suggestion.
	mappings[0].Strategy = models.StrategyMerge
	result, err = v.Validate(context.Background(), mappings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasIssue(result, models.IssueTypeMismatch, models.SeverityWarning) {
		t.Errorf("merge mismatch should be a warning: %+v", result.Issues)
	}
	if !result.IsValid() {
		t.Error("warnings alone should not invalidate the set")
	}
}

func TestValidate_StrategyFitness(t *testing.T) {
	v := newTestValidator(newTestSchema())

	mappings := []models.Mapping{
		// add_option onto a single-value target
		{SourceField: "LegacyTag", TargetField: "Category", Strategy: models.StrategyAddOption},
		// transform without a transform function
		{SourceField: "Notes", TargetField: "Category", Strategy: models.StrategyTransform},
	}
	result, err := v.Validate(context.Background(), mappings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasIssue(result, models.IssueStrategyMismatch, models.SeverityWarning) {
		t.Errorf("expected add_option warning: %+v", result.Issues)
	}
	if !hasIssue(result, models.IssueMissingTransform, models.SeverityError) {
		t.Errorf("expected missing transform error: %+v", result.Issues)
	}
	if result.IsValid() {
		t.Error("missing transform must invalidate the set")
	}
}

func TestValidate_MultiplicityMismatch(t *testing.T) {
	v := newTestValidator(newTestSchema())

	mappings := []models.Mapping{{SourceField: "Notes", TargetField: "Interests", Strategy: models.StrategyCopyIfEmpty}}
	result, err := v.Validate(context.Background(), mappings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasIssue(result, models.IssueMultiplicityMismatch, models.SeverityWarning) {
		t.Errorf("expected multiplicity warning: %+v", result.Issues)
	}
}

func TestValidate_BusinessRules(t *testing.T) {
	v := newTestValidator(newTestSchema())

	mappings := []models.Mapping{
		{SourceField: "Category", TargetField: "Category", Strategy: models.StrategyMerge},
		{SourceField: "Notes", TargetField: "Email", Strategy: models.StrategyReplace},
	}
	result, err := v.Validate(context.Background(), mappings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasIssue(result, models.IssueSelfMapping, models.SeverityWarning) {
		t.Errorf("expected self-mapping warning: %+v", result.Issues)
	}
	if !hasIssue(result, models.IssueRequiredOverwrite, models.SeverityWarning) {
		t.Errorf("expected required-overwrite warning: %+v", result.Issues)
	}
}

func TestValidate_DuplicateTargets(t *testing.T) {
	v := newTestValidator(newTestSchema())

	mappings := []models.Mapping{
		{SourceField: "LegacyTag", TargetField: "Category", Strategy: models.StrategyCopyIfEmpty},
		{SourceField: "Notes", TargetField: "Category", Strategy: models.StrategyCopyIfEmpty},
	}
	result, err := v.Validate(context.Background(), mappings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count := 0
	for _, issue := range result.Issues {
		if issue.IssueType == models.IssueDuplicateTarget {
			count++
		}
	}
	if count != 1 {
		t.Errorf("duplicate target reported %d times, want once", count)
	}
}

func TestValidate_CircularMapping(t *testing.T) {
	m := newTestSchema()
	m.AddField(models.FieldMetadata{Name: "A", Kind: models.KindCustom, DataType: models.TypeText})
	m.AddField(models.FieldMetadata{Name: "B", Kind: models.KindCustom, DataType: models.TypeText})
	m.AddField(models.FieldMetadata{Name: "C", Kind: models.KindCustom, DataType: models.TypeText})
	v := newTestValidator(m)

	mappings := []models.Mapping{
		{SourceField: "A", TargetField: "B", Strategy: models.StrategyCopyIfEmpty},
		{SourceField: "B", TargetField: "C", Strategy: models.StrategyCopyIfEmpty},
		{SourceField: "C", TargetField: "A", Strategy: models.StrategyCopyIfEmpty},
	}
	result, err := v.Validate(context.Background(), mappings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsValid() {
		t.Fatal("circular mapping set must be invalid")
	}
	found := false
	for _, issue := range result.Issues {
		if issue.IssueType == models.IssueCircularMapping {
			found = true
			if !strings.Contains(issue.Message, "A → B → C → A") {
				t.Errorf("cycle message should list the full path, got %q", issue.Message)
			}
		}
	}
	if !found {
		t.Fatalf("no circular mapping issue reported: %+v", result.Issues)
	}
}

func TestDetectCycles_NoCycle(t *testing.T) {
	mappings := []models.Mapping{
		{SourceField: "A", TargetField: "B"},
		{SourceField: "B", TargetField: "C"},
		{SourceField: "D", TargetField: "C"},
	}
	if cycles := detectCycles(mappings); len(cycles) != 0 {
		t.Errorf("chain without back-edges reported cycles: %v", cycles)
	}
}

func TestDetectCycles_SelfLoop(t *testing.T) {
	mappings := []models.Mapping{{SourceField: "A", TargetField: "A"}}
	cycles := detectCycles(mappings)
	if len(cycles) != 1 {
		t.Fatalf("got %d cycles, want 1", len(cycles))
	}
	if got := strings.Join(cycles[0], " → "); got != "A → A" {
		t.Errorf("self-loop path = %q, want %q", got, "A → A")
	}
}
