package migration

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rflorenc/field-migration-workbench/internal/fields"
	"github.com/rflorenc/field-migration-workbench/internal/models"
)

// typeCompat lists, per source data type, the target types a value can move
// into without a transform. Unknown is compatible with everything.
var typeCompat = map[models.DataType][]models.DataType{
	models.TypeText:     {models.TypeText, models.TypeEmail, models.TypePhone, models.TypeEnum},
	models.TypeEmail:    {models.TypeEmail, models.TypeText},
	models.TypePhone:    {models.TypePhone, models.TypeText},
	models.TypeNumber:   {models.TypeNumber, models.TypeCurrency, models.TypeText},
	models.TypeCurrency: {models.TypeCurrency, models.TypeNumber, models.TypeText},
	models.TypeDate:     {models.TypeDate, models.TypeText},
	models.TypeBoolean:  {models.TypeBoolean, models.TypeText},
	models.TypeEnum:     {models.TypeEnum, models.TypeText},
}

// typesCompatible reports whether a source type can flow into a target type.
func typesCompatible(src, tgt models.DataType) bool {
	if src == models.TypeUnknown || tgt == models.TypeUnknown {
		return true
	}
	for _, ok := range typeCompat[src] {
		if tgt == ok {
			return true
		}
	}
	return false
}

// Validator statically analyzes a mapping set before any mutation.
type Validator struct {
	fields *fields.Accessor
}

// NewValidator creates a Validator backed by the given field accessor.
func NewValidator(f *fields.Accessor) *Validator {
	return &Validator{fields: f}
}

// ValidateFieldMap validates a plain source→target dictionary, treating every
// entry as a Replace mapping.
func (v *Validator) ValidateFieldMap(ctx context.Context, fieldMap map[string]string) (*models.MappingValidationResult, error) {
	// Stable order so issue output is deterministic.
	sources := make([]string, 0, len(fieldMap))
	for src := range fieldMap {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	mappings := make([]models.Mapping, 0, len(fieldMap))
	for _, src := range sources {
		mappings = append(mappings, models.Mapping{
			SourceField: src,
			TargetField: fieldMap[src],
			Strategy:    models.StrategyReplace,
		})
	}
	return v.Validate(ctx, mappings)
}

// Validate runs every per-mapping and set-level check over the mapping set.
// Issues come back as data; the returned error covers only collaborator
// failures while resolving metadata.
func (v *Validator) Validate(ctx context.Context, mappings []models.Mapping) (*models.MappingValidationResult, error) {
	result := &models.MappingValidationResult{}
	var missing []string

	for _, m := range mappings {
		// Strategy names are a closed enum; an unknown one is a programmer
		// error caught here, not per record at execution time.
		if _, perr := models.ParseStrategy(string(m.Strategy)); perr != nil {
			result.Issues = append(result.Issues, models.ValidationIssue{
				Severity:  models.SeverityError,
				FieldName: m.SourceField,
				IssueType: models.IssueInvalidStrategy,
				Message:   fmt.Sprintf("mapping %q → %q: %v", m.SourceField, m.TargetField, perr),
			})
		}

		srcMeta, err := v.fields.Metadata(ctx, m.SourceField)
		if err != nil {
			return nil, err
		}
		tgtMeta, err := v.fields.Metadata(ctx, m.TargetField)
		if err != nil {
			return nil, err
		}

		// 1. Existence
		if srcMeta == nil {
			result.Issues = append(result.Issues, models.ValidationIssue{
				Severity:  models.SeverityError,
				FieldName: m.SourceField,
				IssueType: models.IssueFieldNotFound,
				Message:   fmt.Sprintf("source field %q does not exist", m.SourceField),
			})
			missing = append(missing, m.SourceField)
		}
		if tgtMeta == nil {
			result.Issues = append(result.Issues, models.ValidationIssue{
				Severity:  models.SeverityError,
				FieldName: m.TargetField,
				IssueType: models.IssueFieldNotFound,
				Message:   fmt.Sprintf("target field %q does not exist", m.TargetField),
			})
			missing = append(missing, m.TargetField)
		}
		if srcMeta == nil || tgtMeta == nil {
			continue
		}

		// 2. Type compatibility
		if !typesCompatible(srcMeta.DataType, tgtMeta.DataType) {
			issue := models.ValidationIssue{
				FieldName: m.SourceField,
				IssueType: models.IssueTypeMismatch,
				Message: fmt.Sprintf("%q (%s) is not compatible with %q (%s)",
					m.SourceField, srcMeta.DataType, m.TargetField, tgtMeta.DataType),
			}
			if m.Strategy == models.StrategyReplace {
				issue.Severity = models.SeverityError
			} else {
				issue.Severity = models.SeverityWarning
				issue.Suggestion = "use the transform strategy to convert values explicitly"
			}
			result.Issues = append(result.Issues, issue)
		}

		// 3. Multiplicity
		if srcMeta.MultiValue != tgtMeta.MultiValue && m.Strategy != models.StrategyTransform {
			result.Issues = append(result.Issues, models.ValidationIssue{
				Severity:  models.SeverityWarning,
				FieldName: m.SourceField,
				IssueType: models.IssueMultiplicityMismatch,
				Message: fmt.Sprintf("%q and %q differ in multiplicity (multi-value: %v vs %v)",
					m.SourceField, m.TargetField, srcMeta.MultiValue, tgtMeta.MultiValue),
				Suggestion: "use the transform strategy to reshape the value",
			})
		}

		// 4. Strategy fitness
		if m.Strategy == models.StrategyAddOption && !tgtMeta.MultiValue {
			result.Issues = append(result.Issues, models.ValidationIssue{
				Severity:   models.SeverityWarning,
				FieldName:  m.TargetField,
				IssueType:  models.IssueStrategyMismatch,
				Message:    fmt.Sprintf("add_option targets single-value field %q", m.TargetField),
				Suggestion: "add_option is meant for multi-value targets; consider replace or merge",
			})
		}
		if m.Strategy == models.StrategyTransform && m.Transform == nil {
			result.Issues = append(result.Issues, models.ValidationIssue{
				Severity:  models.SeverityError,
				FieldName: m.SourceField,
				IssueType: models.IssueMissingTransform,
				Message:   fmt.Sprintf("mapping %q → %q uses the transform strategy but has no transform function", m.SourceField, m.TargetField),
			})
		}

		// 5. Business rules
		if m.SourceField == m.TargetField {
			result.Issues = append(result.Issues, models.ValidationIssue{
				Severity:  models.SeverityWarning,
				FieldName: m.SourceField,
				IssueType: models.IssueSelfMapping,
				Message:   fmt.Sprintf("%q maps onto itself", m.SourceField),
			})
		}
		if tgtMeta.Required && m.Strategy == models.StrategyReplace {
			result.Issues = append(result.Issues, models.ValidationIssue{
				Severity:   models.SeverityWarning,
				FieldName:  m.TargetField,
				IssueType:  models.IssueRequiredOverwrite,
				Message:    fmt.Sprintf("replace overwrites required field %q", m.TargetField),
				Suggestion: "consider copy_if_empty to avoid clobbering existing values",
			})
		}
	}

	// Set-level: duplicate targets
	targetCount := make(map[string]int)
	for _, m := range mappings {
		targetCount[m.TargetField]++
	}
	reported := make(map[string]bool)
	for _, m := range mappings {
		if targetCount[m.TargetField] > 1 && !reported[m.TargetField] {
			reported[m.TargetField] = true
			result.Issues = append(result.Issues, models.ValidationIssue{
				Severity:   models.SeverityWarning,
				FieldName:  m.TargetField,
				IssueType:  models.IssueDuplicateTarget,
				Message:    fmt.Sprintf("multiple mappings write to %q; later mappings can overwrite earlier ones", m.TargetField),
				Suggestion: "merge the mappings or use the merge strategy",
			})
		}
	}

	// Set-level: circular mapping chains
	for _, cycle := range detectCycles(mappings) {
		result.Issues = append(result.Issues, models.ValidationIssue{
			Severity:  models.SeverityError,
			FieldName: cycle[0],
			IssueType: models.IssueCircularMapping,
			Message:   "circular mapping chain: " + strings.Join(cycle, " → "),
		})
	}

	// Free-text suggestions
	if len(missing) > 0 {
		result.Suggestions = append(result.Suggestions, "create missing fields: "+strings.Join(dedupe(missing), ", "))
	}
	if n := len(result.Errors()); n > 0 {
		result.Suggestions = append(result.Suggestions, fmt.Sprintf("fix %d error(s) before proceeding", n))
	}

	return result, nil
}

// detectCycles finds circular chains in the source→target graph via DFS,
// tracking the active recursion stack. Each back-edge reports the full cycle
// path, closed with the starting field.
func detectCycles(mappings []models.Mapping) [][]string {
	graph := make(map[string][]string)
	for _, m := range mappings {
		graph[m.SourceField] = append(graph[m.SourceField], m.TargetField)
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)

	var cycles [][]string
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var stack []string

	var dfs func(node string)
	dfs = func(node string) {
		visited[node] = true
		onStack[node] = true
		stack = append(stack, node)

		for _, next := range graph[node] {
			if onStack[next] {
				// Back-edge: slice the stack from the cycle entry point.
				start := 0
				for i, n := range stack {
					if n == next {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, stack[start:]...), next)
				cycles = append(cycles, cycle)
				continue
			}
			if !visited[next] {
				dfs(next)
			}
		}

		stack = stack[:len(stack)-1]
		onStack[node] = false
	}

	for _, node := range nodes {
		if !visited[node] {
			dfs(node)
		}
	}
	return cycles
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
