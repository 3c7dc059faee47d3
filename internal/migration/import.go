package migration

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rflorenc/field-migration-workbench/internal/fields"
	"github.com/rflorenc/field-migration-workbench/internal/models"
)

// staleAfter is how old an export may be before import flags it.
const staleAfter = 24 * time.Hour

// ImportPlan reads an exported plan and re-validates field existence against
// the live schema. The returned validation result carries a staleness warning
// when the export is older than 24h and a warning per mapping whose transform
// function must be re-attached before execution.
func ImportPlan(ctx context.Context, path string, acc *fields.Accessor) (*models.Plan, *models.MappingValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var file planFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".csv":
		mappings, err := importCSV(data)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		file.Plan = serializedPlan{Mappings: mappings}
	default: // yaml
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	plan := &models.Plan{
		ResourceFilter: file.Plan.ResourceFilter,
		ResourceIDs:    file.Plan.ResourceIDs,
		CleanupOnly:    file.Plan.CleanupOnly,
		SmartMigration: file.Plan.SmartMigration,
		BatchSize:      file.Plan.BatchSize,
		MaxWorkers:     file.Plan.MaxWorkers,
		DryRun:         file.Plan.DryRun,
	}
	var detached []string
	for _, sm := range file.Plan.Mappings {
		strategy, err := models.ParseStrategy(sm.Strategy)
		if err != nil {
			return nil, nil, fmt.Errorf("mapping %s → %s: %w", sm.SourceField, sm.TargetField, err)
		}
		plan.Mappings = append(plan.Mappings, models.Mapping{
			SourceField:        sm.SourceField,
			TargetField:        sm.TargetField,
			Strategy:           strategy,
			PreserveSource:     sm.PreserveSource,
			ValidationRequired: sm.ValidationRequired,
		})
		if sm.TransformFunction != nil && sm.TransformFunction.HasFunction {
			detached = append(detached, fmt.Sprintf("%s → %s", sm.SourceField, sm.TargetField))
		}
	}

	// Re-validate against the live schema.
	validation, err := NewValidator(acc).Validate(ctx, plan.Mappings)
	if err != nil {
		return nil, nil, err
	}

	if !file.Metadata.ExportTimestamp.IsZero() {
		if age := time.Since(file.Metadata.ExportTimestamp); age > staleAfter {
			validation.Issues = append(validation.Issues, models.ValidationIssue{
				Severity:   models.SeverityWarning,
				IssueType:  models.IssueStalePlan,
				Message:    fmt.Sprintf("plan was exported %s ago; the schema may have drifted", age.Round(time.Hour)),
				Suggestion: "re-run discovery and conflict analysis before executing",
			})
		}
	}
	for _, name := range detached {
		validation.Issues = append(validation.Issues, models.ValidationIssue{
			Severity:  models.SeverityWarning,
			IssueType: models.IssueMissingTransform,
			Message:   fmt.Sprintf("mapping %s had a transform function that was not serialized; re-attach it before execution", name),
		})
	}

	return plan, validation, nil
}

// importCSV parses the mappings-only CSV layout written by exportCSV.
func importCSV(data []byte) ([]serializedMapping, error) {
	r := csv.NewReader(strings.NewReader(string(data)))
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty CSV")
	}
	if len(rows[0]) < len(csvHeader) || rows[0][0] != csvHeader[0] {
		return nil, fmt.Errorf("unexpected CSV header %v", rows[0])
	}

	var mappings []serializedMapping
	for i, row := range rows[1:] {
		if len(row) < len(csvHeader) {
			return nil, fmt.Errorf("row %d: expected %d columns, got %d", i+2, len(csvHeader), len(row))
		}
		preserve, _ := strconv.ParseBool(row[3])
		validation, _ := strconv.ParseBool(row[4])
		hasTransform, _ := strconv.ParseBool(row[5])
		sm := serializedMapping{
			SourceField:        row[0],
			TargetField:        row[1],
			Strategy:           row[2],
			PreserveSource:     preserve,
			ValidationRequired: validation,
		}
		if hasTransform {
			sm.TransformFunction = &transformNote{HasFunction: true}
		}
		mappings = append(mappings, sm)
	}
	return mappings, nil
}
