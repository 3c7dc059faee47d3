package migration

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rflorenc/field-migration-workbench/internal/models"
)

// transformNote is the serialized placeholder for a transform function.
// Functions are never serialized; importers re-attach them before execution.
type transformNote struct {
	HasFunction bool   `yaml:"hasFunction" json:"hasFunction"`
	Note        string `yaml:"note" json:"note"`
}

type serializedMapping struct {
	SourceField        string         `yaml:"sourceField" json:"sourceField"`
	TargetField        string         `yaml:"targetField" json:"targetField"`
	Strategy           string         `yaml:"strategy" json:"strategy"`
	PreserveSource     bool           `yaml:"preserveSource" json:"preserveSource"`
	ValidationRequired bool           `yaml:"validationRequired" json:"validationRequired"`
	TransformFunction  *transformNote `yaml:"transformFunction" json:"transformFunction"`
}

type serializedPlan struct {
	Mappings       []serializedMapping `yaml:"mappings" json:"mappings"`
	ResourceFilter string              `yaml:"resourceFilter,omitempty" json:"resourceFilter,omitempty"`
	ResourceIDs    []string            `yaml:"resourceIds,omitempty" json:"resourceIds,omitempty"`
	CleanupOnly    bool                `yaml:"cleanupOnly" json:"cleanupOnly"`
	SmartMigration bool                `yaml:"smartMigration" json:"smartMigration"`
	BatchSize      int                 `yaml:"batchSize" json:"batchSize"`
	MaxWorkers     int                 `yaml:"maxWorkers" json:"maxWorkers"`
	DryRun         bool                `yaml:"dryRun" json:"dryRun"`
}

type planMetadata struct {
	ExportTimestamp time.Time `yaml:"exportTimestamp" json:"exportTimestamp"`
	PlanSummary     string    `yaml:"planSummary" json:"planSummary"`
}

// planFile is the on-disk representation of an exported plan.
type planFile struct {
	Metadata planMetadata   `yaml:"metadata" json:"metadata"`
	Plan     serializedPlan `yaml:"plan" json:"plan"`
}

// Supported plan export formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// csvHeader is the column layout of a CSV plan export. CSV carries the
// mapping rows only; plan-level knobs fall back to defaults on import.
var csvHeader = []string{"sourceField", "targetField", "strategy", "preserveSource", "validationRequired", "hasTransform"}

// ExportPlan writes a plan to a human-editable file for audit or replay.
// Transform functions serialize as a placeholder note only.
func ExportPlan(plan *models.Plan, path, format string) error {
	switch format {
	case FormatCSV:
		return exportCSV(plan, path)
	case FormatYAML, FormatJSON:
	default:
		return fmt.Errorf("unsupported plan format %q", format)
	}

	file := planFile{
		Metadata: planMetadata{
			ExportTimestamp: time.Now().UTC(),
			PlanSummary:     plan.Summary(),
		},
		Plan: serializePlan(plan),
	}

	var data []byte
	var err error
	if format == FormatJSON {
		data, err = json.MarshalIndent(file, "", "  ")
	} else {
		data, err = yaml.Marshal(file)
	}
	if err != nil {
		return fmt.Errorf("serializing plan: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func serializePlan(plan *models.Plan) serializedPlan {
	sp := serializedPlan{
		ResourceFilter: plan.ResourceFilter,
		ResourceIDs:    plan.ResourceIDs,
		CleanupOnly:    plan.CleanupOnly,
		SmartMigration: plan.SmartMigration,
		BatchSize:      plan.BatchSize,
		MaxWorkers:     plan.MaxWorkers,
		DryRun:         plan.DryRun,
	}
	for _, m := range plan.Mappings {
		sm := serializedMapping{
			SourceField:        m.SourceField,
			TargetField:        m.TargetField,
			Strategy:           string(m.Strategy),
			PreserveSource:     m.PreserveSource,
			ValidationRequired: m.ValidationRequired,
		}
		if m.Transform != nil {
			sm.TransformFunction = &transformNote{
				HasFunction: true,
				Note:        "transform functions are not serialized; re-attach before execution",
			}
		}
		sp.Mappings = append(sp.Mappings, sm)
	}
	return sp
}

func exportCSV(plan *models.Plan, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, m := range plan.Mappings {
		row := []string{
			m.SourceField,
			m.TargetField,
			string(m.Strategy),
			strconv.FormatBool(m.PreserveSource),
			strconv.FormatBool(m.ValidationRequired),
			strconv.FormatBool(m.Transform != nil),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing CSV row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
