package models

import (
	"fmt"
	"time"
)

// Strategy is how a mapping moves a source value into its target field.
type Strategy string

const (
	// StrategyReplace unconditionally overwrites the target.
	StrategyReplace Strategy = "replace"
	// StrategyMerge combines source and target by type: string concatenation
	// for text, set union for lists, last-value-wins otherwise.
	StrategyMerge Strategy = "merge"
	// StrategyAddOption appends a scalar to a multi-value target if absent.
	StrategyAddOption Strategy = "add_option"
	// StrategyCopyIfEmpty writes only when the target holds no value.
	StrategyCopyIfEmpty Strategy = "copy_if_empty"
	// StrategyTransform lets the mapping's transform function compute the
	// effective value; a nil result skips the record.
	StrategyTransform Strategy = "transform"
)

// ParseStrategy validates a strategy name from a serialized plan or API call.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyReplace, StrategyMerge, StrategyAddOption, StrategyCopyIfEmpty, StrategyTransform:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// TransformFunc rewrites a source value before the strategy applies it.
// Returning ok=false suppresses the mapping for that record.
type TransformFunc func(value interface{}) (result interface{}, ok bool)

// Mapping is one source-field-to-target-field migration rule.
type Mapping struct {
	SourceField        string        `json:"source_field"`
	TargetField        string        `json:"target_field"`
	Strategy           Strategy      `json:"strategy"`
	Transform          TransformFunc `json:"-"`
	ValidationRequired bool          `json:"validation_required"`
	PreserveSource     bool          `json:"preserve_source"`
}

// Plan is an ordered set of mappings plus targeting and execution knobs.
// Plans are value objects: constructed once, optionally validated, then
// executed exactly once.
type Plan struct {
	Mappings []Mapping `json:"mappings"`

	// ResourceIDs, when set, takes precedence over ResourceFilter and
	// enables the optimized per-record bulk drivers.
	ResourceFilter string   `json:"resource_filter,omitempty"`
	ResourceIDs    []string `json:"resource_ids,omitempty"`

	CleanupOnly    bool `json:"cleanup_only"`
	SmartMigration bool `json:"smart_migration"`
	BatchSize      int  `json:"batch_size"`
	MaxWorkers     int  `json:"max_workers"`
	DryRun         bool `json:"dry_run"`
}

// Summary returns a one-line description used in logs and plan exports.
func (p *Plan) Summary() string {
	mode := "live"
	if p.DryRun {
		mode = "dry-run"
	}
	if p.CleanupOnly {
		mode += ", cleanup-only"
	}
	return fmt.Sprintf("%d mapping(s), %d resource(s), %s", len(p.Mappings), len(p.ResourceIDs), mode)
}

// ExecutionDetails records how a bulk run performed, for strategy comparison.
type ExecutionDetails struct {
	Strategy      string        `json:"strategy"`
	RoundTrips    int           `json:"round_trips"`
	Duration      time.Duration `json:"duration"`
	RecordsPerSec float64       `json:"records_per_sec"`
	CallsPerSec   float64       `json:"calls_per_sec"`
}

// Result is the immutable outcome of one plan execution.
type Result struct {
	TotalResources int               `json:"total_resources"`
	Successful     int               `json:"successful"`
	Failed         int               `json:"failed"`
	Skipped        int               `json:"skipped"`
	Errors         []string          `json:"errors"`
	Warnings       []string          `json:"warnings"`
	Detailed       *ExecutionDetails `json:"detailed,omitempty"`
}
