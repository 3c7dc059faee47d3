package models

// Severity classifies a validation issue. Only Error-severity issues block
// execution.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue types reported by the mapping validator.
const (
	IssueInvalidStrategy      = "invalid_strategy"
	IssueFieldNotFound        = "field_not_found"
	IssueTypeMismatch         = "type_mismatch"
	IssueMultiplicityMismatch = "multiplicity_mismatch"
	IssueStrategyMismatch     = "strategy_mismatch"
	IssueMissingTransform     = "missing_transform"
	IssueSelfMapping          = "self_mapping"
	IssueRequiredOverwrite    = "required_overwrite"
	IssueDuplicateTarget      = "duplicate_target"
	IssueCircularMapping      = "circular_mapping"
	IssueStalePlan            = "stale_plan"
)

// ValidationIssue is one finding about a mapping set.
type ValidationIssue struct {
	Severity   Severity `json:"severity"`
	FieldName  string   `json:"field_name"`
	IssueType  string   `json:"issue_type"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// MappingValidationResult aggregates the validator's findings.
type MappingValidationResult struct {
	Issues      []ValidationIssue `json:"issues"`
	Suggestions []string          `json:"suggestions"`
}

// IsValid reports whether the mapping set has no Error-severity issues.
func (r *MappingValidationResult) IsValid() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Errors returns only the Error-severity issues.
func (r *MappingValidationResult) Errors() []ValidationIssue {
	var errs []ValidationIssue
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			errs = append(errs, issue)
		}
	}
	return errs
}

// TypeMismatch is one source/target pair with incompatible data types.
type TypeMismatch struct {
	SourceField string   `json:"source_field"`
	SourceType  DataType `json:"source_type"`
	TargetField string   `json:"target_field"`
	TargetType  DataType `json:"target_type"`
}

// ValueCollision is a record where both source and target already hold
// different non-empty values, sampled during conflict analysis.
type ValueCollision struct {
	ResourceID  string      `json:"resource_id"`
	SourceField string      `json:"source_field"`
	TargetField string      `json:"target_field"`
	SourceValue interface{} `json:"source_value"`
	TargetValue interface{} `json:"target_value"`
}

// ConflictReport is the read-only result of pre-flight conflict analysis.
type ConflictReport struct {
	MissingFields  []string         `json:"missing_fields"`
	TypeMismatches []TypeMismatch   `json:"type_mismatches"`
	Collisions     []ValueCollision `json:"collisions"`
}
