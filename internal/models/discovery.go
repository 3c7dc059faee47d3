package models

// FieldUsage is the result of probing one field for non-empty values.
type FieldUsage struct {
	FieldName  string        `json:"field_name"`
	Count      int           `json:"count"`
	Samples    []interface{} `json:"samples"`
	ValueTypes []string      `json:"value_types"`
	Error      string        `json:"error,omitempty"`
}

// Opportunity is a proposed consolidation of related source fields into one
// target, derived from prefix grouping over discovered usage.
type Opportunity struct {
	Prefix              string   `json:"prefix"`
	SourceFields        []string `json:"source_fields"`
	TargetField         string   `json:"target_field,omitempty"`
	Confidence          float64  `json:"confidence"`
	RecommendedStrategy Strategy `json:"recommended_strategy"`
	ResourceCount       int      `json:"resource_count"`
}

// DiscoveryReport is the outcome of a discovery run over candidate fields.
type DiscoveryReport struct {
	Fields        []FieldUsage  `json:"fields"`
	Opportunities []Opportunity `json:"opportunities"`
	TotalRecords  int           `json:"total_records"`
}
