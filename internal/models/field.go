package models

// FieldKind distinguishes schema-defined attributes from per-organization
// custom attributes, which use different record-store calls.
type FieldKind string

const (
	// KindStandard is an attribute defined by the record schema, read and
	// written via whole-record fetch/patch.
	KindStandard FieldKind = "standard"
	// KindCustom is a dynamically-typed attribute accessed via dedicated
	// get/set/clear calls.
	KindCustom FieldKind = "custom"
)

// DataType is the coarse value type of a field, used by the validator's
// compatibility matrix and by discovery's strategy recommendation.
type DataType string

const (
	TypeText     DataType = "text"
	TypeEmail    DataType = "email"
	TypePhone    DataType = "phone"
	TypeNumber   DataType = "number"
	TypeCurrency DataType = "currency"
	TypeDate     DataType = "date"
	TypeBoolean  DataType = "boolean"
	TypeEnum     DataType = "enum"
	TypeUnknown  DataType = "unknown"
)

// FieldMetadata describes one field of the record schema. Instances are
// immutable once fetched and are cached by name for the lifetime of a run.
type FieldMetadata struct {
	Name       string    `json:"name"`
	Kind       FieldKind `json:"kind"`
	DataType   DataType  `json:"data_type"`
	MultiValue bool      `json:"multi_value"`
	Required   bool      `json:"required"`
	Searchable bool      `json:"searchable"`
	Output     bool      `json:"output"`
	ProviderID string    `json:"provider_id,omitempty"` // opaque store-side identifier
}

// FieldValue is the resolved value of a named field on one record.
// Value is a scalar, an ordered []interface{} of scalars, or nil when the
// field is absent. Raw preserves the pre-normalization form.
type FieldValue struct {
	FieldName string      `json:"field_name"`
	Kind      FieldKind   `json:"kind"`
	Value     interface{} `json:"value"`
	Raw       interface{} `json:"raw,omitempty"`
}

// IsEmpty reports whether the value is absent or holds no content.
func (v *FieldValue) IsEmpty() bool {
	if v == nil {
		return true
	}
	return IsEmptyValue(v.Value)
}

// IsEmptyValue reports whether a raw field value counts as blank: nil, an
// empty string, or a list with no non-empty elements.
func IsEmptyValue(value interface{}) bool {
	switch val := value.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []interface{}:
		for _, item := range val {
			if !IsEmptyValue(item) {
				return false
			}
		}
		return true
	case []string:
		for _, item := range val {
			if item != "" {
				return false
			}
		}
		return true
	}
	return false
}
