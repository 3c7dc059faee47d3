package store

import (
	"context"
	"errors"

	"github.com/rflorenc/field-migration-workbench/internal/models"
)

// ErrNotFound is returned by Get when no record exists for the given ID.
var ErrNotFound = errors.New("record not found")

// Operator is a search predicate supported by the record store.
type Operator string

const (
	OpNotBlank Operator = "NOT_BLANK"
	OpBlank    Operator = "BLANK"
	OpEqual    Operator = "EQUAL"
)

// Query is a scoped search against the record store. OutputFields bounds the
// payload to the fields the caller actually needs; Limit caps the number of
// records returned across pages.
type Query struct {
	Field        string
	Operator     Operator
	Value        string
	OutputFields []string
	Limit        int
}

// RecordStore is the remote record-store collaborator. Implementations own
// retry/backoff; callers own cancellation via ctx.
type RecordStore interface {
	// Get fetches one record by ID. Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, id string) (models.Record, error)

	// Search returns records matching the query, up to q.Limit.
	Search(ctx context.Context, q Query) ([]models.Record, error)

	// Patch partially updates a record's standard fields.
	Patch(ctx context.Context, id string, fields map[string]interface{}) error

	// GetCustomFieldValue reads one custom field. ok is false when the record
	// has no value for the field.
	GetCustomFieldValue(ctx context.Context, id, fieldName string) (value interface{}, ok bool, err error)

	// SetCustomFieldValue writes one custom field.
	SetCustomFieldValue(ctx context.Context, id, fieldName string, value interface{}) error

	// ClearCustomFieldValue removes a custom field from the record entirely.
	ClearCustomFieldValue(ctx context.Context, id, fieldName string) error

	// FindFieldMetadataByName resolves a field name to its metadata.
	// Returns (nil, nil) when the field does not exist.
	FindFieldMetadataByName(ctx context.Context, name string) (*models.FieldMetadata, error)

	// ListCustomFields returns metadata for every custom field in the org.
	ListCustomFields(ctx context.Context) ([]models.FieldMetadata, error)
}
