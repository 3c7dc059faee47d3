package store

import (
	"context"
	"sync"

	"github.com/rflorenc/field-migration-workbench/internal/models"
)

// Memory is an in-process RecordStore used by tests and the -demo mode.
// It mirrors the remote store's semantics: standard fields live on the
// record map, custom fields in a separate per-record map, and every call
// increments a round-trip counter so callers can assert call budgets.
type Memory struct {
	mu      sync.Mutex
	records map[string]models.Record
	custom  map[string]map[string]interface{} // record ID → field name → value
	fields  map[string]models.FieldMetadata
	calls   int

	// FailPatch, when set, makes Patch fail for the given record IDs.
	FailPatch map[string]error
}

// NewMemory creates an empty in-memory record store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]models.Record),
		custom:  make(map[string]map[string]interface{}),
		fields:  make(map[string]models.FieldMetadata),
	}
}

// AddField registers field metadata.
func (m *Memory) AddField(f models.FieldMetadata) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fields[f.Name] = f
}

// AddRecord stores a record with the given standard fields.
func (m *Memory) AddRecord(id string, fields map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := models.Record{"id": id}
	for k, v := range fields {
		rec[k] = v
	}
	m.records[id] = rec
}

// SetCustom seeds a custom-field value without counting a round trip.
func (m *Memory) SetCustom(id, fieldName string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.custom[id] == nil {
		m.custom[id] = make(map[string]interface{})
	}
	m.custom[id][fieldName] = value
}

// Calls returns the number of store calls made so far.
func (m *Memory) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// ResetCalls zeroes the round-trip counter.
func (m *Memory) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = 0
}

// StandardValue reads a standard field directly, for test assertions.
func (m *Memory) StandardValue(id, fieldName string) interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil
	}
	return rec[fieldName]
}

// CustomValue reads a custom field directly, for test assertions.
func (m *Memory) CustomValue(id, fieldName string) (interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.custom[id][fieldName]
	return v, ok
}

// Get fetches one record by ID.
func (m *Memory) Get(ctx context.Context, id string) (models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	// Copy so callers cannot mutate the stored record.
	out := make(models.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out, nil
}

// Search matches records against the query predicate.
func (m *Memory) Search(ctx context.Context, q Query) ([]models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	var results []models.Record
	for id, rec := range m.records {
		value := rec[q.Field]
		if v, ok := m.custom[id][q.Field]; ok {
			value = v
		}
		if !matches(q, value) {
			continue
		}
		out := models.Record{"id": id}
		if len(q.OutputFields) > 0 {
			for _, f := range q.OutputFields {
				if v, ok := m.custom[id][f]; ok {
					out[f] = v
				} else if v, ok := rec[f]; ok {
					out[f] = v
				}
			}
		} else {
			for k, v := range rec {
				out[k] = v
			}
		}
		results = append(results, out)
		if q.Limit > 0 && len(results) >= q.Limit {
			break
		}
	}
	return results, nil
}

func matches(q Query, value interface{}) bool {
	switch q.Operator {
	case OpNotBlank:
		return !models.IsEmptyValue(value)
	case OpBlank:
		return models.IsEmptyValue(value)
	case OpEqual:
		s, ok := value.(string)
		return ok && s == q.Value
	}
	return false
}

// Patch partially updates a record's standard fields. A nil field value
// removes the field from the record.
func (m *Memory) Patch(ctx context.Context, id string, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := m.FailPatch[id]; err != nil {
		return err
	}
	rec, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range fields {
		if v == nil {
			delete(rec, k)
			continue
		}
		rec[k] = v
	}
	return nil
}

// GetCustomFieldValue reads one custom field.
func (m *Memory) GetCustomFieldValue(ctx context.Context, id, fieldName string) (interface{}, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	v, ok := m.custom[id][fieldName]
	return v, ok, nil
}

// SetCustomFieldValue writes one custom field.
func (m *Memory) SetCustomFieldValue(ctx context.Context, id, fieldName string, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.custom[id] == nil {
		m.custom[id] = make(map[string]interface{})
	}
	m.custom[id][fieldName] = value
	return nil
}

// ClearCustomFieldValue removes a custom field from the record entirely.
func (m *Memory) ClearCustomFieldValue(ctx context.Context, id, fieldName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	delete(m.custom[id], fieldName)
	return nil
}

// FindFieldMetadataByName resolves a field name to its metadata.
func (m *Memory) FindFieldMetadataByName(ctx context.Context, name string) (*models.FieldMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	f, ok := m.fields[name]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

// ListCustomFields returns metadata for every custom field.
func (m *Memory) ListCustomFields(ctx context.Context) ([]models.FieldMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	var out []models.FieldMetadata
	for _, f := range m.fields {
		if f.Kind == models.KindCustom {
			out = append(out, f)
		}
	}
	return out, nil
}
