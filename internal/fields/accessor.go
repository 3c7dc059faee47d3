// Package fields provides uniform access to named fields on records,
// hiding whether a field is a standard attribute (whole-record fetch/patch)
// or a custom attribute (dedicated get/set/clear calls).
package fields

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rflorenc/field-migration-workbench/internal/models"
	"github.com/rflorenc/field-migration-workbench/internal/store"
)

// FieldError describes a failed field operation on a record.
type FieldError struct {
	RecordID  string
	FieldName string
	Op        string // "get", "set", "clear"
	Err       error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %q on record %s: %v", e.Op, e.FieldName, e.RecordID, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// cachedMeta is one metadata cache entry. meta is nil for a field the store
// does not know, so repeated lookups of a missing field stay cheap.
type cachedMeta struct {
	meta      *models.FieldMetadata
	fetchedAt time.Time
}

// Accessor routes field reads and writes to the record store. Metadata is
// cached by name; the cache is read-mostly and guarded by a RWMutex.
type Accessor struct {
	store store.RecordStore
	ttl   time.Duration
	log   zerolog.Logger

	mu    sync.RWMutex
	cache map[string]cachedMeta
}

// NewAccessor creates an Accessor over a record store. ttl bounds how long
// metadata entries are trusted; zero means one hour.
func NewAccessor(rs store.RecordStore, ttl time.Duration, log zerolog.Logger) *Accessor {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Accessor{
		store: rs,
		ttl:   ttl,
		log:   log.With().Str("component", "fields").Logger(),
		cache: make(map[string]cachedMeta),
	}
}

// Metadata resolves a field name to its metadata, consulting the cache first.
// Returns (nil, nil) for a field the store does not know.
func (a *Accessor) Metadata(ctx context.Context, name string) (*models.FieldMetadata, error) {
	a.mu.RLock()
	entry, ok := a.cache[name]
	a.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < a.ttl {
		return entry.meta, nil
	}

	meta, err := a.store.FindFieldMetadataByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("resolving field %q: %w", name, err)
	}
	a.log.Debug().Str("field", name).Bool("found", meta != nil).Msg("field metadata fetched")
	a.mu.Lock()
	a.cache[name] = cachedMeta{meta: meta, fetchedAt: time.Now()}
	a.mu.Unlock()
	return meta, nil
}

// GetValue fetches one field of one record. The returned FieldValue has a
// nil Value when the record holds nothing for the field.
func (a *Accessor) GetValue(ctx context.Context, recordID, fieldName string) (*models.FieldValue, error) {
	meta, err := a.Metadata(ctx, fieldName)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, &FieldError{RecordID: recordID, FieldName: fieldName, Op: "get", Err: fmt.Errorf("field does not exist")}
	}

	if meta.Kind == models.KindCustom {
		raw, ok, err := a.store.GetCustomFieldValue(ctx, recordID, fieldName)
		if err != nil {
			return nil, &FieldError{RecordID: recordID, FieldName: fieldName, Op: "get", Err: err}
		}
		if !ok {
			return &models.FieldValue{FieldName: fieldName, Kind: meta.Kind}, nil
		}
		return normalize(meta, raw), nil
	}

	rec, err := a.store.Get(ctx, recordID)
	if err != nil {
		return nil, &FieldError{RecordID: recordID, FieldName: fieldName, Op: "get", Err: err}
	}
	return valueFromRecord(meta, rec), nil
}

// SetValue writes one field of one record. With validate set, the value is
// checked against the field's metadata before any call is made.
func (a *Accessor) SetValue(ctx context.Context, recordID, fieldName string, value interface{}, validate bool) error {
	meta, err := a.Metadata(ctx, fieldName)
	if err != nil {
		return err
	}
	if meta == nil {
		return &FieldError{RecordID: recordID, FieldName: fieldName, Op: "set", Err: fmt.Errorf("field does not exist")}
	}
	if validate {
		if err := validateValue(meta, value); err != nil {
			return &FieldError{RecordID: recordID, FieldName: fieldName, Op: "set", Err: err}
		}
	}

	if meta.Kind == models.KindCustom {
		if err := a.store.SetCustomFieldValue(ctx, recordID, fieldName, value); err != nil {
			return &FieldError{RecordID: recordID, FieldName: fieldName, Op: "set", Err: err}
		}
		return nil
	}
	if err := a.store.Patch(ctx, recordID, map[string]interface{}{fieldName: value}); err != nil {
		return &FieldError{RecordID: recordID, FieldName: fieldName, Op: "set", Err: err}
	}
	return nil
}

// ClearValue removes a field's value from a record. Multi-value fields are
// removed from the record entirely rather than written as an empty value,
// matching how the owning store clears them.
func (a *Accessor) ClearValue(ctx context.Context, recordID, fieldName string) error {
	meta, err := a.Metadata(ctx, fieldName)
	if err != nil {
		return err
	}
	if meta == nil {
		return &FieldError{RecordID: recordID, FieldName: fieldName, Op: "clear", Err: fmt.Errorf("field does not exist")}
	}

	if meta.Kind == models.KindCustom {
		if err := a.store.ClearCustomFieldValue(ctx, recordID, fieldName); err != nil {
			return &FieldError{RecordID: recordID, FieldName: fieldName, Op: "clear", Err: err}
		}
		return nil
	}
	if err := a.store.Patch(ctx, recordID, map[string]interface{}{fieldName: clearPatchValue(meta)}); err != nil {
		return &FieldError{RecordID: recordID, FieldName: fieldName, Op: "clear", Err: err}
	}
	return nil
}

// ValidateValue checks a candidate value against a field's metadata without
// touching the record. Returns nil when the write would be accepted.
func (a *Accessor) ValidateValue(ctx context.Context, fieldName string, value interface{}) error {
	meta, err := a.Metadata(ctx, fieldName)
	if err != nil {
		return err
	}
	if meta == nil {
		return &FieldError{FieldName: fieldName, Op: "set", Err: fmt.Errorf("field does not exist")}
	}
	if err := validateValue(meta, value); err != nil {
		return &FieldError{FieldName: fieldName, Op: "set", Err: err}
	}
	return nil
}

// BulkGetValues fetches several fields of one record, coalescing all standard
// fields into a single record fetch plus one call per custom field. The
// returned count is the number of store round trips made.
func (a *Accessor) BulkGetValues(ctx context.Context, recordID string, fieldNames []string) (map[string]*models.FieldValue, int, error) {
	standard, custom, err := a.partition(ctx, fieldNames)
	if err != nil {
		return nil, 0, err
	}

	values := make(map[string]*models.FieldValue, len(fieldNames))
	roundTrips := 0

	if len(standard) > 0 {
		rec, err := a.store.Get(ctx, recordID)
		roundTrips++
		if err != nil {
			return nil, roundTrips, &FieldError{RecordID: recordID, FieldName: standard[0].Name, Op: "get", Err: err}
		}
		for _, meta := range standard {
			values[meta.Name] = valueFromRecord(meta, rec)
		}
	}

	for _, meta := range custom {
		raw, ok, err := a.store.GetCustomFieldValue(ctx, recordID, meta.Name)
		roundTrips++
		if err != nil {
			return nil, roundTrips, &FieldError{RecordID: recordID, FieldName: meta.Name, Op: "get", Err: err}
		}
		if !ok {
			values[meta.Name] = &models.FieldValue{FieldName: meta.Name, Kind: meta.Kind}
			continue
		}
		values[meta.Name] = normalize(meta, raw)
	}

	return values, roundTrips, nil
}

// BulkSetValues applies several field updates to one record. A nil update
// value clears the field. All standard-field updates coalesce into a single
// patch; each custom field costs one call. Returns the round-trip count.
func (a *Accessor) BulkSetValues(ctx context.Context, recordID string, updates map[string]interface{}) (int, error) {
	patch := make(map[string]interface{})
	roundTrips := 0

	type customOp struct {
		meta  *models.FieldMetadata
		value interface{}
	}
	var customOps []customOp

	for name, value := range updates {
		meta, err := a.Metadata(ctx, name)
		if err != nil {
			return roundTrips, err
		}
		if meta == nil {
			return roundTrips, &FieldError{RecordID: recordID, FieldName: name, Op: "set", Err: fmt.Errorf("field does not exist")}
		}
		if meta.Kind == models.KindCustom {
			customOps = append(customOps, customOp{meta: meta, value: value})
			continue
		}
		if value == nil {
			patch[name] = clearPatchValue(meta)
		} else {
			patch[name] = value
		}
	}

	if len(patch) > 0 {
		roundTrips++
		if err := a.store.Patch(ctx, recordID, patch); err != nil {
			return roundTrips, &FieldError{RecordID: recordID, FieldName: firstKey(patch), Op: "set", Err: err}
		}
	}
	for _, op := range customOps {
		roundTrips++
		if op.value == nil {
			if err := a.store.ClearCustomFieldValue(ctx, recordID, op.meta.Name); err != nil {
				return roundTrips, &FieldError{RecordID: recordID, FieldName: op.meta.Name, Op: "clear", Err: err}
			}
			continue
		}
		if err := a.store.SetCustomFieldValue(ctx, recordID, op.meta.Name, op.value); err != nil {
			return roundTrips, &FieldError{RecordID: recordID, FieldName: op.meta.Name, Op: "set", Err: err}
		}
	}

	return roundTrips, nil
}

// partition resolves names and splits them into standard and custom groups.
func (a *Accessor) partition(ctx context.Context, fieldNames []string) (standard, custom []*models.FieldMetadata, err error) {
	for _, name := range fieldNames {
		meta, err := a.Metadata(ctx, name)
		if err != nil {
			return nil, nil, err
		}
		if meta == nil {
			return nil, nil, &FieldError{FieldName: name, Op: "get", Err: fmt.Errorf("field does not exist")}
		}
		if meta.Kind == models.KindCustom {
			custom = append(custom, meta)
		} else {
			standard = append(standard, meta)
		}
	}
	return standard, custom, nil
}

// clearPatchValue is what a patch writes to clear a standard field: null
// removes a multi-value field from the record, "" blanks a single-value one.
func clearPatchValue(meta *models.FieldMetadata) interface{} {
	if meta.MultiValue {
		return nil
	}
	return ""
}

// valueFromRecord extracts and normalizes a standard field from a fetched record.
func valueFromRecord(meta *models.FieldMetadata, rec models.Record) *models.FieldValue {
	raw, ok := rec[meta.Name]
	if !ok || raw == nil {
		return &models.FieldValue{FieldName: meta.Name, Kind: meta.Kind}
	}
	return normalize(meta, raw)
}

// normalize converts a raw store value into the canonical FieldValue form:
// a scalar, or an ordered list of scalars for multi-value fields. The store
// serializes multi-value fields as "|"-delimited strings.
func normalize(meta *models.FieldMetadata, raw interface{}) *models.FieldValue {
	fv := &models.FieldValue{FieldName: meta.Name, Kind: meta.Kind, Raw: raw}
	if !meta.MultiValue {
		fv.Value = raw
		return fv
	}
	switch v := raw.(type) {
	case []interface{}:
		fv.Value = v
	case string:
		var list []interface{}
		for _, part := range strings.Split(v, "|") {
			if part = strings.TrimSpace(part); part != "" {
				list = append(list, part)
			}
		}
		fv.Value = list
	default:
		fv.Value = []interface{}{raw}
	}
	return fv
}

// validateValue checks a value against field metadata before writing.
func validateValue(meta *models.FieldMetadata, value interface{}) error {
	if meta.Required && models.IsEmptyValue(value) {
		return fmt.Errorf("field is required, refusing to write an empty value")
	}
	if _, isList := value.([]interface{}); isList && !meta.MultiValue {
		return fmt.Errorf("field is single-value, got a list")
	}
	return nil
}

func firstKey(m map[string]interface{}) string {
	for k := range m {
		return k
	}
	return ""
}
