package migration

import (
	"context"

	"github.com/rflorenc/field-migration-workbench/internal/models"
	"github.com/rflorenc/field-migration-workbench/internal/store"
)

// collisionSampleSize bounds how many records one mapping samples while
// looking for value collisions.
const collisionSampleSize = 25

// AnalyzeConflicts inspects a plan against the live schema and a sample of
// live data before any mutation: field-existence gaps, type-mismatch pairs,
// and records where source and target already hold different values.
func (e *Engine) AnalyzeConflicts(ctx context.Context, plan *models.Plan) (*models.ConflictReport, error) {
	report := &models.ConflictReport{}
	metas := make(map[string]*models.FieldMetadata)

	for _, m := range plan.Mappings {
		for _, name := range []string{m.SourceField, m.TargetField} {
			if _, seen := metas[name]; seen {
				continue
			}
			meta, err := e.fields.Metadata(ctx, name)
			if err != nil {
				return nil, err
			}
			metas[name] = meta
			if meta == nil {
				report.MissingFields = append(report.MissingFields, name)
			}
		}
	}

	for _, m := range plan.Mappings {
		srcMeta, tgtMeta := metas[m.SourceField], metas[m.TargetField]
		if srcMeta == nil || tgtMeta == nil {
			continue
		}
		if !typesCompatible(srcMeta.DataType, tgtMeta.DataType) {
			report.TypeMismatches = append(report.TypeMismatches, models.TypeMismatch{
				SourceField: m.SourceField,
				SourceType:  srcMeta.DataType,
				TargetField: m.TargetField,
				TargetType:  tgtMeta.DataType,
			})
		}

		collisions, err := e.sampleCollisions(ctx, m)
		if err != nil {
			// Sampling is advisory; a failed probe does not sink the report.
			e.log.Warn().Str("source", m.SourceField).Err(err).Msg("collision sampling failed")
			continue
		}
		report.Collisions = append(report.Collisions, collisions...)
	}

	return report, nil
}

// sampleCollisions searches records holding a source value and reports those
// whose target already holds a different non-empty value.
func (e *Engine) sampleCollisions(ctx context.Context, m models.Mapping) ([]models.ValueCollision, error) {
	records, err := e.store.Search(ctx, store.Query{
		Field:        m.SourceField,
		Operator:     store.OpNotBlank,
		OutputFields: []string{"id", m.SourceField, m.TargetField},
		Limit:        collisionSampleSize,
	})
	if err != nil {
		return nil, err
	}

	var collisions []models.ValueCollision
	for _, rec := range records {
		srcVal, tgtVal := rec[m.SourceField], rec[m.TargetField]
		if models.IsEmptyValue(srcVal) || models.IsEmptyValue(tgtVal) {
			continue
		}
		if sameValue(srcVal, tgtVal) {
			continue
		}
		collisions = append(collisions, models.ValueCollision{
			ResourceID:  rec.ID(),
			SourceField: m.SourceField,
			TargetField: m.TargetField,
			SourceValue: srcVal,
			TargetValue: tgtVal,
		})
	}
	return collisions, nil
}
