package migration

import (
	"context"
	"fmt"
	"sync"

	"github.com/rflorenc/field-migration-workbench/internal/models"
)

// runBatched is the batched-fetch-then-write driver: per record, one bulk
// fetch, every mapping applied in memory against the snapshot, then at most
// one bulk write. Round trips stay at ~2 per record regardless of mapping
// count. Records are processed in chunks to bound memory.
func (e *Engine) runBatched(ctx context.Context, plan *models.Plan, ids []string, logger func(string), col *collector) {
	chunk := plan.BatchSize
	if chunk <= 0 || chunk > batchChunkSize {
		chunk = batchChunkSize
	}
	for start := 0; start < len(ids); start += chunk {
		if ctx.Err() != nil {
			return
		}
		end := start + chunk
		if end > len(ids) {
			end = len(ids)
		}
		logger(fmt.Sprintf("  batch %d-%d of %d", start+1, end, len(ids)))
		for _, id := range ids[start:end] {
			if ctx.Err() != nil {
				return
			}
			e.processRecordBatched(ctx, plan, id, col)
		}
	}
}

// runParallel processes records concurrently, each running the full
// per-mapping state machine with individual field calls. Best for small
// record counts where fetch/write coalescing gains little.
func (e *Engine) runParallel(ctx context.Context, plan *models.Plan, ids []string, logger func(string), col *collector) {
	workers := plan.MaxWorkers
	if workers <= 0 || workers > parallelWorkerCap {
		workers = parallelWorkerCap
	}
	if workers > len(ids) {
		workers = len(ids)
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if ctx.Err() != nil {
					// Queued work stops advancing once cancelled.
					continue
				}
				outcomes := make([]mappingOutcome, len(plan.Mappings))
				for i, m := range plan.Mappings {
					outcomes[i] = e.runMapping(ctx, id, m, plan)
				}
				col.recordDone(id, outcomes, plan.Mappings)
			}
		}()
	}
	for _, id := range ids {
		jobs <- id
	}
	close(jobs)
	wg.Wait()
}

// runHybrid partitions the IDs into sub-batches, runs the batched driver per
// sub-batch, and runs the sub-batches themselves in parallel. Used when both
// record count and mapping count are large.
func (e *Engine) runHybrid(ctx context.Context, plan *models.Plan, ids []string, logger func(string), col *collector) {
	chunk := plan.BatchSize
	if chunk <= 0 || chunk > batchChunkSize {
		chunk = batchChunkSize
	}
	var batches [][]string
	for start := 0; start < len(ids); start += chunk {
		end := start + chunk
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}

	workers := hybridWorkerCap
	if workers > len(batches) {
		workers = len(batches)
	}
	jobs := make(chan []string)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range jobs {
				for _, id := range batch {
					if ctx.Err() != nil {
						break
					}
					e.processRecordBatched(ctx, plan, id, col)
				}
			}
		}()
	}
	logger(fmt.Sprintf("  %d sub-batches across %d workers", len(batches), workers))
	for _, b := range batches {
		jobs <- b
	}
	close(jobs)
	wg.Wait()
}

// processRecordBatched applies every mapping to one record entirely in
// memory against a single fetched snapshot, then issues at most one write.
// Mappings run in plan order, so a later mapping observes an earlier
// mapping's pending effect.
func (e *Engine) processRecordBatched(ctx context.Context, plan *models.Plan, recordID string, col *collector) {
	fieldSet := planFields(plan)

	snapshot, rt, err := e.fields.BulkGetValues(ctx, recordID, fieldSet)
	col.addRoundTrips(rt)
	if err != nil {
		col.recordFailed(recordID, err)
		return
	}

	// Working view of field values, mutated as mappings apply.
	local := make(map[string]interface{}, len(snapshot))
	for name, fv := range snapshot {
		local[name] = fv.Value
	}

	updates := make(map[string]interface{})
	outcomes := make([]mappingOutcome, len(plan.Mappings))
	for i, m := range plan.Mappings {
		outcomes[i] = e.applyInMemory(ctx, m, plan, local, updates)
	}

	if !plan.DryRun && len(updates) > 0 && ctx.Err() == nil {
		wrt, err := e.fields.BulkSetValues(ctx, recordID, updates)
		col.addRoundTrips(wrt)
		if err != nil {
			// One write covers every mapping; its failure fails the record.
			col.recordFailed(recordID, err)
			return
		}
	}

	col.recordDone(recordID, outcomes, plan.Mappings)
}

// applyInMemory runs one mapping's state machine against the in-memory view,
// accumulating field updates (nil means clear) instead of issuing calls.
func (e *Engine) applyInMemory(ctx context.Context, m models.Mapping, plan *models.Plan, local, updates map[string]interface{}) mappingOutcome {
	out := mappingOutcome{}

	value, ok := local[m.SourceField]
	if !ok || models.IsEmptyValue(value) {
		out.status = outcomeSkipped
		return out
	}

	if plan.CleanupOnly {
		local[m.SourceField] = nil
		if !plan.DryRun {
			updates[m.SourceField] = nil
		}
		out.status = outcomeSuccess
		return out
	}

	if m.Transform != nil {
		transformed, keep := m.Transform(value)
		if !keep {
			out.status = outcomeSkipped
			return out
		}
		value = transformed
	} else if m.Strategy == models.StrategyTransform {
		out.status = outcomeFailed
		out.err = fmt.Errorf("transform strategy requires a transform function")
		return out
	}

	if m.ValidationRequired {
		if err := e.fields.ValidateValue(ctx, m.TargetField, value); err != nil {
			out.status = outcomeSkipped
			out.warning = fmt.Sprintf("mapping %s → %s skipped: %v", m.SourceField, m.TargetField, err)
			return out
		}
	}

	current := local[m.TargetField]
	app, err := applyStrategy(m.Strategy, current, value)
	if err != nil {
		out.status = outcomeFailed
		out.err = err
		return out
	}
	if plan.SmartMigration && sameValue(current, app.next) {
		app.write = false
	}

	if app.write {
		local[m.TargetField] = app.next
		if !plan.DryRun {
			updates[m.TargetField] = app.next
		}
	}
	if !m.PreserveSource {
		local[m.SourceField] = nil
		if !plan.DryRun {
			updates[m.SourceField] = nil
		}
	}

	out.status = outcomeSuccess
	return out
}

// planFields returns the union of source and target fields, in plan order.
func planFields(plan *models.Plan) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range plan.Mappings {
		for _, name := range []string{m.SourceField, m.TargetField} {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}
