// Package migration implements the field-migration engine: mapping
// validation, usage discovery, conflict analysis, and multi-strategy bulk
// execution of migration plans against a remote record store.
package migration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rflorenc/field-migration-workbench/internal/fields"
	"github.com/rflorenc/field-migration-workbench/internal/models"
	"github.com/rflorenc/field-migration-workbench/internal/store"
)

// Bulk execution strategies.
const (
	StrategyAuto     = "auto"
	StrategyBatched  = "batched"  // fetch once, apply in memory, write once
	StrategyParallel = "parallel" // per-record worker pool
	StrategyHybrid   = "hybrid"   // parallel sub-batches of the batched driver
)

const (
	parallelWorkerCap = 10
	hybridWorkerCap   = 5
	batchChunkSize    = 50
)

// Engine executes migration plans. One Engine serves one record-store
// connection; it is safe for concurrent use.
type Engine struct {
	store  store.RecordStore
	fields *fields.Accessor
	log    zerolog.Logger
}

// NewEngine creates an Engine over a record store and its field accessor.
func NewEngine(rs store.RecordStore, acc *fields.Accessor, log zerolog.Logger) *Engine {
	return &Engine{store: rs, fields: acc, log: log.With().Str("component", "engine").Logger()}
}

// outcomeStatus classifies one (record, mapping) unit of work.
type outcomeStatus int

const (
	outcomeSuccess outcomeStatus = iota
	outcomeSkipped
	outcomeFailed
)

// mappingOutcome is the result of running one mapping against one record.
type mappingOutcome struct {
	status     outcomeStatus
	roundTrips int
	err        error
	warning    string
}

// collector aggregates per-record outcomes across workers. Append-only
// lists and additive counters behind one short-held mutex.
type collector struct {
	mu         sync.Mutex
	result     models.Result
	roundTrips int
}

// recordDone folds one record's mapping outcomes into the totals. A record
// fails if any mapping failed, is skipped if every mapping skipped, and is
// successful otherwise.
func (c *collector) recordDone(recordID string, outcomes []mappingOutcome, mappings []models.Mapping) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.result.TotalResources++
	failed, succeeded := false, false
	for i, o := range outcomes {
		c.roundTrips += o.roundTrips
		switch o.status {
		case outcomeFailed:
			failed = true
			c.result.Errors = append(c.result.Errors, fmt.Sprintf("record %s, mapping %s → %s: %v",
				recordID, mappings[i].SourceField, mappings[i].TargetField, o.err))
		case outcomeSuccess:
			succeeded = true
		}
		if o.warning != "" {
			c.result.Warnings = append(c.result.Warnings, fmt.Sprintf("record %s: %s", recordID, o.warning))
		}
	}

	switch {
	case failed:
		c.result.Failed++
	case succeeded:
		c.result.Successful++
	default:
		c.result.Skipped++
	}
}

// recordFailed marks a whole record failed with a single error, used when a
// bulk fetch or bulk write covering every mapping fails.
func (c *collector) recordFailed(recordID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.TotalResources++
	c.result.Failed++
	c.result.Errors = append(c.result.Errors, fmt.Sprintf("record %s: %v", recordID, err))
}

func (c *collector) addWarning(w string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.Warnings = append(c.result.Warnings, w)
}

func (c *collector) addRoundTrips(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roundTrips += n
}

// Execute runs a plan with the named bulk strategy ("auto" picks one from
// record and mapping counts) and returns the aggregated result. The result
// is partial but never nil when ctx is cancelled mid-run.
func (e *Engine) Execute(ctx context.Context, plan *models.Plan, strategyName string, logger func(string)) (*models.Result, error) {
	if logger == nil {
		logger = func(string) {}
	}
	switch strategyName {
	case "", StrategyAuto, StrategyBatched, StrategyParallel, StrategyHybrid:
	default:
		return nil, fmt.Errorf("unknown execution strategy %q", strategyName)
	}
	if plan.CleanupOnly {
		// Cleanup clears sources by definition; a preserve_source mapping in
		// a cleanup-only plan is a contradiction, not a request.
		for _, m := range plan.Mappings {
			if m.PreserveSource {
				return nil, fmt.Errorf("cleanup-only plan: mapping %s → %s sets preserve_source", m.SourceField, m.TargetField)
			}
		}
	}

	col := &collector{}

	ids, err := e.resolveTargets(ctx, plan, col)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		logger("No records to migrate.")
		return &col.result, nil
	}

	if strategyName == "" || strategyName == StrategyAuto {
		strategyName = selectStrategy(len(ids), len(plan.Mappings))
	}
	mode := "live"
	if plan.DryRun {
		mode = "dry-run"
	}
	logger(fmt.Sprintf("Executing %s (%s driver, %s): %d record(s), %d mapping(s)",
		mode, strategyName, plan.Summary(), len(ids), len(plan.Mappings)))
	e.log.Info().Str("driver", strategyName).Int("records", len(ids)).
		Int("mappings", len(plan.Mappings)).Bool("dry_run", plan.DryRun).Msg("plan execution started")

	start := time.Now()
	switch strategyName {
	case StrategyBatched:
		e.runBatched(ctx, plan, ids, logger, col)
	case StrategyParallel:
		e.runParallel(ctx, plan, ids, logger, col)
	case StrategyHybrid:
		e.runHybrid(ctx, plan, ids, logger, col)
	}
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		col.addWarning("execution cancelled: remaining records were not processed")
	}

	res := &col.result
	res.Detailed = &models.ExecutionDetails{
		Strategy:   strategyName,
		RoundTrips: col.roundTrips,
		Duration:   elapsed,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		res.Detailed.RecordsPerSec = float64(res.TotalResources) / secs
		res.Detailed.CallsPerSec = float64(col.roundTrips) / secs
	}

	logger(fmt.Sprintf("Done: %d successful, %d failed, %d skipped (%d round trips in %s)",
		res.Successful, res.Failed, res.Skipped, col.roundTrips, elapsed.Round(time.Millisecond)))
	return res, nil
}

// selectStrategy picks a bulk driver from the workload shape.
func selectStrategy(records, mappings int) string {
	switch {
	case records < 10:
		return StrategyParallel
	case records >= 100 && mappings > 5:
		return StrategyHybrid
	case records >= 50:
		return StrategyBatched
	default:
		return StrategyParallel
	}
}

// resolveTargets returns the record IDs a plan applies to. Explicit
// ResourceIDs take precedence; otherwise ResourceFilter ("field" for
// NOT_BLANK, "field=value" for equality) is resolved through one search.
func (e *Engine) resolveTargets(ctx context.Context, plan *models.Plan, col *collector) ([]string, error) {
	if len(plan.ResourceIDs) > 0 {
		return plan.ResourceIDs, nil
	}
	if plan.ResourceFilter == "" {
		return nil, nil
	}

	q := store.Query{Operator: store.OpNotBlank, OutputFields: []string{"id"}}
	if field, value, found := strings.Cut(plan.ResourceFilter, "="); found {
		q.Field, q.Operator, q.Value = field, store.OpEqual, value
	} else {
		q.Field = plan.ResourceFilter
	}

	records, err := e.store.Search(ctx, q)
	col.addRoundTrips(1)
	if err != nil {
		return nil, fmt.Errorf("resolving resource filter %q: %w", plan.ResourceFilter, err)
	}
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if id := rec.ID(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// runMapping drives the per-(record, mapping) state machine using individual
// field calls: fetch source, skip if blank, transform, validate, apply the
// strategy, optionally clear the source. Used by the parallel driver.
func (e *Engine) runMapping(ctx context.Context, recordID string, m models.Mapping, plan *models.Plan) mappingOutcome {
	out := mappingOutcome{}
	if ctx.Err() != nil {
		out.status = outcomeSkipped
		return out
	}

	// FetchSource
	src, err := e.fields.GetValue(ctx, recordID, m.SourceField)
	out.roundTrips++
	if err != nil {
		out.status = outcomeFailed
		out.err = err
		return out
	}
	if src.IsEmpty() {
		out.status = outcomeSkipped
		return out
	}

	if plan.CleanupOnly {
		return e.cleanupSource(ctx, recordID, m, plan, out)
	}

	// Transform
	value := src.Value
	if m.Transform != nil {
		transformed, ok := m.Transform(value)
		if !ok {
			out.status = outcomeSkipped
			return out
		}
		value = transformed
	} else if m.Strategy == models.StrategyTransform {
		out.status = outcomeFailed
		out.err = fmt.Errorf("transform strategy requires a transform function")
		return out
	}

	// ValidateTarget
	if m.ValidationRequired {
		if err := e.fields.ValidateValue(ctx, m.TargetField, value); err != nil {
			out.status = outcomeSkipped
			out.warning = fmt.Sprintf("mapping %s → %s skipped: %v", m.SourceField, m.TargetField, err)
			return out
		}
	}

	// Read the target when the strategy or the smart pre-check needs it.
	var current interface{}
	if plan.SmartMigration || needsCurrent(m.Strategy) {
		tgt, err := e.fields.GetValue(ctx, recordID, m.TargetField)
		out.roundTrips++
		if err != nil {
			out.status = outcomeFailed
			out.err = err
			return out
		}
		current = tgt.Value
	}

	// ApplyStrategy
	app, err := applyStrategy(m.Strategy, current, value)
	if err != nil {
		out.status = outcomeFailed
		out.err = err
		return out
	}
	if plan.SmartMigration && sameValue(current, app.next) {
		app.write = false // target already holds the exact value
	}

	if app.write {
		if ctx.Err() != nil {
			out.status = outcomeSkipped
			return out
		}
		if !plan.DryRun {
			if err := e.fields.SetValue(ctx, recordID, m.TargetField, app.next, m.ValidationRequired); err != nil {
				out.status = outcomeFailed
				out.err = err
				return out
			}
			out.roundTrips++
		}
	}

	// ClearSource after a successful or already-satisfied write.
	if !m.PreserveSource && !plan.DryRun {
		if err := e.fields.ClearValue(ctx, recordID, m.SourceField); err != nil {
			out.warning = fmt.Sprintf("migrated %s → %s but clearing source failed: %v", m.SourceField, m.TargetField, err)
		}
		out.roundTrips++
	}

	out.status = outcomeSuccess
	return out
}

// cleanupSource handles cleanup-only plans: the source value exists and is
// cleared without any migration (and without the smart-check read).
func (e *Engine) cleanupSource(ctx context.Context, recordID string, m models.Mapping, plan *models.Plan, out mappingOutcome) mappingOutcome {
	if plan.DryRun {
		out.status = outcomeSuccess
		return out
	}
	if ctx.Err() != nil {
		out.status = outcomeSkipped
		return out
	}
	if err := e.fields.ClearValue(ctx, recordID, m.SourceField); err != nil {
		out.status = outcomeFailed
		out.err = err
		return out
	}
	out.roundTrips++
	out.status = outcomeSuccess
	return out
}

// needsCurrent reports whether a strategy reads the target before writing.
func needsCurrent(s models.Strategy) bool {
	switch s {
	case models.StrategyCopyIfEmpty, models.StrategyAddOption, models.StrategyMerge:
		return true
	}
	return false
}
