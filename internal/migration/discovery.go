package migration

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rflorenc/field-migration-workbench/internal/models"
	"github.com/rflorenc/field-migration-workbench/internal/store"
)

const (
	// discoveryWorkers bounds the per-field probe pool.
	discoveryWorkers = 5
	// sequentialThreshold: at or below this many fields, probing runs
	// sequentially; the pool gains nothing.
	sequentialThreshold = 3
	// maxSampleSize caps how many records one probe may pull.
	maxSampleSize = 200
	// sampleValuesKept bounds the sample values retained per field.
	sampleValuesKept = 10
)

// Discoverer finds which fields currently hold values, using targeted
// NOT_BLANK searches instead of full-table scans.
type Discoverer struct {
	store store.RecordStore
	log   zerolog.Logger
}

// NewDiscoverer creates a Discoverer over a record store.
func NewDiscoverer(rs store.RecordStore, log zerolog.Logger) *Discoverer {
	return &Discoverer{store: rs, log: log.With().Str("component", "discovery").Logger()}
}

// Discover probes each candidate field for non-empty values and proposes
// consolidation opportunities from naming patterns. Fields are probed
// concurrently when more than sequentialThreshold are requested.
func (d *Discoverer) Discover(ctx context.Context, fieldNames []string, sampleSize int, logger func(string)) (*models.DiscoveryReport, error) {
	if sampleSize <= 0 || sampleSize > maxSampleSize {
		sampleSize = maxSampleSize
	}

	usages := make([]models.FieldUsage, len(fieldNames))

	if len(fieldNames) > sequentialThreshold {
		jobs := make(chan int)
		var wg sync.WaitGroup
		for w := 0; w < discoveryWorkers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range jobs {
					usages[i] = d.probeField(ctx, fieldNames[i], sampleSize)
				}
			}()
		}
		for i := range fieldNames {
			jobs <- i
		}
		close(jobs)
		wg.Wait()
	} else {
		for i, name := range fieldNames {
			usages[i] = d.probeField(ctx, name, sampleSize)
		}
	}

	report := &models.DiscoveryReport{Fields: usages}
	for _, u := range usages {
		if u.Count > report.TotalRecords {
			report.TotalRecords = u.Count
		}
		if logger != nil {
			if u.Error != "" {
				logger(fmt.Sprintf("  %s: probe failed: %s", u.FieldName, u.Error))
			} else {
				logger(fmt.Sprintf("  %s: %d record(s), types %v", u.FieldName, u.Count, u.ValueTypes))
			}
		}
	}

	report.Opportunities = proposeOpportunities(usages)
	return report, nil
}

// probeField issues one scoped NOT_BLANK search for a field and summarizes
// what came back. Probe failures are recorded on the usage, not raised, so
// one bad field does not sink the whole discovery run.
func (d *Discoverer) probeField(ctx context.Context, fieldName string, sampleSize int) models.FieldUsage {
	usage := models.FieldUsage{FieldName: fieldName}

	records, err := d.store.Search(ctx, store.Query{
		Field:        fieldName,
		Operator:     store.OpNotBlank,
		OutputFields: []string{"id", fieldName},
		Limit:        sampleSize,
	})
	if err != nil {
		usage.Error = err.Error()
		d.log.Warn().Str("field", fieldName).Err(err).Msg("discovery probe failed")
		return usage
	}

	usage.Count = len(records)
	typeSet := make(map[string]bool)
	for _, rec := range records {
		value := rec[fieldName]
		if models.IsEmptyValue(value) {
			continue
		}
		if len(usage.Samples) < sampleValuesKept {
			usage.Samples = append(usage.Samples, value)
		}
		typeSet[classifyValue(value)] = true
	}
	for t := range typeSet {
		usage.ValueTypes = append(usage.ValueTypes, t)
	}
	sort.Strings(usage.ValueTypes)
	return usage
}

// classifyValue buckets an observed value into a coarse type name.
func classifyValue(value interface{}) string {
	switch v := value.(type) {
	case bool:
		return "boolean"
	case float64, int, int64:
		return "number"
	case []interface{}:
		return "list"
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "false", "yes", "no":
			return "boolean"
		}
		return "text"
	}
	return "unknown"
}

// proposeOpportunities groups non-empty fields sharing a "-"-delimited prefix
// into consolidation candidates.
func proposeOpportunities(usages []models.FieldUsage) []models.Opportunity {
	groups := make(map[string][]models.FieldUsage)
	maxCount := 0
	for _, u := range usages {
		if u.Count == 0 || u.Error != "" {
			continue
		}
		if u.Count > maxCount {
			maxCount = u.Count
		}
		prefix := u.FieldName
		if i := strings.Index(u.FieldName, "-"); i > 0 {
			prefix = u.FieldName[:i]
		}
		groups[prefix] = append(groups[prefix], u)
	}

	prefixes := make([]string, 0, len(groups))
	for p := range groups {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	var opportunities []models.Opportunity
	for _, prefix := range prefixes {
		group := groups[prefix]
		if len(group) < 2 {
			continue
		}
		opp := models.Opportunity{Prefix: prefix}
		total := 0
		for _, u := range group {
			opp.SourceFields = append(opp.SourceFields, u.FieldName)
			total += u.Count
		}
		opp.ResourceCount = total
		opp.Confidence = confidence(total, len(group), maxCount)
		opp.RecommendedStrategy = recommendStrategy(group)
		opportunities = append(opportunities, opp)
	}
	return opportunities
}

// confidence is the resource-density ratio of a group, bounded by the number
// of available consolidation targets and capped at 1.0.
func confidence(groupTotal, groupSize, maxCount int) float64 {
	if maxCount == 0 || groupSize == 0 {
		return 0
	}
	density := float64(groupTotal) / float64(groupSize*maxCount)
	if density > 1.0 {
		return 1.0
	}
	return density
}

// recommendStrategy picks a migration strategy from observed value shapes:
// boolean-like or low-cardinality text suggests option lists, anything else
// copies conservatively.
func recommendStrategy(group []models.FieldUsage) models.Strategy {
	for _, u := range group {
		booleanOnly := len(u.ValueTypes) == 1 && u.ValueTypes[0] == "boolean"
		if booleanOnly {
			continue
		}
		distinct := make(map[string]bool)
		for _, s := range u.Samples {
			distinct[fmt.Sprint(s)] = true
		}
		lowCardinality := u.Count >= 10 && len(distinct) <= 3
		if !lowCardinality {
			return models.StrategyCopyIfEmpty
		}
	}
	return models.StrategyAddOption
}

// SuggestPlan turns an opportunity into an executable plan targeting the
// given field. The batch size shrinks as the mapping count grows to bound
// per-record work.
func SuggestPlan(opp models.Opportunity, targetField string, report *models.DiscoveryReport) *models.Plan {
	plan := &models.Plan{
		BatchSize:  deriveBatchSize(report.TotalRecords, len(opp.SourceFields)),
		MaxWorkers: discoveryWorkers,
	}
	for _, src := range opp.SourceFields {
		if src == targetField {
			continue
		}
		plan.Mappings = append(plan.Mappings, models.Mapping{
			SourceField:    src,
			TargetField:    targetField,
			Strategy:       opp.RecommendedStrategy,
			PreserveSource: true,
		})
	}
	return plan
}

// deriveBatchSize scales the batch down as field count grows.
func deriveBatchSize(totalRecords, fieldCount int) int {
	if fieldCount < 1 {
		fieldCount = 1
	}
	size := 100 / fieldCount
	if size > 50 {
		size = 50
	}
	if size < 10 {
		size = 10
	}
	if totalRecords > 0 && totalRecords < size {
		size = totalRecords
	}
	return size
}
