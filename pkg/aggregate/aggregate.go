// Package aggregate reduces the phone-level values of one utterance to a
// single score plus summary statistics.
package aggregate

import (
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"gopscore/pkg/errors"
	"gopscore/pkg/gop"
	"gopscore/pkg/metrics"
	"gopscore/pkg/phones"
)

// Method selects how an utterance's phone values collapse to one score.
type Method string

const (
	// MethodMean is the arithmetic mean of the phone values.
	MethodMean Method = "mean"

	// MethodMedian is the statistical median; even-count groups average
	// the two middle values.
	MethodMedian Method = "median"

	// MethodMin takes the minimum value: the single worst phone
	// determines how severely the utterance is flagged.
	MethodMin Method = "min"

	// MethodMax takes the maximum value.
	MethodMax Method = "max"

	// MethodWeighted is a mean weighted by each value's absolute
	// magnitude, emphasizing strong mispronunciation signals.
	MethodWeighted Method = "weighted"
)

// ParseMethod validates a method name from configuration or the CLI.
func ParseMethod(name string) (Method, error) {
	switch Method(name) {
	case MethodMean, MethodMedian, MethodMin, MethodMax, MethodWeighted:
		return Method(name), nil
	}
	return "", errors.NewUnknownMethod(name)
}

// Options configures an Aggregator.
type Options struct {
	Method Method

	// SkipSilence removes silence-class phones (phones.SilenceIDs) before
	// any statistic is computed. It only applies when the input format
	// carries phone ids.
	SkipSilence bool
}

// Result is the aggregate for one utterance. Min, Max, Stddev and
// NumPhones always describe the post-filter value set regardless of the
// chosen method; Stddev is the population standard deviation.
type Result struct {
	UtteranceID string
	Score       float64
	NumPhones   int
	Min         float64
	Max         float64
	Stddev      float64
}

// Aggregator applies one aggregation policy across utterance groups.
type Aggregator struct {
	logger logrus.FieldLogger
	opts   Options
}

// New creates an Aggregator with the given options. The logger may carry
// pre-bound fields such as a run id.
func New(logger logrus.FieldLogger, opts Options) *Aggregator {
	if opts.Method == "" {
		opts.Method = MethodMean
	}
	return &Aggregator{logger: logger, opts: opts}
}

// Aggregate reduces one utterance group to a Result. A group left empty by
// silence filtering returns ErrEmptyGroup; the caller decides whether to
// skip or abort (a batch run skips with a diagnostic).
func (a *Aggregator) Aggregate(group *gop.UtteranceGroup) (Result, error) {
	values := group.Values
	if a.opts.SkipSilence && len(group.PhoneIDs) == len(group.Values) && len(group.PhoneIDs) > 0 {
		values = filterSilence(group.Values, group.PhoneIDs)
	}

	if len(values) == 0 {
		return Result{}, errors.NewEmptyGroup(group.ID)
	}

	var score float64
	switch a.opts.Method {
	case MethodMean:
		score = Mean(values)
	case MethodMedian:
		score = Median(values)
	case MethodMin:
		score = Min(values)
	case MethodMax:
		score = Max(values)
	case MethodWeighted:
		score = WeightedMean(values)
	default:
		return Result{}, errors.NewUnknownMethod(string(a.opts.Method))
	}

	return Result{
		UtteranceID: group.ID,
		Score:       score,
		NumPhones:   len(values),
		Min:         Min(values),
		Max:         Max(values),
		Stddev:      Stddev(values),
	}, nil
}

// AggregateSet aggregates every group in the set, in sorted utterance-id
// order. Groups emptied by filtering are skipped with a warning; any other
// error aborts.
func (a *Aggregator) AggregateSet(set *gop.GroupSet) ([]Result, error) {
	results := make([]Result, 0, set.Len())

	for _, id := range set.SortedIDs() {
		result, err := a.Aggregate(set.Get(id))
		if err != nil {
			if errors.IsErrorType(err, errors.ErrEmptyGroup) {
				metrics.IncEmptyGroups()
				a.logger.WithField("utterance_id", id).Warn("No valid GOP values for utterance, skipping")
				continue
			}
			return nil, err
		}
		results = append(results, result)
		metrics.IncAggregated()
	}

	return results, nil
}

func filterSilence(values []float64, phoneIDs []int) []float64 {
	kept := make([]float64, 0, len(values))
	for i, v := range values {
		if phones.IsSilence(phoneIDs[i]) {
			continue
		}
		kept = append(kept, v)
	}
	return kept
}

// Mean returns the arithmetic mean. It panics on an empty slice; callers
// filter empty groups first.
func Mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Median returns the statistical median, averaging the two middle values
// for even-count input.
func Median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// Min returns the smallest value.
func Min(values []float64) float64 {
	min := values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

// Max returns the largest value.
func Max(values []float64) float64 {
	max := values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// WeightedMean weights each value by its absolute magnitude. When all
// weights are zero (every value is zero) it falls back to the arithmetic
// mean instead of dividing by zero.
func WeightedMean(values []float64) float64 {
	var weightSum, weighted float64
	for _, v := range values {
		w := math.Abs(v)
		weightSum += w
		weighted += w * v
	}

	if weightSum == 0 {
		return Mean(values)
	}
	return weighted / weightSum
}

// Stddev returns the population standard deviation (divisor n, not n-1).
func Stddev(values []float64) float64 {
	mean := Mean(values)

	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}
