package loadtest

import (
	"math"
	"sort"
)

// Summarize reduces a batch of outcomes into its aggregate statistics. It is
// a pure function: calling it twice over the same outcomes yields identical
// numbers, and it holds no state across calls. An empty batch produces all
// zeroes; callers must check TotalRequests before trusting the rate fields.
func Summarize(outcomes []Outcome) BatchStats {
	s := BatchStats{
		Distribution:  map[string]int{},
		TotalRequests: len(outcomes),
	}

	if len(outcomes) == 0 {
		return s
	}

	s.Latencies = make([]float64, 0, len(outcomes))
	s.MinLatencyMs = outcomes[0].LatencyMs

	var sum float64
	for _, o := range outcomes {
		if o.Success {
			s.Successful++
		} else {
			s.Failed++
		}

		s.Distribution[o.Code]++
		s.Latencies = append(s.Latencies, o.LatencyMs)

		sum += o.LatencyMs
		if o.LatencyMs < s.MinLatencyMs {
			s.MinLatencyMs = o.LatencyMs
		}
		if o.LatencyMs > s.MaxLatencyMs {
			s.MaxLatencyMs = o.LatencyMs
		}
	}

	s.AvgLatencyMs = sum / float64(len(outcomes))
	s.ErrorRatePercent = 100 * float64(s.Failed) / float64(s.TotalRequests)

	return s
}

// Percentile returns the pth percentile over the given latencies using the
// index ceil(p/100 * n) - 1 into the ascending sort, clamped to [0, n-1].
// Zero for an empty set.
func Percentile(latencies []float64, p float64) float64 {
	n := len(latencies)
	if n == 0 {
		return 0
	}

	sorted := append([]float64(nil), latencies...)
	sort.Float64s(sorted)

	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}

	return sorted[idx]
}

// PercentileBreakdown is the standard latency percentile set reported at the
// summary level.
type PercentileBreakdown struct {
	P50 float64 `json:"p50"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

func Percentiles(latencies []float64) PercentileBreakdown {
	return PercentileBreakdown{
		P50: Percentile(latencies, 50),
		P90: Percentile(latencies, 90),
		P95: Percentile(latencies, 95),
		P99: Percentile(latencies, 99),
	}
}

// Summary is the rollup over many results, typically report-level.
type Summary struct {
	TotalRequests     int                 `json:"totalRequests"`
	Successful        int                 `json:"successfulRequests"`
	Failed            int                 `json:"failedRequests"`
	AvgLatencyMs      float64             `json:"avgLatencyMs"`
	MinLatencyMs      float64             `json:"minLatencyMs"`
	MaxLatencyMs      float64             `json:"maxLatencyMs"`
	ErrorRatePercent  float64             `json:"errorRatePercent"`
	RequestsPerSecond float64             `json:"requestsPerSecond"`
	Percentiles       PercentileBreakdown `json:"percentiles"`
}

// Merge rolls results up into a Summary. Counts are summed and throughput is
// the sum of per-result throughput. Average latency and error rate are the
// unweighted arithmetic mean of the per-result fields, NOT a recomputation
// over the pooled outcomes; a result with few requests weighs as much as one
// with many. Known approximation, kept deliberately. Percentiles are computed
// over the pooled raw latencies.
func Merge(results []Result) Summary {
	var sum Summary

	if len(results) == 0 {
		return sum
	}

	var avgSum, errSum float64
	var pooled []float64

	first := true
	for _, r := range results {
		s := r.Stats()

		sum.TotalRequests += s.TotalRequests
		sum.Successful += s.Successful
		sum.Failed += s.Failed
		sum.RequestsPerSecond += s.RequestsPerSecond

		avgSum += s.AvgLatencyMs
		errSum += s.ErrorRatePercent

		if first || s.MinLatencyMs < sum.MinLatencyMs {
			sum.MinLatencyMs = s.MinLatencyMs
		}
		if s.MaxLatencyMs > sum.MaxLatencyMs {
			sum.MaxLatencyMs = s.MaxLatencyMs
		}
		first = false

		pooled = append(pooled, s.Latencies...)
	}

	sum.AvgLatencyMs = avgSum / float64(len(results))
	sum.ErrorRatePercent = errSum / float64(len(results))
	sum.Percentiles = Percentiles(pooled)

	return sum
}
