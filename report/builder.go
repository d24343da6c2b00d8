package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/kwhite/loadtest"
)

// Default readiness criteria; environment thresholds may override them.
const (
	defaultMaxAvgLatencyMs = 500.0
	defaultMaxErrorRate    = 1.0
)

// Grade is the overall letter grade with its numeric score.
type Grade struct {
	Letter string `json:"letter"`
	Score  int    `json:"score"`
}

// Readiness is the production-readiness verdict.
type Readiness struct {
	Ready          bool            `json:"ready"`
	Criteria       map[string]bool `json:"criteria"`
	Recommendation string          `json:"recommendation"`
}

// Recommendation is one structured finding tied to a threshold breach. One
// entry per breaching result; duplicates across results are intentional so
// the reader sees every offender.
type Recommendation struct {
	Category string `json:"category"`
	Priority string `json:"priority"`
	Message  string `json:"message"`
	Action   string `json:"action"`
}

// Thresholds override the readiness criteria. Zero values fall back to the
// defaults.
type Thresholds struct {
	MaxAvgLatencyMs     float64
	MaxErrorRatePercent float64
}

// Report is the top-level aggregate over one or more sealed scenario runs.
// Built once; never mutated after construction.
type Report struct {
	ID              string                       `json:"id"`
	Environment     string                       `json:"environment"`
	GeneratedAt     time.Time                    `json:"generatedAt"`
	TotalWallTime   time.Duration                `json:"totalWallTime"`
	Scenarios       []*loadtest.ScenarioRun      `json:"scenarios"`
	Summary         loadtest.Summary             `json:"summary"`
	Percentiles     loadtest.PercentileBreakdown `json:"percentiles"`
	Grade           Grade                        `json:"grade"`
	Readiness       Readiness                    `json:"readiness"`
	Recommendations []Recommendation             `json:"recommendations"`
	Compliance      map[string]bool              `json:"compliance"`
}

// Build assembles the report from sealed runs. Zero completed runs still
// produces a report: grade F, not ready.
func Build(environment string, th Thresholds, runs []*loadtest.ScenarioRun) *Report {
	if th.MaxAvgLatencyMs <= 0 {
		th.MaxAvgLatencyMs = defaultMaxAvgLatencyMs
	}
	if th.MaxErrorRatePercent <= 0 {
		th.MaxErrorRatePercent = defaultMaxErrorRate
	}

	var results []loadtest.Result
	var wall time.Duration
	for _, run := range runs {
		results = append(results, run.Results...)
		wall += run.Duration()
	}

	summary := loadtest.Merge(results)

	r := &Report{
		ID:            uuid.New().String(),
		Environment:   environment,
		GeneratedAt:   time.Now(),
		TotalWallTime: wall,
		Scenarios:     runs,
		Summary:       summary,
		Percentiles:   summary.Percentiles,
	}

	haveRuns := len(runs) > 0

	r.Grade = grade(summary, haveRuns)
	r.Readiness = readiness(summary, th, haveRuns)
	r.Recommendations = recommend(runs)
	r.Compliance = map[string]bool{
		"latency":    haveRuns && summary.AvgLatencyMs <= th.MaxAvgLatencyMs,
		"errorRate":  haveRuns && summary.ErrorRatePercent <= th.MaxErrorRatePercent,
		"production": r.Readiness.Ready,
	}

	return r
}

// grade scores the merged summary out of 100. Latency thresholds at
// 2000/1000/500ms cut 30/20/10 points, error-rate thresholds at 5%/1%/0.1%
// cut 25/15/5; breaches compound.
func grade(s loadtest.Summary, haveRuns bool) Grade {
	if !haveRuns {
		return Grade{Letter: "F", Score: 0}
	}

	score := 100

	if s.AvgLatencyMs > 2000 {
		score -= 30
	}
	if s.AvgLatencyMs > 1000 {
		score -= 20
	}
	if s.AvgLatencyMs > 500 {
		score -= 10
	}

	if s.ErrorRatePercent > 5 {
		score -= 25
	}
	if s.ErrorRatePercent > 1 {
		score -= 15
	}
	if s.ErrorRatePercent > 0.1 {
		score -= 5
	}

	if score < 0 {
		score = 0
	}

	letter := "F"
	switch {
	case score >= 90:
		letter = "A"
	case score >= 80:
		letter = "B"
	case score >= 70:
		letter = "C"
	case score >= 60:
		letter = "D"
	}

	return Grade{Letter: letter, Score: score}
}

func readiness(s loadtest.Summary, th Thresholds, haveRuns bool) Readiness {
	latencyOK := haveRuns && s.AvgLatencyMs < th.MaxAvgLatencyMs
	errorsOK := haveRuns && s.ErrorRatePercent < th.MaxErrorRatePercent

	r := Readiness{
		Ready: latencyOK && errorsOK,
		Criteria: map[string]bool{
			"avgLatencyUnderThreshold": latencyOK,
			"errorRateUnderThreshold":  errorsOK,
		},
	}

	switch {
	case !haveRuns:
		r.Recommendation = "No completed scenarios; nothing to assess. Re-run the suite."
	case r.Ready:
		r.Recommendation = "System meets latency and reliability targets. Ready for production traffic."
	case !latencyOK && !errorsOK:
		r.Recommendation = "Both latency and error rate exceed targets. Investigate before launch."
	case !latencyOK:
		r.Recommendation = "Average latency exceeds target. Profile slow endpoints before launch."
	default:
		r.Recommendation = "Error rate exceeds target. Stabilize failing requests before launch."
	}

	return r
}

// recommend scans every result for threshold breaches and emits one finding
// per breach.
func recommend(runs []*loadtest.ScenarioRun) []Recommendation {
	recs := []Recommendation{}

	for _, run := range runs {
		for _, res := range run.Results {
			s := res.Stats()

			switch v := res.(type) {
			case *loadtest.HTTPResult:
				if s.AvgLatencyMs > 1000 {
					recs = append(recs, Recommendation{
						Category: "latency",
						Priority: "high",
						Message:  run.Name + ": " + v.URL + " averages over 1000ms",
						Action:   "Profile the endpoint and add caching or reduce payload size.",
					})
				}
			case *loadtest.DBResult:
				if s.AvgLatencyMs > 500 {
					recs = append(recs, Recommendation{
						Category: "database",
						Priority: "high",
						Message:  run.Name + ": query " + v.QueryName + " averages over 500ms",
						Action:   "Check query plans and indexes for this query.",
					})
				}
			}

			if s.ErrorRatePercent > 1 {
				recs = append(recs, Recommendation{
					Category: "reliability",
					Priority: "critical",
					Message:  run.Name + ": " + s.Target + " error rate above 1%",
					Action:   "Inspect the error distribution and server logs for this target.",
				})
			}
		}
	}

	return recs
}
