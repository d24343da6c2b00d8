package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwhite/loadtest"
)

func sealedRun(name string, results ...loadtest.Result) *loadtest.ScenarioRun {
	run := loadtest.NewScenarioRun(name, "test")
	for _, r := range results {
		run.Append(r)
	}
	run.Seal()
	return run
}

func httpResult(url string, avg, errRate float64, total int) *loadtest.HTTPResult {
	failed := int(float64(total) * errRate / 100)
	return &loadtest.HTTPResult{
		URL:    url,
		Method: "GET",
		BatchStats: loadtest.BatchStats{
			Target:           url,
			TotalRequests:    total,
			Successful:       total - failed,
			Failed:           failed,
			AvgLatencyMs:     avg,
			MinLatencyMs:     avg / 2,
			MaxLatencyMs:     avg * 2,
			ErrorRatePercent: errRate,
			Latencies:        []float64{avg},
		},
	}
}

func TestBuildGradeA(t *testing.T) {
	rep := Build("staging", Thresholds{}, []*loadtest.ScenarioRun{
		sealedRun("lightLoad", httpResult("http://a/x", 100, 0, 50)),
	})

	assert.Equal(t, "A", rep.Grade.Letter)
	assert.Equal(t, 100, rep.Grade.Score)
	assert.True(t, rep.Readiness.Ready)
	assert.True(t, rep.Compliance["latency"])
	assert.True(t, rep.Compliance["errorRate"])
	assert.Empty(t, rep.Recommendations)
	require.NotEmpty(t, rep.ID)
	assert.Equal(t, "staging", rep.Environment)
}

func TestBuildGradeBandsCompound(t *testing.T) {
	// 600ms average trips only the 500ms threshold: 90, grade A, but still
	// not production-ready.
	rep := Build("test", Thresholds{}, []*loadtest.ScenarioRun{
		sealedRun("s", httpResult("http://a/x", 600, 0, 10)),
	})
	assert.Equal(t, 90, rep.Grade.Score)
	assert.Equal(t, "A", rep.Grade.Letter)
	assert.False(t, rep.Readiness.Ready)
	assert.False(t, rep.Readiness.Criteria["avgLatencyUnderThreshold"])
	assert.True(t, rep.Readiness.Criteria["errorRateUnderThreshold"])

	// 1200ms cuts 20+10, a 2% error rate cuts 15+5: score 50, grade F.
	rep = Build("test", Thresholds{}, []*loadtest.ScenarioRun{
		sealedRun("s", httpResult("http://a/x", 1200, 2, 100)),
	})
	assert.Equal(t, 50, rep.Grade.Score)
	assert.Equal(t, "F", rep.Grade.Letter)

	// Worst case floors at zero.
	rep = Build("test", Thresholds{}, []*loadtest.ScenarioRun{
		sealedRun("s", httpResult("http://a/x", 2500, 6, 100)),
	})
	assert.Equal(t, 0, rep.Grade.Score)
	assert.Equal(t, "F", rep.Grade.Letter)
}

func TestBuildNoRuns(t *testing.T) {
	rep := Build("test", Thresholds{}, nil)

	assert.Equal(t, "F", rep.Grade.Letter)
	assert.Equal(t, 0, rep.Grade.Score)
	assert.False(t, rep.Readiness.Ready)
	assert.NotEmpty(t, rep.Readiness.Recommendation)
	assert.Empty(t, rep.Scenarios)
}

func TestRecommendationsPerBreach(t *testing.T) {
	slow := httpResult("http://a/slow", 1500, 0, 10)
	flaky := httpResult("http://a/flaky", 100, 5, 100)
	slowQuery := &loadtest.DBResult{
		QueryName: "bigJoin",
		BatchStats: loadtest.BatchStats{
			Target:        "bigJoin",
			TotalRequests: 10,
			Successful:    10,
			AvgLatencyMs:  700,
			Latencies:     []float64{700},
		},
	}

	rep := Build("test", Thresholds{}, []*loadtest.ScenarioRun{
		sealedRun("first", slow, flaky),
		sealedRun("second", slow, slowQuery),
	})

	var latency, reliability, database int
	for _, rec := range rep.Recommendations {
		switch rec.Category {
		case "latency":
			latency++
		case "reliability":
			reliability++
		case "database":
			database++
		}
		assert.NotEmpty(t, rec.Priority)
		assert.NotEmpty(t, rec.Message)
		assert.NotEmpty(t, rec.Action)
	}

	// The slow endpoint appears in both runs and is reported twice; breaches
	// are not deduplicated.
	assert.Equal(t, 2, latency)
	assert.Equal(t, 1, reliability)
	assert.Equal(t, 1, database)
}

func TestThresholdOverrides(t *testing.T) {
	run := sealedRun("s", httpResult("http://a/x", 800, 0, 10))

	strict := Build("test", Thresholds{MaxAvgLatencyMs: 200}, []*loadtest.ScenarioRun{run})
	assert.False(t, strict.Readiness.Ready)

	lax := Build("test", Thresholds{MaxAvgLatencyMs: 1000}, []*loadtest.ScenarioRun{run})
	assert.True(t, lax.Readiness.Ready)
}

func TestBuildPercentiles(t *testing.T) {
	run := loadtest.NewScenarioRun("s", "test")
	stats := loadtest.BatchStats{TotalRequests: 4, Successful: 4, AvgLatencyMs: 25}
	stats.Latencies = []float64{10, 20, 30, 40}
	stats.Target = "http://a"
	run.Append(&loadtest.HTTPResult{URL: "http://a", BatchStats: stats})
	run.Seal()

	rep := Build("test", Thresholds{}, []*loadtest.ScenarioRun{run})

	assert.InDelta(t, 20.0, rep.Percentiles.P50, 1e-9)
	assert.InDelta(t, 40.0, rep.Percentiles.P99, 1e-9)
	assert.LessOrEqual(t, rep.Percentiles.P50, rep.Percentiles.P90)
	assert.LessOrEqual(t, rep.Percentiles.P95, rep.Percentiles.P99)
}
