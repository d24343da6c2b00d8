package storage_test

import (
	"testing"
	"time"

	"github.com/go-redis/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwhite/loadtest"
	"github.com/kwhite/loadtest/report"
	"github.com/kwhite/loadtest/storage"
)

type fakeClient struct {
	data map[string]string
	sets map[string][]string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		data: map[string]string{},
		sets: map[string][]string{},
	}
}

func (f *fakeClient) Set(key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.data[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Get(key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeClient) SAdd(key string, members ...interface{}) *redis.IntCmd {
	for _, m := range members {
		f.sets[key] = append(f.sets[key], m.(string))
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (f *fakeClient) SMembers(key string) *redis.StringSliceCmd {
	return redis.NewStringSliceResult(f.sets[key], nil)
}

func buildReport() *report.Report {
	run := loadtest.NewScenarioRun("lightLoad", "test")
	run.Append(&loadtest.HTTPResult{
		URL:    "http://svc/health",
		Method: "GET",
		BatchStats: loadtest.BatchStats{
			Target:        "http://svc/health",
			TotalRequests: 10,
			Successful:    10,
			AvgLatencyMs:  42,
			Latencies:     []float64{42},
		},
	})
	run.Append(&loadtest.DBResult{
		QueryName: "countUsers",
		BatchStats: loadtest.BatchStats{
			Target:        "countUsers",
			TotalRequests: 5,
			Successful:    5,
			AvgLatencyMs:  7,
			Latencies:     []float64{7},
		},
	})
	run.Seal()

	return report.Build("test", report.Thresholds{}, []*loadtest.ScenarioRun{run})
}

func TestSaveAndGetReport(t *testing.T) {
	client := newFakeClient()
	store := storage.NewRedis(client)

	rep := buildReport()
	require.NoError(t, store.SaveReport(rep))

	got, err := store.GetReport(rep.ID)
	require.NoError(t, err)

	assert.Equal(t, rep.ID, got.ID)
	assert.Equal(t, rep.Grade, got.Grade)
	assert.Equal(t, rep.Summary.TotalRequests, got.Summary.TotalRequests)

	require.Len(t, got.Scenarios, 1)
	run := got.Scenarios[0]
	assert.Equal(t, "lightLoad", run.Name)
	require.Len(t, run.Results, 2)

	// Variants survive the round trip without field sniffing.
	h, ok := run.Results[0].(*loadtest.HTTPResult)
	require.True(t, ok)
	assert.Equal(t, "http://svc/health", h.URL)

	d, ok := run.Results[1].(*loadtest.DBResult)
	require.True(t, ok)
	assert.Equal(t, "countUsers", d.QueryName)
}

func TestGetMissingReport(t *testing.T) {
	store := storage.NewRedis(newFakeClient())

	_, err := store.GetReport("nope")
	assert.Error(t, err)
}

func TestSaveAndGetRun(t *testing.T) {
	client := newFakeClient()
	store := storage.NewRedis(client)

	run := loadtest.NewScenarioRun("spikeTest", "test")
	run.SpikeMultiplier = 20
	run.Seal()

	require.NoError(t, store.SaveRun(run))

	got, err := store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, "spikeTest", got.Name)
	assert.InDelta(t, 20.0, got.SpikeMultiplier, 1e-9)
}
