package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/kwhite/loadtest"
	"github.com/kwhite/loadtest/report"
)

// Client is the slice of the redis API the store needs. Narrow on purpose so
// tests can supply a fake.
type Client interface {
	Set(key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SAdd(key string, members ...interface{}) *redis.IntCmd
	Get(key string) *redis.StringCmd
	SMembers(key string) *redis.StringSliceCmd
}

// Redis persists sealed runs and reports as JSON under prefixed keys. The
// logical structure is the contract; rendering is someone else's problem.
type Redis struct {
	r Client
}

func NewRedis(r Client) *Redis {
	return &Redis{
		r: r,
	}
}

// SaveReport stores the report and each of its runs. Runs are stored under
// their own keys and indexed in a set, so they can be fetched individually.
func (r *Redis) SaveReport(rep *report.Report) error {
	stored := *rep
	stored.Scenarios = nil

	repData, err := json.Marshal(&stored)
	if err != nil {
		return errors.Wrap(err, "error marshalling report")
	}

	_, err = r.r.Set(fmt.Sprintf("REPORT_%s", rep.ID), string(repData), 0).Result()
	if err != nil {
		return errors.Wrap(err, "error saving report data")
	}

	for _, run := range rep.Scenarios {
		if err = r.SaveRun(run); err != nil {
			return errors.Wrap(err, "error saving run")
		}

		_, err = r.r.SAdd(fmt.Sprintf("REPORT_%s_RUNS", rep.ID), run.ID).Result()
		if err != nil {
			return errors.Wrap(err, "error saving run id")
		}
	}

	return nil
}

func (r *Redis) GetReport(id string) (*report.Report, error) {
	repData, err := r.r.Get(fmt.Sprintf("REPORT_%s", id)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "error getting report data")
	}

	var rep report.Report
	if err = json.Unmarshal([]byte(repData), &rep); err != nil {
		return nil, errors.Wrap(err, "error unmarshalling report")
	}

	runIDs, err := r.r.SMembers(fmt.Sprintf("REPORT_%s_RUNS", id)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "error getting run ids")
	}

	rep.Scenarios = []*loadtest.ScenarioRun{}

	for _, runID := range runIDs {
		run, err := r.GetRun(runID)
		if err != nil {
			return nil, errors.Wrap(err, "error getting run")
		}

		rep.Scenarios = append(rep.Scenarios, run)
	}

	return &rep, nil
}

func (r *Redis) SaveRun(run *loadtest.ScenarioRun) error {
	runData, err := json.Marshal(run)
	if err != nil {
		return errors.Wrap(err, "error marshalling run")
	}

	_, err = r.r.Set(fmt.Sprintf("RUN_%s", run.ID), string(runData), 0).Result()
	if err != nil {
		return errors.Wrap(err, "error saving run data")
	}

	return nil
}

func (r *Redis) GetRun(id string) (*loadtest.ScenarioRun, error) {
	runData, err := r.r.Get(fmt.Sprintf("RUN_%s", id)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "error getting run data")
	}

	var run loadtest.ScenarioRun
	if err = json.Unmarshal([]byte(runData), &run); err != nil {
		return nil, errors.Wrap(err, "error unmarshalling run")
	}

	return &run, nil
}
