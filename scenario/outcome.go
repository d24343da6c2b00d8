package scenario

import (
	"context"

	"github.com/kwhite/loadtest"
	"github.com/kwhite/loadtest/db"
)

// RequestExecutor issues one HTTP request.
type RequestExecutor interface {
	Execute(ctx context.Context, method, url string) loadtest.Outcome
}

// QueryExecutor issues one database query.
type QueryExecutor interface {
	Execute(ctx context.Context, q db.NamedQuery) loadtest.Outcome
}

// Status is the typed outcome of one scenario execution. Failures and skips
// are values, not panics; the suite pattern-matches on them to decide whether
// to warn and continue.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// RunOutcome pairs a scenario with how its execution ended. Run is non-nil
// only for completed scenarios.
type RunOutcome struct {
	Name   string
	Status Status
	Run    *loadtest.ScenarioRun
	Reason string
}

func completed(run *loadtest.ScenarioRun) RunOutcome {
	return RunOutcome{Name: run.Name, Status: StatusCompleted, Run: run}
}

func skipped(name, reason string) RunOutcome {
	return RunOutcome{Name: name, Status: StatusSkipped, Reason: reason}
}

func failed(name, reason string) RunOutcome {
	return RunOutcome{Name: name, Status: StatusFailed, Reason: reason}
}

// CompletedRuns extracts the sealed runs of the completed outcomes, in order.
// Failed and skipped scenarios are absent, which is how they stay out of the
// final report.
func CompletedRuns(outcomes []RunOutcome) []*loadtest.ScenarioRun {
	runs := make([]*loadtest.ScenarioRun, 0, len(outcomes))
	for _, out := range outcomes {
		if out.Status == StatusCompleted && out.Run != nil {
			runs = append(runs, out.Run)
		}
	}
	return runs
}
