package scenario

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kwhite/loadtest"
	"github.com/kwhite/loadtest/config"
	"github.com/kwhite/loadtest/db"
)

// Fixed probe shape for continuous monitoring.
const (
	probeConcurrency = 5
	probeRequests    = 2
)

// suiteEnduranceCap shortens the endurance leg when it runs as part of the
// comprehensive suite.
const suiteEnduranceCap = time.Minute

// stableThreshold is the score above which an endurance run is judged stable.
const stableThreshold = 80

// Orchestrator sequences load batches into test patterns. It is the only
// layer aware of scenario semantics; the generator and executors below it are
// scenario-agnostic. A nil query executor means the database was unavailable
// at startup, and every query target is skipped with a warning.
type Orchestrator struct {
	cfg   *config.Config
	http  RequestExecutor
	query QueryExecutor
	log   *logrus.Logger

	// sleep is replaceable so suite tests do not wait out recovery pauses.
	sleep func(time.Duration)
}

func New(cfg *config.Config, httpExec RequestExecutor, queryExec QueryExecutor, log *logrus.Logger) *Orchestrator {
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Orchestrator{
		cfg:   cfg,
		http:  httpExec,
		query: queryExec,
		log:   log,
		sleep: time.Sleep,
	}
}

// RunScenario executes one fixed scenario: every endpoint once with the
// scenario's plan, then every query if the database is available. A scenario
// whose only targets are queries is skipped outright when the database is
// down.
func (o *Orchestrator) RunScenario(ctx context.Context, sc config.Scenario) RunOutcome {
	if len(sc.Endpoints) == 0 && len(sc.Queries) == 0 {
		return failed(sc.Name, "no targets configured")
	}
	if len(sc.Endpoints) == 0 && o.query == nil {
		o.log.WithField("scenario", sc.Name).Warn("database unavailable, skipping query-only scenario")
		return skipped(sc.Name, "database unavailable")
	}

	run := loadtest.NewScenarioRun(sc.Name, o.cfg.Environment)
	plan := loadtest.Plan{
		Concurrency:      sc.Concurrency,
		RequestsPerActor: sc.RequestsPerActor,
		Delay:            sc.Delay(),
	}

	for _, ep := range sc.Endpoints {
		url := o.cfg.URL(ep)

		if sc.WarmUp {
			o.runHTTP(ctx, url, ep.Method, loadtest.Plan{Concurrency: 1, RequestsPerActor: 1})
		}

		run.Append(o.runHTTP(ctx, url, ep.Method, plan))
	}

	if len(sc.Queries) > 0 {
		if o.query == nil {
			o.log.WithField("scenario", sc.Name).Warn("database unavailable, skipping query targets")
		} else {
			for _, q := range sc.Queries {
				run.Append(o.runQuery(ctx, q, plan))
			}
		}
	}

	run.Seal()
	return completed(run)
}

// RunSuite executes every configured scenario lightest to heaviest with a
// recovery pause between each, then a spike test and a shortened endurance
// test. A scenario that fails or is skipped is logged and left out; the rest
// of the suite still runs.
func (o *Orchestrator) RunSuite(ctx context.Context) []RunOutcome {
	outcomes := make([]RunOutcome, 0, len(o.cfg.Scenarios)+2)

	for i, sc := range o.cfg.Scenarios {
		o.log.WithField("scenario", sc.Name).Info("running scenario")

		out := o.RunScenario(ctx, sc)
		o.warnIfNotCompleted(out)
		outcomes = append(outcomes, out)

		if i < len(o.cfg.Scenarios)-1 {
			o.sleep(o.cfg.RecoveryPause())
		}
	}

	if o.cfg.Spike.BaseUsers > 0 {
		o.log.Info("running spike test")
		out := o.RunSpike(ctx)
		o.warnIfNotCompleted(out)
		outcomes = append(outcomes, out)
	}

	if o.cfg.Endurance.Concurrency > 0 {
		d := time.Duration(o.cfg.Endurance.DurationSec) * time.Second
		if d > suiteEnduranceCap {
			d = suiteEnduranceCap
		}

		o.log.WithField("duration", d).Info("running endurance test")
		out := o.RunEndurance(ctx, d)
		o.warnIfNotCompleted(out)
		outcomes = append(outcomes, out)
	}

	return outcomes
}

// RunSpike measures a baseline, slams the target with the spike concurrency,
// pauses, then repeats the baseline measurement. The multiplier and the
// degradation ratio are recorded whether or not the test passed. Pass
// criteria: spike-phase error rate below 5% and spike-phase average latency
// under three times the baseline average.
func (o *Orchestrator) RunSpike(ctx context.Context) RunOutcome {
	sp := o.cfg.Spike
	if sp.BaseUsers < 1 || sp.SpikeUsers < 1 {
		return failed("spikeTest", "spike is not configured")
	}

	url := o.cfg.URL(sp.Endpoint)
	method := sp.Endpoint.Method
	reqs := sp.RequestsPerActor

	run := loadtest.NewScenarioRun("spikeTest", o.cfg.Environment)

	baseline := o.runHTTP(ctx, url, method, loadtest.Plan{Concurrency: sp.BaseUsers, RequestsPerActor: reqs})
	run.Append(baseline)

	spike := o.runHTTP(ctx, url, method, loadtest.Plan{Concurrency: sp.SpikeUsers, RequestsPerActor: reqs})
	run.Append(spike)

	pause := time.Duration(sp.RecoveryPauseSec) * time.Second
	if pause <= 0 {
		pause = o.cfg.RecoveryPause()
	}
	o.sleep(pause)

	recovery := o.runHTTP(ctx, url, method, loadtest.Plan{Concurrency: sp.BaseUsers, RequestsPerActor: reqs})
	run.Append(recovery)

	run.SpikeMultiplier = float64(sp.SpikeUsers) / float64(sp.BaseUsers)
	if baseline.AvgLatencyMs > 0 {
		run.DegradationRatio = spike.AvgLatencyMs / baseline.AvgLatencyMs
	}

	passed := spike.ErrorRatePercent < 5 && spike.AvgLatencyMs < 3*baseline.AvgLatencyMs
	run.SpikePassed = &passed

	run.Seal()
	return completed(run)
}

// RunEndurance sizes one batch to cover the requested duration and scores the
// outcome. Batches are atomic once launched, so the duration is mapped to a
// request budget up front from the configured delay plus the estimated
// per-request latency.
func (o *Orchestrator) RunEndurance(ctx context.Context, d time.Duration) RunOutcome {
	en := o.cfg.Endurance
	if en.Concurrency < 1 {
		return failed("enduranceTest", "endurance is not configured")
	}

	perRequest := time.Duration(en.DelayMs+en.EstimatedLatencyMs) * time.Millisecond
	if perRequest <= 0 {
		perRequest = 100 * time.Millisecond
	}

	reqs := int(d / perRequest)
	if reqs < 1 {
		reqs = 1
	}

	run := loadtest.NewScenarioRun("enduranceTest", o.cfg.Environment)

	res := o.runHTTP(ctx, o.cfg.URL(en.Endpoint), en.Endpoint.Method, loadtest.Plan{
		Concurrency:      en.Concurrency,
		RequestsPerActor: reqs,
		Delay:            time.Duration(en.DelayMs) * time.Millisecond,
	})
	run.Append(res)

	score := StabilityScore(res.BatchStats)
	run.StabilityScore = &score

	run.Seal()
	return completed(run)
}

// Monitor probes the target with a small fixed batch at every sampling
// interval until the window closes, then classifies the latency trend by
// comparing the first half of the samples to the second.
func (o *Orchestrator) Monitor(ctx context.Context, window time.Duration) RunOutcome {
	mo := o.cfg.Monitor

	interval := time.Duration(mo.IntervalSec) * time.Second
	if interval <= 0 {
		interval = 2 * time.Minute
	}

	url := o.cfg.URL(mo.Endpoint)
	run := loadtest.NewScenarioRun("continuousMonitoring", o.cfg.Environment)
	deadline := time.Now().Add(window)

	var samples []float64
	for {
		res := o.runHTTP(ctx, url, mo.Endpoint.Method, loadtest.Plan{
			Concurrency:      probeConcurrency,
			RequestsPerActor: probeRequests,
		})
		run.Append(res)
		samples = append(samples, res.AvgLatencyMs)

		if !time.Now().Add(interval).Before(deadline) {
			break
		}
		o.sleep(interval)
	}

	run.StabilityTrend = classifyTrend(samples)
	run.Seal()
	return completed(run)
}

func (o *Orchestrator) runHTTP(ctx context.Context, url, method string, plan loadtest.Plan) *loadtest.HTTPResult {
	if method == "" {
		method = http.MethodGet
	}

	gen := loadtest.NewGenerator(plan, func(ctx context.Context) loadtest.Outcome {
		return o.http.Execute(ctx, method, url)
	})

	return &loadtest.HTTPResult{
		URL:        url,
		Method:     method,
		BatchStats: gen.Run(ctx, url),
	}
}

func (o *Orchestrator) runQuery(ctx context.Context, q config.Query, plan loadtest.Plan) *loadtest.DBResult {
	named := db.NamedQuery{Name: q.Name, SQL: q.SQL}

	gen := loadtest.NewGenerator(plan, func(ctx context.Context) loadtest.Outcome {
		return o.query.Execute(ctx, named)
	})

	return &loadtest.DBResult{
		QueryName:  q.Name,
		BatchStats: gen.Run(ctx, q.Name),
	}
}

func (o *Orchestrator) warnIfNotCompleted(out RunOutcome) {
	if out.Status == StatusCompleted {
		return
	}
	o.log.WithFields(logrus.Fields{
		"scenario": out.Name,
		"status":   out.Status,
		"reason":   out.Reason,
	}).Warn("scenario did not complete")
}

// StabilityScore starts at 100 and deducts for error rate, average latency
// and latency spread; thresholds compound, so a batch can lose on several at
// once. Floored at zero.
func StabilityScore(s loadtest.BatchStats) int {
	score := 100

	if s.ErrorRatePercent > 1 {
		score -= 20
	}
	if s.ErrorRatePercent > 0.1 {
		score -= 10
	}

	if s.AvgLatencyMs > 1000 {
		score -= 30
	}
	if s.AvgLatencyMs > 500 {
		score -= 15
	}
	if s.AvgLatencyMs > 200 {
		score -= 5
	}

	spread := s.MaxLatencyMs - s.MinLatencyMs
	if spread > 3000 {
		score -= 20
	}
	if spread > 1000 {
		score -= 10
	}

	if score < 0 {
		score = 0
	}
	return score
}

// Stable reports whether a stability score clears the threshold.
func Stable(score int) bool {
	return score > stableThreshold
}

func classifyTrend(samples []float64) loadtest.Trend {
	if len(samples) < 2 {
		return loadtest.TrendStable
	}

	half := len(samples) / 2
	first := mean(samples[:half])
	second := mean(samples[half:])

	if first <= 0 {
		return loadtest.TrendStable
	}

	change := (second - first) / first
	switch {
	case change > 0.10:
		return loadtest.TrendDegrading
	case change < -0.10:
		return loadtest.TrendImproving
	default:
		return loadtest.TrendStable
	}
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
