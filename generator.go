package loadtest

import (
	"context"
	"sync"
	"time"

	"github.com/codahale/hdrhistogram"
)

// Histogram bounds, in milliseconds. Values above the ceiling are clamped
// before recording.
const (
	histogramMaxMs   = 10 * 60 * 1000
	histogramSigFigs = 3
)

// Plan describes one load batch: how many concurrent actors to run, how many
// sequential requests each issues, and the pause between a request and the
// next within one actor.
type Plan struct {
	Concurrency      int
	RequestsPerActor int
	Delay            time.Duration
}

func (p Plan) normalized() Plan {
	if p.Concurrency < 1 {
		p.Concurrency = 1
	}
	if p.RequestsPerActor < 1 {
		p.RequestsPerActor = 1
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p
}

// ExecuteFunc issues one unit of work. The generator is agnostic to whether
// that is an HTTP request or a database query.
type ExecuteFunc func(ctx context.Context) Outcome

type actor struct {
	outcomes []Outcome
	h        *hdrhistogram.Histogram
}

// Generator fans a plan out over independent actors. Each actor records into
// its own slot; nothing is shared until every actor has finished, at which
// point the slots are merged into a single BatchStats. Partial results are
// never observable mid-run. A batch is atomic once launched: there is no
// mid-batch cancellation, per-call timeouts inside the execute func bound
// individual requests instead.
type Generator struct {
	plan   Plan
	do     ExecuteFunc
	wg     sync.WaitGroup
	actors []actor
}

func NewGenerator(plan Plan, do ExecuteFunc) *Generator {
	plan = plan.normalized()

	actors := make([]actor, plan.Concurrency)
	for i := range actors {
		actors[i].h = hdrhistogram.New(0, histogramMaxMs, histogramSigFigs)
		actors[i].outcomes = make([]Outcome, 0, plan.RequestsPerActor)
	}

	return &Generator{
		plan:   plan,
		do:     do,
		actors: actors,
	}
}

// Run launches all actors, waits for the last one to finish, and aggregates.
// Elapsed time spans launch to last completion.
func (g *Generator) Run(ctx context.Context, target string) BatchStats {
	launched := time.Now()

	g.wg.Add(g.plan.Concurrency)
	for i := range g.actors {
		go g.runActor(ctx, i)
	}
	g.wg.Wait()

	elapsed := time.Since(launched)

	return g.aggregate(target, launched, elapsed)
}

func (g *Generator) runActor(ctx context.Context, index int) {
	defer g.wg.Done()

	a := &g.actors[index]

	for k := 0; k < g.plan.RequestsPerActor; k++ {
		o := g.do(ctx)
		a.outcomes = append(a.outcomes, o)

		v := int64(o.LatencyMs)
		if v > histogramMaxMs {
			v = histogramMaxMs
		}
		a.h.RecordValue(v)

		// No wait after the final request.
		if g.plan.Delay > 0 && k < g.plan.RequestsPerActor-1 {
			time.Sleep(g.plan.Delay)
		}
	}
}

func (g *Generator) aggregate(target string, launched time.Time, elapsed time.Duration) BatchStats {
	outcomes := make([]Outcome, 0, g.plan.Concurrency*g.plan.RequestsPerActor)

	var merged *hdrhistogram.Histogram
	for i := range g.actors {
		outcomes = append(outcomes, g.actors[i].outcomes...)

		if merged == nil {
			merged = g.actors[i].h
		} else {
			merged.Merge(g.actors[i].h)
		}
	}

	stats := Summarize(outcomes)
	stats.Target = target
	stats.Concurrency = g.plan.Concurrency
	stats.RequestsPerActor = g.plan.RequestsPerActor
	stats.StartTime = launched
	stats.EndTime = launched.Add(elapsed)
	if merged != nil {
		stats.Histogram = merged.Export()
	}

	// Skip throughput rather than divide by a ~0 elapsed time.
	if elapsed >= time.Millisecond {
		stats.RequestsPerSecond = float64(stats.TotalRequests) / elapsed.Seconds()
	}

	return stats
}
