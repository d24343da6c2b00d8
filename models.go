package loadtest

import (
	"encoding/json"
	"time"

	"github.com/codahale/hdrhistogram"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Codes used for outcomes that never reached an HTTP status or a database
// result. HTTP outcomes otherwise carry the numeric status code as a string,
// database outcomes carry "OK" or the driver error class.
const (
	CodeError       = "ERROR"
	CodeTimeout     = "TIMEOUT"
	CodePoolTimeout = "POOL_TIMEOUT"
	CodeOK          = "OK"
)

// Outcome is the result of one unit of work: a single HTTP request or a
// single database query. Immutable once produced.
type Outcome struct {
	Timestamp time.Time `json:"timestamp"`
	LatencyMs float64   `json:"latencyMs"`
	Success   bool      `json:"success"`
	Code      string    `json:"code"`
	Error     string    `json:"error,omitempty"`
	Bytes     int       `json:"bytes,omitempty"`
}

// BatchStats is the aggregate over one homogeneous batch of outcomes sharing
// a target. Invariant: Successful + Failed == TotalRequests.
type BatchStats struct {
	Target            string         `json:"target"`
	Concurrency       int            `json:"concurrency"`
	RequestsPerActor  int            `json:"requestsPerActor"`
	TotalRequests     int            `json:"totalRequests"`
	Successful        int            `json:"successfulRequests"`
	Failed            int            `json:"failedRequests"`
	AvgLatencyMs      float64        `json:"avgLatencyMs"`
	MinLatencyMs      float64        `json:"minLatencyMs"`
	MaxLatencyMs      float64        `json:"maxLatencyMs"`
	RequestsPerSecond float64        `json:"requestsPerSecond"`
	ErrorRatePercent  float64        `json:"errorRatePercent"`
	Distribution      map[string]int `json:"distribution"`

	// Latencies keeps the raw per-request values so percentiles can be
	// computed with the sorted-index rule; Histogram carries the merged
	// per-actor recording for export.
	Latencies []float64              `json:"latencies,omitempty"`
	Histogram *hdrhistogram.Snapshot `json:"histogram,omitempty"`

	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// Result is one batch aggregate, either an HTTPResult or a DBResult. The
// variant is fixed when the result is constructed; consumers switch on the
// concrete type rather than sniffing fields.
type Result interface {
	Stats() *BatchStats
	isResult()
}

// HTTPResult aggregates a batch of requests against one URL.
type HTTPResult struct {
	URL    string `json:"url"`
	Method string `json:"method"`
	BatchStats
}

func (r *HTTPResult) Stats() *BatchStats { return &r.BatchStats }
func (*HTTPResult) isResult()            {}

// DBResult aggregates a batch of executions of one named query.
type DBResult struct {
	QueryName string `json:"queryName"`
	BatchStats
}

func (r *DBResult) Stats() *BatchStats { return &r.BatchStats }
func (*DBResult) isResult()            {}

type resultEnvelope struct {
	Kind string      `json:"kind"`
	HTTP *HTTPResult `json:"http,omitempty"`
	DB   *DBResult   `json:"db,omitempty"`
}

// ResultList serializes the variant explicitly so a stored run round-trips
// without field sniffing.
type ResultList []Result

func (l ResultList) MarshalJSON() ([]byte, error) {
	envs := make([]resultEnvelope, 0, len(l))
	for _, r := range l {
		switch v := r.(type) {
		case *HTTPResult:
			envs = append(envs, resultEnvelope{Kind: "http", HTTP: v})
		case *DBResult:
			envs = append(envs, resultEnvelope{Kind: "db", DB: v})
		}
	}
	return json.Marshal(envs)
}

func (l *ResultList) UnmarshalJSON(data []byte) error {
	var envs []resultEnvelope
	if err := json.Unmarshal(data, &envs); err != nil {
		return err
	}
	out := make(ResultList, 0, len(envs))
	for _, e := range envs {
		switch {
		case e.Kind == "http" && e.HTTP != nil:
			out = append(out, e.HTTP)
		case e.Kind == "db" && e.DB != nil:
			out = append(out, e.DB)
		default:
			return errors.Errorf("unknown result kind %q", e.Kind)
		}
	}
	*l = out
	return nil
}

// Trend classifies how latency moved over a monitoring window.
type Trend string

const (
	TrendStable    Trend = "stable"
	TrendDegrading Trend = "degrading"
	TrendImproving Trend = "improving"
)

// ScenarioRun is one named test execution. It is appended to while the
// scenario executes and sealed read-only at completion.
type ScenarioRun struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Environment string     `json:"environment"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     time.Time  `json:"endTime"`
	Results     ResultList `json:"results"`

	SpikeMultiplier  float64 `json:"spikeMultiplier,omitempty"`
	DegradationRatio float64 `json:"degradationRatio,omitempty"`
	SpikePassed      *bool   `json:"spikePassed,omitempty"`
	StabilityScore   *int    `json:"stabilityScore,omitempty"`
	StabilityTrend   Trend   `json:"stabilityTrend,omitempty"`

	sealed bool
}

func NewScenarioRun(name, environment string) *ScenarioRun {
	return &ScenarioRun{
		ID:          uuid.New().String(),
		Name:        name,
		Environment: environment,
		StartTime:   time.Now(),
	}
}

// Append records a completed batch. Appends after Seal are dropped.
func (s *ScenarioRun) Append(r Result) {
	if s.sealed {
		return
	}
	s.Results = append(s.Results, r)
}

// Seal marks the run complete. Further appends are no-ops.
func (s *ScenarioRun) Seal() {
	if s.sealed {
		return
	}
	s.EndTime = time.Now()
	s.sealed = true
}

func (s *ScenarioRun) Sealed() bool { return s.sealed }

// Duration is the wall time of the run; zero until sealed.
func (s *ScenarioRun) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}
