package loadtest

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultTimeout = 10 * time.Second
	userAgent      = "loadtest/1.0"
)

type timeouter interface {
	Timeout() bool
}

// Executor issues single HTTP requests against caller-supplied URLs. It never
// returns an error: every failure mode, timeouts included, is captured as a
// failed Outcome with latency measured up to the failure point.
type Executor struct {
	client  *http.Client
	timeout time.Duration
}

func NewExecutor(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Executor{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        256,
				MaxIdleConnsPerHost: 256,
			},
		},
		timeout: timeout,
	}
}

// Execute performs one request. An empty method means GET. Success is a
// status code below 400.
func (e *Executor) Execute(ctx context.Context, method, url string) Outcome {
	o := Outcome{Timestamp: time.Now()}

	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		o.Code = CodeError
		o.Error = err.Error()
		return o
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	req = req.WithContext(ctx)

	start := time.Now()

	resp, err := e.client.Do(req)
	if err != nil {
		o.Code = CodeError
		if t, ok := err.(timeouter); ok && t.Timeout() {
			o.Code = CodeTimeout
		}
		o.Error = err.Error()
	}

	if resp != nil {
		o.Code = strconv.Itoa(resp.StatusCode)
		o.Success = resp.StatusCode < 400
		if !o.Success {
			o.Error = resp.Status
		}

		if resp.Body != nil {
			n, _ := io.Copy(io.Discard, resp.Body)
			o.Bytes = int(n)
			resp.Body.Close()
		}
	}

	o.LatencyMs = float64(time.Since(start)) / float64(time.Millisecond)

	return o
}
