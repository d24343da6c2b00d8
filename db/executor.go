package db

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/kwhite/loadtest"
)

const defaultQueryTimeout = 10 * time.Second

// NamedQuery is one configured query under test. The harness is agnostic to
// schema; the SQL text comes straight from configuration.
type NamedQuery struct {
	Name string
	SQL  string
}

// QueryExecutor runs one query per call over the pool. It never returns an
// error: pool exhaustion, query errors and timeouts all become failed
// outcomes with latency measured up to the failure point.
type QueryExecutor struct {
	pool    *Pool
	timeout time.Duration
}

func NewQueryExecutor(pool *Pool, timeout time.Duration) *QueryExecutor {
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	return &QueryExecutor{pool: pool, timeout: timeout}
}

// Execute acquires a connection, runs the query, and counts rows. The
// connection goes back to the pool on every exit path. Acquisition is
// bounded by the pool's acquire timeout, the query itself by the per-call
// timeout.
func (e *QueryExecutor) Execute(ctx context.Context, q NamedQuery) loadtest.Outcome {
	o := loadtest.Outcome{Timestamp: time.Now()}
	start := time.Now()

	acquireCtx, cancelAcquire := context.WithTimeout(ctx, e.pool.acquireTimeout)
	conn, err := e.pool.db.Conn(acquireCtx)
	cancelAcquire()
	if err != nil {
		o.LatencyMs = sinceMs(start)
		o.Code = loadtest.CodeError
		if errors.Is(err, context.DeadlineExceeded) {
			o.Code = loadtest.CodePoolTimeout
		}
		o.Error = err.Error()
		return o
	}
	defer conn.Close()

	queryCtx, cancelQuery := context.WithTimeout(ctx, e.timeout)
	defer cancelQuery()

	rows, err := conn.QueryContext(queryCtx, q.SQL)
	if err != nil {
		o.LatencyMs = sinceMs(start)
		o.Code = errorCode(err)
		o.Error = err.Error()
		return o
	}

	count := 0
	for rows.Next() {
		count++
	}
	err = rows.Err()
	rows.Close()

	o.LatencyMs = sinceMs(start)
	if err != nil {
		o.Code = errorCode(err)
		o.Error = err.Error()
		return o
	}

	o.Success = true
	o.Code = loadtest.CodeOK
	o.Bytes = count
	return o
}

// errorCode maps a driver error to its class: the postgres error code when
// available, TIMEOUT for deadline expiry, ERROR otherwise.
func errorCode(err error) string {
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code != "" {
		return string(pqErr.Code)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return loadtest.CodeTimeout
	}
	return loadtest.CodeError
}

func sinceMs(t time.Time) float64 {
	return float64(time.Since(t)) / float64(time.Millisecond)
}
