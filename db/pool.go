package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

// ErrUnavailable marks the backing store as unreachable at initialization.
// Callers check for it with errors.Is and skip query scenarios instead of
// failing the run.
var ErrUnavailable = errors.New("database unavailable")

const (
	defaultMaxConns       = 10
	defaultAcquireTimeout = 5 * time.Second
)

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	DSN             string
	MaxConns        int
	AcquireTimeout  time.Duration
	ConnMaxLifetime time.Duration
}

func (c PoolConfig) normalized() PoolConfig {
	if c.MaxConns < 1 {
		c.MaxConns = defaultMaxConns
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = defaultAcquireTimeout
	}
	return c
}

// Pool owns a fixed-size connection pool. Acquisition blocks when every
// connection is checked out, bounded by the acquire timeout.
type Pool struct {
	db             *sqlx.DB
	acquireTimeout time.Duration
}

// New opens and probes the pool. An unreachable store fails fast with
// ErrUnavailable rather than surfacing later as per-query failures.
func New(cfg PoolConfig) (*Pool, error) {
	cfg = cfg.normalized()

	sdb, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "open: %v", err)
	}

	p := configure(sdb, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.AcquireTimeout)
	defer cancel()

	if err := sdb.PingContext(ctx); err != nil {
		sdb.Close()
		return nil, errors.Wrapf(ErrUnavailable, "ping: %v", err)
	}

	return p, nil
}

// NewFromDB wraps an already-open database handle. Used by tests and by
// callers that manage their own driver setup.
func NewFromDB(sdb *sql.DB, driverName string, cfg PoolConfig) *Pool {
	cfg = cfg.normalized()
	return configure(sqlx.NewDb(sdb, driverName), cfg)
}

func configure(sdb *sqlx.DB, cfg PoolConfig) *Pool {
	sdb.SetMaxOpenConns(cfg.MaxConns)
	sdb.SetMaxIdleConns(cfg.MaxConns)
	if cfg.ConnMaxLifetime > 0 {
		sdb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return &Pool{
		db:             sdb,
		acquireTimeout: cfg.AcquireTimeout,
	}
}

// Stats is a point-in-time view of the pool for diagnostics.
type Stats struct {
	Active int   `json:"active"`
	Idle   int   `json:"idle"`
	Waited int64 `json:"waited"` // acquisitions that had to queue, cumulative
}

func (p *Pool) Stats() Stats {
	s := p.db.Stats()
	return Stats{
		Active: s.InUse,
		Idle:   s.Idle,
		Waited: s.WaitCount,
	}
}

func (p *Pool) Close() error {
	return p.db.Close()
}
