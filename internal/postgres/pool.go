// Package postgres builds the shared pgx pool with tracing and query
// metrics instrumentation.
package postgres

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/go-core/log"
)

var queryObserver atomic.Pointer[queryObserverHolder]

type queryObserverHolder struct{ QueryObserver }

// QueryObserver receives per-query metrics (wired by main for Prometheus).
type QueryObserver interface {
	ObserveQuery(ctx context.Context, outcome string, dur time.Duration)
}

// QueryObserverFunc adapts a plain function to QueryObserver.
type QueryObserverFunc func(ctx context.Context, outcome string, dur time.Duration)

// ObserveQuery implements QueryObserver.
func (f QueryObserverFunc) ObserveQuery(ctx context.Context, outcome string, dur time.Duration) {
	f(ctx, outcome, dur)
}

// SetQueryObserver installs the process-wide query observer.
func SetQueryObserver(obs QueryObserver) {
	queryObserver.Store(&queryObserverHolder{obs})
}

// NewPool connects a pgx pool with otel tracing and query logging.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.ConnConfig.Tracer = loggingTracer{inner: otelpgx.NewTracer()}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

type ctxKey string

const ctxKeyStart ctxKey = "pgx.start"

// loggingTracer wraps the otelpgx tracer and adds a structured log
// line plus an observer callback for every query.
type loggingTracer struct {
	inner pgx.QueryTracer
}

func (t loggingTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if t.inner != nil {
		ctx = t.inner.TraceQueryStart(ctx, conn, data)
	}
	return context.WithValue(ctx, ctxKeyStart, time.Now())
}

func (t loggingTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	if t.inner != nil {
		t.inner.TraceQueryEnd(ctx, conn, data)
	}

	var dur time.Duration
	if start, ok := ctx.Value(ctxKeyStart).(time.Time); ok {
		dur = time.Since(start)
	}

	outcome := "ok"
	if data.Err != nil {
		outcome = "error"
	}

	if h := queryObserver.Load(); h != nil && h.QueryObserver != nil {
		h.ObserveQuery(ctx, outcome, dur)
	}

	L := log.FromContext(ctx)
	if data.Err != nil {
		L.Error(ctx, data.Err, "db query failed", "db.duration", dur.Seconds())
		return
	}
	L.Info(ctx, "db query", "db.duration", dur.Seconds())
}
