// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package atspm

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chengulatj/ATSPM-Aggregation/internal/metrics"
)

// Conn is a connection to the store. It is satisfied by *sql.DB, *sql.Conn
// and *sql.Tx.
//
// The statements of a plan must all run in the same session, so a *sql.DB
// should only be used when it holds a single connection. See
// [Engine.AggregateDB].
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// txBeginner is implemented by connections that can start a transaction.
type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Engine composes and runs aggregation plans. An Engine is safe for
// concurrent use, the connections given to it are not.
type Engine struct {
	renderer      *Renderer
	dialect       Dialect
	logger        *slog.Logger
	metrics       *metrics.Recorder
	transactional bool
	volumeWindow  int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithDialect sets the dialect of the statements. The default is DuckDB.
func WithDialect(d Dialect) Option {
	return func(e *Engine) {
		e.dialect = d
	}
}

// WithRegisterer registers the engine metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.metrics = metrics.NewRecorder(reg)
	}
}

// WithTransactionalPlans runs the statements of a plan in a transaction when
// the connection can begin one, so a failing statement leaves no table
// behind.
func WithTransactionalPlans() Option {
	return func(e *Engine) {
		e.transactional = true
	}
}

// WithVolumeWindow sets the number of periods of the rolling sum undone by
// volume reconstruction. By default it is the number of bins in an hour.
func WithVolumeWindow(periods int) Option {
	return func(e *Engine) {
		e.volumeWindow = periods
	}
}

// New returns an Engine using the templates of r.
func New(r *Renderer, opts ...Option) *Engine {
	if r == nil {
		r = DefaultRenderer()
	}
	e := &Engine{
		renderer: r,
		dialect:  DuckDB,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Aggregate computes the named aggregation. params are decoded with
// [ParamsFor].
//
// If toSQL is true the plan is returned as SQL text and conn is not used; it
// may be nil. Otherwise the plan is run on conn, the table named after the
// aggregation is replaced and the empty string is returned.
func (e *Engine) Aggregate(ctx context.Context, conn Conn, name string, toSQL bool, params map[string]any) (string, error) {
	p, err := ParamsFor(name, params)
	if err != nil {
		return "", err
	}
	return e.AggregateParams(ctx, conn, p, toSQL)
}

// AggregateParams is like Aggregate but takes typed parameters. Fields left
// at their zero value are used as such; see [Params].
func (e *Engine) AggregateParams(ctx context.Context, conn Conn, p Params, toSQL bool) (string, error) {
	plan, err := e.Compose(p)
	if err != nil {
		return "", err
	}
	return e.Run(ctx, conn, plan, toSQL)
}

// AggregateDB is like Aggregate but runs every statement on a single
// connection taken from db, which is returned to the pool afterwards.
func (e *Engine) AggregateDB(ctx context.Context, db *sql.DB, name string, toSQL bool, params map[string]any) (string, error) {
	p, err := ParamsFor(name, params)
	if err != nil {
		return "", err
	}
	plan, err := e.Compose(p)
	if err != nil {
		return "", err
	}
	if toSQL {
		return e.Run(ctx, nil, plan, true)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return "", fmt.Errorf("cannot get connection: %s", err)
	}
	defer conn.Close()
	return e.Run(ctx, conn, plan, false)
}
