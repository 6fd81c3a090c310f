// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package atspm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chengulatj/ATSPM-Aggregation/internal/metrics"
	"github.com/chengulatj/ATSPM-Aggregation/internal/rolling"
)

// Run runs plan on conn. If toSQL is true the plan is returned as SQL text
// instead and conn is not used.
//
// Statements run in order and stop at the first failure, which is returned
// as a *StoreExecutionError. Statements that succeeded are not undone unless
// the engine was created WithTransactionalPlans.
func (e *Engine) Run(ctx context.Context, conn Conn, plan *Plan, toSQL bool) (string, error) {
	if plan == nil {
		return "", errors.New("cannot run aggregation: nil plan")
	}
	start := time.Now()
	name := string(plan.Aggregation)
	log := e.logger.With("aggregation", name, "run_id", uuid.NewString())

	if toSQL {
		e.metrics.Plan(name, metrics.OutcomeSQLOnly, time.Since(start))
		log.Debug("composed aggregation", "statements", len(plan.Statements))
		return plan.SQL(), nil
	}
	if conn == nil {
		return "", fmt.Errorf("cannot run aggregation %q: nil connection", name)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	target := conn
	var tx *sql.Tx
	if b, ok := conn.(txBeginner); ok && e.transactional {
		sqltx, err := b.BeginTx(ctx, nil)
		if err != nil {
			e.metrics.Plan(name, metrics.OutcomeStoreError, time.Since(start))
			log.Error("cannot begin transaction", "error", err)
			return "", &StoreExecutionError{Aggregation: plan.Aggregation, Statement: "BEGIN", Script: plan.SQL(), Err: err}
		}
		tx, target = sqltx, sqltx
	}

	for _, s := range plan.Statements {
		log.Debug("executing statement", "statement", s.SQL)
		_, err := target.ExecContext(ctx, s.SQL, s.Args...)
		e.metrics.Statement(name, err)
		if err != nil {
			if tx != nil {
				tx.Rollback()
			}
			e.metrics.Plan(name, metrics.OutcomeStoreError, time.Since(start))
			log.Error("statement failed", "statement", s.SQL, "error", err)
			return "", &StoreExecutionError{
				Aggregation: plan.Aggregation,
				Statement:   s.SQL,
				Args:        s.Args,
				Script:      plan.SQL(),
				Err:         err,
			}
		}
	}
	if tx != nil {
		if err := tx.Commit(); err != nil {
			e.metrics.Plan(name, metrics.OutcomeStoreError, time.Since(start))
			log.Error("cannot commit transaction", "error", err)
			return "", &StoreExecutionError{Aggregation: plan.Aggregation, Statement: "COMMIT", Script: plan.SQL(), Err: err}
		}
	}

	if plan.volumes {
		window := e.volumeWindow
		if window <= 0 {
			window = rolling.HourWindow(plan.binSize)
		}
		if err := e.reconstructVolumes(ctx, conn, window); err != nil {
			e.metrics.Plan(name, metrics.OutcomePostProcessing, time.Since(start))
			log.Error("volume reconstruction failed", "error", err)
			return "", &PostProcessingError{Aggregation: plan.Aggregation, Err: err}
		}
		log.Debug("reconstructed volumes", "window", window)
	}

	elapsed := time.Since(start)
	e.metrics.Plan(name, metrics.OutcomeExecuted, elapsed)
	log.Info("aggregation complete", "statements", len(plan.Statements), "duration", elapsed)
	return "", nil
}
