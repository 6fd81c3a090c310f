/*
Package atspm composes and runs the aggregation queries that turn high
resolution traffic signal event logs into derived tables.

Each aggregation has a name, a SQL template and a parameter type. The engine
renders the template, applies the structural rules of the aggregation and
produces a Plan: an ordered list of statements that replace the table named
after the aggregation. The plan is then either run on a database connection
or returned as SQL text.

# Basics

	engine := atspm.New(atspm.DefaultRenderer())
	_, err := engine.Aggregate(ctx, conn, "actuations", false, map[string]any{
		"remove_incomplete": true,
	})

Parameters can also be given with the typed form:

	_, err := engine.AggregateParams(ctx, conn, atspm.ActuationsParams{
		Completeness: atspm.Completeness{RemoveIncomplete: true},
	}, false)

# Completeness filtering

When remove_incomplete is set, the result of the template is natural joined
with the has_data table so only the bins judged to have enough data are
kept. has_data must therefore be computed first. The has_data, timeline and
unmatched_events aggregations are never filtered.

# Templates

Templates are text/template files named after the aggregation, for example
actuations.sql. Structural parameters such as bin_size are available to the
template as {{.bin_size}}. All other parameters are bound as query arguments
and are referenced with input expressions:

	SELECT DeviceId, TimeStamp
	FROM raw_data
	WHERE EventId IN ($event_codes[:]) AND Duration >= $min_duration

# Execution

Statements run in order on a single connection and are not wrapped in a
transaction: when a statement fails, the tables created by the statements
before it are kept. WithTransactionalPlans changes that. Failures are
reported as *StoreExecutionError carrying the aggregation name and the
statement that failed.
*/
package atspm
