/*
Package expr processes the statement text produced by the aggregation
templates, finds the input expressions in it and turns them into bound
query parameters. It does not cover interaction with the databases.

An input expression names a parameter value by key:

	WHERE Duration >= $min_duration
	AND EventId IN ($event_codes[:])

The first form is replaced by a single placeholder, the second form expands a
slice value into a comma separated list of placeholders. Expressions inside
string literals and comments are left alone, as is anything starting with a
dollar sign that is not followed by a name (for example positional $1).

The package is split in two stages.

# Parsing stage

The parser splits the text into bypass chunks, passed to the database
verbatim, and input parts. It only looks at the syntax of the text.

# Binding stage

The binding stage takes the parameter values and generates either the SQL
with placeholders and the matching argument list, or a display form with the
values written as SQL literals.
*/
package expr
