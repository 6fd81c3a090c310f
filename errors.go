// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package atspm

import (
	"fmt"
)

// TemplateNotFoundError is returned when no template is registered for an
// aggregation name.
type TemplateNotFoundError struct {
	Name string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("template not found for aggregation %q", e.Name)
}

// MissingParameterError is returned when a parameter required by the
// aggregation is absent. It is always returned before the store is touched.
type MissingParameterError struct {
	Aggregation Name
	Key         string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("aggregation %q: missing required parameter %q", e.Aggregation, e.Key)
}

// StoreExecutionError is returned when a statement of a plan fails on the
// store. Statements that ran before the failing one are not undone.
type StoreExecutionError struct {
	Aggregation Name
	// Statement is the text of the failing statement as sent to the store.
	Statement string
	// Args are the values bound to the placeholders of Statement.
	Args []any
	// Script is the whole plan with values written as literals.
	Script string
	Err    error
}

func (e *StoreExecutionError) Error() string {
	return fmt.Sprintf("cannot execute aggregation %q: statement %q: %s", e.Aggregation, e.Statement, e.Err)
}

func (e *StoreExecutionError) Unwrap() error {
	return e.Err
}

// PostProcessingError is returned when the work done after a successful
// plan, such as the full_ped volume reconstruction, fails. The tables
// created by the plan are left as the plan created them.
type PostProcessingError struct {
	Aggregation Name
	Err         error
}

func (e *PostProcessingError) Error() string {
	return fmt.Sprintf("cannot post-process aggregation %q: %s", e.Aggregation, e.Err)
}

func (e *PostProcessingError) Unwrap() error {
	return e.Err
}
