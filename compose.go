// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package atspm

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chengulatj/ATSPM-Aggregation/internal/expr"
	"github.com/chengulatj/ATSPM-Aggregation/internal/paraminfo"
)

// Statement is a single statement of a Plan.
type Statement struct {
	// SQL is the statement text with "?" placeholders.
	SQL string
	// Args are the values of the placeholders, in order.
	Args []any

	inlined string
}

// Plan is the ordered list of statements that computes an aggregation.
type Plan struct {
	Aggregation Name
	Statements  []Statement

	// volumes is set when the plan must be followed by volume
	// reconstruction.
	volumes bool
	binSize int
}

// SQL returns the plan as a script, with every value written as a literal.
// Statements are separated by newlines.
func (p *Plan) SQL() string {
	lines := make([]string, len(p.Statements))
	for i, s := range p.Statements {
		lines[i] = s.inlined
	}
	return strings.Join(lines, "\n")
}

// ReconstructsVolumes reports whether running the plan is followed by the
// reconstruction of full_ped volumes.
func (p *Plan) ReconstructsVolumes() bool {
	return p.volumes
}

// completenessFilter keeps only the bins found in has_data. The query may
// end in a line comment, so it is closed on a line of its own.
const completenessFilter = "SELECT * FROM (%s\n) main_query NATURAL JOIN has_data"

// Compose builds the plan of the aggregation p belongs to. The store is
// not touched.
func (e *Engine) Compose(p Params) (*Plan, error) {
	if p == nil {
		return nil, errors.New("cannot compose plan: nil parameters")
	}
	name := p.Name()
	if err := validate(p); err != nil {
		return nil, err
	}
	info, err := paraminfo.Cache().Reflect(p)
	if err != nil {
		return nil, fmt.Errorf("internal error: %s", err)
	}
	structural, inputs := info.Values(p)

	binSize, _ := structural["bin_size"].(int)
	if binSize < 0 {
		return nil, fmt.Errorf("cannot compose %q: bin_size must be positive, got %d", name, binSize)
	}
	if binSize == 0 {
		binSize = DefaultBinSize
		structural["bin_size"] = binSize
	}

	base, err := e.renderer.Render(name, structural)
	if err != nil {
		return nil, err
	}
	if removeIncomplete, _ := inputs["remove_incomplete"].(bool); removeIncomplete && name.Filtered() {
		base = fmt.Sprintf(completenessFilter, base)
	}
	if i := strings.LastIndex(base, "\n"); strings.Contains(base[i+1:], "--") {
		base += "\n"
	}

	texts := []string{e.dialect.replaceTable(name, base)}
	if name == Timeline {
		tp := timelineParams(p)
		inputs["unmatched_cutoff"] = tp.MinTimestamp.AddDate(0, 0, -tp.MaxEventDays)
		texts = append(texts, e.timelineCleanup(tp)...)
	}

	plan := &Plan{Aggregation: name, binSize: binSize}
	for _, text := range texts {
		stmt, err := bindStatement(name, text, inputs)
		if err != nil {
			return nil, err
		}
		plan.Statements = append(plan.Statements, stmt)
	}
	if returnVolumes, _ := inputs["return_volumes"].(bool); returnVolumes && name == FullPed {
		plan.volumes = true
	}
	return plan, nil
}

func timelineParams(p Params) TimelineParams {
	switch p := p.(type) {
	case *TimelineParams:
		return *p
	case TimelineParams:
		return p
	}
	panic(fmt.Sprintf("internal error: %T is not timeline parameters", p))
}

// timelineCleanup returns the statements that follow the creation of the
// timeline table: open events are moved to unmatched_events and the event
// columns are dropped.
func (e *Engine) timelineCleanup(p TimelineParams) []string {
	unmatched := "SELECT StartTime AS TimeStamp, DeviceId, EventId, Parameter FROM timeline " +
		"WHERE EndTime IS NULL AND StartTime >= $unmatched_cutoff"
	del := "DELETE FROM timeline WHERE EndTime IS NULL"
	if p.MinDuration != nil {
		del += " OR Duration < $min_duration"
	}
	return []string{
		e.dialect.replaceTable(UnmatchedEvents, unmatched),
		del + ";",
		"ALTER TABLE timeline DROP COLUMN EventId;",
		"ALTER TABLE timeline DROP COLUMN Parameter;",
	}
}

// bindStatement parses the input expressions of text and binds them.
func bindStatement(name Name, text string, inputs map[string]any) (Statement, error) {
	pe, err := expr.NewParser().Parse(text)
	if err != nil {
		return Statement{}, fmt.Errorf("cannot parse statement of %q: %s", name, err)
	}
	values := make(map[string]any, len(inputs))
	for k, v := range inputs {
		// Timestamps are bound as UTC text, which SQLite compares with
		// its text columns.
		if t, ok := v.(time.Time); ok {
			v = t.UTC().Format(expr.TimestampLayout)
		}
		values[k] = v
	}
	ps, err := pe.BindInputs(values)
	if err != nil {
		var missing *expr.MissingInputError
		if errors.As(err, &missing) {
			return Statement{}, &MissingParameterError{Aggregation: name, Key: missing.Name}
		}
		return Statement{}, fmt.Errorf("cannot bind statement of %q: %s", name, err)
	}
	inlined, err := pe.Inline(values)
	if err != nil {
		return Statement{}, fmt.Errorf("cannot bind statement of %q: %s", name, err)
	}
	return Statement{SQL: ps.SQL(), Args: ps.Args(), inlined: inlined}, nil
}
