// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package atspm_test

import (
	"context"
	"errors"
	"strings"
	"testing/fstest"
	"time"

	. "gopkg.in/check.v1"

	atspm "github.com/chengulatj/ATSPM-Aggregation"
	"github.com/chengulatj/ATSPM-Aggregation/internal/logging"
)

type ComposeSuite struct{}

var _ = Suite(&ComposeSuite{})

// everyParam holds a value for every parameter of every aggregation. Keys
// an aggregation does not use are ignored.
func everyParam(removeIncomplete bool) map[string]any {
	return map[string]any{
		"remove_incomplete":          removeIncomplete,
		"no_data_min":                5,
		"min_data_points":            3,
		"latency_offset_seconds":     1.5,
		"event_codes":                []int{400, 503},
		"seconds_between_actuations": 15,
		"return_volumes":             true,
		"red_time":                   5,
		"red_occupancy_threshold":    0.8,
		"green_occupancy_threshold":  0.8,
		"by_approach":                true,
		"min_red_offset":             -8,
		"min_timestamp":              "2024-01-15 00:00:00",
		"max_event_days":             14,
	}
}

func compose(c *C, e *atspm.Engine, name string, params map[string]any) *atspm.Plan {
	p, err := atspm.ParamsFor(name, params)
	c.Assert(err, IsNil, Commentf("%s", name))
	plan, err := e.Compose(p)
	c.Assert(err, IsNil, Commentf("%s", name))
	return plan
}

func defaultEngine(opts ...atspm.Option) *atspm.Engine {
	opts = append([]atspm.Option{atspm.WithLogger(logging.Discard())}, opts...)
	return atspm.New(atspm.DefaultRenderer(), opts...)
}

func (s *ComposeSuite) TestStatementCount(c *C) {
	e := defaultEngine()
	for _, name := range atspm.Names() {
		if name == atspm.UnmatchedEvents {
			continue
		}
		plan := compose(c, e, string(name), everyParam(false))
		c.Check(plan.Aggregation, Equals, name)
		if name == atspm.Timeline {
			c.Check(plan.Statements, HasLen, 5)
			continue
		}
		c.Assert(plan.Statements, HasLen, 1, Commentf("%s", name))
		stmt := plan.Statements[0].SQL
		c.Check(strings.HasPrefix(stmt, "CREATE OR REPLACE TABLE "+string(name)+" AS "), Equals, true, Commentf("%s", stmt))
		c.Check(strings.HasSuffix(stmt, ";"), Equals, true, Commentf("%s", stmt))
	}
}

func (s *ComposeSuite) TestUnmatchedEventsHasNoTemplate(c *C) {
	_, err := defaultEngine().AggregateParams(context.Background(), nil, atspm.UnmatchedEventsParams{}, true)
	var te *atspm.TemplateNotFoundError
	c.Assert(errors.As(err, &te), Equals, true)
	c.Check(te.Name, Equals, "unmatched_events")
}

func (s *ComposeSuite) TestCompletenessFilter(c *C) {
	e := defaultEngine()
	for _, name := range atspm.Names() {
		if name == atspm.UnmatchedEvents {
			continue
		}
		plan := compose(c, e, string(name), everyParam(true))
		stmt := plan.Statements[0].SQL
		filtered := strings.Contains(stmt, ") main_query NATURAL JOIN has_data;")
		c.Check(filtered, Equals, name.Filtered(), Commentf("%s", name))
		if filtered {
			c.Check(strings.HasPrefix(stmt, "CREATE OR REPLACE TABLE "+string(name)+" AS SELECT * FROM ("), Equals, true)
		}

		plan = compose(c, e, string(name), everyParam(false))
		c.Check(strings.Contains(plan.Statements[0].SQL, "NATURAL JOIN has_data"), Equals, false, Commentf("%s", name))
	}
}

func (s *ComposeSuite) TestCompletenessFilterTrailingComment(c *C) {
	templates := fstest.MapFS{
		"actuations.sql": {Data: []byte("SELECT * FROM raw_data -- every event\n")},
	}
	e := atspm.New(atspm.NewRenderer(templates), atspm.WithLogger(logging.Discard()))
	plan, err := e.Compose(atspm.ActuationsParams{Completeness: atspm.Completeness{RemoveIncomplete: true}})
	c.Assert(err, IsNil)
	c.Check(plan.Statements[0].SQL, Equals, "CREATE OR REPLACE TABLE actuations AS "+
		"SELECT * FROM (SELECT * FROM raw_data -- every event\n) main_query NATURAL JOIN has_data;")

	plan, err = e.Compose(atspm.ActuationsParams{})
	c.Assert(err, IsNil)
	c.Check(plan.Statements[0].SQL, Equals, "CREATE OR REPLACE TABLE actuations AS SELECT * FROM raw_data -- every event\n;")
}

func (s *ComposeSuite) TestTimelineStatements(c *C) {
	plan := compose(c, defaultEngine(), "timeline", everyParam(true))
	c.Assert(plan.Statements, HasLen, 5)

	c.Check(strings.HasPrefix(plan.Statements[0].SQL, "CREATE OR REPLACE TABLE timeline AS "), Equals, true)
	c.Check(strings.Contains(plan.Statements[0].SQL, "has_data"), Equals, false)
	c.Check(plan.Statements[1].SQL, Equals, "CREATE OR REPLACE TABLE unmatched_events AS "+
		"SELECT StartTime AS TimeStamp, DeviceId, EventId, Parameter "+
		"FROM timeline WHERE EndTime IS NULL AND StartTime >= ?;")
	c.Check(plan.Statements[1].Args, DeepEquals, []any{"2024-01-01 00:00:00"})
	c.Check(plan.Statements[2].SQL, Equals, "DELETE FROM timeline WHERE EndTime IS NULL;")
	c.Check(plan.Statements[3].SQL, Equals, "ALTER TABLE timeline DROP COLUMN EventId;")
	c.Check(plan.Statements[4].SQL, Equals, "ALTER TABLE timeline DROP COLUMN Parameter;")
}

func (s *ComposeSuite) TestTimelineMinDuration(c *C) {
	params := everyParam(false)
	params["min_duration"] = 2.5
	plan := compose(c, defaultEngine(), "timeline", params)
	c.Check(plan.Statements[2].SQL, Equals, "DELETE FROM timeline WHERE EndTime IS NULL OR Duration < ?;")
	c.Check(plan.Statements[2].Args, DeepEquals, []any{2.5})
}

func (s *ComposeSuite) TestTimelineCutoffInUTC(c *C) {
	params := everyParam(false)
	params["min_timestamp"] = "2024-01-15T02:00:00+02:00"
	plan := compose(c, defaultEngine(), "timeline", params)
	c.Check(plan.Statements[1].Args, DeepEquals, []any{"2024-01-01 00:00:00"})

	plan, err := defaultEngine().Compose(atspm.TimelineParams{
		MinTimestamp: time.Date(2024, 1, 14, 19, 0, 0, 0, time.FixedZone("EST", -5*3600)),
		MaxEventDays: 14,
	})
	c.Assert(err, IsNil)
	c.Check(plan.Statements[1].Args, DeepEquals, []any{"2024-01-01 00:00:00"})
}

func (s *ComposeSuite) TestSQLiteDialect(c *C) {
	plan := compose(c, defaultEngine(atspm.WithDialect(atspm.SQLite)), "timeline", everyParam(false))
	c.Check(strings.HasPrefix(plan.Statements[0].SQL, "DROP TABLE IF EXISTS timeline; CREATE TABLE timeline AS "), Equals, true)
	c.Check(strings.HasPrefix(plan.Statements[1].SQL, "DROP TABLE IF EXISTS unmatched_events; CREATE TABLE unmatched_events AS SELECT"), Equals, true)
}

func (s *ComposeSuite) TestBoundInputs(c *C) {
	plan := compose(c, defaultEngine(), "communications", everyParam(true))
	stmt := plan.Statements[0]
	c.Check(strings.Contains(stmt.SQL, "WHERE EventId IN (?, ?)"), Equals, true, Commentf("%s", stmt.SQL))
	c.Check(stmt.Args, DeepEquals, []any{400, 503})
	c.Check(strings.Contains(plan.SQL(), "WHERE EventId IN (400, 503)"), Equals, true)
	c.Check(strings.Contains(plan.SQL(), "$event_codes"), Equals, false)

	plan, err := defaultEngine().Compose(atspm.CommunicationsParams{EventCodes: []int{}})
	c.Assert(err, IsNil)
	c.Check(strings.Contains(plan.Statements[0].SQL, "WHERE EventId IN (NULL)"), Equals, true)
	c.Check(plan.Statements[0].Args, HasLen, 0)
}

func (s *ComposeSuite) TestStructuralParams(c *C) {
	e := defaultEngine()

	params := everyParam(false)
	plan := compose(c, e, "actuations", params)
	c.Check(strings.Contains(plan.Statements[0].SQL, "INTERVAL '15 minutes'"), Equals, true)
	params["bin_size"] = 5
	plan = compose(c, e, "actuations", params)
	c.Check(strings.Contains(plan.Statements[0].SQL, "INTERVAL '5 minutes'"), Equals, true)

	params = everyParam(false)
	plan = compose(c, e, "split_failures", params)
	c.Check(strings.Contains(plan.Statements[0].SQL, "Detector,"), Equals, false)
	params["by_approach"] = false
	plan = compose(c, e, "split_failures", params)
	c.Check(strings.Contains(plan.Statements[0].SQL, "d.Detector,"), Equals, true)
}

func (s *ComposeSuite) TestNegativeBinSize(c *C) {
	_, err := defaultEngine().Compose(atspm.ActuationsParams{Binning: atspm.Binning{BinSize: -15}})
	c.Assert(err, ErrorMatches, `cannot compose "actuations": bin_size must be positive, got -15`)
}

func (s *ComposeSuite) TestPlanSQLIsPure(c *C) {
	plan := compose(c, defaultEngine(), "timeline", everyParam(false))
	first := plan.SQL()
	c.Check(plan.SQL(), Equals, first)
	c.Check(strings.Count(first, "\n") >= 4, Equals, true)
	c.Check(strings.Contains(first, "StartTime >= '2024-01-01 00:00:00';"), Equals, true)

	again := compose(c, defaultEngine(), "timeline", everyParam(false))
	c.Check(again.SQL(), Equals, first)
}

func (s *ComposeSuite) TestReconstructsVolumes(c *C) {
	e := defaultEngine()
	c.Check(compose(c, e, "full_ped", everyParam(false)).ReconstructsVolumes(), Equals, true)

	params := everyParam(false)
	params["return_volumes"] = false
	c.Check(compose(c, e, "full_ped", params).ReconstructsVolumes(), Equals, false)
	c.Check(compose(c, e, "unique_ped", everyParam(false)).ReconstructsVolumes(), Equals, false)
}
