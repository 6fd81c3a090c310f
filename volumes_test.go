// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package atspm_test

import (
	"context"
	"database/sql"
	"errors"
	"testing/fstest"
	"time"

	. "gopkg.in/check.v1"

	atspm "github.com/chengulatj/ATSPM-Aggregation"
	"github.com/chengulatj/ATSPM-Aggregation/internal/logging"
	"github.com/chengulatj/ATSPM-Aggregation/internal/rolling"
)

type VolumesSuite struct{}

var _ = Suite(&VolumesSuite{})

func (s *VolumesSuite) TearDownTest(c *C) {
	resetRecorder(c.TestName())
}

type pedRow struct {
	timeStamp        string
	deviceID, phase  int
	pedServices      int
	pedActuation     int
	uniqueActuations int
	hourly           float64
}

var pedRows = []pedRow{
	{"2024-01-01 00:00:00", 1, 2, 0, 1, 1, 1},
	{"2024-01-01 00:15:00", 1, 2, 0, 0, 0, 1},
	{"2024-01-01 00:30:00", 1, 2, 0, 2, 2, 3},
	{"2024-01-01 00:45:00", 1, 2, 0, 3, 3, 6},
	{"2024-01-01 01:00:00", 1, 2, 0, 0, 0, 5},
	{"2024-01-01 01:15:00", 1, 2, 1, 0, 0, 5},
	{"2024-01-01 01:30:00", 1, 2, 0, 0, 0, 3},
	{"2024-01-01 01:45:00", 1, 2, 0, 0, 0, 0},
	{"2024-01-01 00:00:00", 2, 4, 0, 2, 2, 2},
	{"2024-01-01 00:15:00", 2, 4, 0, 0, 0, 2},
}

var fullPedParams = map[string]any{
	"remove_incomplete":          false,
	"seconds_between_actuations": 15,
	"return_volumes":             true,
}

func openPedDB(c *C, withUnique bool) *sql.DB {
	return openPedRows(c, pedRows, withUnique)
}

func openPedRows(c *C, pedRows []pedRow, withUnique bool) *sql.DB {
	db := openDB(c, nil)
	create := `CREATE TABLE ped_input (TimeStamp TEXT, DeviceId INTEGER, Phase INTEGER,
		PedServices INTEGER, PedActuation INTEGER, Unique_Actuations INTEGER, Estimated_Hourly REAL)`
	_, err := db.Exec(create)
	c.Assert(err, IsNil)
	for _, r := range pedRows {
		_, err := db.Exec(`INSERT INTO ped_input VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.timeStamp, r.deviceID, r.phase, r.pedServices, r.pedActuation, r.uniqueActuations, r.hourly)
		c.Assert(err, IsNil)
	}
	if !withUnique {
		_, err := db.Exec(`ALTER TABLE ped_input DROP COLUMN Unique_Actuations`)
		c.Assert(err, IsNil)
	}
	return db
}

type volume struct {
	TimeStamp string
	DeviceID  int
	Phase     int
	Volume    int64
}

func readVolumes(c *C, db *sql.DB) []volume {
	rows, err := db.Query(`SELECT TimeStamp, DeviceId, Phase, Estimated_Volumes FROM full_ped ORDER BY DeviceId, Phase, TimeStamp`)
	c.Assert(err, IsNil)
	defer rows.Close()
	var out []volume
	for rows.Next() {
		var v volume
		c.Assert(rows.Scan(&v.TimeStamp, &v.DeviceID, &v.Phase, &v.Volume), IsNil)
		out = append(out, v)
	}
	c.Assert(rows.Err(), IsNil)
	return out
}

func (s *VolumesSuite) TestReconstructVolumes(c *C) {
	db := openPedDB(c, true)
	defer db.Close()

	_, err := newSQLiteEngine().AggregateDB(context.Background(), db, "full_ped", false, fullPedParams)
	c.Assert(err, IsNil)

	c.Check(columns(c, db, "full_ped"), DeepEquals, []string{
		"TimeStamp", "DeviceId", "Phase", "PedServices", "PedActuation", "Unique_Actuations", "Estimated_Volumes",
	})
	// Rows left with no activity at all are removed.
	c.Check(readVolumes(c, db), DeepEquals, []volume{
		{"2024-01-01 00:00:00", 1, 2, 1},
		{"2024-01-01 00:30:00", 1, 2, 2},
		{"2024-01-01 00:45:00", 1, 2, 3},
		{"2024-01-01 01:15:00", 1, 2, 0},
		{"2024-01-01 00:00:00", 2, 4, 2},
	})
	c.Check(tableExists(c, db, "full_ped_next"), Equals, false)
}

func (s *VolumesSuite) TestReconstructVolumesWindow(c *C) {
	db := openPedDB(c, true)
	defer db.Close()

	// With a window of one period every hourly value is its own volume.
	engine := newSQLiteEngine(atspm.WithVolumeWindow(1))
	_, err := engine.AggregateDB(context.Background(), db, "full_ped", false, fullPedParams)
	c.Assert(err, IsNil)

	var total int64
	c.Assert(db.QueryRow(`SELECT SUM(Estimated_Volumes) FROM full_ped WHERE DeviceId = 1`).Scan(&total), IsNil)
	c.Check(total, Equals, int64(1+1+3+6+5+5+3+0))
}

func (s *VolumesSuite) TestNoVolumesKeepsHourly(c *C) {
	db := openPedDB(c, true)
	defer db.Close()

	params := map[string]any{
		"remove_incomplete":          false,
		"seconds_between_actuations": 15,
		"return_volumes":             false,
	}
	_, err := newSQLiteEngine().AggregateDB(context.Background(), db, "full_ped", false, params)
	c.Assert(err, IsNil)

	cols := columns(c, db, "full_ped")
	c.Check(cols[len(cols)-1], Equals, "Estimated_Hourly")
	var n int
	c.Assert(db.QueryRow(`SELECT COUNT(*) FROM full_ped`).Scan(&n), IsNil)
	c.Check(n, Equals, len(pedRows))
}

func (s *VolumesSuite) TestReconstructVolumesMissingColumn(c *C) {
	db := openPedDB(c, false)
	defer db.Close()

	templates := fstest.MapFS{
		"full_ped.sql": {Data: []byte(`SELECT TimeStamp, DeviceId, Phase, PedServices, PedActuation, Estimated_Hourly FROM ped_input`)},
	}
	engine := atspm.New(atspm.NewRenderer(templates), atspm.WithDialect(atspm.SQLite), atspm.WithLogger(logging.Discard()))
	_, err := engine.AggregateDB(context.Background(), db, "full_ped", false, fullPedParams)

	var pe *atspm.PostProcessingError
	c.Assert(errors.As(err, &pe), Equals, true)
	c.Check(pe.Aggregation, Equals, atspm.FullPed)
	c.Check(err, ErrorMatches, `cannot post-process aggregation "full_ped": table full_ped has no column Unique_Actuations`)

	// The table is left as the plan created it.
	cols := columns(c, db, "full_ped")
	c.Check(cols[len(cols)-1], Equals, "Estimated_Hourly")
}

func (s *VolumesSuite) TestReconstructVolumesFailureRollsBack(c *C) {
	db := openPedDB(c, true)
	defer db.Close()
	failStatement(c.TestName(), "RENAME TO full_ped")

	_, err := newSQLiteEngine().AggregateDB(context.Background(), db, "full_ped", false, fullPedParams)
	var pe *atspm.PostProcessingError
	c.Assert(errors.As(err, &pe), Equals, true)

	cols := columns(c, db, "full_ped")
	c.Check(cols[len(cols)-1], Equals, "Estimated_Hourly")
	c.Check(tableExists(c, db, "full_ped_next"), Equals, false)
}

func (s *VolumesSuite) TestReconstructVolumesOddBinSize(c *C) {
	// Seven minute bins: the trailing hour holds nine of them.
	volumes := []int64{2, 0, 1, 0, 0, 3, 0, 0, 1, 4, 0, 2}
	hourly := rolling.Sum(volumes, 9)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var rows []pedRow
	var expected []volume
	for i, v := range volumes {
		ts := start.Add(time.Duration(7*i) * time.Minute).Format(time.DateTime)
		rows = append(rows, pedRow{ts, 3, 1, 0, int(v), int(v), hourly[i]})
		if v > 0 {
			expected = append(expected, volume{ts, 3, 1, v})
		}
	}
	db := openPedRows(c, rows, true)
	defer db.Close()

	params := map[string]any{
		"remove_incomplete":          false,
		"seconds_between_actuations": 15,
		"return_volumes":             true,
		"bin_size":                   7,
	}
	_, err := newSQLiteEngine().AggregateDB(context.Background(), db, "full_ped", false, params)
	c.Assert(err, IsNil)
	c.Check(readVolumes(c, db), DeepEquals, expected)
}

// checkUsable fails the test if db cannot serve a query in time, as happens
// when a connection is left inside a transaction.
func checkUsable(c *C, db *sql.DB) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var n int
	c.Assert(db.QueryRowContext(ctx, `SELECT COUNT(*) FROM full_ped`).Scan(&n), IsNil)
	c.Check(n, Equals, len(pedRows))
}

func (s *VolumesSuite) TestFailedReconstructionReleasesConnection(c *C) {
	db := openPedDB(c, false)
	defer db.Close()

	templates := fstest.MapFS{
		"full_ped.sql": {Data: []byte(`SELECT TimeStamp, DeviceId, Phase, PedServices, PedActuation, Estimated_Hourly FROM ped_input`)},
	}
	engine := atspm.New(atspm.NewRenderer(templates), atspm.WithDialect(atspm.SQLite), atspm.WithLogger(logging.Discard()))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 2; i++ {
		_, err := engine.AggregateDB(ctx, db, "full_ped", false, fullPedParams)
		var pe *atspm.PostProcessingError
		c.Assert(errors.As(err, &pe), Equals, true, Commentf("attempt %d", i))
		checkUsable(c, db)
	}

	// The same through Aggregate on the pool itself.
	_, err := engine.Aggregate(ctx, db, "full_ped", false, fullPedParams)
	var pe *atspm.PostProcessingError
	c.Assert(errors.As(err, &pe), Equals, true)
	checkUsable(c, db)
}

func (s *VolumesSuite) TestTransactionalPlanKeepsBaseTable(c *C) {
	db := openPedDB(c, true)
	defer db.Close()
	failStatement(c.TestName(), "RENAME TO full_ped")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	engine := newSQLiteEngine(atspm.WithTransactionalPlans())
	_, err := engine.AggregateDB(ctx, db, "full_ped", false, fullPedParams)
	var pe *atspm.PostProcessingError
	c.Assert(errors.As(err, &pe), Equals, true)

	checkUsable(c, db)
	cols := columns(c, db, "full_ped")
	c.Check(cols[len(cols)-1], Equals, "Estimated_Hourly")
	c.Check(tableExists(c, db, "full_ped_next"), Equals, false)
}
