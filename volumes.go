// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package atspm

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/chengulatj/ATSPM-Aggregation/internal/rolling"
)

const (
	numberedTable = "atspm_numbered"
	volumesTable  = "atspm_volumes"
	nextTable     = "full_ped_next"
	rowColumn     = "atspm_row"
	hourlyColumn  = "Estimated_Hourly"
	volumesColumn = "Estimated_Volumes"

	// insertBatch is the number of rows written by one INSERT statement.
	insertBatch = 200
)

// requiredPedColumns must all be present in full_ped for volumes to be
// reconstructed.
var requiredPedColumns = []string{
	"DeviceId", "Phase", "TimeStamp", hourlyColumn,
	"PedServices", "PedActuation", "Unique_Actuations",
}

type volumeRow struct {
	row    int64
	group  string
	hourly float64
}

// reconstructVolumes replaces the Estimated_Hourly column of full_ped by
// Estimated_Volumes, the per bin volumes whose trailing sum over window bins
// gives Estimated_Hourly. Rows with no activity left are removed.
//
// When conn can begin a transaction the whole replacement is atomic.
func (e *Engine) reconstructVolumes(ctx context.Context, conn Conn, window int) error {
	b, ok := conn.(txBeginner)
	if !ok {
		return e.replaceVolumes(ctx, conn, window)
	}
	tx, err := b.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cannot begin transaction: %s", err)
	}
	if err := e.replaceVolumes(ctx, tx, window); err != nil {
		// The transaction holds the connection until it ends.
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cannot commit transaction: %s", err)
	}
	return nil
}

func (e *Engine) replaceVolumes(ctx context.Context, conn Conn, window int) error {
	columns, err := tableColumns(ctx, conn, string(FullPed))
	if err != nil {
		return err
	}
	for _, required := range requiredPedColumns {
		if !contains(columns, required) {
			return fmt.Errorf("table %s has no column %s", FullPed, required)
		}
	}

	err = execAll(ctx, conn,
		"DROP TABLE IF EXISTS "+numberedTable,
		"DROP TABLE IF EXISTS "+volumesTable,
		"DROP TABLE IF EXISTS "+nextTable,
		fmt.Sprintf("CREATE TEMP TABLE %s AS SELECT ROW_NUMBER() OVER (ORDER BY DeviceId, Phase, TimeStamp) AS %s, * FROM %s",
			numberedTable, rowColumn, FullPed),
	)
	if err != nil {
		return err
	}

	rows, err := readVolumeRows(ctx, conn)
	if err != nil {
		return err
	}
	volumes := undoGroups(rows, window)

	if err := execAll(ctx, conn, fmt.Sprintf("CREATE TEMP TABLE %s (%s BIGINT, %s BIGINT)", volumesTable, rowColumn, volumesColumn)); err != nil {
		return err
	}
	if err := insertVolumes(ctx, conn, rows, volumes); err != nil {
		return err
	}

	var kept []string
	for _, c := range columns {
		if c != hourlyColumn {
			kept = append(kept, "n."+quoteIdent(c))
		}
	}
	create := fmt.Sprintf("CREATE TABLE %s AS SELECT %s, v.%s FROM %s n JOIN %s v ON n.%s = v.%s "+
		"WHERE n.PedServices > 0 OR n.PedActuation > 0 OR n.Unique_Actuations > 0 OR v.%s > 0 "+
		"ORDER BY n.%s",
		nextTable, strings.Join(kept, ", "), volumesColumn, numberedTable, volumesTable, rowColumn, rowColumn,
		volumesColumn, rowColumn)

	return execAll(ctx, conn,
		create,
		"DROP TABLE "+string(FullPed),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", nextTable, FullPed),
		"DROP TABLE "+numberedTable,
		"DROP TABLE "+volumesTable,
	)
}

// readVolumeRows reads the numbered rows of full_ped in order. The rows are
// closed before returning so the connection can be used again.
func readVolumeRows(ctx context.Context, conn Conn) ([]volumeRow, error) {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf("SELECT %s, DeviceId, Phase, %s FROM %s ORDER BY %s",
		rowColumn, hourlyColumn, numberedTable, rowColumn))
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %s", FullPed, err)
	}
	defer rows.Close()

	var out []volumeRow
	for rows.Next() {
		var (
			r             volumeRow
			device, phase any
			hourly        sql.NullFloat64
		)
		if err := rows.Scan(&r.row, &device, &phase, &hourly); err != nil {
			return nil, fmt.Errorf("cannot read %s: %s", FullPed, err)
		}
		r.group = fmt.Sprintf("%v\x00%v", device, phase)
		r.hourly = hourly.Float64
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cannot read %s: %s", FullPed, err)
	}
	return out, nil
}

// undoGroups undoes the rolling sum separately on every run of rows sharing
// a device and phase.
func undoGroups(rows []volumeRow, window int) []int64 {
	out := make([]int64, 0, len(rows))
	for start := 0; start < len(rows); {
		end := start + 1
		for end < len(rows) && rows[end].group == rows[start].group {
			end++
		}
		sums := make([]float64, end-start)
		for i := range sums {
			sums[i] = rows[start+i].hourly
		}
		out = append(out, rolling.Undo(sums, window)...)
		start = end
	}
	return out
}

func insertVolumes(ctx context.Context, conn Conn, rows []volumeRow, volumes []int64) error {
	for start := 0; start < len(rows); start += insertBatch {
		end := start + insertBatch
		if end > len(rows) {
			end = len(rows)
		}
		values := make([]string, 0, end-start)
		args := make([]any, 0, 2*(end-start))
		for i := start; i < end; i++ {
			values = append(values, "(?, ?)")
			args = append(args, rows[i].row, volumes[i])
		}
		query := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES %s", volumesTable, rowColumn, volumesColumn, strings.Join(values, ", "))
		if _, err := conn.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("cannot write volumes: %s", err)
		}
	}
	return nil
}

func tableColumns(ctx context.Context, conn Conn, table string) ([]string, error) {
	rows, err := conn.QueryContext(ctx, "SELECT * FROM "+table+" LIMIT 0")
	if err != nil {
		return nil, fmt.Errorf("cannot read columns of %s: %s", table, err)
	}
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("cannot read columns of %s: %s", table, err)
	}
	return columns, nil
}

func execAll(ctx context.Context, conn Conn, queries ...string) error {
	for _, q := range queries {
		if _, err := conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("cannot execute %q: %s", q, err)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
