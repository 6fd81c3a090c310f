// Package queries holds the default aggregation templates. They are written
// for DuckDB and read the raw_data and detector_config tables:
//
//	raw_data(TimeStamp, DeviceId, EventId, Parameter)
//	detector_config(DeviceId, Phase, Parameter, Function)
package queries

import "embed"

// FS holds one <name>.sql template per aggregation.
//
//go:embed *.sql
var FS embed.FS
