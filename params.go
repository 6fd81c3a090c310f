// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package atspm

import (
	"errors"
	"fmt"
	"time"

	"github.com/chengulatj/ATSPM-Aggregation/internal/paraminfo"
)

// Params holds the parameters of one aggregation. There is one Params type
// per aggregation name and the set is closed.
//
// Fields are tagged with their parameter key. Fields tagged "structural" are
// written into the template text; every other field is bound as a query
// argument and is referenced from templates as $key.
//
// Required keys are only checked by [ParamsFor]. A Params value built in Go
// holds a value for every field, so an omitted bool such as RemoveIncomplete
// or ReturnVolumes is false and an omitted number is zero.
type Params interface {
	// Name returns the aggregation the parameters belong to.
	Name() Name
	isParams()
}

// DefaultBinSize is the bin width, in minutes, used when BinSize is zero.
const DefaultBinSize = 15

// Binning is embedded in every Params type.
type Binning struct {
	// BinSize is the width of the time bins in minutes.
	BinSize int `param:"bin_size,structural"`
}

// Completeness is embedded in the Params of every aggregation the
// completeness filter applies to.
type Completeness struct {
	// RemoveIncomplete keeps only the rows whose bin is in has_data.
	RemoveIncomplete bool `param:"remove_incomplete,required"`
}

// HasDataParams are the parameters of the has_data aggregation.
type HasDataParams struct {
	Binning
	// NoDataMin is the width in minutes of the sub-bins that must each
	// contain data.
	NoDataMin int `param:"no_data_min,required,structural"`
	// MinDataPoints is the number of events a sub-bin needs.
	MinDataPoints int `param:"min_data_points,required"`
}

type ActuationsParams struct {
	Binning
	Completeness
}

type ArrivalOnGreenParams struct {
	Binning
	Completeness
	LatencyOffsetSeconds float64 `param:"latency_offset_seconds,required"`
}

type CommunicationsParams struct {
	Binning
	Completeness
	EventCodes []int `param:"event_codes,required"`
}

type CoordinationParams struct {
	Binning
	Completeness
}

type PedParams struct {
	Binning
	Completeness
}

type UniquePedParams struct {
	Binning
	Completeness
	SecondsBetweenActuations float64 `param:"seconds_between_actuations,required"`
}

// FullPedParams are the parameters of the full_ped aggregation.
type FullPedParams struct {
	Binning
	Completeness
	SecondsBetweenActuations float64 `param:"seconds_between_actuations,required"`
	// ReturnVolumes replaces Estimated_Hourly by Estimated_Volumes after the
	// table is created.
	ReturnVolumes bool `param:"return_volumes,required"`
}

type SplitFailuresParams struct {
	Binning
	Completeness
	RedTime                 float64 `param:"red_time,required"`
	RedOccupancyThreshold   float64 `param:"red_occupancy_threshold,required"`
	GreenOccupancyThreshold float64 `param:"green_occupancy_threshold,required"`
	ByApproach              bool    `param:"by_approach,required,structural"`
}

type SplitsParams struct {
	Binning
	Completeness
}

type TerminationsParams struct {
	Binning
	Completeness
}

type YellowRedParams struct {
	Binning
	Completeness
	LatencyOffsetSeconds float64 `param:"latency_offset_seconds,required"`
	MinRedOffset         float64 `param:"min_red_offset,required"`
}

// TimelineParams are the parameters of the timeline aggregation.
type TimelineParams struct {
	Binning
	// RemoveIncomplete is accepted for uniformity; timeline is never
	// filtered.
	RemoveIncomplete bool `param:"remove_incomplete"`
	// MinTimestamp is the start of the data being processed.
	MinTimestamp time.Time `param:"min_timestamp,required"`
	// MaxEventDays is how far before MinTimestamp an open event may have
	// started and still be kept in unmatched_events.
	MaxEventDays int `param:"max_event_days,required"`
	// MinDuration, when set, also drops closed intervals shorter than it.
	MinDuration *float64 `param:"min_duration"`
	// CushionTime widens every interval by this many seconds on each side.
	CushionTime int `param:"cushion_time,structural"`
}

type UnmatchedEventsParams struct {
	Binning
}

func (HasDataParams) Name() Name         { return HasData }
func (ActuationsParams) Name() Name      { return Actuations }
func (ArrivalOnGreenParams) Name() Name  { return ArrivalOnGreen }
func (CommunicationsParams) Name() Name  { return Communications }
func (CoordinationParams) Name() Name    { return Coordination }
func (PedParams) Name() Name             { return Ped }
func (UniquePedParams) Name() Name       { return UniquePed }
func (FullPedParams) Name() Name         { return FullPed }
func (SplitFailuresParams) Name() Name   { return SplitFailures }
func (SplitsParams) Name() Name          { return Splits }
func (TerminationsParams) Name() Name    { return Terminations }
func (YellowRedParams) Name() Name       { return YellowRed }
func (TimelineParams) Name() Name        { return Timeline }
func (UnmatchedEventsParams) Name() Name { return UnmatchedEvents }

func (HasDataParams) isParams()         {}
func (ActuationsParams) isParams()      {}
func (ArrivalOnGreenParams) isParams()  {}
func (CommunicationsParams) isParams()  {}
func (CoordinationParams) isParams()    {}
func (PedParams) isParams()             {}
func (UniquePedParams) isParams()       {}
func (FullPedParams) isParams()         {}
func (SplitFailuresParams) isParams()   {}
func (SplitsParams) isParams()          {}
func (TerminationsParams) isParams()    {}
func (YellowRedParams) isParams()       {}
func (TimelineParams) isParams()        {}
func (UnmatchedEventsParams) isParams() {}

var newParams = map[Name]func() Params{
	HasData:         func() Params { return &HasDataParams{} },
	Actuations:      func() Params { return &ActuationsParams{} },
	ArrivalOnGreen:  func() Params { return &ArrivalOnGreenParams{} },
	Communications:  func() Params { return &CommunicationsParams{} },
	Coordination:    func() Params { return &CoordinationParams{} },
	Ped:             func() Params { return &PedParams{} },
	UniquePed:       func() Params { return &UniquePedParams{} },
	FullPed:         func() Params { return &FullPedParams{} },
	SplitFailures:   func() Params { return &SplitFailuresParams{} },
	Splits:          func() Params { return &SplitsParams{} },
	Terminations:    func() Params { return &TerminationsParams{} },
	YellowRed:       func() Params { return &YellowRedParams{} },
	Timeline:        func() Params { return &TimelineParams{} },
	UnmatchedEvents: func() Params { return &UnmatchedEventsParams{} },
}

// validator is implemented by Params types with checks beyond the presence
// of their keys.
type validator interface {
	validate() error
}

func (p HasDataParams) validate() error {
	if p.NoDataMin <= 0 {
		return fmt.Errorf("cannot compose %q: no_data_min must be positive, got %d", HasData, p.NoDataMin)
	}
	return nil
}

func (p TimelineParams) validate() error {
	if p.MinTimestamp.IsZero() {
		return &MissingParameterError{Aggregation: Timeline, Key: "min_timestamp"}
	}
	if p.MaxEventDays < 0 {
		return fmt.Errorf("aggregation %q: max_event_days must not be negative, got %d", Timeline, p.MaxEventDays)
	}
	return nil
}

// ParamsFor builds the Params of the named aggregation from a dynamic map,
// as read from a configuration file. Keys the aggregation does not use are
// ignored. A required key that is absent results in a
// *MissingParameterError.
func ParamsFor(name string, values map[string]any) (Params, error) {
	n, err := ParseName(name)
	if err != nil {
		return nil, err
	}
	p := newParams[n]()
	info, err := paraminfo.Cache().Reflect(p)
	if err != nil {
		return nil, fmt.Errorf("internal error: %s", err)
	}
	if err := info.Decode(values, p); err != nil {
		var missing *paraminfo.MissingKeyError
		if errors.As(err, &missing) {
			return nil, &MissingParameterError{Aggregation: n, Key: missing.Key}
		}
		return nil, fmt.Errorf("cannot decode parameters of %q: %s", n, err)
	}
	if err := validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

func validate(p Params) error {
	if v, ok := p.(validator); ok {
		if err := v.validate(); err != nil {
			return err
		}
	}
	return nil
}

// ParamSpec describes one parameter of an aggregation.
type ParamSpec struct {
	Key        string
	Required   bool
	Structural bool
	Type       string
}

// Describe lists the parameters of the named aggregation.
func Describe(name Name) ([]ParamSpec, error) {
	newP, ok := newParams[name]
	if !ok {
		return nil, &TemplateNotFoundError{Name: string(name)}
	}
	info, err := paraminfo.Cache().Reflect(newP())
	if err != nil {
		return nil, fmt.Errorf("internal error: %s", err)
	}
	specs := make([]ParamSpec, len(info.Fields))
	for i, f := range info.Fields {
		specs[i] = ParamSpec{
			Key:        f.Key,
			Required:   f.Required,
			Structural: f.Structural,
			Type:       f.Type().String(),
		}
	}
	return specs, nil
}
