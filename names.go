// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package atspm

// Name identifies an aggregation. The name is also the name of the table the
// aggregation creates and of its template.
type Name string

const (
	HasData         Name = "has_data"
	Actuations      Name = "actuations"
	ArrivalOnGreen  Name = "arrival_on_green"
	Communications  Name = "communications"
	Coordination    Name = "coordination"
	Ped             Name = "ped"
	UniquePed       Name = "unique_ped"
	FullPed         Name = "full_ped"
	SplitFailures   Name = "split_failures"
	Splits          Name = "splits"
	Terminations    Name = "terminations"
	YellowRed       Name = "yellow_red"
	Timeline        Name = "timeline"
	UnmatchedEvents Name = "unmatched_events"
)

// names lists every aggregation in the order a full run computes them.
var names = []Name{
	HasData,
	Actuations,
	ArrivalOnGreen,
	Communications,
	Coordination,
	Ped,
	UniquePed,
	FullPed,
	SplitFailures,
	Splits,
	Terminations,
	YellowRed,
	Timeline,
	UnmatchedEvents,
}

// Names returns every known aggregation name.
func Names() []Name {
	return append([]Name(nil), names...)
}

// ParseName returns the Name for s. An unknown name has no template, so the
// error is a *TemplateNotFoundError.
func ParseName(s string) (Name, error) {
	for _, n := range names {
		if string(n) == s {
			return n, nil
		}
	}
	return "", &TemplateNotFoundError{Name: s}
}

// Filtered reports whether the completeness filter applies to the
// aggregation when remove_incomplete is set.
func (n Name) Filtered() bool {
	switch n {
	case HasData, UnmatchedEvents, Timeline:
		return false
	}
	return true
}
