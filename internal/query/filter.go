package query

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// DateFormat is the layout used for date bounds and month keys.
const DateFormat = "2006-01-02"

var (
	// ErrNoDateRange is returned when a FilterSet has no date window.
	ErrNoDateRange = errors.New("date range is required")
	// ErrInvertedRange is returned when the window starts after it ends.
	ErrInvertedRange = errors.New("date range start is after end")
)

// Dimension names a categorical filter.
type Dimension string

const (
	Department    Dimension = "department"
	EncounterType Dimension = "encounter_type"
	Payer         Dimension = "payer"
	ClaimStatus   Dimension = "claim_status"
)

// Dimensions returns every filter dimension in predicate order.
func Dimensions() []Dimension {
	return []Dimension{Department, EncounterType, Payer, ClaimStatus}
}

// ParseDimension maps a name like "encounter_type" to a Dimension.
func ParseDimension(s string) (Dimension, bool) {
	d := Dimension(s)
	if slices.Contains(Dimensions(), d) {
		return d, true
	}
	return "", false
}

// DateRange is a closed date interval; both bounds are inclusive.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses two YYYY-MM-DD strings into a DateRange.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(DateFormat, start)
	if err != nil {
		return DateRange{}, fmt.Errorf("parsing start date %q: %w", start, err)
	}
	e, err := time.Parse(DateFormat, end)
	if err != nil {
		return DateRange{}, fmt.Errorf("parsing end date %q: %w", end, err)
	}
	r := DateRange{Start: s, End: e}
	return r, r.Validate()
}

// YearRange returns January 1 through December 31 of year.
func YearRange(year int) DateRange {
	return DateRange{
		Start: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
}

// Validate checks that both bounds are set and ordered.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return ErrNoDateRange
	}
	if r.Start.After(r.End) {
		return ErrInvertedRange
	}
	return nil
}

func (r DateRange) bounds() (string, string) {
	return r.Start.Format(DateFormat), r.End.Format(DateFormat)
}

// FilterSet is the combined filter state of one dashboard render.
// An empty list means the dimension is unrestricted.
type FilterSet struct {
	Range          DateRange `json:"-"`
	Departments    []string  `json:"departments"`
	EncounterTypes []string  `json:"encounter_types"`
	Payers         []string  `json:"payers"`
	ClaimStatuses  []string  `json:"claim_statuses"`
}

// Values returns the selected values for d.
func (f FilterSet) Values(d Dimension) []string {
	switch d {
	case Department:
		return f.Departments
	case EncounterType:
		return f.EncounterTypes
	case Payer:
		return f.Payers
	case ClaimStatus:
		return f.ClaimStatuses
	}
	return nil
}

// With returns a copy of f with the selection for d replaced.
func (f FilterSet) With(d Dimension, values ...string) FilterSet {
	switch d {
	case Department:
		f.Departments = values
	case EncounterType:
		f.EncounterTypes = values
	case Payer:
		f.Payers = values
	case ClaimStatus:
		f.ClaimStatuses = values
	}
	return f
}

// Normalize returns a copy of f with every selection sorted and
// deduplicated, so equal sets compare and hash equal.
func (f FilterSet) Normalize() FilterSet {
	for _, d := range Dimensions() {
		f = f.With(d, normalizeSet(f.Values(d))...)
	}
	return f
}

// Key returns a canonical, comparable form of the normalized set.
func (f FilterSet) Key() FilterKey {
	n := f.Normalize()
	start, end := n.Range.bounds()
	return FilterKey{
		Start:          start,
		End:            end,
		Departments:    n.Departments,
		EncounterTypes: n.EncounterTypes,
		Payers:         n.Payers,
		ClaimStatuses:  n.ClaimStatuses,
	}
}

// FilterKey is the serializable identity of a FilterSet.
type FilterKey struct {
	Start          string   `json:"start"`
	End            string   `json:"end"`
	Departments    []string `json:"departments,omitempty"`
	EncounterTypes []string `json:"encounter_types,omitempty"`
	Payers         []string `json:"payers,omitempty"`
	ClaimStatuses  []string `json:"claim_statuses,omitempty"`
}

func normalizeSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}
