// Package model defines the domain types used across the application.
package model

import "time"

// Record is one fact published by a source: an announcement, a job posting,
// an event. Records carry no identity beyond their field values.
type Record struct {
	Date   string `json:"date,omitempty"`
	Title  string `json:"title"`
	URL    string `json:"url,omitempty"`
	Detail string `json:"detail,omitempty"`
	// Keywords lists the watched words found on the record's linked page.
	Keywords string `json:"keywords,omitempty"`
}

// Shape is the partition shape of a source's record set.
type Shape string

// Supported shapes.
const (
	ShapeFlat      Shape = "flat"
	ShapeSingleKey Shape = "single_key"
	ShapeTwoLevel  Shape = "two_level"
)

// Depth returns the number of grouping levels of the shape.
func (s Shape) Depth() int {
	switch s {
	case ShapeSingleKey:
		return 1
	case ShapeTwoLevel:
		return 2
	default:
		return 0
	}
}

// ShapeForDepth returns the shape with the given number of grouping levels.
func ShapeForDepth(depth int) Shape {
	switch depth {
	case 1:
		return ShapeSingleKey
	case 2:
		return ShapeTwoLevel
	default:
		return ShapeFlat
	}
}

// Group is a keyed partition of records. Leaf groups hold Records; the upper
// level of a two-level set holds Groups.
type Group struct {
	Key     string   `json:"key"`
	Records []Record `json:"records,omitempty"`
	Groups  []Group  `json:"groups,omitempty"`
}

// Empty reports whether the group holds no record at any depth.
func (g Group) Empty() bool {
	if len(g.Records) > 0 {
		return false
	}
	for _, sub := range g.Groups {
		if !sub.Empty() {
			return false
		}
	}
	return true
}

// Count returns the number of records in the group at any depth.
func (g Group) Count() int {
	n := len(g.Records)
	for _, sub := range g.Groups {
		n += sub.Count()
	}
	return n
}

// RecordSet is the structured content of a source at one point in time.
type RecordSet struct {
	Shape   Shape    `json:"shape"`
	Records []Record `json:"records,omitempty"`
	Groups  []Group  `json:"groups,omitempty"`
}

// Empty reports whether the set holds no record.
func (rs RecordSet) Empty() bool {
	return rs.Count() == 0
}

// Count returns the number of records in the set.
func (rs RecordSet) Count() int {
	n := len(rs.Records)
	for _, g := range rs.Groups {
		n += g.Count()
	}
	return n
}

// Classification is the outcome of a poll.
type Classification int

// Poll outcomes.
const (
	Error Classification = iota
	Unchanged
	Updated
)

func (c Classification) String() string {
	switch c {
	case Unchanged:
		return "unchanged"
	case Updated:
		return "updated"
	default:
		return "error"
	}
}

// Delta is the part of a new record set that was not present in the stored one.
// Removed is only filled for sources that track removals.
type Delta struct {
	Added   RecordSet `json:"added"`
	Removed RecordSet `json:"removed"`
}

// Empty reports whether the delta carries no change.
func (d Delta) Empty() bool {
	return d.Added.Empty() && d.Removed.Empty()
}

// LastUpdate describes the most recent detected change of a source.
type LastUpdate struct {
	At    time.Time `json:"at"`
	Delta Delta     `json:"delta"`
}

// Snapshot is the last successfully stored state of a source.
type Snapshot struct {
	SourceID   string
	Title      string
	URL        string
	AcquiredAt time.Time
	Records    RecordSet
	Fields     map[string]string
	LastUpdate *LastUpdate
}

// Acquisition is the result of retrieving a source.
type Acquisition struct {
	Title   string
	URL     string
	Records RecordSet
	Fields  map[string]string
}
