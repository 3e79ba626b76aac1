// Package diff compares a freshly acquired record set against the stored one.
package diff

import (
	"sort"
	"time"

	"concursobot/internal/model"
)

// DateLayout is the layout of the date stamped on synthesized records.
const DateLayout = "02/01/2006"

// Options tunes a diff run.
type Options struct {
	// TrackRemovals also reports stored records missing from the new set.
	TrackRemovals bool
	// Now stamps records synthesized from secondary field changes.
	Now time.Time
	// SourceURL is the link of synthesized records.
	SourceURL string
	// FieldLabels maps a secondary field name to its human label.
	FieldLabels map[string]string
}

// Compare classifies next against stored and returns what next adds.
// The delta keeps next's partition shape and iteration order.
func Compare(next, stored model.RecordSet, trackRemovals bool) (model.Classification, model.Delta) {
	if stored.Shape != next.Shape {
		stored = model.RecordSet{Shape: next.Shape}
	}

	delta := model.Delta{
		Added:   subtract(next, stored),
		Removed: model.RecordSet{Shape: next.Shape},
	}
	if trackRemovals {
		delta.Removed = subtract(stored, next)
	}

	if delta.Empty() {
		return model.Unchanged, delta
	}
	return model.Updated, delta
}

// Run diffs an acquisition against the stored snapshot, including secondary
// fields. A nil snapshot compares against an empty seed.
func Run(acq *model.Acquisition, snap *model.Snapshot, opts Options) (model.Classification, model.Delta) {
	stored := model.RecordSet{Shape: acq.Records.Shape}
	var storedFields map[string]string
	if snap != nil {
		stored = snap.Records
		storedFields = snap.Fields
	}

	_, delta := Compare(acq.Records, stored, opts.TrackRemovals)
	for _, fc := range fieldChanges(acq.Fields, storedFields, opts) {
		delta.Added = appendRecord(delta.Added, fc.label, fc.rec)
	}

	if delta.Empty() {
		return model.Unchanged, delta
	}
	return model.Updated, delta
}

// MergeFields overlays the non-empty values of next onto stored.
func MergeFields(stored, next map[string]string) map[string]string {
	if len(stored) == 0 && len(next) == 0 {
		return nil
	}
	out := make(map[string]string, len(stored)+len(next))
	for k, v := range stored {
		out[k] = v
	}
	for k, v := range next {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

type fieldChange struct {
	label string
	rec   model.Record
}

// fieldChanges returns one synthesized record per secondary field whose value
// changed. Fields are visited in key order.
func fieldChanges(next, stored map[string]string, opts Options) []fieldChange {
	keys := make([]string, 0, len(next))
	for k := range next {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []fieldChange
	for _, k := range keys {
		v := next[k]
		// an empty value is a parse miss, not a change
		if v == "" || stored[k] == v {
			continue
		}
		label := k
		if l, ok := opts.FieldLabels[k]; ok && l != "" {
			label = l
		}
		out = append(out, fieldChange{
			label: label,
			rec: model.Record{
				Date:  opts.Now.Format(DateLayout),
				Title: label + " updated to: " + v,
				URL:   opts.SourceURL,
			},
		})
	}
	return out
}

// appendRecord adds rec to set in the set's shape: directly when flat, in a
// trailing group keyed by the record date otherwise.
func appendRecord(set model.RecordSet, label string, rec model.Record) model.RecordSet {
	switch set.Shape.Depth() {
	case 0:
		set.Records = append(set.Records, rec)
	case 1:
		if n := len(set.Groups); n > 0 && set.Groups[n-1].Key == rec.Date && len(set.Groups[n-1].Groups) == 0 {
			set.Groups[n-1].Records = append(set.Groups[n-1].Records, rec)
			break
		}
		set.Groups = append(set.Groups, model.Group{Key: rec.Date, Records: []model.Record{rec}})
	default:
		set.Groups = append(set.Groups, model.Group{
			Key:    rec.Date,
			Groups: []model.Group{{Key: label, Records: []model.Record{rec}}},
		})
	}
	return set
}

func subtract(next, stored model.RecordSet) model.RecordSet {
	out := model.RecordSet{Shape: next.Shape}
	if next.Shape.Depth() == 0 {
		out.Records = records(next.Records, stored.Records)
		return out
	}
	out.Groups = groups(next.Groups, stored.Groups)
	return out
}

// records returns the elements of next absent from stored, in next's order.
func records(next, stored []model.Record) []model.Record {
	seen := make(map[model.Record]struct{}, len(stored))
	for _, r := range stored {
		seen[r] = struct{}{}
	}
	var out []model.Record
	for _, r := range next {
		if _, ok := seen[r]; !ok {
			out = append(out, r)
		}
	}
	return out
}

// groups applies the same rule at every level: an unknown key is new as a
// whole, a known key recurses, and a group is kept only if non-empty.
func groups(next, stored []model.Group) []model.Group {
	index := make(map[string]int, len(stored))
	for i, g := range stored {
		if _, dup := index[g.Key]; !dup {
			index[g.Key] = i
		}
	}

	var out []model.Group
	for _, g := range next {
		i, ok := index[g.Key]
		if !ok {
			if pruned := prune(g); !pruned.Empty() {
				out = append(out, pruned)
			}
			continue
		}
		sub := model.Group{
			Key:     g.Key,
			Records: records(g.Records, stored[i].Records),
			Groups:  groups(g.Groups, stored[i].Groups),
		}
		if !sub.Empty() {
			out = append(out, sub)
		}
	}
	return out
}

// prune drops empty children from a group.
func prune(g model.Group) model.Group {
	out := model.Group{Key: g.Key, Records: g.Records}
	for _, sub := range g.Groups {
		if p := prune(sub); !p.Empty() {
			out.Groups = append(out.Groups, p)
		}
	}
	return out
}
