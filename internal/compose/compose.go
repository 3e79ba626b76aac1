// Package compose renders snapshots and deltas as Telegram HTML message blocks.
//
// Every function is pure: the same input always renders byte-identical blocks.
// A block is the unit the batcher never splits.
package compose

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"concursobot/internal/model"
)

// Mode selects what a composition shows.
type Mode string

// Supported modes.
const (
	ModeDelta      Mode = "delta"
	ModeShort      Mode = "short"
	ModeComplete   Mode = "complete"
	ModeLastUpdate Mode = "last_update"
)

// DefaultShortCount is the number of groups (or records) shown in short mode.
const DefaultShortCount = 3

const timestampLayout = "02/01/2006 15:04:05"

// Request parameterizes Compose.
type Request struct {
	Mode Mode
	// Count limits short mode. Zero means DefaultShortCount.
	Count int
	// Labels maps secondary field names to human labels.
	Labels map[string]string
}

// Compose renders the blocks for the requested mode. The delta is only read
// in ModeDelta.
func Compose(snap *model.Snapshot, delta model.Delta, req Request) []string {
	switch req.Mode {
	case ModeShort:
		n := req.Count
		if n <= 0 {
			n = DefaultShortCount
		}
		return Short(snap, n, req.Labels)
	case ModeComplete:
		return Complete(snap, req.Labels)
	case ModeLastUpdate:
		return LastUpdate(snap)
	default:
		return Delta(snap, delta)
	}
}

// Delta renders a detected change: a header naming the source, then the added
// records and, if any, the removed ones.
func Delta(snap *model.Snapshot, delta model.Delta) []string {
	n := delta.Added.Count() + delta.Removed.Count()
	blocks := []string{fmt.Sprintf("%d update(s) for:\n%s\n", n, sourceLink(snap))}
	return append(blocks, changes(delta)...)
}

// Short renders the first n groups of the stored set (n records when flat),
// the secondary fields and the acquisition timestamp.
func Short(snap *model.Snapshot, n int, labels map[string]string) []string {
	return full(snap, truncate(snap.Records, n), labels)
}

// Complete renders the whole stored set, the secondary fields and the
// acquisition timestamp.
func Complete(snap *model.Snapshot, labels map[string]string) []string {
	return full(snap, snap.Records, labels)
}

// LastUpdate renders the most recent change recorded on the snapshot.
func LastUpdate(snap *model.Snapshot) []string {
	if snap.LastUpdate == nil {
		return []string{fmt.Sprintf("No updates recorded yet for %s\n", sourceLink(snap))}
	}
	lu := snap.LastUpdate
	n := lu.Delta.Added.Count() + lu.Delta.Removed.Count()
	blocks := []string{fmt.Sprintf("%d update(s) on %s for:\n%s\n",
		n, lu.At.Format(timestampLayout), sourceLink(snap))}
	return append(blocks, changes(lu.Delta)...)
}

func changes(delta model.Delta) []string {
	blocks := body(delta.Added)
	if !delta.Removed.Empty() {
		blocks = append(blocks, fmt.Sprintf("\n%d removed:\n", delta.Removed.Count()))
		blocks = append(blocks, body(delta.Removed)...)
	}
	return blocks
}

func full(snap *model.Snapshot, set model.RecordSet, labels map[string]string) []string {
	blocks := []string{sourceLink(snap) + "\n"}
	if f := fieldsBlock(snap.Fields, labels); f != "" {
		blocks = append(blocks, f)
	}
	blocks = append(blocks, body(set)...)
	if snap.AcquiredAt.IsZero() {
		return append(blocks, "\n<b>No data acquired yet</b>")
	}
	return append(blocks, fmt.Sprintf("\n<b>Saved on %s</b>", snap.AcquiredAt.Format(timestampLayout)))
}

func body(set model.RecordSet) []string {
	if set.Shape.Depth() == 0 {
		blocks := make([]string, 0, len(set.Records))
		for _, r := range set.Records {
			blocks = append(blocks, recordBlock(r))
		}
		return blocks
	}
	return groupBlocks(set.Groups, 1)
}

func groupBlocks(groups []model.Group, level int) []string {
	var blocks []string
	for _, g := range groups {
		if g.Empty() {
			continue
		}
		blocks = append(blocks, groupHeader(g.Key, level))
		for _, r := range g.Records {
			blocks = append(blocks, recordBlock(r))
		}
		blocks = append(blocks, groupBlocks(g.Groups, level+1)...)
	}
	return blocks
}

func groupHeader(key string, level int) string {
	if level == 1 {
		return fmt.Sprintf("\n<b>%s ====================</b>\n", html.EscapeString(key))
	}
	return fmt.Sprintf("\n<b>%s:</b>\n", html.EscapeString(key))
}

func recordBlock(r model.Record) string {
	var b strings.Builder
	if r.Date != "" {
		b.WriteString(html.EscapeString(r.Date))
		b.WriteString(" - ")
	}
	b.WriteString(link(r.URL, r.Title))
	b.WriteString("\n")
	if r.Detail != "" {
		fmt.Fprintf(&b, "<i>%s</i>\n", html.EscapeString(r.Detail))
	}
	if r.Keywords != "" {
		fmt.Fprintf(&b, "<b>Keywords:</b> %s\n", html.EscapeString(r.Keywords))
	}
	return b.String()
}

func fieldsBlock(fields, labels map[string]string) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		label := k
		if l, ok := labels[k]; ok && l != "" {
			label = l
		}
		fmt.Fprintf(&b, "<b>%s:</b> %s\n", html.EscapeString(label), html.EscapeString(fields[k]))
	}
	return b.String()
}

// truncate keeps the first n non-empty groups, or n records when flat.
func truncate(set model.RecordSet, n int) model.RecordSet {
	out := model.RecordSet{Shape: set.Shape}
	if set.Shape.Depth() == 0 {
		out.Records = set.Records[:min(n, len(set.Records))]
		return out
	}
	for _, g := range set.Groups {
		if len(out.Groups) == n {
			break
		}
		if !g.Empty() {
			out.Groups = append(out.Groups, g)
		}
	}
	return out
}

func sourceLink(snap *model.Snapshot) string {
	title := snap.Title
	if title == "" {
		title = snap.SourceID
	}
	return link(snap.URL, title)
}

func link(url, text string) string {
	if url == "" {
		return html.EscapeString(text)
	}
	return fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(url), html.EscapeString(text))
}
