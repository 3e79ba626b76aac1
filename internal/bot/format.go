package bot

import (
	"fmt"
	"strings"

	"concursobot/internal/model"
	"concursobot/internal/scheduler"
)

// FormatResult summarizes one poll for the user who triggered it.
func FormatResult(res scheduler.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", res.SourceID, res.Classification)
	switch {
	case res.Err != nil:
		fmt.Fprintf(&b, " (%v)", res.Err)
	case res.Classification == model.Updated:
		fmt.Fprintf(&b, ", %d new", res.Delta.Added.Count())
		if n := res.Delta.Removed.Count(); n > 0 {
			fmt.Fprintf(&b, ", %d removed", n)
		}
		if res.Report != nil {
			fmt.Fprintf(&b, ", %d message(s) sent", res.Report.Sent)
			if res.Report.Failed > 0 {
				fmt.Fprintf(&b, ", %d failed", res.Report.Failed)
			}
		}
	}
	return b.String()
}

// FormatResults summarizes a check of every source.
func FormatResults(results []scheduler.Result) string {
	if len(results) == 0 {
		return "No sources configured."
	}
	lines := make([]string, len(results))
	for i, r := range results {
		lines[i] = FormatResult(r)
	}
	return "Check finished:\n" + strings.Join(lines, "\n")
}

// FormatSourceList lists the configured sources.
func FormatSourceList(sources []scheduler.Source) string {
	if len(sources) == 0 {
		return "No sources configured."
	}
	var b strings.Builder
	b.WriteString("Monitored sources:\n")
	for _, src := range sources {
		fmt.Fprintf(&b, "\n%s: %s\n   %s\n", src.ID, src.Name, src.URL)
	}
	b.WriteString("\nPick one below or use /short <id>, /full <id>, /last <id>.")
	return b.String()
}

// FormatStatus describes the state of every source.
func FormatStatus(statuses []scheduler.Status, subscribers int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subscribers: %d\n", subscribers)
	for _, st := range statuses {
		fmt.Fprintf(&b, "\n%s [%s]", st.SourceID, st.State)
		if st.LastRun.IsZero() {
			b.WriteString(" not checked yet")
			continue
		}
		fmt.Fprintf(&b, " last check %s: %s", st.LastRun.Format("02/01/2006 15:04"), st.Last)
		if st.LastErr != nil {
			fmt.Fprintf(&b, " (%v)", st.LastErr)
		}
	}
	return b.String()
}
