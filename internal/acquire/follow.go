package acquire

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"concursobot/internal/filter"
	"concursobot/internal/model"
)

// follow downloads the page of every record in set and keeps the records
// whose page mentions a keyword. The matched keywords are stored on the
// record. Any failed download fails the whole acquisition.
func (h *HTML) follow(ctx context.Context, set model.RecordSet) (model.RecordSet, error) {
	var err error
	out := filter.Select(set, func(r model.Record) (model.Record, bool) {
		if err != nil || r.URL == "" {
			return r, false
		}
		var matched []string
		matched, err = h.keywords(ctx, r.URL)
		if err != nil || len(matched) == 0 {
			return r, false
		}
		r.Keywords = strings.Join(matched, ", ")
		return r, true
	})
	if err != nil {
		return model.RecordSet{}, err
	}
	return out, nil
}

// keywords returns the configured keywords found on the page at pageURL, in
// configuration order. Matching ignores case and accents.
func (h *HTML) keywords(ctx context.Context, pageURL string) ([]string, error) {
	page, err := h.fetcher.Get(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("follow %s: %w", pageURL, err)
	}
	doc, err := document(page)
	if err != nil {
		return nil, fmt.Errorf("follow %s: %w", pageURL, err)
	}

	content := doc.Selection
	if h.spec.Follow.Content != "" {
		content = doc.Find(h.spec.Follow.Content)
	}
	body := fold(text(content))

	var matched []string
	for _, kw := range h.spec.Follow.Keywords {
		if strings.Contains(body, fold(kw)) {
			matched = append(matched, kw)
		}
	}
	return matched, nil
}

// fold lowercases s and strips its diacritics.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}
