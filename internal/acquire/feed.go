package acquire

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"concursobot/internal/filter"
	"concursobot/internal/model"
)

// dateLayout matches the date format used in synthesized records.
const dateLayout = "02/01/2006"

// maxDetail is the number of characters kept from an item description.
const maxDetail = 300

// FeedSpec configures an RSS or Atom source.
type FeedSpec struct {
	// GroupByDay groups items by their publication day.
	GroupByDay bool `yaml:"group_by_day"`
	// AllowEmpty accepts a feed without items as an empty result.
	AllowEmpty bool `yaml:"allow_empty"`
}

// Shape returns the partition shape produced by the spec.
func (s FeedSpec) Shape() model.Shape {
	if s.GroupByDay {
		return model.ShapeSingleKey
	}
	return model.ShapeFlat
}

// Feed acquires records from an RSS or Atom feed.
type Feed struct {
	fetcher *Fetcher
	url     string
	spec    FeedSpec
	rules   []filter.Rule
	loc     *time.Location
}

// NewFeed creates a Feed acquirer. Publication days are computed in loc.
func NewFeed(f *Fetcher, url string, spec FeedSpec, rules []filter.Rule, loc *time.Location) *Feed {
	if loc == nil {
		loc = time.UTC
	}
	return &Feed{fetcher: f, url: url, spec: spec, rules: rules, loc: loc}
}

// Acquire downloads and parses the feed.
func (f *Feed) Acquire(ctx context.Context) (*model.Acquisition, error) {
	page, err := f.fetcher.Get(ctx, f.url)
	if err != nil {
		return nil, &AcquisitionError{URL: f.url, Err: err}
	}
	acq, err := f.Parse(page)
	if err != nil {
		return nil, &AcquisitionError{URL: f.url, Err: err}
	}
	return acq, nil
}

// Parse extracts an acquisition from a downloaded feed.
func (f *Feed) Parse(page *Page) (*model.Acquisition, error) {
	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	b := newBuilder(f.spec.Shape())
	added := 0
	for _, item := range feed.Items {
		rec := model.Record{
			Title:  strings.TrimSpace(item.Title),
			URL:    item.Link,
			Date:   f.day(item),
			Detail: summary(item.Description),
		}
		if rec.Title == "" {
			continue
		}
		if f.spec.GroupByDay {
			b.add([]string{rec.Date}, rec)
		} else {
			b.add(nil, rec)
		}
		added++
	}
	if added == 0 && !f.spec.AllowEmpty {
		return nil, fmt.Errorf("%w: feed has no titled items", ErrNoItems)
	}

	link := feed.Link
	if link == "" {
		link = f.url
	}
	return &model.Acquisition{
		Title:   strings.TrimSpace(feed.Title),
		URL:     link,
		Records: filter.Apply(b.set(), f.rules),
	}, nil
}

func (f *Feed) day(item *gofeed.Item) string {
	t := item.PublishedParsed
	if t == nil {
		t = item.UpdatedParsed
	}
	if t == nil {
		return ""
	}
	return t.In(f.loc).Format(dateLayout)
}

// summary strips markup from a description and truncates it.
func summary(desc string) string {
	if desc == "" {
		return ""
	}
	plain := desc
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(desc)); err == nil {
		plain = doc.Text()
	}
	plain = strings.Join(strings.Fields(plain), " ")
	if r := []rune(plain); len(r) > maxDetail {
		plain = string(r[:maxDetail]) + "..."
	}
	return plain
}
