package acquire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"concursobot/internal/filter"
	"concursobot/internal/model"
)

// DefaultMaxPages bounds pagination when a next-page selector is set.
const DefaultMaxPages = 10

// HTMLSpec describes where records live in an HTML page. Selectors other than
// Item are evaluated inside each matched item.
type HTMLSpec struct {
	Item   string `yaml:"item"`
	Title  string `yaml:"title"`
	Link   string `yaml:"link"`
	Date   string `yaml:"date"`
	Detail string `yaml:"detail"`
	// Groups holds zero, one or two selectors yielding the group keys of an
	// item, outermost first. A key is looked up inside the item, then among
	// the preceding siblings of the item and of its ancestors.
	Groups []string `yaml:"groups"`
	// Fields maps a secondary field name to a selector over the whole page.
	Fields        map[string]string `yaml:"fields"`
	TitleSelector string            `yaml:"title_selector"`

	// Next selects the link to the following page. Pages are read until
	// MaxGroups top-level groups are collected, the link is missing or
	// MaxPages pages were read.
	Next      string `yaml:"next"`
	MaxPages  int    `yaml:"max_pages"`
	MaxGroups int    `yaml:"max_groups"`

	Follow *FollowSpec `yaml:"follow"`

	// AllowEmpty accepts a first page without items as an empty result.
	AllowEmpty bool `yaml:"allow_empty"`
}

// FollowSpec downloads the page each record links to and keeps the records
// whose page mentions at least one keyword.
type FollowSpec struct {
	// Content selects the searched part of the linked page. The whole page is
	// searched when empty.
	Content  string   `yaml:"content"`
	Keywords []string `yaml:"keywords"`
}

// Validate checks the spec for missing or unsupported settings.
func (s HTMLSpec) Validate() error {
	if s.Item == "" {
		return errors.New("html: item selector is required")
	}
	if len(s.Groups) > 2 {
		return fmt.Errorf("html: at most 2 group selectors, got %d", len(s.Groups))
	}
	for i, g := range s.Groups {
		if strings.TrimSpace(g) == "" {
			return fmt.Errorf("html: group selector %d is empty", i)
		}
	}
	if s.MaxPages < 0 {
		return errors.New("html: max_pages must not be negative")
	}
	if s.MaxGroups < 0 {
		return errors.New("html: max_groups must not be negative")
	}
	if s.MaxGroups > 0 && len(s.Groups) == 0 {
		return errors.New("html: max_groups needs group selectors")
	}
	if s.Follow != nil && len(s.Follow.Keywords) == 0 {
		return errors.New("html: follow needs at least one keyword")
	}
	return nil
}

// Shape returns the partition shape produced by the spec.
func (s HTMLSpec) Shape() model.Shape {
	return model.ShapeForDepth(len(s.Groups))
}

func (s HTMLSpec) pages() int {
	switch {
	case s.Next == "":
		return 1
	case s.MaxPages > 0:
		return s.MaxPages
	default:
		return DefaultMaxPages
	}
}

// HTML acquires records from an HTML page using CSS selectors.
type HTML struct {
	fetcher *Fetcher
	url     string
	spec    HTMLSpec
	rules   []filter.Rule
}

// NewHTML creates an HTML acquirer for the page at url.
func NewHTML(f *Fetcher, url string, spec HTMLSpec, rules []filter.Rule) *HTML {
	return &HTML{fetcher: f, url: url, spec: spec, rules: rules}
}

// Acquire downloads and parses the page, following next-page links and
// record links as configured.
func (h *HTML) Acquire(ctx context.Context) (*model.Acquisition, error) {
	acq, err := h.acquire(ctx)
	if err != nil {
		return nil, &AcquisitionError{URL: h.url, Err: err}
	}
	return acq, nil
}

func (h *HTML) acquire(ctx context.Context) (*model.Acquisition, error) {
	var acq *model.Acquisition
	b := newBuilder(h.spec.Shape())

	pageURL := h.url
	for n := 1; ; n++ {
		page, err := h.fetcher.Get(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		doc, err := document(page)
		if err != nil {
			return nil, err
		}
		base, err := url.Parse(pageURL)
		if err != nil {
			return nil, fmt.Errorf("parse url: %w", err)
		}
		if acq == nil {
			acq = h.header(doc)
		}

		if h.collect(doc, base, b) == 0 {
			if n == 1 && !h.spec.AllowEmpty {
				return nil, h.noItems()
			}
			break
		}
		if n >= h.spec.pages() || b.full(h.spec.MaxGroups) {
			break
		}
		next := link(doc.Selection, h.spec.Next, base)
		if next == "" || next == pageURL {
			break
		}
		pageURL = next
	}

	b.limit(h.spec.MaxGroups)
	set := filter.Apply(b.set(), h.rules)
	if h.spec.Follow != nil {
		var err error
		if set, err = h.follow(ctx, set); err != nil {
			return nil, err
		}
	}
	acq.Records = set
	return acq, nil
}

// Parse extracts an acquisition from a single downloaded page. Pagination and
// followed links are left to Acquire.
func (h *HTML) Parse(page *Page) (*model.Acquisition, error) {
	doc, err := document(page)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(h.url)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	acq := h.header(doc)
	b := newBuilder(h.spec.Shape())
	if h.collect(doc, base, b) == 0 && !h.spec.AllowEmpty {
		return nil, h.noItems()
	}
	b.limit(h.spec.MaxGroups)
	acq.Records = filter.Apply(b.set(), h.rules)
	return acq, nil
}

func (h *HTML) noItems() error {
	return fmt.Errorf("%w: %q matched nothing", ErrNoItems, h.spec.Item)
}

func document(page *Page) (*goquery.Document, error) {
	r, err := charset.NewReader(bytes.NewReader(page.Body), page.ContentType)
	if err != nil {
		return nil, fmt.Errorf("decode charset: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// header reads the page title and the secondary fields.
func (h *HTML) header(doc *goquery.Document) *model.Acquisition {
	titleSel := h.spec.TitleSelector
	if titleSel == "" {
		titleSel = "title"
	}

	acq := &model.Acquisition{
		Title: text(doc.Find(titleSel).First()),
		URL:   h.url,
	}

	if len(h.spec.Fields) > 0 {
		acq.Fields = make(map[string]string, len(h.spec.Fields))
		for name, sel := range h.spec.Fields {
			acq.Fields[name] = text(doc.Find(sel).First())
		}
	}
	return acq
}

// collect adds the records of doc to b and returns how many it added.
func (h *HTML) collect(doc *goquery.Document, base *url.URL, b *builder) int {
	added := 0
	doc.Find(h.spec.Item).Each(func(_ int, item *goquery.Selection) {
		rec := model.Record{
			Title:  field(item, h.spec.Title),
			Date:   optional(item, h.spec.Date),
			Detail: optional(item, h.spec.Detail),
			URL:    link(item, h.spec.Link, base),
		}
		if rec.Title == "" {
			return
		}
		keys := make([]string, len(h.spec.Groups))
		for i, sel := range h.spec.Groups {
			keys[i] = groupKey(item, sel)
		}
		b.add(keys, rec)
		added++
	})
	return added
}

// field returns the text of sel inside item, or the item's own text when sel
// is empty.
func field(item *goquery.Selection, sel string) string {
	if sel == "" {
		return text(item)
	}
	return text(item.Find(sel).First())
}

func optional(item *goquery.Selection, sel string) string {
	if sel == "" {
		return ""
	}
	return text(item.Find(sel).First())
}

func link(item *goquery.Selection, sel string, base *url.URL) string {
	var a *goquery.Selection
	switch {
	case sel != "":
		a = item.Find(sel).First()
	case goquery.NodeName(item) == "a":
		a = item
	default:
		a = item.Find("a[href]").First()
	}
	href, ok := a.Attr("href")
	if !ok {
		return ""
	}
	href = strings.TrimSpace(href)
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func groupKey(item *goquery.Selection, sel string) string {
	if s := item.Find(sel).First(); s.Length() > 0 {
		return text(s)
	}
	for n := item; n.Length() > 0; n = n.Parent() {
		if p := n.PrevAllFiltered(sel).First(); p.Length() > 0 {
			return text(p)
		}
	}
	return ""
}

// text returns the whitespace-normalized text of s.
func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
