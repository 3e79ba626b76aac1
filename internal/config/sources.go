package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // embedded zoneinfo

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"concursobot/internal/acquire"
	"concursobot/internal/filter"
	"concursobot/internal/model"
)

// Source kinds.
const (
	KindHTML = "html"
	KindFeed = "feed"
)

// Defaults for the sources file.
const (
	DefaultTimezone   = "America/Sao_Paulo"
	DefaultTimeout    = 60 * time.Second
	DefaultShortCount = 3
	DefaultDays       = "1-5"
	DefaultHours      = "8,12,16,18"
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Sources is the content of the sources file.
type Sources struct {
	Timezone string   `yaml:"timezone"`
	Sources  []Source `yaml:"sources"`

	loc *time.Location
}

// Source describes one monitored website.
type Source struct {
	ID            string            `yaml:"id"`
	Name          string            `yaml:"name"`
	Kind          string            `yaml:"kind"`
	URL           string            `yaml:"url"`
	Schedule      *Schedule         `yaml:"schedule"`
	Cron          string            `yaml:"cron"`
	Timeout       Duration          `yaml:"timeout"`
	ShortCount    int               `yaml:"short_count"`
	TrackRemovals bool              `yaml:"track_removals"`
	FieldLabels   map[string]string `yaml:"field_labels"`
	HTML          acquire.HTMLSpec  `yaml:"html"`
	Feed          acquire.FeedSpec  `yaml:"feed"`
	Filters       Filters           `yaml:"filters"`
}

// Schedule is a poll cadence: every listed hour at minute, on the listed
// days of the week. Days and hours use cron field syntax.
type Schedule struct {
	Days   string `yaml:"days"`
	Hours  string `yaml:"hours"`
	Minute int    `yaml:"minute"`
}

// Filters holds the keyword and regex rules of a source.
type Filters struct {
	Scope     string   `yaml:"scope"`
	Include   []string `yaml:"include"`
	Exclude   []string `yaml:"exclude"`
	IncludeRe []string `yaml:"include_re"`
	ExcludeRe []string `yaml:"exclude_re"`
}

// Rules converts the filters into matching rules.
func (f Filters) Rules() []filter.Rule {
	scope := filter.Scope(f.Scope)
	if scope == "" {
		scope = filter.ScopeAll
	}
	var rules []filter.Rule
	add := func(kind filter.Kind, values []string) {
		for _, v := range values {
			rules = append(rules, filter.Rule{Kind: kind, Scope: scope, Value: v})
		}
	}
	add(filter.Include, f.Include)
	add(filter.Exclude, f.Exclude)
	add(filter.IncludeRe, f.IncludeRe)
	add(filter.ExcludeRe, f.ExcludeRe)
	return rules
}

// LoadSources reads the sources file at path, applies defaults and validates it.
func LoadSources(path string) (*Sources, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sources file is required")
	}
	data, err := os.ReadFile(path) //nolint:gosec // operator-provided path
	if err != nil {
		return nil, fmt.Errorf("read sources: %w", err)
	}
	return ParseSources(data)
}

// ParseSources decodes a sources document, applies defaults and validates it.
func ParseSources(data []byte) (*Sources, error) {
	var s Sources
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse sources: %w", err)
	}
	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validate sources: %w", err)
	}
	return &s, nil
}

func (s *Sources) applyDefaults() {
	if s.Timezone == "" {
		s.Timezone = DefaultTimezone
	}
	for i := range s.Sources {
		src := &s.Sources[i]
		if src.Name == "" {
			src.Name = src.ID
		}
		if src.Kind == "" {
			src.Kind = KindHTML
		}
		if src.Cron == "" && src.Schedule == nil {
			src.Schedule = &Schedule{}
		}
		if src.Schedule != nil {
			if src.Schedule.Days == "" {
				src.Schedule.Days = DefaultDays
			}
			if src.Schedule.Hours == "" {
				src.Schedule.Hours = DefaultHours
			}
		}
		if src.Timeout.Duration == 0 {
			src.Timeout.Duration = DefaultTimeout
		}
		if src.ShortCount == 0 {
			src.ShortCount = DefaultShortCount
		}
	}
}

// Validate checks the sources for configuration errors.
func (s *Sources) Validate() error {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	s.loc = loc

	if len(s.Sources) == 0 {
		return errors.New("sources: at least one source must be configured")
	}

	seen := make(map[string]bool, len(s.Sources))
	for i, src := range s.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = true
		if err := src.validate(); err != nil {
			return fmt.Errorf("source %q: %w", src.ID, err)
		}
	}
	return nil
}

func (src Source) validate() error {
	if src.URL == "" {
		return errors.New("url is required")
	}
	switch src.Kind {
	case KindHTML:
		if err := src.HTML.Validate(); err != nil {
			return err
		}
	case KindFeed:
	default:
		return fmt.Errorf("unknown kind %q (want %s or %s)", src.Kind, KindHTML, KindFeed)
	}
	if src.Cron != "" && src.Schedule != nil {
		return errors.New("schedule and cron are mutually exclusive")
	}
	if _, err := cron.ParseStandard(src.CronSpec()); err != nil {
		return fmt.Errorf("cadence %q: %w", src.CronSpec(), err)
	}
	if src.Schedule != nil && (src.Schedule.Minute < 0 || src.Schedule.Minute > 59) {
		return fmt.Errorf("schedule.minute %d out of range", src.Schedule.Minute)
	}
	if src.Timeout.Duration < 0 {
		return errors.New("timeout must not be negative")
	}
	if src.ShortCount < 0 {
		return errors.New("short_count must not be negative")
	}
	switch filter.Scope(src.Filters.Scope) {
	case "", filter.ScopeTitle, filter.ScopeDetail, filter.ScopeAll:
	default:
		return fmt.Errorf("filters.scope: unknown scope %q", src.Filters.Scope)
	}
	for _, re := range append(append([]string{}, src.Filters.IncludeRe...), src.Filters.ExcludeRe...) {
		if err := filter.ValidateRegex(re); err != nil {
			return fmt.Errorf("filters: %w", err)
		}
	}
	return nil
}

// Location returns the timezone the sources are scheduled in.
func (s *Sources) Location() *time.Location {
	if s.loc == nil {
		return time.UTC
	}
	return s.loc
}

// Lookup returns the source with the given id.
func (s *Sources) Lookup(id string) (Source, bool) {
	for _, src := range s.Sources {
		if src.ID == id {
			return src, true
		}
	}
	return Source{}, false
}

// CronSpec returns the five-field cron expression of the source cadence.
func (src Source) CronSpec() string {
	if src.Cron != "" {
		return src.Cron
	}
	if src.Schedule == nil {
		return ""
	}
	return fmt.Sprintf("%d %s * * %s", src.Schedule.Minute, src.Schedule.Hours, src.Schedule.Days)
}

// Shape returns the partition shape of the source's records.
func (src Source) Shape() model.Shape {
	if src.Kind == KindFeed {
		return src.Feed.Shape()
	}
	return src.HTML.Shape()
}

// Acquirer builds the acquirer for the source.
func (src Source) Acquirer(f *acquire.Fetcher, loc *time.Location) acquire.Acquirer {
	if src.Kind == KindFeed {
		return acquire.NewFeed(f, src.URL, src.Feed, src.Filters.Rules(), loc)
	}
	return acquire.NewHTML(f, src.URL, src.HTML, src.Filters.Rules())
}
