// Package filter implements the record matching engine.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"concursobot/internal/model"
)

// Kind defines the type of filter rule.
type Kind string

// Supported rule kinds.
const (
	Include   Kind = "include"
	Exclude   Kind = "exclude"
	IncludeRe Kind = "include_re"
	ExcludeRe Kind = "exclude_re"
)

// Scope defines which part of a record a rule matches against.
type Scope string

// Supported scopes.
const (
	ScopeTitle  Scope = "title"
	ScopeDetail Scope = "detail"
	ScopeAll    Scope = "all"
)

// Rule is a single filtering rule attached to a source.
type Rule struct {
	Kind  Kind
	Scope Scope
	Value string
}

// Match checks whether a record passes the given set of rules.
// If no rules are provided, the record always passes.
// Include rules use OR logic (at least one must match).
// Exclude rules use AND logic (none must match).
func Match(r model.Record, rules []Rule) bool {
	if len(rules) == 0 {
		return true
	}

	hasIncludes := false
	anyIncludeMatched := false

	for _, rule := range rules {
		switch rule.Kind {
		case Include, IncludeRe:
			hasIncludes = true
			if matchesRule(r, rule) {
				anyIncludeMatched = true
			}
		case Exclude, ExcludeRe:
			if matchesRule(r, rule) {
				return false
			}
		}
	}

	if hasIncludes && !anyIncludeMatched {
		return false
	}
	return true
}

// Apply returns the records of set that pass rules. Groups left without
// records are dropped.
func Apply(set model.RecordSet, rules []Rule) model.RecordSet {
	if len(rules) == 0 {
		return set
	}
	return Select(set, func(r model.Record) (model.Record, bool) {
		return r, Match(r, rules)
	})
}

// Select passes every record of set through fn, keeping the returned record
// when fn accepts it. Groups left without records are dropped. Records are
// visited in set order.
func Select(set model.RecordSet, fn func(model.Record) (model.Record, bool)) model.RecordSet {
	out := model.RecordSet{Shape: set.Shape}
	out.Records = keep(set.Records, fn)
	out.Groups = keepGroups(set.Groups, fn)
	return out
}

func keep(records []model.Record, fn func(model.Record) (model.Record, bool)) []model.Record {
	var out []model.Record
	for _, r := range records {
		if nr, ok := fn(r); ok {
			out = append(out, nr)
		}
	}
	return out
}

func keepGroups(groups []model.Group, fn func(model.Record) (model.Record, bool)) []model.Group {
	var out []model.Group
	for _, g := range groups {
		ng := model.Group{
			Key:     g.Key,
			Records: keep(g.Records, fn),
			Groups:  keepGroups(g.Groups, fn),
		}
		if !ng.Empty() {
			out = append(out, ng)
		}
	}
	return out
}

func matchesRule(r model.Record, rule Rule) bool {
	text := textForScope(r, rule.Scope)
	switch rule.Kind {
	case Include, Exclude:
		return strings.Contains(text, strings.ToLower(rule.Value))
	case IncludeRe, ExcludeRe:
		re, err := regexp.Compile("(?i)" + rule.Value)
		if err != nil {
			return false
		}
		return re.MatchString(text)
	}
	return false
}

func textForScope(r model.Record, scope Scope) string {
	switch scope {
	case ScopeTitle:
		return strings.ToLower(r.Title)
	case ScopeDetail:
		return strings.ToLower(r.Detail)
	default:
		return strings.ToLower(r.Title + " " + r.Detail)
	}
}

// ValidateRegex checks whether a pattern is a valid regular expression.
func ValidateRegex(pattern string) error {
	_, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	return nil
}
