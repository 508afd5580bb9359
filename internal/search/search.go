package search

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"stockwatch/internal/catalog"
)

// MaxResults caps the number of tickers a single search may return.
const MaxResults = 10_000

type QueryKind int

const (
	PrefixQuery QueryKind = iota
	RegexQuery
)

func (k QueryKind) String() string {
	if k == RegexQuery {
		return "regex"
	}
	return "prefix"
}

type Query struct {
	Kind QueryKind
	Text string
}

// Classify canonicalizes raw to upper case. Input made only of letters is a
// prefix query, anything else is treated as a regular expression.
func Classify(raw string) Query {
	text := strings.ToUpper(strings.TrimSpace(raw))
	for _, r := range text {
		if !unicode.IsLetter(r) {
			return Query{Kind: RegexQuery, Text: text}
		}
	}
	return Query{Kind: PrefixQuery, Text: text}
}

type Engine struct {
	catalog *catalog.Catalog
}

func NewEngine(c *catalog.Catalog) *Engine {
	return &Engine{catalog: c}
}

func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// Search resolves raw into a sorted, deduplicated ticker list.
func (e *Engine) Search(raw string) []string {
	return e.SearchQuery(Classify(raw))
}

func (e *Engine) SearchQuery(q Query) []string {
	if q.Text == "" {
		return nil
	}
	matched := make(map[string]struct{})
	for _, t := range e.catalog.Prefix(q.Text) {
		matched[t] = struct{}{}
	}

	// the query must compile on its own before it is anchored, otherwise a
	// stray ")" could close the wrapper group
	valid := compile(q.Text) != nil

	if q.Kind == RegexQuery && valid {
		if re := compile(`^(?:` + q.Text + `)$`); re != nil {
			e.catalog.Entries(func(entry catalog.Entry) bool {
				if re.MatchString(entry.Ticker) {
					matched[entry.Ticker] = struct{}{}
				}
				return true
			})
		}
	}

	if len(q.Text) > 2 && valid {
		if re := compile(`(?i)` + q.Text); re != nil {
			e.catalog.Entries(func(entry catalog.Entry) bool {
				if re.MatchString(entry.Name) {
					matched[entry.Ticker] = struct{}{}
				}
				return true
			})
		}
	}

	out := make([]string, 0, len(matched))
	for t := range matched {
		out = append(out, t)
	}
	sort.Strings(out)
	if len(out) > MaxResults {
		out = out[:MaxResults]
	}
	return out
}

// Sector returns the catalog tickers belonging to the named sector. The
// second result is false when the sector is unknown.
func (e *Engine) Sector(name string) ([]string, bool) {
	s, ok := e.catalog.Sector(name)
	if !ok {
		return nil, false
	}
	var out []string
	e.catalog.Entries(func(entry catalog.Entry) bool {
		if s.Match(entry.Ticker) {
			out = append(out, entry.Ticker)
		}
		return true
	})
	return out, true
}

func compile(pattern string) *regexp.Regexp {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil
	}
	return re
}
