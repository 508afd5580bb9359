package search

import (
	"fmt"
	"reflect"
	"sort"
	"testing"

	"stockwatch/internal/catalog"
)

func testCatalog() *catalog.Catalog {
	return catalog.FromEntries([]catalog.Entry{
		{Ticker: "GOOG", Name: "Google Inc. Class C"},
		{Ticker: "GOOGL", Name: "Google Inc. Class A"},
		{Ticker: "GE", Name: "General Electric Company"},
		{Ticker: "IBM", Name: "International Business Machines"},
		{Ticker: "INTC", Name: "Intel Corporation"},
		{Ticker: "AAPL", Name: "Apple Inc."},
		{Ticker: "XOM", Name: "Exxon Mobil Corporation"},
		{Ticker: "CVX", Name: "Chevron Corporation"},
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		raw  string
		kind QueryKind
		text string
	}{
		{raw: "goog", kind: PrefixQuery, text: "GOOG"},
		{raw: "  ibm ", kind: PrefixQuery, text: "IBM"},
		{raw: "G.*", kind: RegexQuery, text: "G.*"},
		{raw: "brk.b", kind: RegexQuery, text: "BRK.B"},
		{raw: "", kind: PrefixQuery, text: ""},
		{raw: "é", kind: PrefixQuery, text: "É"},
		{raw: "nestlé ag", kind: RegexQuery, text: "NESTLÉ AG"},
	}
	for _, tc := range tests {
		q := Classify(tc.raw)
		if q.Kind != tc.kind || q.Text != tc.text {
			t.Fatalf("raw=%q got=%+v want kind=%v text=%q", tc.raw, q, tc.kind, tc.text)
		}
	}
}

func TestSearchPrefixIgnoresCase(t *testing.T) {
	e := NewEngine(testCatalog())
	for _, raw := range []string{"GO", "go", "Go"} {
		got := e.Search(raw)
		want := []string{"GOOG", "GOOGL"}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("raw=%q got=%v want=%v", raw, got, want)
		}
	}
}

func TestSearchMatchesCompanyNames(t *testing.T) {
	e := NewEngine(testCatalog())
	got := e.Search("corporation")
	want := []string{"CVX", "INTC", "XOM"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got=%v want=%v", got, want)
	}

	// two letters never reach the name path
	if got := e.Search("ex"); len(got) != 0 {
		t.Fatalf("expected no matches for short query, got %v", got)
	}
}

func TestSearchRegexOverSymbols(t *testing.T) {
	e := NewEngine(testCatalog())
	got := e.Search("^G.*L$")
	if !reflect.DeepEqual(got, []string{"GOOGL"}) {
		t.Fatalf("got=%v", got)
	}
	got = e.Search("G.")
	if !reflect.DeepEqual(got, []string{"GE"}) {
		t.Fatalf("got=%v", got)
	}
}

func TestSearchMalformedRegexYieldsNothing(t *testing.T) {
	e := NewEngine(testCatalog())
	for _, raw := range []string{"GO((", "A)|(.*", ")|(", "X)|(.*"} {
		if got := e.Search(raw); len(got) != 0 {
			t.Fatalf("Search(%q): expected empty result, got %v", raw, got)
		}
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	e := NewEngine(testCatalog())
	if got := e.Search("   "); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestSearchResultsSortedAndCapped(t *testing.T) {
	entries := make([]catalog.Entry, 0, MaxResults+500)
	for i := 0; i < MaxResults+500; i++ {
		entries = append(entries, catalog.Entry{
			Ticker: fmt.Sprintf("Z%05d", i),
			Name:   "Zeta Holdings",
		})
	}
	e := NewEngine(catalog.FromEntries(entries))
	got := e.Search("zeta")
	if len(got) != MaxResults {
		t.Fatalf("expected cap %d, got %d", MaxResults, len(got))
	}
	if !sort.StringsAreSorted(got) {
		t.Fatalf("results not sorted")
	}
	seen := make(map[string]bool, len(got))
	for _, s := range got {
		if seen[s] {
			t.Fatalf("duplicate ticker %s", s)
		}
		seen[s] = true
	}
}

func TestSectorDowIntersectsCatalog(t *testing.T) {
	e := NewEngine(testCatalog())
	got, ok := e.Sector("Dow Jones Industrials")
	if !ok {
		t.Fatalf("expected sector to resolve")
	}
	want := []string{"CVX", "GE", "IBM", "INTC", "XOM"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got=%v want=%v", got, want)
	}
}

func TestUnknownSector(t *testing.T) {
	e := NewEngine(testCatalog())
	got, ok := e.Sector("penny stocks")
	if ok || got != nil {
		t.Fatalf("expected unknown sector, got=%v ok=%v", got, ok)
	}
}
