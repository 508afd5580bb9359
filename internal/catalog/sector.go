package catalog

import (
	"regexp"
	"sort"
	"strings"
)

const DowJonesIndustrials = "DOW JONES INDUSTRIALS"

// Sector is a named, fixed enumeration of tickers matched through a
// precompiled pattern.
type Sector struct {
	Name    string
	pattern *regexp.Regexp
	members []string
}

func newSector(name string, members ...string) Sector {
	sorted := append([]string(nil), members...)
	sort.Strings(sorted)
	quoted := make([]string, len(sorted))
	for i, m := range sorted {
		quoted[i] = regexp.QuoteMeta(m)
	}
	return Sector{
		Name:    name,
		pattern: regexp.MustCompile(`^(?:` + strings.Join(quoted, "|") + `)$`),
		members: sorted,
	}
}

func (s Sector) Match(ticker string) bool {
	return s.pattern.MatchString(ticker)
}

// Members is the full enumeration, whether or not the catalog lists them.
func (s Sector) Members() []string {
	return append([]string(nil), s.members...)
}

func builtinSectors() map[string]Sector {
	sectors := []Sector{
		newSector(DowJonesIndustrials,
			"AA", "AXP", "BA", "BAC", "CAT", "CSCO", "CVX", "DD", "DIS", "GE",
			"HD", "HPQ", "IBM", "INTC", "JNJ", "JPM", "KFT", "KO", "MCD", "MMM",
			"MRK", "MSFT", "PFE", "PG", "T", "TRV", "UTX", "VZ", "WMT", "XOM",
		),
		newSector("TECHNOLOGY",
			"AAPL", "ADBE", "AMZN", "CSCO", "EBAY", "GOOG", "GOOGL", "HPQ", "IBM",
			"INTC", "MSFT", "NFLX", "NVDA", "ORCL", "QCOM", "TXN", "YHOO",
		),
		newSector("FINANCIALS",
			"AXP", "BAC", "C", "GS", "JPM", "MS", "TRV", "USB", "WFC",
		),
		newSector("ENERGY",
			"COP", "CVX", "HAL", "OXY", "SLB", "XOM",
		),
	}
	out := make(map[string]Sector, len(sectors))
	for _, s := range sectors {
		out[s.Name] = s
	}
	return out
}
