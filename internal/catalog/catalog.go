package catalog

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

//go:embed tickers.txt
var defaultTickers []byte

type Entry struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
}

// Catalog is the immutable ticker -> company name table. Safe for concurrent
// readers once built.
type Catalog struct {
	tickers []string
	names   map[string]string
	sectors map[string]Sector
}

func Default() *Catalog {
	c, err := Load(bytes.NewReader(defaultTickers))
	if err != nil {
		panic(fmt.Sprintf("embedded ticker list: %v", err))
	}
	return c
}

func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads "TICKER<whitespace>Company Name" lines. Lines that do not have
// both columns are skipped, the first occurrence of a ticker wins.
func Load(r io.Reader) (*Catalog, error) {
	c := &Catalog{names: make(map[string]string)}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		entry, ok := parseLine(sc.Text())
		if !ok {
			continue
		}
		if _, dup := c.names[entry.Ticker]; dup {
			continue
		}
		c.names[entry.Ticker] = entry.Name
		c.tickers = append(c.tickers, entry.Ticker)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	sort.Strings(c.tickers)
	c.sectors = builtinSectors()
	return c, nil
}

func FromEntries(entries []Entry) *Catalog {
	c := &Catalog{names: make(map[string]string, len(entries))}
	for _, e := range entries {
		ticker := strings.ToUpper(strings.TrimSpace(e.Ticker))
		if ticker == "" {
			continue
		}
		if _, dup := c.names[ticker]; dup {
			continue
		}
		c.names[ticker] = strings.TrimSpace(e.Name)
		c.tickers = append(c.tickers, ticker)
	}
	sort.Strings(c.tickers)
	c.sectors = builtinSectors()
	return c
}

func parseLine(line string) (Entry, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Entry{}, false
	}
	idx := strings.IndexAny(line, " \t")
	if idx <= 0 {
		return Entry{}, false
	}
	ticker := strings.ToUpper(line[:idx])
	name := strings.TrimSpace(line[idx:])
	if name == "" || strings.ContainsAny(ticker, ",;") {
		return Entry{}, false
	}
	return Entry{Ticker: ticker, Name: name}, true
}

func (c *Catalog) Len() int {
	return len(c.tickers)
}

// Tickers returns a sorted copy of every ticker.
func (c *Catalog) Tickers() []string {
	out := make([]string, len(c.tickers))
	copy(out, c.tickers)
	return out
}

func (c *Catalog) Name(ticker string) (string, bool) {
	name, ok := c.names[strings.ToUpper(strings.TrimSpace(ticker))]
	return name, ok
}

func (c *Catalog) Contains(ticker string) bool {
	_, ok := c.Name(ticker)
	return ok
}

// Entries calls fn for every entry in ticker order.
func (c *Catalog) Entries(fn func(Entry) bool) {
	for _, t := range c.tickers {
		if !fn(Entry{Ticker: t, Name: c.names[t]}) {
			return
		}
	}
}

// Prefix returns the sorted tickers that start with prefix.
func (c *Catalog) Prefix(prefix string) []string {
	prefix = strings.ToUpper(prefix)
	if prefix == "" {
		return nil
	}
	i := sort.SearchStrings(c.tickers, prefix)
	var out []string
	for ; i < len(c.tickers) && strings.HasPrefix(c.tickers[i], prefix); i++ {
		out = append(out, c.tickers[i])
	}
	return out
}

func (c *Catalog) Sector(name string) (Sector, bool) {
	s, ok := c.sectors[strings.ToUpper(strings.TrimSpace(name))]
	return s, ok
}

func (c *Catalog) Sectors() []string {
	out := make([]string, 0, len(c.sectors))
	for name := range c.sectors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
