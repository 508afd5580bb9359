package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"stockwatch/internal/game"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"golang.org/x/term"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptOptional(label string) (string, error) {
	fmt.Printf("%s: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// promptPassword reads without echo when stdin is a terminal.
func promptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptRequired(label)
	}
	for {
		fmt.Printf("%s: ", label)
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		if text := strings.TrimSpace(string(raw)); text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func parseTicker(raw string) (string, error) {
	ticker := game.NormalizeTicker(raw)
	if err := game.ValidateTicker(ticker); err != nil {
		return "", err
	}
	return ticker, nil
}

func parseQuantity(raw string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("quantity must be a whole number > 0, got %q", raw)
	}
	return v, nil
}

func renderStockList(title string, list game.StockList) {
	accent.Printf("\n== %s ==\n", strings.ToUpper(title))
	if list.Total == 0 {
		printInfo("No matching stocks.")
		return
	}
	fmt.Printf("%-8s %-32s %12s %10s %8s %12s\n", "TICKER", "NAME", "PRICE", "CHANGE", "OWNED", "AVG COST")
	for _, q := range list.Quotes {
		ticker := q.Ticker
		if q.Favorite {
			ticker = "*" + ticker
		}
		avg := "-"
		if q.SharesOwned > 0 {
			avg = game.FormatCents(q.AvgPrice)
		}
		fmt.Printf("%-8s %-32s %12s %10s %8d %12s\n",
			ticker,
			truncate(q.Name, 32),
			game.FormatCents(q.Price),
			colorizeChange(q.Change),
			q.SharesOwned,
			avg,
		)
	}
	shown := len(list.Quotes)
	if list.Total > shown {
		printInfo(fmt.Sprintf("showing %d-%d of %d", list.Start+1, list.Start+shown, list.Total))
	}
}

func renderAccount(resp game.StockResponse) {
	accent.Printf("\n%s  ", resp.DisplayName)
	fmt.Printf("cash %s  net worth %s\n", game.FormatCents(resp.Cash), game.FormatCents(resp.NetWorth))
}

func renderTransaction(res game.TransactionResult) {
	verb := "Bought"
	if res.Side == game.SideSell {
		verb = "Sold"
	}
	printSuccess(fmt.Sprintf("%s %d %s at %s (total %s).", verb, res.Quantity, res.Ticker, game.FormatCents(res.Price), game.FormatCents(res.Total)))
	printInfo("Cash: " + game.FormatCents(res.Cash))
}

func renderLeaderboard(rows []game.LeaderboardRow) {
	accent.Printf("\n== LEADERBOARD ==\n")
	if len(rows) == 0 {
		printInfo("No leaderboard rows yet.")
		return
	}
	fmt.Printf("%-6s %-24s %16s\n", "RANK", "PLAYER", "NET WORTH")
	for _, row := range rows {
		fmt.Printf("%-6d %-24s %16s\n", row.Rank, truncate(row.DisplayName, 24), game.FormatCents(row.NetWorth))
	}
	fmt.Println()
}

func renderStatus(st game.StatusView) {
	accent.Printf("\n== %s ==\n", strings.ToUpper(st.DisplayName))
	fmt.Printf("Cash: %s  Net worth: %s\n", game.FormatCents(st.Cash), game.FormatCents(st.NetWorth))
	if len(st.Positions) == 0 {
		printInfo("No positions.")
	} else {
		fmt.Printf("\n%-8s %8s %12s %12s %14s\n", "TICKER", "SHARES", "AVG COST", "PRICE", "UNREALIZED")
		for _, p := range st.Positions {
			fmt.Printf("%-8s %8d %12s %12s %14s\n",
				p.Ticker, p.Shares, game.FormatCents(p.AvgPrice), game.FormatCents(p.CurrentPrice), colorizeCents(p.Unrealized))
		}
	}
	if len(st.Favorites) > 0 {
		fmt.Printf("\nFavorites: %s\n", strings.Join(st.Favorites, ", "))
	}
	if len(st.Messages) > 0 {
		accent.Println("\nRecent activity")
		for _, m := range st.Messages {
			fmt.Println("  " + m)
		}
	}
	fmt.Println()
}

// changeSign parses a quote change like "+1.23" or "-0.40".
func changeSign(change string) int {
	d, err := decimal.NewFromString(strings.TrimPrefix(strings.TrimSpace(change), "+"))
	if err != nil {
		return 0
	}
	return d.Sign()
}

func colorizeChange(change string) string {
	if change == "" {
		return neutral.Sprint("-")
	}
	switch changeSign(change) {
	case 1:
		return success.Sprint(change)
	case -1:
		return danger.Sprint(change)
	default:
		return neutral.Sprint(change)
	}
}

func colorizeCents(v int64) string {
	text := game.FormatCents(v)
	switch {
	case v > 0:
		return success.Sprint("+" + text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
