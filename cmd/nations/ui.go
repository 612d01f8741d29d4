package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"nations/internal/catalog"
	"nations/internal/game"
	"nations/internal/ledger"

	"github.com/fatih/color"
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

func promptInt64(label string, min int64) (int64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			printWarn("Enter a whole number.")
			continue
		}
		if v < min {
			printWarn(fmt.Sprintf("Value must be >= %d", min))
			continue
		}
		return v, nil
	}
}

func renderShop(items []catalog.Item) {
	accent.Println("\n== GLOBAL SHOP ==")
	fmt.Printf("%-18s %12s %12s\n", "ITEM", "PRICE", "INCOME")
	for _, it := range items {
		fmt.Printf("%-18s %12s %12s\n", truncate(it.ID, 18), comma(it.Price), "+"+comma(it.Income))
	}
	fmt.Println()
}

func renderCountry(c ledger.Country) {
	accent.Printf("\n== %s ==\n", strings.ToUpper(c.Name))
	fmt.Printf("Owner:  %s\n", c.OwnerID)
	fmt.Printf("Wallet: %s\n", colorizeCoins(c.Wallet))
	fmt.Printf("Income: %s per payout\n", comma(c.Income))
	ids := c.ItemIDs()
	if len(ids) == 0 {
		printInfo("Items:  none")
	} else {
		parts := make([]string, 0, len(ids))
		for _, id := range ids {
			parts = append(parts, fmt.Sprintf("%s x%d", id, c.Items[id]))
		}
		fmt.Printf("Items:  %s\n", strings.Join(parts, ", "))
	}
	fmt.Println()
}

func renderLeaderboard(rows []game.LeaderboardRow) {
	accent.Println("\n== RICHEST COUNTRIES ==")
	if len(rows) == 0 {
		printInfo("No countries yet.")
		return
	}
	fmt.Printf("%-6s %-22s %-20s %14s %12s\n", "RANK", "COUNTRY", "OWNER", "WALLET", "INCOME")
	for _, row := range rows {
		fmt.Printf("%-6d %-22s %-20s %14s %12s\n",
			row.Rank,
			truncate(row.Name, 22),
			truncate(row.OwnerID, 20),
			comma(row.Wallet),
			comma(row.Income),
		)
	}
	fmt.Println()
}

func renderCountries(all []ledger.Country) {
	accent.Println("\n== ALL COUNTRIES ==")
	if len(all) == 0 {
		printInfo("No countries exist yet.")
		return
	}
	fmt.Printf("%-22s %-20s %14s %12s\n", "COUNTRY", "OWNER", "WALLET", "INCOME")
	for _, c := range all {
		fmt.Printf("%-22s %-20s %14s %12s\n", truncate(c.Name, 22), truncate(c.OwnerID, 20), colorizeCoins(c.Wallet), comma(c.Income))
	}
	fmt.Println()
}

func colorizeCoins(v int64) string {
	text := comma(v)
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func comma(v int64) string {
	s := strconv.FormatInt(v, 10)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	if len(s) <= 3 {
		return sign + s
	}
	var b strings.Builder
	b.WriteString(sign)
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		b.WriteByte(',')
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
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
