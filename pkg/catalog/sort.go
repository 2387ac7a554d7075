package catalog

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Sternrassler/coin-catalog/pkg/coin"
)

// Sort selects the order of the catalog view.
type Sort int

const (
	// SortNone keeps arrival order.
	SortNone Sort = iota
	// SortPriceDesc orders by price, highest first.
	SortPriceDesc
	// SortChangeDesc orders by 24h change, highest first.
	SortChangeDesc
)

func (s Sort) String() string {
	switch s {
	case SortNone:
		return "none"
	case SortPriceDesc:
		return "price_desc"
	case SortChangeDesc:
		return "change_desc"
	default:
		return fmt.Sprintf("Sort(%d)", int(s))
	}
}

// Valid reports whether s is a known sort.
func (s Sort) Valid() bool {
	return s >= SortNone && s <= SortChangeDesc
}

// ParseSort maps a name such as "price_desc" to a Sort.
func ParseSort(name string) (Sort, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return SortNone, nil
	case "price_desc", "price":
		return SortPriceDesc, nil
	case "change_desc", "change":
		return SortChangeDesc, nil
	default:
		return SortNone, fmt.Errorf("%w: %q", ErrUnknownSort, name)
	}
}

// sortCoins returns a sorted copy of coins. The sort is stable and coins
// without a parsable figure go last.
func sortCoins(coins []coin.Summary, by Sort) []coin.Summary {
	out := slices.Clone(coins)

	var field func(*coin.Summary) *string
	switch by {
	case SortPriceDesc:
		field = func(c *coin.Summary) *string { return c.Price }
	case SortChangeDesc:
		field = func(c *coin.Summary) *string { return c.Change }
	default:
		return out
	}

	slices.SortStableFunc(out, func(a, b coin.Summary) int {
		return coin.CompareDesc(field(&a), field(&b))
	})
	return out
}

// filterCoins keeps coins whose name or symbol contains query, ignoring case.
func filterCoins(coins []coin.Summary, query string) []coin.Summary {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return coins
	}

	out := make([]coin.Summary, 0, len(coins))
	for _, c := range coins {
		if strings.Contains(strings.ToLower(c.Name), q) || strings.Contains(strings.ToLower(c.Symbol), q) {
			out = append(out, c)
		}
	}
	return out
}
