package coin

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDecimal parses an API decimal string. It returns false for nil, empty
// or unparsable input.
func ParseDecimal(s *string) (decimal.Decimal, bool) {
	if s == nil {
		return decimal.Zero, false
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// CompareDesc orders two decimal strings for a descending sort. Missing or
// unparsable values always sort after present ones, whatever their sign.
// It returns a negative number when a sorts before b.
func CompareDesc(a, b *string) int {
	da, okA := ParseDecimal(a)
	db, okB := ParseDecimal(b)
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return 1
	case !okB:
		return -1
	}
	return db.Cmp(da)
}

// FormatPrice renders a price as "$1234.57". Missing prices render as "-".
func FormatPrice(s *string) string {
	d, ok := ParseDecimal(s)
	if !ok {
		return "-"
	}
	return "$" + d.StringFixed(2)
}

// FormatChange renders a percentage change as "+1.25%" or "-0.40%".
func FormatChange(s *string) string {
	d, ok := ParseDecimal(s)
	if !ok {
		return "-"
	}
	out := d.StringFixed(2)
	if !strings.HasPrefix(out, "-") {
		out = "+" + out
	}
	return out + "%"
}

// ChartSeries converts history points to float samples for plotting, in the
// order given. Points without a usable price are skipped.
func ChartSeries(points []HistoryPoint) []float64 {
	out := make([]float64, 0, len(points))
	for _, p := range points {
		d, ok := ParseDecimal(p.Price)
		if !ok {
			continue
		}
		f, _ := d.Float64()
		out = append(out, f)
	}
	return out
}
