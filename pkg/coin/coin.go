// Package coin defines the coin records returned by the coin API.
//
// Financial figures (price, change, market cap, supply, ...) arrive from the
// API as decimal strings. They are stored verbatim as *string and only parsed
// at sort or render time (see ParseDecimal), so very large and very small
// magnitudes never lose precision on ingest.
package coin

// Summary is one row of the paged coin listing.
type Summary struct {
	UUID   string `json:"uuid"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`

	Color          *string `json:"color,omitempty"`
	IconURL        *string `json:"iconUrl,omitempty"`
	CoinrankingURL *string `json:"coinrankingUrl,omitempty"`

	MarketCap *string `json:"marketCap,omitempty"`
	Price     *string `json:"price,omitempty"`
	Change    *string `json:"change,omitempty"`
	Volume24h *string `json:"24hVolume,omitempty"`
	BTCPrice  *string `json:"btcPrice,omitempty"`

	Rank      *int      `json:"rank,omitempty"`
	Tier      *int      `json:"tier,omitempty"`
	ListedAt  *int64    `json:"listedAt,omitempty"`
	LowVolume *bool     `json:"lowVolume,omitempty"`
	Sparkline []*string `json:"sparkline,omitempty"`
}

// Detail is the full record returned by the single-coin endpoint.
type Detail struct {
	UUID   string `json:"uuid"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`

	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
	IconURL     *string `json:"iconUrl,omitempty"`
	WebsiteURL  *string `json:"websiteUrl,omitempty"`
	Links       []Link  `json:"links,omitempty"`

	Supply      *Supply      `json:"supply,omitempty"`
	AllTimeHigh *AllTimeHigh `json:"allTimeHigh,omitempty"`

	MarketCap *string `json:"marketCap,omitempty"`
	Price     *string `json:"price,omitempty"`
	Change    *string `json:"change,omitempty"`
	Volume24h *string `json:"24hVolume,omitempty"`
	BTCPrice  *string `json:"btcPrice,omitempty"`

	Rank      *int      `json:"rank,omitempty"`
	Tier      *int      `json:"tier,omitempty"`
	ListedAt  *int64    `json:"listedAt,omitempty"`
	LowVolume *bool     `json:"lowVolume,omitempty"`
	Sparkline []*string `json:"sparkline,omitempty"`
}

// Link is an external resource of a coin (website, explorer, social).
type Link struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Supply holds the supply figures of a coin.
type Supply struct {
	Confirmed   bool    `json:"confirmed"`
	SupplyAt    *int64  `json:"supplyAt,omitempty"`
	Max         *string `json:"max,omitempty"`
	Total       *string `json:"total,omitempty"`
	Circulating *string `json:"circulating,omitempty"`
}

// AllTimeHigh is the highest recorded price and when it happened.
type AllTimeHigh struct {
	Price     *string `json:"price,omitempty"`
	Timestamp *int64  `json:"timestamp,omitempty"`
}

// HistoryPoint is one sample of a coin's price history. Price is nil when the
// API has no sample for that slot.
type HistoryPoint struct {
	Price     *string `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

// Stats is the market-wide summary sent with every listing page.
type Stats struct {
	Total          int     `json:"total"`
	TotalCoins     int     `json:"totalCoins"`
	TotalMarkets   int     `json:"totalMarkets"`
	TotalExchanges int     `json:"totalExchanges"`
	TotalMarketCap *string `json:"totalMarketCap,omitempty"`
	Total24hVolume *string `json:"total24hVolume,omitempty"`
}

// Pagination is the cursor block of a listing page. Older API versions omit
// it, in which case HasNextPage is nil.
type Pagination struct {
	Limit       int     `json:"limit"`
	HasNextPage *bool   `json:"hasNextPage,omitempty"`
	NextCursor  *string `json:"nextCursor,omitempty"`
}

// CoinsPage is one decoded page of the coin listing.
type CoinsPage struct {
	Coins      []Summary   `json:"coins"`
	Stats      *Stats      `json:"stats,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// FavoriteView is the UI projection of a favorite coin. It is rebuilt from a
// fresh Detail on every aggregation pass.
type FavoriteView struct {
	UUID    string
	Symbol  string
	Name    string
	Price   *string
	Change  *string
	IconURL *string
}

// NewFavoriteView projects a Detail into a FavoriteView.
func NewFavoriteView(d *Detail) FavoriteView {
	return FavoriteView{
		UUID:    d.UUID,
		Symbol:  d.Symbol,
		Name:    d.Name,
		Price:   d.Price,
		Change:  d.Change,
		IconURL: d.IconURL,
	}
}

// Period is a history time window accepted by the history endpoint.
type Period string

// Supported history periods.
const (
	Period3h  Period = "3h"
	Period24h Period = "24h"
	Period7d  Period = "7d"
	Period30d Period = "30d"
	Period3m  Period = "3m"
	Period1y  Period = "1y"
	Period3y  Period = "3y"
	Period5y  Period = "5y"
)

// DefaultPeriod is used when no period is given.
const DefaultPeriod = Period24h

// Valid reports whether p is a period the API accepts.
func (p Period) Valid() bool {
	switch p {
	case Period3h, Period24h, Period7d, Period30d, Period3m, Period1y, Period3y, Period5y:
		return true
	default:
		return false
	}
}
