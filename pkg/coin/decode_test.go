package coin

import (
	"errors"
	"testing"
)

func TestDecodeCoinsPage(t *testing.T) {
	body := []byte(`{
		"status": "success",
		"data": {
			"stats": {"total": 3, "totalCoins": 3, "totalMarkets": 10, "totalExchanges": 2,
			          "totalMarketCap": "1000", "total24hVolume": "50"},
			"coins": [
				{"uuid": "Qwsogvtv82FCd", "symbol": "BTC", "name": "Bitcoin",
				 "price": "65955.43592725793", "change": "-0.52", "rank": 1,
				 "24hVolume": "9010000000", "sparkline": ["1", null, "3"], "unknownField": true},
				{"uuid": "razxDUgYGNAdQ", "symbol": "ETH", "name": "Ethereum", "price": null}
			],
			"pagination": {"limit": 2, "hasNextPage": true, "nextCursor": "abc"}
		}
	}`)

	page, err := DecodeCoinsPage(body)
	if err != nil {
		t.Fatalf("DecodeCoinsPage() error = %v", err)
	}

	if len(page.Coins) != 2 {
		t.Fatalf("len(Coins) = %d, want 2", len(page.Coins))
	}

	btc := page.Coins[0]
	if btc.Price == nil || *btc.Price != "65955.43592725793" {
		t.Errorf("Price = %v, want verbatim decimal string", btc.Price)
	}
	if btc.Volume24h == nil || *btc.Volume24h != "9010000000" {
		t.Errorf("Volume24h = %v, want 9010000000", btc.Volume24h)
	}
	if btc.Rank == nil || *btc.Rank != 1 {
		t.Errorf("Rank = %v, want 1", btc.Rank)
	}
	if len(btc.Sparkline) != 3 || btc.Sparkline[1] != nil {
		t.Errorf("Sparkline = %v, want 3 entries with nil in the middle", btc.Sparkline)
	}

	if page.Coins[1].Price != nil {
		t.Errorf("ETH price = %v, want nil", *page.Coins[1].Price)
	}
	if page.Coins[1].IconURL != nil {
		t.Error("absent optional field should stay nil")
	}

	if page.Stats == nil || page.Stats.TotalCoins != 3 {
		t.Errorf("Stats = %+v, want TotalCoins 3", page.Stats)
	}
	if page.Pagination == nil || page.Pagination.HasNextPage == nil || !*page.Pagination.HasNextPage {
		t.Errorf("Pagination = %+v, want hasNextPage true", page.Pagination)
	}
}

func TestDecodeCoinsPage_Invalid(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantFailure bool
	}{
		{
			name: "not json",
			body: `<html>`,
		},
		{
			name: "missing status",
			body: `{"data": {"coins": []}}`,
		},
		{
			name: "missing data",
			body: `{"status": "success"}`,
		},
		{
			name: "missing coins",
			body: `{"status": "success", "data": {}}`,
		},
		{
			name: "coin without uuid",
			body: `{"status": "success", "data": {"coins": [{"symbol": "BTC", "name": "Bitcoin"}]}}`,
		},
		{
			name: "coin without symbol",
			body: `{"status": "success", "data": {"coins": [{"uuid": "x", "name": "Bitcoin"}]}}`,
		},
		{
			name: "numeric price",
			body: `{"status": "success", "data": {"coins": [{"uuid": "x", "symbol": "X", "name": "X", "price": 1.5}]}}`,
		},
		{
			name:        "failure envelope",
			body:        `{"status": "fail", "type": "UNAUTHORIZED", "message": "bad key"}`,
			wantFailure: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCoinsPage([]byte(tt.body))
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			var failure *Failure
			if tt.wantFailure {
				if !errors.As(err, &failure) {
					t.Fatalf("error = %v, want *Failure", err)
				}
				if failure.Type != FailureUnauthorized {
					t.Errorf("Type = %q, want %q", failure.Type, FailureUnauthorized)
				}
				return
			}
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestDecodeCoinsPage_EmptyList(t *testing.T) {
	page, err := DecodeCoinsPage([]byte(`{"status": "success", "data": {"coins": []}}`))
	if err != nil {
		t.Fatalf("DecodeCoinsPage() error = %v", err)
	}
	if len(page.Coins) != 0 {
		t.Errorf("len(Coins) = %d, want 0", len(page.Coins))
	}
	if page.Pagination != nil {
		t.Error("Pagination should be nil when absent")
	}
}

func TestDecodeDetail(t *testing.T) {
	body := []byte(`{
		"status": "success",
		"data": {
			"coin": {
				"uuid": "Qwsogvtv82FCd",
				"symbol": "BTC",
				"name": "Bitcoin",
				"description": "<p>Bitcoin is the first decentralized digital currency.</p>",
				"iconUrl": "https://cdn.coinranking.com/bOabBYkcX/bitcoin_btc.svg",
				"websiteUrl": "https://bitcoin.org",
				"links": [{"name": "bitcoin.org", "url": "https://bitcoin.org", "type": "website"}],
				"supply": {"confirmed": true, "supplyAt": 1700000000, "max": "21000000", "total": "19500000", "circulating": "19500000"},
				"price": "65955.43",
				"change": "1.25",
				"allTimeHigh": {"price": "73750.07", "timestamp": 1710374400}
			}
		}
	}`)

	d, err := DecodeDetail(body)
	if err != nil {
		t.Fatalf("DecodeDetail() error = %v", err)
	}

	if d.UUID != "Qwsogvtv82FCd" || d.Name != "Bitcoin" {
		t.Errorf("identity = %s/%s", d.UUID, d.Name)
	}
	if d.Supply == nil || d.Supply.Max == nil || *d.Supply.Max != "21000000" {
		t.Errorf("Supply = %+v, want max 21000000", d.Supply)
	}
	if d.AllTimeHigh == nil || d.AllTimeHigh.Price == nil || *d.AllTimeHigh.Price != "73750.07" {
		t.Errorf("AllTimeHigh = %+v", d.AllTimeHigh)
	}
	if len(d.Links) != 1 || d.Links[0].Type != "website" {
		t.Errorf("Links = %+v", d.Links)
	}

	view := NewFavoriteView(d)
	if view.Symbol != "BTC" || view.Price == nil || *view.Price != "65955.43" {
		t.Errorf("NewFavoriteView() = %+v", view)
	}
}

func TestDecodeDetail_NotFound(t *testing.T) {
	body := []byte(`{"status": "fail", "type": "COIN_NOT_FOUND", "message": "Coin not found"}`)

	_, err := DecodeDetail(body)

	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("error = %v, want *Failure", err)
	}
	if failure.Type != FailureCoinNotFound {
		t.Errorf("Type = %q, want %q", failure.Type, FailureCoinNotFound)
	}
}

func TestDecodeDetail_MissingName(t *testing.T) {
	_, err := DecodeDetail([]byte(`{"status": "success", "data": {"coin": {"uuid": "x"}}}`))
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("error = %v, want ErrMalformed", err)
	}
}

func TestDecodeDetail_MissingSymbol(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"absent", `{"status": "success", "data": {"coin": {"uuid": "x", "name": "X"}}}`},
		{"null", `{"status": "success", "data": {"coin": {"uuid": "x", "name": "X", "symbol": null}}}`},
		{"empty", `{"status": "success", "data": {"coin": {"uuid": "x", "name": "X", "symbol": ""}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeDetail([]byte(tt.body))
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestDecodeHistory(t *testing.T) {
	body := []byte(`{
		"status": "success",
		"data": {
			"change": "1.2",
			"history": [
				{"price": "65955.43", "timestamp": 1700003600},
				{"price": null, "timestamp": 1700000000}
			]
		}
	}`)

	points, err := DecodeHistory(body)
	if err != nil {
		t.Fatalf("DecodeHistory() error = %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("len(points) = %d, want 2", len(points))
	}
	if points[1].Price != nil {
		t.Error("null price should decode as nil")
	}
	if points[0].Timestamp != 1700003600 {
		t.Errorf("Timestamp = %d", points[0].Timestamp)
	}
}

func TestDecodeFailure(t *testing.T) {
	if f := DecodeFailure([]byte(`{"status": "success", "data": {}}`)); f != nil {
		t.Errorf("DecodeFailure(success) = %v, want nil", f)
	}
	if f := DecodeFailure([]byte(`garbage`)); f != nil {
		t.Errorf("DecodeFailure(garbage) = %v, want nil", f)
	}
	f := DecodeFailure([]byte(`{"status": "fail", "type": "RATE_LIMIT_EXCEEDED", "message": "slow down"}`))
	if f == nil || f.Type != FailureRateLimited {
		t.Errorf("DecodeFailure() = %v, want RATE_LIMIT_EXCEEDED", f)
	}
}

func TestPeriod_Valid(t *testing.T) {
	if !DefaultPeriod.Valid() {
		t.Error("DefaultPeriod should be valid")
	}
	if Period("2w").Valid() {
		t.Error("2w should not be valid")
	}
}
