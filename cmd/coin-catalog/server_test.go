package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Sternrassler/coin-catalog/internal/testutil"
	"github.com/Sternrassler/coin-catalog/pkg/aggregator"
	"github.com/Sternrassler/coin-catalog/pkg/catalog"
	"github.com/Sternrassler/coin-catalog/pkg/client"
	"github.com/Sternrassler/coin-catalog/pkg/favorites"
	"github.com/Sternrassler/coin-catalog/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupServer(t *testing.T) (http.Handler, *testutil.MockAPI) {
	t.Helper()

	mock := testutil.NewMockAPI(30)
	t.Cleanup(mock.Close)

	cfg := client.DefaultConfig("test-key")
	cfg.BaseURL = mock.BaseURL()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 10 * time.Millisecond
	cfg.ThrottleDelay = 0
	gateway, err := client.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { gateway.Close() })

	cat, err := catalog.New(gateway, catalog.Config{PageSize: 10, MaxItems: 30})
	require.NoError(t, err)

	favs, err := favorites.New(kv.NewMemory())
	require.NoError(t, err)
	agg, err := aggregator.New(favs, gateway, aggregator.DefaultConfig())
	require.NoError(t, err)

	return newServer(gateway, cat, favs, agg), mock
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

type coinsResponse struct {
	Coins  []coinRow  `json:"coins"`
	Sort   string     `json:"sort"`
	Paging pagingJSON `json:"paging"`
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := setupServer(t)

	rec := do(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := setupServer(t)

	rec := do(t, h, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "coin_catalog_items_loaded")
}

func TestCoins_LoadSortFilter(t *testing.T) {
	h, _ := setupServer(t)

	rec := do(t, h, http.MethodPost, "/coins/next")
	require.Equal(t, http.StatusOK, rec.Code)
	next := decode[struct {
		Added  int        `json:"added"`
		Paging pagingJSON `json:"paging"`
	}](t, rec)
	assert.Equal(t, 10, next.Added)
	assert.Equal(t, 10, next.Paging.Offset)
	assert.False(t, next.Paging.Terminal)

	rec = do(t, h, http.MethodGet, "/coins?sort=price_desc")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[coinsResponse](t, rec)
	require.Len(t, list.Coins, 10)
	assert.Equal(t, "price_desc", list.Sort)
	assert.Equal(t, "coin-001", list.Coins[0].UUID)
	assert.Equal(t, "$3000.50", list.Coins[0].Price)

	rec = do(t, h, http.MethodGet, "/coins?q=c007")
	list = decode[coinsResponse](t, rec)
	require.Len(t, list.Coins, 1)
	assert.Equal(t, "Coin 007", list.Coins[0].Name)

	rec = do(t, h, http.MethodGet, "/coins?sort=alphabetical")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/coins/reset")
	require.Equal(t, http.StatusOK, rec.Code)
	list = decode[coinsResponse](t, do(t, h, http.MethodGet, "/coins"))
	assert.Empty(t, list.Coins)
	assert.Equal(t, 0, list.Paging.Offset)
}

func TestCoins_UpstreamFailure(t *testing.T) {
	h, mock := setupServer(t)
	mock.FailNext(testutil.NewUnauthorizedResponse())

	rec := do(t, h, http.MethodPost, "/coins/next")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestCoinHistory(t *testing.T) {
	h, _ := setupServer(t)

	rec := do(t, h, http.MethodGet, "/coins/coin-002/history?period=7d")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Points []json.RawMessage `json:"points"`
		Series []float64         `json:"series"`
	}](t, rec)
	require.NotEmpty(t, body.Points)
	assert.Len(t, body.Series, len(body.Points)-1, "the point without a price is skipped")

	rec = do(t, h, http.MethodGet, "/coins/coin-002/history?period=10y")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/coins/missing/history")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFavorites_Flow(t *testing.T) {
	h, _ := setupServer(t)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodPut, "/favorites/coin-003").Code)
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodPut, "/favorites/gone").Code)
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodPut, "/favorites/coin-001").Code)

	rec := do(t, h, http.MethodGet, "/favorites?refresh=1")
	require.Equal(t, http.StatusOK, rec.Code)
	favs := decode[struct {
		Favorites []favoriteRow `json:"favorites"`
	}](t, rec)

	// the unknown id fails to load and is left out
	require.Len(t, favs.Favorites, 2)
	assert.Equal(t, "coin-003", favs.Favorites[0].UUID)
	assert.Equal(t, "C003", favs.Favorites[0].Symbol)
	assert.Equal(t, "coin-001", favs.Favorites[1].UUID)

	do(t, h, http.MethodPost, "/coins/next")
	list := decode[coinsResponse](t, do(t, h, http.MethodGet, "/coins?q=coin%20003"))
	require.Len(t, list.Coins, 1)
	assert.True(t, list.Coins[0].Favorite)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/favorites/coin-003").Code)
	favs = decode[struct {
		Favorites []favoriteRow `json:"favorites"`
	}](t, do(t, h, http.MethodGet, "/favorites?refresh=1"))
	require.Len(t, favs.Favorites, 1)
	assert.Equal(t, "coin-001", favs.Favorites[0].UUID)
}

func TestFavorites_CancelledRefreshServesLastResult(t *testing.T) {
	h, _ := setupServer(t)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodPut, "/favorites/coin-002").Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/favorites?refresh=1").Code)
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodPut, "/favorites/coin-001").Code)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/favorites?refresh=1", nil).WithContext(ctx))

	require.Equal(t, http.StatusOK, rec.Code)
	favs := decode[struct {
		Favorites []favoriteRow `json:"favorites"`
	}](t, rec)
	require.Len(t, favs.Favorites, 1)
	assert.Equal(t, "coin-002", favs.Favorites[0].UUID)
}
