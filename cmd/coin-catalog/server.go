package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Sternrassler/coin-catalog/pkg/aggregator"
	"github.com/Sternrassler/coin-catalog/pkg/catalog"
	"github.com/Sternrassler/coin-catalog/pkg/client"
	"github.com/Sternrassler/coin-catalog/pkg/coin"
	"github.com/Sternrassler/coin-catalog/pkg/favorites"
	"github.com/Sternrassler/coin-catalog/pkg/logging"
	"github.com/Sternrassler/coin-catalog/pkg/metrics"
	"github.com/rs/zerolog"
)

// historyFetcher is the part of the gateway the history endpoint needs.
type historyFetcher interface {
	CoinHistory(ctx context.Context, id string, period coin.Period) ([]coin.HistoryPoint, error)
}

type server struct {
	history    historyFetcher
	catalog    *catalog.Service
	favorites  *favorites.Store
	aggregator *aggregator.Aggregator
	logger     zerolog.Logger
}

type coinRow struct {
	UUID     string `json:"uuid"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Change   string `json:"change"`
	Favorite bool   `json:"favorite"`
}

type favoriteRow struct {
	UUID    string  `json:"uuid"`
	Symbol  string  `json:"symbol"`
	Name    string  `json:"name"`
	Price   string  `json:"price"`
	Change  string  `json:"change"`
	IconURL *string `json:"iconUrl,omitempty"`
}

type pagingJSON struct {
	Offset   int  `json:"offset"`
	PageSize int  `json:"pageSize"`
	Loaded   int  `json:"loaded"`
	InFlight bool `json:"inFlight"`
	Terminal bool `json:"terminal"`
}

func newServer(history historyFetcher, cat *catalog.Service, favs *favorites.Store, agg *aggregator.Aggregator) http.Handler {
	s := &server{
		history:    history,
		catalog:    cat,
		favorites:  favs,
		aggregator: agg,
		logger:     logging.NewLogger("server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /coins", s.listCoins)
	mux.HandleFunc("POST /coins/next", s.loadNextPage)
	mux.HandleFunc("POST /coins/reset", s.reset)
	mux.HandleFunc("GET /coins/{id}/history", s.coinHistory)
	mux.HandleFunc("GET /favorites", s.listFavorites)
	mux.HandleFunc("PUT /favorites/{id}", s.addFavorite)
	mux.HandleFunc("DELETE /favorites/{id}", s.removeFavorite)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// listCoins returns the loaded coins, optionally re-sorted and filtered.
func (s *server) listCoins(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("sort"); name != "" {
		by, err := catalog.ParseSort(name)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if err := s.catalog.SetSort(by); err != nil {
			s.writeError(w, err)
			return
		}
	}

	coins := s.catalog.Filter(r.URL.Query().Get("q"))
	rows := make([]coinRow, 0, len(coins))
	for _, c := range coins {
		fav, err := s.favorites.IsFavorite(r.Context(), c.UUID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		rows = append(rows, coinRow{
			UUID:     c.UUID,
			Symbol:   c.Symbol,
			Name:     c.Name,
			Price:    coin.FormatPrice(c.Price),
			Change:   coin.FormatChange(c.Change),
			Favorite: fav,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"coins":  rows,
		"sort":   s.catalog.Sort().String(),
		"paging": paging(s.catalog.State()),
	})
}

func (s *server) loadNextPage(w http.ResponseWriter, r *http.Request) {
	added, err := s.catalog.LoadNextPage(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"added":  added,
		"paging": paging(s.catalog.State()),
	})
}

func (s *server) reset(w http.ResponseWriter, r *http.Request) {
	s.catalog.Reset()
	writeJSON(w, http.StatusOK, map[string]any{"paging": paging(s.catalog.State())})
}

func (s *server) coinHistory(w http.ResponseWriter, r *http.Request) {
	period := coin.Period(r.URL.Query().Get("period"))
	points, err := s.history.CoinHistory(r.Context(), r.PathValue("id"), period)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"points": points,
		"series": coin.ChartSeries(points),
	})
}

func (s *server) listFavorites(w http.ResponseWriter, r *http.Request) {
	views := s.aggregator.Views()
	if r.URL.Query().Get("refresh") == "1" {
		var err error
		views, err = s.aggregator.Refresh(r.Context())
		if errors.Is(err, aggregator.ErrSuperseded) || errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded) {
			// the refresh was dropped, serve the last accepted result
			views, err = s.aggregator.Views(), nil
		}
		if err != nil {
			s.writeError(w, err)
			return
		}
	}

	rows := make([]favoriteRow, 0, len(views))
	for _, v := range views {
		rows = append(rows, favoriteRow{
			UUID:    v.UUID,
			Symbol:  v.Symbol,
			Name:    v.Name,
			Price:   coin.FormatPrice(v.Price),
			Change:  coin.FormatChange(v.Change),
			IconURL: v.IconURL,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"favorites": rows})
}

func (s *server) addFavorite(w http.ResponseWriter, r *http.Request) {
	if err := s.favorites.Add(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) removeFavorite(w http.ResponseWriter, r *http.Request) {
	if err := s.favorites.Remove(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps domain errors to HTTP status codes.
func (s *server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, catalog.ErrUnknownSort), errors.Is(err, favorites.ErrEmptyID), errors.Is(err, client.ErrRequest):
		status = http.StatusBadRequest
	case errors.Is(err, client.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, client.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, favorites.ErrPersist):
		status = http.StatusInternalServerError
	}

	s.logger.Warn().Err(err).Int("status_code", status).Str("error_class", string(client.ClassOf(err))).Msg("Request failed")
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func paging(st catalog.PagingState) pagingJSON {
	return pagingJSON{
		Offset:   st.Offset,
		PageSize: st.PageSize,
		Loaded:   st.Loaded,
		InFlight: st.InFlight,
		Terminal: st.Terminal,
	}
}
