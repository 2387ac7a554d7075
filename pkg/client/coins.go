package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Sternrassler/coin-catalog/pkg/coin"
)

// ListCoins fetches one page of the coin listing.
func (c *Client) ListCoins(ctx context.Context, limit, offset int) (*coin.CoinsPage, error) {
	const op = "list coins"
	if limit <= 0 || offset < 0 {
		return nil, &APIError{Op: op, Class: ErrorClassClient, Message: fmt.Sprintf("invalid paging limit=%d offset=%d", limit, offset)}
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	body, status, err := c.getBody(ctx, op, "coins", query)
	if err != nil {
		return nil, err
	}

	page, err := coin.DecodeCoinsPage(body)
	if err != nil {
		return nil, decodeError(op, status, err)
	}

	c.logger.Debug().
		Int("limit", limit).
		Int("offset", offset).
		Int("count", len(page.Coins)).
		Msg("Listed coins")

	return page, nil
}

// CoinDetail fetches the full record of one coin.
func (c *Client) CoinDetail(ctx context.Context, id string) (*coin.Detail, error) {
	const op = "coin detail"
	if id == "" {
		return nil, &APIError{Op: op, Class: ErrorClassClient, Message: "coin id is empty"}
	}

	body, status, err := c.getBody(ctx, op, "coin/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	detail, err := coin.DecodeDetail(body)
	if err != nil {
		return nil, decodeError(op, status, err)
	}
	return detail, nil
}

// CoinHistory fetches the price history of one coin. An empty period means
// coin.DefaultPeriod.
func (c *Client) CoinHistory(ctx context.Context, id string, period coin.Period) ([]coin.HistoryPoint, error) {
	const op = "coin history"
	if id == "" {
		return nil, &APIError{Op: op, Class: ErrorClassClient, Message: "coin id is empty"}
	}
	if period == "" {
		period = coin.DefaultPeriod
	}
	if !period.Valid() {
		return nil, &APIError{Op: op, Class: ErrorClassClient, Message: fmt.Sprintf("unsupported time period %q", period)}
	}

	query := url.Values{}
	query.Set("timePeriod", string(period))

	body, status, err := c.getBody(ctx, op, "coin/"+url.PathEscape(id)+"/history", query)
	if err != nil {
		return nil, err
	}

	history, err := coin.DecodeHistory(body)
	if err != nil {
		return nil, decodeError(op, status, err)
	}
	return history, nil
}

// decodeError classifies a payload failure. A failure envelope in a 2xx body
// keeps its API meaning; anything else is a decode error.
func decodeError(op string, status int, err error) error {
	class := ErrorClassDecode
	message := ""

	var failure *coin.Failure
	if errors.As(err, &failure) {
		class = classifyFailure("", failure)
		message = failure.Message
	}

	coinAPIErrorsTotal.WithLabelValues(string(class)).Inc()
	return &APIError{Op: op, StatusCode: status, Class: class, Message: message, Err: err}
}
