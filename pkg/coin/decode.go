package coin

import (
	"encoding/json"
	"errors"
	"fmt"
)

// StatusSuccess is the envelope status of a successful response.
const StatusSuccess = "success"

// ErrMalformed is returned when a payload does not have the expected shape
// or lacks a required field.
var ErrMalformed = errors.New("malformed payload")

// Failure is the envelope the API sends instead of data when a request fails,
// e.g. {"status":"fail","type":"COIN_NOT_FOUND","message":"Coin not found"}.
type Failure struct {
	Status  string `json:"status"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Message == "" {
		return fmt.Sprintf("api %s: %s", f.Status, f.Type)
	}
	return fmt.Sprintf("api %s: %s: %s", f.Status, f.Type, f.Message)
}

// Failure types the API is known to send.
const (
	FailureCoinNotFound = "COIN_NOT_FOUND"
	FailureUnauthorized = "UNAUTHORIZED"
	FailureRateLimited  = "RATE_LIMIT_EXCEEDED"
)

type envelope struct {
	Status  string          `json:"status"`
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// DecodeFailure extracts a Failure from an error response body. It returns
// nil when the body is not a failure envelope.
func DecodeFailure(body []byte) *Failure {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil
	}
	if env.Status == "" || env.Status == StatusSuccess {
		return nil
	}
	return &Failure{Status: env.Status, Type: env.Type, Message: env.Message}
}

func unwrapEnvelope(body []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: envelope: %v", ErrMalformed, err)
	}
	if env.Status != StatusSuccess {
		if env.Status == "" {
			return fmt.Errorf("%w: envelope has no status", ErrMalformed)
		}
		return &Failure{Status: env.Status, Type: env.Type, Message: env.Message}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("%w: envelope has no data", ErrMalformed)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: data: %v", ErrMalformed, err)
	}
	return nil
}

// DecodeCoinsPage decodes a /coins response.
func DecodeCoinsPage(body []byte) (*CoinsPage, error) {
	var data struct {
		Coins      *[]Summary  `json:"coins"`
		Stats      *Stats      `json:"stats"`
		Pagination *Pagination `json:"pagination"`
	}
	if err := unwrapEnvelope(body, &data); err != nil {
		return nil, err
	}
	if data.Coins == nil {
		return nil, fmt.Errorf("%w: data.coins missing", ErrMalformed)
	}
	for i := range *data.Coins {
		if err := (*data.Coins)[i].validate(); err != nil {
			return nil, fmt.Errorf("coins[%d]: %w", i, err)
		}
	}
	return &CoinsPage{
		Coins:      *data.Coins,
		Stats:      data.Stats,
		Pagination: data.Pagination,
	}, nil
}

// DecodeDetail decodes a /coin/{uuid} response.
func DecodeDetail(body []byte) (*Detail, error) {
	var data struct {
		Coin *Detail `json:"coin"`
	}
	if err := unwrapEnvelope(body, &data); err != nil {
		return nil, err
	}
	if data.Coin == nil {
		return nil, fmt.Errorf("%w: data.coin missing", ErrMalformed)
	}
	if err := data.Coin.validate(); err != nil {
		return nil, err
	}
	return data.Coin, nil
}

// DecodeHistory decodes a /coin/{uuid}/history response.
func DecodeHistory(body []byte) ([]HistoryPoint, error) {
	var data struct {
		History *[]HistoryPoint `json:"history"`
	}
	if err := unwrapEnvelope(body, &data); err != nil {
		return nil, err
	}
	if data.History == nil {
		return nil, fmt.Errorf("%w: data.history missing", ErrMalformed)
	}
	return *data.History, nil
}

func (s *Summary) validate() error {
	switch {
	case s.UUID == "":
		return fmt.Errorf("%w: coin uuid missing", ErrMalformed)
	case s.Symbol == "":
		return fmt.Errorf("%w: coin %s symbol missing", ErrMalformed, s.UUID)
	case s.Name == "":
		return fmt.Errorf("%w: coin %s name missing", ErrMalformed, s.UUID)
	}
	return nil
}

func (d *Detail) validate() error {
	switch {
	case d.UUID == "":
		return fmt.Errorf("%w: coin uuid missing", ErrMalformed)
	case d.Name == "":
		return fmt.Errorf("%w: coin %s name missing", ErrMalformed, d.UUID)
	case d.Symbol == "":
		return fmt.Errorf("%w: coin %s symbol missing", ErrMalformed, d.UUID)
	}
	return nil
}
