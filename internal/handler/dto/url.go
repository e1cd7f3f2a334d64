// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shortclick/shortclick/internal/model"
	"github.com/shortclick/shortclick/internal/validation"
)

// FlexString accepts a JSON string, number or null. Form clients send
// validity as text; programmatic clients send a number.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("expected string or number: %w", err)
		}
		// Integral floats such as 60.0 are accepted; fractions are left for
		// validation to reject.
		if i, err := n.Int64(); err == nil {
			*f = FlexString(strconv.FormatInt(i, 10))
			return nil
		}
		*f = FlexString(n.String())
		return nil
	}
}

// CreateURLItem is one entry of a batch creation request.
type CreateURLItem struct {
	OriginalURL     string     `json:"original_url"`
	CustomShortCode string     `json:"custom_short_code,omitempty"`
	ValidityMinutes FlexString `json:"validity_minutes,omitempty"`
}

// CreateURLsRequest represents the request body for batch creation.
type CreateURLsRequest struct {
	URLs []CreateURLItem `json:"urls"`
}

// ToCreationRequests converts the body to service input.
func (r CreateURLsRequest) ToCreationRequests() []model.CreationRequest {
	out := make([]model.CreationRequest, len(r.URLs))
	for i, item := range r.URLs {
		out[i] = model.CreationRequest{
			OriginalURL:        item.OriginalURL,
			CustomShortCode:    item.CustomShortCode,
			ValidityMinutesRaw: string(item.ValidityMinutes),
		}
	}
	return out
}

// ClickResponse represents a recorded click.
type ClickResponse struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Country   string    `json:"country"`
	City      string    `json:"city"`
	Referrer  string    `json:"referrer,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// URLResponse represents a shortened URL in API responses.
type URLResponse struct {
	ID              string          `json:"id"`
	ShortCode       string          `json:"short_code"`
	ShortURL        string          `json:"short_url"`
	OriginalURL     string          `json:"original_url"`
	ValidityMinutes int             `json:"validity_minutes"`
	CreatedAt       time.Time       `json:"created_at"`
	ExpiresAt       time.Time       `json:"expires_at"`
	Status          string          `json:"status"`
	TimeRemaining   string          `json:"time_remaining"`
	ClickCount      int             `json:"click_count"`
	Clicks          []ClickResponse `json:"clicks,omitempty"`
}

// URLListResponse represents every stored URL.
type URLListResponse struct {
	Data  []URLResponse `json:"data"`
	Count int           `json:"count"`
}

// FieldErrorResponse describes one problem with one submitted item.
type FieldErrorResponse struct {
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OutcomeResponse is the result for one submitted item.
type OutcomeResponse struct {
	Index  int                  `json:"index"`
	Status string               `json:"status"`
	URL    *URLResponse         `json:"url,omitempty"`
	Errors []FieldErrorResponse `json:"errors,omitempty"`
}

// CreateURLsResponse is the batch result, in submission order.
type CreateURLsResponse struct {
	Results  []OutcomeResponse `json:"results"`
	Accepted int               `json:"accepted"`
	Rejected int               `json:"rejected"`
}

// SweepResponse reports the state after an expiry sweep.
type SweepResponse struct {
	Remaining int `json:"remaining"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Outcome statuses.
const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// ErrorMapper turns a non-field error into a code and message.
type ErrorMapper func(err error) (code, message string)

// ToURLResponse converts a record to its API shape. withClicks controls
// whether the click log is included.
func ToURLResponse(record *model.URLRecord, baseURL string, now time.Time, remaining func(time.Time, time.Time) string, withClicks bool) URLResponse {
	resp := URLResponse{
		ID:              record.ID,
		ShortCode:       record.ShortCode,
		ShortURL:        model.ShortURL(baseURL, record.ShortCode),
		OriginalURL:     record.OriginalURL,
		ValidityMinutes: record.ValidityMinutes,
		CreatedAt:       record.CreatedAt,
		ExpiresAt:       record.ExpiresAt,
		Status:          string(record.StatusAt(now)),
		TimeRemaining:   remaining(record.ExpiresAt, now),
		ClickCount:      record.ClickCount,
	}
	if withClicks {
		resp.Clicks = make([]ClickResponse, len(record.Clicks))
		for i, c := range record.Clicks {
			resp.Clicks[i] = ClickResponse{
				ID:        c.ID,
				Timestamp: c.Timestamp,
				Source:    c.Source,
				Country:   c.Country,
				City:      c.City,
				Referrer:  c.Referrer,
				UserAgent: c.UserAgent,
			}
		}
	}
	return resp
}

// ToCreateURLsResponse converts batch outcomes to the API shape.
func ToCreateURLsResponse(outcomes []model.Outcome, toURL func(*model.URLRecord) URLResponse, mapErr ErrorMapper) CreateURLsResponse {
	resp := CreateURLsResponse{Results: make([]OutcomeResponse, len(outcomes))}
	for i, o := range outcomes {
		item := OutcomeResponse{Index: o.Index}
		if o.Accepted {
			u := toURL(o.Record)
			item.Status = StatusAccepted
			item.URL = &u
			resp.Accepted++
		} else {
			item.Status = StatusRejected
			item.Errors = make([]FieldErrorResponse, len(o.Errors))
			for j, err := range o.Errors {
				item.Errors[j] = toFieldErrorResponse(err, mapErr)
			}
			resp.Rejected++
		}
		resp.Results[i] = item
	}
	return resp
}

func toFieldErrorResponse(err error, mapErr ErrorMapper) FieldErrorResponse {
	var fe *validation.FieldError
	if errors.As(err, &fe) {
		return FieldErrorResponse{Field: fe.Field, Code: fe.Code, Message: fe.Message}
	}
	code, message := mapErr(err)
	return FieldErrorResponse{Code: code, Message: message}
}
