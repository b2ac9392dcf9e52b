/*
dto.go - Data Transfer Objects for the HTTP API

PURPOSE:
  Defines the JSON shapes of requests and responses. These types decouple
  the wire format from the points package; nothing here leaks into the core.

FIELD NAMING:
  camelCase, matching the existing clients of the points API
  (transactionPoints, totalPoints).

NULLABILITY:
  Request fields that must be present are pointers so a missing field can
  be told apart from a zero value.

SEE ALSO:
  - handlers.go: Uses these DTOs
  - validate.go: Request validation
*/
package api

import (
	"fmt"
	"strconv"
	"time"

	"github.com/warp/points-engine/points"
)

// =============================================================================
// REQUEST DTOs
// =============================================================================

// TransactionRequest adds points for a payer to a user.
type TransactionRequest struct {
	Payer     string     `json:"payer"`
	Points    *int64     `json:"points"`
	Timestamp *Timestamp `json:"timestamp"`
}

// Timestamp accepts either an RFC3339 string or epoch milliseconds, the
// two forms existing clients send.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return t.Time.UnmarshalJSON(data)
	}
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp must be an RFC3339 string or epoch milliseconds: %s", data)
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

// SpendRequest spends points across a user's payers.
type SpendRequest struct {
	Points *int64 `json:"points"`
}

// CreatePayerRequest registers a payer name.
type CreatePayerRequest struct {
	Name string `json:"name"`
}

// CreateUserRequest registers a user.
type CreateUserRequest struct {
	Name string `json:"name"`
}

// =============================================================================
// RESPONSE DTOs
// =============================================================================

// TransactionResponse reports the recorded transaction and the payer's new total.
type TransactionResponse struct {
	Payer             string    `json:"payer"`
	TransactionPoints int64     `json:"transactionPoints"`
	TotalPoints       int64     `json:"totalPoints"`
	Timestamp         time.Time `json:"timestamp"`
}

// DeductionDTO is one payer's share of a spend. Points is negative.
type DeductionDTO struct {
	Payer  string `json:"payer"`
	Points int64  `json:"points"`
}

// TransactionDTO is a raw history entry.
type TransactionDTO struct {
	ID        int64     `json:"id"`
	Payer     string    `json:"payer"`
	Points    int64     `json:"points"`
	Timestamp time.Time `json:"timestamp"`
}

type PayerDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type UserDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toTransactionResponse(s points.TransactionSummary) TransactionResponse {
	return TransactionResponse{
		Payer:             s.Payer,
		TransactionPoints: s.TransactionPoints,
		TotalPoints:       s.TotalPoints,
		Timestamp:         s.Timestamp,
	}
}

func toDeductionDTOs(ds []points.Deduction) []DeductionDTO {
	out := make([]DeductionDTO, 0, len(ds))
	for _, d := range ds {
		out = append(out, DeductionDTO{Payer: d.Payer, Points: d.Points})
	}
	return out
}

func toTransactionDTOs(entries []points.HistoryEntry) []TransactionDTO {
	out := make([]TransactionDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, TransactionDTO{
			ID:        int64(e.ID),
			Payer:     e.Payer,
			Points:    e.Points,
			Timestamp: e.Timestamp,
		})
	}
	return out
}

func toPayerDTOs(ps []points.Payer) []PayerDTO {
	out := make([]PayerDTO, 0, len(ps))
	for _, p := range ps {
		out = append(out, PayerDTO{ID: int64(p.ID), Name: p.Name})
	}
	return out
}
