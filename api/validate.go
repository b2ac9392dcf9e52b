package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/warp/points-engine/points"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a single JSON object from the request body. Malformed or
// empty bodies are reported as invalid input.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &points.InvalidInputError{Field: "body", Reason: "must not be empty"}
		}
		return &points.InvalidInputError{Field: "body", Reason: err.Error()}
	}
	return nil
}

func (req TransactionRequest) validate() error {
	if strings.TrimSpace(req.Payer) == "" {
		return &points.InvalidInputError{Field: "payer", Reason: "must not be blank"}
	}
	if req.Points == nil {
		return &points.InvalidInputError{Field: "points", Reason: "is required"}
	}
	if req.Timestamp == nil {
		return &points.InvalidInputError{Field: "timestamp", Reason: "is required"}
	}
	return nil
}

func (req SpendRequest) validate() error {
	if req.Points == nil {
		return &points.InvalidInputError{Field: "points", Reason: "is required"}
	}
	if *req.Points < 0 {
		return &points.InvalidInputError{Field: "points", Reason: "must not be negative"}
	}
	return nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &points.InvalidInputError{Field: "name", Reason: "must not be blank"}
	}
	return nil
}
