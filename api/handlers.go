/*
handlers.go - HTTP API handlers for the points ledger

PURPOSE:
  Exposes points.Service over REST. Handles HTTP request/response and JSON
  serialization, and delegates everything else to the points package.

ENDPOINTS:
  Ledger (the {userID} segment is optional; without it the default user
  configured at startup is used):
    GET    /points/user/{userID}               Balances: {"PAYER": points}
    POST   /points/user/{userID}               Add a transaction
    PATCH  /points/user/{userID}               Spend points
    GET    /points/user/{userID}/transactions  Raw transaction history

  Directory:
    POST   /points/users                       Create user
    GET    /points/payers                      List payers
    POST   /points/payers                      Create payer

REQUEST FLOW:
  1. Parse user id and body
  2. Validate input
  3. Call points.Service or points.Directory
  4. Serialize response
  5. Map errors through statusFor

ERROR HANDLING:
  - 400: Validation errors, malformed JSON, bad user id
  - 404: Unknown user or payer
  - 409: Duplicate payer name
  - 418: Insufficient balance for a spend
  - 500: Internal errors (details only in the log)

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go:      Request/response data structures
  - errors.go:   Status mapping
  - server.go:   Router setup and middleware
*/
package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/warp/points-engine/points"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Service   *points.Service
	Directory points.Directory

	// DefaultUserID is used when the path carries no user id.
	DefaultUserID points.UserID

	logger  *slog.Logger
	metrics *Metrics
}

// NewHandler creates a new handler. metrics may be nil.
func NewHandler(svc *points.Service, dir points.Directory, defaultUser points.UserID, logger *slog.Logger, metrics *Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Service:       svc,
		Directory:     dir,
		DefaultUserID: defaultUser,
		logger:        logger.With("component", "api"),
		metrics:       metrics,
	}
}

// userID resolves the {userID} path parameter, falling back to the default user.
func (h *Handler) userID(r *http.Request) (points.UserID, error) {
	raw := chi.URLParam(r, "userID")
	if raw == "" {
		return h.DefaultUserID, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &points.InvalidInputError{Field: "userID", Reason: "must be an integer"}
	}
	return points.UserID(id), nil
}

// =============================================================================
// LEDGER ENDPOINTS
// =============================================================================

// GetBalances returns the user's balances keyed by payer name.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	balances, err := h.Service.Balances(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

// AddTransaction records points from a payer.
func (h *Handler) AddTransaction(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req TransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		h.fail(w, r, err)
		return
	}

	summary, err := h.Service.AddTransaction(r.Context(), userID, req.Payer, *req.Points, req.Timestamp.Time)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.metrics.observeTransaction(*req.Points)
	writeJSON(w, http.StatusOK, toTransactionResponse(summary))
}

// SpendPoints deducts points across payers, oldest transactions first.
func (h *Handler) SpendPoints(w http.ResponseWriter, r *http.Request) {
	status, body := h.spend(r)
	h.metrics.observeSpend(status)
	writeJSON(w, status, body)
}

func (h *Handler) spend(r *http.Request) (int, any) {
	userID, err := h.userID(r)
	if err != nil {
		return h.errorBody(r, err)
	}

	var req SpendRequest
	if err := decodeJSON(r, &req); err != nil {
		return h.errorBody(r, err)
	}
	if err := req.validate(); err != nil {
		return h.errorBody(r, err)
	}

	deductions, err := h.Service.SpendPoints(r.Context(), userID, *req.Points)
	if err != nil {
		return h.errorBody(r, err)
	}
	return http.StatusOK, toDeductionDTOs(deductions)
}

// GetTransactions returns the user's transactions in insertion order.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	history, err := h.Service.History(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(history))
}

// =============================================================================
// DIRECTORY ENDPOINTS
// =============================================================================

// CreateUser registers a user and returns its id.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := validateName(req.Name); err != nil {
		h.fail(w, r, err)
		return
	}

	user, err := h.Directory.CreateUser(r.Context(), req.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, UserDTO{ID: int64(user.ID), Name: user.Name})
}

// ListPayers returns all payers ordered by name.
func (h *Handler) ListPayers(w http.ResponseWriter, r *http.Request) {
	payers, err := h.Directory.ListPayers(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayerDTOs(payers))
}

// CreatePayer registers a payer name. Names are unique ignoring case.
func (h *Handler) CreatePayer(w http.ResponseWriter, r *http.Request) {
	var req CreatePayerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := validateName(req.Name); err != nil {
		h.fail(w, r, err)
		return
	}

	payer, err := h.Directory.CreatePayer(r.Context(), req.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, PayerDTO{ID: int64(payer.ID), Name: payer.Name})
}

// Healthz reports liveness.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
