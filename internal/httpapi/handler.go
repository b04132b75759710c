package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"barberq/internal/models"
	"barberq/internal/queue"
	"barberq/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// QueueService is the slice of the scheduler the HTTP layer needs.
type QueueService interface {
	Enqueue(ctx context.Context, input queue.EnqueueInput) (models.QueueEntry, error)
	CallNext(ctx context.Context, tenantID, barberID string) (models.QueueEntry, bool, error)
	Start(ctx context.Context, tenantID, entryID string) (models.QueueEntry, error)
	Finish(ctx context.Context, tenantID, entryID string) (models.QueueEntry, bool, error)
	Cancel(ctx context.Context, tenantID, entryID string) (models.QueueEntry, error)
}

type BoardService interface {
	Board(ctx context.Context, tenantID string) (queue.Board, error)
	Ticket(ctx context.Context, tenantID, entryID string) (queue.Ticket, error)
	Stats(ctx context.Context, tenantID, barberID string) (queue.BarberStats, error)
}

// DirectoryStore covers barber administration and the event feed.
type DirectoryStore interface {
	GetBarber(ctx context.Context, tenantID, barberID string) (models.Barber, error)
	ListBarbers(ctx context.Context, tenantID string, activeOnly bool) ([]models.Barber, error)
	CreateBarber(ctx context.Context, barber models.Barber) (models.Barber, error)
	UpdateBarber(ctx context.Context, barber models.Barber) (models.Barber, error)
	UpdateBarberStatus(ctx context.Context, tenantID, barberID, status string) error
	ListOutboxEvents(ctx context.Context, tenantID string, after time.Time, limit int) ([]store.OutboxEvent, error)
}

type Handler struct {
	queue    QueueService
	boards   BoardService
	dir      DirectoryStore
	validate *validator.Validate
}

func NewHandler(q QueueService, boards BoardService, dir DirectoryStore) *Handler {
	return &Handler{
		queue:    q,
		boards:   boards,
		dir:      dir,
		validate: validator.New(),
	}
}

type enqueueRequest struct {
	TenantID   string `json:"tenant_id" validate:"required,uuid"`
	BarberID   string `json:"barber_id" validate:"omitempty,uuid"`
	ClientID   string `json:"client_id" validate:"omitempty,uuid"`
	ClientName string `json:"client_name" validate:"required,min=1,max=120"`
	Phone      string `json:"phone" validate:"omitempty,min=8,max=20"`
	IsPriority bool   `json:"is_priority"`
}

type callNextRequest struct {
	TenantID string `json:"tenant_id" validate:"required,uuid"`
	BarberID string `json:"barber_id" validate:"required,uuid"`
}

type entryActionRequest struct {
	TenantID string `json:"tenant_id" validate:"required,uuid"`
}

type barberRequest struct {
	TenantID   string `json:"tenant_id" validate:"required,uuid"`
	Name       string `json:"name" validate:"required,min=1,max=120"`
	PhotoURL   string `json:"photo_url" validate:"omitempty,url"`
	Status     string `json:"status" validate:"omitempty,oneof=available busy offline"`
	AvgMinutes int    `json:"avg_time_minutes" validate:"omitempty,min=1,max=480"`
	IsActive   *bool  `json:"is_active"`
}

type finishResponse struct {
	Entry        models.QueueEntry `json:"entry"`
	SaleEligible bool              `json:"sale_eligible"`
}

type callNextResponse struct {
	Called bool               `json:"called"`
	Entry  *models.QueueEntry `json:"entry,omitempty"`
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/queue/entries", h.handleEnqueue)
	mux.HandleFunc("/api/queue/entries/", h.handleEntry)
	mux.HandleFunc("/api/queue/actions/call-next", h.handleCallNext)
	mux.HandleFunc("/api/queue/board", h.handleBoard)
	mux.HandleFunc("/api/queue/stats", h.handleStats)
	mux.HandleFunc("/api/barbers", h.handleBarbers)
	mux.HandleFunc("/api/barbers/", h.handleBarberUpdate)
	mux.HandleFunc("/api/events", h.handleEvents)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req enqueueRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.TenantID = strings.TrimSpace(req.TenantID)
	req.BarberID = strings.TrimSpace(req.BarberID)
	req.ClientID = strings.TrimSpace(req.ClientID)
	req.ClientName = strings.TrimSpace(req.ClientName)
	req.Phone = strings.TrimSpace(req.Phone)

	if req.Phone != "" {
		normalized := NormalizePhone(req.Phone)
		if normalized == "" {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "phone is not a valid number")
			return
		}
		req.Phone = normalized
	}

	if err := h.validate.Struct(req); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", validationMessage(err))
		return
	}

	entry, err := h.queue.Enqueue(r.Context(), queue.EnqueueInput{
		TenantID:    req.TenantID,
		BarberID:    req.BarberID,
		ClientID:    req.ClientID,
		ClientName:  req.ClientName,
		ClientPhone: req.Phone,
		IsPriority:  req.IsPriority,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req callNextRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.TenantID = strings.TrimSpace(req.TenantID)
	req.BarberID = strings.TrimSpace(req.BarberID)
	if err := h.validate.Struct(req); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", validationMessage(err))
		return
	}
	if !requireTenant(w, r, req.TenantID) {
		return
	}

	entry, ok, err := h.queue.CallNext(r.Context(), req.TenantID, req.BarberID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, callNextResponse{Called: false})
		return
	}
	writeJSON(w, http.StatusOK, callNextResponse{Called: true, Entry: &entry})
}

// handleEntry serves GET /api/queue/entries/{id} and
// POST /api/queue/entries/{id}/actions/{action}.
func (h *Handler) handleEntry(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/queue/entries/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleTicket(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "actions" && r.Method == http.MethodPost:
		h.handleEntryAction(w, r, parts[0], parts[2])
	case len(parts) == 1 || (len(parts) == 3 && parts[1] == "actions"):
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleTicket(w http.ResponseWriter, r *http.Request, entryID string) {
	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
	if tenantID == "" || !isValidUUID(tenantID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "tenant_id must be a UUID")
		return
	}
	if !isValidUUID(entryID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "entry_id must be a UUID")
		return
	}

	ticket, err := h.boards.Ticket(r.Context(), tenantID, entryID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleEntryAction(w http.ResponseWriter, r *http.Request, entryID, action string) {
	if !isValidUUID(entryID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "entry_id must be a UUID")
		return
	}

	var req entryActionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.TenantID = strings.TrimSpace(req.TenantID)
	if err := h.validate.Struct(req); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", validationMessage(err))
		return
	}

	switch action {
	case "start":
		if !requireTenant(w, r, req.TenantID) {
			return
		}
		entry, err := h.queue.Start(r.Context(), req.TenantID, entryID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, requestIDFromRequest(r), status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	case "finish":
		if !requireTenant(w, r, req.TenantID) {
			return
		}
		entry, saleEligible, err := h.queue.Finish(r.Context(), req.TenantID, entryID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, requestIDFromRequest(r), status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, finishResponse{Entry: entry, SaleEligible: saleEligible})
	case "cancel":
		entry, err := h.queue.Cancel(r.Context(), req.TenantID, entryID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, requestIDFromRequest(r), status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleBoard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
	if tenantID == "" || !isValidUUID(tenantID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "tenant_id must be a UUID")
		return
	}

	board, err := h.boards.Board(r.Context(), tenantID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// handleStats serves the per-barber service and wait averages over the
// recent finished window. Staff only.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
	if tenantID == "" || !isValidUUID(tenantID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "tenant_id must be a UUID")
		return
	}
	barberID := strings.TrimSpace(r.URL.Query().Get("barber_id"))
	if barberID == "" || !isValidUUID(barberID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "barber_id must be a UUID")
		return
	}
	if !requireTenant(w, r, tenantID) {
		return
	}

	stats, err := h.boards.Stats(r.Context(), tenantID, barberID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleBarbers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
		if tenantID == "" || !isValidUUID(tenantID) {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "tenant_id must be a UUID")
			return
		}
		if !requireTenant(w, r, tenantID) {
			return
		}
		activeOnly := r.URL.Query().Get("active") == "true"
		barbers, err := h.dir.ListBarbers(r.Context(), tenantID, activeOnly)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, barbers)
	case http.MethodPost:
		var req barberRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		req.TenantID = strings.TrimSpace(req.TenantID)
		req.Name = strings.TrimSpace(req.Name)
		if err := h.validate.Struct(req); err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", validationMessage(err))
			return
		}
		if !requireTenant(w, r, req.TenantID) {
			return
		}
		barber := models.Barber{
			TenantID:   req.TenantID,
			Name:       req.Name,
			PhotoURL:   req.PhotoURL,
			Status:     req.Status,
			AvgMinutes: req.AvgMinutes,
			IsActive:   true,
		}
		if req.IsActive != nil {
			barber.IsActive = *req.IsActive
		}
		created, err := h.dir.CreateBarber(r.Context(), barber)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, requestIDFromRequest(r), status, code, msg)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleBarberUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	barberID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/barbers/"), "/")
	if !isValidUUID(barberID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "barber_id must be a UUID")
		return
	}

	var req struct {
		TenantID   string  `json:"tenant_id" validate:"required,uuid"`
		Name       *string `json:"name" validate:"omitempty,min=1,max=120"`
		PhotoURL   *string `json:"photo_url"`
		Status     *string `json:"status" validate:"omitempty,oneof=available busy offline"`
		AvgMinutes *int    `json:"avg_time_minutes" validate:"omitempty,min=1,max=480"`
		IsActive   *bool   `json:"is_active"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.TenantID = strings.TrimSpace(req.TenantID)
	if err := h.validate.Struct(req); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", validationMessage(err))
		return
	}
	if !requireTenant(w, r, req.TenantID) {
		return
	}

	barber, err := h.dir.GetBarber(r.Context(), req.TenantID, barberID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}

	// A status-only patch is the common "stepping out / back in" toggle;
	// it takes the narrow write path.
	if req.Status != nil && req.Name == nil && req.PhotoURL == nil && req.AvgMinutes == nil && req.IsActive == nil {
		if err := h.dir.UpdateBarberStatus(r.Context(), req.TenantID, barberID, *req.Status); err != nil {
			status, code, msg := mapError(err)
			writeError(w, requestIDFromRequest(r), status, code, msg)
			return
		}
		barber.Status = *req.Status
		writeJSON(w, http.StatusOK, barber)
		return
	}

	if req.Name != nil {
		barber.Name = strings.TrimSpace(*req.Name)
	}
	if req.PhotoURL != nil {
		barber.PhotoURL = *req.PhotoURL
	}
	if req.Status != nil {
		barber.Status = *req.Status
	}
	if req.AvgMinutes != nil {
		barber.AvgMinutes = *req.AvgMinutes
	}
	if req.IsActive != nil {
		barber.IsActive = *req.IsActive
	}

	updated, err := h.dir.UpdateBarber(r.Context(), barber)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
	if tenantID == "" || !isValidUUID(tenantID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "tenant_id must be a UUID")
		return
	}
	if !requireTenant(w, r, tenantID) {
		return
	}

	afterRaw := strings.TrimSpace(r.URL.Query().Get("after"))
	var after time.Time
	if afterRaw != "" {
		parsed, err := time.Parse(time.RFC3339, afterRaw)
		if err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "after must be RFC3339 timestamp")
			return
		}
		after = parsed
	}

	limit := 100
	if limitRaw := strings.TrimSpace(r.URL.Query().Get("limit")); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed <= 0 {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	events, err := h.dir.ListOutboxEvents(r.Context(), tenantID, after, limit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request payload"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field()))
	}
	return "invalid fields: " + strings.Join(fields, ", ")
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrBarberNotFound):
		return http.StatusNotFound, "barber_not_found", "barber not found"
	case errors.Is(err, store.ErrBarberInactive):
		return http.StatusConflict, "barber_inactive", "barber is not accepting clients"
	case errors.Is(err, store.ErrEntryNotFound):
		return http.StatusNotFound, "entry_not_found", "queue entry not found"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "entry state does not allow this action"
	case errors.Is(err, store.ErrAlreadyAttending):
		return http.StatusConflict, "already_attending", "barber already has a client in the chair"
	case errors.Is(err, store.ErrNotWaiting):
		return http.StatusConflict, "not_waiting", "entry is not waiting"
	case errors.Is(err, store.ErrDuplicateActiveEntry):
		return http.StatusConflict, "duplicate_entry", "client already has an active queue entry"
	case errors.Is(err, store.ErrNoBarberAvailable):
		return http.StatusConflict, "no_barber_available", "no active barber can take walk-ins"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
