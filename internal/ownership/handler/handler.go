package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"rightsledger/internal/ownership/conflict"
	"rightsledger/internal/ownership/models"
	"rightsledger/internal/platform/metrics"
	"rightsledger/internal/platform/middleware"
	"rightsledger/internal/transport/http/shared"
	dErrors "rightsledger/pkg/domain-errors"
)

const maxConflictLimit = 500

//go:generate mockgen -source=handler.go -destination=mocks/ownership-mocks.go -package=mocks Service,Detector

// Service is the coordinator surface the HTTP layer drives.
type Service interface {
	CreateOwnershipRecord(ctx context.Context, cmd models.CreateRecordCommand) (*models.OwnershipRecord, error)
	UpdateOwnershipRecord(ctx context.Context, id string, cmd models.UpdateRecordCommand) (*models.OwnershipRecord, error)
	ActivateRecord(ctx context.Context, id string) (*models.OwnershipRecord, error)
	GetRecord(ctx context.Context, id string) (*models.OwnershipRecord, error)
	QueryOwnership(ctx context.Context, subject models.Subject, category models.RightsCategory) (*models.OwnershipView, error)
	ProposeTransfer(ctx context.Context, cmd models.ProposeTransferCommand) (*models.OwnershipTransfer, error)
	ExecuteTransfer(ctx context.Context, id string) (*models.OwnershipTransfer, error)
	CancelTransfer(ctx context.Context, id string) (*models.OwnershipTransfer, error)
	DisputeTransfer(ctx context.Context, id, reason string) (*models.OwnershipTransfer, error)
	GetTransfer(ctx context.Context, id string) (*models.OwnershipTransfer, error)
	ListTransfers(ctx context.Context, subject models.Subject, category models.RightsCategory) ([]*models.OwnershipTransfer, error)
	ListConflicts(ctx context.Context, filter models.ConflictFilter) ([]*models.OwnershipConflict, error)
}

// Detector runs conflict detection on demand.
type Detector interface {
	DetectSubject(ctx context.Context, subject models.Subject, category models.RightsCategory) (conflict.Report, error)
}

// Handler exposes the ledger over HTTP.
type Handler struct {
	logger       *slog.Logger
	service      Service
	detector     Detector
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
	timeout      time.Duration
}

// New creates a new ownership Handler.
func New(
	service Service,
	detector Detector,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	jwtValidator middleware.JWTValidator,
	timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Handler{
		logger:       logger,
		service:      service,
		detector:     detector,
		metrics:      metrics,
		jwtValidator: jwtValidator,
		timeout:      timeout,
	}
}

// Register registers the ledger routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(middleware.Recovery(h.logger))
		v1.Use(middleware.RequestID)
		v1.Use(middleware.RequestTime)
		v1.Use(middleware.Logger(h.logger))
		v1.Use(middleware.Timeout(h.timeout))
		v1.Use(middleware.ContentTypeJSON)
		v1.Use(middleware.LatencyMiddleware(h.metrics))
		v1.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

		v1.Post("/records", h.handleCreateRecord)
		v1.Get("/records/{id}", h.handleGetRecord)
		v1.Patch("/records/{id}", h.handleUpdateRecord)
		v1.Post("/records/{id}/activate", h.handleActivateRecord)

		v1.Get("/subjects/{subjectType}/{subjectID}/ownership", h.handleQueryOwnership)
		v1.Get("/subjects/{subjectType}/{subjectID}/transfers", h.handleListTransfers)
		v1.Post("/subjects/{subjectType}/{subjectID}/detect", h.handleDetect)

		v1.Post("/transfers", h.handleProposeTransfer)
		v1.Get("/transfers/{id}", h.handleGetTransfer)
		v1.Post("/transfers/{id}/execute", h.handleExecuteTransfer)
		v1.Post("/transfers/{id}/cancel", h.handleCancelTransfer)
		v1.Post("/transfers/{id}/dispute", h.handleDisputeTransfer)

		v1.Get("/conflicts", h.handleListConflicts)
	})
}

func (h *Handler) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var req CreateRecordRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.service.CreateOwnershipRecord(r.Context(), req.toCommand())
	if err != nil {
		h.fail(w, r, "create ownership record", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.GetRecord(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "get ownership record", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	var req UpdateRecordRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.service.UpdateOwnershipRecord(r.Context(), chi.URLParam(r, "id"), req.toCommand())
	if err != nil {
		h.fail(w, r, "update ownership record", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleActivateRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.ActivateRecord(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "activate ownership record", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleQueryOwnership(w http.ResponseWriter, r *http.Request) {
	subject, category, ok := h.subjectParams(w, r)
	if !ok {
		return
	}
	view, err := h.service.QueryOwnership(r.Context(), subject, category)
	if err != nil {
		h.fail(w, r, "query ownership", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	subject, category, ok := h.subjectParams(w, r)
	if !ok {
		return
	}
	transfers, err := h.service.ListTransfers(r.Context(), subject, category)
	if err != nil {
		h.fail(w, r, "list transfers", err)
		return
	}
	if transfers == nil {
		transfers = []*models.OwnershipTransfer{}
	}
	shared.WriteJSON(w, http.StatusOK, TransferListResponse{Transfers: transfers})
}

func (h *Handler) handleDetect(w http.ResponseWriter, r *http.Request) {
	subject, category, ok := h.subjectParams(w, r)
	if !ok {
		return
	}
	report, err := h.detector.DetectSubject(r.Context(), subject, category)
	if err != nil {
		h.fail(w, r, "detect conflicts", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, DetectResponse{Subject: subject, Report: report})
}

func (h *Handler) handleProposeTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		h.logger.ErrorContext(ctx, "userID missing from context despite auth middleware",
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	var req ProposeTransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	tr, err := h.service.ProposeTransfer(ctx, req.toCommand(userID))
	if err != nil {
		h.fail(w, r, "propose transfer", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, tr)
}

func (h *Handler) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	tr, err := h.service.GetTransfer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "get transfer", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, tr)
}

func (h *Handler) handleExecuteTransfer(w http.ResponseWriter, r *http.Request) {
	tr, err := h.service.ExecuteTransfer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "execute transfer", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, tr)
}

func (h *Handler) handleCancelTransfer(w http.ResponseWriter, r *http.Request) {
	tr, err := h.service.CancelTransfer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "cancel transfer", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, tr)
}

func (h *Handler) handleDisputeTransfer(w http.ResponseWriter, r *http.Request) {
	var req DisputeTransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	tr, err := h.service.DisputeTransfer(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.fail(w, r, "dispute transfer", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, tr)
}

func (h *Handler) handleListConflicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.ConflictFilter{
		RightsCategory: models.RightsCategory(q.Get("category")),
		Type:           models.ConflictType(q.Get("type")),
		Status:         models.ConflictStatus(q.Get("status")),
	}
	if subjectID := q.Get("subject_id"); subjectID != "" {
		filter.Subject = &models.Subject{Type: models.SubjectType(q.Get("subject_type")), ID: subjectID}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > maxConflictLimit {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be between 1 and "+strconv.Itoa(maxConflictLimit)))
			return
		}
		filter.Limit = limit
	}
	conflicts, err := h.service.ListConflicts(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list conflicts", err)
		return
	}
	if conflicts == nil {
		conflicts = []*models.OwnershipConflict{}
	}
	shared.WriteJSON(w, http.StatusOK, ConflictListResponse{Conflicts: conflicts})
}

func (h *Handler) subjectParams(w http.ResponseWriter, r *http.Request) (models.Subject, models.RightsCategory, bool) {
	subject := models.Subject{
		Type: models.SubjectType(chi.URLParam(r, "subjectType")),
		ID:   chi.URLParam(r, "subjectID"),
	}
	if !subject.IsValid() {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "subject must be a track or album with an id"))
		return models.Subject{}, "", false
	}
	raw := r.URL.Query().Get("category")
	if raw == "" {
		return subject, "", true
	}
	category, ok := models.ParseRightsCategory(raw)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unknown rights category: "+raw))
		return models.Subject{}, "", false
	}
	return subject, category, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.WarnContext(r.Context(), "invalid request body",
			"path", r.URL.Path,
			"error", err.Error(),
			"request_id", middleware.GetRequestID(r.Context()),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

// fail logs at a level matching the error class and writes the envelope.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "failed to "+op,
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
	} else {
		h.logger.WarnContext(ctx, op+" rejected",
			"code", code,
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
	}
	shared.WriteError(w, err)
}
