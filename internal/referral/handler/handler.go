// Package handler exposes the referral lifecycle over HTTP. Handlers stay
// thin: decode, delegate to the service, translate errors.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"referralintake/internal/platform/middleware"
	providerModels "referralintake/internal/provider/models"
	"referralintake/internal/referral/models"
	"referralintake/internal/referral/service"
	"referralintake/internal/transport/http/shared"
	dErrors "referralintake/pkg/domain-errors"
)

// Service defines the lifecycle operations the HTTP layer needs.
type Service interface {
	Create(ctx context.Context, req service.NewReferralRequest) (*models.Referral, error)
	Get(ctx context.Context, referralID uuid.UUID) (*models.Referral, error)
	SelectProvider(ctx context.Context, referralID, providerID uuid.UUID) (*models.Referral, error)
	Transition(ctx context.Context, referralID uuid.UUID, to models.ReferralStatus) (*models.Referral, error)
	SetTriage(ctx context.Context, referralID uuid.UUID, completion, weighted models.TriageLevel) (*models.Referral, error)
	CheckNhsNumberReuse(ctx context.Context, nhsNumber string) (models.ReuseDecision, error)
	CheckEmailReuse(ctx context.Context, email string) (models.ReuseDecision, error)
	CandidateProviders(ctx context.Context, referralID uuid.UUID) ([]*providerModels.Provider, error)
}

// channelSources maps the intake path segment onto the stored source.
var channelSources = map[string]models.ReferralSource{
	"self":          models.SourceSelfReferral,
	"general":       models.SourceGeneralReferral,
	"pharmacy":      models.SourcePharmacy,
	"msk":           models.SourceMsk,
	"staff":         models.SourceStaffReferral,
	"gp":            models.SourceGpReferral,
	"elective-care": models.SourceElectiveCare,
}

// Handler handles referral endpoints.
type Handler struct {
	logger    *slog.Logger
	referrals Service
	validator middleware.StaffTokenValidator
}

// New creates a new referral Handler.
func New(referrals Service, logger *slog.Logger, validator middleware.StaffTokenValidator) *Handler {
	return &Handler{
		logger:    logger,
		referrals: referrals,
		validator: validator,
	}
}

// Register registers the referral routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.ContentTypeJSON)

	// The staff channel is the only gated intake; control of the claimed
	// email must have been proven through an access key.
	router.Group(func(gr chi.Router) {
		gr.Use(middleware.RequireVerifiedEmail(h.validator, h.logger))
		gr.Post("/staff", h.handleCreateStaff)
	})

	router.Get("/reuse", h.handleCheckReuse)
	router.Post("/{channel}", h.handleCreate)
	router.Get("/{id}", h.handleGet)
	router.Get("/{id}/providers", h.handleCandidateProviders)
	router.Post("/{id}/provider", h.handleSelectProvider)
	router.Post("/{id}/status", h.handleTransition)
	router.Post("/{id}/triage", h.handleSetTriage)

	r.Mount("/referrals", router)
}

type createRequest struct {
	NhsNumber string `json:"nhs_number"`
	Email     string `json:"email"`
	Ubrn      string `json:"ubrn,omitempty"`
}

type referralResponse struct {
	ID                      uuid.UUID  `json:"id"`
	Ubrn                    string     `json:"ubrn,omitempty"`
	NhsNumber               string     `json:"nhs_number"`
	Email                   string     `json:"email"`
	Source                  string     `json:"source"`
	Status                  string     `json:"status"`
	TriagedCompletionLevel  string     `json:"triaged_completion_level,omitempty"`
	TriagedWeightedLevel    string     `json:"triaged_weighted_level,omitempty"`
	ProviderID              *uuid.UUID `json:"provider_id,omitempty"`
	DateOfProviderSelection *time.Time `json:"date_of_provider_selection,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	ModifiedAt              time.Time  `json:"modified_at"`
}

func toResponse(r *models.Referral) referralResponse {
	return referralResponse{
		ID:                      r.ID,
		Ubrn:                    r.Ubrn,
		NhsNumber:               r.NhsNumber,
		Email:                   r.Email,
		Source:                  r.Source.String(),
		Status:                  r.Status.String(),
		TriagedCompletionLevel:  r.TriagedCompletionLevel.String(),
		TriagedWeightedLevel:    r.TriagedWeightedLevel.String(),
		ProviderID:              r.ProviderID,
		DateOfProviderSelection: r.DateOfProviderSelection,
		CreatedAt:               r.CreatedAt,
		ModifiedAt:              r.ModifiedAt,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	source, ok := channelSources[channel]
	if !ok {
		shared.WriteError(w, dErrors.Newf(dErrors.CodeBadRequest, "unknown intake channel %q", channel))
		return
	}
	if source == models.SourceStaffReferral {
		// Only reachable by sidestepping the gated route group.
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "staff referrals require a verified email token"))
		return
	}
	h.create(w, r, source, "")
}

// handleCreateStaff serves the gated staff channel: the email comes from the
// verified token, never from the request body.
func (h *Handler) handleCreateStaff(w http.ResponseWriter, r *http.Request) {
	email := middleware.GetVerifiedEmail(r.Context())
	h.create(w, r, models.SourceStaffReferral, email)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, source models.ReferralSource, verifiedEmail string) {
	ctx := r.Context()

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	email := req.Email
	if verifiedEmail != "" {
		email = verifiedEmail
	}

	referral, err := h.referrals.Create(ctx, service.NewReferralRequest{
		Source:    source,
		NhsNumber: req.NhsNumber,
		Email:     email,
		Ubrn:      req.Ubrn,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "referral create rejected",
			"source", source,
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toResponse(referral))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid referral id"))
		return
	}
	referral, err := h.referrals.Get(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(referral))
}

type selectProviderRequest struct {
	ProviderID uuid.UUID `json:"provider_id"`
}

func (h *Handler) handleSelectProvider(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid referral id"))
		return
	}
	var req selectProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProviderID == uuid.Nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "provider_id is required"))
		return
	}

	referral, err := h.referrals.SelectProvider(ctx, id, req.ProviderID)
	if err != nil {
		h.logger.WarnContext(ctx, "provider selection rejected",
			"referral_id", id,
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(referral))
}

type transitionRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid referral id"))
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	to, err := models.ParseReferralStatus(req.Status)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	referral, err := h.referrals.Transition(ctx, id, to)
	if err != nil {
		h.logger.WarnContext(ctx, "status transition rejected",
			"referral_id", id,
			"to", to,
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(referral))
}

type triageRequest struct {
	CompletionLevel string `json:"completion_level"`
	WeightedLevel   string `json:"weighted_level"`
}

func (h *Handler) handleSetTriage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid referral id"))
		return
	}
	var req triageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	completion, err := models.ParseTriageLevel(req.CompletionLevel)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	weighted, err := models.ParseTriageLevel(req.WeightedLevel)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	referral, err := h.referrals.SetTriage(ctx, id, completion, weighted)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(referral))
}

type reuseResponse struct {
	Outcome         string     `json:"outcome"`
	Reason          string     `json:"reason,omitempty"`
	AvailableFrom   *time.Time `json:"available_from,omitempty"`
	ConflictingUbrn string     `json:"conflicting_ubrn,omitempty"`
}

// handleCheckReuse arbitrates one identity per call: exactly one of
// nhs_number or email must be supplied.
func (h *Handler) handleCheckReuse(w http.ResponseWriter, r *http.Request) {
	nhsNumber := r.URL.Query().Get("nhs_number")
	email := r.URL.Query().Get("email")

	var (
		decision models.ReuseDecision
		err      error
	)
	switch {
	case nhsNumber != "" && email == "":
		decision, err = h.referrals.CheckNhsNumberReuse(r.Context(), nhsNumber)
	case email != "" && nhsNumber == "":
		decision, err = h.referrals.CheckEmailReuse(r.Context(), email)
	default:
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "supply exactly one of nhs_number or email"))
		return
	}
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	resp := reuseResponse{
		Outcome:         string(decision.Outcome),
		Reason:          decision.Reason,
		ConflictingUbrn: decision.ConflictingUbrn,
	}
	if decision.Outcome == models.ReuseCoolingDown {
		resp.AvailableFrom = &decision.AvailableFrom
	}
	shared.WriteJSON(w, http.StatusOK, resp)
}

type providerResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

func (h *Handler) handleCandidateProviders(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid referral id"))
		return
	}
	candidates, err := h.referrals.CandidateProviders(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]providerResponse, 0, len(candidates))
	for _, p := range candidates {
		out = append(out, providerResponse{ID: p.ID, Name: p.Name})
	}
	shared.WriteJSON(w, http.StatusOK, out)
}
