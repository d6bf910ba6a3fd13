// Package handler exposes access-key issuance and validation over HTTP. A
// Valid outcome is the only path that mints a staff-referral token.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"referralintake/internal/accesskey/models"
	"referralintake/internal/platform/middleware"
	"referralintake/internal/transport/http/shared"
	dErrors "referralintake/pkg/domain-errors"
)

// Service defines the access-key operations the HTTP layer needs.
type Service interface {
	Issue(ctx context.Context, email string, expireAfter time.Duration) (*models.IssuedKey, error)
	Validate(ctx context.Context, email, code string) (models.ValidationResult, error)
}

// TokenMinter issues the verified-email token returned on a Valid outcome.
type TokenMinter interface {
	MintStaffToken(ctx context.Context, email string) (string, error)
}

// Sender delivers the plaintext code to the requester out of band.
type Sender interface {
	SendAccessCode(ctx context.Context, email, code string, expiresAt time.Time) error
}

// Handler handles access-key endpoints.
type Handler struct {
	logger   *slog.Logger
	keys     Service
	tokens   TokenMinter
	sender   Sender
	echoCode bool
}

// Option configures a Handler.
type Option func(*Handler)

// WithEchoCode includes the plaintext code in the issue response. Test
// environments only; production delivers codes out of band.
func WithEchoCode() Option {
	return func(h *Handler) {
		h.echoCode = true
	}
}

// New creates a new access-key Handler. sender may be nil in deployments
// where delivery is handled by an upstream notification pipeline.
func New(keys Service, tokens TokenMinter, logger *slog.Logger, sender Sender, opts ...Option) *Handler {
	h := &Handler{
		logger: logger,
		keys:   keys,
		tokens: tokens,
		sender: sender,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the access-key routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(15 * time.Second))
	router.Use(middleware.ContentTypeJSON)
	router.Post("/", h.handleIssue)
	router.Post("/validate", h.handleValidate)

	r.Mount("/access-keys", router)
}

type issueRequest struct {
	Email string `json:"email"`
	// ExpireMinutes overrides the default key lifetime; zero or absent means
	// the configured default.
	ExpireMinutes int `json:"expire_minutes,omitempty"`
}

type issueResponse struct {
	ExpiresAt time.Time `json:"expires_at"`
	Code      string    `json:"code,omitempty"`
}

// handleIssue generates a code and hands it to the delivery channel. Unless
// echo is enabled the plaintext never appears in the HTTP response; the
// caller learns it from their inbox.
func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	issued, err := h.keys.Issue(ctx, req.Email, time.Duration(req.ExpireMinutes)*time.Minute)
	if err != nil {
		h.logger.WarnContext(ctx, "access key issue rejected",
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}

	if h.sender != nil {
		if err := h.sender.SendAccessCode(ctx, req.Email, issued.Code, issued.ExpiresAt); err != nil {
			h.logger.ErrorContext(ctx, "failed to send access code",
				"error", err.Error(),
				"request_id", middleware.GetRequestID(ctx),
			)
			shared.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "could not deliver access code"))
			return
		}
	}

	resp := issueResponse{ExpiresAt: issued.ExpiresAt}
	if h.echoCode {
		resp.Code = issued.Code
	}
	shared.WriteJSON(w, http.StatusCreated, resp)
}

type validateRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type validateResponse struct {
	Outcome string `json:"outcome"`
	Token   string `json:"token,omitempty"`
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.Email == "" || req.Code == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "email and code are required"))
		return
	}

	result, err := h.keys.Validate(ctx, req.Email, req.Code)
	if err != nil {
		h.logger.ErrorContext(ctx, "access key validation failed",
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}

	resp := validateResponse{Outcome: result.Outcome.String()}
	if result.Outcome == models.OutcomeValid {
		token, err := h.tokens.MintStaffToken(ctx, req.Email)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		resp.Token = token
		shared.WriteJSON(w, http.StatusOK, resp)
		return
	}

	// Every failure outcome is reported with the same status; the outcome
	// field carries the distinction the frontend needs.
	shared.WriteJSON(w, http.StatusUnauthorized, resp)
}
