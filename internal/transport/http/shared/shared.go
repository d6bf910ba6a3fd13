// Package shared centralizes JSON encoding and domain-error translation for
// the HTTP layer so individual handlers stay thin.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	accesskeyModels "referralintake/internal/accesskey/models"
	referralModels "referralintake/internal/referral/models"
	dErrors "referralintake/pkg/domain-errors"
)

// ErrorResponse is the wire shape for every failure.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`

	// AvailableFrom is set for cool-down rejections so callers can tell the
	// patient when to come back.
	AvailableFrom *time.Time `json:"available_from,omitempty"`
	// ConflictingUbrn identifies the referral occupying the identity.
	ConflictingUbrn string `json:"conflicting_ubrn,omitempty"`
}

// WriteJSON encodes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteError maps domain errors onto HTTP statuses. Typed lifecycle errors
// carry their own payload fields; everything else falls back to the error
// code taxonomy.
func WriteError(w http.ResponseWriter, err error) {
	var (
		notFound        *referralModels.NotFoundError
		invalidStatus   *referralModels.InvalidStatusError
		triage          *referralModels.TriageIncompleteError
		notEligible     *referralModels.ProviderNotEligibleError
		alreadySelected *referralModels.ProviderAlreadySelectedError
		nhsBlocked      *referralModels.NhsNumberBlockedError
		nhsCooling      *referralModels.NhsNumberCoolingDownError
		emailBlocked    *referralModels.EmailBlockedError
		emailCooling    *referralModels.EmailCoolingDownError
		maxKeys         *accesskeyModels.MaxActiveAccessKeysError
	)

	switch {
	case errors.As(err, &notFound):
		WriteJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Description: err.Error()})
	case errors.As(err, &invalidStatus):
		WriteJSON(w, http.StatusConflict, ErrorResponse{Error: "invalid_status", Description: err.Error()})
	case errors.As(err, &triage):
		WriteJSON(w, http.StatusConflict, ErrorResponse{Error: "triage_incomplete", Description: err.Error()})
	case errors.As(err, &notEligible):
		WriteJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "provider_not_eligible", Description: err.Error()})
	case errors.As(err, &alreadySelected):
		WriteJSON(w, http.StatusConflict, ErrorResponse{Error: "provider_already_selected", Description: err.Error()})
	case errors.As(err, &nhsBlocked):
		WriteJSON(w, http.StatusConflict, ErrorResponse{
			Error: "nhs_number_blocked", Description: err.Error(), ConflictingUbrn: nhsBlocked.ConflictingUbrn,
		})
	case errors.As(err, &nhsCooling):
		WriteJSON(w, http.StatusConflict, ErrorResponse{
			Error: "nhs_number_cooling_down", Description: err.Error(),
			AvailableFrom: &nhsCooling.AvailableFrom, ConflictingUbrn: nhsCooling.ConflictingUbrn,
		})
	case errors.As(err, &emailBlocked):
		WriteJSON(w, http.StatusConflict, ErrorResponse{
			Error: "email_blocked", Description: err.Error(), ConflictingUbrn: emailBlocked.ConflictingUbrn,
		})
	case errors.As(err, &emailCooling):
		WriteJSON(w, http.StatusConflict, ErrorResponse{
			Error: "email_cooling_down", Description: err.Error(),
			AvailableFrom: &emailCooling.AvailableFrom, ConflictingUbrn: emailCooling.ConflictingUbrn,
		})
	case errors.As(err, &maxKeys):
		WriteJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "max_active_access_keys", Description: err.Error()})
	default:
		WriteJSON(w, statusForCode(dErrors.GetCode(err)), ErrorResponse{
			Error: string(dErrors.GetCode(err)), Description: err.Error(),
		})
	}
}

func statusForCode(code dErrors.Code) int {
	switch code {
	case dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeInvariantViolation:
		return http.StatusUnprocessableEntity
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
