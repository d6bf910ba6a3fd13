package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"referralintake/internal/platform/token"
)

// StaffTokenValidator validates a verified-email token.
type StaffTokenValidator interface {
	ValidateStaffToken(tokenString string) (*token.Claims, error)
}

type contextKeyVerifiedEmail struct{}

// GetVerifiedEmail retrieves the email proven by RequireVerifiedEmail, or ""
// when the request did not pass through it.
func GetVerifiedEmail(ctx context.Context) string {
	email, ok := ctx.Value(contextKeyVerifiedEmail{}).(string)
	if !ok {
		return ""
	}
	return email
}

// RequireVerifiedEmail gates the staff-referral intake behind a token minted
// by access-key validation. Anything short of a valid Bearer token is a 401.
func RequireVerifiedEmail(validator StaffTokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tokenString, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "staff referral without token",
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateStaffToken(tokenString)
			if err != nil {
				logger.WarnContext(ctx, "staff referral with invalid token",
					"error", err.Error(),
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx = context.WithValue(ctx, contextKeyVerifiedEmail{}, claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
