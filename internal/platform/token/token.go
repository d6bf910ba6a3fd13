// Package token mints and validates the short-lived JWTs handed to staff
// members after access-key validation. A token proves control of a verified
// email address for the staff-referral channel and nothing else.
package token

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "referralintake/pkg/domain-errors"
	"referralintake/pkg/requestcontext"
)

// PurposeStaffReferral is the only purpose these tokens carry; a token minted
// here must not open any other surface.
const PurposeStaffReferral = "staff-referral"

// Claims are the verified-email token claims.
type Claims struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Service handles JWT creation and validation.
type Service struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

func NewService(signingKey, issuer string, ttl time.Duration) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		ttl:        ttl,
	}
}

// MintStaffToken issues a verified-email token. Expiry is measured from the
// request clock so it lines up with the access-key validation instant.
func (s *Service) MintStaffToken(ctx context.Context, email string) (string, error) {
	now := requestcontext.Now(ctx)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email:   email,
		Purpose: PurposeStaffReferral,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not sign staff token")
	}
	return signed, nil
}

// ValidateStaffToken checks signature, expiry and purpose, returning the
// verified email.
func (s *Service) ValidateStaffToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if claims.Purpose != PurposeStaffReferral {
		return nil, dErrors.New(dErrors.CodeForbidden, "token purpose does not permit staff referral")
	}
	return claims, nil
}
