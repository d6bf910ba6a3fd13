package token

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "referralintake/pkg/domain-errors"
	"referralintake/pkg/requestcontext"
)

func TestMintAndValidate(t *testing.T) {
	svc := NewService("test-signing-key", "referral-intake", 30*time.Minute)

	signed, err := svc.MintStaffToken(context.Background(), "nurse@nhs.example.com")
	require.NoError(t, err)

	claims, err := svc.ValidateStaffToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "nurse@nhs.example.com", claims.Email)
	assert.Equal(t, PurposeStaffReferral, claims.Purpose)
	assert.Equal(t, "referral-intake", claims.Issuer)
}

func TestExpiryFromRequestClock(t *testing.T) {
	svc := NewService("test-signing-key", "referral-intake", 30*time.Minute)

	// Minted an hour ago per the request clock, so it is already expired.
	ctx := requestcontext.WithTime(context.Background(), time.Now().Add(-time.Hour))
	signed, err := svc.MintStaffToken(ctx, "late@nhs.example.com")
	require.NoError(t, err)

	_, err = svc.ValidateStaffToken(signed)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Contains(t, err.Error(), "expired")
}

func TestWrongSigningKeyRejected(t *testing.T) {
	minter := NewService("key-one", "referral-intake", 30*time.Minute)
	validator := NewService("key-two", "referral-intake", 30*time.Minute)

	signed, err := minter.MintStaffToken(context.Background(), "nurse@nhs.example.com")
	require.NoError(t, err)

	_, err = validator.ValidateStaffToken(signed)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestWrongPurposeRejected(t *testing.T) {
	svc := NewService("test-signing-key", "referral-intake", 30*time.Minute)

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email:   "nurse@nhs.example.com",
		Purpose: "password-reset",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			Issuer:    "referral-intake",
		},
	})
	signed, err := other.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	_, err = svc.ValidateStaffToken(signed)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestGarbageTokenRejected(t *testing.T) {
	svc := NewService("test-signing-key", "referral-intake", 30*time.Minute)

	_, err := svc.ValidateStaffToken("not-a-jwt")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
