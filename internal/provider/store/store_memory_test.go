package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"referralintake/internal/provider/models"
	referral "referralintake/internal/referral/models"
	"referralintake/pkg/platform/sentinel"
)

func TestInMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	p, err := models.NewProvider("Oviva", true, true, false, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, p))

	got, err := s.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.True(t, got.AcceptsMedium)
	assert.False(t, got.AcceptsHigh)

	_, err = s.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryListByLevel(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	now := time.Now().UTC()

	lowOnly, err := models.NewProvider("Low Only", true, false, false, now)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, lowOnly))

	all, err := models.NewProvider("All Levels", true, true, true, now)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, all))

	inactive, err := models.NewProvider("Retired", true, true, true, now)
	require.NoError(t, err)
	inactive.Active = false
	require.NoError(t, s.Save(ctx, inactive))

	high, err := s.ListByLevel(ctx, referral.TriageLevelHigh)
	require.NoError(t, err)
	require.Len(t, high, 1)
	assert.Equal(t, "All Levels", high[0].Name)

	low, err := s.ListByLevel(ctx, referral.TriageLevelLow)
	require.NoError(t, err)
	assert.Len(t, low, 2)
}
