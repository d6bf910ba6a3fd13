package testutil

import (
	"context"
	"time"

	"referralintake/pkg/requestcontext"
)

// ContextAt returns a background context whose request-scoped clock is fixed
// at t. Service tests use this instead of sleeping to cross expiry and
// cool-down boundaries.
func ContextAt(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}
