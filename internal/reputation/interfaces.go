package reputation

import (
	"context"
	"strings"
)

// Scope narrows a verified-referral count to a single business or industry.
// The zero value counts every verified referral of the user.
type Scope struct {
	BusinessName string // case-insensitive exact match
	Industry     string // exact match
}

// IsZero reports whether the scope applies no filter.
func (s Scope) IsZero() bool {
	return strings.TrimSpace(s.BusinessName) == "" && s.Industry == ""
}

// VerifiedCounter is the query interface the engine reads from. Implementations
// must count only referrals with verified=true, owned by userID and matching
// the scope.
type VerifiedCounter interface {
	CountVerified(ctx context.Context, userID int64, scope Scope) (int, error)
	VerifiedBusinesses(ctx context.Context, userID int64) ([]string, error)
	VerifiedIndustries(ctx context.Context, userID int64) ([]string, error)
}
