package reputation

import (
	"context"
	"fmt"
)

// Status pairs a tier with the count it was derived from.
type Status struct {
	Tier  Tier `json:"status"`
	Count int  `json:"count"`
}

// ProfileStatuses is the full badge picture shown on a user profile.
type ProfileStatuses struct {
	Overall    Status            `json:"overall"`
	Businesses map[string]Status `json:"business_statuses"`
	Industries map[string]Status `json:"industry_statuses"`
}

// Engine resolves tiers for users by querying a VerifiedCounter. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	counter VerifiedCounter
}

// NewEngine creates an engine over the given counter.
func NewEngine(counter VerifiedCounter) *Engine {
	return &Engine{counter: counter}
}

// Status returns the user's tier within the scope.
func (e *Engine) Status(ctx context.Context, userID int64, scope Scope) (Status, error) {
	count, err := e.counter.CountVerified(ctx, userID, scope)
	if err != nil {
		return Status{}, fmt.Errorf("count verified referrals: %w", err)
	}
	return Status{Tier: Compute(count), Count: count}, nil
}

// Profile computes the overall status plus one status per business and per
// industry the user has verified referrals for. Scopes below bronze are left
// out.
func (e *Engine) Profile(ctx context.Context, userID int64) (*ProfileStatuses, error) {
	overall, err := e.Status(ctx, userID, Scope{})
	if err != nil {
		return nil, err
	}

	out := &ProfileStatuses{
		Overall:    overall,
		Businesses: make(map[string]Status),
		Industries: make(map[string]Status),
	}

	businesses, err := e.counter.VerifiedBusinesses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list verified businesses: %w", err)
	}
	for _, b := range businesses {
		st, err := e.Status(ctx, userID, Scope{BusinessName: b})
		if err != nil {
			return nil, err
		}
		if st.Tier != TierNone {
			out.Businesses[b] = st
		}
	}

	industries, err := e.counter.VerifiedIndustries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list verified industries: %w", err)
	}
	for _, ind := range industries {
		st, err := e.Status(ctx, userID, Scope{Industry: ind})
		if err != nil {
			return nil, err
		}
		if st.Tier != TierNone {
			out.Industries[ind] = st
		}
	}

	return out, nil
}
