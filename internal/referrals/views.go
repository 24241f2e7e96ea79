package referrals

import (
	"github.com/arecko/backend/internal/database"
	"github.com/arecko/backend/internal/media"
	"github.com/arecko/backend/internal/reputation"
)

// StoryView is a Recko as returned to clients.
type StoryView struct {
	*database.Story
	PosterName    string             `json:"poster_name"`
	IndustryLabel string             `json:"industry_label"`
	MediaURL      *string            `json:"media_url"`
	MediaType     media.ResourceType `json:"media_type,omitempty"`
	ThumbnailURL  *string            `json:"thumbnail_url"`
}

// StoryDetail adds comments and reactions to a StoryView.
type StoryDetail struct {
	*StoryView
	Comments  []*database.Comment `json:"comments"`
	Reactions *ReactionSummary    `json:"reactions"`
}

// Page is one page of the feed.
type Page struct {
	Items       []*StoryView `json:"items"`
	Page        int          `json:"page"`
	NumPages    int          `json:"num_pages"`
	Total       int          `json:"total"`
	HasNext     bool         `json:"has_next"`
	HasPrevious bool         `json:"has_previous"`
}

// ReactionSummary counts reactions on a story by emoji.
type ReactionSummary struct {
	Success      bool                   `json:"success"`
	Total        int                    `json:"total"`
	Counts       map[string]int         `json:"counts"`
	UserReaction *database.ReactionType `json:"user_reaction"`
}

// VerifyResult reports the poster's standing after a verification.
type VerifyResult struct {
	Success       bool            `json:"success"`
	Story         *StoryView      `json:"story"`
	UserStatus    reputation.Tier `json:"user_status"`
	VerifiedCount int             `json:"verified_count"`
}

// Dashboard lists the Reckos naming a business.
type Dashboard struct {
	BusinessName string       `json:"business_name"`
	Pending      []*StoryView `json:"pending_referrals"`
	Verified     []*StoryView `json:"verified_referrals"`
}

// UserProfile is the public profile page of a user.
type UserProfile struct {
	User       *database.User              `json:"user"`
	Profile    *database.Profile           `json:"profile"`
	PictureURL *string                     `json:"picture_url"`
	Statuses   *reputation.ProfileStatuses `json:"statuses"`
	Recent     []*StoryView                `json:"recent_stories"`
}
