package database

import (
	"context"
	"errors"
	"time"

	"github.com/arecko/backend/internal/reputation"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// Store is the persistence interface used by the services. Implementations
// must be safe for concurrent use.
type Store interface {
	reputation.VerifiedCounter

	// Users
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	DeleteUser(ctx context.Context, id int64) error
	// FindBusinesses returns business accounts whose display name or
	// username contains name, case-insensitively.
	FindBusinesses(ctx context.Context, name string) ([]*User, error)

	// Profiles
	GetOrCreateProfile(ctx context.Context, userID int64) (*Profile, error)
	UpdateProfile(ctx context.Context, p *Profile) error

	// Stories
	CreateStory(ctx context.Context, s *Story) error
	GetStory(ctx context.Context, id int64) (*Story, error)
	ListStories(ctx context.Context, offset, limit int) ([]*Story, int, error)
	ListStoriesByUser(ctx context.Context, userID int64, limit int) ([]*Story, error)
	// ListStoriesForBusiness returns stories whose business name contains
	// name. Pending stories are newest first, verified ones by verified time.
	ListStoriesForBusiness(ctx context.Context, name string, verified bool) ([]*Story, error)
	// MarkVerified verifies a story once; later calls leave the first
	// verifier and time in place.
	MarkVerified(ctx context.Context, storyID, verifierID int64, at time.Time) (*Story, error)
	DeleteStory(ctx context.Context, id int64) error
	DeleteStoriesByUser(ctx context.Context, userID int64) error

	// Comments
	AddComment(ctx context.Context, c *Comment) error
	ListComments(ctx context.Context, storyID int64) ([]*Comment, error)

	// Reactions
	GetReaction(ctx context.Context, storyID, userID int64) (*Reaction, error)
	UpsertReaction(ctx context.Context, r *Reaction) error
	DeleteReaction(ctx context.Context, storyID, userID int64) error
	ListReactions(ctx context.Context, storyID int64) ([]*Reaction, error)

	// Referral requests
	CreateReferralRequest(ctx context.Context, r *ReferralRequest) error
	ListReferralRequests(ctx context.Context, businessUserID int64) ([]*ReferralRequest, error)

	// API keys
	GetAPIKeyByUser(ctx context.Context, userID int64) (*APIKey, error)
	GetAPIKey(ctx context.Context, key string) (*APIKey, error)
	SaveAPIKey(ctx context.Context, k *APIKey) error

	Ping(ctx context.Context) error
	Close() error
}
