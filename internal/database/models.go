package database

import (
	"strings"
	"time"
)

// ============================================================================
// DATA MODELS
// ============================================================================

// User is a person or business account
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	IsBusiness   bool      `json:"is_business"`
	IsSuperuser  bool      `json:"is_superuser,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Name returns the display name, falling back to the username. For business
// accounts this is the business name.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// Profile holds optional public details of a user
type Profile struct {
	UserID      int64  `json:"user_id"`
	Bio         string `json:"bio"`
	Location    string `json:"location"`
	Website     string `json:"website"`
	PictureName string `json:"picture_name,omitempty"`
}

// Industry categorizes the business a Recko is about
type Industry string

const (
	IndustryAutomotive    Industry = "automotive"
	IndustryRestaurant    Industry = "restaurant"
	IndustryRetail        Industry = "retail"
	IndustryHealth        Industry = "health"
	IndustryBeauty        Industry = "beauty"
	IndustryHome          Industry = "home"
	IndustryProfessional  Industry = "professional"
	IndustryFitness       Industry = "fitness"
	IndustryEntertainment Industry = "entertainment"
	IndustryTravel        Industry = "travel"
	IndustryTechnology    Industry = "technology"
	IndustryEducation     Industry = "education"
	IndustryOther         Industry = "other"
)

var industryLabels = map[Industry]string{
	IndustryAutomotive:    "Automotive",
	IndustryRestaurant:    "Restaurant & Food",
	IndustryRetail:        "Retail & Shopping",
	IndustryHealth:        "Health & Wellness",
	IndustryBeauty:        "Beauty & Spa",
	IndustryHome:          "Home Services",
	IndustryProfessional:  "Professional Services",
	IndustryFitness:       "Fitness & Sports",
	IndustryEntertainment: "Entertainment",
	IndustryTravel:        "Travel & Hospitality",
	IndustryTechnology:    "Technology",
	IndustryEducation:     "Education",
	IndustryOther:         "Other",
}

// ParseIndustry maps unknown or empty values to IndustryOther.
func ParseIndustry(s string) Industry {
	ind := Industry(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := industryLabels[ind]; ok {
		return ind
	}
	return IndustryOther
}

// Label returns the human readable industry name.
func (i Industry) Label() string {
	if l, ok := industryLabels[i]; ok {
		return l
	}
	return industryLabels[IndustryOther]
}

// Story is a posted Recko. UserID is nil for anonymous posts.
type Story struct {
	ID            int64      `json:"id"`
	UserID        *int64     `json:"user_id,omitempty"`
	GuestName     string     `json:"guest_name,omitempty"`
	BusinessName  string     `json:"business_name"`
	Industry      Industry   `json:"industry"`
	Body          string     `json:"story"`
	ContactInfo   string     `json:"contact_info,omitempty"`
	MediaName     string     `json:"media_name,omitempty"`
	ThumbnailName string     `json:"thumbnail_name,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	Verified      bool       `json:"is_verified"`
	VerifiedBy    *int64     `json:"verified_by,omitempty"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
}

// OwnedBy reports whether the story was posted by the given user.
func (s *Story) OwnedBy(userID int64) bool {
	return s.UserID != nil && *s.UserID == userID
}

// Comment on a story
type Comment struct {
	ID        int64     `json:"id"`
	StoryID   int64     `json:"story_id"`
	UserID    int64     `json:"user_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ReactionType is one of the supported emoji reactions
type ReactionType string

const (
	ReactionLike  ReactionType = "like"
	ReactionLove  ReactionType = "love"
	ReactionHaha  ReactionType = "haha"
	ReactionWow   ReactionType = "wow"
	ReactionSad   ReactionType = "sad"
	ReactionAngry ReactionType = "angry"
)

// ReactionTypes lists reactions in display order
var ReactionTypes = []ReactionType{ReactionLike, ReactionLove, ReactionHaha, ReactionWow, ReactionSad, ReactionAngry}

var reactionEmoji = map[ReactionType]string{
	ReactionLike:  "👍",
	ReactionLove:  "❤️",
	ReactionHaha:  "😂",
	ReactionWow:   "😮",
	ReactionSad:   "😢",
	ReactionAngry: "😡",
}

// NormalizeReaction maps invalid types to ReactionLike.
func NormalizeReaction(s string) ReactionType {
	rt := ReactionType(s)
	if _, ok := reactionEmoji[rt]; ok {
		return rt
	}
	return ReactionLike
}

// Emoji returns the emoji for the reaction type.
func (r ReactionType) Emoji() string {
	if e, ok := reactionEmoji[r]; ok {
		return e
	}
	return reactionEmoji[ReactionLike]
}

// Reaction is unique per (story, user)
type Reaction struct {
	StoryID   int64        `json:"story_id"`
	UserID    int64        `json:"user_id"`
	Type      ReactionType `json:"reaction_type"`
	CreatedAt time.Time    `json:"created_at"`
}

// ReferralRequest records a solicitation email sent on behalf of a business
type ReferralRequest struct {
	ID             int64     `json:"id"`
	BusinessUserID int64     `json:"business_user_id"`
	CustomerEmail  string    `json:"customer_email"`
	CreatedAt      time.Time `json:"created_at"`
}

// APIKey lets a business trigger referral requests from a CRM
type APIKey struct {
	UserID    int64     `json:"user_id"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
}
