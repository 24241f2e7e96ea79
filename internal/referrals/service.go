// Package referrals implements posting, browsing and verifying Reckos, the
// reactions and comments on them, and the per-user reputation they earn.
package referrals

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/arecko/backend/internal/database"
	"github.com/arecko/backend/internal/events"
	"github.com/arecko/backend/internal/mailer"
	"github.com/arecko/backend/internal/media"
	"github.com/arecko/backend/internal/metrics"
	"github.com/arecko/backend/internal/reputation"
)

// PageSize is the number of Reckos per feed page.
const PageSize = 10

// RecentLimit caps the Reckos shown on a profile.
const RecentLimit = 10

var (
	ErrBusinessCannotPost = errors.New("business accounts cannot post Reckos; ask customers for them instead")
	ErrMissingFields      = errors.New("business name and story are required")
	ErrForbidden          = errors.New("permission denied")
	ErrEmptyComment       = errors.New("comment text is required")
	ErrNotFound           = errors.New("recko not found")
	ErrUserNotFound       = errors.New("user not found")
)

// MediaSaver stores uploaded files.
type MediaSaver interface {
	SaveFile(ctx context.Context, dir string, f *media.File) (*media.Upload, error)
}

// Enqueuer accepts outbound mail for delivery.
type Enqueuer interface {
	Enqueue(msg *mailer.Message) error
}

// Deps are the collaborators of the service. Media, Mail and Events may be
// nil.
type Deps struct {
	Store    database.Store
	Engine   *reputation.Engine
	Resolver *media.Resolver
	Media    MediaSaver
	Mail     Enqueuer
	Links    mailer.Links
	Events   events.Emitter
	Metrics  *metrics.Metrics
}

// Service is the Recko application service.
type Service struct {
	Deps
	now    func() time.Time
	logger *log.Logger
}

// NewService creates the service.
func NewService(d Deps) *Service {
	if d.Engine == nil {
		d.Engine = reputation.NewEngine(d.Store)
	}
	if d.Resolver == nil {
		d.Resolver = media.NewResolver("", "")
	}
	return &Service{
		Deps:   d,
		now:    time.Now,
		logger: log.New(log.Writer(), "[RECKO] ", log.LstdFlags),
	}
}

func (s *Service) emit(eventType string, storyID int64, data map[string]interface{}) {
	if s.Events == nil {
		return
	}
	data["story_id"] = storyID
	s.Events.Emit(eventType, "recko/"+strconv.FormatInt(storyID, 10), data)
}

func (s *Service) getStory(ctx context.Context, id int64) (*database.Story, error) {
	st, err := s.Store.GetStory(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	return st, err
}

// ============================================================================
// VIEWS
// ============================================================================

// posterName is the display name of the poster, the guest name, or
// "Anonymous".
func (s *Service) posterName(ctx context.Context, st *database.Story) string {
	if st.UserID != nil {
		if u, err := s.Store.GetUser(ctx, *st.UserID); err == nil {
			return u.Name()
		}
	}
	if st.GuestName != "" {
		return st.GuestName
	}
	return "Anonymous"
}

func (s *Service) view(ctx context.Context, st *database.Story) *StoryView {
	v := &StoryView{
		Story:         st,
		PosterName:    s.posterName(ctx, st),
		IndustryLabel: st.Industry.Label(),
	}
	if u, ok := s.Resolver.BuildDeliveryURL(st.MediaName); ok {
		v.MediaURL = &u
		v.MediaType = media.Classify(st.MediaName)
	}
	if u, ok := s.Resolver.BuildDeliveryURL(st.ThumbnailName); ok {
		v.ThumbnailURL = &u
	}
	return v
}

func (s *Service) views(ctx context.Context, stories []*database.Story) []*StoryView {
	out := make([]*StoryView, 0, len(stories))
	for _, st := range stories {
		out = append(out, s.view(ctx, st))
	}
	return out
}

// ============================================================================
// POSTING
// ============================================================================

// PostInput is a new Recko.
type PostInput struct {
	BusinessName string
	Industry     string
	Body         string
	ContactInfo  string
	GuestName    string
	Media        *media.File
}

// Post creates a Recko. actor is nil for anonymous posts.
func (s *Service) Post(ctx context.Context, actor *database.User, in PostInput) (*StoryView, error) {
	if actor != nil && actor.IsBusiness {
		return nil, ErrBusinessCannotPost
	}
	business := strings.TrimSpace(in.BusinessName)
	body := strings.TrimSpace(in.Body)
	if business == "" || body == "" {
		return nil, ErrMissingFields
	}

	st := &database.Story{
		BusinessName: business,
		Industry:     database.ParseIndustry(in.Industry),
		Body:         body,
		ContactInfo:  strings.TrimSpace(in.ContactInfo),
	}
	if actor != nil {
		st.UserID = &actor.ID
	} else {
		st.GuestName = strings.TrimSpace(in.GuestName)
		if st.GuestName == "" {
			st.GuestName = "Anonymous"
		}
	}

	mediaType := ""
	if in.Media != nil && s.Media != nil {
		up, err := s.Media.SaveFile(ctx, "stories", in.Media)
		if err != nil {
			return nil, fmt.Errorf("save media: %w", err)
		}
		st.MediaName = up.Name
		st.ThumbnailName = up.ThumbnailName
		mediaType = string(up.ResourceType)
	}

	if err := s.Store.CreateStory(ctx, st); err != nil {
		return nil, err
	}
	s.Metrics.RecordRecko(string(st.Industry), mediaType)

	v := s.view(ctx, st)
	s.emit(events.TypeReckoPosted, st.ID, map[string]interface{}{
		"business_name": st.BusinessName,
		"industry":      st.Industry,
		"poster_name":   v.PosterName,
	})
	s.notifyBusinesses(ctx, v)
	return v, nil
}

// notifyBusinesses emails every business account whose name contains the
// Recko's business name. Failures are logged only.
func (s *Service) notifyBusinesses(ctx context.Context, v *StoryView) {
	if s.Mail == nil {
		return
	}
	businesses, err := s.Store.FindBusinesses(ctx, v.BusinessName)
	if err != nil {
		s.logger.Printf("❌ Business lookup for %q failed: %v", v.BusinessName, err)
		return
	}
	for _, b := range businesses {
		if b.Email == "" {
			continue
		}
		msg, err := s.Links.ReferralNotification(b.Email, v.BusinessName, v.PosterName, v.Body)
		if err == nil {
			err = s.Mail.Enqueue(msg)
		}
		if err != nil {
			s.logger.Printf("❌ Failed to notify %s: %v", b.Email, err)
		}
	}
}

// ============================================================================
// BROWSING
// ============================================================================

// Get returns a Recko with its comments and reactions.
func (s *Service) Get(ctx context.Context, actor *database.User, id int64) (*StoryDetail, error) {
	st, err := s.getStory(ctx, id)
	if err != nil {
		return nil, err
	}
	comments, err := s.Store.ListComments(ctx, id)
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []*database.Comment{}
	}
	var actorID int64
	if actor != nil {
		actorID = actor.ID
	}
	reactions, err := s.reactionSummary(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	return &StoryDetail{StoryView: s.view(ctx, st), Comments: comments, Reactions: reactions}, nil
}

// Feed returns one page of Reckos, newest first. Out-of-range pages clamp
// to the first or last page.
func (s *Service) Feed(ctx context.Context, page int) (*Page, error) {
	_, total, err := s.Store.ListStories(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	numPages := (total + PageSize - 1) / PageSize
	if numPages == 0 {
		numPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > numPages {
		page = numPages
	}

	stories, total, err := s.Store.ListStories(ctx, (page-1)*PageSize, PageSize)
	if err != nil {
		return nil, err
	}
	return &Page{
		Items:       s.views(ctx, stories),
		Page:        page,
		NumPages:    numPages,
		Total:       total,
		HasNext:     page < numPages,
		HasPrevious: page > 1,
	}, nil
}

// ============================================================================
// VERIFICATION & MODERATION
// ============================================================================

// Verify marks a Recko verified by a business. Verifying twice keeps the
// first verifier and time. The result carries the poster's status for the
// Recko's business.
func (s *Service) Verify(ctx context.Context, actor *database.User, id int64) (*VerifyResult, error) {
	if actor == nil || !actor.IsBusiness {
		return nil, ErrForbidden
	}
	st, err := s.Store.MarkVerified(ctx, id, actor.ID, s.now().UTC())
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	res := &VerifyResult{Success: true, Story: s.view(ctx, st)}
	if st.UserID != nil {
		status, err := s.Engine.Status(ctx, *st.UserID, reputation.Scope{BusinessName: st.BusinessName})
		if err != nil {
			return nil, err
		}
		res.UserStatus = status.Tier
		res.VerifiedCount = status.Count
	}

	s.Metrics.RecordVerification(res.UserStatus.String())
	s.emit(events.TypeReckoVerified, st.ID, map[string]interface{}{
		"business_name":  st.BusinessName,
		"verified_by":    actor.ID,
		"user_status":    res.UserStatus.String(),
		"verified_count": res.VerifiedCount,
	})
	return res, nil
}

// CanDelete reports whether actor may delete st: the poster, a superuser, or
// a business whose name appears in the Recko's business name.
func CanDelete(actor *database.User, st *database.Story) bool {
	if actor == nil {
		return false
	}
	if st.OwnedBy(actor.ID) || actor.IsSuperuser {
		return true
	}
	return actor.IsBusiness &&
		strings.Contains(strings.ToLower(st.BusinessName), strings.ToLower(actor.Name()))
}

// Delete removes a Recko.
func (s *Service) Delete(ctx context.Context, actor *database.User, id int64) error {
	st, err := s.getStory(ctx, id)
	if err != nil {
		return err
	}
	if !CanDelete(actor, st) {
		return ErrForbidden
	}
	if err := s.Store.DeleteStory(ctx, id); err != nil {
		return err
	}
	s.emit(events.TypeReckoDeleted, id, map[string]interface{}{"deleted_by": actor.ID})
	return nil
}

// ============================================================================
// REACTIONS & COMMENTS
// ============================================================================

func (s *Service) reactionSummary(ctx context.Context, storyID, actorID int64) (*ReactionSummary, error) {
	reactions, err := s.Store.ListReactions(ctx, storyID)
	if err != nil {
		return nil, err
	}
	sum := &ReactionSummary{Success: true, Total: len(reactions), Counts: make(map[string]int)}
	for _, r := range reactions {
		sum.Counts[r.Type.Emoji()]++
		if actorID != 0 && r.UserID == actorID {
			rt := r.Type
			sum.UserReaction = &rt
		}
	}
	return sum, nil
}

// ToggleReaction sets, switches or clears the actor's reaction. An invalid
// type counts as a like.
func (s *Service) ToggleReaction(ctx context.Context, actor *database.User, id int64, reactionType string) (*ReactionSummary, error) {
	if actor == nil {
		return nil, ErrForbidden
	}
	if _, err := s.getStory(ctx, id); err != nil {
		return nil, err
	}
	rt := database.NormalizeReaction(reactionType)

	outcome := "added"
	existing, err := s.Store.GetReaction(ctx, id, actor.ID)
	switch {
	case err == nil && existing.Type == rt:
		outcome = "removed"
		err = s.Store.DeleteReaction(ctx, id, actor.ID)
	case err == nil:
		outcome = "changed"
		err = s.Store.UpsertReaction(ctx, &database.Reaction{StoryID: id, UserID: actor.ID, Type: rt, CreatedAt: existing.CreatedAt})
	case errors.Is(err, database.ErrNotFound):
		err = s.Store.UpsertReaction(ctx, &database.Reaction{StoryID: id, UserID: actor.ID, Type: rt})
	}
	if err != nil {
		return nil, err
	}
	s.Metrics.RecordReaction(string(rt), outcome)

	sum, err := s.reactionSummary(ctx, id, actor.ID)
	if err != nil {
		return nil, err
	}
	s.emit(events.TypeReactionToggled, id, map[string]interface{}{
		"reaction_type": rt,
		"outcome":       outcome,
		"total":         sum.Total,
		"counts":        sum.Counts,
	})
	return sum, nil
}

// AddComment appends a comment by actor.
func (s *Service) AddComment(ctx context.Context, actor *database.User, id int64, text string) (*database.Comment, error) {
	if actor == nil {
		return nil, ErrForbidden
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyComment
	}
	if _, err := s.getStory(ctx, id); err != nil {
		return nil, err
	}

	c := &database.Comment{StoryID: id, UserID: actor.ID, Text: text}
	if err := s.Store.AddComment(ctx, c); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.emit(events.TypeCommentAdded, id, map[string]interface{}{
		"comment_id": c.ID,
		"user":       actor.Name(),
		"text":       c.Text,
	})
	return c, nil
}

// ============================================================================
// BUSINESS DASHBOARD & PROFILES
// ============================================================================

// Dashboard lists pending and verified Reckos naming the business.
func (s *Service) Dashboard(ctx context.Context, actor *database.User) (*Dashboard, error) {
	if actor == nil || !actor.IsBusiness {
		return nil, ErrForbidden
	}
	name := actor.Name()
	pending, err := s.Store.ListStoriesForBusiness(ctx, name, false)
	if err != nil {
		return nil, err
	}
	verified, err := s.Store.ListStoriesForBusiness(ctx, name, true)
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		BusinessName: name,
		Pending:      s.views(ctx, pending),
		Verified:     s.views(ctx, verified),
	}, nil
}

// UserProfile returns a user's public profile with reputation badges.
func (s *Service) UserProfile(ctx context.Context, username string) (*UserProfile, error) {
	u, err := s.Store.GetUserByUsername(ctx, username)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	profile, err := s.Store.GetOrCreateProfile(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	statuses, err := s.Engine.Profile(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	recent, err := s.Store.ListStoriesByUser(ctx, u.ID, RecentLimit)
	if err != nil {
		return nil, err
	}

	out := &UserProfile{
		User:     u,
		Profile:  profile,
		Statuses: statuses,
		Recent:   s.views(ctx, recent),
	}
	if url, ok := s.Resolver.BuildDeliveryURL(profile.PictureName); ok {
		out.PictureURL = &url
	}
	return out, nil
}
