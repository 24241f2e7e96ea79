package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arecko/backend/internal/reputation"
)

// MemoryStore is an in-process Store used for local development and tests.
type MemoryStore struct {
	mu sync.RWMutex

	nextID    int64
	users     map[int64]*User
	profiles  map[int64]*Profile
	stories   map[int64]*Story
	comments  map[int64]*Comment
	reactions map[[2]int64]*Reaction // (storyID, userID)
	requests  map[int64]*ReferralRequest
	apiKeys   map[int64]*APIKey // userID -> key
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[int64]*User),
		profiles:  make(map[int64]*Profile),
		stories:   make(map[int64]*Story),
		comments:  make(map[int64]*Comment),
		reactions: make(map[[2]int64]*Reaction),
		requests:  make(map[int64]*ReferralRequest),
		apiKeys:   make(map[int64]*APIKey),
	}
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

func now(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// ============================================================================
// USERS
// ============================================================================

func (m *MemoryStore) CreateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return fmt.Errorf("username %q: %w", u.Username, ErrConflict)
		}
	}
	u.ID = m.id()
	u.CreatedAt = now(u.CreatedAt)
	cp := *u
	m.users[u.ID] = &cp
	m.profiles[u.ID] = &Profile{UserID: u.ID}
	return nil
}

func (m *MemoryStore) GetUser(_ context.Context, id int64) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) GetUserByUsername(_ context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) UpdateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[u.ID]; !ok {
		return ErrNotFound
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStore) DeleteUser(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	for sid, s := range m.stories {
		if s.OwnedBy(id) {
			m.deleteStoryLocked(sid)
		}
	}
	for cid, c := range m.comments {
		if c.UserID == id {
			delete(m.comments, cid)
		}
	}
	for k := range m.reactions {
		if k[1] == id {
			delete(m.reactions, k)
		}
	}
	for rid, r := range m.requests {
		if r.BusinessUserID == id {
			delete(m.requests, rid)
		}
	}
	for _, s := range m.stories {
		if s.VerifiedBy != nil && *s.VerifiedBy == id {
			s.VerifiedBy = nil
		}
	}
	delete(m.apiKeys, id)
	delete(m.profiles, id)
	delete(m.users, id)
	return nil
}

func (m *MemoryStore) FindBusinesses(_ context.Context, name string) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil, nil
	}
	var out []*User
	for _, u := range m.users {
		if !u.IsBusiness {
			continue
		}
		if strings.Contains(strings.ToLower(u.DisplayName), needle) ||
			strings.Contains(strings.ToLower(u.Username), needle) {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ============================================================================
// PROFILES
// ============================================================================

func (m *MemoryStore) GetOrCreateProfile(_ context.Context, userID int64) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		return nil, ErrNotFound
	}
	p, ok := m.profiles[userID]
	if !ok {
		p = &Profile{UserID: userID}
		m.profiles[userID] = p
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) UpdateProfile(_ context.Context, p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[p.UserID]; !ok {
		return ErrNotFound
	}
	cp := *p
	m.profiles[p.UserID] = &cp
	return nil
}

// ============================================================================
// STORIES
// ============================================================================

func (m *MemoryStore) CreateStory(_ context.Context, s *Story) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.ID = m.id()
	s.CreatedAt = now(s.CreatedAt)
	cp := *s
	m.stories[s.ID] = &cp
	return nil
}

func (m *MemoryStore) GetStory(_ context.Context, id int64) (*Story, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.stories[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// newestFirst orders by creation time, then id, both descending.
func newestFirst(out []*Story) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
}

func (m *MemoryStore) snapshot(filter func(*Story) bool) []*Story {
	var out []*Story
	for _, s := range m.stories {
		if filter(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out
}

func (m *MemoryStore) ListStories(_ context.Context, offset, limit int) ([]*Story, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.snapshot(func(*Story) bool { return true })
	newestFirst(all)
	total := len(all)
	if offset >= total {
		return []*Story{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *MemoryStore) ListStoriesByUser(_ context.Context, userID int64, limit int) ([]*Story, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.snapshot(func(s *Story) bool { return s.OwnedBy(userID) })
	newestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListStoriesForBusiness(_ context.Context, name string, verified bool) ([]*Story, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	needle := strings.ToLower(name)
	out := m.snapshot(func(s *Story) bool {
		return s.Verified == verified && strings.Contains(strings.ToLower(s.BusinessName), needle)
	})
	if !verified {
		newestFirst(out)
		return out, nil
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].VerifiedAt.After(*out[j].VerifiedAt)
	})
	return out, nil
}

func (m *MemoryStore) MarkVerified(_ context.Context, storyID, verifierID int64, at time.Time) (*Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.stories[storyID]
	if !ok {
		return nil, ErrNotFound
	}
	if !s.Verified {
		at = now(at)
		s.Verified = true
		s.VerifiedBy = &verifierID
		s.VerifiedAt = &at
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) deleteStoryLocked(id int64) {
	delete(m.stories, id)
	for cid, c := range m.comments {
		if c.StoryID == id {
			delete(m.comments, cid)
		}
	}
	for k := range m.reactions {
		if k[0] == id {
			delete(m.reactions, k)
		}
	}
}

func (m *MemoryStore) DeleteStory(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stories[id]; !ok {
		return ErrNotFound
	}
	m.deleteStoryLocked(id)
	return nil
}

func (m *MemoryStore) DeleteStoriesByUser(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.stories {
		if s.OwnedBy(userID) {
			m.deleteStoryLocked(id)
		}
	}
	return nil
}

// ============================================================================
// VERIFIED COUNTS (reputation.VerifiedCounter)
// ============================================================================

func (m *MemoryStore) CountVerified(_ context.Context, userID int64, scope reputation.Scope) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, s := range m.stories {
		if !s.Verified || !s.OwnedBy(userID) {
			continue
		}
		if scope.BusinessName != "" && !strings.EqualFold(s.BusinessName, scope.BusinessName) {
			continue
		}
		if scope.Industry != "" && string(s.Industry) != scope.Industry {
			continue
		}
		n++
	}
	return n, nil
}

func (m *MemoryStore) distinctVerified(userID int64, key func(*Story) string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, s := range m.stories {
		if !s.Verified || !s.OwnedBy(userID) {
			continue
		}
		k := key(s)
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (m *MemoryStore) VerifiedBusinesses(_ context.Context, userID int64) ([]string, error) {
	return m.distinctVerified(userID, func(s *Story) string { return s.BusinessName }), nil
}

func (m *MemoryStore) VerifiedIndustries(_ context.Context, userID int64) ([]string, error) {
	return m.distinctVerified(userID, func(s *Story) string { return string(s.Industry) }), nil
}

// ============================================================================
// COMMENTS & REACTIONS
// ============================================================================

func (m *MemoryStore) AddComment(_ context.Context, c *Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stories[c.StoryID]; !ok {
		return ErrNotFound
	}
	c.ID = m.id()
	c.CreatedAt = now(c.CreatedAt)
	cp := *c
	m.comments[c.ID] = &cp
	return nil
}

func (m *MemoryStore) ListComments(_ context.Context, storyID int64) ([]*Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Comment
	for _, c := range m.comments {
		if c.StoryID == storyID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetReaction(_ context.Context, storyID, userID int64) (*Reaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reactions[[2]int64{storyID, userID}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) UpsertReaction(_ context.Context, r *Reaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stories[r.StoryID]; !ok {
		return ErrNotFound
	}
	r.CreatedAt = now(r.CreatedAt)
	cp := *r
	m.reactions[[2]int64{r.StoryID, r.UserID}] = &cp
	return nil
}

func (m *MemoryStore) DeleteReaction(_ context.Context, storyID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.reactions, [2]int64{storyID, userID})
	return nil
}

func (m *MemoryStore) ListReactions(_ context.Context, storyID int64) ([]*Reaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Reaction
	for k, r := range m.reactions {
		if k[0] == storyID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// ============================================================================
// REFERRAL REQUESTS & API KEYS
// ============================================================================

func (m *MemoryStore) CreateReferralRequest(_ context.Context, r *ReferralRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r.ID = m.id()
	r.CreatedAt = now(r.CreatedAt)
	cp := *r
	m.requests[r.ID] = &cp
	return nil
}

func (m *MemoryStore) ListReferralRequests(_ context.Context, businessUserID int64) ([]*ReferralRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*ReferralRequest
	for _, r := range m.requests {
		if r.BusinessUserID == businessUserID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetAPIKeyByUser(_ context.Context, userID int64) (*APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k, ok := m.apiKeys[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *k
	return &cp, nil
}

func (m *MemoryStore) GetAPIKey(_ context.Context, key string) (*APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, k := range m.apiKeys {
		if k.Key == key {
			cp := *k
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) SaveAPIKey(_ context.Context, k *APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[k.UserID]; !ok {
		return ErrNotFound
	}
	for uid, existing := range m.apiKeys {
		if uid != k.UserID && existing.Key == k.Key {
			return ErrConflict
		}
	}
	k.CreatedAt = now(k.CreatedAt)
	cp := *k
	m.apiKeys[k.UserID] = &cp
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
