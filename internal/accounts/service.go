// Package accounts handles signup, login and profile management for
// personal and business accounts.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/arecko/backend/internal/database"
	"github.com/arecko/backend/internal/media"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

var (
	ErrMissingFields      = errors.New("all fields are required")
	ErrPasswordMismatch   = errors.New("passwords don't match")
	ErrPasswordTooShort   = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidEmail       = errors.New("enter a valid email address")
)

// MediaSaver stores uploaded files.
type MediaSaver interface {
	SaveFile(ctx context.Context, dir string, f *media.File) (*media.Upload, error)
}

// Service manages accounts.
type Service struct {
	store  database.Store
	media  MediaSaver
	tokens *TokenIssuer
	cost   int
	logger *log.Logger
}

// NewService creates the account service. media may be nil to disable
// profile pictures.
func NewService(store database.Store, m MediaSaver, tokens *TokenIssuer) *Service {
	return &Service{
		store:  store,
		media:  m,
		tokens: tokens,
		cost:   bcrypt.DefaultCost,
		logger: log.New(log.Writer(), "[ACCOUNTS] ", log.LstdFlags),
	}
}

// SignupInput is the signup form. For business accounts Name is the
// business name.
type SignupInput struct {
	Name      string `json:"name"`
	Username  string `json:"username"`
	Password1 string `json:"password1"`
	Password2 string `json:"password2"`
}

func (in *SignupInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.TrimSpace(in.Username)
	if in.Name == "" || in.Username == "" || in.Password1 == "" || in.Password2 == "" {
		return ErrMissingFields
	}
	if in.Password1 != in.Password2 {
		return ErrPasswordMismatch
	}
	if len(in.Password1) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// Signup creates a personal account.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*database.User, error) {
	return s.create(ctx, in, false)
}

// BusinessSignup creates a business account. Its display name is the
// business name that Reckos are matched against.
func (s *Service) BusinessSignup(ctx context.Context, in SignupInput) (*database.User, error) {
	return s.create(ctx, in, true)
}

func (s *Service) create(ctx context.Context, in SignupInput, business bool) (*database.User, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password1), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &database.User{
		Username:     in.Username,
		DisplayName:  in.Name,
		PasswordHash: string(hash),
		IsBusiness:   business,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	kind := "user"
	if business {
		kind = "business"
	}
	s.logger.Printf("✅ Created %s account %q (id=%d)", kind, u.Username, u.ID)
	return u, nil
}

// Session is a successful login.
type Session struct {
	Token     string         `json:"token"`
	ExpiresAt int64          `json:"expires_at"`
	User      *database.User `json:"user"`
}

// Login checks credentials and issues a token.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	u, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, expires, err := s.tokens.Issue(u.ID, u.Username, u.IsBusiness)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expires.Unix(), User: u}, nil
}

// Authenticate resolves a token to its current account.
func (s *Service) Authenticate(ctx context.Context, token string) (*database.User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	id, err := claims.UserID()
	if err != nil {
		return nil, err
	}
	u, err := s.store.GetUser(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	return u, err
}

// ProfileInput updates a profile. DisplayName and Email change only when
// non-empty; the other text fields are always replaced.
type ProfileInput struct {
	DisplayName string
	Email       string
	Bio         string
	Location    string
	Website     string
	Picture     *media.File
}

// UpdateProfile applies in to the user's account and profile.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, in ProfileInput) (*database.User, *database.Profile, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	profile, err := s.store.GetOrCreateProfile(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	if v := strings.TrimSpace(in.DisplayName); v != "" {
		u.DisplayName = v
	}
	if v := strings.TrimSpace(in.Email); v != "" {
		if !plainAddress(v) {
			return nil, nil, ErrInvalidEmail
		}
		u.Email = v
	}
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return nil, nil, err
	}

	profile.Bio = strings.TrimSpace(in.Bio)
	profile.Location = strings.TrimSpace(in.Location)
	profile.Website = strings.TrimSpace(in.Website)

	if in.Picture != nil && s.media != nil {
		up, err := s.media.SaveFile(ctx, "profiles", in.Picture)
		if err != nil {
			return nil, nil, fmt.Errorf("save profile picture: %w", err)
		}
		profile.PictureName = up.Name
	}

	if err := s.store.UpdateProfile(ctx, profile); err != nil {
		return nil, nil, err
	}
	return u, profile, nil
}

// plainAddress accepts a bare addr-spec only. Display names, comments and
// line breaks are rejected since the address is reused as a Reply-To header.
func plainAddress(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Name == "" && addr.Address == s
}

// DeleteAccount removes the user's Reckos and then the user.
func (s *Service) DeleteAccount(ctx context.Context, userID int64) error {
	if err := s.store.DeleteStoriesByUser(ctx, userID); err != nil {
		return err
	}
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.logger.Printf("🗑️  Deleted account id=%d", userID)
	return nil
}
