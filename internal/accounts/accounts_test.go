package accounts

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/arecko/backend/internal/database"
	"github.com/arecko/backend/internal/media"
)

type fakeMedia struct{ dirs []string }

func (f *fakeMedia) SaveFile(_ context.Context, dir string, file *media.File) (*media.Upload, error) {
	f.dirs = append(f.dirs, dir)
	return &media.Upload{Name: dir + "/abc_" + file.Filename, ResourceType: media.ResourceImage}, nil
}

func newService(t *testing.T) (*Service, *database.MemoryStore, *fakeMedia) {
	t.Helper()
	store := database.NewMemoryStore()
	fm := &fakeMedia{}
	s := NewService(store, fm, NewTokenIssuer("test-secret", time.Hour))
	s.cost = bcrypt.MinCost
	return s, store, fm
}

func signup(name, username, pw string) SignupInput {
	return SignupInput{Name: name, Username: username, Password1: pw, Password2: pw}
}

func TestSignupValidation(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   SignupInput
		want error
	}{
		{"missing name", signup("", "alice", "password1"), ErrMissingFields},
		{"blank username", signup("Alice", "   ", "password1"), ErrMissingFields},
		{"mismatch", SignupInput{Name: "Alice", Username: "alice", Password1: "password1", Password2: "password2"}, ErrPasswordMismatch},
		{"short", signup("Alice", "alice", "short"), ErrPasswordTooShort},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Signup(ctx, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestSignupAndLogin(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()

	u, err := s.Signup(ctx, signup(" Alice ", "alice", "password1"))
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.DisplayName)
	assert.False(t, u.IsBusiness)
	assert.NotEqual(t, "password1", u.PasswordHash)

	_, err = s.Signup(ctx, signup("Other", "alice", "password1"))
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = s.Login(ctx, "alice", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Login(ctx, "nobody", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	sess, err := s.Login(ctx, "alice", "password1")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)

	got, err := s.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestBusinessSignup(t *testing.T) {
	s, _, _ := newService(t)
	u, err := s.BusinessSignup(context.Background(), signup("Joe's Garage", "joes", "password1"))
	require.NoError(t, err)
	assert.True(t, u.IsBusiness)
	assert.Equal(t, "Joe's Garage", u.Name())
}

func TestTokens(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute)
	token, _, err := issuer.Issue(42, "alice", true)
	require.NoError(t, err)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	id, _ := claims.UserID()
	assert.Equal(t, int64(42), id)
	assert.True(t, claims.Business)

	_, err = NewTokenIssuer("other", time.Minute).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	issuer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = issuer.Parse("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticate_DeletedUser(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()
	u, err := s.Signup(ctx, signup("Alice", "alice", "password1"))
	require.NoError(t, err)
	sess, err := s.Login(ctx, "alice", "password1")
	require.NoError(t, err)

	require.NoError(t, s.DeleteAccount(ctx, u.ID))
	_, err = s.Authenticate(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestUpdateProfile(t *testing.T) {
	s, store, fm := newService(t)
	ctx := context.Background()
	u, err := s.Signup(ctx, signup("Alice", "alice", "password1"))
	require.NoError(t, err)

	_, p, err := s.UpdateProfile(ctx, u.ID, ProfileInput{
		Email: "alice@example.com", Bio: "hi", Location: "Austin", Website: "https://a.example",
		Picture: &media.File{Filename: "me.png", Body: strings.NewReader("png")},
	})
	require.NoError(t, err)
	assert.Equal(t, "profiles/abc_me.png", p.PictureName)
	assert.Equal(t, []string{"profiles"}, fm.dirs)

	got, _ := store.GetUser(ctx, u.ID)
	assert.Equal(t, "Alice", got.DisplayName, "empty display name keeps the old one")
	assert.Equal(t, "alice@example.com", got.Email)

	_, p, err = s.UpdateProfile(ctx, u.ID, ProfileInput{DisplayName: "Ali"})
	require.NoError(t, err)
	assert.Empty(t, p.Bio, "bio is always replaced")
	assert.Equal(t, "profiles/abc_me.png", p.PictureName)
	got, _ = store.GetUser(ctx, u.ID)
	assert.Equal(t, "Ali", got.DisplayName)
	assert.Equal(t, "alice@example.com", got.Email)
}

func TestUpdateProfile_RejectsUnsafeEmail(t *testing.T) {
	s, store, _ := newService(t)
	ctx := context.Background()
	u, err := s.Signup(ctx, signup("Joe's Garage", "joes", "password1"))
	require.NoError(t, err)

	for _, email := range []string{
		"biz@example.com\r\nBcc: victim@evil.test",
		"biz@example.com\nBcc: victim@evil.test",
		"Joe <biz@example.com>",
		"not-an-email",
	} {
		_, _, err := s.UpdateProfile(ctx, u.ID, ProfileInput{Email: email, Bio: "changed"})
		assert.ErrorIs(t, err, ErrInvalidEmail, email)
	}

	got, _ := store.GetUser(ctx, u.ID)
	assert.Empty(t, got.Email)
	p, _ := store.GetOrCreateProfile(ctx, u.ID)
	assert.Empty(t, p.Bio, "nothing is saved when the email is rejected")
}

func TestDeleteAccount(t *testing.T) {
	s, store, _ := newService(t)
	ctx := context.Background()
	u, err := s.Signup(ctx, signup("Alice", "alice", "password1"))
	require.NoError(t, err)
	require.NoError(t, store.CreateStory(ctx, &database.Story{UserID: &u.ID, BusinessName: "B", Body: "x"}))

	require.NoError(t, s.DeleteAccount(ctx, u.ID))
	stories, _ := store.ListStoriesByUser(ctx, u.ID, 0)
	assert.Empty(t, stories)
	_, err = store.GetUser(ctx, u.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)
}
