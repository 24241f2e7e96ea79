package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/arecko/backend/internal/reputation"
)

// ============================================================================
// POSTGRES STORE
// ============================================================================

// PostgresStore implements Store on PostgreSQL via lib/pq.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens and pings the database. When migrate is true the
// embedded schema migrations are applied before returning.
func NewPostgresStore(ctx context.Context, dsn string, migrate bool) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if migrate {
		if err := Migrate(db); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &PostgresStore{db: db}, nil
}

// DB returns the underlying pool.
func (p *PostgresStore) DB() *sql.DB { return p.db }

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *PostgresStore) Close() error { return p.db.Close() }

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ============================================================================
// USERS & PROFILES
// ============================================================================

const userColumns = `id, username, display_name, email, password_hash, is_business, is_superuser, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	u := &User{}
	if err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Email, &u.PasswordHash,
		&u.IsBusiness, &u.IsSuperuser, &u.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (p *PostgresStore) CreateUser(ctx context.Context, u *User) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (username, display_name, email, password_hash, is_business, is_superuser)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		u.Username, u.DisplayName, u.Email, u.PasswordHash, u.IsBusiness, u.IsSuperuser,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("username %q: %w", u.Username, ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO profiles (user_id) VALUES ($1)`, u.ID); err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return tx.Commit()
}

func (p *PostgresStore) GetUser(ctx context.Context, id int64) (*User, error) {
	return scanUser(p.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (p *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(p.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(username) = LOWER($1)`, username))
}

func (p *PostgresStore) UpdateUser(ctx context.Context, u *User) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE users SET display_name = $2, email = $3, password_hash = $4,
		       is_business = $5, is_superuser = $6
		WHERE id = $1`,
		u.ID, u.DisplayName, u.Email, u.PasswordHash, u.IsBusiness, u.IsSuperuser)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return affected(res)
}

// DeleteUser relies on ON DELETE CASCADE for owned rows.
func (p *PostgresStore) DeleteUser(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return affected(res)
}

// FindBusinesses matches name as a literal, case-insensitive substring, so
// % and _ are not wildcards.
func (p *PostgresStore) FindBusinesses(ctx context.Context, name string) ([]*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE is_business
		  AND (strpos(lower(display_name), lower($1)) > 0 OR strpos(lower(username), lower($1)) > 0)
		ORDER BY id`, name)
	if err != nil {
		return nil, fmt.Errorf("find businesses: %w", err)
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetOrCreateProfile(ctx context.Context, userID int64) (*Profile, error) {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ensure profile: %w", err)
	}

	pr := &Profile{UserID: userID}
	err = p.db.QueryRowContext(ctx,
		`SELECT bio, location, website, picture_name FROM profiles WHERE user_id = $1`, userID,
	).Scan(&pr.Bio, &pr.Location, &pr.Website, &pr.PictureName)
	if err != nil {
		return nil, notFound(err)
	}
	return pr, nil
}

func (p *PostgresStore) UpdateProfile(ctx context.Context, pr *Profile) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE profiles SET bio = $2, location = $3, website = $4, picture_name = $5
		WHERE user_id = $1`,
		pr.UserID, pr.Bio, pr.Location, pr.Website, pr.PictureName)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return affected(res)
}

// ============================================================================
// STORIES
// ============================================================================

const storyColumns = `id, user_id, guest_name, business_name, industry, body, contact_info,
	media_name, thumbnail_name, created_at, is_verified, verified_by, verified_at`

func scanStory(row rowScanner) (*Story, error) {
	var (
		s          Story
		userID     sql.NullInt64
		verifiedBy sql.NullInt64
		verifiedAt sql.NullTime
	)
	if err := row.Scan(&s.ID, &userID, &s.GuestName, &s.BusinessName, &s.Industry, &s.Body,
		&s.ContactInfo, &s.MediaName, &s.ThumbnailName, &s.CreatedAt, &s.Verified,
		&verifiedBy, &verifiedAt); err != nil {
		return nil, notFound(err)
	}
	if userID.Valid {
		s.UserID = &userID.Int64
	}
	if verifiedBy.Valid {
		s.VerifiedBy = &verifiedBy.Int64
	}
	if verifiedAt.Valid {
		s.VerifiedAt = &verifiedAt.Time
	}
	return &s, nil
}

func (p *PostgresStore) queryStories(ctx context.Context, query string, args ...any) ([]*Story, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stories: %w", err)
	}
	defer rows.Close()

	out := []*Story{}
	for rows.Next() {
		s, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CreateStory(ctx context.Context, s *Story) error {
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO stories (user_id, guest_name, business_name, industry, body, contact_info,
		                     media_name, thumbnail_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		s.UserID, s.GuestName, s.BusinessName, s.Industry, s.Body, s.ContactInfo,
		s.MediaName, s.ThumbnailName,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert story: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetStory(ctx context.Context, id int64) (*Story, error) {
	return scanStory(p.db.QueryRowContext(ctx,
		`SELECT `+storyColumns+` FROM stories WHERE id = $1`, id))
}

func (p *PostgresStore) ListStories(ctx context.Context, offset, limit int) ([]*Story, int, error) {
	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stories`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count stories: %w", err)
	}
	out, err := p.queryStories(ctx, `
		SELECT `+storyColumns+` FROM stories
		ORDER BY created_at DESC, id DESC
		OFFSET $1 LIMIT $2`, offset, limit)
	return out, total, err
}

func (p *PostgresStore) ListStoriesByUser(ctx context.Context, userID int64, limit int) ([]*Story, error) {
	if limit <= 0 {
		return p.queryStories(ctx, `
			SELECT `+storyColumns+` FROM stories WHERE user_id = $1
			ORDER BY created_at DESC, id DESC`, userID)
	}
	return p.queryStories(ctx, `
		SELECT `+storyColumns+` FROM stories WHERE user_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit)
}

func (p *PostgresStore) ListStoriesForBusiness(ctx context.Context, name string, verified bool) ([]*Story, error) {
	order := `created_at DESC, id DESC`
	if verified {
		order = `verified_at DESC, id DESC`
	}
	return p.queryStories(ctx, `
		SELECT `+storyColumns+` FROM stories
		WHERE strpos(lower(business_name), lower($1)) > 0 AND is_verified = $2
		ORDER BY `+order, name, verified)
}

func (p *PostgresStore) MarkVerified(ctx context.Context, storyID, verifierID int64, at time.Time) (*Story, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `
		UPDATE stories SET is_verified = TRUE, verified_by = $2, verified_at = $3
		WHERE id = $1 AND NOT is_verified`, storyID, verifierID, at)
	if err != nil {
		return nil, fmt.Errorf("verify story: %w", err)
	}
	return p.GetStory(ctx, storyID)
}

func (p *PostgresStore) DeleteStory(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM stories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete story: %w", err)
	}
	return affected(res)
}

func (p *PostgresStore) DeleteStoriesByUser(ctx context.Context, userID int64) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM stories WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete stories: %w", err)
	}
	return nil
}

// ============================================================================
// VERIFIED COUNTS (reputation.VerifiedCounter)
// ============================================================================

func (p *PostgresStore) CountVerified(ctx context.Context, userID int64, scope reputation.Scope) (int, error) {
	query := `SELECT COUNT(*) FROM stories WHERE user_id = $1 AND is_verified`
	args := []any{userID}
	if scope.BusinessName != "" {
		args = append(args, scope.BusinessName)
		query += fmt.Sprintf(` AND LOWER(business_name) = LOWER($%d)`, len(args))
	}
	if scope.Industry != "" {
		args = append(args, scope.Industry)
		query += fmt.Sprintf(` AND industry = $%d`, len(args))
	}

	var n int
	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count verified: %w", err)
	}
	return n, nil
}

func (p *PostgresStore) distinct(ctx context.Context, column string, userID int64) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT `+column+` FROM stories
		WHERE user_id = $1 AND is_verified
		ORDER BY 1`, userID)
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", column, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (p *PostgresStore) VerifiedBusinesses(ctx context.Context, userID int64) ([]string, error) {
	return p.distinct(ctx, "business_name", userID)
}

func (p *PostgresStore) VerifiedIndustries(ctx context.Context, userID int64) ([]string, error) {
	return p.distinct(ctx, "industry", userID)
}

// ============================================================================
// COMMENTS & REACTIONS
// ============================================================================

func (p *PostgresStore) AddComment(ctx context.Context, c *Comment) error {
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO comments (story_id, user_id, text) VALUES ($1, $2, $3)
		RETURNING id, created_at`, c.StoryID, c.UserID, c.Text,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListComments(ctx context.Context, storyID int64) ([]*Comment, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, story_id, user_id, text, created_at FROM comments
		WHERE story_id = $1 ORDER BY id`, storyID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var out []*Comment
	for rows.Next() {
		c := &Comment{}
		if err := rows.Scan(&c.ID, &c.StoryID, &c.UserID, &c.Text, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetReaction(ctx context.Context, storyID, userID int64) (*Reaction, error) {
	r := &Reaction{StoryID: storyID, UserID: userID}
	err := p.db.QueryRowContext(ctx, `
		SELECT reaction_type, created_at FROM reactions WHERE story_id = $1 AND user_id = $2`,
		storyID, userID).Scan(&r.Type, &r.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

func (p *PostgresStore) UpsertReaction(ctx context.Context, r *Reaction) error {
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO reactions (story_id, user_id, reaction_type) VALUES ($1, $2, $3)
		ON CONFLICT (story_id, user_id) DO UPDATE SET reaction_type = EXCLUDED.reaction_type
		RETURNING created_at`, r.StoryID, r.UserID, r.Type).Scan(&r.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("upsert reaction: %w", err)
	}
	return nil
}

func (p *PostgresStore) DeleteReaction(ctx context.Context, storyID, userID int64) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM reactions WHERE story_id = $1 AND user_id = $2`, storyID, userID)
	if err != nil {
		return fmt.Errorf("delete reaction: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListReactions(ctx context.Context, storyID int64) ([]*Reaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT story_id, user_id, reaction_type, created_at FROM reactions
		WHERE story_id = $1 ORDER BY user_id`, storyID)
	if err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	defer rows.Close()

	var out []*Reaction
	for rows.Next() {
		r := &Reaction{}
		if err := rows.Scan(&r.StoryID, &r.UserID, &r.Type, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ============================================================================
// REFERRAL REQUESTS & API KEYS
// ============================================================================

func (p *PostgresStore) CreateReferralRequest(ctx context.Context, r *ReferralRequest) error {
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO referral_requests (business_user_id, customer_email) VALUES ($1, $2)
		RETURNING id, created_at`, r.BusinessUserID, r.CustomerEmail).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert referral request: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListReferralRequests(ctx context.Context, businessUserID int64) ([]*ReferralRequest, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, business_user_id, customer_email, created_at FROM referral_requests
		WHERE business_user_id = $1 ORDER BY id DESC`, businessUserID)
	if err != nil {
		return nil, fmt.Errorf("list referral requests: %w", err)
	}
	defer rows.Close()

	var out []*ReferralRequest
	for rows.Next() {
		r := &ReferralRequest{}
		if err := rows.Scan(&r.ID, &r.BusinessUserID, &r.CustomerEmail, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) getAPIKey(ctx context.Context, where string, arg any) (*APIKey, error) {
	k := &APIKey{}
	err := p.db.QueryRowContext(ctx,
		`SELECT user_id, key, created_at FROM api_keys WHERE `+where+` = $1`, arg,
	).Scan(&k.UserID, &k.Key, &k.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return k, nil
}

func (p *PostgresStore) GetAPIKeyByUser(ctx context.Context, userID int64) (*APIKey, error) {
	return p.getAPIKey(ctx, "user_id", userID)
}

func (p *PostgresStore) GetAPIKey(ctx context.Context, key string) (*APIKey, error) {
	return p.getAPIKey(ctx, "key", key)
}

func (p *PostgresStore) SaveAPIKey(ctx context.Context, k *APIKey) error {
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO api_keys (user_id, key) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET key = EXCLUDED.key, created_at = NOW()
		RETURNING created_at`, k.UserID, k.Key).Scan(&k.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("save api key: %w", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
var _ Store = (*MemoryStore)(nil)
