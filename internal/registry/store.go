package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/plsfix/plsfix/pkg/models"
)

var (
	// ErrNotFound is returned when no record matches.
	ErrNotFound = errors.New("registry: not found")

	// ErrCodeExhausted is returned when short-code generation keeps
	// colliding past its retry budget. Creation fails rather than loops.
	ErrCodeExhausted = errors.New("registry: could not generate a unique short code")
)

// maxCodeAttempts bounds the collision-retry loop during link creation.
const maxCodeAttempts = 5

// Store gives access to the registry database.
type Store struct {
	db *sql.DB

	// genCode is swappable so tests can force collisions.
	genCode func() string
}

func newStore(db *sql.DB) *Store {
	return &Store{db: db, genCode: generateShortCode}
}

// CreateLinkParams carries the validated inputs for CreateLink.
type CreateLinkParams struct {
	TargetURL   string
	Title       *string
	Description *string
	CreatorID   *string
	ProjectID   *string
	Settings    json.RawMessage
	IsPublic    bool
}

// CreateLink inserts a link under a freshly generated unique short code.
func (s *Store) CreateLink(ctx context.Context, p CreateLinkParams) (*models.FixableLink, error) {
	code, err := s.uniqueShortCode(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	link := &models.FixableLink{
		ID:          uuid.New().String(),
		ShortCode:   code,
		TargetURL:   p.TargetURL,
		Title:       p.Title,
		Description: p.Description,
		CreatorID:   p.CreatorID,
		ProjectID:   p.ProjectID,
		Settings:    p.Settings,
		IsPublic:    p.IsPublic,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fixable_links
			(id, short_code, target_url, title, description, creator_id, project_id, settings, is_public, view_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		link.ID, link.ShortCode, link.TargetURL, link.Title, link.Description,
		link.CreatorID, link.ProjectID, nullableJSON(link.Settings), link.IsPublic,
		link.CreatedAt, link.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("registry: create link: %w", err)
	}

	return s.GetByCode(ctx, code)
}

func (s *Store) uniqueShortCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := s.genCode()
		var one int
		err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM fixable_links WHERE short_code = ?`, code).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("registry: short code lookup: %w", err)
		}
	}
	return "", ErrCodeExhausted
}

const linkColumns = `
	l.id, l.short_code, l.target_url, l.title, l.description,
	l.creator_id, l.project_id, l.settings, l.is_public, l.view_count,
	l.created_at, l.updated_at,
	u.id, u.username, u.avatar_url,
	p.id, p.repo_full_name, p.repo_name, p.default_branch`

const linkJoins = `
	FROM fixable_links l
	LEFT JOIN users u ON u.id = l.creator_id
	LEFT JOIN projects p ON p.id = l.project_id`

// GetByCode fetches one link with its creator and project summaries.
func (s *Store) GetByCode(ctx context.Context, shortCode string) (*models.FixableLink, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT`+linkColumns+linkJoins+` WHERE l.short_code = ?`, shortCode)
	link, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry: get link: %w", err)
	}
	return link, nil
}

// ListByCreator returns the user's links, newest first.
func (s *Store) ListByCreator(ctx context.Context, userID string) ([]*models.FixableLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT`+linkColumns+linkJoins+` WHERE l.creator_id = ? ORDER BY l.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("registry: list links: %w", err)
	}
	defer rows.Close()

	links := make([]*models.FixableLink, 0)
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("registry: list links: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// UpdateLink applies the non-nil fields of req and returns the fresh record.
func (s *Store) UpdateLink(ctx context.Context, shortCode string, req models.UpdateLinkRequest) (*models.FixableLink, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if req.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *req.Title)
	}
	if req.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *req.Description)
	}
	if req.ProjectID != nil {
		sets = append(sets, "project_id = ?")
		args = append(args, *req.ProjectID)
	}
	if req.Settings != nil {
		sets = append(sets, "settings = ?")
		args = append(args, string(req.Settings))
	}
	if req.IsPublic != nil {
		sets = append(sets, "is_public = ?")
		args = append(args, *req.IsPublic)
	}
	args = append(args, shortCode)

	res, err := s.db.ExecContext(ctx,
		`UPDATE fixable_links SET `+strings.Join(sets, ", ")+` WHERE short_code = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("registry: update link: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetByCode(ctx, shortCode)
}

// DeleteLink removes a link.
func (s *Store) DeleteLink(ctx context.Context, shortCode string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM fixable_links WHERE short_code = ?`, shortCode)
	if err != nil {
		return fmt.Errorf("registry: delete link: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementViews bumps the view counter. Best-effort at call sites; callers
// fire it without blocking the response.
func (s *Store) IncrementViews(ctx context.Context, shortCode string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE fixable_links SET view_count = view_count + 1 WHERE short_code = ?`, shortCode)
	if err != nil {
		return fmt.Errorf("registry: increment views: %w", err)
	}
	return nil
}

// CreateUser inserts a user account.
func (s *Store) CreateUser(ctx context.Context, username string, avatarURL *string) (*models.User, error) {
	u := &models.User{
		ID:        uuid.New().String(),
		Username:  username,
		AvatarURL: avatarURL,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, avatar_url, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Username, u.AvatarURL, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("registry: create user: %w", err)
	}
	return u, nil
}

// CreateAuthSession mints a bearer token for the user.
func (s *Store) CreateAuthSession(ctx context.Context, userID string) (string, error) {
	token := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO auth_sessions (token, user_id, created_at) VALUES (?, ?, ?)`,
		token, userID, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("registry: create auth session: %w", err)
	}
	return token, nil
}

// UserByToken resolves a bearer token to its user.
func (s *Store) UserByToken(ctx context.Context, token string) (*models.User, error) {
	u := &models.User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.avatar_url
		FROM auth_sessions a JOIN users u ON u.id = a.user_id
		WHERE a.token = ?`, token).Scan(&u.ID, &u.Username, &u.AvatarURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry: user by token: %w", err)
	}
	return u, nil
}

// CreateProject inserts a project record.
func (s *Store) CreateProject(ctx context.Context, repoFullName, defaultBranch string) (*models.ProjectSummary, error) {
	repoName := repoFullName
	if i := strings.LastIndex(repoFullName, "/"); i >= 0 {
		repoName = repoFullName[i+1:]
	}
	p := &models.ProjectSummary{
		ID:            uuid.New().String(),
		RepoFullName:  repoFullName,
		RepoName:      repoName,
		DefaultBranch: defaultBranch,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, repo_full_name, repo_name, default_branch, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.RepoFullName, p.RepoName, p.DefaultBranch, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("registry: create project: %w", err)
	}
	return p, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLink(row scanner) (*models.FixableLink, error) {
	var (
		link        models.FixableLink
		settings    sql.NullString
		creatorID   sql.NullString
		creatorName sql.NullString
		creatorAva  sql.NullString
		projID      sql.NullString
		projFull    sql.NullString
		projName    sql.NullString
		projBranch  sql.NullString
	)

	err := row.Scan(
		&link.ID, &link.ShortCode, &link.TargetURL, &link.Title, &link.Description,
		&link.CreatorID, &link.ProjectID, &settings, &link.IsPublic, &link.ViewCount,
		&link.CreatedAt, &link.UpdatedAt,
		&creatorID, &creatorName, &creatorAva,
		&projID, &projFull, &projName, &projBranch,
	)
	if err != nil {
		return nil, err
	}

	if settings.Valid {
		link.Settings = json.RawMessage(settings.String)
	}
	if creatorID.Valid {
		link.Creator = &models.CreatorSummary{
			ID:       creatorID.String,
			Username: creatorName.String,
		}
		if creatorAva.Valid {
			v := creatorAva.String
			link.Creator.AvatarURL = &v
		}
	}
	if projID.Valid {
		link.Project = &models.ProjectSummary{
			ID:            projID.String,
			RepoFullName:  projFull.String,
			RepoName:      projName.String,
			DefaultBranch: projBranch.String,
		}
	}
	return &link, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
