package models

import (
	"encoding/json"
	"time"
)

// User is an account that can own fixable links.
type User struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	Name      string  `json:"name,omitempty"`
	Email     *string `json:"email,omitempty"`
	AvatarURL *string `json:"avatarUrl"`
}

// CreatorSummary is the slice of a user embedded in link responses.
type CreatorSummary struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	AvatarURL *string `json:"avatarUrl"`
}

// ProjectSummary is the slice of a project embedded in link responses.
type ProjectSummary struct {
	ID            string `json:"id"`
	RepoFullName  string `json:"repoFullName"`
	RepoName      string `json:"repoName"`
	DefaultBranch string `json:"defaultBranch,omitempty"`
}

// FixableLink maps a short code to a target URL plus edit settings.
type FixableLink struct {
	ID          string          `json:"id"`
	ShortCode   string          `json:"shortCode"`
	TargetURL   string          `json:"targetUrl"`
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	CreatorID   *string         `json:"creatorId"`
	ProjectID   *string         `json:"projectId"`
	Settings    json.RawMessage `json:"settings"`
	IsPublic    bool            `json:"isPublic"`
	ViewCount   int64           `json:"viewCount"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`

	Creator *CreatorSummary `json:"creator,omitempty"`
	Project *ProjectSummary `json:"project,omitempty"`
}

// CreateLinkRequest is the payload for creating a fixable link.
type CreateLinkRequest struct {
	TargetURL   string          `json:"targetUrl"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	ProjectID   string          `json:"projectId,omitempty"`
	Settings    json.RawMessage `json:"settings,omitempty"`
	IsPublic    *bool           `json:"isPublic,omitempty"`
}

// UpdateLinkRequest is a partial update; nil fields are left untouched.
type UpdateLinkRequest struct {
	Title       *string         `json:"title,omitempty"`
	Description *string         `json:"description,omitempty"`
	ProjectID   *string         `json:"projectId,omitempty"`
	Settings    json.RawMessage `json:"settings,omitempty"`
	IsPublic    *bool           `json:"isPublic,omitempty"`
}
