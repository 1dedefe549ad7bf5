package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plsfix/plsfix/pkg/models"
)

func str(s string) *string { return &s }

func TestCreateLinkGeneratesUniqueCodes(t *testing.T) {
	store := OpenMemory(t)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		link, err := store.CreateLink(ctx, CreateLinkParams{
			TargetURL: "https://example.com",
			IsPublic:  true,
		})
		require.NoError(t, err)
		require.Len(t, link.ShortCode, 6)
		assert.False(t, seen[link.ShortCode], "duplicate short code %q", link.ShortCode)
		seen[link.ShortCode] = true
	}
}

func TestCreateLinkFailsAfterRetryBudget(t *testing.T) {
	store := OpenMemory(t)
	ctx := context.Background()

	// Force every generated code to collide with the first link.
	store.genCode = func() string { return "stuck1" }

	_, err := store.CreateLink(ctx, CreateLinkParams{TargetURL: "https://a.example"})
	require.NoError(t, err)

	_, err = store.CreateLink(ctx, CreateLinkParams{TargetURL: "https://b.example"})
	require.ErrorIs(t, err, ErrCodeExhausted)
}

func TestGetByCodeJoinsCreatorAndProject(t *testing.T) {
	store := OpenMemory(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, "dana", str("https://avatars.example/dana.png"))
	require.NoError(t, err)
	project, err := store.CreateProject(ctx, "dana/storefront", "main")
	require.NoError(t, err)

	created, err := store.CreateLink(ctx, CreateLinkParams{
		TargetURL: "https://storefront.example",
		Title:     str("Storefront"),
		CreatorID: &user.ID,
		ProjectID: &project.ID,
		Settings:  []byte(`{"theme":"dark"}`),
		IsPublic:  true,
	})
	require.NoError(t, err)

	got, err := store.GetByCode(ctx, created.ShortCode)
	require.NoError(t, err)
	require.NotNil(t, got.Creator)
	assert.Equal(t, "dana", got.Creator.Username)
	require.NotNil(t, got.Creator.AvatarURL)
	require.NotNil(t, got.Project)
	assert.Equal(t, "storefront", got.Project.RepoName)
	assert.Equal(t, "dana/storefront", got.Project.RepoFullName)
	assert.JSONEq(t, `{"theme":"dark"}`, string(got.Settings))
}

func TestGetByCodeNotFound(t *testing.T) {
	store := OpenMemory(t)
	_, err := store.GetByCode(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListByCreatorNewestFirst(t *testing.T) {
	store := OpenMemory(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, "lee", nil)
	require.NoError(t, err)

	first, err := store.CreateLink(ctx, CreateLinkParams{TargetURL: "https://one.example", CreatorID: &user.ID})
	require.NoError(t, err)
	second, err := store.CreateLink(ctx, CreateLinkParams{TargetURL: "https://two.example", CreatorID: &user.ID})
	require.NoError(t, err)

	// Force a strict ordering; same-millisecond inserts tie on created_at.
	_, err = store.db.ExecContext(ctx,
		`UPDATE fixable_links SET created_at = ? WHERE id = ?`,
		time.Now().UTC().Add(time.Minute), second.ID)
	require.NoError(t, err)

	links, err := store.ListByCreator(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, second.ID, links[0].ID)
	assert.Equal(t, first.ID, links[1].ID)

	other, err := store.ListByCreator(ctx, "no-such-user")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestUpdateLinkPartial(t *testing.T) {
	store := OpenMemory(t)
	ctx := context.Background()

	created, err := store.CreateLink(ctx, CreateLinkParams{
		TargetURL: "https://example.com",
		Title:     str("before"),
		IsPublic:  true,
	})
	require.NoError(t, err)

	hidden := false
	updated, err := store.UpdateLink(ctx, created.ShortCode, models.UpdateLinkRequest{
		Title:    str("after"),
		IsPublic: &hidden,
	})
	require.NoError(t, err)
	assert.Equal(t, "after", *updated.Title)
	assert.False(t, updated.IsPublic)
	assert.Equal(t, "https://example.com", updated.TargetURL, "untouched fields survive")

	_, err = store.UpdateLink(ctx, "missing", models.UpdateLinkRequest{Title: str("x")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteLink(t *testing.T) {
	store := OpenMemory(t)
	ctx := context.Background()

	created, err := store.CreateLink(ctx, CreateLinkParams{TargetURL: "https://example.com"})
	require.NoError(t, err)

	require.NoError(t, store.DeleteLink(ctx, created.ShortCode))
	_, err = store.GetByCode(ctx, created.ShortCode)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.DeleteLink(ctx, created.ShortCode), ErrNotFound)
}

func TestIncrementViews(t *testing.T) {
	store := OpenMemory(t)
	ctx := context.Background()

	created, err := store.CreateLink(ctx, CreateLinkParams{TargetURL: "https://example.com"})
	require.NoError(t, err)
	assert.EqualValues(t, 0, created.ViewCount)

	require.NoError(t, store.IncrementViews(ctx, created.ShortCode))
	require.NoError(t, store.IncrementViews(ctx, created.ShortCode))

	got, err := store.GetByCode(ctx, created.ShortCode)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.ViewCount)
}

func TestUserByToken(t *testing.T) {
	store := OpenMemory(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, "sam", nil)
	require.NoError(t, err)
	token, err := store.CreateAuthSession(ctx, user.ID)
	require.NoError(t, err)

	got, err := store.UserByToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = store.UserByToken(ctx, "bogus")
	assert.ErrorIs(t, err, ErrNotFound)
}
