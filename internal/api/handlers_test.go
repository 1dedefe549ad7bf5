package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/plsfix/plsfix/internal/bus"
	"github.com/plsfix/plsfix/internal/proxy"
	"github.com/plsfix/plsfix/internal/ratelimit"
	"github.com/plsfix/plsfix/internal/registry"
	"github.com/plsfix/plsfix/internal/session"
	"github.com/plsfix/plsfix/pkg/models"
)

func newTestRouter(t *testing.T) (*mux.Router, *registry.Store) {
	t.Helper()
	log := zap.NewNop()
	store := registry.OpenMemory(t)
	sessions := session.NewManager(time.Hour, log)
	t.Cleanup(sessions.Close)
	proxySvc := proxy.New(store, sessions, "http://localhost:3001", "http://localhost:5173", 2*time.Second, log)
	h := NewHandler(store, proxySvc, sessions, bus.NewHub(log), log)
	return h.SetupRoutes(store, ratelimit.NewLimiter(1000, 1000), 1000), store
}

func authedUser(t *testing.T, store *registry.Store) (*models.User, string) {
	t.Helper()
	user, err := store.CreateUser(context.Background(), "dana", nil)
	require.NoError(t, err)
	token, err := store.CreateAuthSession(context.Background(), user.ID)
	require.NoError(t, err)
	return user, token
}

func doJSON(router *mux.Router, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateLinkValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(router, http.MethodPost, "/api/links", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(router, http.MethodPost, "/api/links", "", map[string]string{"targetUrl": "not a url"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid URL format")
}

func TestCreateLinkDefaultsTitleToHostname(t *testing.T) {
	router, _ := newTestRouter(t)

	// The host is unreachable so the title probe yields nothing.
	rec := doJSON(router, http.MethodPost, "/api/links", "", map[string]string{
		"targetUrl": "http://title-probe.invalid/page",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var link models.FixableLink
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &link))
	require.NotNil(t, link.Title)
	assert.Equal(t, "title-probe.invalid", *link.Title)
	assert.NotEmpty(t, link.ShortCode)
	assert.True(t, link.IsPublic)
	assert.Nil(t, link.CreatorID, "anonymous creation leaves no owner")
}

func TestCreateLinkRecordsAuthenticatedCreator(t *testing.T) {
	router, store := newTestRouter(t)
	user, token := authedUser(t, store)

	rec := doJSON(router, http.MethodPost, "/api/links", token, map[string]string{
		"targetUrl": "http://example.invalid",
		"title":     "Mine",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var link models.FixableLink
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &link))
	require.NotNil(t, link.CreatorID)
	assert.Equal(t, user.ID, *link.CreatorID)
	require.NotNil(t, link.Creator)
	assert.Equal(t, "dana", link.Creator.Username)
}

func TestGetLinkCountsViews(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(router, http.MethodPost, "/api/links", "", map[string]string{
		"targetUrl": "http://example.invalid", "title": "t",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var link models.FixableLink
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &link))

	doJSON(router, http.MethodGet, "/api/links/"+link.ShortCode, "", nil)
	rec = doJSON(router, http.MethodGet, "/api/links/"+link.ShortCode, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The second response reports the first fetch's view.
	var got models.FixableLink
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.EqualValues(t, 1, got.ViewCount)

	rec = doJSON(router, http.MethodGet, "/api/links/zzzzzz", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListLinksRequiresAuth(t *testing.T) {
	router, store := newTestRouter(t)

	rec := doJSON(router, http.MethodGet, "/api/links", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	_, token := authedUser(t, store)
	doJSON(router, http.MethodPost, "/api/links", token, map[string]string{
		"targetUrl": "http://example.invalid", "title": "t",
	})

	rec = doJSON(router, http.MethodGet, "/api/links", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var links []models.FixableLink
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &links))
	assert.Len(t, links, 1)
}

func TestOwnershipEnforcement(t *testing.T) {
	router, store := newTestRouter(t)
	_, ownerToken := authedUser(t, store)

	intruder, err := store.CreateUser(context.Background(), "mallory", nil)
	require.NoError(t, err)
	intruderToken, err := store.CreateAuthSession(context.Background(), intruder.ID)
	require.NoError(t, err)

	rec := doJSON(router, http.MethodPost, "/api/links", ownerToken, map[string]string{
		"targetUrl": "http://example.invalid", "title": "owned",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var link models.FixableLink
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &link))

	t.Run("stranger cannot update", func(t *testing.T) {
		rec := doJSON(router, http.MethodPatch, "/api/links/"+link.ShortCode, intruderToken,
			map[string]string{"title": "stolen"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("anonymous cannot delete", func(t *testing.T) {
		rec := doJSON(router, http.MethodDelete, "/api/links/"+link.ShortCode, "", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("owner can update and delete", func(t *testing.T) {
		rec := doJSON(router, http.MethodPatch, "/api/links/"+link.ShortCode, ownerToken,
			map[string]string{"title": "renamed"})
		require.Equal(t, http.StatusOK, rec.Code)
		var updated models.FixableLink
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
		assert.Equal(t, "renamed", *updated.Title)

		rec = doJSON(router, http.MethodDelete, "/api/links/"+link.ShortCode, ownerToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	})
}

func TestAnonymousLinkEditableByAnyone(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(router, http.MethodPost, "/api/links", "", map[string]string{
		"targetUrl": "http://example.invalid", "title": "nobody's",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var link models.FixableLink
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &link))

	rec = doJSON(router, http.MethodPatch, "/api/links/"+link.ShortCode, "",
		map[string]string{"title": "adopted"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateLinkRateLimited(t *testing.T) {
	log := zap.NewNop()
	store := registry.OpenMemory(t)
	sessions := session.NewManager(time.Hour, log)
	t.Cleanup(sessions.Close)
	proxySvc := proxy.New(store, sessions, "", "", 2*time.Second, log)
	h := NewHandler(store, proxySvc, sessions, bus.NewHub(log), log)
	router := h.SetupRoutes(store, ratelimit.NewLimiter(1, 1), 1)

	body := map[string]string{"targetUrl": "http://example.invalid", "title": "t"}
	rec := doJSON(router, http.MethodPost, "/api/links", "", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(router, http.MethodPost, "/api/links", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(router, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
