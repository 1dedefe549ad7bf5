package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/plsfix/plsfix/internal/registry"
	"github.com/plsfix/plsfix/internal/session"
)

func newTestService(t *testing.T) (*Service, *registry.Store) {
	t.Helper()
	store := registry.OpenMemory(t)
	sessions := session.NewManager(time.Hour, zap.NewNop())
	t.Cleanup(sessions.Close)
	svc := New(store, sessions, "http://localhost:3001", "http://localhost:5173", 5*time.Second, zap.NewNop())
	return svc, store
}

func createLink(t *testing.T, store *registry.Store, targetURL string) string {
	t.Helper()
	link, err := store.CreateLink(context.Background(), registry.CreateLinkParams{
		TargetURL: targetURL,
		IsPublic:  true,
	})
	require.NoError(t, err)
	return link.ShortCode
}

func TestServePageInjectsOverlay(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head></head><body><a href="/about">About</a></body></html>`))
	}))
	t.Cleanup(upstream.Close)

	svc, store := newTestService(t)
	code := createLink(t, store, upstream.URL)

	rec := httptest.NewRecorder()
	svc.ServePage(rec, httptest.NewRequest(http.MethodGet, "/proxy/"+code, nil), code)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "window.__PLSFIX_CONFIG__")
	assert.Contains(t, body, upstream.URL+"/about", "relative links are rewritten absolute")
	assert.Less(t, strings.Index(body, "__PLSFIX_CONFIG__"), strings.Index(body, "</body>"),
		"overlay lands before the closing body tag")
	assert.Equal(t, "true", rec.Header().Get("X-PlsFix-Proxied"))
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestServePageNonHTMLPassesThrough(t *testing.T) {
	payload := []byte(`{"plain":"json"}`)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(payload)
	}))
	t.Cleanup(upstream.Close)

	svc, store := newTestService(t)
	code := createLink(t, store, upstream.URL)

	rec := httptest.NewRecorder()
	svc.ServePage(rec, httptest.NewRequest(http.MethodGet, "/", nil), code)

	assert.Equal(t, payload, rec.Body.Bytes(), "non-HTML bodies are untouched")
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestServePageUnknownCode(t *testing.T) {
	svc, _ := newTestService(t)
	rec := httptest.NewRecorder()
	svc.ServePage(rec, httptest.NewRequest(http.MethodGet, "/", nil), "nope")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Fixable link not found"}`, rec.Body.String())
}

func TestServePagePropagatesUpstreamStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	t.Cleanup(upstream.Close)

	svc, store := newTestService(t)
	code := createLink(t, store, upstream.URL)

	rec := httptest.NewRecorder()
	svc.ServePage(rec, httptest.NewRequest(http.MethodGet, "/", nil), code)
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestServeResource(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		w.Write([]byte("body { color: red }"))
	}))
	t.Cleanup(upstream.Close)

	svc, store := newTestService(t)
	code := createLink(t, store, upstream.URL)

	t.Run("missing url param", func(t *testing.T) {
		rec := httptest.NewRecorder()
		svc.ServeResource(rec, httptest.NewRequest(http.MethodGet, "/resource", nil), code)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("relays with long cache", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/resource?url="+upstream.URL+"/app.css", nil)
		svc.ServeResource(rec, req, code)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/css", rec.Header().Get("Content-Type"))
		assert.Equal(t, "public, max-age=31536000", rec.Header().Get("Cache-Control"))
		assert.Equal(t, "body { color: red }", rec.Body.String())
	})

	t.Run("unknown code", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/resource?url="+upstream.URL, nil)
		svc.ServeResource(rec, req, "nope")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestProbeTitle(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title> Acme Store </title></head><body></body></html>`))
	}))
	t.Cleanup(upstream.Close)

	svc, _ := newTestService(t)
	assert.Equal(t, "Acme Store", svc.ProbeTitle(context.Background(), upstream.URL))
	assert.Equal(t, "", svc.ProbeTitle(context.Background(), "http://127.0.0.1:0"))
}

func TestInjectBlockFallbacks(t *testing.T) {
	assert.Equal(t, "<body>hi<!--x--></body>", injectBlock("<body>hi</body>", "<!--x-->"))
	assert.Equal(t, "<html>hi<!--x--></html>", injectBlock("<html>hi</html>", "<!--x-->"))
	assert.Equal(t, "plain<!--x-->", injectBlock("plain", "<!--x-->"))
	assert.Equal(t, "<BODY>a<!--x--></BODY>", injectBlock("<BODY>a</BODY>", "<!--x-->"), "case-insensitive")
}
