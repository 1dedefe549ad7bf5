// Package proxy serves third-party pages through our origin with the editing
// overlay spliced in, and relays same-site resources for them.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/plsfix/plsfix/internal/assets"
	"github.com/plsfix/plsfix/internal/registry"
	"github.com/plsfix/plsfix/internal/rewrite"
	"github.com/plsfix/plsfix/internal/session"
)

const (
	// Browser-like headers keep upstream sites from serving bot walls.
	userAgent  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	acceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	acceptLang = "en-US,en;q=0.5"
)

// CDNs commonly referenced by pages beyond their own origin. Off-list
// resources are logged, not blocked.
var allowedCDNs = []string{
	"https://cdnjs.cloudflare.com",
	"https://unpkg.com",
	"https://cdn.jsdelivr.net",
	"https://fonts.googleapis.com",
	"https://fonts.gstatic.com",
}

var (
	bodyCloseRe = regexp.MustCompile(`(?i)</body>`)
	htmlCloseRe = regexp.MustCompile(`(?i)</html>`)
)

// Service fetches target pages, rewrites them and injects the editor shim.
type Service struct {
	store    *registry.Store
	sessions *session.Manager
	client   *http.Client
	log      *zap.Logger

	apiURL    string
	webappURL string
}

// New creates the proxy service. The HTTP client gets a hard timeout and no
// retries; a slow or failing upstream surfaces to the visitor as-is.
func New(store *registry.Store, sessions *session.Manager, apiURL, webappURL string, fetchTimeout time.Duration, log *zap.Logger) *Service {
	return &Service{
		store:     store,
		sessions:  sessions,
		client:    &http.Client{Timeout: fetchTimeout},
		log:       log,
		apiURL:    apiURL,
		webappURL: webappURL,
	}
}

// ServePage proxies the link's target page with the overlay injected.
func (s *Service) ServePage(w http.ResponseWriter, r *http.Request, shortCode string) {
	link, err := s.store.GetByCode(r.Context(), shortCode)
	if errors.Is(err, registry.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "Fixable link not found")
		return
	}
	if err != nil {
		s.log.Error("link lookup failed", zap.String("shortCode", shortCode), zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "Failed to load page")
		return
	}

	// Count the visit without blocking the response.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.IncrementViews(ctx, shortCode); err != nil {
			s.log.Warn("view count update failed", zap.String("shortCode", shortCode), zap.Error(err))
		}
	}()

	resp, err := s.fetch(r.Context(), link.TargetURL, "")
	if err != nil {
		s.log.Error("target fetch failed", zap.String("targetUrl", link.TargetURL), zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "Failed to load page")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		http.Error(w, fmt.Sprintf("Failed to fetch target page: %s", resp.Status), resp.StatusCode)
		return
	}

	contentType := resp.Header.Get("Content-Type")
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		s.log.Error("target read failed", zap.String("targetUrl", link.TargetURL), zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "Failed to load page")
		return
	}

	// Non-HTML targets pass through byte for byte.
	if !strings.Contains(contentType, "text/html") {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.Write(body)
		return
	}

	html, err := rewrite.Rewrite(string(body), link.TargetURL)
	if err != nil {
		s.log.Error("rewrite failed", zap.String("targetUrl", link.TargetURL), zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "Failed to load page")
		return
	}

	edit := s.sessions.Create(shortCode, link.TargetURL)
	block, err := assets.InjectionBlock(assets.Config{
		ShortCode: shortCode,
		SessionID: edit.ID,
		APIURL:    s.apiURL,
		WebappURL: s.webappURL,
		WSPath:    "/proxy/" + shortCode + "/ws",
		IsProxied: true,
	})
	if err != nil {
		s.log.Error("injection block build failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "Failed to load page")
		return
	}
	html = injectBlock(html, block)

	// These would stop the page from running under our origin.
	w.Header().Del("X-Frame-Options")
	w.Header().Del("Content-Security-Policy")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-PlsFix-Proxied", "true")
	io.WriteString(w, html)
}

// ServeResource relays one asset (CSS, JS, image) for a proxied page.
func (s *Service) ServeResource(w http.ResponseWriter, r *http.Request, shortCode string) {
	resourceURL := r.URL.Query().Get("url")
	if resourceURL == "" {
		writeJSONError(w, http.StatusBadRequest, "Resource URL required")
		return
	}

	link, err := s.store.GetByCode(r.Context(), shortCode)
	if errors.Is(err, registry.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "Fixable link not found")
		return
	}
	if err != nil {
		s.log.Error("link lookup failed", zap.String("shortCode", shortCode), zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "Failed to load resource")
		return
	}

	if !s.allowedOrigin(link.TargetURL, resourceURL) {
		// Off-list origins are observed, not blocked; pages pull from
		// arbitrary CDNs and breaking them helps nobody.
		s.log.Info("resource from different origin", zap.String("url", resourceURL))
	}

	resp, err := s.fetch(r.Context(), resourceURL, link.TargetURL)
	if err != nil {
		s.log.Error("resource fetch failed", zap.String("url", resourceURL), zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "Failed to load resource")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		http.Error(w, "Resource not found", resp.StatusCode)
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	io.Copy(w, resp.Body)
}

// ProbeTitle fetches the target and pulls its <title>, used to default the
// link title at creation. Errors degrade to an empty result.
func (s *Service) ProbeTitle(ctx context.Context, targetURL string) string {
	resp, err := s.fetch(ctx, targetURL, "")
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ""
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		return ""
	}
	return extractTitle(resp.Body)
}

func (s *Service) fetch(ctx context.Context, url, referer string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHTML)
	req.Header.Set("Accept-Language", acceptLang)
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	return s.client.Do(req)
}

func (s *Service) allowedOrigin(targetURL, resourceURL string) bool {
	origins := append([]string{targetOrigin(targetURL)}, allowedCDNs...)
	for _, origin := range origins {
		if origin != "" && strings.HasPrefix(resourceURL, origin) {
			return true
		}
	}
	return false
}

func targetOrigin(targetURL string) string {
	rest, ok := strings.CutPrefix(targetURL, "https://")
	scheme := "https://"
	if !ok {
		rest, ok = strings.CutPrefix(targetURL, "http://")
		scheme = "http://"
		if !ok {
			return ""
		}
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	return scheme + rest
}

// injectBlock splices the overlay block before </body>, falling back to
// </html> and finally to plain append for malformed markup.
func injectBlock(html, block string) string {
	if loc := bodyCloseRe.FindStringIndex(html); loc != nil {
		return html[:loc[0]] + block + html[loc[0]:]
	}
	if loc := htmlCloseRe.FindStringIndex(html); loc != nil {
		return html[:loc[0]] + block + html[loc[0]:]
	}
	return html + block
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q}`, msg)
}
