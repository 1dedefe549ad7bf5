// Package rewrite turns relative URL references in a fetched HTML document
// into absolute ones so the page renders correctly when served from a foreign
// origin. The implementation is deliberately regex-based and contained behind
// Rewrite so callers are unaffected if it is ever swapped for a tree-based
// rewriter.
package rewrite

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	hrefRe   = regexp.MustCompile(`(?i)(<[^>]+\s)(href=["'])([^"']+)(["'])`)
	srcRe    = regexp.MustCompile(`(?i)(<[^>]+\s)(src=["'])([^"']+)(["'])`)
	srcsetRe = regexp.MustCompile(`(?i)(<[^>]+\s)(srcset=["'])([^"']+)(["'])`)
	cssURLRe = regexp.MustCompile(`(?i)url\(["']?([^"')]+)["']?\)`)
	headRe   = regexp.MustCompile(`(?i)<head([^>]*)>`)

	hrefSkip = []string{"http:", "https:", "mailto:", "tel:", "javascript:", "#", "data:"}
	srcSkip  = []string{"http:", "https:", "data:", "blob:"}
)

// base holds the pieces of the target URL every rewriting rule resolves
// against.
type base struct {
	scheme string // "https"
	origin string // "https://example.com"
	path   string // directory portion, trailing filename stripped: "/blog/"
}

func parseBase(rawURL string) (*base, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", rawURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: need absolute http(s) URL", rawURL)
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	// Strip the trailing filename segment: "/blog/post" -> "/blog/".
	path = path[:strings.LastIndex(path, "/")+1]

	return &base{
		scheme: u.Scheme,
		origin: u.Scheme + "://" + u.Host,
		path:   path,
	}, nil
}

// resolve maps one relative reference to an absolute URL. Protocol-relative
// values keep everything but gain the base scheme; root-relative values are
// rooted at the base origin; anything else resolves against the base path.
func (b *base) resolve(ref string) string {
	switch {
	case strings.HasPrefix(ref, "//"):
		return b.scheme + ":" + ref
	case strings.HasPrefix(ref, "/"):
		return b.origin + ref
	default:
		return b.origin + b.path + ref
	}
}

func skips(value string, prefixes []string) bool {
	lower := strings.ToLower(value)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// Rewrite rewrites relative href, src, srcset and CSS url() references in
// html to absolute URLs rooted at baseURL, then injects a <base> tag after
// the opening <head> when the document has none. Values that already carry an
// absolute scheme (or are pure fragments) are returned byte-identical, so
// rewriting an already-rewritten document is a no-op. A malformed baseURL
// fails the whole rewrite: every rule depends on it.
func Rewrite(html, baseURL string) (string, error) {
	b, err := parseBase(baseURL)
	if err != nil {
		return "", err
	}

	html = rewriteAttr(html, hrefRe, hrefSkip, b)
	html = rewriteAttr(html, srcRe, srcSkip, b)
	html = rewriteSrcset(html, b)
	html = rewriteCSSURLs(html, b)
	html = injectBaseTag(html, b)

	return html, nil
}

func rewriteAttr(html string, re *regexp.Regexp, skip []string, b *base) string {
	return re.ReplaceAllStringFunc(html, func(m string) string {
		parts := re.FindStringSubmatch(m)
		if skips(parts[3], skip) {
			return m
		}
		return parts[1] + parts[2] + b.resolve(parts[3]) + parts[4]
	})
}

// rewriteSrcset rewrites each "url descriptor" entry of a srcset value
// independently, preserving descriptors verbatim.
func rewriteSrcset(html string, b *base) string {
	return srcsetRe.ReplaceAllStringFunc(html, func(m string) string {
		parts := srcsetRe.FindStringSubmatch(m)
		entries := strings.Split(parts[3], ",")
		for i, entry := range entries {
			fields := strings.Fields(strings.TrimSpace(entry))
			if len(fields) == 0 {
				continue
			}
			ref := fields[0]
			if !skips(ref, srcSkip) {
				ref = b.resolve(ref)
			}
			entries[i] = strings.Join(append([]string{ref}, fields[1:]...), " ")
		}
		return parts[1] + parts[2] + strings.Join(entries, ", ") + parts[4]
	})
}

// rewriteCSSURLs covers url(...) references in style attributes and <style>
// blocks. Absolute references are left untouched, quoting included.
func rewriteCSSURLs(html string, b *base) string {
	return cssURLRe.ReplaceAllStringFunc(html, func(m string) string {
		parts := cssURLRe.FindStringSubmatch(m)
		if skips(parts[1], srcSkip) {
			return m
		}
		return `url("` + b.resolve(parts[1]) + `")`
	})
}

// injectBaseTag adds a <base> pointing at origin+path right after the opening
// <head> tag when the document has none. It is a fallback for URL forms the
// regex passes cannot see, such as JS-constructed URLs and @import.
func injectBaseTag(html string, b *base) string {
	if strings.Contains(html, "<base") {
		return html
	}
	loc := headRe.FindStringIndex(html)
	if loc == nil {
		return html
	}
	return html[:loc[1]] + `<base href="` + b.origin + b.path + `">` + html[loc[1]:]
}
