package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriteResolution(t *testing.T) {
	const baseURL = "https://example.com/blog/post"

	t.Run("root-relative", func(t *testing.T) {
		out, err := Rewrite(`<img src="/img.png">`, baseURL)
		require.NoError(t, err)
		assert.Contains(t, out, `src="https://example.com/img.png"`)
	})

	t.Run("protocol-relative", func(t *testing.T) {
		out, err := Rewrite(`<script src="//cdn.example.com/a.js"></script>`, baseURL)
		require.NoError(t, err)
		assert.Contains(t, out, `src="https://cdn.example.com/a.js"`)
	})

	t.Run("document-relative", func(t *testing.T) {
		out, err := Rewrite(`<img src="logo.png">`, baseURL)
		require.NoError(t, err)
		assert.Contains(t, out, `src="https://example.com/blog/logo.png"`)
	})

	t.Run("href follows the same rules", func(t *testing.T) {
		out, err := Rewrite(`<a href="about.html">about</a>`, baseURL)
		require.NoError(t, err)
		assert.Contains(t, out, `href="https://example.com/blog/about.html"`)
	})

	t.Run("base URL without path", func(t *testing.T) {
		out, err := Rewrite(`<img src="logo.png">`, "https://example.com")
		require.NoError(t, err)
		assert.Contains(t, out, `src="https://example.com/logo.png"`)
	})
}

func TestRewriteSchemePreservation(t *testing.T) {
	const baseURL = "https://example.com/blog/post"

	cases := []string{
		`<a href="https://other.com/x">x</a>`,
		`<a href="http://other.com/x">x</a>`,
		`<a href="mailto:hi@example.com">x</a>`,
		`<a href="tel:+15551234">x</a>`,
		`<a href="javascript:void(0)">x</a>`,
		`<a href="#section">x</a>`,
		`<img src="data:image/png;base64,AAAA">`,
		`<video src="blob:https://example.com/uuid"></video>`,
	}
	for _, doc := range cases {
		out, err := Rewrite(doc, baseURL)
		require.NoError(t, err)
		assert.Contains(t, out, doc, "absolute value must stay byte-identical")
	}
}

func TestRewriteIdempotence(t *testing.T) {
	doc := `<html><head><title>t</title></head><body>
<a href="about.html">a</a>
<img src="/img.png" srcset="a.png 1x, /b.png 2x">
<div style="background: url(bg.jpg)"></div>
</body></html>`

	once, err := Rewrite(doc, "https://example.com/blog/post")
	require.NoError(t, err)
	twice, err := Rewrite(once, "https://example.com/blog/post")
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestRewriteSrcset(t *testing.T) {
	out, err := Rewrite(`<img srcset="a.png 1x, /b.png 2x">`, "https://x.com/p/q")
	require.NoError(t, err)
	assert.Contains(t, out, `srcset="https://x.com/p/a.png 1x, https://x.com/b.png 2x"`)
}

func TestRewriteCSSURL(t *testing.T) {
	t.Run("relative", func(t *testing.T) {
		out, err := Rewrite(`<style>.a { background: url('bg.jpg'); }</style>`, "https://x.com/p/q")
		require.NoError(t, err)
		assert.Contains(t, out, `url("https://x.com/p/bg.jpg")`)
	})

	t.Run("absolute untouched", func(t *testing.T) {
		doc := `<style>.a { background: url(https://cdn.x.com/bg.jpg); }</style>`
		out, err := Rewrite(doc, "https://x.com/p/q")
		require.NoError(t, err)
		assert.Contains(t, out, doc)
	})
}

func TestBaseTagInjection(t *testing.T) {
	t.Run("injected after head", func(t *testing.T) {
		out, err := Rewrite(`<html><head lang="en"><title>t</title></head></html>`, "https://example.com/blog/post")
		require.NoError(t, err)
		assert.Contains(t, out, `<head lang="en"><base href="https://example.com/blog/">`)
	})

	t.Run("existing base untouched", func(t *testing.T) {
		doc := `<html><head><base href="https://keep.me/"></head></html>`
		out, err := Rewrite(doc, "https://example.com/blog/post")
		require.NoError(t, err)
		assert.Equal(t, doc, out)
	})

	t.Run("no head no injection", func(t *testing.T) {
		out, err := Rewrite(`<p>bare</p>`, "https://example.com/")
		require.NoError(t, err)
		assert.NotContains(t, out, "<base")
	})
}

func TestRewriteInvalidBase(t *testing.T) {
	for _, bad := range []string{"", "not a url", "ftp://example.com/x", "/relative/only"} {
		_, err := Rewrite("<html></html>", bad)
		assert.Error(t, err, "base %q", bad)
	}
}
