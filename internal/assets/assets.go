// Package assets holds the client-side shim injected into proxied pages and
// builds the HTML block the proxy splices in before </body>.
package assets

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed inject.js
var injectJS string

//go:embed inject.css
var injectCSS string

// Config is exposed to the page shim as window.__PLSFIX_CONFIG__.
type Config struct {
	ShortCode string `json:"shortCode"`
	SessionID string `json:"sessionId"`
	APIURL    string `json:"apiUrl"`
	WebappURL string `json:"webappUrl"`
	WSPath    string `json:"wsPath"`
	IsProxied bool   `json:"isProxied"`
}

// InjectionBlock renders the self-contained block the proxy inserts into the
// page: config, styles, and the shim script. No external fetches needed.
func InjectionBlock(cfg Config) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("assets: marshal config: %w", err)
	}
	return fmt.Sprintf(`
<script>
  window.__PLSFIX_CONFIG__ = %s;
</script>
<style>
%s
</style>
<script>
%s
</script>
`, raw, injectCSS, injectJS), nil
}
