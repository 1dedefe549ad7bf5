package registry

import (
	"crypto/rand"
	"encoding/base64"
)

// shortCodeLen caps the encoded code at 8 characters; 4 random bytes encode
// to 6, comfortably within the cap and URL-safe.
const shortCodeLen = 8

// generateShortCode derives a URL-safe short code from 4 random bytes.
// Uniqueness is the caller's job: codes are collision-checked against the
// store before acceptance.
func generateShortCode() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		panic("registry: crypto/rand failed: " + err.Error())
	}
	code := base64.RawURLEncoding.EncodeToString(buf)
	if len(code) > shortCodeLen {
		code = code[:shortCodeLen]
	}
	return code
}
