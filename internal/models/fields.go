package models

import (
	"encoding/json"
	"strings"
)

// Keys read from the env section of a settings document.
const (
	EnvBaseURL   = "ANTHROPIC_BASE_URL"
	EnvAuthToken = "ANTHROPIC_AUTH_TOKEN"
	EnvAPIKey    = "ANTHROPIC_API_KEY"
)

// ExtractFields derives the display view of content. Malformed content yields
// an empty view; content and hash are never touched.
func ExtractFields(content string) ExtractedFields {
	var doc map[string]any
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return ExtractedFields{}
	}

	var f ExtractedFields
	if m, ok := doc["model"].(string); ok {
		f.Model = m
	}
	env, _ := doc["env"].(map[string]any)
	if u, ok := env[EnvBaseURL].(string); ok {
		f.DisplayURL = u
	}
	secret, _ := env[EnvAuthToken].(string)
	if secret == "" {
		secret, _ = env[EnvAPIKey].(string)
	}
	f.MaskedSecret = MaskSecret(secret)
	return f
}

// MaskSecret keeps the first 8 and last 4 characters (runes) of long values.
func MaskSecret(s string) string {
	r := []rune(strings.TrimSpace(s))
	switch {
	case len(r) == 0:
		return ""
	case len(r) > 10:
		return string(r[:8]) + "..." + string(r[len(r)-4:])
	default:
		return "***"
	}
}

// MaskContent returns content with the secret env values masked, indented
// for display. Content that does not parse is returned unchanged.
func MaskContent(content string) string {
	var doc map[string]any
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return content
	}
	if env, ok := doc["env"].(map[string]any); ok {
		for _, k := range []string{EnvAuthToken, EnvAPIKey} {
			if v, ok := env[k].(string); ok {
				env[k] = MaskSecret(v)
			}
		}
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return content
	}
	return string(out)
}
