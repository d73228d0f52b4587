package models

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestMaskSecret(t *testing.T) {
	cases := map[string]string{
		"":                           "",
		"short":                      "***",
		"sk-ant-api03-abcdefgh-9029": "sk-ant-a...9029",
		"  sk-1234567890abcdef  ":    "sk-12345...cdef",
		"ключключключ":               "ключключ...ключ",
		"ключ-ключ":                  "***",
	}
	for in, want := range cases {
		if got := MaskSecret(in); got != want {
			t.Errorf("MaskSecret(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaskSecret_MultiByte(t *testing.T) {
	got := MaskSecret("ключ-sk-ß€日本語テスト")
	if !utf8.ValidString(got) {
		t.Fatalf("MaskSecret produced invalid UTF-8: %q", got)
	}
	if got != "ключ-sk-...語テスト" {
		t.Errorf("MaskSecret = %q", got)
	}
}

func TestExtractFields(t *testing.T) {
	content := `{"model":"claude-opus","env":{"ANTHROPIC_BASE_URL":"https://api.example.com","ANTHROPIC_AUTH_TOKEN":"sk-ant-REDACTED"}}`
	f := ExtractFields(content)
	if f.DisplayURL != "https://api.example.com" {
		t.Errorf("DisplayURL = %q", f.DisplayURL)
	}
	if f.Model != "claude-opus" {
		t.Errorf("Model = %q", f.Model)
	}
	if f.MaskedSecret != "sk-ant-a...1234" {
		t.Errorf("MaskedSecret = %q", f.MaskedSecret)
	}
}

func TestExtractFields_APIKeyFallback(t *testing.T) {
	f := ExtractFields(`{"env":{"ANTHROPIC_API_KEY":"sk-abcdefghijklmnop"}}`)
	if f.MaskedSecret != "sk-abcde...mnop" {
		t.Errorf("MaskedSecret = %q", f.MaskedSecret)
	}
}

func TestExtractFields_Malformed(t *testing.T) {
	if f := ExtractFields(`{"env":`); f != (ExtractedFields{}) {
		t.Errorf("expected empty fields, got %+v", f)
	}
	if f := ExtractFields(`[1,2]`); f != (ExtractedFields{}) {
		t.Errorf("expected empty fields for non-object, got %+v", f)
	}
}

func TestMaskContent(t *testing.T) {
	content := `{"env":{"ANTHROPIC_API_KEY":"sk-1234567890abcdef","OTHER":"keep"},"model":"m"}`
	got := MaskContent(content)
	if strings.Contains(got, "sk-1234567890abcdef") {
		t.Fatalf("secret not masked: %s", got)
	}
	if !strings.Contains(got, `"sk-12345...cdef"`) || !strings.Contains(got, `"keep"`) {
		t.Errorf("MaskContent = %s", got)
	}
	if got := MaskContent("not json"); got != "not json" {
		t.Errorf("malformed content changed: %q", got)
	}
}
