package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Count int    `yaml:"count"`
}

func (s *sample) Validate() error {
	if s.Count < 0 {
		return errors.New("count must not be negative")
	}
	return nil
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "from-env")
	path := writeFile(t, "name: ${SAMPLE_NAME}\ncount: 3\n")

	var s sample
	if err := Load(path, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "from-env" || s.Count != 3 {
		t.Errorf("got %+v", s)
	}
}

func TestLoadRunsValidator(t *testing.T) {
	path := writeFile(t, "count: -1\n")

	var s sample
	err := Load(path, &s)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("err = %v, want validation failure", err)
	}
}

func TestLoadOptionalMissingKeepsDefaults(t *testing.T) {
	s := sample{Name: "default", Count: 1}
	found, err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &s)
	if err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if found {
		t.Error("found = true for a missing file")
	}
	if s.Name != "default" {
		t.Errorf("defaults overwritten: %+v", s)
	}
}

func TestLoadOptionalOverlaysFile(t *testing.T) {
	path := writeFile(t, "count: 7\n")
	s := sample{Name: "default", Count: 1}

	found, err := LoadOptional(path, &s)
	if err != nil || !found {
		t.Fatalf("found = %v, err = %v", found, err)
	}
	if s.Name != "default" || s.Count != 7 {
		t.Errorf("got %+v", s)
	}
}

func TestLoadOptionalEmptyNameValidates(t *testing.T) {
	s := sample{Count: -5}
	if _, err := LoadOptional("", &s); err == nil {
		t.Error("expected validation error")
	}
}
