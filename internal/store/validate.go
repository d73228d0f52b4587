package store

import (
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/cfgswap/internal/apperr"
)

// MaxNameLength is the longest profile name accepted, in runes.
const MaxNameLength = 100

var errNameChars = errors.New("must not contain '/', '\\', '..' or control characters")

func nameChars(value any) error {
	s, _ := value.(string)
	if strings.ContainsAny(s, `/\`) || strings.Contains(s, "..") {
		return errNameChars
	}
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return errNameChars
		}
	}
	return nil
}

// NormalizeName trims surrounding whitespace and checks the naming rules.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	err := validation.Validate(name,
		validation.Required,
		validation.RuneLength(1, MaxNameLength),
		validation.By(nameChars),
	)
	if err != nil {
		return "", fmt.Errorf("store: name %q: %w: %v", name, apperr.ErrInvalidName, err)
	}
	return name, nil
}
