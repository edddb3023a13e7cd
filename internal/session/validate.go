package session

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// MaxAliasLength bounds the display alias attached to outgoing messages.
const MaxAliasLength = 32

// ValidateName checks that name conforms to session naming rules.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid session name %q: must match ^[a-z0-9_-]{1,64}$", name)
	}
	return nil
}

// ValidateAlias checks that a display alias is non-blank and short enough.
func ValidateAlias(alias string) error {
	trimmed := strings.TrimSpace(alias)
	if trimmed == "" {
		return fmt.Errorf("alias must not be empty")
	}
	if utf8.RuneCountInString(trimmed) > MaxAliasLength {
		return fmt.Errorf("alias %q exceeds %d characters", trimmed, MaxAliasLength)
	}
	return nil
}
