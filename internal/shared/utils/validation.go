package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// String length limits for descriptor fields
const (
	MaxRappNameLength    = 128
	MaxDisplayNameLength = 256
	MaxGraphNameLength   = 256
)

// Regular expressions for validation
var (
	// RappNamePattern allows bare names and package-qualified names (pkg/app)
	RappNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*(/[a-zA-Z][a-zA-Z0-9_]*)?$`)
	// GraphNamePattern allows slash-separated connection names, optionally absolute
	GraphNamePattern = regexp.MustCompile(`^/?[a-zA-Z][a-zA-Z0-9_]*(/[a-zA-Z][a-zA-Z0-9_]*)*$`)
)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}

	return nil
}

// ValidateRappName validates an application name. Names are bare
// (talker) or package-qualified (demo_apps/talker); at most one
// namespace segment is allowed.
func ValidateRappName(name string) error {
	if err := ValidateString(name, "name", 1, MaxRappNameLength, true); err != nil {
		return err
	}

	if !RappNamePattern.MatchString(name) {
		return fmt.Errorf("name %q contains invalid characters (only alphanumeric, underscores, and one namespace separator allowed)", name)
	}

	return nil
}

// ValidateGraphName validates a declared connection name or a
// remapping target. Absolute names keep their leading slash; relative
// ones are placed under the application namespace at resolution time.
func ValidateGraphName(name, fieldName string) error {
	if err := ValidateString(name, fieldName, 1, MaxGraphNameLength, true); err != nil {
		return err
	}

	if !GraphNamePattern.MatchString(name) {
		return fmt.Errorf("%s %q is not a valid graph name", fieldName, name)
	}

	return nil
}
