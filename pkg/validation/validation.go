package validation

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

var (
	// ErrInvalidInput indicates the input failed validation
	ErrInvalidInput = errors.New("invalid input")

	// Service names become nginx upstream names and container labels, so
	// the charset is deliberately narrow: lowercase alphanumeric with
	// hyphens, 2-63 chars, no leading/trailing hyphen.
	serviceNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,61}[a-z0-9]$`)
)

// SanitizeString removes potentially dangerous characters and trims whitespace
func SanitizeString(input string) string {
	// Trim whitespace
	input = strings.TrimSpace(input)

	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters except newline and tab
	var builder strings.Builder
	for _, r := range input {
		if !unicode.IsControl(r) || r == '\n' || r == '\t' {
			builder.WriteRune(r)
		}
	}

	return builder.String()
}

// ValidateServiceName checks if a managed service name is valid
func ValidateServiceName(name string) error {
	name = SanitizeString(name)

	if name == "" {
		return errors.New("service name cannot be empty")
	}

	if len(name) > 63 {
		return errors.New("service name must not exceed 63 characters")
	}

	if !serviceNameRegex.MatchString(name) {
		return errors.New("service name must be lowercase alphanumeric with hyphens and must not start or end with a hyphen")
	}

	return nil
}

// ValidateReplicaBounds checks a service's min/max replica configuration
func ValidateReplicaBounds(min, max int) error {
	if min < 1 {
		return errors.New("min_replicas must be at least 1")
	}

	if max < min {
		return errors.New("max_replicas must be greater than or equal to min_replicas")
	}

	if max > 1000 {
		return errors.New("max_replicas cannot exceed 1000")
	}

	return nil
}

// ValidatePassword checks if a password meets security requirements
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}

	if len(password) > 128 {
		return errors.New("password must not exceed 128 characters")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		}
	}

	if !hasUpper {
		return errors.New("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return errors.New("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return errors.New("password must contain at least one number")
	}

	return nil
}
