// Package validation holds the shared validator and the gateway's custom
// validation tags.
package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Register custom validators for mount configuration
	if err := Validate.RegisterValidation("mount_prefix", validateMountPrefix); err != nil {
		panic(fmt.Sprintf("failed to register mount_prefix validator: %v", err))
	}
	if err := Validate.RegisterValidation("upstream_url", validateUpstreamURL); err != nil {
		panic(fmt.Sprintf("failed to register upstream_url validator: %v", err))
	}
}

// validateMountPrefix accepts "/name" style prefixes: a leading slash, no
// trailing slash, no whitespace or control characters, and never "/" alone.
func validateMountPrefix(fl validator.FieldLevel) bool {
	return ValidateMountPrefix(fl.Field().String()) == nil
}

// validateUpstreamURL accepts absolute http and https URLs with a host.
func validateUpstreamURL(fl validator.FieldLevel) bool {
	return ValidateUpstreamURL(fl.Field().String()) == nil
}

// ValidateMountPrefix validates a mount prefix string value
func ValidateMountPrefix(value string) error {
	switch {
	case !strings.HasPrefix(value, "/"):
		return fmt.Errorf("invalid prefix: %q (must start with '/')", value)
	case value == "/":
		return fmt.Errorf("invalid prefix: %q (cannot mount the root)", value)
	case strings.HasSuffix(value, "/"):
		return fmt.Errorf("invalid prefix: %q (must not end with '/')", value)
	}
	for _, r := range value {
		if unicode.IsSpace(r) || unicode.IsControl(r) || r == '?' || r == '#' {
			return fmt.Errorf("invalid prefix: %q (contains %q)", value, r)
		}
	}
	return nil
}

// ValidateUpstreamURL validates an upstream base URL string value
func ValidateUpstreamURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid upstream: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid upstream: %q (scheme must be http or https)", value)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid upstream: %q (missing host)", value)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("invalid upstream: %q (query and fragment are not allowed)", value)
	}
	return nil
}
