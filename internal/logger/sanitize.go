package logger

import (
	"strings"
	"unicode"
)

const (
	// MaxPathLength is the maximum length for URL paths in logs
	MaxPathLength = 500
	// MaxErrorMessageLength is the maximum length for error messages in logs
	MaxErrorMessageLength = 1000
	// MaxClientIDLength bounds client identifiers taken from forwarding headers
	MaxClientIDLength = 128
)

// SanitizePath prepares a request path for logging.
func SanitizePath(path string) string {
	return SanitizeString(path, MaxPathLength)
}

// SanitizeClientID prepares a client identifier (IP or forwarded value) for logging.
func SanitizeClientID(id string) string {
	return SanitizeString(id, MaxClientIDLength)
}

// SanitizeError prepares an error message for logging.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error(), MaxErrorMessageLength)
}

// SanitizeString drops invalid UTF-8 and control characters from s and
// truncates it to maxLength bytes. Values come from untrusted requests, so
// newlines are removed too: one event must stay one line.
func SanitizeString(s string, maxLength int) string {
	if s == "" {
		return ""
	}
	s = strings.ToValidUTF8(s, "")
	s = strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == ' ' {
			return r
		}
		return -1
	}, s)
	if maxLength > 0 && len(s) > maxLength {
		s = strings.ToValidUTF8(s[:maxLength], "") + "..."
	}
	return s
}
