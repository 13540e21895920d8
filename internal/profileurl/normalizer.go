package profileurl

import (
	"errors"
	"strings"
)

const (
	schemeHTTPPrefix         = "http://"
	schemeHTTPSPrefix        = "https://"
	trailingSlashCharacter   = "/"
	errMessageEmptyInput     = "profile url cannot be empty"
	errMessageSchemeRelative = "profile url cannot be scheme relative"
)

var (
	// ErrEmptyProfileURL indicates that the supplied input contained no usable URL.
	ErrEmptyProfileURL = errors.New(errMessageEmptyInput)

	// ErrSchemeRelativeProfileURL indicates an input of the form //host/path.
	ErrSchemeRelativeProfileURL = errors.New(errMessageSchemeRelative)
)

// Normalize converts free-text profile URL input into a canonical form suitable
// for the upstream resolve endpoint: whitespace trimmed, trailing slashes
// removed, and an https scheme prepended when the input carries none.
func Normalize(rawProfileURL string) (string, error) {
	cleaned := strings.TrimSpace(rawProfileURL)
	if cleaned == "" {
		return "", ErrEmptyProfileURL
	}

	for strings.HasSuffix(cleaned, trailingSlashCharacter) {
		cleaned = strings.TrimSuffix(cleaned, trailingSlashCharacter)
	}
	if cleaned == "" {
		return "", ErrEmptyProfileURL
	}

	if strings.HasPrefix(cleaned, "//") {
		return "", ErrSchemeRelativeProfileURL
	}
	if !strings.HasPrefix(cleaned, schemeHTTPPrefix) && !strings.HasPrefix(cleaned, schemeHTTPSPrefix) {
		cleaned = schemeHTTPSPrefix + cleaned
	}
	return cleaned, nil
}
