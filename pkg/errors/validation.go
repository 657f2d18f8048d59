package errors

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// MaxNodeIDLength bounds node identifiers accepted from clients.
const MaxNodeIDLength = 256

// ValidateNodeID validates a node identifier supplied by a client.
//
// The validation rules are intentionally conservative:
//   - No empty ids
//   - No control characters or null bytes
//   - Maximum length of MaxNodeIDLength bytes
//
// Any other content is allowed; ids are opaque to the service.
func ValidateNodeID(id string) error {
	if id == "" {
		return New(ErrCodeInvalidNodeID, "node id cannot be empty")
	}

	if len(id) > MaxNodeIDLength {
		return New(ErrCodeInvalidNodeID, "node id too long (max %d characters)", MaxNodeIDLength)
	}

	for _, r := range id {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidNodeID, "node id contains invalid control characters")
		}
	}

	return nil
}

// ValidateDepth validates a subgraph depth parameter.
func ValidateDepth(depth, limit int) error {
	if depth < 0 {
		return New(ErrCodeInvalidInput, "depth cannot be negative")
	}
	if limit > 0 && depth > limit {
		return New(ErrCodeInvalidInput, "depth %d exceeds limit %d", depth, limit)
	}
	return nil
}

// ValidateURL validates a URL string for safety.
// It ensures the URL has a safe scheme (http or https) and a host.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return Wrap(ErrCodeInvalidInput, err, "invalid URL")
	}
	if u.Host == "" {
		return New(ErrCodeInvalidInput, "URL must include a host")
	}

	return nil
}

// channelNameRegex matches Redis channel names we are willing to publish to.
var channelNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]*$`)

// ValidateChannelName validates a pub/sub channel or collection name.
func ValidateChannelName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidConfig, "channel name cannot be empty")
	}
	if len(name) > 128 {
		return New(ErrCodeInvalidConfig, "channel name too long (max 128 characters)")
	}
	if !channelNameRegex.MatchString(name) {
		return New(ErrCodeInvalidConfig, "invalid channel name: %q", name)
	}
	return nil
}

// ValidatePath validates a local output path for safety.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidFormat, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidFormat, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidFormat, "path contains invalid characters")
		}
	}

	return nil
}
