package errors

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

// ValidateURL validates a URL string for safety.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidURL, "URL cannot be empty")
	}

	// Simple scheme validation without full URL parsing
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidURL, "URL must use http or https scheme")
	}

	return nil
}

// placeholderRegex matches {name} placeholders in a tile URL template.
var placeholderRegex = regexp.MustCompile(`\{([^{}]*)\}`)

// knownPlaceholders are the substitutions tile fetchers perform.
var knownPlaceholders = map[string]bool{"z": true, "x": true, "y": true, "token": true}

// ValidateTileURLTemplate checks a tile URL template such as
// https://tile.example.com/{z}/{x}/{y}.png. Both {x} and {y} are required;
// {z} and {token} are optional, and any other placeholder is rejected.
func ValidateTileURLTemplate(tpl string) error {
	if err := ValidateURL(tpl); err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, m := range placeholderRegex.FindAllStringSubmatch(tpl, -1) {
		if !knownPlaceholders[m[1]] {
			return New(ErrCodeInvalidURL, "unknown placeholder {%s} in tile URL template", m[1])
		}
		seen[m[1]] = true
	}
	if !seen["x"] || !seen["y"] {
		return New(ErrCodeInvalidURL, "tile URL template must contain {x} and {y}")
	}
	return nil
}

// ValidateOutputPath checks that path can name an output file or directory.
// It rejects empty paths, control characters, and paths that clean to
// "." or "..".
func ValidateOutputPath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "output path cannot be empty")
	}

	const maxPathLength = 4096
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	switch filepath.Base(filepath.Clean(path)) {
	case ".", "..", string(filepath.Separator):
		return New(ErrCodeInvalidPath, "output path %q does not name a file", path)
	}
	return nil
}
