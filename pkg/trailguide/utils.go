package trailguide

import (
	"io"
	"path/filepath"
	"strings"
)

// Auth scopes. The HTTP layer's authorizer grants read:content for safe
// methods and requires manage:content for mutations; one-time tokens are
// minted with read:content only.
const (
	ScopeReadContent   = "read:content"
	ScopeManageContent = "manage:content"
)

// SecureFilename reduces an uploaded filename to a safe single path element:
// the final component only, spaces collapsed to underscores, anything outside
// [A-Za-z0-9._-] dropped, and leading/trailing separators trimmed.
func SecureFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}

	cleaned := strings.Trim(b.String(), "._-")
	if cleaned == "" {
		return "file"
	}
	return cleaned
}

// countingReader counts bytes as they pass through.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
