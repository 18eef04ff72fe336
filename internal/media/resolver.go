// Package media maps clip source URIs to footage under the media root and
// serves it to the rendering layer.
package media

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidURI = errors.New("invalid media uri")
	ErrNotFound   = errors.New("media not found")
)

// VideoExtensions are tried in order when a source URI has no extension.
var VideoExtensions = []string{".mp4", ".mov", ".m4v", ".mkv", ".webm", ".avi"}

// Resolver finds source footage below Root. A clip's source URI is
// "<project>/<slug>", optionally with an extension.
type Resolver struct {
	Root string
}

func NewResolver(root string) *Resolver {
	return &Resolver{Root: root}
}

// Resolve returns the absolute path of the footage for uri. URIs that are
// absolute or climb out of Root are rejected.
func (r *Resolver) Resolve(uri string) (string, error) {
	if r.Root == "" {
		return "", fmt.Errorf("%w: no media root configured", ErrNotFound)
	}
	if uri == "" || strings.ContainsRune(uri, '\\') || path.IsAbs(uri) {
		return "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	for _, part := range strings.Split(uri, "/") {
		if part == ".." || part == "." || part == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
		}
	}

	base := filepath.Join(r.Root, filepath.FromSlash(uri))
	if ext := filepath.Ext(base); ext != "" && isVideo(ext) {
		if regular(base) {
			return base, nil
		}
		return "", fmt.Errorf("%w: %s", ErrNotFound, uri)
	}
	for _, ext := range VideoExtensions {
		for _, candidate := range []string{base + ext, base + strings.ToUpper(ext)} {
			if regular(candidate) {
				return candidate, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, uri)
}

func isVideo(ext string) bool {
	ext = strings.ToLower(ext)
	for _, v := range VideoExtensions {
		if v == ext {
			return true
		}
	}
	return false
}

func regular(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
