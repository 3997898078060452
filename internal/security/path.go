// Package security provides filesystem access validation for the code-inspection
// tools. All tool file access is confined to an explicit allow-list of project
// subdirectories; reads are additionally filtered through a deny-list of
// sensitive file patterns.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

var (
	// ErrOutsideAllowList indicates the path is not under any allowed directory.
	ErrOutsideAllowList = errors.New("path outside allowed directories")

	// ErrBlockedPattern indicates the path matches a sensitive-file pattern.
	ErrBlockedPattern = errors.New("path matches blocked pattern")
)

// Path validates file paths against an allow-list of project subdirectories.
// Used to prevent path traversal attacks (CWE-22); symlinks that escape the
// project root are rejected as well.
//
// Paths handed to Resolve are interpreted relative to the project root, the
// same way the chat client supplies them (e.g. "app/tools/create_order.go").
type Path struct {
	root    string // absolute project root
	allowed []string
	blocked []glob.Glob
	source  []string // original blocked patterns, for error messages
}

// NewPath creates a path validator rooted at root.
// allowedDirs are root-relative directories file access is confined to.
// blockedPatterns are glob patterns (matched against the normalized relative
// path) that are refused outright; pass nil for write-scope validators.
func NewPath(root string, allowedDirs, blockedPatterns []string) (*Path, error) {
	if len(allowedDirs) == 0 {
		return nil, fmt.Errorf("at least one allowed directory is required")
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("unable to resolve project root %s: %w", root, err)
	}

	allowed := make([]string, 0, len(allowedDirs))
	for _, dir := range allowedDirs {
		allowed = append(allowed, filepath.ToSlash(filepath.Clean(dir)))
	}

	blocked := make([]glob.Glob, 0, len(blockedPatterns))
	for _, pattern := range blockedPatterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid blocked pattern %q: %w", pattern, err)
		}
		blocked = append(blocked, g)
	}

	return &Path{
		root:    absRoot,
		allowed: allowed,
		blocked: blocked,
		source:  blockedPatterns,
	}, nil
}

// AllowedDirs returns the allow-listed directories, for error messages and
// prompt construction.
func (p *Path) AllowedDirs() []string {
	out := make([]string, len(p.allowed))
	copy(out, p.allowed)
	return out
}

// Root returns the absolute project root.
func (p *Path) Root() string {
	return p.root
}

// Resolve validates a root-relative path and returns its safe absolute form.
// The path must stay inside one of the allowed directories after cleaning and
// symlink resolution, and must not match any blocked pattern.
func (p *Path) Resolve(path string) (string, error) {
	rel := filepath.ToSlash(filepath.Clean(strings.TrimSpace(path)))
	if rel == "" || rel == "." {
		return "", fmt.Errorf("%w: empty path", ErrOutsideAllowList)
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "../") || rel == ".." {
		return "", fmt.Errorf("%w: %q", ErrOutsideAllowList, path)
	}

	if !p.isAllowed(rel) {
		return "", fmt.Errorf("%w: %q (allowed: %s)",
			ErrOutsideAllowList, path, strings.Join(p.allowed, ", "))
	}

	for i, g := range p.blocked {
		if g.Match(rel) {
			return "", fmt.Errorf("%w: %q matches %q", ErrBlockedPattern, path, p.source[i])
		}
	}

	abs := filepath.Join(p.root, filepath.FromSlash(rel))

	// Resolve symbolic links to prevent bypassing restrictions through symlinks.
	// A missing file is acceptable (new files are created through this path).
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return abs, nil
		}
		return "", fmt.Errorf("unable to resolve symbolic link: %w", err)
	}
	if real != abs {
		rootNorm := p.root + string(filepath.Separator)
		if !strings.HasPrefix(real+string(filepath.Separator), rootNorm) {
			return "", fmt.Errorf("%w: symbolic link escapes project root", ErrOutsideAllowList)
		}
		abs = real
	}

	return abs, nil
}

// Rel converts an absolute path under the root back to its root-relative form
// for display; returns the input unchanged if it is not under the root.
func (p *Path) Rel(abs string) string {
	rel, err := filepath.Rel(p.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return abs
	}
	return filepath.ToSlash(rel)
}

// isAllowed reports whether rel equals or sits under an allowed directory.
func (p *Path) isAllowed(rel string) bool {
	for _, dir := range p.allowed {
		if rel == dir || strings.HasPrefix(rel, dir+"/") {
			return true
		}
	}
	return false
}
