// Package ignore implements gitignore-style filtering of workspace paths
// against `.snapshotignore`, config-provided exclusions, and a built-in
// default list. Pattern matching itself is delegated to
// github.com/sabhiram/go-gitignore, which implements the same `**`,
// single-`*`, and trailing-`/` semantics this package's contract requires;
// leading-`!` negation is explicitly unsupported (see Non-goals).
package ignore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gitignore "github.com/sabhiram/go-gitignore"

	"dev.helix.snapshots/internal/logging"
)

// DefaultPatterns is the built-in exclusion list merged into every
// workspace's ruleset regardless of .snapshotignore contents: the engine's
// own state directory plus dependency, build, editor, and log clutter
// common across language ecosystems.
var DefaultPatterns = []string{
	".continue-reasoning/",
	".git/",
	".snapshotignore",
	"node_modules/",
	"vendor/",
	"__pycache__/",
	"venv/",
	".venv/",
	"build/",
	"bin/",
	"dist/",
	".idea/",
	".vscode/",
	"*.log",
	"**/tmp/**",
	".DS_Store",
}

const ignoreFileName = ".snapshotignore"

const defaultIgnoreFileContents = `# Patterns for files the snapshot engine should never track.
# One gitignore-style pattern per line; '#' starts a comment.
node_modules/
.git/
*.log
**/tmp/**
`

// Manager loads, compiles, and applies a workspace's ignore ruleset.
type Manager struct {
	workspacePath string
	extra         []string // config-provided exclude_from_checking
	logger        *logging.Logger

	mu       sync.RWMutex
	patterns []string
	compiled *gitignore.GitIgnore
	loaded   bool
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithExtraPatterns supplies config-provided exclusions merged in
// alongside .snapshotignore and the built-in defaults.
func WithExtraPatterns(patterns []string) Option {
	return func(m *Manager) { m.extra = append(m.extra, patterns...) }
}

// WithLogger overrides the manager's logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// New creates a Manager for the given workspace root.
func New(workspacePath string, opts ...Option) *Manager {
	m := &Manager{
		workspacePath: workspacePath,
		logger:        logging.New("ignore", logging.INFO),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init ensures .snapshotignore exists (writing the default file if not),
// then loads and compiles the full ruleset.
func (m *Manager) Init() error {
	path := filepath.Join(m.workspacePath, ignoreFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte(defaultIgnoreFileContents), 0o644); err != nil {
			return fmt.Errorf("ignore: writing default %s: %w", ignoreFileName, err)
		}
		m.logger.Info("wrote default %s", ignoreFileName)
	}
	return m.Reload()
}

// Reload re-reads .snapshotignore and recomputes the compiled ruleset.
func (m *Manager) Reload() error {
	path := filepath.Join(m.workspacePath, ignoreFileName)
	var fileLines []string
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ignore: reading %s: %w", ignoreFileName, err)
	}
	if err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
			fileLines = append(fileLines, trimmed)
		}
	}

	all := make([]string, 0, len(DefaultPatterns)+len(m.extra)+len(fileLines))
	all = append(all, DefaultPatterns...)
	for _, p := range append(append([]string(nil), m.extra...), fileLines...) {
		if strings.HasPrefix(p, "!") {
			m.logger.Warn("skipping unsupported negation pattern %q", p)
			continue
		}
		all = append(all, p)
	}

	compiled := gitignore.CompileIgnoreLines(all...)

	m.mu.Lock()
	m.patterns = all
	m.compiled = compiled
	m.loaded = true
	m.mu.Unlock()
	return nil
}

// FilterIgnored returns the subset of paths that match no ignore pattern.
// Input paths may be absolute or workspace-relative; they are normalized
// to workspace-relative, forward-slash form before matching.
func (m *Manager) FilterIgnored(paths []string) []string {
	m.mu.RLock()
	compiled := m.compiled
	m.mu.RUnlock()

	kept := make([]string, 0, len(paths))
	for _, p := range paths {
		rel := m.toRelative(p)
		if compiled == nil || !compiled.MatchesPath(rel) {
			kept = append(kept, rel)
		}
	}
	return kept
}

// IsIgnored reports whether a single path matches the compiled ruleset.
func (m *Manager) IsIgnored(path string) bool {
	m.mu.RLock()
	compiled := m.compiled
	m.mu.RUnlock()
	if compiled == nil {
		return false
	}
	return compiled.MatchesPath(m.toRelative(path))
}

func (m *Manager) toRelative(p string) string {
	if filepath.IsAbs(p) {
		if rel, err := filepath.Rel(m.workspacePath, p); err == nil {
			p = rel
		}
	}
	return filepath.ToSlash(p)
}

// Info describes the manager's current ruleset for diagnostics.
type Info struct {
	Path     string
	Exists   bool
	Patterns []string
	Loaded   bool
}

// Info reports the current ruleset state.
func (m *Manager) Info() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	path := filepath.Join(m.workspacePath, ignoreFileName)
	_, err := os.Stat(path)
	return Info{
		Path:     path,
		Exists:   err == nil,
		Patterns: append([]string(nil), m.patterns...),
		Loaded:   m.loaded,
	}
}
