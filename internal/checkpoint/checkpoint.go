package checkpoint

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"dev.helix.snapshots/internal/clock"
	"dev.helix.snapshots/internal/diffs"
	"dev.helix.snapshots/internal/engineerrors"
	"dev.helix.snapshots/internal/filehash"
	"dev.helix.snapshots/internal/idgen"
	"dev.helix.snapshots/internal/logging"
)

const checkpointsDirName = "checkpoints"
const metadataFileName = "checkpoint-metadata.json"
const engineDirName = ".continue-reasoning"

// IgnoreFunc reports whether a workspace-relative path is excluded by the
// engine's ignore ruleset. The manager always additionally skips a small
// built-in set (the engine directory, node_modules, .git, .DS_Store,
// *.log) regardless of what IgnoreFunc says.
type IgnoreFunc func(relPath string) bool

// Manager maintains the "known state" baseline used for drift detection.
type Manager struct {
	root          string
	workspacePath string
	cfg           Config
	clock         clock.Clock
	logger        *logging.Logger
	ignore        IgnoreFunc

	mu      sync.RWMutex
	entries []metaEntry
	latest  *Data
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithClock overrides the manager's time source.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLogger overrides the manager's logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithIgnoreFunc supplies the engine's ignore ruleset so the workspace scan
// honors .snapshotignore and config-provided exclusions on top of the
// built-in skip list.
func WithIgnoreFunc(f IgnoreFunc) Option {
	return func(m *Manager) { m.ignore = f }
}

// New creates a Manager rooted at <workspacePath>/.continue-reasoning/checkpoints.
func New(workspacePath string, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		root:          filepath.Join(workspacePath, engineDirName, checkpointsDirName),
		workspacePath: workspacePath,
		cfg:           cfg,
		clock:         clock.Real{},
		logger:        logging.New("checkpoint", logging.INFO),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init ensures the checkpoint directory and metadata file exist, then loads
// the latest checkpoint into memory.
func (m *Manager) Init() error {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return engineerrors.NewIOError("mkdir", m.root, err)
	}
	if _, err := os.Stat(m.metadataPath()); os.IsNotExist(err) {
		if err := m.writeMetadata(nil, ""); err != nil {
			return err
		}
	}
	return m.reloadMetadata()
}

func (m *Manager) reloadMetadata() error {
	data, err := os.ReadFile(m.metadataPath())
	if err != nil {
		if os.IsNotExist(err) {
			m.mu.Lock()
			m.entries = nil
			m.latest = nil
			m.mu.Unlock()
			return nil
		}
		return engineerrors.NewIOError("read", m.metadataPath(), err)
	}

	var meta metadataFile
	if err := json.Unmarshal(data, &meta); err != nil {
		m.logger.Warn("checkpoint-metadata.json is corrupted, treating as empty: %v", err)
		m.mu.Lock()
		m.entries = nil
		m.latest = nil
		m.mu.Unlock()
		return nil
	}

	m.mu.Lock()
	m.entries = meta.Checkpoints
	m.mu.Unlock()

	if meta.LatestCheckpointID != "" {
		latest, ok, err := m.Load(meta.LatestCheckpointID)
		if err != nil {
			return err
		}
		if ok {
			m.mu.Lock()
			m.latest = latest
			m.mu.Unlock()
		}
	}
	return nil
}

// CreateInitial bootstraps the first checkpoint by scanning the entire
// workspace.
func (m *Manager) CreateInitial(idGen *idgen.Generator) (string, error) {
	start := m.clock.Now()
	hashes, contents, err := m.scanWorkspace()
	if err != nil {
		return "", err
	}
	cp := Data{
		Timestamp:    start,
		SnapshotID:   "initial",
		FileHashes:   hashes,
		FileContents: contents,
		Metadata: Metadata{
			TotalFiles:     len(hashes),
			CreationTimeMs: m.clock.Now().Sub(start).Milliseconds(),
		},
	}
	return m.persistNew(&cp, idGen)
}

// CreateAfter clones the latest checkpoint's hashes, recomputes hashes (and
// contents, if enabled) for affectedFiles only, and writes a new checkpoint
// that becomes the latest.
func (m *Manager) CreateAfter(snapshotID string, affectedFiles []string, idGen *idgen.Generator) (string, error) {
	start := m.clock.Now()

	m.mu.RLock()
	baseline := m.latest
	m.mu.RUnlock()

	hashes := make(map[string]string)
	var contents map[string]string
	if baseline != nil {
		for k, v := range baseline.FileHashes {
			hashes[k] = v
		}
		if baseline.FileContents != nil {
			contents = make(map[string]string, len(baseline.FileContents))
			for k, v := range baseline.FileContents {
				contents[k] = v
			}
		}
	}
	if m.cfg.SaveLatestFiles && contents == nil {
		contents = make(map[string]string)
	}

	for _, rel := range affectedFiles {
		abs := filepath.Join(m.workspacePath, rel)
		data, err := os.ReadFile(abs)
		if err != nil {
			delete(hashes, rel)
			if contents != nil {
				delete(contents, rel)
			}
			continue
		}
		hashes[rel] = filehash.Hash(data)
		if contents != nil {
			contents[rel] = string(data)
		}
	}

	cp := Data{
		Timestamp:    start,
		SnapshotID:   snapshotID,
		FileHashes:   hashes,
		FileContents: contents,
		Metadata: Metadata{
			TotalFiles:     len(hashes),
			CreationTimeMs: m.clock.Now().Sub(start).Milliseconds(),
		},
	}
	return m.persistNew(&cp, idGen)
}

func (m *Manager) persistNew(cp *Data, idGen *idgen.Generator) (string, error) {
	id, err := idGen.Generate(m.exists)
	if err != nil {
		return "", err
	}
	cp.ID = id

	if err := m.writeCheckpoint(cp); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.entries = append(m.entries, metaEntry{ID: id, Timestamp: cp.Timestamp})
	m.latest = cp
	entries := append([]metaEntry(nil), m.entries...)
	m.mu.Unlock()

	if err := m.writeMetadata(entries, id); err != nil {
		return "", err
	}
	return id, nil
}

func (m *Manager) exists(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.ID == id {
			return true
		}
	}
	return false
}

// Load reads a checkpoint by id.
func (m *Manager) Load(id string) (*Data, bool, error) {
	path := filepath.Join(m.root, id+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, engineerrors.NewIOError("read", path, err)
	}
	var cp Data
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, false, engineerrors.NewIOError("unmarshal", path, err)
	}
	return &cp, true, nil
}

// LoadLatest returns the in-memory latest checkpoint, if any.
func (m *Manager) LoadLatest() (*Data, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return nil, false, nil
	}
	return m.latest, true, nil
}

// DetectUnknown compares the baseline's file hashes against the workspace's
// current hashes (computed by calcHashes), skipping affectedFiles. It
// reports added/modified/deleted files and, when any are found, a merged
// unified diff synthesizing the drift — built from stored content when the
// baseline captured it, or a placeholder otherwise.
func (m *Manager) DetectUnknown(affectedFiles []string, calcHashes HashComputer, readContent ContentReader) (DriftResult, error) {
	m.mu.RLock()
	baseline := m.latest
	m.mu.RUnlock()
	if baseline == nil {
		return DriftResult{}, nil
	}

	affected := toSet(affectedFiles)
	current, err := calcHashes()
	if err != nil {
		return DriftResult{}, engineerrors.NewIOError("hash", m.workspacePath, err)
	}

	var changes []Change
	seen := make(map[string]bool, len(current))
	for path, newHash := range current {
		if affected[path] {
			continue
		}
		seen[path] = true
		oldHash, existed := baseline.FileHashes[path]
		switch {
		case !existed && newHash != "":
			changes = append(changes, Change{Path: path, ChangeType: Added, NewHash: newHash})
		case existed && oldHash != newHash:
			changes = append(changes, Change{Path: path, ChangeType: Modified, OldHash: oldHash, NewHash: newHash})
		}
	}
	for path, oldHash := range baseline.FileHashes {
		if affected[path] || seen[path] {
			continue
		}
		if _, stillPresent := current[path]; !stillPresent {
			changes = append(changes, Change{Path: path, ChangeType: Deleted, OldHash: oldHash})
		}
	}

	if len(changes) == 0 {
		return DriftResult{}, nil
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })

	diffTexts := make([]string, 0, len(changes))
	for _, c := range changes {
		text, err := m.changeDiff(c, baseline, readContent)
		if err != nil {
			m.logger.Warn("checkpoint: could not build drift diff for %s: %v", c.Path, err)
			continue
		}
		if text != "" {
			diffTexts = append(diffTexts, text)
		}
	}

	merged, err := diffs.Merge(diffTexts, diffs.MergeOptions{PreserveGitHeaders: true, ConflictResolution: diffs.ConflictConcatenate})
	if err != nil {
		return DriftResult{}, err
	}

	return DriftResult{HasChanges: true, Changes: changes, GeneratedDiff: merged.MergedText}, nil
}

// changeDiff builds the unified diff for one drift finding. When the
// baseline captured verbatim content it is used for the old side (an exact
// diff); otherwise a placeholder body records that content wasn't captured.
func (m *Manager) changeDiff(c Change, baseline *Data, readContent ContentReader) (string, error) {
	haveOldContent := baseline.FileContents != nil
	var oldContent, newContent string
	if haveOldContent {
		oldContent = baseline.FileContents[c.Path]
	}
	if c.ChangeType != Deleted && readContent != nil {
		if text, err := readContent(c.Path); err == nil {
			newContent = text
		}
	}

	if haveOldContent {
		return diffs.GenerateUnifiedDiff(oldContent, newContent, diffs.GenerateOptions{
			OldPath: c.Path, NewPath: c.Path, GitHeaders: true,
		})
	}
	return placeholderDiff(c), nil
}

func placeholderDiff(c Change) string {
	oldHeader := "a/" + c.Path
	newHeader := "b/" + c.Path
	switch c.ChangeType {
	case Added:
		oldHeader = "/dev/null"
	case Deleted:
		newHeader = "/dev/null"
	}
	return fmt.Sprintf(
		"--- %s\n+++ %s\n@@ -1,1 +1,1 @@\n-[content not captured at checkpoint time]\n+[external change detected, content not captured]\n",
		oldHeader, newHeader,
	)
}

// Cleanup removes checkpoints older than cutoff, always preserving the
// latest checkpoint regardless of age.
func (m *Manager) Cleanup(cutoff time.Time) error {
	m.mu.Lock()
	var kept []metaEntry
	var removed []metaEntry
	latestID := ""
	if m.latest != nil {
		latestID = m.latest.ID
	}
	for _, e := range m.entries {
		if e.ID != latestID && e.Timestamp.Before(cutoff) {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	m.mu.Unlock()

	for _, e := range removed {
		path := filepath.Join(m.root, e.ID+".json")
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("checkpoint: failed removing %s: %v", path, err)
		}
	}
	return m.writeMetadata(kept, latestID)
}

func (m *Manager) scanWorkspace() (map[string]string, map[string]string, error) {
	hashes := make(map[string]string)
	var contents map[string]string
	if m.cfg.SaveLatestFiles {
		contents = make(map[string]string)
	}

	err := filepath.WalkDir(m.workspacePath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, relErr := filepath.Rel(m.workspacePath, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		name := d.Name()

		if d.IsDir() {
			if name == engineDirName || name == "node_modules" || name == ".git" {
				return fs.SkipDir
			}
			return nil
		}
		if name == ".DS_Store" || strings.HasSuffix(name, ".log") {
			return nil
		}
		if m.ignore != nil && m.ignore(rel) {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			m.logger.Warn("checkpoint: unreadable file %s: %v", rel, readErr)
			return nil
		}
		hashes[rel] = filehash.Hash(data)
		if contents != nil {
			contents[rel] = string(data)
		}
		return nil
	})
	if err != nil {
		return nil, nil, engineerrors.NewIOError("walk", m.workspacePath, err)
	}
	return hashes, contents, nil
}

func (m *Manager) writeCheckpoint(cp *Data) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal %s: %w", cp.ID, err)
	}
	path := filepath.Join(m.root, cp.ID+".json")
	return writeAtomicBytes(path, data)
}

func (m *Manager) writeMetadata(entries []metaEntry, latestID string) error {
	meta := metadataFile{Checkpoints: entries, LatestCheckpointID: latestID}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal metadata: %w", err)
	}
	return writeAtomicBytes(m.metadataPath(), data)
}

func (m *Manager) metadataPath() string {
	return filepath.Join(m.root, metadataFileName)
}

func writeAtomicBytes(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return engineerrors.NewIOError("mkdir", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return engineerrors.NewIOError("write", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return engineerrors.NewIOError("rename", path, err)
	}
	return nil
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}
