package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"dev.helix.snapshots/internal/engineerrors"
	"dev.helix.snapshots/internal/logging"
)

const snapshotsDirName = "snapshots"

// DiffFileFormat selects how an externalized diff file is written.
type DiffFileFormat int

const (
	// DiffFormatMarkdown writes a fenced ```diff``` block with a title header.
	DiffFormatMarkdown DiffFileFormat = iota
	// DiffFormatPlain writes the raw diff text with a ".diff" extension.
	DiffFormatPlain
	// DiffFormatText writes the diff with a banner and a ".txt" extension.
	DiffFormatText
)

func (f DiffFileFormat) extension() string {
	switch f {
	case DiffFormatPlain:
		return "diff"
	case DiffFormatText:
		return "txt"
	default:
		return "md"
	}
}

// Config configures the Core snapshot store.
type Config struct {
	SaveDiffFiles bool
	DiffFormat    DiffFileFormat
	CacheSize     int // bounded in-memory snapshot body cache; 0 defaults to 256
}

// DefaultConfig returns the store's production defaults.
func DefaultConfig() Config {
	return Config{
		SaveDiffFiles: true,
		DiffFormat:    DiffFormatMarkdown,
		CacheSize:     256,
	}
}

// indexFile is the on-disk shape of index.json.
type indexFile struct {
	Snapshots []IndexEntry `json:"snapshots"`
}

// Store is the Core snapshot store for one workspace.
type Store struct {
	root          string // <workspace>/.continue-reasoning/snapshots
	workspacePath string
	cfg           Config
	logger        *logging.Logger

	mu          sync.RWMutex
	byID        map[string]IndexEntry
	byTime      []string // ids sorted by Timestamp ascending
	bySequence  []string // ids sorted by SequenceNumber ascending
	bodyCache   *lru.Cache[string, *Snapshot]
}

// New creates a Store rooted at <workspacePath>/.continue-reasoning/snapshots.
func New(workspacePath string, cfg Config, logger *logging.Logger) (*Store, error) {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}
	cache, err := lru.New[string, *Snapshot](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("store: creating cache: %w", err)
	}
	if logger == nil {
		logger = logging.New("store", logging.INFO)
	}
	return &Store{
		root:          filepath.Join(workspacePath, ".continue-reasoning", snapshotsDirName),
		workspacePath: workspacePath,
		cfg:           cfg,
		logger:        logger,
		byID:          make(map[string]IndexEntry),
		bodyCache:     cache,
	}, nil
}

// Init creates the store's directories, creates an empty index if absent,
// and loads the cache.
func (s *Store) Init() error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return engineerrors.NewIOError("mkdir", s.root, err)
	}
	if _, err := os.Stat(s.indexPath()); os.IsNotExist(err) {
		if err := s.writeIndex(nil); err != nil {
			return err
		}
	}
	return s.ReloadCache()
}

// ReloadCache clears and re-reads the index from disk. Corrupted index
// JSON is treated as empty (logged, cache stays empty) so the workspace
// remains recoverable.
func (s *Store) ReloadCache() error {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			s.setIndex(nil)
			return nil
		}
		return engineerrors.NewIOError("read", s.indexPath(), err)
	}

	var idx indexFile
	if err := json.Unmarshal(data, &idx); err != nil {
		s.logger.Warn("index.json is corrupted, treating workspace as empty: %v", err)
		s.setIndex(nil)
		return nil
	}
	s.setIndex(idx.Snapshots)
	return nil
}

func (s *Store) setIndex(entries []IndexEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]IndexEntry, len(entries))
	for _, e := range entries {
		s.byID[e.ID] = e
	}
	s.resortLocked()
}

func (s *Store) resortLocked() {
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	byTime := append([]string(nil), ids...)
	sort.Slice(byTime, func(i, j int) bool {
		return s.byID[byTime[i]].Timestamp.Before(s.byID[byTime[j]].Timestamp)
	})
	bySeq := append([]string(nil), ids...)
	sort.Slice(bySeq, func(i, j int) bool {
		return s.byID[bySeq[i]].SequenceNumber < s.byID[bySeq[j]].SequenceNumber
	})
	s.byTime = byTime
	s.bySequence = bySeq
}

// Save writes a snapshot's full JSON atomically, externalizes its diffs if
// configured to, updates the in-memory index, and persists index.json.
// Re-saving the same id overwrites it in place.
func (s *Store) Save(snap *Snapshot) error {
	dir := s.dateDir(snap.Timestamp)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return engineerrors.NewIOError("mkdir", dir, err)
	}

	toPersist := *snap
	if s.cfg.SaveDiffFiles {
		if err := s.externalizeDiffs(&toPersist, dir); err != nil {
			return err
		}
	}

	snapPath := s.snapshotPath(snap.Timestamp, snap.ID)
	if err := writeAtomic(snapPath, &toPersist); err != nil {
		return err
	}

	entry := IndexEntry{
		ID:                 snap.ID,
		Timestamp:          snap.Timestamp,
		Tool:               snap.Tool,
		AffectedFiles:      append([]string(nil), snap.AffectedFiles...),
		SequenceNumber:     snap.SequenceNumber,
		PreviousSnapshotID: snap.PreviousSnapshotID,
	}

	s.mu.Lock()
	s.byID[snap.ID] = entry
	s.resortLocked()
	s.mu.Unlock()

	cached := *snap
	cached.DiffPath = toPersist.DiffPath
	cached.ReverseDiffPath = toPersist.ReverseDiffPath
	s.bodyCache.Add(snap.ID, &cached)

	return s.persistIndex()
}

// Load reads a snapshot by id, rehydrating externalized diff text. The
// bounded in-memory cache is consulted first; misses read through to disk.
func (s *Store) Load(id string) (*Snapshot, bool, error) {
	if cached, ok := s.bodyCache.Get(id); ok {
		return cached, true, nil
	}

	s.mu.RLock()
	entry, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	path := s.snapshotPath(entry.Timestamp, entry.ID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, engineerrors.NewIOError("read", path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false, engineerrors.NewIOError("unmarshal", path, err)
	}

	if err := s.rehydrateDiffs(&snap); err != nil {
		return nil, false, err
	}

	s.bodyCache.Add(id, &snap)
	return &snap, true, nil
}

// Remove deletes a snapshot's index entry and persists index.json. It does
// not delete the on-disk snapshot file; callers that want that do it
// themselves via DeleteFiles. Index removal is unconditional for a merged
// original, on-disk deletion is the caller's choice.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	delete(s.byID, id)
	s.resortLocked()
	s.mu.Unlock()
	s.bodyCache.Remove(id)
	return s.persistIndex()
}

// DeleteFiles removes a snapshot's on-disk JSON file and any diff files it
// externalized, using the fields of an already-loaded Snapshot. It never
// touches index.json or the in-memory index; pair it with Remove.
func (s *Store) DeleteFiles(snap *Snapshot) error {
	if err := removeIfExists(s.snapshotPath(snap.Timestamp, snap.ID)); err != nil {
		return err
	}
	if snap.DiffPath != "" {
		if err := removeIfExists(filepath.Join(s.root, snap.DiffPath)); err != nil {
			return err
		}
	}
	if snap.ReverseDiffPath != "" {
		if err := removeIfExists(filepath.Join(s.root, snap.ReverseDiffPath)); err != nil {
			return err
		}
	}
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return engineerrors.NewIOError("remove", path, err)
	}
	return nil
}

// Latest returns the index entry with the greatest Timestamp, if any.
func (s *Store) Latest() (IndexEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.byTime) == 0 {
		return IndexEntry{}, false
	}
	return s.byID[s.byTime[len(s.byTime)-1]], true
}

// Index returns a snapshot of every index entry.
func (s *Store) Index() []IndexEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]IndexEntry, 0, len(s.byID))
	for _, id := range s.byTime {
		out = append(out, s.byID[id])
	}
	return out
}

// IDsByTime returns every snapshot id ordered by ascending timestamp.
func (s *Store) IDsByTime() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.byTime...)
}

// IDsBySequence returns every snapshot id ordered by ascending sequence number.
func (s *Store) IDsBySequence() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.bySequence...)
}

// Get returns the index entry for id, if present.
func (s *Store) Get(id string) (IndexEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	return e, ok
}

// Count returns the number of snapshots currently indexed.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// FileSize returns the on-disk size in bytes of the snapshot's JSON file,
// or 0 if the snapshot is unknown or its file is missing.
func (s *Store) FileSize(id string) (int64, error) {
	s.mu.RLock()
	entry, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return 0, nil
	}
	info, err := os.Stat(s.snapshotPath(entry.Timestamp, entry.ID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, engineerrors.NewIOError("stat", s.snapshotPath(entry.Timestamp, entry.ID), err)
	}
	return info.Size(), nil
}

func (s *Store) persistIndex() error {
	s.mu.RLock()
	entries := make([]IndexEntry, 0, len(s.byTime))
	for _, id := range s.byTime {
		entries = append(entries, s.byID[id])
	}
	s.mu.RUnlock()
	return s.writeIndex(entries)
}

func (s *Store) writeIndex(entries []IndexEntry) error {
	return writeAtomic(s.indexPath(), indexFile{Snapshots: entries})
}

// writeAtomic marshals v to indented JSON and writes it to path via a
// write-temp-then-rename sequence, so partially written files are never
// observed.
func writeAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", path, err)
	}
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

func (s *Store) indexPath() string {
	return filepath.Join(s.root, "index.json")
}

func (s *Store) dateDir(ts time.Time) string {
	return filepath.Join(s.root, ts.Format("2006"), ts.Format("01"), ts.Format("02"))
}

func (s *Store) snapshotPath(ts time.Time, id string) string {
	return filepath.Join(s.dateDir(ts), fmt.Sprintf("%s_%s.json", ts.Format("150405"), id))
}

// externalizeDiffs writes snap.Diff/ReverseDiff out to separate files
// under dir/diffs and replaces the in-struct text with the "[Stored in
// <path>]" sentinel, recording the relative path in DiffPath/ReverseDiffPath.
func (s *Store) externalizeDiffs(snap *Snapshot, dir string) error {
	diffDir := filepath.Join(dir, "diffs")
	if snap.Diff == "" && snap.ReverseDiff == "" {
		return nil
	}
	if err := os.MkdirAll(diffDir, 0o755); err != nil {
		return engineerrors.NewIOError("mkdir", diffDir, err)
	}

	ext := s.cfg.DiffFormat.extension()
	stamp := snap.Timestamp.Format("150405")

	if snap.Diff != "" {
		rel := filepath.Join(snap.Timestamp.Format("2006"), snap.Timestamp.Format("01"), snap.Timestamp.Format("02"), "diffs",
			fmt.Sprintf("%s_%s_diff.%s", stamp, snap.ID, ext))
		full := filepath.Join(s.root, rel)
		if err := os.WriteFile(full, []byte(renderDiffFile(s.cfg.DiffFormat, snap.ID, snap.Timestamp, "Forward Operation", snap.Diff)), 0o644); err != nil {
			return engineerrors.NewIOError("write", full, err)
		}
		snap.DiffPath = rel
		snap.Diff = fmt.Sprintf("[Stored in %s]", rel)
	}

	if snap.ReverseDiff != "" {
		rel := filepath.Join(snap.Timestamp.Format("2006"), snap.Timestamp.Format("01"), snap.Timestamp.Format("02"), "diffs",
			fmt.Sprintf("%s_%s_reverse_diff.%s", stamp, snap.ID, ext))
		full := filepath.Join(s.root, rel)
		if err := os.WriteFile(full, []byte(renderDiffFile(s.cfg.DiffFormat, snap.ID, snap.Timestamp, "Reverse Operation", snap.ReverseDiff)), 0o644); err != nil {
			return engineerrors.NewIOError("write", full, err)
		}
		snap.ReverseDiffPath = rel
		snap.ReverseDiff = fmt.Sprintf("[Stored in %s]", rel)
	}

	return nil
}

// rehydrateDiffs replaces the "[Stored in <path>]" sentinels with the
// real diff text read back from disk.
func (s *Store) rehydrateDiffs(snap *Snapshot) error {
	if snap.DiffPath != "" && strings.HasPrefix(snap.Diff, "[Stored in ") {
		data, err := os.ReadFile(filepath.Join(s.root, snap.DiffPath))
		if err != nil {
			return engineerrors.NewIOError("read", snap.DiffPath, err)
		}
		snap.Diff = extractDiffBody(data)
	}
	if snap.ReverseDiffPath != "" && strings.HasPrefix(snap.ReverseDiff, "[Stored in ") {
		data, err := os.ReadFile(filepath.Join(s.root, snap.ReverseDiffPath))
		if err != nil {
			return engineerrors.NewIOError("read", snap.ReverseDiffPath, err)
		}
		snap.ReverseDiff = extractDiffBody(data)
	}
	return nil
}

func renderDiffFile(format DiffFileFormat, id string, ts time.Time, kind, diff string) string {
	switch format {
	case DiffFormatPlain:
		return diff
	case DiffFormatText:
		return fmt.Sprintf("Diff - %s\nType: %s\n\n%s", id, kind, diff)
	default:
		return fmt.Sprintf("# Diff - %s\n\n**Timestamp:** %s\n**Type:** %s\n\n```diff\n%s```\n",
			id, ts.Format(time.RFC3339), kind, diff)
	}
}

// extractDiffBody pulls the raw diff text back out of a rendered diff
// file, tolerating all three formats produced by renderDiffFile.
func extractDiffBody(data []byte) string {
	text := string(data)
	if idx := strings.Index(text, "```diff\n"); idx >= 0 {
		body := text[idx+len("```diff\n"):]
		body = strings.TrimSuffix(body, "```\n")
		body = strings.TrimSuffix(body, "```")
		return body
	}
	if idx := strings.Index(text, "\n\n"); idx >= 0 && strings.HasPrefix(text, "Diff - ") {
		return text[idx+2:]
	}
	return text
}
