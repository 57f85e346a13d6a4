package engine

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"dev.helix.snapshots/internal/checkpoint"
	"dev.helix.snapshots/internal/clock"
	"dev.helix.snapshots/internal/consolidate"
	"dev.helix.snapshots/internal/diffs"
	"dev.helix.snapshots/internal/engineconfig"
	"dev.helix.snapshots/internal/engineerrors"
	"dev.helix.snapshots/internal/filehash"
	"dev.helix.snapshots/internal/fsruntime"
	"dev.helix.snapshots/internal/idgen"
	"dev.helix.snapshots/internal/ignore"
	"dev.helix.snapshots/internal/logging"
	"dev.helix.snapshots/internal/store"
)

// Engine orchestrates every sub-manager for one workspace. Every mutating
// method serializes behind mu; read-only queries take their own snapshot of
// state under a brief lock and otherwise run lock-free against the
// thread-safe sub-managers.
type Engine struct {
	workspacePath string
	cfg           engineconfig.EngineConfig
	logger        *logging.Logger
	clock         clock.Clock
	idGen         *idgen.Generator

	ignoreMgr      *ignore.Manager
	st             *store.Store
	cpMgr          *checkpoint.Manager
	consolidateMgr *consolidate.Manager

	mu             sync.Mutex
	lastID         string
	sequenceNumber int
	currentHashes  map[string]string
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithConfig overrides the engine's configuration.
func WithConfig(cfg engineconfig.EngineConfig) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger overrides the engine's logger (and, transitively, the loggers
// handed to every sub-manager constructed afterward).
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the engine's time source.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithIDGenerator overrides the engine's identifier generator.
func WithIDGenerator(g *idgen.Generator) Option {
	return func(e *Engine) { e.idGen = g }
}

// New constructs an Engine for workspacePath. Call Init before use.
func New(workspacePath string, opts ...Option) (*Engine, error) {
	e := &Engine{
		workspacePath: workspacePath,
		cfg:           engineconfig.DefaultEngineConfig(),
		logger:        logging.New("engine", logging.INFO),
		clock:         clock.Real{},
		idGen:         idgen.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cfg.WorkspacePath = workspacePath

	e.ignoreMgr = ignore.New(workspacePath,
		ignore.WithExtraPatterns(e.cfg.Ignore.ExcludeFromChecking),
		ignore.WithLogger(e.logger.Named("ignore")),
	)

	st, err := store.New(workspacePath, e.cfg.Store.ToStoreConfig(), e.logger.Named("store"))
	if err != nil {
		return nil, err
	}
	e.st = st

	e.cpMgr = checkpoint.New(workspacePath, e.cfg.Checkpoint.ToCheckpointConfig(),
		checkpoint.WithClock(e.clock),
		checkpoint.WithLogger(e.logger.Named("checkpoint")),
		checkpoint.WithIgnoreFunc(e.ignoreMgr.IsIgnored),
	)

	e.consolidateMgr = consolidate.New(e.st, e.clock, e.logger.Named("consolidate"))

	return e, nil
}

// Init delegates to every sub-manager, loads the engine's cached state from
// the latest snapshot, and bootstraps an initial checkpoint if none exists.
// Idempotent.
func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ignoreMgr.Init(); err != nil {
		return err
	}
	if err := e.st.Init(); err != nil {
		return err
	}
	if err := e.cpMgr.Init(); err != nil {
		return err
	}

	if head, ok := e.chainHeadLocked(); ok {
		full, ok2, err := e.st.Load(head.ID)
		if err != nil {
			return err
		}
		if ok2 {
			e.lastID = full.ID
			e.sequenceNumber = full.SequenceNumber
			e.currentHashes = cloneMap(full.ResultFileHashes)
		}
	}

	if _, ok, err := e.cpMgr.LoadLatest(); err != nil {
		return err
	} else if !ok {
		if _, err := e.cpMgr.CreateInitial(e.idGen); err != nil {
			return err
		}
	}

	if e.currentHashes == nil {
		if cp, ok, err := e.cpMgr.LoadLatest(); err != nil {
			return err
		} else if ok {
			e.currentHashes = cloneMap(cp.FileHashes)
		}
	}

	return nil
}

// CreateSnapshot records one edit operation as a new immutable snapshot:
// ignore filtering, drift detection, hash bookkeeping, persistence, and a
// fresh post-state checkpoint, in that order.
func (e *Engine) CreateSnapshot(op CreateSnapshotOp) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.createSnapshotLocked(op)
}

func (e *Engine) createSnapshotLocked(op CreateSnapshotOp) (string, error) {
	// An empty intended diff is rejected rather than treated as a no-op, so
	// every committed snapshot carries a real base-to-result transition.
	if strings.TrimSpace(op.Diff) == "" {
		return "", engineerrors.NewInputError("EmptyDiff", "create_snapshot requires a non-empty unified diff")
	}

	affected := e.ignoreMgr.FilterIgnored(op.AffectedFiles)
	if len(affected) == 0 {
		return "", engineerrors.NewIgnoreError(op.AffectedFiles)
	}

	if e.cfg.Drift.Enabled {
		if err := e.handleDriftLocked(affected); err != nil {
			return "", err
		}
	}

	baseHashes := make(map[string]string, len(affected))
	for _, f := range affected {
		if h, ok := e.currentHashes[f]; ok {
			baseHashes[f] = h
		}
	}
	resultHashes := make(map[string]string, len(affected))
	for _, f := range affected {
		resultHashes[f] = filehash.HashFile(filepath.Join(e.workspacePath, f))
	}

	id, err := e.idGen.Generate(e.idExists)
	if err != nil {
		return "", err
	}

	seq := e.sequenceNumber + 1
	snap := &store.Snapshot{
		ID:                 id,
		Timestamp:          e.clock.Now(),
		SequenceNumber:     seq,
		PreviousSnapshotID: e.lastID,
		Tool:               op.Tool,
		Description:        op.Description,
		AffectedFiles:      affected,
		Diff:               op.Diff,
		ReverseDiff:        e.computeReverseDiff(op.Diff),
		BaseFileHashes:     baseHashes,
		ResultFileHashes:   resultHashes,
		Context: store.Context{
			SessionID:     op.Context.SessionID,
			WorkspacePath: e.workspacePath,
			ToolParams:    op.Context.ToolParams,
		},
		Metadata: store.Metadata{
			FilesSizeBytes:  op.Metadata.FilesSizeBytes,
			LinesChanged:    op.Metadata.LinesChanged,
			ExecutionTimeMs: op.Metadata.ExecutionTimeMs,
		},
	}

	if err := e.st.Save(snap); err != nil {
		return "", err
	}

	cpID, err := e.cpMgr.CreateAfter(id, affected, e.idGen)
	if err != nil {
		return "", err
	}
	cp, ok, err := e.cpMgr.Load(cpID)
	if err != nil {
		return "", err
	}
	if ok {
		e.currentHashes = cloneMap(cp.FileHashes)
	}

	e.lastID = id
	e.sequenceNumber = seq
	return id, nil
}

// handleDriftLocked runs unknown-change detection across the non-ignored
// workspace minus the declared affected files, and — depending on the
// configured strategy — either persists a synthetic UnknownChangeIntegration
// snapshot first, or fails the whole call without writing anything.
func (e *Engine) handleDriftLocked(affected []string) error {
	calcHashes := func() (map[string]string, error) {
		return e.hashNonIgnoredWorkspace(affected)
	}
	readContent := func(rel string) (string, error) {
		data, err := os.ReadFile(filepath.Join(e.workspacePath, rel))
		return string(data), err
	}

	result, err := e.cpMgr.DetectUnknown(affected, calcHashes, readContent)
	if err != nil {
		return err
	}
	if !result.HasChanges {
		return nil
	}

	switch e.cfg.Drift.Strategy {
	case engineconfig.DriftError:
		return engineerrors.NewUnknownDriftError(changePaths(result.Changes))
	case engineconfig.DriftWarn, engineconfig.DriftAutoFix:
		return e.persistUnknownSnapshotLocked(result)
	default:
		return e.persistUnknownSnapshotLocked(result)
	}
}

func (e *Engine) persistUnknownSnapshotLocked(result checkpoint.DriftResult) error {
	paths := changePaths(result.Changes)
	sort.Strings(paths)

	baseHashes := make(map[string]string)
	resultHashes := make(map[string]string)
	linesChanged := 0
	for _, c := range result.Changes {
		if c.OldHash != "" {
			baseHashes[c.Path] = c.OldHash
		}
		if c.NewHash != "" {
			resultHashes[c.Path] = c.NewHash
		}
	}
	if fds, err := diffs.ParseDetailed(result.GeneratedDiff); err == nil {
		for _, fd := range fds {
			added, deleted := diffs.CountChanges(fd)
			linesChanged += added + deleted
		}
	}

	id, err := e.idGen.Generate(e.idExists)
	if err != nil {
		return err
	}

	seq := e.sequenceNumber + 1
	snap := &store.Snapshot{
		ID:                 id,
		Timestamp:          e.clock.Now(),
		SequenceNumber:     seq,
		PreviousSnapshotID: e.lastID,
		Tool:               "UnknownChangeIntegration",
		Description:        fmt.Sprintf("Detected external changes to: %s", strings.Join(paths, ", ")),
		AffectedFiles:      paths,
		Diff:               result.GeneratedDiff,
		ReverseDiff:        e.computeReverseDiff(result.GeneratedDiff),
		BaseFileHashes:     baseHashes,
		ResultFileHashes:   resultHashes,
		Context: store.Context{
			SessionID:     "system",
			WorkspacePath: e.workspacePath,
		},
		Metadata: store.Metadata{LinesChanged: linesChanged},
	}

	if err := e.st.Save(snap); err != nil {
		return err
	}
	cpID, err := e.cpMgr.CreateAfter(id, paths, e.idGen)
	if err != nil {
		return err
	}
	cp, ok, err := e.cpMgr.Load(cpID)
	if err != nil {
		return err
	}
	if ok {
		e.currentHashes = cloneMap(cp.FileHashes)
	}

	e.lastID = id
	e.sequenceNumber = seq
	return nil
}

func (e *Engine) computeReverseDiff(diffText string) string {
	if diffText == "" {
		return ""
	}
	rev, err := diffs.Reverse(diffText, diffs.ReverseOptions{})
	if err != nil {
		e.logger.Warn("engine: could not compute reverse diff: %v", err)
		return ""
	}
	return rev
}

func (e *Engine) idExists(candidate string) bool {
	_, ok := e.st.Get(candidate)
	return ok
}

func (e *Engine) hashNonIgnoredWorkspace(excluded []string) (map[string]string, error) {
	exclude := make(map[string]bool, len(excluded))
	for _, f := range excluded {
		exclude[f] = true
	}

	hashes := make(map[string]string)
	err := filepath.WalkDir(e.workspacePath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, relErr := filepath.Rel(e.workspacePath, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if e.ignoreMgr.IsIgnored(rel + "/") {
				return fs.SkipDir
			}
			return nil
		}
		if exclude[rel] || e.ignoreMgr.IsIgnored(rel) {
			return nil
		}
		hashes[rel] = filehash.HashFile(path)
		return nil
	})
	if err != nil {
		return nil, engineerrors.NewIOError("walk", e.workspacePath, err)
	}
	return hashes, nil
}

// ReadSnapshotDiff fetches a snapshot and rehydrates its diff text.
func (e *Engine) ReadSnapshotDiff(id string) (ReadDiffResult, error) {
	snap, ok, err := e.st.Load(id)
	if err != nil {
		return ReadDiffResult{}, err
	}
	if !ok {
		return ReadDiffResult{}, engineerrors.NewInputError("UnknownSnapshot", id)
	}
	return ReadDiffResult{OK: true, Diff: snap.Diff, SnapshotMeta: snap}, nil
}

// GetEditHistory iterates snapshots in reverse-chronological order,
// filtering and paginating per query.
func (e *Engine) GetEditHistory(q HistoryQuery) (HistoryPage, error) {
	ids := e.st.IDsByTime()
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	var page HistoryPage
	count := 0
	for i := len(ids) - 1; i >= 0; i-- {
		snap, ok, err := e.st.Load(ids[i])
		if err != nil {
			return HistoryPage{}, err
		}
		if !ok {
			continue
		}
		if q.Since != nil && snap.Timestamp.Before(*q.Since) {
			continue
		}
		if q.Until != nil && snap.Timestamp.After(*q.Until) {
			continue
		}
		if q.ToolFilter != "" && snap.Tool != q.ToolFilter {
			continue
		}
		if q.FileFilter != "" && !containsFile(snap.AffectedFiles, q.FileFilter) {
			continue
		}
		if count >= limit {
			page.HasMore = true
			break
		}

		item := *snap
		if !q.IncludeDiffs {
			item.Diff = ""
			item.ReverseDiff = ""
		}
		page.Items = append(page.Items, item)
		count++
	}
	return page, nil
}

// ReverseOp applies a snapshot's reverse diff through the caller-supplied
// Runtime and records the reversal as a new forward snapshot, preserving
// the chain.
func (e *Engine) ReverseOp(id string, opts ReverseOptions, rt Runtime) (ReverseResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, ok, err := e.st.Load(id)
	if err != nil {
		return ReverseResult{}, err
	}
	if !ok {
		return ReverseResult{}, engineerrors.NewInputError("UnknownSnapshot", id)
	}
	if snap.ReverseDiff == "" {
		return ReverseResult{}, engineerrors.NewInputError("NotReversible",
			fmt.Sprintf("snapshot %s has no reverse diff", id))
	}

	if opts.DryRun {
		return ReverseResult{
			OK:            true,
			ReverseDiff:   snap.ReverseDiff,
			AffectedFiles: append([]string(nil), snap.AffectedFiles...),
		}, nil
	}

	applyResult, err := rt.ApplyUnifiedDiff(snap.ReverseDiff, fsruntime.ApplyOptions{BaseDir: e.workspacePath})
	if err != nil {
		if !opts.Force {
			return ReverseResult{OK: false, Message: err.Error()}, err
		}
	}
	if !applyResult.OK && !opts.Force {
		return ReverseResult{OK: false, Message: applyResult.Message},
			engineerrors.NewIOError("apply_unified_diff", e.workspacePath, fmt.Errorf("%s", applyResult.Message))
	}

	affected := applyResult.AffectedFiles
	if len(affected) == 0 {
		affected = snap.AffectedFiles
	}

	newID, err := e.createSnapshotLocked(CreateSnapshotOp{
		Tool:          "ReverseOp",
		Description:   fmt.Sprintf("ReverseOp: %s", snap.Description),
		AffectedFiles: affected,
		Diff:          snap.ReverseDiff,
		Context: OpContext{
			SessionID: snap.Context.SessionID,
		},
		Metadata: OpMetadata{
			LinesChanged: snap.Metadata.LinesChanged,
		},
	})
	if err != nil {
		return ReverseResult{}, err
	}

	return ReverseResult{
		OK:            true,
		SnapshotID:    newID,
		ReverseDiff:   snap.ReverseDiff,
		AffectedFiles: affected,
	}, nil
}

// ConsolidateSnapshots merges a contiguous snapshot range, selected either
// by explicit ids or by a sequence range (exactly one must be supplied).
func (e *Engine) ConsolidateSnapshots(opts ConsolidateOptions) (ConsolidateResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	hasIDs := len(opts.IDs) > 0
	hasRange := opts.SequenceRange != nil
	if hasIDs == hasRange {
		return ConsolidateResult{}, engineerrors.NewInputError("AmbiguousSelector",
			"exactly one of ids or sequence_range must be supplied")
	}

	ids := opts.IDs
	if hasRange {
		ids = e.snapshotIDsBySequenceRangeLocked(opts.SequenceRange[0], opts.SequenceRange[1])
		if len(ids) == 0 {
			return ConsolidateResult{}, engineerrors.NewInputError("InvalidSequenceRange",
				fmt.Sprintf("no snapshots in range [%d,%d]", opts.SequenceRange[0], opts.SequenceRange[1]))
		}
	}

	result, err := e.consolidateMgr.Consolidate(ids, opts.Title, opts.Description, opts.DeleteOriginals, e.idGen)
	if err != nil {
		return ConsolidateResult{}, err
	}

	if head, ok := e.chainHeadLocked(); ok {
		e.lastID = head.ID
		e.sequenceNumber = head.SequenceNumber
	} else {
		e.lastID = ""
		e.sequenceNumber = 0
	}

	// Renumbering failures inside Consolidate are logged, not rolled back;
	// a post-commit validator pass surfaces anything left to heal.
	if vr, verr := e.ValidateIntegrity(); verr == nil && !vr.Valid {
		for _, issue := range vr.Issues {
			e.logger.Warn("post-consolidation integrity issue: %s", issue.Detail)
		}
	}

	return ConsolidateResult{
		ConsolidatedID:   result.ConsolidatedID,
		SequenceRange:    result.SequenceRange,
		DeletedOriginals: result.DeletedOriginals,
	}, nil
}

// GetSnapshotIDsBySequenceRange returns, in ascending sequence order, every
// snapshot id whose sequence number falls within [start, end].
func (e *Engine) GetSnapshotIDsBySequenceRange(start, end int) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotIDsBySequenceRangeLocked(start, end)
}

// chainHeadLocked returns the snapshot with the greatest sequence number.
// This, not the newest timestamp, is the chain head: a mid-chain
// consolidation mints a fresh timestamp on a snapshot that is not the tail.
func (e *Engine) chainHeadLocked() (store.IndexEntry, bool) {
	ids := e.st.IDsBySequence()
	if len(ids) == 0 {
		return store.IndexEntry{}, false
	}
	return e.st.Get(ids[len(ids)-1])
}

func (e *Engine) snapshotIDsBySequenceRangeLocked(start, end int) []string {
	var out []string
	for _, id := range e.st.IDsBySequence() {
		entry, ok := e.st.Get(id)
		if ok && entry.SequenceNumber >= start && entry.SequenceNumber <= end {
			out = append(out, id)
		}
	}
	return out
}

// ValidateIntegrity loads every snapshot and checks the chain invariants:
// dense sequence numbering starting at 1 and each snapshot pointing at its
// immediate predecessor.
func (e *Engine) ValidateIntegrity() (consolidate.ValidationResult, error) {
	var snaps []*store.Snapshot
	for _, id := range e.st.IDsBySequence() {
		s, ok, err := e.st.Load(id)
		if err != nil {
			return consolidate.ValidationResult{}, err
		}
		if ok {
			snaps = append(snaps, s)
		}
	}
	return consolidate.ValidateSequenceContinuity(snaps), nil
}

// Cleanup prunes checkpoints older than olderThan (defaulting to the
// configured checkpoint max age).
func (e *Engine) Cleanup(olderThan *time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.clock.Now().Add(-e.cfg.Checkpoint.MaxAge)
	if olderThan != nil {
		cutoff = *olderThan
	}
	return e.cpMgr.Cleanup(cutoff)
}

// GetCacheStats reports the size of the in-memory snapshot index.
func (e *Engine) GetCacheStats() CacheStats {
	return CacheStats{
		SnapshotCount:   e.st.Count(),
		ByTimeCount:     len(e.st.IDsByTime()),
		BySequenceCount: len(e.st.IDsBySequence()),
	}
}

// GetCurrentState returns the engine's cached chain position.
func (e *Engine) GetCurrentState() CurrentState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return CurrentState{
		LastSnapshotID:  e.lastID,
		SequenceNumber:  e.sequenceNumber,
		KnownFileHashes: cloneMap(e.currentHashes),
	}
}

// UpdateConfig applies a mutation to the engine's live configuration.
func (e *Engine) UpdateConfig(mutate func(*engineconfig.EngineConfig)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	mutate(&e.cfg)
}

// GetConfig returns a copy of the engine's current configuration.
func (e *Engine) GetConfig() engineconfig.EngineConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// GetWorkspacePath returns the workspace root this engine was constructed for.
func (e *Engine) GetWorkspacePath() string {
	return e.workspacePath
}

// FilterIgnoredFiles returns the subset of paths not excluded by the
// ignore ruleset.
func (e *Engine) FilterIgnoredFiles(paths []string) []string {
	return e.ignoreMgr.FilterIgnored(paths)
}

// GetIgnoreInfo reports the ignore manager's current ruleset.
func (e *Engine) GetIgnoreInfo() IgnoreInfo {
	return e.ignoreMgr.Info()
}

// ReloadIgnoreRules re-reads .snapshotignore and recomputes the ruleset.
func (e *Engine) ReloadIgnoreRules() error {
	return e.ignoreMgr.Reload()
}

func changePaths(changes []checkpoint.Change) []string {
	out := make([]string, 0, len(changes))
	for _, c := range changes {
		out = append(out, c.Path)
	}
	return out
}

func containsFile(files []string, pattern string) bool {
	for _, f := range files {
		if f == pattern || strings.Contains(f, pattern) {
			return true
		}
	}
	return false
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
