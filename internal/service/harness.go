// Package service drives harness runs: generate versions, back each one up,
// then restore and verify every version in order.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/afero"

	"github.com/Ning0612/restoredrill/internal/adapter"
	"github.com/Ning0612/restoredrill/internal/core/checksum"
	"github.com/Ning0612/restoredrill/internal/core/content"
	"github.com/Ning0612/restoredrill/internal/core/diff"
	"github.com/Ning0612/restoredrill/internal/core/mutator"
	"github.com/Ning0612/restoredrill/internal/core/snapshot"
	"github.com/Ning0612/restoredrill/internal/domain"
	"github.com/Ning0612/restoredrill/internal/lock"
	"github.com/Ning0612/restoredrill/internal/logger"
	"github.com/Ning0612/restoredrill/internal/progress"
	"github.com/Ning0612/restoredrill/internal/state"
)

// Options configures a HarnessService. Paths are absolute paths on the
// service's filesystem.
type Options struct {
	TestDir   string
	BackupDir string
	KeyFile   string

	Versions int
	// Seed 0 picks a time-based seed
	Seed     uint64
	UseCache bool

	Algorithm checksum.Algorithm
	Exclude   []string
	Content   content.Options
	Mutation  mutator.Options
}

// HarnessService is the test orchestrator. Runs are strictly sequential;
// a service must not be used by two goroutines at once.
type HarnessService struct {
	fs       afero.Fs
	tool     adapter.Tool
	dict     *content.Dictionary
	opts     Options
	seed     uint64
	builder  *snapshot.Builder
	comparer diff.Comparer

	store    *state.Manager
	lock     *lock.FileLock
	reporter progress.Reporter
	log      logger.Logger
}

// NewHarnessService creates a service. The seed is resolved here so it can
// be logged and recorded before the run starts.
func NewHarnessService(fs afero.Fs, tool adapter.Tool, dict *content.Dictionary, opts Options) (*HarnessService, error) {
	if fs == nil || tool == nil || dict == nil {
		return nil, fmt.Errorf("filesystem, tool and dictionary are required")
	}
	if opts.TestDir == "" || opts.BackupDir == "" {
		return nil, fmt.Errorf("test and backup directories are required")
	}
	if opts.Versions <= 0 {
		return nil, fmt.Errorf("%w: versions must be positive, got %d", domain.ErrConfigInvalid, opts.Versions)
	}
	if opts.Algorithm == "" {
		opts.Algorithm = checksum.MD5
	}
	if opts.Exclude == nil {
		opts.Exclude = snapshot.DefaultExclude
	}

	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	return &HarnessService{
		fs:   fs,
		tool: tool,
		dict: dict,
		opts: opts,
		seed: seed,
		builder: snapshot.NewBuilder(fs,
			snapshot.WithAlgorithm(opts.Algorithm),
			snapshot.WithExclude(opts.Exclude...),
		),
		comparer: diff.NewTreeComparer(),
		log:      logger.With("component", "harness"),
	}, nil
}

// SetStore enables the snapshot cache and run history
func (s *HarnessService) SetStore(store *state.Manager) {
	s.store = store
}

// SetLock makes Run hold l for its whole duration
func (s *HarnessService) SetLock(l *lock.FileLock) {
	s.lock = l
}

// SetProgressReporter sets the reporter for both phases
func (s *HarnessService) SetProgressReporter(reporter progress.Reporter) {
	s.reporter = reporter
}

// Seed returns the seed driving generation. After a cache hit it is the
// seed that generated the cached versions.
func (s *HarnessService) Seed() uint64 {
	return s.seed
}

func (s *HarnessService) getReporter() progress.Reporter {
	if s.reporter != nil {
		return s.reporter
	}
	return progress.NullReporter{}
}

// VerificationError reports the first restored version that differs from
// its recorded tree
type VerificationError struct {
	Version  int
	Mismatch *diff.Mismatch
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("version %d: %v", e.Version, e.Mismatch)
}

// Unwrap lets errors.Is match domain.ErrMismatch
func (e *VerificationError) Unwrap() error {
	return domain.ErrMismatch
}

// RunResult summarizes a finished run
type RunResult struct {
	ID        string
	Seed      uint64
	Versions  int
	Cached    bool
	Passed    bool
	StartTime time.Time
	EndTime   time.Time
	// BackupSize is the size of the backup destination after generation
	BackupSize int64
	// Failure is set when verification found a mismatch
	Failure *VerificationError
}

// FailedVersion returns the mismatching version or state.NoFailedVersion
func (r *RunResult) FailedVersion() int {
	if r.Failure == nil {
		return state.NoFailedVersion
	}
	return r.Failure.Version
}

// Generate produces every version, backing each one up right after its tree
// is recorded. A cached record for the same parameters skips all of that.
func (s *HarnessService) Generate(ctx context.Context) (*domain.VersionRecord, error) {
	record, _, err := s.generate(ctx)
	return record, err
}

func (s *HarnessService) generate(ctx context.Context) (*domain.VersionRecord, bool, error) {
	if record := s.loadCached(); record != nil {
		return record, true, nil
	}

	if err := s.initWorkspace(); err != nil {
		return nil, false, err
	}
	if err := s.ensureKey(ctx); err != nil {
		return nil, false, err
	}

	rng := rand.New(rand.NewPCG(s.seed, s.seed))
	gen := content.NewGenerator(rng, s.dict, s.opts.Content)
	mut := mutator.New(s.fs, gen, rng, s.opts.Mutation)
	known := domain.NewKnownPaths()
	record := domain.NewVersionRecord(s.opts.Versions)
	record.Seed = s.seed

	s.log.Info("generating versions", "versions", s.opts.Versions, "seed", s.seed, "test_dir", s.opts.TestDir)

	reporter := s.getReporter()
	reporter.Begin(progress.PhaseGenerate, s.opts.Versions)
	defer reporter.Done()

	for v := 0; v < s.opts.Versions; v++ {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		reporter.Step(v)

		addenda, err := mut.GenerateNextVersion(s.opts.TestDir, known)
		if err != nil {
			return nil, false, fmt.Errorf("generate version %d: %w", v, err)
		}

		tree, err := s.builder.Build(ctx, s.opts.TestDir)
		if err != nil {
			return nil, false, fmt.Errorf("snapshot version %d: %w", v, err)
		}
		record.Append(tree)

		if err := s.tool.Backup(ctx); err != nil {
			return nil, false, fmt.Errorf("backup version %d: %w", v, err)
		}

		s.log.Debug("version generated",
			"version", v,
			"addenda", len(addenda),
			"files", len(known.Files),
			"dirs", len(known.Dirs),
			"binaries", len(known.Binaries),
		)
	}

	s.saveCached(record)
	return record, false, nil
}

// Verify restores each version in order and compares it with the record.
// The first mismatch stops verification and is returned as a
// *VerificationError; any other error is an environment failure.
func (s *HarnessService) Verify(ctx context.Context, record *domain.VersionRecord) error {
	reporter := s.getReporter()
	reporter.Begin(progress.PhaseVerify, record.Len())
	defer reporter.Done()

	for v := 0; v < record.Len(); v++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		reporter.Step(v)

		expected, err := record.Get(v)
		if err != nil {
			return err
		}

		if err := s.resetTestDir(); err != nil {
			return err
		}
		if err := s.tool.Restore(ctx, v); err != nil {
			return fmt.Errorf("restore version %d: %w", v, err)
		}

		actual, err := s.builder.Build(ctx, s.opts.TestDir)
		if err != nil {
			return fmt.Errorf("snapshot restored version %d: %w", v, err)
		}

		if ok, mismatch := s.comparer.Compare(expected, actual); !ok {
			s.log.Error("restored version differs", "version", v, "kind", mismatch.Kind.String(), "diagnostic", mismatch.Error())
			return &VerificationError{Version: v, Mismatch: mismatch}
		}
		s.log.Debug("version verified", "version", v)
	}
	return nil
}

// Run performs a full generate/verify cycle under the workspace lock and
// records it in the run history. A mismatch is reported through
// RunResult.Failure with a nil error.
func (s *HarnessService) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{
		ID:        ulid.Make().String(),
		Seed:      s.seed,
		Versions:  s.opts.Versions,
		StartTime: time.Now(),
	}
	log := s.log.With("run", result.ID)

	if s.lock != nil {
		if err := s.lock.Acquire(result.ID); err != nil {
			return nil, err
		}
		defer func() {
			if err := s.lock.Release(); err != nil {
				log.Warn("failed to release lock", "error", err)
			}
		}()
	}

	log.Info("run started", "tool", s.tool.Name(), "versions", s.opts.Versions)

	err := s.run(ctx, result)
	result.Seed = s.seed
	result.EndTime = time.Now()
	s.recordRun(result, err)

	switch {
	case err != nil:
		log.Error("run aborted", "seed", result.Seed, "error", err)
		return result, err
	case result.Failure != nil:
		log.Error("run failed",
			"version", result.Failure.Version,
			"seed", result.Seed,
			"diagnostic", result.Failure.Mismatch.Error(),
		)
	default:
		log.Info("run passed",
			"seed", result.Seed,
			"elapsed", result.EndTime.Sub(result.StartTime).Round(time.Millisecond),
			"backup_size", progress.FormatBytes(result.BackupSize),
		)
	}
	return result, nil
}

func (s *HarnessService) run(ctx context.Context, result *RunResult) error {
	record, cached, err := s.generate(ctx)
	if err != nil {
		return err
	}
	result.Cached = cached
	result.BackupSize = s.dirSize(s.opts.BackupDir)

	err = s.Verify(ctx, record)
	var verr *VerificationError
	if errors.As(err, &verr) {
		result.Failure = verr
		return nil
	}
	if err != nil {
		return err
	}
	result.Passed = true
	return nil
}

// initWorkspace removes the test directory and the backup destination and
// recreates an empty test directory
func (s *HarnessService) initWorkspace() error {
	if err := s.fs.RemoveAll(s.opts.BackupDir); err != nil {
		return fmt.Errorf("remove backup destination: %w", err)
	}
	return s.resetTestDir()
}

func (s *HarnessService) resetTestDir() error {
	if err := s.fs.RemoveAll(s.opts.TestDir); err != nil {
		return fmt.Errorf("clear test directory: %w", err)
	}
	if err := s.fs.MkdirAll(s.opts.TestDir, 0o755); err != nil {
		return fmt.Errorf("create test directory: %w", err)
	}
	return nil
}

// ensureKey generates key material when the key file is missing
func (s *HarnessService) ensureKey(ctx context.Context) error {
	if s.opts.KeyFile == "" {
		return nil
	}
	exists, err := afero.Exists(s.fs, s.opts.KeyFile)
	if err != nil {
		return fmt.Errorf("check key file: %w", err)
	}
	if exists {
		return nil
	}

	s.log.Info("generating key material", "key_file", s.opts.KeyFile)
	if err := s.tool.GenerateKey(ctx); err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if exists, _ := afero.Exists(s.fs, s.opts.KeyFile); !exists {
		s.log.Warn("key generation finished but the key file is still missing", "key_file", s.opts.KeyFile)
	}
	return nil
}

// CacheKey identifies generated data: same key, same trees
func (s *HarnessService) CacheKey() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%d|%s|%v|%+v|%+v",
		s.opts.TestDir, s.opts.BackupDir, s.opts.Seed, s.opts.Versions,
		s.opts.Algorithm, s.opts.Exclude, s.opts.Content, s.opts.Mutation)
	return hex.EncodeToString(h.Sum(nil))
}

// loadCached returns nil on any failure; generation then starts from scratch
func (s *HarnessService) loadCached() *domain.VersionRecord {
	if !s.opts.UseCache || s.store == nil {
		return nil
	}

	record, err := s.store.LoadRecord(s.CacheKey())
	switch {
	case errors.Is(err, domain.ErrCacheMiss):
		s.log.Debug("no cached versions")
		return nil
	case err != nil:
		s.log.Warn("ignoring unreadable version cache", "error", err)
		return nil
	}

	exists, err := afero.DirExists(s.fs, s.opts.BackupDir)
	if err != nil || !exists {
		s.log.Warn("ignoring version cache: backup destination is missing", "backup_dir", s.opts.BackupDir)
		return nil
	}

	if record.Seed != 0 {
		s.seed = record.Seed
	}
	s.log.Info("using cached versions", "versions", record.Len(), "seed", s.seed)
	return record
}

// CachedRecord returns the stored record for the current parameters without
// checking the backup destination
func (s *HarnessService) CachedRecord() (*domain.VersionRecord, error) {
	if s.store == nil {
		return nil, domain.ErrCacheMiss
	}
	record, err := s.store.LoadRecord(s.CacheKey())
	if err != nil {
		return nil, err
	}
	if record.Seed != 0 {
		s.seed = record.Seed
	}
	return record, nil
}

func (s *HarnessService) saveCached(record *domain.VersionRecord) {
	if !s.opts.UseCache || s.store == nil {
		return
	}
	if err := s.store.SaveRecord(s.CacheKey(), record); err != nil {
		s.log.Warn("failed to cache versions", "error", err)
	}
}

func (s *HarnessService) recordRun(result *RunResult, runErr error) {
	if s.store == nil {
		return
	}

	rec := state.RunRecord{
		ID:            result.ID,
		StartTime:     result.StartTime,
		EndTime:       result.EndTime,
		Status:        state.StatusSuccess,
		Seed:          result.Seed,
		Versions:      result.Versions,
		FailedVersion: result.FailedVersion(),
		Tool:          s.tool.Name(),
	}
	switch {
	case runErr != nil:
		rec.Status = state.StatusError
		rec.Error = runErr.Error()
	case result.Failure != nil:
		rec.Status = state.StatusFailed
		rec.Error = result.Failure.Mismatch.Error()
	}

	if err := s.store.SaveRun(rec); err != nil {
		s.log.Warn("failed to record run", "run", result.ID, "error", err)
	}
}

func (s *HarnessService) dirSize(root string) int64 {
	var total int64
	err := afero.Walk(s.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		s.log.Warn("backup size is incomplete", "backup_dir", root, "error", err)
	}
	return total
}
