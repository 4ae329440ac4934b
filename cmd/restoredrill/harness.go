package main

import (
	"fmt"

	"github.com/spf13/afero"

	"github.com/Ning0612/restoredrill/internal/adapter"
	"github.com/Ning0612/restoredrill/internal/adapter/local"
	"github.com/Ning0612/restoredrill/internal/adapter/process"
	"github.com/Ning0612/restoredrill/internal/adapter/script"
	"github.com/Ning0612/restoredrill/internal/config"
	"github.com/Ning0612/restoredrill/internal/core/content"
	"github.com/Ning0612/restoredrill/internal/lock"
	"github.com/Ning0612/restoredrill/internal/progress"
	"github.com/Ning0612/restoredrill/internal/service"
	"github.com/Ning0612/restoredrill/internal/state"
)

// newTool selects the backup program. local.Name picks the in-process
// reference implementation.
func newTool(cfg *config.Config) (adapter.Tool, error) {
	if cfg.Tool.Path == local.Name {
		return local.New(afero.NewOsFs(), cfg.TestPath(), cfg.BackupPath(), cfg.KeyPath(), cfg.Tool.ExcludeDirs), nil
	}

	return process.New(process.Options{
		Path:         cfg.Tool.Path,
		Args:         cfg.Tool.Args,
		Dir:          config.ExpandPath(cfg.Workspace.Dir),
		Timeout:      cfg.Tool.Timeout,
		FirstVersion: cfg.Tool.FirstVersion,
		Scripts:      scriptSettings(cfg),
	})
}

func scriptSettings(cfg *config.Config) script.Settings {
	return script.Settings{
		BackupDir:       cfg.BackupPath(),
		SourceDir:       cfg.TestPath(),
		ExcludeDirs:     cfg.Tool.ExcludeDirs,
		ChangeCriterion: cfg.Tool.ChangeCriterion,
		UseSnapshots:    cfg.Tool.UseSnapshots,
		KeyFile:         cfg.KeyPath(),
		KeyName:         cfg.Tool.KeyName,
		KeyPassphrase:   cfg.Tool.KeyPassphrase,
	}
}

// harness bundles a service with the resources it holds open
type harness struct {
	svc   *service.HarnessService
	store *state.Manager
	lock  *lock.FileLock
}

func (h *harness) Close() error {
	if h.store != nil {
		return h.store.Close()
	}
	return nil
}

func newHarness(cfg *config.Config, showProgress bool) (*harness, error) {
	tool, err := newTool(cfg)
	if err != nil {
		return nil, err
	}

	fs := afero.NewOsFs()
	dict, err := content.LoadDictionary(fs, cfg.DictionaryPath())
	if err != nil {
		return nil, err
	}

	svc, err := service.NewHarnessService(fs, tool, dict, service.Options{
		TestDir:   cfg.TestPath(),
		BackupDir: cfg.BackupPath(),
		KeyFile:   cfg.KeyPath(),
		Versions:  cfg.Run.Versions,
		Seed:      cfg.Run.Seed,
		UseCache:  cfg.Run.Cache,
		Algorithm: cfg.ChecksumAlgorithm(),
		Exclude:   cfg.Tool.ExcludeDirs,
		Content:   cfg.ContentOptions(),
		Mutation:  cfg.MutatorOptions(),
	})
	if err != nil {
		return nil, err
	}

	store, err := state.NewManager(cfg.StatePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open state: %w", err)
	}
	svc.SetStore(store)

	l, err := lock.NewFileLock(cfg.StatePath())
	if err != nil {
		store.Close()
		return nil, err
	}
	svc.SetLock(l)

	if showProgress {
		svc.SetProgressReporter(progress.NewBarReporter(progressOutput, progress.DefaultWidth))
	}

	return &harness{svc: svc, store: store, lock: l}, nil
}
