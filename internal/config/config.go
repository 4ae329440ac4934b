package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Ning0612/restoredrill/internal/core/checksum"
	"github.com/Ning0612/restoredrill/internal/core/content"
	"github.com/Ning0612/restoredrill/internal/core/mutator"
	"github.com/Ning0612/restoredrill/internal/domain"
	"github.com/Ning0612/restoredrill/internal/logger"
)

// Config is the complete restoredrill configuration
type Config struct {
	Tool      ToolConfig      `mapstructure:"tool"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Run       RunConfig       `mapstructure:"run"`
	Content   ContentConfig   `mapstructure:"content"`
	Mutation  MutationConfig  `mapstructure:"mutation"`
	Log       LogConfig       `mapstructure:"log"`
}

// ToolConfig describes the backup program under test and the script settings
type ToolConfig struct {
	Path string   `mapstructure:"path"`
	Args []string `mapstructure:"args"`
	// Timeout bounds one tool invocation; 0 waits forever
	Timeout time.Duration `mapstructure:"timeout"`

	BackupDir       string   `mapstructure:"backup_dir"`
	KeyFile         string   `mapstructure:"key_file"`
	KeyName         string   `mapstructure:"key_name"`
	KeyPassphrase   string   `mapstructure:"key_passphrase"`
	ExcludeDirs     []string `mapstructure:"exclude_dirs"`
	ChangeCriterion string   `mapstructure:"change_criterion"`
	UseSnapshots    bool     `mapstructure:"use_snapshots"`
	// FirstVersion is the tool's number for the first backup
	FirstVersion int `mapstructure:"first_version"`
}

// WorkspaceConfig locates the run's directories. Relative paths elsewhere in
// the config resolve against Dir.
type WorkspaceConfig struct {
	Dir      string `mapstructure:"dir"`
	TestDir  string `mapstructure:"test_dir"`
	StateDir string `mapstructure:"state_dir"`
}

// RunConfig controls one harness run
type RunConfig struct {
	Versions int `mapstructure:"versions"`
	// Seed 0 picks a time-based seed
	Seed  uint64 `mapstructure:"seed"`
	Cache bool   `mapstructure:"cache"`
}

// ContentConfig controls generated file content
type ContentConfig struct {
	Dictionary    string `mapstructure:"dictionary"`
	MaxLineLength int    `mapstructure:"max_line_length"`
	MinFileLines  int    `mapstructure:"min_file_lines"`
	MaxFileLines  int    `mapstructure:"max_file_lines"`
	MaxBinarySize int64  `mapstructure:"max_binary_size"`
	Checksum      string `mapstructure:"checksum"`
}

// MutationConfig mirrors mutator.Options. Chances are 1-in-N.
type MutationConfig struct {
	MaxBootstrapFiles int `mapstructure:"max_bootstrap_files"`
	MaxEditedFiles    int `mapstructure:"max_edited_files"`
	MaxEditPasses     int `mapstructure:"max_edit_passes"`
	AppendChance      int `mapstructure:"append_chance"`
	DirChance         int `mapstructure:"dir_chance"`
	MaxNewDirs        int `mapstructure:"max_new_dirs"`
	FileChance        int `mapstructure:"file_chance"`
	MaxNewFiles       int `mapstructure:"max_new_files"`
	BinaryChance      int `mapstructure:"binary_chance"`
	MaxBinaries       int `mapstructure:"max_binaries"`
}

// LogConfig configures the global logger
type LogConfig struct {
	Level  string        `mapstructure:"level"`
	Format string        `mapstructure:"format"`
	File   LogFileConfig `mapstructure:"file"`
}

// LogFileConfig configures the rotated log file
type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// Validate checks that the configuration can drive a run
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Tool.Path) == "" {
		return fmt.Errorf("%w: tool.path cannot be empty", domain.ErrConfigInvalid)
	}
	if c.Tool.Timeout < 0 {
		return fmt.Errorf("%w: tool.timeout cannot be negative", domain.ErrConfigInvalid)
	}
	if c.Tool.BackupDir == "" {
		return fmt.Errorf("%w: tool.backup_dir cannot be empty", domain.ErrConfigInvalid)
	}
	if c.Tool.KeyFile == "" {
		return fmt.Errorf("%w: tool.key_file cannot be empty", domain.ErrConfigInvalid)
	}
	if c.Tool.FirstVersion < 0 {
		return fmt.Errorf("%w: tool.first_version cannot be negative", domain.ErrConfigInvalid)
	}

	name := c.Workspace.TestDir
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: workspace.test_dir must be a plain directory name: %q",
			domain.ErrConfigInvalid, name)
	}
	if c.Workspace.StateDir == "" {
		return fmt.Errorf("%w: workspace.state_dir cannot be empty", domain.ErrConfigInvalid)
	}

	if c.Run.Versions <= 0 {
		return fmt.Errorf("%w: run.versions must be positive, got %d", domain.ErrConfigInvalid, c.Run.Versions)
	}

	if c.Content.Dictionary == "" {
		return fmt.Errorf("%w: content.dictionary cannot be empty", domain.ErrConfigInvalid)
	}
	if c.Content.MaxLineLength < 10 {
		return fmt.Errorf("%w: content.max_line_length must be at least 10", domain.ErrConfigInvalid)
	}
	if c.Content.MinFileLines < 1 || c.Content.MaxFileLines < c.Content.MinFileLines {
		return fmt.Errorf("%w: content file line range [%d, %d] is invalid",
			domain.ErrConfigInvalid, c.Content.MinFileLines, c.Content.MaxFileLines)
	}
	if c.Content.MaxBinarySize <= 0 {
		return fmt.Errorf("%w: content.max_binary_size must be positive", domain.ErrConfigInvalid)
	}
	if !checksum.IsSupported(checksum.Algorithm(strings.ToLower(c.Content.Checksum))) {
		return fmt.Errorf("%w: unsupported content.checksum: %s", domain.ErrConfigInvalid, c.Content.Checksum)
	}

	m := c.Mutation
	for _, v := range []struct {
		name  string
		value int
	}{
		{"max_bootstrap_files", m.MaxBootstrapFiles},
		{"max_edited_files", m.MaxEditedFiles},
		{"max_edit_passes", m.MaxEditPasses},
		{"append_chance", m.AppendChance},
		{"dir_chance", m.DirChance},
		{"max_new_dirs", m.MaxNewDirs},
		{"file_chance", m.FileChance},
		{"max_new_files", m.MaxNewFiles},
		{"binary_chance", m.BinaryChance},
		{"max_binaries", m.MaxBinaries},
	} {
		if v.value < 0 {
			return fmt.Errorf("%w: mutation.%s cannot be negative", domain.ErrConfigInvalid, v.name)
		}
	}

	return nil
}

// Resolve makes p absolute against the workspace directory
func (c *Config) Resolve(p string) string {
	p = ExpandPath(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(ExpandPath(c.Workspace.Dir), p)
}

// TestPath is the live directory that gets mutated, backed up and restored
func (c *Config) TestPath() string {
	return c.Resolve(c.Workspace.TestDir)
}

// StatePath holds the lock, the state database and default logs
func (c *Config) StatePath() string {
	return c.Resolve(c.Workspace.StateDir)
}

// BackupPath is the tool's backup destination
func (c *Config) BackupPath() string {
	return c.Resolve(c.Tool.BackupDir)
}

// KeyPath is the key material file
func (c *Config) KeyPath() string {
	return c.Resolve(c.Tool.KeyFile)
}

// DictionaryPath is the word list file
func (c *Config) DictionaryPath() string {
	return c.Resolve(c.Content.Dictionary)
}

// ChecksumAlgorithm returns the configured digest algorithm
func (c *Config) ChecksumAlgorithm() checksum.Algorithm {
	return checksum.Algorithm(strings.ToLower(c.Content.Checksum))
}

// ContentOptions converts the content section
func (c *Config) ContentOptions() content.Options {
	opts := content.DefaultOptions()
	opts.MaxLineLength = c.Content.MaxLineLength
	opts.MinFileLines = c.Content.MinFileLines
	opts.MaxFileLines = c.Content.MaxFileLines
	opts.MaxBinarySize = c.Content.MaxBinarySize
	return opts
}

// MutatorOptions converts the mutation section
func (c *Config) MutatorOptions() mutator.Options {
	opts := mutator.DefaultOptions()
	m := c.Mutation
	opts.MaxBootstrapFiles = m.MaxBootstrapFiles
	opts.MaxEditedFiles = m.MaxEditedFiles
	opts.MaxEditPasses = m.MaxEditPasses
	opts.AppendChance = m.AppendChance
	opts.DirChance = m.DirChance
	opts.MaxNewDirs = m.MaxNewDirs
	opts.FileChance = m.FileChance
	opts.MaxNewFiles = m.MaxNewFiles
	opts.BinaryChance = m.BinaryChance
	opts.MaxBinaries = m.MaxBinaries
	return opts
}

// LoggerConfig converts the log section. Records go to stderr and, when
// enabled, to a rotated file (default under the state directory).
func (c *Config) LoggerConfig() logger.Config {
	cfg := logger.Config{
		Level:   logger.ParseLevel(c.Log.Level),
		Format:  logger.ParseFormat(c.Log.Format),
		Outputs: []logger.OutputConfig{{Type: logger.OutputStderr}},
	}
	if c.Log.File.Enabled {
		path := c.Log.File.Path
		if path == "" {
			path = filepath.Join(c.StatePath(), "restoredrill.log")
		}
		cfg.File = logger.FileConfig{
			Enabled:    true,
			Path:       c.Resolve(path),
			MaxSizeMB:  c.Log.File.MaxSizeMB,
			MaxAgeDays: c.Log.File.MaxAgeDays,
			MaxBackups: c.Log.File.MaxBackups,
			Compress:   c.Log.File.Compress,
		}
		cfg.Outputs = append(cfg.Outputs, logger.OutputConfig{Type: logger.OutputFile})
	}
	return cfg
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			if len(path) == 1 {
				path = home
			} else if path[1] == '/' || path[1] == filepath.Separator {
				path = filepath.Join(home, path[2:])
			}
		}
	}
	return filepath.Clean(os.ExpandEnv(path))
}
