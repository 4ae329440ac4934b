package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/Ning0612/restoredrill/internal/core/mutator"
	"github.com/Ning0612/restoredrill/internal/domain"
)

// EnvPrefix prefixes environment overrides, e.g. RESTOREDRILL_RUN_VERSIONS
const EnvPrefix = "RESTOREDRILL"

// DefaultConfigPaths returns the directories searched for config.yaml
func DefaultConfigPaths() []string {
	paths := []string{".", "./configs"}

	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "restoredrill"))
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".restoredrill"))
	}
	return paths
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tool.path", "zekvok")
	v.SetDefault("tool.args", []string{})
	v.SetDefault("tool.timeout", "0s")
	v.SetDefault("tool.backup_dir", "backup")
	v.SetDefault("tool.key_file", "key.dat")
	v.SetDefault("tool.key_name", "test")
	v.SetDefault("tool.key_passphrase", "123456")
	v.SetDefault("tool.exclude_dirs", []string{".svn"})
	v.SetDefault("tool.change_criterion", "date")
	v.SetDefault("tool.use_snapshots", false)
	v.SetDefault("tool.first_version", 0)

	v.SetDefault("workspace.dir", ".")
	v.SetDefault("workspace.test_dir", "test_repo")
	v.SetDefault("workspace.state_dir", ".restoredrill")

	v.SetDefault("run.versions", 100)
	v.SetDefault("run.seed", 0)
	v.SetDefault("run.cache", true)

	v.SetDefault("content.dictionary", "wordsEn.txt")
	v.SetDefault("content.max_line_length", 120)
	v.SetDefault("content.min_file_lines", 20)
	v.SetDefault("content.max_file_lines", 512)
	v.SetDefault("content.max_binary_size", 100_000_000)
	v.SetDefault("content.checksum", "md5")

	m := mutator.DefaultOptions()
	v.SetDefault("mutation.max_bootstrap_files", m.MaxBootstrapFiles)
	v.SetDefault("mutation.max_edited_files", m.MaxEditedFiles)
	v.SetDefault("mutation.max_edit_passes", m.MaxEditPasses)
	v.SetDefault("mutation.append_chance", m.AppendChance)
	v.SetDefault("mutation.dir_chance", m.DirChance)
	v.SetDefault("mutation.max_new_dirs", m.MaxNewDirs)
	v.SetDefault("mutation.file_chance", m.FileChance)
	v.SetDefault("mutation.max_new_files", m.MaxNewFiles)
	v.SetDefault("mutation.binary_chance", m.BinaryChance)
	v.SetDefault("mutation.max_binaries", m.MaxBinaries)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file.enabled", false)
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.max_size_mb", 10)
	v.SetDefault("log.file.max_age_days", 30)
	v.SetDefault("log.file.max_backups", 3)
	v.SetDefault("log.file.compress", false)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads a configuration file. With an explicit path the file must
// exist. Without one, the default locations are searched and built-in
// defaults apply when no config.yaml is found.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(ExpandPath(path))
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range DefaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
			// defaults only
		case path != "" && errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		default:
			return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
		}
	}

	return decode(v)
}

// LoadFromString parses configuration from a YAML string
func LoadFromString(yamlContent string) (*Config, error) {
	v := newViper()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(strings.NewReader(yamlContent)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	return decode(v)
}

// Default returns the built-in configuration, ignoring files and environment
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		panic(fmt.Sprintf("built-in configuration is invalid: %v", err))
	}
	return cfg
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
