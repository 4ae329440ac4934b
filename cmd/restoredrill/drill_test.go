package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ning0612/restoredrill/internal/adapter/local"
	"github.com/Ning0612/restoredrill/internal/adapter/process"
	"github.com/Ning0612/restoredrill/internal/config"
	"github.com/Ning0612/restoredrill/internal/domain"
	"github.com/Ning0612/restoredrill/internal/testutil"
)

func writeDrillConfig(t *testing.T, cache bool) (string, string) {
	t.Helper()
	workspace := t.TempDir()
	testutil.WriteDictionary(t, workspace)

	path := filepath.Join(workspace, "config.yaml")
	writeFile(t, path, fmt.Sprintf(`
tool:
  path: %s
workspace:
  dir: %s
run:
  versions: 3
  seed: 5
  cache: %t
content:
  dictionary: words.txt
  max_file_lines: 30
  max_binary_size: 4096
log:
  level: error
`, local.Name, workspace, cache))
	return workspace, path
}

func TestDrillCommands_LocalTool(t *testing.T) {
	workspace, cfgPath := writeDrillConfig(t, true)

	out, err := execute(t, "run", "--config", cfgPath, "--no-progress")
	require.NoError(t, err, out)
	assert.Contains(t, out, "PASSED")
	assert.FileExists(t, filepath.Join(workspace, "key.dat"))
	assert.DirExists(t, filepath.Join(workspace, "backup", "00000002"))

	out, err = execute(t, "verify", "--config", cfgPath, "--no-progress")
	require.NoError(t, err, out)
	assert.Contains(t, out, "verified 3 versions")

	out, err = execute(t, "history", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "success")

	out, err = execute(t, "unlock", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "lock removed")
}

func TestVerifyCommand_NothingGenerated(t *testing.T) {
	_, cfgPath := writeDrillConfig(t, true)

	_, err := execute(t, "verify", "--config", cfgPath, "--no-progress")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestKeygenCommand_RefusesToOverwrite(t *testing.T) {
	workspace, cfgPath := writeDrillConfig(t, true)
	writeFile(t, filepath.Join(workspace, "key.dat"), "existing")

	_, err := execute(t, "keygen", "--config", cfgPath)
	assert.Error(t, err)

	data, err := os.ReadFile(filepath.Join(workspace, "key.dat"))
	require.NoError(t, err)
	assert.Equal(t, "existing", string(data))
}

func TestNewTool(t *testing.T) {
	cfg := config.Default()
	cfg.Workspace.Dir = t.TempDir()

	cfg.Tool.Path = local.Name
	tool, err := newTool(cfg)
	require.NoError(t, err)
	assert.Equal(t, local.Name, tool.Name())

	cfg.Tool.Path = "/bin/sh"
	tool, err = newTool(cfg)
	require.NoError(t, err)
	assert.IsType(t, &process.Tool{}, tool)

	cfg.Tool.Path = "restoredrill-no-such-program"
	_, err = newTool(cfg)
	assert.ErrorIs(t, err, domain.ErrToolNotFound)
}

func TestScriptSettings(t *testing.T) {
	cfg := config.Default()
	cfg.Workspace.Dir = "/ws"

	s := scriptSettings(cfg)
	assert.Equal(t, "/ws/test_repo", s.SourceDir)
	assert.Equal(t, "/ws/backup", s.BackupDir)
	assert.Equal(t, "/ws/key.dat", s.KeyFile)
	assert.Equal(t, []string{".svn"}, s.ExcludeDirs)
	assert.Equal(t, "123456", s.KeyPassphrase)
}

func TestGenerateThenVerify_CacheDisabledInConfig(t *testing.T) {
	_, cfgPath := writeDrillConfig(t, false)

	out, err := execute(t, "generate", "--config", cfgPath, "--no-progress")
	require.NoError(t, err, out)
	assert.Contains(t, out, "generated 3 versions (seed 5)")

	out, err = execute(t, "verify", "--config", cfgPath, "--no-progress")
	require.NoError(t, err, out)
	assert.Contains(t, out, "verified 3 versions")
}
