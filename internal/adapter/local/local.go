// Package local provides an in-process reference Tool that keeps every
// version as a full directory copy. It lets the harness check itself
// without the real backup program.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"

	"github.com/Ning0612/restoredrill/internal/domain"
)

// Name is the tool.path value selecting this implementation
const Name = "builtin:local"

// Tool archives versions under backupDir/NNNNNNNN
type Tool struct {
	fs        afero.Fs
	source    string
	backupDir string
	keyFile   string
	exclude   []string
}

// New creates a reference tool backing up source into backupDir
func New(fs afero.Fs, source, backupDir, keyFile string, exclude []string) *Tool {
	return &Tool{
		fs:        fs,
		source:    filepath.Clean(source),
		backupDir: filepath.Clean(backupDir),
		keyFile:   keyFile,
		exclude:   exclude,
	}
}

func (t *Tool) Name() string {
	return Name
}

// GenerateKey writes a placeholder key file; versions are stored unencrypted
func (t *Tool) GenerateKey(ctx context.Context) error {
	if err := t.fs.MkdirAll(filepath.Dir(t.keyFile), 0o755); err != nil {
		return t.mapError(err)
	}
	if err := afero.WriteFile(t.fs, t.keyFile, []byte("restoredrill local key\n"), 0o600); err != nil {
		return t.mapError(err)
	}
	return nil
}

// Backup copies the source tree into the next version slot
func (t *Tool) Backup(ctx context.Context) error {
	next, err := t.versionCount()
	if err != nil {
		return err
	}
	if err := t.copyTree(ctx, t.source, t.versionPath(next)); err != nil {
		return fmt.Errorf("%w: backup version %d: %v", domain.ErrToolFailed, next, err)
	}
	return nil
}

// Restore copies version back into the source directory
func (t *Tool) Restore(ctx context.Context, version int) error {
	count, err := t.versionCount()
	if err != nil {
		return err
	}
	if version < 0 || version >= count {
		return fmt.Errorf("%w: version %d of %d: %w", domain.ErrToolFailed, version, count, domain.ErrVersionOutOfRange)
	}
	if err := t.copyTree(ctx, t.versionPath(version), t.source); err != nil {
		return fmt.Errorf("%w: restore version %d: %v", domain.ErrToolFailed, version, err)
	}
	return nil
}

// Versions returns how many versions have been backed up
func (t *Tool) Versions() (int, error) {
	return t.versionCount()
}

func (t *Tool) versionPath(version int) string {
	return filepath.Join(t.backupDir, fmt.Sprintf("%08d", version))
}

func (t *Tool) versionCount() (int, error) {
	entries, err := afero.ReadDir(t.fs, t.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, t.mapError(err)
	}
	count := 0
	for _, e := range entries {
		if e.IsDir() {
			count++
		}
	}
	return count, nil
}

// copyTree copies src into dst, skipping excluded directory names.
// dst's existing files are overwritten.
func (t *Tool) copyTree(ctx context.Context, src, dst string) error {
	return afero.Walk(t.fs, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			return fmt.Errorf("path %s escapes %s", path, src)
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			if rel != "." && slices.Contains(t.exclude, info.Name()) {
				return filepath.SkipDir
			}
			return t.fs.MkdirAll(target, 0o755)
		}
		return t.copyFile(path, target)
	})
}

func (t *Tool) copyFile(src, dst string) error {
	in, err := t.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := t.fs.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// mapError converts filesystem errors to domain errors
func (t *Tool) mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case os.IsNotExist(err):
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	case os.IsPermission(err):
		return fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
	default:
		return err
	}
}
