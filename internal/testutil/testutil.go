// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"

	"github.com/Ning0612/restoredrill/internal/adapter"
)

// Words is a small dictionary for generator-driven tests
var Words = []string{
	"anchor", "basil", "cobalt", "dune", "ember", "fjord", "glyph", "harbor",
	"ivory", "jasper", "kelp", "lumen", "maple", "nectar", "onyx", "pepper",
	"quartz", "raven", "sable", "tundra", "umber", "vellum", "willow", "zephyr",
}

// TempDir creates a temporary directory removed when the test ends
func TempDir(t *testing.T) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "restoredrill-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// CreateTestFile writes content to dir/name, creating parents
func CreateTestFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create parent dir: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	return path
}

// WriteDictionary writes Words, one per line, and returns the file path
func WriteDictionary(t *testing.T, dir string) string {
	t.Helper()
	return CreateTestFile(t, dir, "words.txt", []byte(strings.Join(Words, "\n")+"\n"))
}

// RandomString generates a random alphanumeric string
func RandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.IntN(len(charset))]
	}
	return string(b)
}

// CorruptFunc alters a restored directory before it is verified
type CorruptFunc func(version int, dir string) error

// CorruptingTool wraps a Tool and, after a successful restore of a chosen
// version, lets the test damage the restored directory.
type CorruptingTool struct {
	adapter.Tool
	Dir     string
	Version int
	Corrupt CorruptFunc

	mu       sync.Mutex
	restores []int
}

// Restore delegates, then corrupts when version matches
func (c *CorruptingTool) Restore(ctx context.Context, version int) error {
	c.mu.Lock()
	c.restores = append(c.restores, version)
	c.mu.Unlock()

	if err := c.Tool.Restore(ctx, version); err != nil {
		return err
	}
	if version == c.Version && c.Corrupt != nil {
		return c.Corrupt(version, c.Dir)
	}
	return nil
}

// Restores returns the versions restored so far, in order
func (c *CorruptingTool) Restores() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.restores...)
}

// FlipFirstFile returns a CorruptFunc that appends a byte to the first
// regular file under dir, in lexical walk order, so its digest changes.
// A directory without files gets a stray file instead.
func FlipFirstFile(fs afero.Fs) CorruptFunc {
	return func(version int, dir string) error {
		done := false
		err := afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if done || info.IsDir() {
				return nil
			}
			data, err := afero.ReadFile(fs, path)
			if err != nil {
				return err
			}
			done = true
			return afero.WriteFile(fs, path, append(data, 'X'), 0o644)
		})
		if err != nil || done {
			return err
		}
		return afero.WriteFile(fs, filepath.Join(dir, "stray.txt"), []byte("X"), 0o644)
	}
}
