package mutator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ning0612/restoredrill/internal/core/content"
	"github.com/Ning0612/restoredrill/internal/core/diff"
	"github.com/Ning0612/restoredrill/internal/core/snapshot"
	"github.com/Ning0612/restoredrill/internal/domain"
)

const root = "/work"

var words = []string{
	"anchor", "basil", "cobalt", "dune", "ember", "fjord", "glyph", "harbor", "ivory", "jasper",
	"kelp", "lumen", "maple", "nectar", "onyx", "pepper", "quartz", "raven", "sable", "tundra",
}

func newTestMutator(t *testing.T, fs afero.Fs, seed uint64, opts Options) *Mutator {
	t.Helper()
	dict, err := content.NewDictionary(words)
	require.NoError(t, err)

	contentOpts := content.DefaultOptions()
	contentOpts.MaxBinarySize = 32 * 1024
	contentOpts.MaxFileLines = 64

	rng := rand.New(rand.NewPCG(seed, seed))
	if _, readOnly := fs.(*afero.ReadOnlyFs); !readOnly {
		require.NoError(t, fs.MkdirAll(root, 0o755))
	}
	return New(fs, content.NewGenerator(rng, dict, contentOpts), rng, opts)
}

func clone(k *domain.KnownPaths) *domain.KnownPaths {
	c := domain.NewKnownPaths()
	for p := range k.Dirs {
		c.AddDir(p)
	}
	for p := range k.Files {
		c.AddFile(p)
	}
	for p := range k.Binaries {
		c.AddBinary(p)
	}
	return c
}

func fileSet(t *testing.T, fs afero.Fs) map[string]bool {
	t.Helper()
	tree, err := snapshot.NewBuilder(fs).Build(context.Background(), root)
	require.NoError(t, err)
	set := make(map[string]bool)
	for _, f := range tree.Files() {
		set[f] = true
	}
	return set
}

func TestGenerateNextVersion_Bootstrap(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := newTestMutator(t, fs, 1, DefaultOptions())
	known := domain.NewKnownPaths()

	addenda, err := m.GenerateNextVersion(root, known)
	require.NoError(t, err)

	assert.Contains(t, addenda, "binary.files")
	assert.Contains(t, known.Dirs, "binary.files")
	assert.LessOrEqual(t, len(known.Files), 10)
	assert.Empty(t, known.Binaries)

	for f := range known.Files {
		assert.True(t, strings.HasSuffix(f, ".txt"))
		assert.NotContains(t, f, "/", "bootstrap files live at the root")

		data, err := afero.ReadFile(fs, filepath.Join(root, f))
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
		assert.GreaterOrEqual(t, len(lines), 20)
		assert.LessOrEqual(t, len(lines), 64)
	}

	isDir, err := afero.IsDir(fs, filepath.Join(root, "binary.files"))
	require.NoError(t, err)
	assert.True(t, isDir)
}

func TestGenerateNextVersion_BootstrapRepeatsUntilFilesExist(t *testing.T) {
	fs := afero.NewMemMapFs()
	opts := DefaultOptions()
	opts.MaxBootstrapFiles = 0
	m := newTestMutator(t, fs, 2, opts)
	known := domain.NewKnownPaths()

	_, err := m.GenerateNextVersion(root, known)
	require.NoError(t, err)

	// Still no files: the next version bootstraps again without recreating binary.files.
	addenda, err := m.GenerateNextVersion(root, known)
	require.NoError(t, err)
	assert.Empty(t, addenda)
}

func TestGenerateNextVersion_BookkeepingInvariant(t *testing.T) {
	fs := afero.NewMemMapFs()
	opts := DefaultOptions()
	opts.DirChance = 3
	opts.FileChance = 2
	opts.BinaryChance = 4
	m := newTestMutator(t, fs, 3, opts)
	known := domain.NewKnownPaths()

	for v := 0; v < 40; v++ {
		before := clone(known)
		addenda, err := m.GenerateNextVersion(root, known)
		require.NoError(t, err)

		seen := make(map[string]bool)
		for _, p := range addenda {
			assert.False(t, seen[p], "version %d reported %s twice", v, p)
			seen[p] = true
			assert.False(t, before.Contains(p), "version %d: %s existed before", v, p)
			assert.True(t, known.Contains(p), "version %d: %s not recorded", v, p)

			exists, err := afero.Exists(fs, filepath.Join(root, filepath.FromSlash(p)))
			require.NoError(t, err)
			assert.True(t, exists, "version %d: %s not on disk", v, p)
		}
	}
}

func TestGenerateNextVersion_MembershipNeverShrinks(t *testing.T) {
	fs := afero.NewMemMapFs()
	opts := DefaultOptions()
	opts.FileChance = 2
	m := newTestMutator(t, fs, 4, opts)
	known := domain.NewKnownPaths()

	var previous map[string]bool
	for v := 0; v < 15; v++ {
		_, err := m.GenerateNextVersion(root, known)
		require.NoError(t, err)

		current := fileSet(t, fs)
		for f := range previous {
			assert.True(t, current[f], "version %d lost %s", v, f)
		}
		previous = current
	}
}

func TestGenerateNextVersion_AllEventsForced(t *testing.T) {
	fs := afero.NewMemMapFs()
	opts := DefaultOptions()
	opts.DirChance = 1
	opts.FileChance = 1
	opts.BinaryChance = 1
	opts.AppendChance = 1
	m := newTestMutator(t, fs, 5, opts)
	known := domain.NewKnownPaths()

	for len(known.Files) == 0 {
		_, err := m.GenerateNextVersion(root, known)
		require.NoError(t, err)
	}
	dirsBefore := len(known.Dirs)
	filesBefore := len(known.Files)

	addenda, err := m.GenerateNextVersion(root, known)
	require.NoError(t, err)
	require.NotEmpty(t, addenda)

	assert.Greater(t, len(known.Dirs), dirsBefore)
	assert.Greater(t, len(known.Files), filesBefore)
	require.NotEmpty(t, known.Binaries)

	firstBatch := len(known.Binaries)
	_, err = m.GenerateNextVersion(root, known)
	require.NoError(t, err)
	assert.Greater(t, len(known.Binaries), firstBatch, "second batch must add new payloads")

	for i, p := range known.SortedBinaries() {
		assert.Equal(t, fmt.Sprintf("binary.files/%08d.bin", i), p)
	}
}

func TestGenerateNextVersion_EditsChangeContent(t *testing.T) {
	fs := afero.NewMemMapFs()
	opts := DefaultOptions()
	opts.AppendChance = 1
	opts.DirChance = 0
	opts.FileChance = 0
	opts.BinaryChance = 0
	m := newTestMutator(t, fs, 6, opts)
	known := domain.NewKnownPaths()

	for len(known.Files) == 0 {
		_, err := m.GenerateNextVersion(root, known)
		require.NoError(t, err)
	}
	before, err := snapshot.NewBuilder(fs).Build(context.Background(), root)
	require.NoError(t, err)

	addenda, err := m.GenerateNextVersion(root, known)
	require.NoError(t, err)
	assert.Empty(t, addenda, "no creation events are enabled")

	after, err := snapshot.NewBuilder(fs).Build(context.Background(), root)
	require.NoError(t, err)

	ok, mismatch := diff.Compare(before, after)
	require.False(t, ok)
	assert.Equal(t, diff.MismatchDigest, mismatch.Kind, "edits change content, never membership")
}

func TestGenerateNextVersion_SeededRunsAreIdentical(t *testing.T) {
	run := func() afero.Fs {
		fs := afero.NewMemMapFs()
		opts := DefaultOptions()
		opts.DirChance = 2
		opts.FileChance = 2
		opts.BinaryChance = 5
		m := newTestMutator(t, fs, 7, opts)
		known := domain.NewKnownPaths()
		for v := 0; v < 10; v++ {
			_, err := m.GenerateNextVersion(root, known)
			require.NoError(t, err)
		}
		return fs
	}

	builder := func(fs afero.Fs) *domain.Tree {
		tree, err := snapshot.NewBuilder(fs).Build(context.Background(), root)
		require.NoError(t, err)
		return tree
	}

	ok, mismatch := diff.Compare(builder(run()), builder(run()))
	assert.True(t, ok, "same seed produced different trees: %v", mismatch)
}

func TestGenerateNextVersion_FilesystemErrorAborts(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, base.MkdirAll(root, 0o755))
	m := newTestMutator(t, afero.NewReadOnlyFs(base), 8, DefaultOptions())

	_, err := m.GenerateNextVersion(root, domain.NewKnownPaths())
	assert.Error(t, err)
}

func TestGenerateNextVersion_NamesStaySingleComponents(t *testing.T) {
	plain := []string{"anchor", "basil", "cobalt", "dune"}
	dict, err := content.NewDictionary(append([]string{"a/b", `c\d`, "..", ".", "/", "x/../y"}, plain...))
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(root, 0o755))
	opts := DefaultOptions()
	opts.DirChance = 1
	opts.FileChance = 1
	opts.NameAttempts = 64
	rng := rand.New(rand.NewPCG(9, 9))
	m := New(fs, content.NewGenerator(rng, dict, content.DefaultOptions()), rng, opts)

	known := domain.NewKnownPaths()
	for v := 0; v < 6; v++ {
		_, err := m.GenerateNextVersion(root, known)
		require.NoError(t, err)
	}
	require.NotEmpty(t, known.Files)

	allowed := map[string]bool{"binary.files": true}
	for _, w := range plain {
		allowed[w] = true
		allowed[w+".txt"] = true
	}
	check := func(p string) {
		assert.NotContains(t, p, `\`)
		for _, part := range strings.Split(p, "/") {
			assert.True(t, allowed[part], "unexpected component %q in %s", part, p)
		}
	}
	for p := range known.Dirs {
		check(p)
	}
	for p := range known.Files {
		check(p)
	}
}

func TestEditLine(t *testing.T) {
	m := newTestMutator(t, afero.NewMemMapFs(), 9, DefaultOptions())

	assert.Equal(t, "", m.editLine(""))

	single := m.editLine("zzz")
	assert.Contains(t, words, single)

	line := "zzz yyy xxx www vvv uuu"
	edited := m.editLine(line)
	assert.Len(t, strings.Fields(edited), 6, "word count is preserved")
	assert.NotEqual(t, line, edited)
}

func TestSplitLines(t *testing.T) {
	assert.Nil(t, splitLines(""))
	assert.Equal(t, []string{""}, splitLines("\n"))
	assert.Equal(t, []string{"a", "", "b"}, splitLines("a\n\nb\n"))
}
