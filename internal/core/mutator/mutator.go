// Package mutator applies one randomized "next version" of changes to a
// workspace: text edits, new files, new directories and binary batches.
package mutator

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/Ning0612/restoredrill/internal/core/content"
	"github.com/Ning0612/restoredrill/internal/domain"
)

// Options configures mutation rates and ranges.
// A chance of N means the event happens with probability 1/N.
type Options struct {
	// BinaryDir holds every binary payload, relative to the workspace root
	BinaryDir string

	MaxBootstrapFiles int

	MaxEditedFiles int
	MaxEditPasses  int
	AppendChance   int

	DirChance  int
	MaxNewDirs int

	FileChance  int
	MaxNewFiles int

	BinaryChance int
	MaxBinaries  int

	// NameAttempts bounds redraws when a random name is already taken
	NameAttempts int
}

// DefaultOptions returns the standard mutation profile
func DefaultOptions() Options {
	return Options{
		BinaryDir:         "binary.files",
		MaxBootstrapFiles: 10,
		MaxEditedFiles:    100,
		MaxEditPasses:     5,
		AppendChance:      4,
		DirChance:         25,
		MaxNewDirs:        5,
		FileChance:        5,
		MaxNewFiles:       5,
		BinaryChance:      50,
		MaxBinaries:       20,
		NameAttempts:      16,
	}
}

// Mutator generates successive workspace versions.
// It shares its random source with the content generator so that one seed
// reproduces a whole run. Not safe for concurrent use.
type Mutator struct {
	fs   afero.Fs
	gen  *content.Generator
	rng  *rand.Rand
	opts Options
}

// New creates a mutator writing to fs
func New(fs afero.Fs, gen *content.Generator, rng *rand.Rand, opts Options) *Mutator {
	return &Mutator{fs: fs, gen: gen, rng: rng, opts: opts}
}

// GenerateNextVersion applies one version of changes under root and returns
// the relative paths it created. Every returned path is added to known.
// Filesystem errors abort the version; the workspace is then in an undefined state.
func (m *Mutator) GenerateNextVersion(root string, known *domain.KnownPaths) ([]string, error) {
	if len(known.Files) == 0 {
		return m.bootstrap(root, known)
	}
	return m.step(root, known)
}

func (m *Mutator) bootstrap(root string, known *domain.KnownPaths) ([]string, error) {
	var addenda []string

	for i := m.gen.IntRange(0, m.opts.MaxBootstrapFiles); i > 0; i-- {
		rel, ok := m.freshName(root, "", ".txt", known)
		if !ok {
			continue
		}
		if err := m.writeLines(root, rel, m.gen.RandomLines(m.gen.FileLineCount())); err != nil {
			return addenda, err
		}
		known.AddFile(rel)
		addenda = append(addenda, rel)
	}

	created, err := m.ensureBinaryDir(root, known)
	if err != nil {
		return addenda, err
	}
	if created {
		addenda = append(addenda, m.opts.BinaryDir)
	}

	return addenda, nil
}

func (m *Mutator) step(root string, known *domain.KnownPaths) ([]string, error) {
	var addenda []string

	files := known.SortedFiles()
	count := min(m.gen.IntRange(1, m.opts.MaxEditedFiles), len(files))
	for _, i := range m.rng.Perm(len(files))[:count] {
		if err := m.editFile(root, files[i]); err != nil {
			return addenda, err
		}
	}

	if m.chance(m.opts.DirChance) {
		for i := m.gen.IntRange(1, m.opts.MaxNewDirs); i > 0; i-- {
			rel, ok := m.freshName(root, m.pickContainer(known), "", known)
			if !ok {
				continue
			}
			if err := m.fs.Mkdir(m.abs(root, rel), 0o755); err != nil {
				return addenda, fmt.Errorf("create directory %s: %w", rel, err)
			}
			known.AddDir(rel)
			addenda = append(addenda, rel)
		}
	}

	if m.chance(m.opts.FileChance) {
		for i := m.gen.IntRange(1, m.opts.MaxNewFiles); i > 0; i-- {
			rel, ok := m.freshName(root, m.pickContainer(known), ".txt", known)
			if !ok {
				continue
			}
			if err := m.writeLines(root, rel, m.gen.RandomLines(m.gen.FileLineCount())); err != nil {
				return addenda, err
			}
			known.AddFile(rel)
			addenda = append(addenda, rel)
		}
	}

	if m.chance(m.opts.BinaryChance) {
		created, err := m.binaryBatch(root, known)
		addenda = append(addenda, created...)
		if err != nil {
			return addenda, err
		}
	}

	return addenda, nil
}

// binaryBatch writes 1..MaxBinaries payloads into BinaryDir. Names continue
// the existing numbering so earlier payloads are never overwritten.
func (m *Mutator) binaryBatch(root string, known *domain.KnownPaths) ([]string, error) {
	var addenda []string

	created, err := m.ensureBinaryDir(root, known)
	if err != nil {
		return nil, err
	}
	if created {
		addenda = append(addenda, m.opts.BinaryDir)
	}

	next := len(known.Binaries)
	for i := m.gen.IntRange(1, m.opts.MaxBinaries); i > 0; i-- {
		rel := path.Join(m.opts.BinaryDir, fmt.Sprintf("%08d.bin", next))
		for known.Contains(rel) {
			next++
			rel = path.Join(m.opts.BinaryDir, fmt.Sprintf("%08d.bin", next))
		}
		next++

		if err := m.writeBinary(root, rel); err != nil {
			return addenda, err
		}
		known.AddBinary(rel)
		addenda = append(addenda, rel)
	}

	return addenda, nil
}

func (m *Mutator) ensureBinaryDir(root string, known *domain.KnownPaths) (bool, error) {
	if _, ok := known.Dirs[m.opts.BinaryDir]; ok {
		return false, nil
	}
	if err := m.fs.MkdirAll(m.abs(root, m.opts.BinaryDir), 0o755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", m.opts.BinaryDir, err)
	}
	known.AddDir(m.opts.BinaryDir)
	return true, nil
}

func (m *Mutator) editFile(root, rel string) error {
	data, err := afero.ReadFile(m.fs, m.abs(root, rel))
	if err != nil {
		return fmt.Errorf("read %s: %w", rel, err)
	}
	lines := splitLines(string(data))

	for pass := m.gen.IntRange(0, m.opts.MaxEditPasses); pass > 0 && len(lines) > 0; pass-- {
		start := m.rng.IntN(len(lines))
		block := m.gen.IntRange(1, max(1, (len(lines)-start)/2))
		for j := start; j < start+block; j++ {
			lines[j] = m.editLine(lines[j])
		}
	}

	if m.chance(m.opts.AppendChance) {
		lines = append(lines, m.gen.RandomLines(m.gen.FileLineCount())...)
	}

	return m.writeLines(root, rel, lines)
}

// editLine replaces a random span of words with fresh dictionary words
func (m *Mutator) editLine(line string) string {
	words := strings.Fields(line)
	if len(words) == 0 {
		return line
	}

	start, length := 0, len(words)
	if len(words) > 1 {
		start = m.rng.IntN(len(words))
		length = min(len(words)-start, m.gen.IntRange(1, len(words)/2))
	}
	for i := start; i < start+length; i++ {
		words[i] = m.gen.PickWord()
	}
	return strings.Join(words, " ")
}

// freshName draws container/word+suffix until it names nothing known or on disk
func (m *Mutator) freshName(root, container, suffix string, known *domain.KnownPaths) (string, bool) {
	for attempt := 0; attempt < max(1, m.opts.NameAttempts); attempt++ {
		name := m.gen.PickWord() + suffix
		// a name must stay a single path component
		if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
			continue
		}
		rel := path.Join(container, name)
		if known.Contains(rel) {
			continue
		}
		if exists, err := afero.Exists(m.fs, m.abs(root, rel)); err != nil || exists {
			continue
		}
		return rel, true
	}
	return "", false
}

// pickContainer returns the root ("") or a known directory, uniformly
func (m *Mutator) pickContainer(known *domain.KnownPaths) string {
	dirs := known.SortedDirs()
	i := m.rng.IntN(len(dirs) + 1)
	if i == 0 {
		return ""
	}
	return dirs[i-1]
}

func (m *Mutator) chance(n int) bool {
	if n <= 0 {
		return false
	}
	return m.rng.IntN(n) == 0
}

func (m *Mutator) writeLines(root, rel string, lines []string) error {
	var buf bytes.Buffer
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if err := afero.WriteFile(m.fs, m.abs(root, rel), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

func (m *Mutator) writeBinary(root, rel string) error {
	f, err := m.fs.Create(m.abs(root, rel))
	if err != nil {
		return fmt.Errorf("create %s: %w", rel, err)
	}
	_, writeErr := m.gen.WriteBinaryPayload(f)
	closeErr := f.Close()
	if writeErr != nil {
		return fmt.Errorf("write %s: %w", rel, writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", rel, closeErr)
	}
	return nil
}

func (m *Mutator) abs(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(rel))
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
