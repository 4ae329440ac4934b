// Package snapshot captures the structure and content digests of a
// directory tree so that two trees can later be compared.
package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"

	"github.com/Ning0612/restoredrill/internal/core/checksum"
	"github.com/Ning0612/restoredrill/internal/domain"
)

// DefaultExclude lists directory names that are never part of a snapshot
var DefaultExclude = []string{".svn"}

// Builder walks a filesystem and produces immutable trees
type Builder struct {
	fs      afero.Fs
	calc    checksum.Calculator
	algo    checksum.Algorithm
	exclude map[string]struct{}
}

// Option configures a Builder
type Option func(*Builder)

// WithAlgorithm selects the content digest algorithm
func WithAlgorithm(algo checksum.Algorithm) Option {
	return func(b *Builder) { b.algo = algo }
}

// WithCalculator replaces the digest calculator
func WithCalculator(calc checksum.Calculator) Option {
	return func(b *Builder) { b.calc = calc }
}

// WithExclude replaces the excluded directory names
func WithExclude(names ...string) Option {
	return func(b *Builder) {
		b.exclude = make(map[string]struct{}, len(names))
		for _, n := range names {
			b.exclude[n] = struct{}{}
		}
	}
}

// NewBuilder creates a builder reading from fs
func NewBuilder(fs afero.Fs, opts ...Option) *Builder {
	b := &Builder{
		fs:   fs,
		calc: checksum.NewDefaultCalculator(),
		algo: checksum.MD5,
	}
	WithExclude(DefaultExclude...)(b)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build snapshots the tree rooted at path.
// A missing or unreadable path is returned as an error; it is never retried.
func (b *Builder) Build(ctx context.Context, path string) (*domain.Tree, error) {
	info, err := b.fs.Stat(path)
	if err != nil {
		return nil, mapError(path, err)
	}

	root, err := b.buildEntry(ctx, path, info)
	if err != nil {
		return nil, err
	}

	return &domain.Tree{Path: path, Root: root}, nil
}

func (b *Builder) buildEntry(ctx context.Context, path string, info os.FileInfo) (*domain.Entry, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if !info.IsDir() {
		digest, err := b.digest(ctx, path)
		if err != nil {
			return nil, err
		}
		return &domain.Entry{Name: info.Name(), Kind: domain.KindFile, Digest: digest}, nil
	}

	infos, err := afero.ReadDir(b.fs, path)
	if err != nil {
		return nil, mapError(path, err)
	}

	children := make([]*domain.Entry, 0, len(infos))
	for _, child := range infos {
		if child.IsDir() && b.excluded(child.Name()) {
			continue
		}
		entry, err := b.buildEntry(ctx, filepath.Join(path, child.Name()), child)
		if err != nil {
			return nil, err
		}
		children = append(children, entry)
	}

	// Comparison walks siblings by index, so both sides must be in byte order.
	slices.SortFunc(children, func(x, y *domain.Entry) int {
		return strings.Compare(x.Name, y.Name)
	})

	return &domain.Entry{Name: info.Name(), Kind: domain.KindDirectory, Children: children}, nil
}

func (b *Builder) digest(ctx context.Context, path string) (string, error) {
	f, err := b.fs.Open(path)
	if err != nil {
		return "", mapError(path, err)
	}
	defer f.Close()

	sum, err := b.calc.Calculate(ctx, f, b.algo)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", path, err)
	}
	return sum, nil
}

func (b *Builder) excluded(name string) bool {
	_, ok := b.exclude[name]
	return ok
}

// mapError converts OS errors to domain errors
func mapError(path string, err error) error {
	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("%w: %s", domain.ErrNotFound, path)
	case os.IsPermission(err):
		return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, path)
	default:
		return fmt.Errorf("read %s: %w", path, err)
	}
}
