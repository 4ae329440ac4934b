package diff

import (
	"fmt"

	"github.com/Ning0612/restoredrill/internal/domain"
)

// RootLabel prefixes every diagnostic path
const RootLabel = "$(ROOT)"

// MismatchKind identifies which check failed
type MismatchKind int

const (
	// MismatchCount indicates sibling lists of different length
	MismatchCount MismatchKind = iota
	// MismatchName indicates different names at the same index
	MismatchName
	// MismatchType indicates a file on one side and a directory on the other
	MismatchType
	// MismatchDigest indicates files with different content
	MismatchDigest
)

// String returns the string representation of the kind
func (k MismatchKind) String() string {
	switch k {
	case MismatchCount:
		return "count"
	case MismatchName:
		return "name"
	case MismatchType:
		return "type"
	case MismatchDigest:
		return "digest"
	default:
		return "unknown"
	}
}

// Mismatch describes the first difference found between two trees
type Mismatch struct {
	Kind MismatchKind

	// Path is the directory holding the differing siblings
	Path string

	// Expected and Actual are the differing entries (nil for count mismatches)
	Expected *domain.Entry
	Actual   *domain.Entry

	// ExpectedCount and ActualCount are set for count mismatches
	ExpectedCount int
	ActualCount   int
}

// Error implements the error interface
func (m *Mismatch) Error() string {
	switch m.Kind {
	case MismatchCount:
		return fmt.Sprintf("path %s doesn't have the same number of children (%d expected, %d actual)",
			m.Path, m.ExpectedCount, m.ActualCount)
	case MismatchName:
		return fmt.Sprintf("path name mismatch in %s: %q - %q", m.Path, m.Expected.Name, m.Actual.Name)
	case MismatchType:
		return fmt.Sprintf("type mismatch in %s: %q (%s) - %q (%s)",
			m.Path, m.Expected.Name, m.Expected.Kind, m.Actual.Name, m.Actual.Kind)
	case MismatchDigest:
		return fmt.Sprintf("hash mismatch in %s: %q (%s) - %q (%s)",
			m.Path, m.Expected.Name, m.Expected.Digest, m.Actual.Name, m.Actual.Digest)
	default:
		return fmt.Sprintf("mismatch in %s", m.Path)
	}
}

// Comparer checks a restored tree against the recorded one
type Comparer interface {
	// Compare returns true when the trees are identical, otherwise the first mismatch
	Compare(expected, actual *domain.Tree) (bool, *Mismatch)
}

// TreeComparer compares level by level: every sibling pair in a directory is
// checked for name, kind and digest before any subdirectory is entered.
// It relies on both trees having children sorted by name.
type TreeComparer struct{}

// NewTreeComparer creates a new TreeComparer
func NewTreeComparer() *TreeComparer {
	return &TreeComparer{}
}

// Compare implements the Comparer interface
func (c *TreeComparer) Compare(expected, actual *domain.Tree) (bool, *Mismatch) {
	m := compareLevel(children(expected), children(actual), RootLabel)
	return m == nil, m
}

// Compare is a convenience wrapper around TreeComparer
func Compare(expected, actual *domain.Tree) (bool, *Mismatch) {
	return NewTreeComparer().Compare(expected, actual)
}

func children(t *domain.Tree) []*domain.Entry {
	if t == nil || t.Root == nil {
		return nil
	}
	return t.Root.Children
}

func compareLevel(expected, actual []*domain.Entry, path string) *Mismatch {
	if len(expected) != len(actual) {
		return &Mismatch{
			Kind:          MismatchCount,
			Path:          path,
			ExpectedCount: len(expected),
			ActualCount:   len(actual),
		}
	}

	// Structural pass over this level only
	for i := range expected {
		e, a := expected[i], actual[i]
		switch {
		case e.Name != a.Name:
			return &Mismatch{Kind: MismatchName, Path: path, Expected: e, Actual: a}
		case e.Kind != a.Kind:
			return &Mismatch{Kind: MismatchType, Path: path, Expected: e, Actual: a}
		case e.IsFile() && e.Digest != a.Digest:
			return &Mismatch{Kind: MismatchDigest, Path: path, Expected: e, Actual: a}
		}
	}

	// Recursive pass
	for i := range expected {
		if !expected[i].IsDir() {
			continue
		}
		if m := compareLevel(expected[i].Children, actual[i].Children, path+"/"+actual[i].Name); m != nil {
			return m
		}
	}

	return nil
}
