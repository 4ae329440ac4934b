package domain

import "fmt"

// EntryKind represents the type of a snapshot entry
type EntryKind int

const (
	KindFile EntryKind = iota
	KindDirectory
)

// String returns the string representation of the kind
func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "dir"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name
func (k EntryKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name
func (k *EntryKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "file":
		*k = KindFile
	case "dir":
		*k = KindDirectory
	default:
		return fmt.Errorf("unknown entry kind %q", text)
	}
	return nil
}

// Entry is one node of a directory tree snapshot
type Entry struct {
	// Name is the base name, unique among siblings
	Name string `json:"name" yaml:"name"`

	// Kind indicates if this is a file or a directory
	Kind EntryKind `json:"kind" yaml:"kind"`

	// Digest is the hex content hash (files only)
	Digest string `json:"digest,omitempty" yaml:"digest,omitempty"`

	// Children are sorted by Name using byte order (directories only)
	Children []*Entry `json:"children,omitempty" yaml:"children,omitempty"`
}

// IsDir returns true if this is a directory
func (e *Entry) IsDir() bool {
	return e.Kind == KindDirectory
}

// IsFile returns true if this is a regular file
func (e *Entry) IsFile() bool {
	return e.Kind == KindFile
}

// Tree is a snapshot of a directory subtree.
// Path is kept for diagnostics and takes no part in comparison.
type Tree struct {
	Path string `json:"path" yaml:"path"`
	Root *Entry `json:"root" yaml:"root"`
}

// Walk visits every entry below the root in pre-order, passing the
// slash-separated path relative to the root.
func (t *Tree) Walk(fn func(rel string, e *Entry)) {
	if t == nil || t.Root == nil {
		return
	}
	var visit func(prefix string, children []*Entry)
	visit = func(prefix string, children []*Entry) {
		for _, c := range children {
			rel := c.Name
			if prefix != "" {
				rel = prefix + "/" + c.Name
			}
			fn(rel, c)
			if c.IsDir() {
				visit(rel, c.Children)
			}
		}
	}
	visit("", t.Root.Children)
}

// Files returns the relative paths of every file in the tree
func (t *Tree) Files() []string {
	var files []string
	t.Walk(func(rel string, e *Entry) {
		if e.IsFile() {
			files = append(files, rel)
		}
	})
	return files
}
