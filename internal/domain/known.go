package domain

import "sort"

// KnownPaths tracks the workspace-relative paths the mutator believes exist.
// It is owned by a single run and is not safe for concurrent use.
type KnownPaths struct {
	Dirs     map[string]struct{}
	Files    map[string]struct{}
	Binaries map[string]struct{}
}

// NewKnownPaths creates empty bookkeeping sets
func NewKnownPaths() *KnownPaths {
	return &KnownPaths{
		Dirs:     make(map[string]struct{}),
		Files:    make(map[string]struct{}),
		Binaries: make(map[string]struct{}),
	}
}

// AddDir records a directory
func (k *KnownPaths) AddDir(path string) { k.Dirs[path] = struct{}{} }

// AddFile records a text file
func (k *KnownPaths) AddFile(path string) { k.Files[path] = struct{}{} }

// AddBinary records a binary payload file
func (k *KnownPaths) AddBinary(path string) { k.Binaries[path] = struct{}{} }

// Contains reports whether path is recorded in any set
func (k *KnownPaths) Contains(path string) bool {
	if _, ok := k.Dirs[path]; ok {
		return true
	}
	if _, ok := k.Files[path]; ok {
		return true
	}
	_, ok := k.Binaries[path]
	return ok
}

// SortedDirs returns the directories in byte order.
// Random selection works on sorted slices so seeded runs are reproducible.
func (k *KnownPaths) SortedDirs() []string { return sortedKeys(k.Dirs) }

// SortedFiles returns the text files in byte order
func (k *KnownPaths) SortedFiles() []string { return sortedKeys(k.Files) }

// SortedBinaries returns the binary files in byte order
func (k *KnownPaths) SortedBinaries() []string { return sortedKeys(k.Binaries) }

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
