package domain

import "fmt"

// VersionRecord maps version indices 0..N-1 to the tree captured right
// after that version was generated and before it was backed up.
type VersionRecord struct {
	// Seed is the resolved seed that generated the versions
	Seed     uint64  `json:"seed"`
	Versions []*Tree `json:"versions"`
}

// NewVersionRecord creates an empty record with room for n versions
func NewVersionRecord(n int) *VersionRecord {
	return &VersionRecord{Versions: make([]*Tree, 0, n)}
}

// Append records the next version and returns its index
func (r *VersionRecord) Append(t *Tree) int {
	r.Versions = append(r.Versions, t)
	return len(r.Versions) - 1
}

// Len returns the number of recorded versions
func (r *VersionRecord) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Versions)
}

// Get returns the tree recorded for a version
func (r *VersionRecord) Get(version int) (*Tree, error) {
	if version < 0 || version >= r.Len() {
		return nil, fmt.Errorf("%w: %d (have %d)", ErrVersionOutOfRange, version, r.Len())
	}
	return r.Versions[version], nil
}
