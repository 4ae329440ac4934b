// Package adapter defines how the harness drives the backup program under test.
package adapter

import "context"

// Tool is a backup program with chronological versioning.
// Implementations map failures to domain errors: domain.ErrToolNotFound,
// domain.ErrToolFailed, domain.ErrToolTimeout.
type Tool interface {
	// Name identifies the implementation in logs and run history
	Name() string

	// GenerateKey creates the key material used to encrypt backups
	GenerateKey(ctx context.Context) error

	// Backup records the current state of the source directory as the next version
	Backup(ctx context.Context) error

	// Restore writes version (0 = first backup) back into the source location.
	// The caller empties the source directory first.
	Restore(ctx context.Context, version int) error
}
