package domain

import "errors"

// Filesystem errors - workspace and snapshot access
var (
	// ErrNotFound indicates the requested path does not exist
	ErrNotFound = errors.New("path not found")

	// ErrAlreadyExists indicates the path already exists
	ErrAlreadyExists = errors.New("path already exists")

	// ErrPermissionDenied indicates insufficient permissions
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotDirectory indicates expected a directory but got a file
	ErrNotDirectory = errors.New("not a directory")
)

// Harness errors - generation and verification
var (
	// ErrDictionaryEmpty indicates the word list has no usable words
	ErrDictionaryEmpty = errors.New("dictionary has no words")

	// ErrMismatch indicates a restored tree differs from its recorded snapshot
	ErrMismatch = errors.New("restored tree does not match recorded snapshot")

	// ErrVersionOutOfRange indicates a version index outside the recorded range
	ErrVersionOutOfRange = errors.New("version index out of range")

	// ErrCacheMiss indicates no cached version record exists for a key
	ErrCacheMiss = errors.New("version record not cached")

	// ErrRunInProgress indicates another run holds the workspace
	ErrRunInProgress = errors.New("run already in progress")
)

// External tool errors
var (
	// ErrToolNotFound indicates the backup program could not be located
	ErrToolNotFound = errors.New("backup tool not found")

	// ErrToolFailed indicates the backup program exited with a non-zero status
	ErrToolFailed = errors.New("backup tool failed")

	// ErrToolTimeout indicates the watchdog killed the backup program
	ErrToolTimeout = errors.New("backup tool timed out")
)

// Config errors
var (
	// ErrConfigNotFound indicates config file not found
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid indicates config file is malformed
	ErrConfigInvalid = errors.New("invalid config")
)
