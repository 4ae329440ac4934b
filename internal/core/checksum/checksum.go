package checksum

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// Algorithm represents the hashing algorithm to use
type Algorithm string

const (
	// MD5 produces a 128-bit digest, the default for snapshot comparison
	MD5 Algorithm = "md5"
	// SHA256 produces a 256-bit digest
	SHA256 Algorithm = "sha256"
)

// DefaultChunkSize is the read size used when streaming file contents
const DefaultChunkSize = 4096

// Options configures the checksum calculator
type Options struct {
	// MaxSize: inputs larger than this are rejected (0 = unlimited).
	// Binary payloads reach ~100MB so the default is unlimited.
	MaxSize int64

	// ChunkSize: size of each streamed read
	ChunkSize int
}

// DefaultOptions returns the options used for snapshots
func DefaultOptions() Options {
	return Options{
		MaxSize:   0,
		ChunkSize: DefaultChunkSize,
	}
}

// Calculator computes content digests
type Calculator interface {
	// Calculate streams reader through the digest and returns it hex-encoded
	Calculate(ctx context.Context, reader io.Reader, algo Algorithm) (string, error)
}

// DefaultCalculator implements Calculator with fixed-size chunked reads
type DefaultCalculator struct {
	opts Options
}

// NewCalculator creates a new calculator with the given options
func NewCalculator(opts Options) *DefaultCalculator {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	return &DefaultCalculator{opts: opts}
}

// NewDefaultCalculator creates a calculator with default options
func NewDefaultCalculator() *DefaultCalculator {
	return NewCalculator(DefaultOptions())
}

// Calculate implements the Calculator interface
func (c *DefaultCalculator) Calculate(ctx context.Context, reader io.Reader, algo Algorithm) (string, error) {
	h, err := newHash(algo)
	if err != nil {
		return "", err
	}

	var src io.Reader = reader
	if c.opts.MaxSize > 0 {
		src = io.LimitReader(reader, c.opts.MaxSize+1)
	}

	chunk := make([]byte, c.opts.ChunkSize)
	var total int64

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		n, err := src.Read(chunk)
		if n > 0 {
			total += int64(n)
			if c.opts.MaxSize > 0 && total > c.opts.MaxSize {
				return "", fmt.Errorf("input size exceeds maximum (%d bytes)", c.opts.MaxSize)
			}
			// hash.Hash.Write never returns an error
			h.Write(chunk[:n])
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read error: %w", err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func newHash(algo Algorithm) (hash.Hash, error) {
	switch algo {
	case MD5:
		return md5.New(), nil
	case SHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", algo)
	}
}

// DigestSize returns the digest length in bytes, or 0 for unknown algorithms
func DigestSize(algo Algorithm) int {
	switch algo {
	case MD5:
		return md5.Size
	case SHA256:
		return sha256.Size
	default:
		return 0
	}
}

// IsSupported checks if the given algorithm is supported
func IsSupported(algo Algorithm) bool {
	return DigestSize(algo) > 0
}
