package content

import (
	"encoding/binary"
	"io"
	"math"
	"math/rand/v2"
	"strings"
)

// Options configures the generator
type Options struct {
	// MaxLineLength bounds lines generated without an explicit length
	MaxLineLength int

	// MinFileLines and MaxFileLines bound the lines in a new text file
	MinFileLines int
	MaxFileLines int

	// MaxBinarySize scales the binary payload distribution
	MaxBinarySize int64

	// BinaryBase is k in k^U(1,10) / k^10
	BinaryBase float64
}

// DefaultOptions returns the generator defaults
func DefaultOptions() Options {
	return Options{
		MaxLineLength: 120,
		MinFileLines:  20,
		MaxFileLines:  512,
		MaxBinarySize: 100_000_000,
		BinaryBase:    2,
	}
}

// MinLineLength is the threshold under which an unforced line is left blank
func (o Options) MinLineLength() int {
	return o.MaxLineLength / 10
}

// Generator draws words and payloads from a caller-owned random source.
// It is not safe for concurrent use.
type Generator struct {
	rng  *rand.Rand
	dict *Dictionary
	opts Options
}

// NewGenerator creates a generator
func NewGenerator(rng *rand.Rand, dict *Dictionary, opts Options) *Generator {
	return &Generator{rng: rng, dict: dict, opts: opts}
}

// Options returns the generator options
func (g *Generator) Options() Options {
	return g.opts
}

// PickWord returns a uniformly chosen dictionary word
func (g *Generator) PickWord() string {
	return g.dict.Word(g.rng.IntN(g.dict.Len()))
}

// RandomLine returns a line of random words whose length is drawn uniformly
// from [0, MaxLineLength]. Draws below MinLineLength produce a blank line.
// The result never exceeds MaxLineLength.
func (g *Generator) RandomLine() string {
	length := g.rng.IntN(g.opts.MaxLineLength + 1)
	if length < g.opts.MinLineLength() {
		return ""
	}

	var sb strings.Builder
	for sb.Len() < length {
		word := g.PickWord()
		next := sb.Len() + len(word)
		if sb.Len() > 0 {
			next++
		}
		if next > g.opts.MaxLineLength {
			break
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(word)
	}
	return sb.String()
}

// RandomLineOfLength returns a non-empty line at least length bytes long
func (g *Generator) RandomLineOfLength(length int) string {
	var sb strings.Builder
	for sb.Len() == 0 || sb.Len() < length {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(g.PickWord())
	}
	return sb.String()
}

// RandomLines returns n lines produced by RandomLine
func (g *Generator) RandomLines(n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = g.RandomLine()
	}
	return lines
}

// FileLineCount draws the number of lines for a new text file
func (g *Generator) FileLineCount() int {
	return g.IntRange(g.opts.MinFileLines, g.opts.MaxFileLines)
}

// IntRange returns a uniform integer in [lo, hi]
func (g *Generator) IntRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + g.rng.IntN(hi-lo+1)
}

// BinaryPayloadSize draws a size from k^U(1,10) / k^10 scaled to
// MaxBinarySize. Most sizes are small with an occasional very large one.
func (g *Generator) BinaryPayloadSize() int64 {
	k := g.opts.BinaryBase
	u := 1 + 9*g.rng.Float64()
	return int64(math.Pow(k, u) / math.Pow(k, 10) * float64(g.opts.MaxBinarySize))
}

// RandomBinaryPayload returns a payload of BinaryPayloadSize random bytes
func (g *Generator) RandomBinaryPayload() []byte {
	buf := make([]byte, g.BinaryPayloadSize())
	g.fill(buf)
	return buf
}

// WriteBinaryPayload streams a payload of BinaryPayloadSize random bytes to w
func (g *Generator) WriteBinaryPayload(w io.Writer) (int64, error) {
	const chunk = 1 << 20
	remaining := g.BinaryPayloadSize()
	buf := make([]byte, min(remaining, chunk))

	var written int64
	for remaining > 0 {
		n := min(remaining, int64(len(buf)))
		g.fill(buf[:n])
		m, err := w.Write(buf[:n])
		written += int64(m)
		if err != nil {
			return written, err
		}
		remaining -= n
	}
	return written, nil
}

func (g *Generator) fill(buf []byte) {
	var word [8]byte
	for i := 0; i < len(buf); i += 8 {
		binary.LittleEndian.PutUint64(word[:], g.rng.Uint64())
		copy(buf[i:], word[:])
	}
}
