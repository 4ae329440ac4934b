// Package content produces random text lines and binary payloads from a
// word dictionary and an explicitly owned random source.
package content

import (
	"bufio"
	"fmt"
	"strings"
	"unicode"

	"github.com/spf13/afero"

	"github.com/Ning0612/restoredrill/internal/domain"
)

// Dictionary is an immutable list of candidate words
type Dictionary struct {
	words []string
}

// NewDictionary builds a dictionary from words, dropping control
// characters and empty entries.
func NewDictionary(words []string) (*Dictionary, error) {
	clean := make([]string, 0, len(words))
	for _, w := range words {
		w = stripControl(w)
		if w == "" {
			continue
		}
		clean = append(clean, w)
	}
	if len(clean) == 0 {
		return nil, domain.ErrDictionaryEmpty
	}
	return &Dictionary{words: clean}, nil
}

// LoadDictionary reads a newline-delimited word list
func LoadDictionary(fs afero.Fs, path string) (*Dictionary, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dictionary %s: %w", path, err)
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		words = append(words, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dictionary %s: %w", path, err)
	}

	dict, err := NewDictionary(words)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, path)
	}
	return dict, nil
}

// Len returns the number of words
func (d *Dictionary) Len() int {
	return len(d.words)
}

// Word returns the i-th word
func (d *Dictionary) Word(i int) string {
	return d.words[i]
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
