package logger

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Sanitizer masks secrets in log messages and attribute values.
//
// Values of sensitive keys are masked outright. Other string and error
// values go through the same rules as messages.
type Sanitizer struct {
	mu       sync.RWMutex
	patterns []SanitizeRule
}

// SanitizeRule is one regexp replacement applied to messages
type SanitizeRule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// NewSanitizer returns a sanitizer with the default rules
func NewSanitizer() *Sanitizer {
	return &Sanitizer{patterns: defaultSanitizeRules()}
}

func defaultSanitizeRules() []SanitizeRule {
	return []SanitizeRule{
		// Restore scripts: "select keypair <file> <passphrase>"
		{regexp.MustCompile(`(?i)(select[ \t]+keypair[ \t]+\S+)[ \t]+\S+`), "$1 ***"},
		// Key generation: "generate keypair <name> <file> <passphrase>"
		{regexp.MustCompile(`(?i)(generate[ \t]+keypair[ \t]+\S+[ \t]+\S+)[ \t]+\S+`), "$1 ***"},

		{regexp.MustCompile(`(?i)passphrase=\S+`), "passphrase=***"},
		{regexp.MustCompile(`(?i)password=\S+`), "password=***"},
		{regexp.MustCompile(`(?i)token=\S+`), "token=***"},
		{regexp.MustCompile(`(?i)secret=\S+`), "secret=***"},
	}
}

// Sanitize applies every rule to input
func (s *Sanitizer) Sanitize(input string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := input
	for _, rule := range s.patterns {
		result = rule.Pattern.ReplaceAllString(result, rule.Replacement)
	}
	return result
}

// SanitizeArgs sanitizes string and error values in a slog-style key/value
// list. Other values pass through unchanged.
func (s *Sanitizer) SanitizeArgs(args []any) []any {
	if len(args) == 0 {
		return args
	}

	result := make([]any, len(args))
	copy(result, args)

	for i := 0; i < len(result)-1; i += 2 {
		key, ok := result[i].(string)
		if !ok {
			continue
		}
		sensitive := isSensitiveKey(key)
		switch v := result[i+1].(type) {
		case string:
			if sensitive {
				result[i+1] = maskValue(v)
			} else {
				result[i+1] = s.Sanitize(v)
			}
		case error:
			if sensitive {
				result[i+1] = maskValue(v.Error())
			} else {
				result[i+1] = s.Sanitize(v.Error())
			}
		}
	}
	return result
}

var sensitiveKeys = []string{
	"passphrase", "password", "passwd",
	"token", "secret", "credential",
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, sk := range sensitiveKeys {
		if strings.Contains(lower, sk) {
			return true
		}
	}
	return false
}

// maskValue keeps at most the first and last character
func maskValue(value string) string {
	if len(value) <= 2 {
		return "***"
	}
	if len(value) <= 8 {
		return fmt.Sprintf("%c***", value[0])
	}
	return fmt.Sprintf("%c***%c", value[0], value[len(value)-1])
}

// AddRule appends a custom message rule
func (s *Sanitizer) AddRule(pattern string, replacement string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns = append(s.patterns, SanitizeRule{Pattern: re, Replacement: replacement})
	return nil
}
