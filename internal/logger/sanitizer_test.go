package logger

import "testing"

func TestSanitizer_Sanitize(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "restore script keypair",
			input:    "select keypair key.dat 123456",
			expected: "select keypair key.dat ***",
		},
		{
			name:     "backup script keypair without passphrase",
			input:    "select keypair key.dat\nbackup",
			expected: "select keypair key.dat\nbackup",
		},
		{
			name:     "key generation",
			input:    "generate keypair test key.dat 123456",
			expected: "generate keypair test key.dat ***",
		},
		{
			name:     "passphrase assignment",
			input:    "tool started passphrase=abc",
			expected: "tool started passphrase=***",
		},
		{
			name:     "no sensitive data",
			input:    "restoring version 4",
			expected: "restoring version 4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); got != tt.expected {
				t.Errorf("Sanitize() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestSanitizer_SanitizeArgs(t *testing.T) {
	s := NewSanitizer()

	args := []any{"key_file", "key.dat", "key_passphrase", "123456", "versions", 5}
	got := s.SanitizeArgs(args)

	if got[1] != "key.dat" {
		t.Errorf("non-sensitive value changed: %v", got[1])
	}
	if got[3] == "123456" {
		t.Error("passphrase value not masked")
	}
	if got[5] != 5 {
		t.Errorf("non-string value changed: %v", got[5])
	}
	if args[3] != "123456" {
		t.Error("input slice must not be modified")
	}
}

func TestSanitizer_AddRule(t *testing.T) {
	s := NewSanitizer()

	if err := s.AddRule(`dest=\S+`, "dest=***"); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}
	if got := s.Sanitize("open dest=/mnt/x"); got != "open dest=***" {
		t.Errorf("custom rule not applied: %q", got)
	}
	if err := s.AddRule(`(`, ""); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestMaskValue(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"ab", "***"},
		{"abc", "a***"},
		{"abcdefgh", "a***"},
		{"abcdefghi", "a***i"},
	}
	for _, tt := range tests {
		if got := maskValue(tt.input); got != tt.expected {
			t.Errorf("maskValue(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestIsSensitiveKey(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"passphrase", true},
		{"key_passphrase", true},
		{"PASSWORD", true},
		{"token", true},
		{"key_file", false},
		{"version", false},
	}
	for _, tt := range tests {
		if got := isSensitiveKey(tt.input); got != tt.expected {
			t.Errorf("isSensitiveKey(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestSanitizer_SanitizeArgs_ScriptValues(t *testing.T) {
	s := NewSanitizer()

	got := s.SanitizeArgs([]any{"script", "open b\nselect keypair key.dat 123456\nrestore\n"})
	if got[1] != "open b\nselect keypair key.dat ***\nrestore\n" {
		t.Errorf("script value not sanitized: %q", got[1])
	}
}
