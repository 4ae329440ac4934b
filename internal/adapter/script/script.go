// Package script renders the command scripts fed to the backup program's stdin.
package script

import (
	"fmt"
	"strings"
	"text/template"
)

// Settings holds everything the scripts reference
type Settings struct {
	BackupDir       string
	SourceDir       string
	ExcludeDirs     []string
	ChangeCriterion string
	UseSnapshots    bool
	KeyFile         string
	KeyName         string
	KeyPassphrase   string
}

var (
	backupTemplate = template.Must(template.New("backup").Parse(
		`open {{.BackupDir}}
add {{.SourceDir}}
{{range .ExcludeDirs}}exclude name dirs {{.}}
{{end}}set change_criterium {{.ChangeCriterion}}
set use_snapshots {{.UseSnapshots}}
select keypair {{.KeyFile}}
backup
quit
`))

	restoreTemplate = template.Must(template.New("restore").Parse(
		`open {{.BackupDir}}
select version {{.Version}}
select keypair {{.KeyFile}} {{.KeyPassphrase}}
restore
quit
`))

	keygenTemplate = template.Must(template.New("keygen").Parse(
		`generate keypair {{.KeyName}} {{.KeyFile}} {{.KeyPassphrase}}
quit
`))
)

// Validate rejects values that would break the line-oriented script format
func (s Settings) Validate() error {
	fields := map[string]string{
		"backup dir":       s.BackupDir,
		"source dir":       s.SourceDir,
		"change criterion": s.ChangeCriterion,
		"key file":         s.KeyFile,
		"key name":         s.KeyName,
		"key passphrase":   s.KeyPassphrase,
	}
	for name, value := range fields {
		if value == "" {
			return fmt.Errorf("%s cannot be empty", name)
		}
		if strings.ContainsAny(value, "\r\n") {
			return fmt.Errorf("%s contains a line break", name)
		}
	}
	for _, dir := range s.ExcludeDirs {
		if dir == "" || strings.ContainsAny(dir, "\r\n") {
			return fmt.Errorf("invalid exclude dir %q", dir)
		}
	}
	// passphrase and key name are single tokens on their line
	if strings.ContainsAny(s.KeyPassphrase, " \t") || strings.ContainsAny(s.KeyName, " \t") {
		return fmt.Errorf("key name and passphrase cannot contain whitespace")
	}
	return nil
}

// Backup renders the incremental backup script
func Backup(s Settings) (string, error) {
	return render(backupTemplate, s)
}

// Restore renders the script restoring version
func Restore(s Settings, version int) (string, error) {
	if version < 0 {
		return "", fmt.Errorf("invalid version %d", version)
	}
	return render(restoreTemplate, struct {
		Settings
		Version int
	}{s, version})
}

// GenerateKey renders the key generation script
func GenerateKey(s Settings) (string, error) {
	return render(keygenTemplate, s)
}

func render(t *template.Template, data any) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render %s script: %w", t.Name(), err)
	}
	return sb.String(), nil
}
