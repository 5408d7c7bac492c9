package env

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDotEnvFiles are read from the workspace directory, later files
// overriding earlier ones
var DefaultDotEnvFiles = []string{".env", ".env.local"}

// ErrSyntax indicates a .env line that is not a variable assignment
var ErrSyntax = errors.New("invalid .env syntax")

// ParseDotEnv reads NAME=value assignments from r. A line may start with
// "export". Values are taken literally inside single quotes, with \n \t \"
// and \\ escapes inside double quotes, and up to a " #" comment otherwise.
func ParseDotEnv(r io.Reader) (map[string]string, error) {
	vars := make(map[string]string)
	scanner := bufio.NewScanner(r)

	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}

		name, value, err := parseAssignment(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		vars[name] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return vars, nil
}

func parseAssignment(line string) (string, string, error) {
	if rest, ok := strings.CutPrefix(line, "export "); ok {
		line = strings.TrimSpace(rest)
	}

	name, raw, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", fmt.Errorf("%w: missing '=' in %q", ErrSyntax, line)
	}
	name = strings.TrimSpace(name)
	if !validName(name) {
		return "", "", fmt.Errorf("%w: bad variable name %q", ErrSyntax, name)
	}

	value, err := parseValue(strings.TrimSpace(raw))
	if err != nil {
		return "", "", err
	}
	return name, value, nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, c := range name {
		switch {
		case c == '_', c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z':
		case i > 0 && (c >= '0' && c <= '9' || c == '.'):
		default:
			return false
		}
	}
	return true
}

func parseValue(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}

	switch raw[0] {
	case '\'':
		end := strings.IndexByte(raw[1:], '\'')
		if end < 0 {
			return "", fmt.Errorf("%w: unterminated single quote", ErrSyntax)
		}
		return raw[1 : end+1], checkTrailing(raw[end+2:])
	case '"':
		var b strings.Builder
		for i := 1; i < len(raw); i++ {
			c := raw[i]
			switch {
			case c == '"':
				return b.String(), checkTrailing(raw[i+1:])
			case c == '\\' && i+1 < len(raw):
				i++
				switch raw[i] {
				case 'n':
					b.WriteByte('\n')
				case 't':
					b.WriteByte('\t')
				default:
					b.WriteByte(raw[i])
				}
			default:
				b.WriteByte(c)
			}
		}
		return "", fmt.Errorf("%w: unterminated double quote", ErrSyntax)
	}

	if i := strings.Index(raw, " #"); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw), nil
}

// checkTrailing allows only a comment after a closing quote
func checkTrailing(rest string) error {
	rest = strings.TrimSpace(rest)
	if rest == "" || rest[0] == '#' {
		return nil
	}
	return fmt.Errorf("%w: unexpected %q after quoted value", ErrSyntax, rest)
}

// LoadDotEnv reads one .env file
func LoadDotEnv(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	vars, err := ParseDotEnv(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return vars, nil
}

// LoadDir merges DefaultDotEnvFiles found in dir. Missing files are skipped.
func LoadDir(dir string) (map[string]string, error) {
	merged := make(map[string]string)
	for _, name := range DefaultDotEnvFiles {
		vars, err := LoadDotEnv(filepath.Join(dir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for k, v := range vars {
			merged[k] = v
		}
	}
	return merged, nil
}
