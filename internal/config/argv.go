package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// parseArgv splits a command line the way a POSIX shell would for simple
// commands: quotes group words, backslash escapes, $VAR and ${VAR} expand
// outside single quotes and a leading ~/ expands to the home directory.
// A leading # disables the command.
func parseArgv(input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.HasPrefix(input, "#") {
		return nil, nil
	}

	var (
		argv    []string
		current strings.Builder
		inWord  bool
		quote   rune
		escape  bool
	)

	flush := func() {
		if !inWord {
			return
		}
		argv = append(argv, current.String())
		current.Reset()
		inWord = false
	}

	runes := []rune(input)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case escape:
			current.WriteRune(r)
			escape = false
		case r == '\\' && quote != '\'':
			escape = true
			inWord = true
		case r == '$' && quote != '\'':
			name, next := scanVarName(runes, i+1)
			if name == "" {
				current.WriteRune(r)
			} else {
				current.WriteString(os.Getenv(name))
				i = next - 1
			}
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			current.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case unicode.IsSpace(r):
			flush()
		case r == '~' && !inWord && (i+1 == len(runes) || runes[i+1] == '/'):
			current.WriteString(homeDir())
			inWord = true
		default:
			current.WriteRune(r)
			inWord = true
		}
	}

	if escape {
		return nil, fmt.Errorf("unterminated escape sequence in command: %q", input)
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote in command: %q", input)
	}

	flush()
	return argv, nil
}

// scanVarName reads a variable name starting at i, in either NAME or {NAME}
// form, and returns it with the index just past it.
func scanVarName(runes []rune, i int) (string, int) {
	if i < len(runes) && runes[i] == '{' {
		end := i + 1
		for end < len(runes) && runes[end] != '}' {
			end++
		}
		if end == len(runes) {
			return "", i
		}
		return string(runes[i+1 : end]), end + 1
	}

	end := i
	for end < len(runes) && (runes[end] == '_' || unicode.IsLetter(runes[end]) || (end > i && unicode.IsDigit(runes[end]))) {
		end++
	}
	return string(runes[i:end]), end
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "~"
	}
	return home
}

// expandPath expands a leading ~/ and environment variables in a path.
func expandPath(path string) string {
	path = os.ExpandEnv(strings.TrimSpace(path))
	if path == "~" {
		return homeDir()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

func mustParseArgv(input string) []string {
	argv, err := parseArgv(input)
	if err != nil {
		panic(err)
	}
	return argv
}
