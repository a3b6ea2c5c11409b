package personality

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	FileName = "PERSONALITY.md"
	Default  = "You are an assistant that works on company data loaded from our store."
)

// Load returns the persona that opens every system prompt. An explicit path
// is read as is; otherwise the nearest PERSONALITY.md above the working
// directory is used. Missing or empty files fall back to Default.
func Load(path string) string {
	var (
		text string
		err  error
	)
	if strings.TrimSpace(path) != "" {
		text, err = readFile(path)
	} else {
		text, err = ReadFromDisk()
	}
	if err != nil || text == "" {
		return Default
	}
	return text
}

func ReadFromDisk() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	path, err := findInParents(cwd, FileName)
	if err != nil {
		return "", err
	}
	return readFile(path)
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func findInParents(startDir string, filename string) (string, error) {
	dir := startDir
	for {
		candidate := filepath.Join(dir, filename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}
