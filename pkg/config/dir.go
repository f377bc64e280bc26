package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirName is the directory holding config.toml and the default transcript
// database.
const DirName = ".trickle"

// ResolveDir picks the trickle directory and makes sure it exists. An explicit
// dir wins. Otherwise a .trickle/ directory in the working directory is used
// when present, and ~/.trickle/ when not.
func ResolveDir(dir string) (string, error) {
	if dir == "" {
		var err error
		dir, err = lookupDir()
		if err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

func lookupDir() (string, error) {
	if cwd, err := os.Getwd(); err == nil {
		local := filepath.Join(cwd, DirName)
		if info, err := os.Stat(local); err == nil && info.IsDir() {
			return local, nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}
