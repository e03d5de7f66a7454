package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths are the absolute directories created by Prepare.
type Paths struct {
	DatabaseDir   string
	RecordingsDir string
}

// Prepare creates the directories the process writes to. It is called once at
// start-up, before storage is opened or routes are registered.
func (c *Config) Prepare() (*Paths, error) {
	recordings, err := ensureDir(c.Storage.RecordingsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare recordings dir: %w", err)
	}

	paths := &Paths{RecordingsDir: recordings}

	if c.Database.Driver == DriverSQLite {
		dbDir, err := ensureDir(c.Database.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare database dir: %w", err)
		}
		paths.DatabaseDir = dbDir
	}

	return paths, nil
}

func ensureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", dir, err)
	}

	if fi, err := os.Stat(abs); err == nil && !fi.IsDir() {
		return "", fmt.Errorf("%s exists and is not a directory", abs)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}

	return abs, nil
}
