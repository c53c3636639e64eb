package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// ResolveFolder turns a user supplied folder into a clean absolute path
// and checks that it is a directory. Relative paths are taken from the
// working directory.
func ResolveFolder(folder string) (string, error) {
	if folder == "" {
		return "", fmt.Errorf("folder is empty")
	}
	abs, err := filepath.Abs(folder)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", folder, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", folder, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}

// DefaultCacheDir returns the per-user cache location, falling back to the
// system temp dir when no user cache dir is known.
func DefaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, CacheDirName)
	}
	return filepath.Join(os.TempDir(), CacheDirName)
}
