package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileExists reports whether path names an existing regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// MoveNoClobber renames src to dst. If dst is taken, "_1", "_2", ... is
// appended to the name stem until a free name is found. Returns the path
// actually used.
func MoveNoClobber(src, dst string) (string, error) {
	dir := filepath.Dir(dst)
	base := filepath.Base(dst)
	stem, ext := splitName(base)

	candidate := dst
	for i := 1; ; i++ {
		_, err := os.Lstat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", candidate, err)
		}
		if i > 1000 {
			return "", fmt.Errorf("no free name for %s", dst)
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
	}

	if err := os.Rename(src, candidate); err != nil {
		return "", fmt.Errorf("failed to move %s: %w", src, err)
	}
	return candidate, nil
}

// splitName separates "Node.js Basics.pdf" into ("Node.js Basics", ".pdf").
func splitName(base string) (string, string) {
	ext := filepath.Ext(base)
	if ext == base {
		return base, ""
	}
	return strings.TrimSuffix(base, ext), ext
}
