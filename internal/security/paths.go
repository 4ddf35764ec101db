package security

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ValidateArchiveEntry rejects archive member names that would resolve outside
// the archive root (Zip Slip)
func ValidateArchiveEntry(name string) error {
	if name == "" {
		return fmt.Errorf("archive entry name cannot be empty")
	}
	if strings.Contains(name, "\x00") {
		return fmt.Errorf("archive entry contains null byte: %q", name)
	}
	if strings.HasPrefix(name, "/") {
		return fmt.Errorf("absolute path not allowed: %s", name)
	}

	clean := path.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("path escapes archive root: %s", name)
	}
	return nil
}

// ValidateRoot checks the installation root used as the scriptlet working
// directory and returns its absolute form
func ValidateRoot(root string) (string, error) {
	if root == "" {
		root = "/"
	}
	if strings.Contains(root, "\x00") {
		return "", fmt.Errorf("root path contains null bytes")
	}
	if len(root) > 4096 {
		return "", fmt.Errorf("root path too long: %d characters", len(root))
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root %s: %w", root, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("root %s is not a directory", abs)
	}
	return abs, nil
}
