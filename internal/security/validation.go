package security

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// ValidPackageNameRegex covers the union of RPM, Debian and Arch name alphabets
	ValidPackageNameRegex = regexp.MustCompile(`^[a-zA-Z0-9@_+][a-zA-Z0-9@._+-]*$`)

	// ValidVersionRegex allows epochs, tildes and the usual separators
	ValidVersionRegex = regexp.MustCompile(`^[a-zA-Z0-9._+~:^-]+$`)

	// ValidEnvNameRegex is the shape of variables passed to scriptlets
	ValidEnvNameRegex = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)
)

// ValidatePackageName validates a package name for safety
func ValidatePackageName(name string) error {
	if name == "" {
		return fmt.Errorf("package name cannot be empty")
	}

	if len(name) > 255 {
		return fmt.Errorf("package name too long (max 255 characters)")
	}

	if !ValidPackageNameRegex.MatchString(name) {
		return fmt.Errorf("invalid package name %q: must start with an alphanumeric character and contain only alphanumerics or @._+-", name)
	}

	return nil
}

// ValidateVersion validates a version or release string
func ValidateVersion(version string) error {
	if version == "" {
		return fmt.Errorf("invalid version: version cannot be empty")
	}

	if len(version) >= 100 {
		return fmt.Errorf("version string too long (max 100 characters)")
	}

	if strings.Contains(version, "\x00") {
		return fmt.Errorf("invalid version: contains null byte")
	}

	dangerousPatterns := []string{
		"..", "/", "\\", ";", "&", "|", "`", "$", "\n", "\r",
	}
	for _, pattern := range dangerousPatterns {
		if strings.Contains(version, pattern) {
			return fmt.Errorf("invalid version: contains dangerous pattern: %s", pattern)
		}
	}

	if !ValidVersionRegex.MatchString(version) {
		return fmt.Errorf("invalid version format: %q", version)
	}

	return nil
}

// ValidateInterpreter checks that an interpreter is an absolute, plain path
func ValidateInterpreter(path string) error {
	if path == "" {
		return fmt.Errorf("interpreter cannot be empty")
	}
	if strings.ContainsAny(path, "\x00\n\r;&|`$ ") {
		return fmt.Errorf("interpreter %q contains unsupported characters", path)
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("interpreter must be an absolute path, got %s", path)
	}
	return nil
}

// ValidateEnvironmentVariable validates an environment variable name and value
func ValidateEnvironmentVariable(name, value string) error {
	if name == "" {
		return fmt.Errorf("environment variable name cannot be empty")
	}

	if !ValidEnvNameRegex.MatchString(name) {
		return fmt.Errorf("invalid environment variable name: %s", name)
	}

	if strings.Contains(value, "\x00") {
		return fmt.Errorf("environment variable value contains null byte")
	}

	return nil
}

// ParseEnvAssignments turns KEY=VALUE pairs into a map, validating each one
func ParseEnvAssignments(pairs []string) (map[string]string, error) {
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid environment assignment %q: expected KEY=VALUE", pair)
		}
		if err := ValidateEnvironmentVariable(name, value); err != nil {
			return nil, err
		}
		env[name] = value
	}
	return env, nil
}

// IsPathWithinDirectory checks if targetPath is basePath or lies beneath it.
// Both paths must be absolute.
func IsPathWithinDirectory(targetPath, basePath string) (bool, error) {
	if !filepath.IsAbs(targetPath) {
		return false, fmt.Errorf("target path must be absolute, got relative path: %s", targetPath)
	}
	if !filepath.IsAbs(basePath) {
		return false, fmt.Errorf("base path must be absolute, got relative path: %s", basePath)
	}

	rel, err := filepath.Rel(filepath.Clean(basePath), filepath.Clean(targetPath))
	if err != nil {
		return false, fmt.Errorf("failed to compute relative path: %w", err)
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false, nil
	}

	return true, nil
}
