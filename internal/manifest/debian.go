package manifest

import (
	"bufio"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/quantmind-br/pkglife/internal/core"
)

// Maintainer script file names and the phase each one serves
var debianScripts = map[string]core.Phase{
	"preinst":  core.PhasePreInstall,
	"postinst": core.PhasePostInstall,
	"prerm":    core.PhasePreRemove,
	"postrm":   core.PhasePostRemove,
}

// loadDebian reads a DEBIAN control directory
func (l *Loader) loadDebian(dir string) (*core.PackageDescriptor, error) {
	data, err := l.readScript(filepath.Join(dir, DebianControl))
	if err != nil {
		return nil, fmt.Errorf("read control: %w", err)
	}

	fields, err := parseControl(data)
	if err != nil {
		return nil, err
	}

	name := fields["Package"]
	if name == "" {
		return nil, fmt.Errorf("control file has no Package field")
	}
	rawVersion := fields["Version"]
	if rawVersion == "" {
		return nil, fmt.Errorf("control file has no Version field")
	}
	version, revision := SplitDebianVersion(rawVersion)

	desc := &core.PackageDescriptor{
		Name:       name,
		Version:    version,
		Release:    revision,
		Format:     core.FormatDeb,
		Scriptlets: make(map[core.Phase]core.Scriptlet),
	}

	for file, phase := range debianScripts {
		path := filepath.Join(dir, file)
		if !l.exists(path) {
			continue
		}
		path, err := l.containedPath(dir, path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		body, err := l.readScript(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		desc.Scriptlets[phase] = scriptletFromBody(body)
	}

	return desc, nil
}

// parseControl reads the first paragraph of a deb822 control file. Continuation
// lines are folded into the preceding field.
func parseControl(data string) (map[string]string, error) {
	fields := make(map[string]string)
	var last string

	scanner := bufio.NewScanner(strings.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			if len(fields) > 0 {
				break
			}
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if last == "" {
				return nil, fmt.Errorf("control file: continuation line without a field")
			}
			fields[last] += "\n" + strings.TrimSpace(line)
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("control file: malformed line %q", line)
		}
		last = strings.TrimSpace(key)
		fields[last] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("control file: %w", err)
	}

	return fields, nil
}

// SplitDebianVersion splits [epoch:]upstream[-revision] into the version
// (epoch included) and the revision
func SplitDebianVersion(v string) (version, revision string) {
	i := strings.LastIndex(v, "-")
	if i <= 0 {
		return v, ""
	}
	return v[:i], v[i+1:]
}
