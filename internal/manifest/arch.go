package manifest

import (
	"bufio"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/quantmind-br/pkglife/internal/core"
)

var archFunctionRegex = regexp.MustCompile(`(?m)^[ \t]*(?:function[ \t]+)?(pre|post)_(install|upgrade|remove)[ \t]*\([ \t]*\)`)

func (l *Loader) loadArchDir(dir string) (*core.PackageDescriptor, error) {
	info, err := l.readScript(filepath.Join(dir, ArchPkgInfo))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ArchPkgInfo, err)
	}

	var install string
	if path := filepath.Join(dir, ArchInstall); l.exists(path) {
		install, err = l.readScript(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", ArchInstall, err)
		}
	}

	return buildArch(info, install)
}

func buildArch(pkginfo, install string) (*core.PackageDescriptor, error) {
	fields, err := parsePkgInfo(pkginfo)
	if err != nil {
		return nil, err
	}

	name := fields["pkgname"]
	if name == "" {
		return nil, fmt.Errorf("%s has no pkgname", ArchPkgInfo)
	}
	pkgver := fields["pkgver"]
	if pkgver == "" {
		return nil, fmt.Errorf("%s has no pkgver", ArchPkgInfo)
	}
	version, pkgrel := SplitArchVersion(pkgver)

	desc := &core.PackageDescriptor{
		Name:       name,
		Version:    version,
		Release:    pkgrel,
		Format:     core.FormatArch,
		Scriptlets: make(map[core.Phase]core.Scriptlet),
	}
	for _, phase := range InstallFunctions(install) {
		desc.Scriptlets[phase] = core.Scriptlet{Body: install}
	}

	return desc, nil
}

// parsePkgInfo reads "key = value" lines; repeated keys keep the first value
func parsePkgInfo(data string) (map[string]string, error) {
	fields := make(map[string]string)

	scanner := bufio.NewScanner(strings.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("%s: malformed line %q", ArchPkgInfo, line)
		}
		key = strings.TrimSpace(key)
		if _, seen := fields[key]; !seen {
			fields[key] = strings.TrimSpace(value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", ArchPkgInfo, err)
	}

	return fields, nil
}

// InstallFunctions lists the lifecycle phases an .INSTALL file defines a function for
func InstallFunctions(install string) []core.Phase {
	if install == "" {
		return nil
	}

	defined := make(map[core.Phase]bool)
	for _, m := range archFunctionRegex.FindAllStringSubmatch(install, -1) {
		defined[core.Phase(m[1]+"-"+m[2])] = true
	}

	var phases []core.Phase
	for _, p := range core.Phases {
		if defined[p] {
			phases = append(phases, p)
		}
	}
	return phases
}

// SplitArchVersion splits [epoch:]pkgver-pkgrel
func SplitArchVersion(v string) (version, pkgrel string) {
	i := strings.LastIndex(v, "-")
	if i <= 0 {
		return v, ""
	}
	return v[:i], v[i+1:]
}
