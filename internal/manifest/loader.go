// Package manifest decodes package metadata and scriptlet bodies from the
// on-disk layouts each supported format uses.
package manifest

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/quantmind-br/pkglife/internal/core"
	"github.com/quantmind-br/pkglife/internal/security"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// File names recognised inside a package directory
const (
	ManifestFile   = "manifest.toml"
	DebianDir      = "DEBIAN"
	DebianControl  = "control"
	ArchPkgInfo    = ".PKGINFO"
	ArchInstall    = ".INSTALL"
	maxScriptBytes = 1 << 20
)

// Loader builds package descriptors from directories and archives
type Loader struct {
	Fs     afero.Fs
	Logger *zerolog.Logger
}

// NewLoader creates a loader reading through fs
func NewLoader(fs afero.Fs, log *zerolog.Logger) *Loader {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Loader{Fs: fs, Logger: log}
}

// Load detects the layout at path and decodes it
func (l *Loader) Load(path string) (*core.PackageDescriptor, error) {
	info, err := l.Fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	var desc *core.PackageDescriptor
	if info.IsDir() {
		desc, err = l.loadDir(path)
	} else {
		desc, err = l.loadFile(path)
	}
	if err != nil {
		return nil, err
	}

	if err := validate(desc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	phases := make([]string, 0, len(desc.Scriptlets))
	for p := range desc.Scriptlets {
		phases = append(phases, string(p))
	}
	sort.Strings(phases)
	l.Logger.Debug().
		Str("path", path).
		Str("package", desc.String()).
		Str("format", string(desc.Format)).
		Strs("phases", phases).
		Msg("package descriptor loaded")

	return desc, nil
}

func (l *Loader) loadDir(dir string) (*core.PackageDescriptor, error) {
	switch {
	case l.exists(filepath.Join(dir, ManifestFile)):
		return l.loadManifest(filepath.Join(dir, ManifestFile))
	case l.exists(filepath.Join(dir, DebianDir, DebianControl)):
		return l.loadDebian(filepath.Join(dir, DebianDir))
	case filepath.Base(dir) == DebianDir && l.exists(filepath.Join(dir, DebianControl)):
		return l.loadDebian(dir)
	case l.exists(filepath.Join(dir, ArchPkgInfo)):
		return l.loadArchDir(dir)
	default:
		return nil, fmt.Errorf("%s: no %s, %s/%s or %s found", dir, ManifestFile, DebianDir, DebianControl, ArchPkgInfo)
	}
}

func (l *Loader) loadFile(path string) (*core.PackageDescriptor, error) {
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, ".toml"):
		return l.loadManifest(path)
	case strings.HasSuffix(base, ".tar.xz"),
		strings.HasSuffix(base, ".tar.zst"),
		strings.HasSuffix(base, ".tar.gz"),
		strings.HasSuffix(base, ".tgz"):
		return l.loadArchArchive(path)
	default:
		return nil, fmt.Errorf("unsupported package file: %s", base)
	}
}

func (l *Loader) exists(path string) bool {
	ok, err := afero.Exists(l.Fs, path)
	return err == nil && ok
}

func (l *Loader) readScript(path string) (string, error) {
	info, err := l.Fs.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Size() > maxScriptBytes {
		return "", fmt.Errorf("%s is larger than %d bytes", path, maxScriptBytes)
	}
	data, err := afero.ReadFile(l.Fs, path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type manifestFile struct {
	Name         string            `toml:"name"`
	Version      string            `toml:"version"`
	Release      string            `toml:"release"`
	Format       string            `toml:"format"`
	Scriptlets   map[string]string `toml:"scriptlets"`
	Interpreters map[string]string `toml:"interpreters"`
}

// loadManifest reads a manifest.toml whose [scriptlets] table maps phases to
// script files relative to the manifest
func (l *Loader) loadManifest(path string) (*core.PackageDescriptor, error) {
	data, err := afero.ReadFile(l.Fs, path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m manifestFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	format, err := core.ParseFormat(m.Format)
	if err != nil {
		return nil, err
	}

	desc := &core.PackageDescriptor{
		Name:       m.Name,
		Version:    m.Version,
		Release:    m.Release,
		Format:     format,
		Scriptlets: make(map[core.Phase]core.Scriptlet, len(m.Scriptlets)),
	}

	base := filepath.Dir(path)
	for key, rel := range m.Scriptlets {
		phase, err := core.ParsePhase(key)
		if err != nil {
			return nil, fmt.Errorf("manifest scriptlets: %w", err)
		}
		if filepath.IsAbs(rel) {
			return nil, fmt.Errorf("scriptlet %s: path must be relative: %s", phase, rel)
		}
		if err := security.ValidateArchiveEntry(filepath.ToSlash(rel)); err != nil {
			return nil, fmt.Errorf("scriptlet %s: %w", phase, err)
		}

		scriptPath, err := l.containedPath(base, filepath.Join(base, rel))
		if err != nil {
			return nil, fmt.Errorf("scriptlet %s: %w", phase, err)
		}
		body, err := l.readScript(scriptPath)
		if err != nil {
			return nil, fmt.Errorf("scriptlet %s: %w", phase, err)
		}
		desc.Scriptlets[phase] = scriptletFromBody(body)
	}

	for key, interp := range m.Interpreters {
		phase, err := core.ParsePhase(key)
		if err != nil {
			return nil, fmt.Errorf("manifest interpreters: %w", err)
		}
		s, ok := desc.Scriptlets[phase]
		if !ok {
			return nil, fmt.Errorf("interpreter set for %s but no scriptlet is defined", phase)
		}
		if err := security.ValidateInterpreter(interp); err != nil {
			return nil, fmt.Errorf("scriptlet %s: %w", phase, err)
		}
		s.Interpreter = interp
		s.Flags = nil
		desc.Scriptlets[phase] = s
	}

	return desc, nil
}

// scriptletFromBody takes the interpreter and its arguments from a "#!/path args"
// first line. Bodies without an absolute shebang run under the configured default.
func scriptletFromBody(body string) core.Scriptlet {
	interpreter, flags := parseShebang(body)
	return core.Scriptlet{Interpreter: interpreter, Flags: flags, Body: body}
}

func parseShebang(body string) (string, []string) {
	if !strings.HasPrefix(body, "#!") {
		return "", nil
	}
	line, _, _ := strings.Cut(body[2:], "\n")
	fields := strings.Fields(line)
	if len(fields) == 0 || !filepath.IsAbs(fields[0]) {
		return "", nil
	}
	if len(fields) == 1 {
		return fields[0], nil
	}
	return fields[0], fields[1:]
}

// containedPath resolves path and checks it stays inside base, following
// symlinks when the loader reads the real filesystem.
func (l *Loader) containedPath(base, path string) (string, error) {
	realBase, err := l.realPath(base)
	if err != nil {
		return "", err
	}
	realTarget, err := l.realPath(path)
	if err != nil {
		return "", err
	}
	within, err := security.IsPathWithinDirectory(realTarget, realBase)
	if err != nil {
		return "", err
	}
	if !within {
		return "", fmt.Errorf("%s resolves outside the package directory", path)
	}
	return realTarget, nil
}

func (l *Loader) realPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if _, ok := l.Fs.(*afero.OsFs); ok {
		return filepath.EvalSymlinks(abs)
	}
	return abs, nil
}

func validate(desc *core.PackageDescriptor) error {
	if err := security.ValidatePackageName(desc.Name); err != nil {
		return err
	}
	if err := security.ValidateVersion(desc.Version); err != nil {
		return err
	}
	if desc.Release != "" {
		if err := security.ValidateVersion(desc.Release); err != nil {
			return fmt.Errorf("release: %w", err)
		}
	}
	return desc.Validate()
}
