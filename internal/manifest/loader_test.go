package manifest

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/quantmind-br/pkglife/internal/core"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

const sampleInstall = `post_install() {
    echo "installed $1"
}

pre_upgrade() {
    echo "upgrading $2 -> $1"
}

function post_remove() {
    echo "removed"
}
`

const samplePkgInfo = `# Generated by makepkg
pkgname = hello
pkgbase = hello
pkgver = 1:2.4-3
pkgdesc = greeting tool
`

func newTestLoader(fs afero.Fs) *Loader {
	logger := zerolog.Nop()
	return NewLoader(fs, &logger)
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func TestLoad_Manifest(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/pkg/manifest.toml", `
name = "hello"
version = "1.0.0"
release = "2"
format = "rpm"

[scriptlets]
pre-install = "scripts/pre.sh"
post_install = "scripts/post.sh"

[interpreters]
post-install = "/bin/bash"
`)
	writeFile(t, fs, "/pkg/scripts/pre.sh", "#!/bin/sh\necho pre\n")
	writeFile(t, fs, "/pkg/scripts/post.sh", "echo post\n")

	desc, err := newTestLoader(fs).Load("/pkg")
	require.NoError(t, err)

	assert.Equal(t, "hello", desc.Name)
	assert.Equal(t, "1.0.0-2", desc.FullVersion())
	assert.Equal(t, core.FormatRPM, desc.Format)
	require.Len(t, desc.Scriptlets, 2)
	assert.Equal(t, "/bin/sh", desc.Scriptlets[core.PhasePreInstall].Interpreter)
	assert.Equal(t, "/bin/bash", desc.Scriptlets[core.PhasePostInstall].Interpreter)
	assert.Equal(t, "echo post\n", desc.Scriptlets[core.PhasePostInstall].Body)
}

func TestLoad_ManifestErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		files    map[string]string
	}{
		{
			name:     "unknown field",
			manifest: "name = \"a\"\nversion = \"1\"\nformat = \"rpm\"\narch = \"x86_64\"\n",
		},
		{
			name:     "unsupported format",
			manifest: "name = \"a\"\nversion = \"1\"\nformat = \"snap\"\n",
		},
		{
			name:     "unknown phase",
			manifest: "name = \"a\"\nversion = \"1\"\nformat = \"deb\"\n[scriptlets]\npre-configure = \"x.sh\"\n",
			files:    map[string]string{"/pkg/x.sh": "true"},
		},
		{
			name:     "missing script file",
			manifest: "name = \"a\"\nversion = \"1\"\nformat = \"deb\"\n[scriptlets]\npre-install = \"missing.sh\"\n",
		},
		{
			name:     "escaping script path",
			manifest: "name = \"a\"\nversion = \"1\"\nformat = \"deb\"\n[scriptlets]\npre-install = \"../../etc/shadow\"\n",
		},
		{
			name:     "interpreter without scriptlet",
			manifest: "name = \"a\"\nversion = \"1\"\nformat = \"deb\"\n[interpreters]\npre-install = \"/bin/sh\"\n",
		},
		{
			name:     "invalid name",
			manifest: "name = \"../a\"\nversion = \"1\"\nformat = \"deb\"\n",
		},
		{
			name:     "missing version",
			manifest: "name = \"a\"\nformat = \"arch\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeFile(t, fs, "/pkg/manifest.toml", tt.manifest)
			for path, content := range tt.files {
				writeFile(t, fs, path, content)
			}

			_, err := newTestLoader(fs).Load("/pkg")
			assert.Error(t, err)
		})
	}
}

func TestLoad_Debian(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/pkg/DEBIAN/control", `Package: hello
Version: 1:2.10-1ubuntu2
Architecture: amd64
Description: greeting tool
 A longer description
 spanning lines.
`)
	writeFile(t, fs, "/pkg/DEBIAN/preinst", "#!/bin/bash\nset -e\n")
	writeFile(t, fs, "/pkg/DEBIAN/postrm", "#!/bin/sh -e\nexit 0\n")

	desc, err := newTestLoader(fs).Load("/pkg")
	require.NoError(t, err)

	assert.Equal(t, "hello", desc.Name)
	assert.Equal(t, "1:2.10", desc.Version)
	assert.Equal(t, "1ubuntu2", desc.Release)
	assert.Equal(t, core.FormatDeb, desc.Format)
	require.Len(t, desc.Scriptlets, 2)
	assert.Equal(t, "/bin/bash", desc.Scriptlets[core.PhasePreInstall].Interpreter)
	assert.Empty(t, desc.Scriptlets[core.PhasePreInstall].Flags)
	assert.Equal(t, "/bin/sh", desc.Scriptlets[core.PhasePostRemove].Interpreter)
	assert.Equal(t, []string{"-e"}, desc.Scriptlets[core.PhasePostRemove].Flags)

	// Pointing at the DEBIAN directory itself works too.
	again, err := newTestLoader(fs).Load("/pkg/DEBIAN")
	require.NoError(t, err)
	assert.Equal(t, desc.Name, again.Name)
}

func TestParseControl(t *testing.T) {
	fields, err := parseControl("# comment\n\nPackage: a\nVersion: 1\n\nPackage: b\n")
	require.NoError(t, err)
	assert.Equal(t, "a", fields["Package"], "only the first paragraph is read")

	_, err = parseControl(" continuation\n")
	assert.Error(t, err)

	_, err = parseControl("no colon here\n")
	assert.Error(t, err)
}

func TestSplitVersions(t *testing.T) {
	tests := []struct {
		in, version, release string
	}{
		{"1.0", "1.0", ""},
		{"1.0-1", "1.0", "1"},
		{"2:1.0-rc1-3", "2:1.0-rc1", "3"},
		{"-1", "-1", ""},
	}
	for _, tt := range tests {
		v, r := SplitDebianVersion(tt.in)
		assert.Equal(t, tt.version, v, tt.in)
		assert.Equal(t, tt.release, r, tt.in)

		v, r = SplitArchVersion(tt.in)
		assert.Equal(t, tt.version, v, tt.in)
		assert.Equal(t, tt.release, r, tt.in)
	}
}

func TestLoad_ArchDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/pkg/.PKGINFO", samplePkgInfo)
	writeFile(t, fs, "/pkg/.INSTALL", sampleInstall)

	desc, err := newTestLoader(fs).Load("/pkg")
	require.NoError(t, err)

	assert.Equal(t, "hello", desc.Name)
	assert.Equal(t, "1:2.4", desc.Version)
	assert.Equal(t, "3", desc.Release)
	assert.Equal(t, core.FormatArch, desc.Format)
	assert.ElementsMatch(t,
		[]core.Phase{core.PhasePostInstall, core.PhasePreUpgrade, core.PhasePostRemove},
		keys(desc.Scriptlets))
	assert.Equal(t, sampleInstall, desc.Scriptlets[core.PhasePreUpgrade].Body)
}

func TestLoad_ArchDirWithoutInstall(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/pkg/.PKGINFO", samplePkgInfo)

	desc, err := newTestLoader(fs).Load("/pkg")
	require.NoError(t, err)
	assert.Empty(t, desc.Scriptlets)
}

func TestInstallFunctions(t *testing.T) {
	phases := InstallFunctions("pre_install(){ :; }\n  post_upgrade () {\n:\n}\n# pre_remove() {}\nnot_post_remove() { :; }\n")
	assert.Equal(t, []core.Phase{core.PhasePreInstall, core.PhasePostUpgrade}, phases)
	assert.Nil(t, InstallFunctions(""))
}

func TestLoad_ArchArchives(t *testing.T) {
	members := map[string]string{
		".PKGINFO": samplePkgInfo,
		".INSTALL": sampleInstall,
		"usr/bin/hello": "\x7fELF",
	}

	tests := []struct {
		name     string
		compress func(t *testing.T, w io.Writer) io.WriteCloser
	}{
		{
			name: "hello-2.4-3-x86_64.pkg.tar.gz",
			compress: func(t *testing.T, w io.Writer) io.WriteCloser {
				return gzip.NewWriter(w)
			},
		},
		{
			name: "hello-2.4-3-x86_64.pkg.tar.xz",
			compress: func(t *testing.T, w io.Writer) io.WriteCloser {
				xw, err := xz.NewWriter(w)
				require.NoError(t, err)
				return xw
			},
		},
		{
			name: "hello-2.4-3-x86_64.pkg.tar.zst",
			compress: func(t *testing.T, w io.Writer) io.WriteCloser {
				zw, err := zstd.NewWriter(w)
				require.NoError(t, err)
				return zw
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			var buf bytes.Buffer
			cw := tt.compress(t, &buf)
			writeTar(t, cw, members)
			require.NoError(t, cw.Close())
			writeFile(t, fs, "/cache/"+tt.name, buf.String())

			desc, err := newTestLoader(fs).Load("/cache/" + tt.name)
			require.NoError(t, err)
			assert.Equal(t, "hello", desc.Name)
			assert.Equal(t, "1:2.4-3", desc.FullVersion())
			assert.Len(t, desc.Scriptlets, 3)

			exists, err := afero.Exists(fs, "/cache/usr/bin/hello")
			require.NoError(t, err)
			assert.False(t, exists, "payload must never be extracted")
		})
	}
}

func TestLoad_ArchArchiveRejectsTraversal(t *testing.T) {
	fs := afero.NewMemMapFs()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	writeTar(t, gw, map[string]string{"../../.PKGINFO": samplePkgInfo})
	require.NoError(t, gw.Close())
	writeFile(t, fs, "/evil.pkg.tar.gz", buf.String())

	_, err := newTestLoader(fs).Load("/evil.pkg.tar.gz")
	assert.ErrorContains(t, err, "invalid path in archive")
}

func TestLoad_Unrecognised(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/empty", 0o755))
	writeFile(t, fs, "/pkg.rpm", "binary")

	loader := newTestLoader(fs)
	_, err := loader.Load("/empty")
	assert.Error(t, err)
	_, err = loader.Load("/pkg.rpm")
	assert.ErrorContains(t, err, "unsupported package file")
	_, err = loader.Load("/missing")
	assert.Error(t, err)
}

func writeTar(t *testing.T, w io.Writer, members map[string]string) {
	t.Helper()
	tw := tar.NewWriter(w)
	// Metadata first, like makepkg.
	order := []string{".PKGINFO", ".INSTALL", "../../.PKGINFO", "usr/bin/hello"}
	for _, name := range order {
		content, ok := members[name]
		if !ok {
			continue
		}
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
}

func keys(m map[core.Phase]core.Scriptlet) []core.Phase {
	out := make([]core.Phase, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestParseShebang(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		interpreter string
		flags       []string
	}{
		{"plain", "#!/bin/bash\necho hi\n", "/bin/bash", nil},
		{"with errexit", "#!/bin/sh -e\nfalse\n", "/bin/sh", []string{"-e"}},
		{"several flags", "#! /bin/sh -e -u\n", "/bin/sh", []string{"-e", "-u"}},
		{"env lookup", "#!/usr/bin/env bash\n", "/usr/bin/env", []string{"bash"}},
		{"relative", "#!sh\n", "", nil},
		{"no shebang", "echo hi\n", "", nil},
		{"empty shebang", "#!\n", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			interpreter, flags := parseShebang(tt.body)
			assert.Equal(t, tt.interpreter, interpreter)
			assert.Equal(t, tt.flags, flags)
		})
	}
}

func TestLoad_ManifestInterpreterOverrideDropsShebangFlags(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/pkg/manifest.toml", `name = "hello"
version = "1.0"
format = "rpm"

[scriptlets]
pre-install = "pre.sh"

[interpreters]
pre-install = "/bin/bash"
`)
	writeFile(t, fs, "/pkg/pre.sh", "#!/bin/sh -e\ntrue\n")

	desc, err := newTestLoader(fs).Load("/pkg")
	require.NoError(t, err)
	assert.Equal(t, "/bin/bash", desc.Scriptlets[core.PhasePreInstall].Interpreter)
	assert.Empty(t, desc.Scriptlets[core.PhasePreInstall].Flags)
}

func TestLoad_ScriptSymlinkEscapingPackage(t *testing.T) {
	outside := filepath.Join(t.TempDir(), "secret.sh")
	require.NoError(t, os.WriteFile(outside, []byte("echo leaked\n"), 0o644))

	t.Run("manifest", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.toml"), []byte(`name = "hello"
version = "1.0"
format = "deb"

[scriptlets]
post-install = "post.sh"
`), 0o644))
		require.NoError(t, os.Symlink(outside, filepath.Join(dir, "post.sh")))

		_, err := newTestLoader(afero.NewOsFs()).Load(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "outside the package directory")
	})

	t.Run("debian", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "DEBIAN"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "DEBIAN", "control"), []byte("Package: hello\nVersion: 1.0-1\n"), 0o644))
		require.NoError(t, os.Symlink(outside, filepath.Join(dir, "DEBIAN", "postinst")))

		_, err := newTestLoader(afero.NewOsFs()).Load(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "outside the package directory")
	})

	t.Run("symlink inside the package is fine", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.toml"), []byte(`name = "hello"
version = "1.0"
format = "deb"

[scriptlets]
post-install = "post.sh"
`), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "real.sh"), []byte("#!/bin/sh -e\ntrue\n"), 0o644))
		require.NoError(t, os.Symlink("real.sh", filepath.Join(dir, "post.sh")))

		desc, err := newTestLoader(afero.NewOsFs()).Load(dir)
		require.NoError(t, err)
		assert.Equal(t, []string{"-e"}, desc.Scriptlets[core.PhasePostInstall].Flags)
	})
}
