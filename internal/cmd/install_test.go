package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quantmind-br/pkglife/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInstallCmd(t *testing.T) {
	t.Parallel()

	cmd := NewInstallCmd(testConfig(t), testLogger())

	assert.Contains(t, cmd.Use, "install")
	for _, flag := range []string{"no-scripts", "root", "env", "timeout", "no-progress"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), flag)
	}
}

func TestInstallCmd_InvalidPath(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	_, err := execute(t, NewInstallCmd(cfg, testLogger()), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, core.ExitInstallFailed, ExitCode(installError(err)))
}

func TestInstallCmd_InstallUpgradeRemove(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	t.Parallel()

	cfg := testConfig(t)
	logFile := filepath.Join(cfg.Scriptlets.Root, "calls.log")
	scripts := func(version string) map[core.Phase]string {
		line := func(tag string) string {
			return "echo \"" + tag + "-" + version + " $*\" >> \"" + logFile + "\"\n"
		}
		return map[core.Phase]string{
			core.PhasePreInstall:  line("preinst"),
			core.PhasePostInstall: line("postinst"),
			core.PhasePreRemove:   line("prerm"),
			core.PhasePostRemove:  line("postrm"),
		}
	}

	out, err := execute(t, NewInstallCmd(cfg, testLogger()), writeManifest(t, "demo", "1.0", "deb", scripts("1.0")))
	require.NoError(t, err)
	assert.Contains(t, out, "Installed demo@1.0-1")

	out, err = execute(t, NewInstallCmd(cfg, testLogger()), writeManifest(t, "demo", "2.0", "deb", scripts("2.0")))
	require.NoError(t, err)
	assert.Contains(t, out, "Upgraded demo@1.0-1")

	out, err = execute(t, NewRemoveCmd(cfg, testLogger()), "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed demo@2.0-1")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"preinst-1.0 install",
		"postinst-1.0 configure",
		"preinst-2.0 upgrade 1.0",
		"prerm-1.0 upgrade 2.0",
		"postrm-1.0 upgrade 2.0",
		"postinst-2.0 configure 1.0",
		"prerm-2.0 remove",
		"postrm-2.0 remove",
	}, strings.Split(strings.TrimSpace(string(data)), "\n"))

	desc, err := openTestDB(t, cfg).Get(context.Background(), "demo")
	require.NoError(t, err)
	assert.Nil(t, desc)
}

func TestInstallCmd_PreInstallFailure(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	t.Parallel()

	cfg := testConfig(t)
	pkg := writeManifest(t, "broken", "1.0", "rpm", map[core.Phase]string{
		core.PhasePreInstall: "exit 3\n",
	})

	_, err := execute(t, NewInstallCmd(cfg, testLogger()), pkg)
	require.Error(t, err)
	assert.Equal(t, core.ExitScriptletFailed, ExitCode(err))

	database := openTestDB(t, cfg)
	desc, err := database.Get(context.Background(), "broken")
	require.NoError(t, err)
	assert.Nil(t, desc)

	history, err := database.History(context.Background(), "broken", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Committed)
}

func TestInstallCmd_NoScripts(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	marker := filepath.Join(cfg.Scriptlets.Root, "ran")
	pkg := writeManifest(t, "quiet", "1.0", "arch", map[core.Phase]string{
		core.PhasePostInstall: "post_install() { touch \"" + marker + "\"; }\n",
	})

	out, err := execute(t, NewInstallCmd(cfg, testLogger()), "--no-scripts", pkg)
	require.NoError(t, err)
	assert.Contains(t, out, "scriptlets suppressed")
	assert.NoFileExists(t, marker)

	desc, err := openTestDB(t, cfg).Get(context.Background(), "quiet")
	require.NoError(t, err)
	require.NotNil(t, desc)
	assert.Equal(t, "1.0", desc.Version)
}

func TestInstallCmd_FormatMismatch(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	seedPackages(t, cfg, &core.PackageDescriptor{Name: "tool", Version: "1.0", Format: core.FormatRPM})

	_, err := execute(t, NewInstallCmd(cfg, testLogger()), "--no-scripts", writeManifest(t, "tool", "2.0", "deb", nil))
	require.Error(t, err)
	assert.Equal(t, core.ExitFormatMismatch, ExitCode(err))
}

func TestInstallCmd_InvalidOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{"root does not exist", []string{"--root", "/nonexistent/pkglife-root"}},
		{"malformed env", []string{"--env", "NOEQUALS"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			args := append(tt.args, writeManifest(t, "opt", "1.0", "rpm", nil))
			_, err := execute(t, NewInstallCmd(cfg, testLogger()), args...)
			assert.Error(t, err)
		})
	}
}

func TestInstallError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, core.ExitInstallFailed, ExitCode(installError(assert.AnError)))
	assert.Equal(t, core.ExitNotInstalled, ExitCode(installError(&core.NotInstalledError{Name: "x"})))
}

func TestIsInteractive(t *testing.T) {
	t.Parallel()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})

	tests := []struct {
		name string
		out  io.Writer
	}{
		{name: "buffer", out: &bytes.Buffer{}},
		{name: "pipe", out: w},
		{name: "builder", out: &strings.Builder{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, isInteractive(tt.out))
		})
	}
}
