package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 60*time.Second, cfg.Scriptlets.Timeout)
	assert.Equal(t, "/bin/sh", cfg.Scriptlets.DefaultInterpreter)
	assert.Equal(t, "/", cfg.Scriptlets.Root)
	assert.False(t, cfg.Scriptlets.Suppress)
	assert.NotEmpty(t, cfg.Paths.DataDir)
	assert.Equal(t, "packages.db", filepath.Base(cfg.Paths.DBFile))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
db_file = "` + filepath.Join(dir, "pkgs.db") + `"

[scriptlets]
timeout = "5s"
default_interpreter = "/bin/bash"
root = "/srv/chroot"
suppress = true
env = ["DESTDIR=/srv/chroot", "LANG=C"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "pkgs.db"), cfg.Paths.DBFile)
	assert.Equal(t, 5*time.Second, cfg.Scriptlets.Timeout)
	assert.Equal(t, "/bin/bash", cfg.Scriptlets.DefaultInterpreter)
	assert.Equal(t, "/srv/chroot", cfg.Scriptlets.Root)
	assert.True(t, cfg.Scriptlets.Suppress)

	env, err := cfg.ScriptEnv()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"DESTDIR": "/srv/chroot", "LANG": "C"}, env)
}

func TestLoadFile_EnvOverride(t *testing.T) {
	t.Setenv("PKGLIFE_SCRIPTLETS_TIMEOUT", "90s")
	t.Setenv("PKGLIFE_LOGGING_LEVEL", "debug")

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlevel = \"warn\"\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Scriptlets.Timeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "zero timeout", content: "[scriptlets]\ntimeout = \"0s\"\n"},
		{name: "relative interpreter", content: "[scriptlets]\ndefault_interpreter = \"sh\"\n"},
		{name: "bad env", content: "[scriptlets]\nenv = [\"novalue\"]\n"},
		{name: "malformed toml", content: "[scriptlets\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := LoadFile(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err, "an explicit config file must exist")
}

func TestExpandPath(t *testing.T) {
	homeDir, _ := os.UserHomeDir()
	t.Setenv("PKGLIFE_TEST_DIR", "/var/lib/test")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty path", input: "", want: ""},
		{name: "absolute path", input: "/usr/local/bin", want: "/usr/local/bin"},
		{name: "home expansion", input: "~/test", want: filepath.Join(homeDir, "test")},
		{name: "env expansion", input: "$PKGLIFE_TEST_DIR/db", want: "/var/lib/test/db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expandPath(tt.input))
		})
	}
}
