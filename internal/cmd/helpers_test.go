package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quantmind-br/pkglife/internal/config"
	"github.com/quantmind-br/pkglife/internal/core"
	"github.com/quantmind-br/pkglife/internal/db"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	tmpDir := t.TempDir()
	return &config.Config{
		Paths: config.PathsConfig{
			DataDir: tmpDir,
			DBFile:  filepath.Join(tmpDir, "data", "packages.db"),
			LogFile: filepath.Join(tmpDir, "pkglife.log"),
		},
		Scriptlets: config.ScriptletsConfig{
			Timeout:            10 * time.Second,
			DefaultInterpreter: "/bin/sh",
			Root:               t.TempDir(),
		},
	}
}

func testLogger() *zerolog.Logger {
	log := zerolog.New(io.Discard)
	return &log
}

// seedPackages records packages directly, bypassing scriptlets
func seedPackages(t *testing.T, cfg *config.Config, descs ...*core.PackageDescriptor) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Paths.DBFile), 0755))

	ctx := context.Background()
	database, err := db.New(ctx, cfg.Paths.DBFile)
	require.NoError(t, err)
	defer database.Close()

	for _, d := range descs {
		require.NoError(t, database.Put(ctx, d))
	}
}

// writeManifest creates a manifest.toml package directory with one shell
// script per phase
func writeManifest(t *testing.T, name, version, format string, scripts map[core.Phase]string) string {
	t.Helper()
	dir := t.TempDir()

	var b bytes.Buffer
	b.WriteString("name = \"" + name + "\"\n")
	b.WriteString("version = \"" + version + "\"\n")
	b.WriteString("release = \"1\"\n")
	b.WriteString("format = \"" + format + "\"\n")
	if len(scripts) > 0 {
		b.WriteString("\n[scriptlets]\n")
		for phase, body := range scripts {
			file := string(phase) + ".sh"
			require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(body), 0644))
			b.WriteString("\"" + string(phase) + "\" = \"" + file + "\"\n")
		}
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.toml"), b.Bytes(), 0644))
	return dir
}

// execute runs cmd with args and returns its stdout
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func openTestDB(t *testing.T, cfg *config.Config) *db.DB {
	t.Helper()
	database, err := db.New(context.Background(), cfg.Paths.DBFile)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}
