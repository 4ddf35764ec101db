package cmd

import (
	"context"
	"testing"

	"github.com/quantmind-br/pkglife/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRemoveCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRemoveCmd(testConfig(t), testLogger())

	assert.Contains(t, cmd.Use, "remove")
	assert.Contains(t, cmd.Aliases, "uninstall")
	assert.NotNil(t, cmd.Flags().Lookup("yes"))
	assert.NotNil(t, cmd.Flags().Lookup("no-scripts"))
}

func TestRemoveCmd_NotInstalled(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	seedPackages(t, cfg, &core.PackageDescriptor{Name: "nginx", Version: "1.24", Format: core.FormatDeb})

	_, err := execute(t, NewRemoveCmd(cfg, testLogger()), "ngnix")
	require.Error(t, err)
	assert.Equal(t, core.ExitNotInstalled, ExitCode(err))
}

func TestRemoveCmd_NoScripts(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	seedPackages(t, cfg, &core.PackageDescriptor{
		Name:    "hello",
		Version: "2.0",
		Release: "1",
		Format:  core.FormatRPM,
		Scriptlets: map[core.Phase]core.Scriptlet{
			core.PhasePreRemove: {Body: "exit 1"},
		},
	})

	out, err := execute(t, NewRemoveCmd(cfg, testLogger()), "--no-scripts", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed hello@2.0-1")

	desc, err := openTestDB(t, cfg).Get(context.Background(), "hello")
	require.NoError(t, err)
	assert.Nil(t, desc)
}

func TestRemoveCmd_PreRemoveFailureKeepsRecord(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	seedPackages(t, cfg, &core.PackageDescriptor{
		Name:    "sticky",
		Version: "1.0",
		Format:  core.FormatRPM,
		Scriptlets: map[core.Phase]core.Scriptlet{
			core.PhasePreRemove: {Body: "exit 1"},
		},
	})

	_, err := execute(t, NewRemoveCmd(cfg, testLogger()), "sticky")
	require.Error(t, err)
	assert.Equal(t, core.ExitScriptletFailed, ExitCode(err))

	desc, err := openTestDB(t, cfg).Get(context.Background(), "sticky")
	require.NoError(t, err)
	assert.NotNil(t, desc)
}

func TestRemoveError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, core.ExitRemoveFailed, ExitCode(removeError(assert.AnError)))
	assert.Equal(t, core.ExitDatabase, ExitCode(removeError(&core.DatabaseError{Op: "x", Err: assert.AnError})))
}

func TestCompleteInstalledNames(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	seedPackages(t, cfg,
		&core.PackageDescriptor{Name: "beta", Version: "1", Format: core.FormatArch},
		&core.PackageDescriptor{Name: "alpha", Version: "1", Format: core.FormatDeb},
	)

	complete := completeInstalledNames(cfg)

	names, _ := complete(NewRemoveCmd(cfg, testLogger()), nil, "")
	assert.Equal(t, []string{"alpha", "beta"}, names)

	names, _ = complete(NewRemoveCmd(cfg, testLogger()), []string{"alpha"}, "")
	assert.Empty(t, names)
}
