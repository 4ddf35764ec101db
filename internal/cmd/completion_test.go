package cmd

import (
	"testing"

	"github.com/quantmind-br/pkglife/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCompletionCmd(t *testing.T) {
	t.Parallel()

	cmd := NewCompletionCmd(&config.Config{}, testLogger())
	assert.Equal(t, []string{"bash", "zsh", "fish", "powershell"}, cmd.ValidArgs)
}

func TestCompletionCmd_Shells(t *testing.T) {
	t.Parallel()

	tests := []struct {
		shell string
		want  string
	}{
		{"bash", "pkglife"},
		{"zsh", "#compdef pkglife"},
		{"fish", "complete -c pkglife"},
		{"powershell", "pkglife"},
	}

	for _, tt := range tests {
		t.Run(tt.shell, func(t *testing.T) {
			root := NewRootCmd(&config.Config{}, testLogger(), "test")
			out, err := execute(t, root, "completion", tt.shell)
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestCompletionCmd_InvalidShell(t *testing.T) {
	t.Parallel()

	root := NewRootCmd(&config.Config{}, testLogger(), "test")
	_, err := execute(t, root, "completion", "tcsh")
	assert.Error(t, err)
}
