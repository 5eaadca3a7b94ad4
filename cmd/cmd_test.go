package cmd

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPassCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "test"}
	addPassFlags(c)
	require.NoError(t, c.ParseFlags(args))
	return c
}

func TestCheckPassFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"no flags", nil, false},
		{"counter and module", []string{"-c", "3", "-m", "pdw"}, false},
		{"counter only", []string{"-c", "3"}, true},
		{"module only", []string{"-m", "pdw"}, true},
		{"parquet output", []string{"-t", "--output-format", "parquet"}, false},
		{"unknown output format", []string{"--output-format", "xml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outputFormat = "json"
			err := checkPassFlags(newPassCmd(t, tt.args...))
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var ue usageError
			assert.True(t, errors.As(err, &ue), "want usage error, got %v", err)
		})
	}
}

func TestUsageArgs(t *testing.T) {
	err := usageArgs(cobra.ExactArgs(1))(&cobra.Command{}, nil)
	var ue usageError
	require.True(t, errors.As(err, &ue))
	assert.NoError(t, usageArgs(cobra.ExactArgs(1))(&cobra.Command{}, []string{"x"}))
}

func TestExecute_ExitCodes(t *testing.T) {
	t.Run("unknown flag", func(t *testing.T) {
		rootCmd.SetArgs([]string{"--bogus"})
		assert.Equal(t, ExitUsage, Execute())
	})
	t.Run("missing config is not a failure", func(t *testing.T) {
		rootCmd.SetArgs([]string{"-l", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
		assert.Equal(t, ExitOK, Execute())
	})
	t.Run("state export needs a path", func(t *testing.T) {
		rootCmd.SetArgs([]string{"-l", "state", "export"})
		assert.Equal(t, ExitUsage, Execute())
	})
}
