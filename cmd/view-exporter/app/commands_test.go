package app

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCmd_Subcommands(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()

	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.ElementsMatch(t, []string{"listen", "version"}, names)

	listen, _, err := root.Find([]string{"listen"})
	require.NoError(t, err)
	for _, flag := range []string{"user", "host", "config", "address"} {
		assert.NotNil(t, listen.Flags().Lookup(flag), "missing flag %s", flag)
	}
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, out string)
	}{
		{
			name: "text",
			args: []string{"version"},
			check: func(t *testing.T, out string) {
				t.Helper()
				assert.Contains(t, out, "view-exporter ")
			},
		},
		{
			name: "json",
			args: []string{"version", "--format", "json"},
			check: func(t *testing.T, out string) {
				t.Helper()
				var info map[string]string
				require.NoError(t, json.Unmarshal([]byte(out), &info))
				assert.NotEmpty(t, info["version"])
				assert.NotEmpty(t, info["go_version"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			root := NewRootCmd()
			var out bytes.Buffer
			root.SetOut(&out)
			root.SetArgs(tt.args)

			require.NoError(t, root.Execute())
			tt.check(t, out.String())
		})
	}
}

func TestListenCmd_ArgumentErrors(t *testing.T) {
	t.Parallel()

	badConfig := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(badConfig, []byte("resources:\n  - name: incident\n"), 0600))

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "missing_user",
			args:    []string{"listen"},
			wantErr: "--user is required",
		},
		{
			name:    "missing_config_file",
			args:    []string{"listen", "--user", "tms", "--config", filepath.Join(t.TempDir(), "absent.yaml")},
			wantErr: "failed to load configuration",
		},
		{
			name:    "invalid_config",
			args:    []string{"listen", "--user", "tms", "--config", badConfig},
			wantErr: "query is required",
		},
		{
			name:    "invalid_address",
			args:    []string{"listen", "--user", "tms", "--address", "nowhere"},
			wantErr: "address is not a valid port",
		},
		{
			name:    "unexpected_argument",
			args:    []string{"listen", "--user", "tms", "extra"},
			wantErr: "unknown command",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			root := NewRootCmd()
			root.SetOut(&bytes.Buffer{})
			root.SetErr(&bytes.Buffer{})
			root.SetArgs(tt.args)

			err := root.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Resources)
	assert.Empty(t, cfg.GetStatusAddress())
}
