package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVerifier(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"abc123", "abc123"},
		{"  abc123 \n", "abc123"},
		{"http://localhost:4567/callback?oauth_token=t&oauth_verifier=v3r1f13r", "v3r1f13r"},
		{"http://localhost:4567/callback?oauth_token=t&oauth_verifier=v3r#_=_", "v3r"},
		{"oauth_token=t&oauth_verifier=xyz", "xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseVerifier(tt.input))
		})
	}
}

func TestFlagOverridesOnlyIncludesChangedFlags(t *testing.T) {
	cmd := backupCmd
	// Parent persistent flags join a subcommand's flag set on first use
	cmd.InheritedFlags()
	require.NoError(t, rootCmd.PersistentFlags().Set("db", "/tmp/archive.db"))
	require.NoError(t, rootCmd.PersistentFlags().Set("concurrency", "7"))
	defer func() {
		dbPath, concurrency = "", 0
		rootCmd.PersistentFlags().Lookup("db").Changed = false
		rootCmd.PersistentFlags().Lookup("concurrency").Changed = false
	}()

	flags := flagOverrides(cmd)
	assert.Equal(t, "/tmp/archive.db", flags["db"])
	assert.Equal(t, 7, flags["concurrency"])
	assert.NotContains(t, flags, "media-dir")
	assert.NotContains(t, flags, "log-file")
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"backup"},
		{"auth", "login"},
		{"auth", "status"},
		{"auth", "logout"},
		{"config", "init"},
		{"config", "show"},
		{"config", "validate"},
		{"media", "download"},
		{"media", "reset-failed"},
		{"status"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, "%v", path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
