package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"migrate", "run", "serve", "status", "mismatch", "summary"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "spotcheck", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"ref-type", "from", "to", "all"} {
		flag := runCmd.Flags().Lookup(name)
		require.NotNil(t, flag, "run command should have --%s flag", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestStatusCommand_Flags(t *testing.T) {
	flag := statusCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "status command should have --limit flag")
	assert.Equal(t, "20", flag.DefValue)
}

func TestMismatchCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range mismatchCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"ignore", "issue-add", "issue-del"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestSummaryCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range summaryCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"status", "type", "contenttype"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}
