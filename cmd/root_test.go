package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"process", "watch", "history", "effective", "stats", "export", "migrate", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "solarledger", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestProcessCommand_Flags(t *testing.T) {
	flag := processCmd.Flags().Lookup("input-dir")
	require.NotNil(t, flag, "process command should have --input-dir flag")

	report := processCmd.Flags().Lookup("report")
	require.NotNil(t, report)
	assert.Equal(t, "-", report.DefValue)
}

func TestHistoryCommand_Flags(t *testing.T) {
	require.NotNil(t, historyCmd.Flags().Lookup("supplier"))
	require.NotNil(t, historyCmd.Flags().Lookup("product"))
}

func TestEffectiveCommand_Flags(t *testing.T) {
	require.NotNil(t, effectiveCmd.Flags().Lookup("supplier"))
	require.NotNil(t, effectiveCmd.Flags().Lookup("product"))
	at := effectiveCmd.Flags().Lookup("at")
	require.NotNil(t, at)
	assert.Equal(t, "", at.DefValue)
}

func TestExportCommand_Flags(t *testing.T) {
	format := exportCmd.Flags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "json", format.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}
