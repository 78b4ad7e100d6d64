package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	want := []string{"repo", "analyze", "graph", "stats", "neighbors", "impact", "progress", "mcp", "config", "credentials"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}

	add, _, err := rootCmd.Find([]string{"repo", "add"})
	require.NoError(t, err)
	assert.NotNil(t, add.Flags().Lookup("url"))
	assert.NotNil(t, add.Flags().Lookup("branch"))

	impact, _, err := rootCmd.Find([]string{"impact"})
	require.NoError(t, err)
	for _, flag := range []string{"max-depth", "max-fan-out", "max-chains"} {
		assert.NotNil(t, impact.Flags().Lookup(flag), flag)
	}
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("json"))
}

func TestCheckItem(t *testing.T) {
	assert.NoError(t, checkItem("neo4j-password"))
	assert.NoError(t, checkItem("postgres-dsn"))
	assert.Error(t, checkItem("github-token"))
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"CodeElement", "Dependency", "Service"}, sortedKeys(map[string]int{"Service": 1, "CodeElement": 4, "Dependency": 2}))
	assert.Empty(t, sortedKeys(nil))
}
