package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd(t *testing.T) {
	t.Run("Should register every subcommand", func(t *testing.T) {
		root := RootCmd()
		names := make([]string, 0, len(root.Commands()))
		for _, sub := range root.Commands() {
			names = append(names, sub.Name())
		}
		for _, expected := range []string{"run", "validate", "sample", "tasks", "dev", "serve"} {
			assert.Contains(t, names, expected)
		}
	})
	t.Run("Should expose persistent logging flags", func(t *testing.T) {
		root := RootCmd()
		level := root.PersistentFlags().Lookup("log-level")
		require.NotNil(t, level)
		assert.Equal(t, "info", level.DefValue)
		assert.NotNil(t, root.PersistentFlags().Lookup("log-json"))
		assert.NotNil(t, root.PersistentFlags().Lookup("log-source"))
		assert.NotNil(t, root.PersistentFlags().Lookup("env-file"))
	})
}

func TestOverridesFromFlags(t *testing.T) {
	t.Run("Should collect only changed flags", func(t *testing.T) {
		cmd := ServeCmd()
		require.NoError(t, cmd.Flags().Set("port", "9999"))
		overrides := overridesFromFlags(cmd)
		assert.Equal(t, map[string]any{"server.port": "9999"}, overrides)
	})
	t.Run("Should return an empty map when nothing changed", func(t *testing.T) {
		assert.Empty(t, overridesFromFlags(ServeCmd()))
	})
}
