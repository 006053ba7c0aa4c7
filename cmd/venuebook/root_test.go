package main

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Commands(t *testing.T) {
	root := newRootCmd()

	for _, path := range [][]string{
		{"serve"},
		{"jobs", "process"},
		{"jobs", "list"},
		{"jobs", "requeue"},
		{"jobs", "health"},
		{"lifecycle", "advance"},
		{"db", "backup"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestNewLogger_Level(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, newLogger("DEBUG", false).GetLevel())
	assert.Equal(t, zerolog.InfoLevel, newLogger("", true).GetLevel())
	assert.Equal(t, zerolog.InfoLevel, newLogger("loud", false).GetLevel())
}
