package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/dexnav/internal/fetch"
	"github.com/jask/dexnav/internal/journal"
	"github.com/jask/dexnav/internal/navigator"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("DEXNAV_CONFIG", filepath.Join(dir, "config.toml"))
	t.Setenv("DEXNAV_JOURNAL_PATH", filepath.Join(dir, "journal.db"))
	t.Setenv("DEXNAV_API_TOKEN", "")
	return dir
}

func TestConfigInit(t *testing.T) {
	dir := isolate(t)

	var out bytes.Buffer
	require.NoError(t, runConfig([]string{"init"}, &out))
	require.Contains(t, out.String(), filepath.Join(dir, "config.toml"))

	// A second init must not clobber the file.
	require.ErrorContains(t, runConfig([]string{"init"}, &out), "already exists")
	require.Error(t, runConfig(nil, &out))
}

func TestTokenCommands(t *testing.T) {
	isolate(t)

	var out bytes.Buffer
	require.NoError(t, runToken([]string{"status"}, &out))
	require.Contains(t, out.String(), "token source: none")

	out.Reset()
	require.NoError(t, runToken([]string{"set", "abc123"}, &out))
	require.NoError(t, runToken([]string{"status"}, &out))
	require.Contains(t, out.String(), "token source: store")

	out.Reset()
	require.NoError(t, runToken([]string{"clear"}, &out))
	require.NoError(t, runToken([]string{"status"}, &out))
	require.Contains(t, out.String(), "token source: none")

	require.Error(t, runToken([]string{"set"}, &out))
	require.Error(t, runToken([]string{"rotate"}, &out))
}

func TestJournalCommands(t *testing.T) {
	dir := isolate(t)

	j, err := journal.Open(filepath.Join(dir, "journal.db"))
	require.NoError(t, err)
	require.NoError(t, j.Record(context.Background(), navigator.Resolution{
		ID: 4, Generation: 1, Command: navigator.CommandNext, Outcome: navigator.OutcomeLoaded,
		Entity: &fetch.Entity{ID: 4, Name: "charmander"},
	}))
	require.NoError(t, j.Close())

	var out bytes.Buffer
	require.NoError(t, runJournal([]string{"recent"}, &out))
	require.Contains(t, out.String(), "charmander")

	out.Reset()
	require.NoError(t, runJournal([]string{"stats"}, &out))
	require.Contains(t, out.String(), "loaded  1")

	out.Reset()
	require.NoError(t, runJournal([]string{"reset"}, &out))
	require.NoError(t, runJournal([]string{"stats"}, &out))
	require.Contains(t, out.String(), "loaded  0")
}
