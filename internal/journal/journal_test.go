package journal

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/dexnav/internal/fetch"
	"github.com/jask/dexnav/internal/navigator"
	"github.com/jask/dexnav/internal/sequencer"
)

func setupJournal(t *testing.T) (*Journal, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	j, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	require.NoError(t, j.Ping(ctx))
	return j, ctx
}

func loaded(id int, name string, gen uint64) navigator.Resolution {
	return navigator.Resolution{
		ID:         id,
		Generation: gen,
		Command:    navigator.CommandNext,
		Outcome:    navigator.OutcomeLoaded,
		Entity:     &fetch.Entity{ID: id, Name: name},
		Duration:   40 * time.Millisecond,
	}
}

func TestRecordAndRecent(t *testing.T) {
	t.Parallel()
	j, ctx := setupJournal(t)

	require.NoError(t, j.Record(ctx, loaded(1, "bulbasaur", 1)))
	require.NoError(t, j.Record(ctx, navigator.Resolution{
		ID:         9990,
		Generation: 2,
		Command:    navigator.CommandInvalid,
		Outcome:    navigator.OutcomeFailed,
		Err:        &fetch.Error{Kind: fetch.KindHTTPStatus, ID: 9990, StatusCode: http.StatusNotFound},
	}))

	entries, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	failed := entries[0]
	require.Equal(t, 9990, failed.EntityID)
	require.Equal(t, navigator.OutcomeFailed, failed.Outcome)
	require.Equal(t, "http_status", failed.ErrorKind)
	require.Equal(t, "server returned 404 Not Found for #9990", failed.Error)
	require.Equal(t, "invalid", failed.Command)
	require.Equal(t, uint64(2), failed.Generation)

	ok := entries[1]
	require.Equal(t, "bulbasaur", ok.Name)
	require.Equal(t, 40*time.Millisecond, ok.Duration)
	require.Equal(t, j.SessionID(), ok.SessionID)
	require.NotEqual(t, ok.ID, failed.ID)
	require.False(t, ok.ResolvedAt.IsZero())
}

func TestClosestAndLookup(t *testing.T) {
	t.Parallel()
	j, ctx := setupJournal(t)

	for i, name := range []string{"bulbasaur", "ivysaur", "venusaur", "pikachu", "raichu"} {
		require.NoError(t, j.Record(ctx, loaded(i+1, name, uint64(i+1))))
	}
	// A stale pikachu result must not produce a second candidate.
	stale := loaded(4, "pikachu", 9)
	stale.Outcome = navigator.OutcomeStale
	require.NoError(t, j.Record(ctx, stale))

	matches, err := j.Closest(ctx, "Pikachoo", 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	require.Equal(t, "pikachu", matches[0].Name)
	require.Equal(t, 2, matches[0].Distance)
	require.Equal(t, "raichu", matches[1].Name)

	m, err := j.Lookup(ctx, "venusuar")
	require.NoError(t, err)
	require.Equal(t, 3, m.EntityID)

	_, err = j.Lookup(ctx, "mewtwo")
	require.True(t, errors.Is(err, ErrNoMatch))

	none, err := j.Closest(ctx, "   ", 3)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestStatsAndReset(t *testing.T) {
	t.Parallel()
	j, ctx := setupJournal(t)

	require.NoError(t, j.Record(ctx, loaded(1, "bulbasaur", 1)))
	stale := loaded(2, "ivysaur", 2)
	stale.Outcome = navigator.OutcomeStale
	require.NoError(t, j.Record(ctx, stale))
	require.NoError(t, j.Record(ctx, loaded(3, "venusaur", 3)))

	stats, err := j.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats[navigator.OutcomeLoaded])
	require.Equal(t, 1, stats[navigator.OutcomeStale])
	require.Equal(t, 0, stats[navigator.OutcomeFailed])

	require.NoError(t, j.Reset(ctx))
	entries, err := j.Recent(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "journal.db")
	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Record(context.Background(), loaded(7, "squirtle", 1)))
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })
	require.NotEqual(t, first.SessionID(), second.SessionID())

	entries, err := second.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, first.SessionID(), entries[0].SessionID)
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(" ")
	require.Error(t, err)
}

func TestJournalAsControllerRecorder(t *testing.T) {
	t.Parallel()
	j, ctx := setupJournal(t)

	f := fetch.FetcherFunc(func(ctx context.Context, id int) (fetch.Entity, error) {
		return fetch.Entity{ID: id, Name: "charmander"}, nil
	})
	c, err := navigator.New(f, sequencer.DefaultRange, navigator.WithRecorder(j))
	require.NoError(t, err)
	t.Cleanup(c.Close)

	require.NoError(t, c.Initialize())
	c.Wait()

	m, err := j.Lookup(ctx, "charmandr")
	require.NoError(t, err)
	require.Equal(t, 1, m.EntityID)
}
