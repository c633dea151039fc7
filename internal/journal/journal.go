// Package journal keeps a sqlite history of resolved fetches. It is a
// diagnostic record: entities are never served from it, it only maps names
// back to ids and answers "what happened" questions.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"

	"github.com/jask/dexnav/internal/fetch"
	"github.com/jask/dexnav/internal/navigator"
)

// ErrNoMatch is returned by Lookup when no recorded name is close enough.
var ErrNoMatch = errors.New("journal: no matching name")

// minSimilarity is the lowest normalised similarity Lookup accepts.
const minSimilarity = 0.5

// Entry is one recorded resolution.
type Entry struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"session_id"`
	EntityID   int               `json:"entity_id"`
	Generation uint64            `json:"generation"`
	Command    string            `json:"command"`
	Outcome    navigator.Outcome `json:"outcome"`
	Name       string            `json:"name,omitempty"`
	ErrorKind  string            `json:"error_kind,omitempty"`
	Error      string            `json:"error,omitempty"`
	Duration   time.Duration     `json:"duration"`
	ResolvedAt time.Time         `json:"resolved_at"`
}

// Match is a previously loaded entity whose name resembles a query.
type Match struct {
	EntityID   int     `json:"entity_id"`
	Name       string  `json:"name"`
	Distance   int     `json:"distance"`
	Similarity float64 `json:"similarity"`
}

// Journal implements navigator.Recorder.
type Journal struct {
	db        *sql.DB
	sessionID string
}

var _ navigator.Recorder = (*Journal)(nil)

// Open migrates and opens the journal at path, creating parent directories.
// Every Journal value records under a fresh session id.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal: path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: mkdir: %w", err)
	}
	if err := runMigrations(path); err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	db, err := openDB(path)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return &Journal{db: db, sessionID: uuid.NewString()}, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// SessionID identifies the entries written through this Journal.
func (j *Journal) SessionID() string { return j.sessionID }

// Ping checks the database connection.
func (j *Journal) Ping(ctx context.Context) error { return j.db.PingContext(ctx) }

// Record stores a resolution.
func (j *Journal) Record(ctx context.Context, r navigator.Resolution) error {
	e := Entry{
		ID:         uuid.NewString(),
		SessionID:  j.sessionID,
		EntityID:   r.ID,
		Generation: r.Generation,
		Command:    string(r.Command),
		Outcome:    r.Outcome,
		Duration:   r.Duration,
		ResolvedAt: now(),
	}
	if r.Entity != nil {
		e.Name = r.Entity.Name
	}
	if r.Err != nil {
		e.ErrorKind = fetch.KindOf(r.Err).String()
		e.Error = r.Err.Error()
	}
	return j.insert(ctx, e)
}

func (j *Journal) insert(ctx context.Context, e Entry) error {
	_, err := j.db.ExecContext(ctx, `
	INSERT INTO fetches(
	 id, session_id, entity_id, generation, command, outcome, name,
	 error_kind, error, duration_ms, resolved_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`,
		e.ID, e.SessionID, e.EntityID, int64(e.Generation), e.Command, string(e.Outcome), e.Name,
		e.ErrorKind, e.Error, e.Duration.Milliseconds(), e.ResolvedAt)
	if err != nil {
		return fmt.Errorf("journal: insert: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
	SELECT id, session_id, entity_id, generation, command, outcome, name,
	       error_kind, error, duration_ms, resolved_at
	FROM fetches
	ORDER BY resolved_at DESC, rowid DESC
	LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			gen        int64
			outcome    string
			durationMS int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.EntityID, &gen, &e.Command, &outcome, &e.Name,
			&e.ErrorKind, &e.Error, &durationMS, &e.ResolvedAt); err != nil {
			return nil, err
		}
		e.Generation = uint64(gen)
		e.Outcome = navigator.Outcome(outcome)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

// Closest ranks distinct loaded names by edit distance to query.
func (j *Journal) Closest(ctx context.Context, query string, limit int) ([]Match, error) {
	q := normalise(query)
	if q == "" {
		return nil, nil
	}
	rows, err := j.db.QueryContext(ctx, `
	SELECT DISTINCT entity_id, name
	FROM fetches
	WHERE outcome = 'loaded' AND name != ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.EntityID, &m.Name); err != nil {
			return nil, err
		}
		name := normalise(m.Name)
		m.Distance = levenshtein.ComputeDistance(q, name)
		m.Similarity = similarity(q, name, m.Distance)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(a, b int) bool {
		if matches[a].Distance != matches[b].Distance {
			return matches[a].Distance < matches[b].Distance
		}
		return matches[a].EntityID < matches[b].EntityID
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Lookup returns the closest loaded name, or ErrNoMatch when even the best
// candidate is too different from query.
func (j *Journal) Lookup(ctx context.Context, query string) (Match, error) {
	matches, err := j.Closest(ctx, query, 1)
	if err != nil {
		return Match{}, err
	}
	if len(matches) == 0 || matches[0].Similarity < minSimilarity {
		return Match{}, ErrNoMatch
	}
	return matches[0], nil
}

// Stats counts entries per outcome.
func (j *Journal) Stats(ctx context.Context) (map[navigator.Outcome]int, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM fetches GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[navigator.Outcome]int{}
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		out[navigator.Outcome(outcome)] = n
	}
	return out, rows.Err()
}

// Reset wipes all entries. The schema stays in place.
func (j *Journal) Reset(ctx context.Context) error {
	if err := withTx(j.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM fetches"); err != nil {
			return fmt.Errorf("reset fetches: %w", err)
		}
		return nil
	}); err != nil {
		return err
	}
	_, _ = j.db.ExecContext(ctx, "VACUUM")
	return nil
}

func normalise(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// similarity maps an edit distance into [0,1] relative to the longer string.
func similarity(a, b string, dist int) float64 {
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(dist)/float64(longest)
}
