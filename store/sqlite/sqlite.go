// Package sqlite implements store.Store on SQLite via the pure-Go
// modernc.org/sqlite driver. Embeddings are stored as JSON arrays next to
// each message and ranked in process.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tailored-agentic-units/switchboard/messaging"
	"github.com/tailored-agentic-units/switchboard/store"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

const columns = `id, kind, target, from_user, body, thread_id, parent_id, await_replies, ts`

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open creates the parent directory if needed, opens the database at path
// with WAL mode, and runs migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("sqlite: create data dir: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migration: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			id            TEXT    PRIMARY KEY,
			scope         TEXT    NOT NULL,
			kind          TEXT    NOT NULL,
			target        TEXT    NOT NULL,
			from_user     TEXT    NOT NULL,
			body          TEXT    NOT NULL,
			thread_id     TEXT    NOT NULL DEFAULT '',
			parent_id     TEXT    NOT NULL DEFAULT '',
			await_replies TEXT    NOT NULL DEFAULT '[]',
			ts            INTEGER NOT NULL,
			embedding     TEXT    NOT NULL DEFAULT '[]'
		);

		CREATE INDEX IF NOT EXISTS idx_messages_scope_ts ON messages(scope, ts DESC);
		CREATE INDEX IF NOT EXISTS idx_messages_from     ON messages(kind, from_user);
		CREATE INDEX IF NOT EXISTS idx_messages_target   ON messages(kind, target);

		CREATE TABLE IF NOT EXISTS users (
			name TEXT PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS channels (
			name TEXT PRIMARY KEY
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Append(ctx context.Context, msg *messaging.Message, vec []float64) error {
	awaited, err := json.Marshal(nonNil(msg.AwaitReplies))
	if err != nil {
		return fmt.Errorf("sqlite: encode await_replies: %w", err)
	}
	embedding, err := json.Marshal(nonNilVec(vec))
	if err != nil {
		return fmt.Errorf("sqlite: encode embedding: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, scope, kind, target, from_user, body, thread_id, parent_id, await_replies, ts, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		msg.ID,
		store.ScopeOf(msg).Key(),
		string(msg.Target.Kind),
		msg.Target.Name,
		msg.From,
		msg.Body,
		msg.ThreadID,
		msg.ParentID,
		string(awaited),
		msg.Timestamp.UnixNano(),
		string(embedding),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: insert message: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", store.ErrDuplicateMessage, msg.ID)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*messaging.Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM messages WHERE id = ?`, id)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: message %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get message: %w", err)
	}
	return msg, nil
}

var comparisons = map[store.Operator]string{
	store.Before:     "<",
	store.AtOrBefore: "<=",
	store.After:      ">",
	store.AtOrAfter:  ">=",
	store.Equal:      "=",
	store.NotEqual:   "!=",
}

// Query reads newest first so LIMIT bounds the scan, then hands the
// chronological result to Filter.Arrange.
func (s *Store) Query(ctx context.Context, filter store.Filter) ([]*messaging.Message, error) {
	query := `SELECT ` + columns + ` FROM messages WHERE scope = ?`
	args := []any{filter.Scope.Key()}

	if tf := filter.Time; tf != nil {
		cmp, ok := comparisons[tf.Op]
		if !ok {
			return nil, fmt.Errorf("sqlite: unsupported operator %q", tf.Op)
		}
		query += ` AND ts ` + cmp + ` ?`
		args = append(args, tf.Value.UnixNano())
	}

	query += ` ORDER BY ts DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	msgs, err := s.queryMessages(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return filter.Arrange(msgs), nil
}

func (s *Store) Contacts(ctx context.Context, identity string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT
			CASE WHEN from_user = ? THEN target ELSE from_user END AS contact
		FROM messages
		WHERE kind = ? AND (from_user = ? OR target = ?)
		ORDER BY contact`,
		identity, string(messaging.TargetDirect), identity, identity,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: contacts: %w", err)
	}
	defer rows.Close()

	return scanNames(rows)
}

func (s *Store) Nearest(ctx context.Context, vec []float64, search store.Search) ([]store.Match, error) {
	query := `SELECT ` + columns + `, embedding FROM messages WHERE kind = ?`
	var args []any

	switch {
	case search.Participant != "":
		query += ` AND (from_user = ? OR target = ?)`
		args = append(args, string(messaging.TargetDirect), search.Participant, search.Participant)
	case len(search.Channels) > 0:
		query += ` AND target IN (?` + strings.Repeat(`, ?`, len(search.Channels)-1) + `)`
		args = append(args, string(messaging.TargetChannel))
		for _, c := range search.Channels {
			args = append(args, c)
		}
	default:
		args = append(args, string(messaging.TargetChannel))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: nearest: %w", err)
	}
	defer rows.Close()

	var candidates []store.Candidate
	for rows.Next() {
		var raw string
		msg, err := scanMessage(rows, &raw)
		if err != nil {
			return nil, fmt.Errorf("sqlite: nearest: %w", err)
		}
		var v []float64
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("sqlite: decode embedding of %s: %w", msg.ID, err)
		}
		candidates = append(candidates, store.Candidate{Message: msg, Vector: v})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: nearest: %w", err)
	}

	return store.Rank(vec, candidates, search), nil
}

func (s *Store) AddUser(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO users (name) VALUES (?)`, name); err != nil {
		return fmt.Errorf("sqlite: add user: %w", err)
	}
	return nil
}

func (s *Store) Users(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM users ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: users: %w", err)
	}
	defer rows.Close()
	return scanNames(rows)
}

func (s *Store) AddChannel(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO channels (name) VALUES (?)`, name); err != nil {
		return fmt.Errorf("sqlite: add channel: %w", err)
	}
	return nil
}

func (s *Store) Channels(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM channels ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: channels: %w", err)
	}
	defer rows.Close()
	return scanNames(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner, extra ...any) (*messaging.Message, error) {
	var (
		msg     messaging.Message
		kind    string
		awaited string
		ts      int64
	)
	dest := append([]any{
		&msg.ID, &kind, &msg.Target.Name, &msg.From, &msg.Body,
		&msg.ThreadID, &msg.ParentID, &awaited, &ts,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	msg.Target.Kind = messaging.TargetKind(kind)
	msg.Timestamp = time.Unix(0, ts).UTC()
	if err := json.Unmarshal([]byte(awaited), &msg.AwaitReplies); err != nil {
		return nil, fmt.Errorf("decode await_replies of %s: %w", msg.ID, err)
	}
	if len(msg.AwaitReplies) == 0 {
		msg.AwaitReplies = nil
	}
	return &msg, nil
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]*messaging.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query messages: %w", err)
	}
	defer rows.Close()

	var out []*messaging.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: query messages: %w", err)
	}
	return out, nil
}

func scanNames(rows *sql.Rows) ([]string, error) {
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilVec(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}
