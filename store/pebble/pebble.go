// Package pebble implements store.Store on a Pebble key-value database.
//
// Key layout:
//
//	msg:<id>                          message record with its embedding
//	ts:<hex scope>:<unix nano>:<id>   time index per scope, value empty
//	contact:<identity>\x1f<peer>      direct-message pairings, both directions
//	user:<name>, channel:<name>       names ever seen
//
// Timestamps are zero-padded so lexical key order is chronological order.
package pebble

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/tailored-agentic-units/switchboard/messaging"
	"github.com/tailored-agentic-units/switchboard/store"
)

const (
	msgPrefix     = "msg:"
	tsPrefix      = "ts:"
	contactPrefix = "contact:"
	userPrefix    = "user:"
	channelPrefix = "channel:"
)

type record struct {
	Message *messaging.Message `json:"message"`
	Vector  []float64          `json:"vector,omitempty"`
}

type Store struct {
	db *pebble.DB
	// serializes the existence check and write in Append
	mu sync.Mutex
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) a Pebble database in dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble: open %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func scopeTimePrefix(scope store.Scope) string {
	return tsPrefix + hex.EncodeToString([]byte(scope.Key())) + ":"
}

func timeKey(msg *messaging.Message) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", scopeTimePrefix(store.ScopeOf(msg)), msg.Timestamp.UnixNano(), msg.ID))
}

func (s *Store) Append(ctx context.Context, msg *messaging.Message, vec []float64) error {
	data, err := json.Marshal(record{Message: msg, Vector: vec})
	if err != nil {
		return fmt.Errorf("pebble: encode message: %w", err)
	}
	key := []byte(msgPrefix + msg.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, closer, err := s.db.Get(key); err == nil {
		closer.Close()
		return fmt.Errorf("%w: %s", store.ErrDuplicateMessage, msg.ID)
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("pebble: check message: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(key, data, nil); err != nil {
		return err
	}
	if err := batch.Set(timeKey(msg), nil, nil); err != nil {
		return err
	}
	if msg.Target.IsDirect() {
		from, to := msg.From, msg.Target.Name
		if err := batch.Set([]byte(contactPrefix+from+"\x1f"+to), nil, nil); err != nil {
			return err
		}
		if err := batch.Set([]byte(contactPrefix+to+"\x1f"+from), nil, nil); err != nil {
			return err
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("pebble: commit message: %w", err)
	}
	return nil
}

func (s *Store) load(id string) (*record, error) {
	v, closer, err := s.db.Get([]byte(msgPrefix + id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%w: message %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("pebble: get message: %w", err)
	}
	defer closer.Close()

	var rec record
	if err := json.Unmarshal(v, &rec); err != nil {
		return nil, fmt.Errorf("pebble: decode message %s: %w", id, err)
	}
	rec.Message.Timestamp = rec.Message.Timestamp.UTC()
	return &rec, nil
}

func (s *Store) Get(ctx context.Context, id string) (*messaging.Message, error) {
	rec, err := s.load(id)
	if err != nil {
		return nil, err
	}
	return rec.Message, nil
}

// Query walks the scope's time index newest first, stopping after Limit
// matches, then returns them through Filter.Arrange.
func (s *Store) Query(ctx context.Context, filter store.Filter) ([]*messaging.Message, error) {
	prefix := []byte(scopeTimePrefix(filter.Scope))
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("pebble: query: %w", err)
	}
	defer iter.Close()

	var newest []*messaging.Message
	for iter.Last(); iter.Valid(); iter.Prev() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ts, id, err := parseTimeKey(iter.Key()[len(prefix):])
		if err != nil {
			return nil, err
		}
		if filter.Time != nil && !filter.Time.Matches(ts) {
			continue
		}
		rec, err := s.load(id)
		if err != nil {
			return nil, err
		}
		newest = append(newest, rec.Message)
		if filter.Limit > 0 && len(newest) == filter.Limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("pebble: query: %w", err)
	}

	for i, j := 0, len(newest)-1; i < j; i, j = i+1, j-1 {
		newest[i], newest[j] = newest[j], newest[i]
	}
	return filter.Arrange(newest), nil
}

func parseTimeKey(suffix []byte) (time.Time, string, error) {
	tsPart, id, ok := strings.Cut(string(suffix), ":")
	if !ok {
		return time.Time{}, "", fmt.Errorf("pebble: malformed index key %q", suffix)
	}
	nanos, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("pebble: malformed index key %q: %w", suffix, err)
	}
	return time.Unix(0, nanos).UTC(), id, nil
}

func (s *Store) Contacts(ctx context.Context, identity string) ([]string, error) {
	prefix := contactPrefix + identity + "\x1f"
	return s.suffixes(prefix)
}

// Nearest scans every stored message; the vector index is a full scan
// ranked by store.Rank.
func (s *Store) Nearest(ctx context.Context, vec []float64, search store.Search) ([]store.Match, error) {
	prefix := []byte(msgPrefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("pebble: nearest: %w", err)
	}
	defer iter.Close()

	var candidates []store.Candidate
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var rec record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("pebble: decode %s: %w", iter.Key(), err)
		}
		rec.Message.Timestamp = rec.Message.Timestamp.UTC()
		if !search.Admits(rec.Message) {
			continue
		}
		candidates = append(candidates, store.Candidate{Message: rec.Message, Vector: rec.Vector})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("pebble: nearest: %w", err)
	}

	return store.Rank(vec, candidates, search), nil
}

func (s *Store) AddUser(ctx context.Context, name string) error {
	return s.db.Set([]byte(userPrefix+name), nil, pebble.Sync)
}

func (s *Store) Users(ctx context.Context) ([]string, error) {
	return s.suffixes(userPrefix)
}

func (s *Store) AddChannel(ctx context.Context, name string) error {
	return s.db.Set([]byte(channelPrefix+name), nil, pebble.Sync)
}

func (s *Store) Channels(ctx context.Context) ([]string, error) {
	return s.suffixes(channelPrefix)
}

// suffixes lists the key remainders under prefix, in key order.
func (s *Store) suffixes(prefix string) ([]string, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: upperBound([]byte(prefix)),
	})
	if err != nil {
		return nil, fmt.Errorf("pebble: list %s: %w", prefix, err)
	}
	defer iter.Close()

	var out []string
	for iter.First(); iter.Valid(); iter.Next() {
		out = append(out, string(iter.Key()[len(prefix):]))
	}
	return out, iter.Error()
}

// upperBound returns the smallest key greater than every key with prefix.
func upperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
