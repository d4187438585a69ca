package store

import (
	"cmp"
	"slices"

	"github.com/tailored-agentic-units/switchboard/embedding"
	"github.com/tailored-agentic-units/switchboard/messaging"
)

// Search restricts a nearest-neighbor lookup. With Participant set only
// direct messages sent or received by that identity are candidates;
// otherwise only channel messages are, limited to Channels when given.
// Excluded ids are removed before Limit is applied.
type Search struct {
	Channels    []string
	Participant string
	Exclude     []string
	Limit       int
}

func (s Search) Admits(msg *messaging.Message) bool {
	if slices.Contains(s.Exclude, msg.ID) {
		return false
	}
	if s.Participant != "" {
		return msg.Target.IsDirect() && (msg.From == s.Participant || msg.Target.Name == s.Participant)
	}
	if !msg.Target.IsChannel() {
		return false
	}
	return len(s.Channels) == 0 || slices.Contains(s.Channels, msg.Target.Name)
}

// Candidate is a stored message and its embedding.
type Candidate struct {
	Message *messaging.Message
	Vector  []float64
}

// Rank scores admitted candidates against vec by cosine similarity and
// returns the best Limit, highest first. Limit <= 0 returns all.
func Rank(vec []float64, candidates []Candidate, search Search) []Match {
	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if !search.Admits(c.Message) {
			continue
		}
		matches = append(matches, Match{Message: c.Message, Score: embedding.Cosine(vec, c.Vector)})
	}

	slices.SortStableFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return a.Message.Timestamp.Compare(b.Message.Timestamp)
	})

	if search.Limit > 0 && len(matches) > search.Limit {
		matches = matches[:search.Limit]
	}
	return matches
}
