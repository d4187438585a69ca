package store

import (
	"fmt"
	"slices"
	"time"

	"github.com/tailored-agentic-units/switchboard/messaging"
)

type Operator string

const (
	Before     Operator = "<"
	AtOrBefore Operator = "<="
	After      Operator = ">"
	AtOrAfter  Operator = ">="
	Equal      Operator = "="
	NotEqual   Operator = "!="
)

// ParseOperator accepts the six comparison operators.
func ParseOperator(s string) (Operator, error) {
	switch op := Operator(s); op {
	case Before, AtOrBefore, After, AtOrAfter, Equal, NotEqual:
		return op, nil
	}
	return "", fmt.Errorf("store: unsupported operator %q", s)
}

type Order string

const (
	Ascending  Order = "ASC"
	Descending Order = "DESC"
)

// TimeFilter compares a message timestamp against Value.
type TimeFilter struct {
	Op    Operator
	Value time.Time
}

func (tf TimeFilter) Matches(ts time.Time) bool {
	c := ts.Compare(tf.Value)
	switch tf.Op {
	case Before:
		return c < 0
	case AtOrBefore:
		return c <= 0
	case After:
		return c > 0
	case AtOrAfter:
		return c >= 0
	case Equal:
		return c == 0
	case NotEqual:
		return c != 0
	}
	return false
}

// Filter selects messages from one scope. When Limit is positive the most
// recent Limit matches are kept and then returned in Order; an ascending
// result is therefore the tail of the log, oldest first.
type Filter struct {
	Scope Scope
	Time  *TimeFilter
	Order Order
	Limit int
}

// Window is the chronological tail of a scope.
func Window(scope Scope, limit int) Filter {
	return Filter{Scope: scope, Order: Ascending, Limit: limit}
}

func (f Filter) Matches(msg *messaging.Message) bool {
	if !f.Scope.Contains(msg) {
		return false
	}
	return f.Time == nil || f.Time.Matches(msg.Timestamp)
}

// Arrange applies Limit and Order to matches sorted oldest first. The
// slice is reordered in place.
func (f Filter) Arrange(ascending []*messaging.Message) []*messaging.Message {
	out := ascending
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	if f.Order == Descending {
		slices.Reverse(out)
	}
	return out
}

// SortChronological orders messages by timestamp, then id for ties.
func SortChronological(msgs []*messaging.Message) {
	slices.SortStableFunc(msgs, func(a, b *messaging.Message) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
