package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Operator compares a message timestamp against a bound.
type Operator string

const (
	OpBefore     Operator = "<"
	OpAtOrBefore Operator = "<="
	OpAfter      Operator = ">"
	OpAtOrAfter  Operator = ">="
	OpEqual      Operator = "="
	OpNotEqual   Operator = "!="
)

func (op Operator) valid() bool {
	switch op {
	case OpBefore, OpAtOrBefore, OpAfter, OpAtOrAfter, OpEqual, OpNotEqual:
		return true
	}
	return false
}

// LogQuery narrows a log request. Only a timestamp condition is supported.
type LogQuery struct {
	Timestamp *TimeCondition `json:"timestamp,omitempty"`
}

// TimeCondition is {"operator": "<", "value": "<RFC 3339 time>"}.
type TimeCondition struct {
	Operator Operator
	Value    time.Time
}

func (tc TimeCondition) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Operator Operator `json:"operator"`
		Value    string   `json:"value"`
	}{
		Operator: tc.Operator,
		Value:    tc.Value.UTC().Format(time.RFC3339Nano),
	})
}

// UnmarshalJSON rejects unknown operators and values that are not RFC 3339.
func (tc *TimeCondition) UnmarshalJSON(data []byte) error {
	var raw struct {
		Operator Operator `json:"operator"`
		Value    string   `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !raw.Operator.valid() {
		return fmt.Errorf("%w: timestamp operator %q", ErrInvalidField, raw.Operator)
	}
	value, err := time.Parse(time.RFC3339Nano, raw.Value)
	if err != nil {
		return fmt.Errorf("%w: timestamp value %q is not RFC 3339", ErrInvalidField, raw.Value)
	}
	tc.Operator = raw.Operator
	tc.Value = value.UTC()
	return nil
}
