package config

import "fmt"

// ResponseStrategy is the closed enum driving the Phase E strategy state
// machine (spec.md 4.7). Encoded explicitly rather than left as open
// polymorphism, per the design notes in spec.md 9.
type ResponseStrategy string

const (
	AlwaysOverride      ResponseStrategy = "always_override"
	OkThenOverride      ResponseStrategy = "ok_then_override"
	FailedThenOverride  ResponseStrategy = "failed_then_override"
	OkThenTargetID      ResponseStrategy = "ok_then_target_id"
	FailedThenTargetID  ResponseStrategy = "failed_then_target_id"
	OkThenFailed        ResponseStrategy = "ok_then_failed"
	FailedThenOk        ResponseStrategy = "failed_then_ok"
	AlwaysTargetID      ResponseStrategy = "always_target_id"
	ConditionalRouting  ResponseStrategy = "conditional_routing"
)

var validStrategies = map[ResponseStrategy]bool{
	AlwaysOverride:     true,
	OkThenOverride:     true,
	FailedThenOverride: true,
	OkThenTargetID:     true,
	FailedThenTargetID: true,
	OkThenFailed:       true,
	FailedThenOk:       true,
	AlwaysTargetID:     true,
	ConditionalRouting: true,
}

func (s ResponseStrategy) Validate() error {
	if !validStrategies[s] {
		return fmt.Errorf("unknown response_strategy %q", s)
	}
	return nil
}

// RequiresTargetSelector reports whether this strategy's pick_two/pick_one_or_error
// paths consult response.target_selector.
func (s ResponseStrategy) RequiresTargetSelector() bool {
	switch s {
	case OkThenTargetID, FailedThenTargetID, AlwaysTargetID:
		return true
	default:
		return false
	}
}

func (s ResponseStrategy) IsConditionalRouting() bool { return s == ConditionalRouting }
