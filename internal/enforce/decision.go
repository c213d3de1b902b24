// Package enforce contains the moderation decision engine: progressive
// violation trackers, the captcha lifecycle, the periodic sweep, and the
// startup reconciler. Components here decide; they never talk to Telegram.
package enforce

import "tg-groupguard/internal/storage"

// Action is the enforcement response to a recorded event.
type Action int

const (
	// ActionNoOp means the state was already handled by another path.
	ActionNoOp Action = iota
	// ActionWarn is produced exactly once, on the first violation.
	ActionWarn
	// ActionSilent means the count advanced without user-visible output.
	ActionSilent
	// ActionRestrict is produced exactly once, when the count reaches the
	// configured threshold.
	ActionRestrict
)

func (a Action) String() string {
	switch a {
	case ActionWarn:
		return "warn"
	case ActionSilent:
		return "silent"
	case ActionRestrict:
		return "restrict"
	default:
		return "noop"
	}
}

// Decision is the outcome of a tracker operation. The caller executes it;
// the engine only records state.
type Decision struct {
	Action Action
	Count  int
}

// Escalation is a restriction produced by the time-based sweep path.
type Escalation struct {
	Key   storage.Key
	Count int
}
