package chat

// SendState is the lifecycle of one orchestration slot.
type SendState string

const (
	StateIdle      SendState = "idle"
	StateSending   SendState = "sending"
	StateSucceeded SendState = "succeeded"
	StateFailed    SendState = "failed"
	// StateIgnored is reported for sends that never left Idle.
	StateIgnored SendState = "ignored"
)

const (
	ReasonEmptyInput = "empty_input"
	ReasonInFlight   = "in_flight"
)

// Result describes the outcome of a send.
type Result struct {
	State     SendState `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	User      *Message  `json:"user,omitempty"`
	Reply     *Message  `json:"reply,omitempty"`
	// Err is the generation failure behind a StateFailed result.
	Err error `json:"-"`
}
