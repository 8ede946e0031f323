package models

// SignalResult classifies one corroboration signal's comparison.
type SignalResult string

const (
	SignalMatch       SignalResult = "match"
	SignalPartial     SignalResult = "partial"
	SignalMismatch    SignalResult = "mismatch"
	SignalUnavailable SignalResult = "unavailable"
)

// CorroborationSignal is one attribute cross-check between the user's claim
// and the backend record.
type CorroborationSignal struct {
	ID          string       `json:"id"`
	Label       string       `json:"label"`
	UserClaim   string       `json:"userClaim,omitempty"`
	SystemValue string       `json:"systemValue,omitempty"`
	Result      SignalResult `json:"result"`
	Weight      float64      `json:"weight"`
	Explanation string       `json:"explanation,omitempty"`
}

// CorroborationResult is advisory only; it is never persisted as
// authoritative truth.
type CorroborationResult struct {
	InitialConfidence float64               `json:"initialConfidence"`
	FinalConfidence   float64               `json:"finalConfidence"`
	Signals           []CorroborationSignal `json:"signals"`
}
