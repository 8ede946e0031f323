package models

// Severity ranks a business-rule violation.
type Severity string

const (
	SeverityBlock Severity = "block"
	SeverityWarn  Severity = "warn"
	SeverityInfo  Severity = "info"
)

// GuardViolation is one business-rule finding against a resolved intent.
type GuardViolation struct {
	RuleID       string      `json:"ruleId"`
	RuleName     string      `json:"ruleName"`
	Severity     Severity    `json:"severity"`
	IntentID     IntentID    `json:"intentId"`
	Field        string      `json:"field,omitempty"`
	Message      string      `json:"message"`
	CurrentValue interface{} `json:"currentValue,omitempty"`
	SystemValue  interface{} `json:"systemValue,omitempty"`
	SuggestedFix string      `json:"suggestedFix,omitempty"`
}

// GuardReport aggregates a rule-engine evaluation over all resolved intents.
// Passed is true iff no block-severity violation exists.
type GuardReport struct {
	Passed          bool             `json:"passed"`
	Violations      []GuardViolation `json:"violations"`
	Checks          []string         `json:"checks"`
	ChecksPerformed int              `json:"checksPerformed"`
	RulesPassed     int              `json:"rulesPassed"`
}

// BlockingViolations filters the block-severity findings.
func (g *GuardReport) BlockingViolations() []GuardViolation {
	var out []GuardViolation
	for _, v := range g.Violations {
		if v.Severity == SeverityBlock {
			out = append(out, v)
		}
	}
	return out
}

// AdvisoryViolations filters the warn/info findings.
func (g *GuardReport) AdvisoryViolations() []GuardViolation {
	var out []GuardViolation
	for _, v := range g.Violations {
		if v.Severity != SeverityBlock {
			out = append(out, v)
		}
	}
	return out
}
