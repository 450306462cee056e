package shared

import (
	"time"
)

// TokenUsage tracks the tokens consumed by a request.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Model            string
}

// Outcome values recorded for a generative call.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomeTimeout  = "timeout"
)

// AgentMeta holds operational metadata for one generative call made while
// building or editing a plan.
type AgentMeta struct {
	AgentName string
	Tier      string
	Outcome   string
	Usage     TokenUsage
	Latency   time.Duration
}
