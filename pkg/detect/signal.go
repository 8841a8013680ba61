// Package detect implements the analysis pipeline over inter-agent
// messages: lexical scanning, semantic similarity against attack
// archetypes, per-conversation behavioral tracking, and risk aggregation
// into an allow/flag/block verdict.
package detect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/louisawamuyu/cogniguard/pkg/signatures"
)

// Category aliases the signature registry's threat taxonomy so every stage
// attributes findings to the same five categories.
type Category = signatures.Category

const (
	CategoryGoalHijack   = signatures.CategoryGoalHijack
	CategoryExfiltration = signatures.CategoryExfiltration
	CategoryPowerSeeking = signatures.CategoryPowerSeeking
	CategoryCollusion    = signatures.CategoryCollusion
	CategorySocialEng    = signatures.CategorySocialEng
	CategoryNone         = signatures.CategoryNone
)

// Stage identifies which pipeline stage produced a signal.
type Stage string

const (
	StageLexical      Stage = "lexical"
	StageSemantic     Stage = "semantic"
	StageConversation Stage = "conversation"
)

// ThreatSignal is the universal finding format every stage emits.
// Immutable once produced.
type ThreatSignal struct {
	Stage      Stage    `json:"stage"`
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"` // 0.0-1.0
	Evidence   string   `json:"evidence,omitempty"`
	Degraded   bool     `json:"degraded,omitempty"` // stage ran without its backing resource
}

// Unscored builds the placeholder signal a stage emits when its backing
// resource is unavailable. It carries no risk weight but records the
// degradation for the verdict explanation.
func Unscored(stage Stage, reason string) ThreatSignal {
	return ThreatSignal{
		Stage:    stage,
		Category: CategoryNone,
		Evidence: reason,
		Degraded: true,
	}
}

// ConversationState is the tracker's assessment of a conversation.
type ConversationState string

const (
	StateNominal  ConversationState = "nominal"
	StateElevated ConversationState = "elevated"
	StateSuspect  ConversationState = "suspect"
)

// Decision is the terminal disposition for a message.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionFlag  Decision = "flag"
	DecisionBlock Decision = "block"
)

// RiskScore is the aggregate risk for one message.
type RiskScore struct {
	Value     float64              `json:"value"` // 0.0-1.0
	Signals   []ThreatSignal       `json:"signals,omitempty"`
	Breakdown map[Category]float64 `json:"breakdown,omitempty"` // strongest weighted contribution per category
}

// Verdict is the pipeline's terminal artifact for one message.
type Verdict struct {
	MessageID      string            `json:"message_id"`
	ConversationID string            `json:"conversation_id"`
	Decision       Decision          `json:"decision"`
	Risk           RiskScore         `json:"risk"`
	State          ConversationState `json:"conversation_state"`
	Explanation    string            `json:"explanation"`
	DegradedStages []Stage           `json:"degraded_stages,omitempty"`
	EarlyExit      bool              `json:"early_exit,omitempty"`
	LatencyMs      int64             `json:"latency_ms"`
}

// explain renders a human-readable justification: triggering signals in
// confidence order, then any degraded stages.
func explain(signals []ThreatSignal, degraded []Stage) string {
	scored := make([]ThreatSignal, 0, len(signals))
	for _, s := range signals {
		if s.Category != CategoryNone && s.Confidence > 0 {
			scored = append(scored, s)
		}
	}
	if len(scored) == 0 && len(degraded) == 0 {
		return "no threat signals"
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Confidence > scored[j].Confidence
	})

	var parts []string
	for _, s := range scored {
		part := fmt.Sprintf("%s/%s %.2f", s.Stage, s.Category, s.Confidence)
		if s.Evidence != "" {
			part += " (" + s.Evidence + ")"
		}
		parts = append(parts, part)
	}
	for _, st := range degraded {
		parts = append(parts, fmt.Sprintf("%s stage degraded", st))
	}
	return strings.Join(parts, "; ")
}

// degradedStages lists the distinct stages that reported degradation.
func degradedStages(signals []ThreatSignal) []Stage {
	seen := make(map[Stage]bool)
	var out []Stage
	for _, s := range signals {
		if s.Degraded && !seen[s.Stage] {
			seen[s.Stage] = true
			out = append(out, s.Stage)
		}
	}
	return out
}
