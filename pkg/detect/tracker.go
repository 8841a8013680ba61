package detect

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/louisawamuyu/cogniguard/pkg/signatures"
)

// attributableMin is the confidence floor for a stage signal to count
// toward conversation-level accumulation. Weak leads below it still appear
// in the verdict but do not move the tracker.
const attributableMin = 0.4

// TrackerConfig holds the conversation tracker's tunables.
type TrackerConfig struct {
	WindowSize       int     // FIFO message window capacity
	ElevateThreshold float64 // rolling suspicion that moves nominal -> elevated
	SuspectThreshold float64 // rolling suspicion counted as a breach toward suspect
	HysteresisTurns  int     // consecutive turns required for elevated<->suspect/nominal transitions
	CooldownTurns    int     // consecutive signal-free turns that release suspect
	DriftTurns       int     // consecutive drifting turns before a goal-drift signal
	DriftThreshold   float64 // per-turn drift counted as a drifting turn

	// Rolling suspicion recurrence: suspicion = decay*prev + gain*turnMax.
	SuspicionDecay float64
	SuspicionGain  float64
}

// DefaultTrackerConfig returns the balanced profile values.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		WindowSize:       15,
		ElevateThreshold: 0.35,
		SuspectThreshold: 0.65,
		HysteresisTurns:  2,
		CooldownTurns:    5,
		DriftTurns:       3,
		DriftThreshold:   0.45,
		SuspicionDecay:   0.8,
		SuspicionGain:    0.5,
	}
}

// Tracker maintains per-conversation rolling state and emits signals for
// sustained patterns no single message reveals: goal drift, repeated
// sensitive-topic requests, and cross-agent collusion.
type Tracker struct {
	store ConversationStore
	cfg   TrackerConfig
}

// NewTracker wraps a store. Zero-valued config fields fall back to defaults.
func NewTracker(store ConversationStore, cfg TrackerConfig) *Tracker {
	def := DefaultTrackerConfig()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.ElevateThreshold <= 0 {
		cfg.ElevateThreshold = def.ElevateThreshold
	}
	if cfg.SuspectThreshold <= 0 {
		cfg.SuspectThreshold = def.SuspectThreshold
	}
	if cfg.HysteresisTurns <= 0 {
		cfg.HysteresisTurns = def.HysteresisTurns
	}
	if cfg.CooldownTurns <= 0 {
		cfg.CooldownTurns = def.CooldownTurns
	}
	if cfg.DriftTurns <= 0 {
		cfg.DriftTurns = def.DriftTurns
	}
	if cfg.DriftThreshold <= 0 {
		cfg.DriftThreshold = def.DriftThreshold
	}
	if cfg.SuspicionDecay <= 0 {
		cfg.SuspicionDecay = def.SuspicionDecay
	}
	if cfg.SuspicionGain <= 0 {
		cfg.SuspicionGain = def.SuspicionGain
	}
	return &Tracker{store: store, cfg: cfg}
}

// Observe commits one analyzed message to its conversation and returns the
// conversation-stage signals plus the resulting state. msgVec is the
// message embedding, nil when the semantic stage degraded; drift then falls
// back to lexical overlap against the declared goal.
//
// Nothing is committed when ctx is already cancelled.
func (t *Tracker) Observe(ctx context.Context, msg Message, stageSignals []ThreatSignal, msgVec []float32) ([]ThreatSignal, ConversationState, error) {
	var out []ThreatSignal
	var state ConversationState

	err := t.store.Update(ctx, msg.ConversationID, func(c *Conversation) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		first := c.Turns == 0
		if first {
			c.GoalText = msg.Text
			c.GoalVec = append([]float32(nil), msgVec...)
		}

		rec := TurnRecord{Sender: msg.Sender}
		for _, s := range stageSignals {
			if s.Category != CategoryNone && s.Confidence >= attributableMin {
				rec.Categories = appendCategory(rec.Categories, s.Category)
			}
		}

		if !first {
			rec.Drift = t.drift(c, msg, msgVec)
			if rec.Drift >= t.cfg.DriftThreshold {
				c.DriftStreak++
			} else {
				c.DriftStreak = 0
			}
		}

		rec.Sensitive = hasCategory(rec.Categories, CategoryExfiltration) || hasCategory(rec.Categories, CategoryPowerSeeking)
		if rec.Sensitive {
			c.SensitiveStreak++
		} else {
			c.SensitiveStreak = 0
		}

		c.Window = append(c.Window, msg)
		c.TurnRecords = append(c.TurnRecords, rec)
		if len(c.Window) > t.cfg.WindowSize {
			c.Window = c.Window[len(c.Window)-t.cfg.WindowSize:]
			c.TurnRecords = c.TurnRecords[len(c.TurnRecords)-t.cfg.WindowSize:]
		}
		c.Participants[msg.Sender] = true
		c.Turns++

		out = t.sustainedSignals(c)

		turnMax := 0.0
		for _, s := range stageSignals {
			if s.Category != CategoryNone && s.Confidence > turnMax {
				turnMax = s.Confidence
			}
		}
		for _, s := range out {
			if s.Confidence > turnMax {
				turnMax = s.Confidence
			}
		}

		c.Suspicion = t.cfg.SuspicionDecay*c.Suspicion + t.cfg.SuspicionGain*turnMax
		if c.Suspicion > 1 {
			c.Suspicion = 1
		}
		if turnMax == 0 {
			c.QuietTurns++
		} else {
			c.QuietTurns = 0
		}

		t.advanceState(c)

		c.AgentTrends = deriveTrends(c.TurnRecords)
		c.LastSignals = append(append([]ThreatSignal(nil), stageSignals...), out...)
		state = c.State
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return out, state, nil
}

// Reset discards a conversation's tracked state.
func (t *Tracker) Reset(ctx context.Context, conversationID string) error {
	return t.store.Delete(ctx, conversationID)
}

// Summary returns a read-only snapshot of a conversation.
func (t *Tracker) Summary(ctx context.Context, conversationID string) (*Conversation, bool, error) {
	return t.store.Get(ctx, conversationID)
}

// drift measures how far the message sits from the declared goal, 0 (on
// goal) to 1 (unrelated).
func (t *Tracker) drift(c *Conversation, msg Message, msgVec []float32) float64 {
	if len(msgVec) > 0 && len(c.GoalVec) > 0 {
		d := 1 - CosineSimilarity(c.GoalVec, msgVec)
		if d < 0 {
			d = 0
		}
		if d > 1 {
			d = 1
		}
		return d
	}
	return lexicalDrift(c.GoalText, msg.Text)
}

// sustainedSignals emits the conversation-stage findings current streak
// counters justify.
func (t *Tracker) sustainedSignals(c *Conversation) []ThreatSignal {
	var out []ThreatSignal

	if c.DriftStreak >= t.cfg.DriftTurns {
		conf := 0.45 + 0.1*float64(c.DriftStreak)
		if conf > 0.95 {
			conf = 0.95
		}
		out = append(out, ThreatSignal{
			Stage:      StageConversation,
			Category:   CategoryGoalHijack,
			Confidence: conf,
			Evidence:   fmt.Sprintf("goal drift sustained for %d consecutive turns", c.DriftStreak),
		})
	}

	if c.SensitiveStreak >= 3 {
		conf := 0.4 + 0.1*float64(c.SensitiveStreak)
		if conf > 0.9 {
			conf = 0.9
		}
		out = append(out, ThreatSignal{
			Stage:      StageConversation,
			Category:   CategoryExfiltration,
			Confidence: conf,
			Evidence:   fmt.Sprintf("sensitive-topic requests on %d consecutive turns", c.SensitiveStreak),
		})
	}

	if sig, ok := t.collusionSignal(c); ok {
		out = append(out, sig)
	}
	return out
}

// collusionSignal fires when two or more distinct senders trend toward the
// same suspicious category inside the window.
func (t *Tracker) collusionSignal(c *Conversation) (ThreatSignal, bool) {
	senders := make(map[Category]map[string]bool)
	for _, rec := range c.TurnRecords {
		for _, cat := range rec.Categories {
			switch cat {
			case CategoryExfiltration, CategoryPowerSeeking, CategoryGoalHijack, CategoryCollusion:
				if senders[cat] == nil {
					senders[cat] = make(map[string]bool)
				}
				senders[cat][rec.Sender] = true
			}
		}
	}

	best := Category("")
	bestCount := 0
	for cat, set := range senders {
		if len(set) > bestCount {
			best, bestCount = cat, len(set)
		}
	}
	if bestCount < 2 {
		return ThreatSignal{}, false
	}

	conf := 0.6 + 0.05*float64(bestCount-2)
	if conf > 0.9 {
		conf = 0.9
	}
	return ThreatSignal{
		Stage:      StageConversation,
		Category:   CategoryCollusion,
		Confidence: conf,
		Evidence:   fmt.Sprintf("%d agents trending toward %s within the window", bestCount, best),
	}, true
}

// advanceState runs the nominal/elevated/suspect machine. Suspect is
// sticky: only a cooldown of signal-free turns (or an explicit Reset)
// releases it.
func (t *Tracker) advanceState(c *Conversation) {
	if c.Suspicion >= t.cfg.SuspectThreshold {
		c.BreachStreak++
	} else {
		c.BreachStreak = 0
	}
	if c.Suspicion < t.cfg.ElevateThreshold {
		c.CalmStreak++
	} else {
		c.CalmStreak = 0
	}

	switch c.State {
	case StateNominal:
		if c.Suspicion >= t.cfg.ElevateThreshold {
			c.State = StateElevated
		}
	case StateElevated:
		switch {
		case c.BreachStreak >= t.cfg.HysteresisTurns:
			c.State = StateSuspect
		case c.CalmStreak >= t.cfg.HysteresisTurns:
			c.State = StateNominal
		}
	case StateSuspect:
		if c.QuietTurns >= t.cfg.CooldownTurns {
			c.State = StateNominal
			c.Suspicion = 0
			c.BreachStreak = 0
		}
	}
}

// deriveTrends counts attributed categories per sender over the window.
func deriveTrends(recs []TurnRecord) map[string]map[Category]int {
	trends := make(map[string]map[Category]int)
	for _, rec := range recs {
		for _, cat := range rec.Categories {
			if trends[rec.Sender] == nil {
				trends[rec.Sender] = make(map[Category]int)
			}
			trends[rec.Sender][cat]++
		}
	}
	return trends
}

func appendCategory(cats []Category, cat Category) []Category {
	for _, c := range cats {
		if c == cat {
			return cats
		}
	}
	return append(cats, cat)
}

func hasCategory(cats []Category, cat Category) bool {
	for _, c := range cats {
		if c == cat {
			return true
		}
	}
	return false
}

// lexicalDrift approximates goal drift without embeddings: one minus the
// Jaccard overlap of the normalized token sets.
func lexicalDrift(goal, text string) float64 {
	a := driftTokens(goal)
	b := driftTokens(text)
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return 1 - float64(inter)/float64(union)
}

func driftTokens(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(signatures.Normalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(tok) > 2 { // skip stopword-length noise
			set[tok] = struct{}{}
		}
	}
	return set
}
