package detect

import (
	"math"
	"testing"
)

func TestAggregatorVerdictThresholds(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{
		Weights:          map[Category]float64{CategoryExfiltration: 1.0},
		StateMultipliers: map[ConversationState]float64{StateNominal: 1.0},
		FlagThreshold:    0.35,
		BlockThreshold:   0.70,
	})

	tests := []struct {
		name string
		conf float64
		want Decision
	}{
		{"zero risk allows", 0.0, DecisionAllow},
		{"below flag allows", 0.34, DecisionAllow},
		{"exactly flag threshold flags", 0.35, DecisionFlag},
		{"between thresholds flags", 0.50, DecisionFlag},
		{"exactly block threshold blocks", 0.70, DecisionBlock},
		{"above block blocks", 0.95, DecisionBlock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sigs []ThreatSignal
			if tt.conf > 0 {
				sigs = []ThreatSignal{{Stage: StageLexical, Category: CategoryExfiltration, Confidence: tt.conf}}
			}
			risk := agg.Score(sigs, StateNominal)
			// Single signal with weight 1.0: risk equals confidence.
			if math.Abs(risk.Value-tt.conf) > 1e-9 {
				t.Fatalf("risk = %f, want %f", risk.Value, tt.conf)
			}
			if got := agg.Decide(risk); got != tt.want {
				t.Errorf("Decide(%f) = %s, want %s", risk.Value, got, tt.want)
			}
		})
	}
}

func TestAggregatorMonotonicity(t *testing.T) {
	// Raising any single confidence must never lower the score.
	agg := NewAggregator(DefaultAggregatorConfig())

	base := []ThreatSignal{
		{Stage: StageLexical, Category: CategoryExfiltration, Confidence: 0.3},
		{Stage: StageSemantic, Category: CategoryGoalHijack, Confidence: 0.5},
		{Stage: StageConversation, Category: CategoryCollusion, Confidence: 0.2},
	}

	for i := range base {
		prev := -1.0
		for conf := 0.0; conf <= 1.0; conf += 0.05 {
			sigs := make([]ThreatSignal, len(base))
			copy(sigs, base)
			sigs[i].Confidence = conf

			v := agg.Score(sigs, StateNominal).Value
			if v < prev-1e-12 {
				t.Fatalf("score decreased when signal %d confidence rose to %.2f: %f -> %f", i, conf, prev, v)
			}
			if v < 0 || v > 1 {
				t.Fatalf("score %f outside [0,1]", v)
			}
			prev = v
		}
	}
}

func TestAggregatorStateMultiplier(t *testing.T) {
	agg := NewAggregator(DefaultAggregatorConfig())
	sigs := []ThreatSignal{{Stage: StageSemantic, Category: CategorySocialEng, Confidence: 0.5}}

	nominal := agg.Score(sigs, StateNominal).Value
	elevated := agg.Score(sigs, StateElevated).Value
	suspect := agg.Score(sigs, StateSuspect).Value

	if !(nominal < elevated && elevated < suspect) {
		t.Errorf("multipliers should order scores: nominal=%f elevated=%f suspect=%f", nominal, elevated, suspect)
	}

	// The same weak signal can cross the flag line only under suspicion.
	if agg.Decide(RiskScore{Value: nominal}) != DecisionFlag {
		t.Errorf("0.5 social engineering under nominal: got %s", agg.Decide(RiskScore{Value: nominal}))
	}
}

func TestAggregatorIgnoresUnscoredSignals(t *testing.T) {
	agg := NewAggregator(DefaultAggregatorConfig())

	sigs := []ThreatSignal{
		Unscored(StageSemantic, "embedding unavailable"),
	}
	risk := agg.Score(sigs, StateNominal)
	if risk.Value != 0 {
		t.Errorf("degraded-only signals should score 0, got %f", risk.Value)
	}
	if agg.Decide(risk) != DecisionAllow {
		t.Errorf("degraded-only signals should allow")
	}
}

func TestAggregatorPure(t *testing.T) {
	agg := NewAggregator(DefaultAggregatorConfig())
	sigs := []ThreatSignal{
		{Stage: StageLexical, Category: CategoryExfiltration, Confidence: 0.6},
		{Stage: StageSemantic, Category: CategoryExfiltration, Confidence: 0.4},
	}

	first := agg.Score(sigs, StateElevated)
	for i := 0; i < 10; i++ {
		again := agg.Score(sigs, StateElevated)
		if again.Value != first.Value {
			t.Fatalf("score changed across calls: %f vs %f", first.Value, again.Value)
		}
	}

	if first.Breakdown[CategoryExfiltration] != 0.6 {
		t.Errorf("breakdown should report strongest weighted contribution, got %f", first.Breakdown[CategoryExfiltration])
	}
}

func TestAggregatorBreakdownPerCategory(t *testing.T) {
	agg := NewAggregator(DefaultAggregatorConfig())
	sigs := []ThreatSignal{
		{Stage: StageLexical, Category: CategoryExfiltration, Confidence: 0.9},
		{Stage: StageConversation, Category: CategoryCollusion, Confidence: 0.5},
	}
	risk := agg.Score(sigs, StateNominal)

	if len(risk.Breakdown) != 2 {
		t.Fatalf("breakdown has %d entries, want 2", len(risk.Breakdown))
	}
	if risk.Breakdown[CategoryExfiltration] < risk.Breakdown[CategoryCollusion] {
		t.Error("exfiltration contribution should dominate")
	}
}
