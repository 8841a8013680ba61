package detect

// AggregatorConfig holds the risk-combination tunables.
type AggregatorConfig struct {
	// Weights scale each category's contribution. Categories absent from
	// the map contribute nothing.
	Weights map[Category]float64

	// StateMultipliers amplify risk by conversation state.
	StateMultipliers map[ConversationState]float64

	FlagThreshold  float64
	BlockThreshold float64
}

// DefaultAggregatorConfig returns the balanced profile values.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		Weights: map[Category]float64{
			CategoryExfiltration: 1.0,
			CategoryGoalHijack:   0.9,
			CategoryPowerSeeking: 0.85,
			CategoryCollusion:    0.8,
			CategorySocialEng:    0.75,
		},
		StateMultipliers: map[ConversationState]float64{
			StateNominal:  1.0,
			StateElevated: 1.25,
			StateSuspect:  1.5,
		},
		FlagThreshold:  0.35,
		BlockThreshold: 0.70,
	}
}

// Aggregator combines stage signals into a risk score and verdict. Pure:
// the same signals and state always produce the same output, and no call
// mutates anything.
type Aggregator struct {
	cfg AggregatorConfig
}

// NewAggregator validates nothing; config validation happens at startup.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.Weights == nil {
		cfg.Weights = DefaultAggregatorConfig().Weights
	}
	if cfg.StateMultipliers == nil {
		cfg.StateMultipliers = DefaultAggregatorConfig().StateMultipliers
	}
	if cfg.FlagThreshold <= 0 {
		cfg.FlagThreshold = DefaultAggregatorConfig().FlagThreshold
	}
	if cfg.BlockThreshold <= 0 {
		cfg.BlockThreshold = DefaultAggregatorConfig().BlockThreshold
	}
	return &Aggregator{cfg: cfg}
}

// Score combines the signals under the conversation state's multiplier.
//
// Combination is a noisy-or over weighted confidences:
//
//	risk = 1 - prod(1 - weight_c * confidence_i)
//
// which stays in [0,1], never decreases when any confidence increases, and
// saturates instead of double-counting corroborating signals. The state
// multiplier then amplifies, clamped to 1.
func (a *Aggregator) Score(signals []ThreatSignal, state ConversationState) RiskScore {
	survival := 1.0
	breakdown := make(map[Category]float64)

	for _, s := range signals {
		if s.Category == CategoryNone || s.Confidence <= 0 {
			continue
		}
		w := a.cfg.Weights[s.Category]
		if w <= 0 {
			continue
		}
		contribution := w * s.Confidence
		if contribution > 1 {
			contribution = 1
		}
		survival *= 1 - contribution
		if contribution > breakdown[s.Category] {
			breakdown[s.Category] = contribution
		}
	}

	risk := 1 - survival
	if m, ok := a.cfg.StateMultipliers[state]; ok {
		risk *= m
	}
	if risk > 1 {
		risk = 1
	}
	if risk < 0 {
		risk = 0
	}

	if len(breakdown) == 0 {
		breakdown = nil
	}
	return RiskScore{
		Value:     risk,
		Signals:   signals,
		Breakdown: breakdown,
	}
}

// Decide maps a risk score to a decision. Boundary values resolve toward
// the stricter outcome.
func (a *Aggregator) Decide(risk RiskScore) Decision {
	switch {
	case risk.Value >= a.cfg.BlockThreshold:
		return DecisionBlock
	case risk.Value >= a.cfg.FlagThreshold:
		return DecisionFlag
	default:
		return DecisionAllow
	}
}
