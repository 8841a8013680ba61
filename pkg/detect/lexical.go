package detect

import (
	"context"
	"fmt"

	"github.com/louisawamuyu/cogniguard/pkg/signatures"
)

// LexicalScanner matches message text against the compiled signature
// registry. Deterministic and side-effect-free: the same text always
// produces the same signals.
type LexicalScanner struct {
	registry       *signatures.Registry
	fuzzyThreshold float64
}

// NewLexicalScanner wraps a registry. fuzzyThreshold gates approximate
// phrase matches; exact hits always report.
func NewLexicalScanner(reg *signatures.Registry, fuzzyThreshold float64) *LexicalScanner {
	if reg == nil {
		reg = signatures.Get()
	}
	return &LexicalScanner{registry: reg, fuzzyThreshold: fuzzyThreshold}
}

// Scan runs every signature against the message. The context is accepted
// for stage interface symmetry; scanning is purely in-memory and never
// blocks on it.
func (l *LexicalScanner) Scan(_ context.Context, msg Message) []ThreatSignal {
	normalized := signatures.Normalize(msg.Text)

	var out []ThreatSignal
	for _, sig := range l.registry.MatchAll(msg.Text, normalized) {
		out = append(out, ThreatSignal{
			Stage:      StageLexical,
			Category:   sig.Category,
			Confidence: float64(sig.Severity) / 100,
			Evidence:   fmt.Sprintf("signature %s: %s", sig.Name, sig.Description),
		})
	}

	for _, fm := range l.registry.FuzzyMatches(normalized, l.fuzzyThreshold) {
		out = append(out, ThreatSignal{
			Stage:      StageLexical,
			Category:   fm.Signature.Category,
			Confidence: float64(fm.Signature.Severity) / 100 * fm.Similarity,
			Evidence: fmt.Sprintf("fuzzy signature %s (%.0f%% token overlap): %s",
				fm.Signature.Name, fm.Similarity*100, fm.Signature.Description),
		})
	}
	return out
}
