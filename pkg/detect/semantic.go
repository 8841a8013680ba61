package detect

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"time"

	chromem "github.com/philippgille/chromem-go"
)

// SemanticAnalyzer scores messages by embedding similarity against the
// attack archetype corpus, plus an optional toxicity reading. External
// resources (model inference, remote services) degrade to unscored signals
// instead of failing the pipeline.
type SemanticAnalyzer struct {
	collection *chromem.Collection
	embedder   EmbeddingProvider
	toxicity   ToxicityScorer

	simThreshold float64
	toxThreshold float64
	toxGain      float64
	timeout      time.Duration
	backoff      time.Duration
}

// SemanticOption configures the analyzer.
type SemanticOption func(*SemanticAnalyzer)

// WithSimilarityThreshold sets the minimum archetype similarity that emits
// a signal.
func WithSimilarityThreshold(t float64) SemanticOption {
	return func(s *SemanticAnalyzer) { s.simThreshold = t }
}

// WithToxicity attaches a toxicity scorer.
func WithToxicity(scorer ToxicityScorer) SemanticOption {
	return func(s *SemanticAnalyzer) { s.toxicity = scorer }
}

// WithScoringTimeout bounds each external scoring call.
func WithScoringTimeout(d time.Duration) SemanticOption {
	return func(s *SemanticAnalyzer) { s.timeout = d }
}

// WithRetryBackoff sets the pause before the single retry.
func WithRetryBackoff(d time.Duration) SemanticOption {
	return func(s *SemanticAnalyzer) { s.backoff = d }
}

// NewSemanticAnalyzer builds the archetype collection and embeds the corpus.
// Seeding failures are startup configuration errors; after startup the
// analyzer only degrades, never fails.
func NewSemanticAnalyzer(embedder EmbeddingProvider, archetypes []Archetype, opts ...SemanticOption) (*SemanticAnalyzer, error) {
	if embedder == nil {
		return nil, fmt.Errorf("semantic analyzer requires an embedding provider")
	}
	if len(archetypes) == 0 {
		archetypes = DefaultArchetypes()
	}

	s := &SemanticAnalyzer{
		embedder:     embedder,
		simThreshold: 0.65,
		toxThreshold: 0.70,
		toxGain:      0.6,
		timeout:      10 * time.Second,
		backoff:      250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}

	db := chromem.NewDB()
	embeddingFunc := func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.Embed(ctx, text)
	}
	collection, err := db.CreateCollection("attack-archetypes", nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("create archetype collection: %w", err)
	}

	docs := make([]chromem.Document, 0, len(archetypes))
	for _, a := range archetypes {
		docs = append(docs, chromem.Document{
			ID:      a.ID,
			Content: a.Text,
			Metadata: map[string]string{
				"category": string(a.Category),
			},
		})
	}
	seedCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := collection.AddDocuments(seedCtx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("seed archetype collection: %w", err)
	}

	s.collection = collection
	log.Printf("[SEMANTIC] archetype collection ready: %d archetypes, embedder=%s", collection.Count(), embedder.Name())
	return s, nil
}

// Analyze embeds the message, reports archetypes above the similarity
// threshold, and adds a toxicity reading when a scorer is attached. The
// returned vector feeds the conversation tracker's drift computation; it is
// nil when embedding degraded.
func (s *SemanticAnalyzer) Analyze(ctx context.Context, msg Message) ([]ThreatSignal, []float32) {
	var signals []ThreatSignal

	vec, err := s.embedWithRetry(ctx, msg.Text)
	if err != nil {
		log.Printf("[SEMANTIC] embedding degraded for message %s: %v", msg.ID, err)
		signals = append(signals, Unscored(StageSemantic, fmt.Sprintf("embedding unavailable: %v", err)))
	} else {
		signals = append(signals, s.archetypeSignals(ctx, vec)...)
	}

	if s.toxicity != nil {
		if sig, ok := s.toxicitySignal(ctx, msg.Text); ok {
			signals = append(signals, sig)
		}
	}
	return signals, vec
}

func (s *SemanticAnalyzer) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	attempt := func() ([]float32, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return s.embedder.Embed(callCtx, text)
	}

	vec, err := attempt()
	if err == nil {
		return vec, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	select {
	case <-time.After(s.backoff):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return attempt()
}

func (s *SemanticAnalyzer) archetypeSignals(ctx context.Context, vec []float32) []ThreatSignal {
	n := s.collection.Count()
	if n > 3 {
		n = 3
	}
	if n == 0 {
		return nil
	}

	results, err := s.collection.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		log.Printf("[SEMANTIC] archetype query failed: %v", err)
		return []ThreatSignal{Unscored(StageSemantic, fmt.Sprintf("archetype query failed: %v", err))}
	}

	var out []ThreatSignal
	for _, res := range results {
		sim := float64(res.Similarity)
		if sim < s.simThreshold {
			continue
		}
		cat, ok := parseResultCategory(res.Metadata["category"])
		if !ok {
			continue
		}
		out = append(out, ThreatSignal{
			Stage:      StageSemantic,
			Category:   cat,
			Confidence: sim,
			Evidence:   fmt.Sprintf("resembles archetype %s (similarity %.2f)", res.ID, sim),
		})
	}
	return out
}

func (s *SemanticAnalyzer) toxicitySignal(ctx context.Context, text string) (ThreatSignal, bool) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.toxicity.ScoreToxicity(callCtx, text)
	if err != nil {
		log.Printf("[SEMANTIC] toxicity degraded: %v", err)
		return Unscored(StageSemantic, fmt.Sprintf("toxicity unavailable: %v", err)), true
	}
	if !res.Toxic || res.Score < s.toxThreshold {
		return ThreatSignal{}, false
	}
	// Hostile tone alone is a weak indicator; scale it down so it
	// corroborates rather than convicts.
	return ThreatSignal{
		Stage:      StageSemantic,
		Category:   CategorySocialEng,
		Confidence: res.Score * s.toxGain,
		Evidence:   fmt.Sprintf("hostile tone (%s %.2f)", res.Label, res.Score),
	}, true
}

func parseResultCategory(s string) (Category, bool) {
	switch Category(s) {
	case CategoryGoalHijack, CategoryExfiltration, CategoryPowerSeeking, CategoryCollusion, CategorySocialEng:
		return Category(s), true
	}
	return CategoryNone, false
}
