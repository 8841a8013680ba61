package detect

import (
	"context"
	"log"
	"time"

	"github.com/louisawamuyu/cogniguard/pkg/httputil"
	"github.com/louisawamuyu/cogniguard/pkg/telemetry"
)

// LexicalStage is the fast, deterministic first stage.
type LexicalStage interface {
	Scan(ctx context.Context, msg Message) []ThreatSignal
}

// SemanticStage is the model-backed second stage. It never errors; backing
// resource failures surface as degraded signals. The returned vector is the
// message embedding, nil when embedding was unavailable.
type SemanticStage interface {
	Analyze(ctx context.Context, msg Message) ([]ThreatSignal, []float32)
}

// VerdictSink externalizes completed verdicts (audit trail). Sinks are
// called fire-and-forget; a slow sink never stalls analysis.
type VerdictSink interface {
	Record(ctx context.Context, msg Message, v Verdict) error
}

// Pipeline sequences the stages for one message: lexical and semantic
// fan out concurrently, the tracker commits the turn, the aggregator
// renders the verdict.
type Pipeline struct {
	lexical  LexicalStage
	semantic SemanticStage
	tracker  *Tracker
	agg      *Aggregator

	sink     VerdictSink
	sinkSem  *httputil.Semaphore
	scoreSem *httputil.Semaphore
	stats    *telemetry.PipelineStats

	unambiguous float64
}

// PipelineOption configures the pipeline.
type PipelineOption func(*Pipeline)

// WithUnambiguousThreshold sets the lexical confidence that triggers the
// early exit.
func WithUnambiguousThreshold(t float64) PipelineOption {
	return func(p *Pipeline) { p.unambiguous = t }
}

// WithSink attaches a verdict sink.
func WithSink(sink VerdictSink) PipelineOption {
	return func(p *Pipeline) { p.sink = sink }
}

// WithScoringSemaphore bounds concurrent semantic stage executions.
func WithScoringSemaphore(sem *httputil.Semaphore) PipelineOption {
	return func(p *Pipeline) { p.scoreSem = sem }
}

// WithStats attaches pipeline counters.
func WithStats(stats *telemetry.PipelineStats) PipelineOption {
	return func(p *Pipeline) { p.stats = stats }
}

// NewPipeline assembles the stages. semantic may be nil; the pipeline then
// runs lexical-only and marks the semantic stage degraded on every message.
func NewPipeline(lexical LexicalStage, semantic SemanticStage, tracker *Tracker, agg *Aggregator, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		lexical:     lexical,
		semantic:    semantic,
		tracker:     tracker,
		agg:         agg,
		sinkSem:     httputil.NewSemaphore(64),
		unambiguous: 0.90,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type semResult struct {
	signals []ThreatSignal
	vec     []float32
}

// Analyze runs the full pipeline for one message.
//
// Invalid messages are rejected before any stage runs (ErrInvalidMessage).
// Context cancellation aborts the analysis without committing the message
// to its conversation. Everything else produces a Verdict: stage resource
// failures degrade, they do not error.
func (p *Pipeline) Analyze(ctx context.Context, msg Message) (Verdict, error) {
	start := time.Now()

	msg = msg.withDefaults()
	if err := msg.Validate(); err != nil {
		p.stats.RecordRejected()
		return Verdict{}, err
	}

	semCtx, cancelSem := context.WithCancel(ctx)
	defer cancelSem()
	semCh := p.startSemantic(semCtx, msg)

	lexSignals := p.lexical.Scan(ctx, msg)

	var (
		signals   []ThreatSignal
		vec       []float32
		earlyExit bool
	)
	if hit := unambiguousHit(lexSignals, p.unambiguous); hit != nil && p.blocksAlone(lexSignals) {
		// The lexical hit alone decides; stop paying for inference.
		cancelSem()
		earlyExit = true
		signals = lexSignals
	} else {
		select {
		case res := <-semCh:
			signals = append(lexSignals, res.signals...)
			vec = res.vec
		case <-ctx.Done():
			return Verdict{}, ctx.Err()
		}
	}

	convSignals, state, err := p.tracker.Observe(ctx, msg, signals, vec)
	if err != nil {
		return Verdict{}, err
	}

	all := append(append([]ThreatSignal(nil), signals...), convSignals...)
	risk := p.agg.Score(all, state)
	decision := p.agg.Decide(risk)
	degraded := degradedStages(all)

	v := Verdict{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Decision:       decision,
		Risk:           risk,
		State:          state,
		Explanation:    explain(all, degraded),
		DegradedStages: degraded,
		EarlyExit:      earlyExit,
		LatencyMs:      time.Since(start).Milliseconds(),
	}

	p.stats.RecordVerdict(string(decision), earlyExit, len(degraded) > 0)
	p.record(msg, v)
	return v, nil
}

// startSemantic launches the semantic stage, bounded by the scoring
// semaphore when one is attached. Always returns a buffered channel that
// will receive exactly one result.
func (p *Pipeline) startSemantic(ctx context.Context, msg Message) <-chan semResult {
	ch := make(chan semResult, 1)
	if p.semantic == nil {
		ch <- semResult{signals: []ThreatSignal{Unscored(StageSemantic, "semantic stage disabled")}}
		return ch
	}

	go func() {
		if p.scoreSem != nil {
			if err := p.scoreSem.Acquire(ctx); err != nil {
				ch <- semResult{signals: []ThreatSignal{Unscored(StageSemantic, "scoring capacity unavailable")}}
				return
			}
			defer p.scoreSem.Release()
		}
		sigs, vec := p.semantic.Analyze(ctx, msg)
		ch <- semResult{signals: sigs, vec: vec}
	}()
	return ch
}

// blocksAlone reports whether the lexical signals by themselves clear the
// block threshold at a nominal conversation state. The early exit requires
// this in addition to the confidence threshold: a confident hit in a
// down-weighted category falls through to the full fan-out instead of
// forcing a block the aggregator would not render.
func (p *Pipeline) blocksAlone(signals []ThreatSignal) bool {
	return p.agg.Decide(p.agg.Score(signals, StateNominal)) == DecisionBlock
}

// unambiguousHit returns the first lexical signal decisive enough to skip
// the rest of the stage fan-out.
func unambiguousHit(signals []ThreatSignal, threshold float64) *ThreatSignal {
	for i := range signals {
		s := &signals[i]
		if !s.Degraded && s.Category != CategoryNone && s.Confidence >= threshold {
			return s
		}
	}
	return nil
}

// record hands the verdict to the sink without blocking analysis. Drops
// under backpressure rather than queueing unboundedly.
func (p *Pipeline) record(msg Message, v Verdict) {
	if p.sink == nil {
		return
	}
	if !p.sinkSem.TryAcquire() {
		p.stats.RecordSinkDrop()
		log.Printf("[PIPELINE] audit sink saturated, dropping verdict for message %s", msg.ID)
		return
	}
	go func() {
		defer p.sinkSem.Release()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.sink.Record(ctx, msg, v); err != nil {
			log.Printf("[PIPELINE] audit sink error for message %s: %v", msg.ID, err)
		}
	}()
}
