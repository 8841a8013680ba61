package detect

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
)

// ToxicityScorer rates the hostility/manipulation tone of a message.
// Implementations must be safe for concurrent use.
type ToxicityScorer interface {
	ScoreToxicity(ctx context.Context, text string) (ToxicityResult, error)
	Name() string
}

// ToxicityResult is one classifier reading.
type ToxicityResult struct {
	Label string  `json:"label"`
	Score float64 `json:"score"` // confidence in the label, 0.0-1.0
	Toxic bool    `json:"toxic"`
}

// toxicLabel recognizes the positive class across common toxicity and
// sentiment model label conventions.
func toxicLabel(label string) bool {
	switch strings.ToLower(label) {
	case "toxic", "negative", "hostile", "label_1":
		return true
	default:
		return false
	}
}

// HugotToxicity runs a local ONNX text-classification model via an
// already-open hugot session (shared with the embedder when both are local).
type HugotToxicity struct {
	mu       sync.Mutex
	pipeline *pipelines.TextClassificationPipeline
}

// NewHugotToxicity builds the classification pipeline on session.
func NewHugotToxicity(session *hugot.Session, modelPath string) (*HugotToxicity, error) {
	pipeline, err := hugot.NewPipeline(session, hugot.TextClassificationConfig{
		ModelPath: modelPath,
		Name:      "toxicity-classifier",
	})
	if err != nil {
		return nil, fmt.Errorf("create toxicity pipeline: %w", err)
	}
	return &HugotToxicity{pipeline: pipeline}, nil
}

func (h *HugotToxicity) Name() string { return "hugot-toxicity" }

func (h *HugotToxicity) ScoreToxicity(ctx context.Context, text string) (ToxicityResult, error) {
	if err := ctx.Err(); err != nil {
		return ToxicityResult{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	result, err := h.pipeline.RunPipeline([]string{text})
	if err != nil {
		return ToxicityResult{}, fmt.Errorf("toxicity inference: %w", err)
	}
	if len(result.ClassificationOutputs) == 0 || len(result.ClassificationOutputs[0]) == 0 {
		return ToxicityResult{}, fmt.Errorf("toxicity inference: empty output")
	}

	out := result.ClassificationOutputs[0][0]
	return ToxicityResult{
		Label: out.Label,
		Score: float64(out.Score),
		Toxic: toxicLabel(out.Label),
	}, nil
}
