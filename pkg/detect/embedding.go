package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/options"
	"github.com/knights-analytics/hugot/pipelines"

	"github.com/louisawamuyu/cogniguard/pkg/httputil"
)

// EmbeddingProvider turns text into a dense vector. Implementations must be
// safe for concurrent use.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Returns 0 for mismatched lengths or zero vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// HugotEmbedder runs a local ONNX feature-extraction model (MiniLM-class)
// in-process via hugot. Construction is expensive; build once and share.
type HugotEmbedder struct {
	mu       sync.Mutex
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
}

// NewHugotEmbedder loads the model at modelPath. onnxLibPath selects the
// ONNX Runtime shared library; when empty the pure-Go backend is used.
func NewHugotEmbedder(modelPath, onnxLibPath string) (*HugotEmbedder, error) {
	var session *hugot.Session
	var err error

	if onnxLibPath != "" {
		session, err = hugot.NewORTSession(options.WithOnnxLibraryPath(onnxLibPath))
		if err != nil {
			log.Printf("[EMBED] ORT session unavailable (%v), falling back to Go backend", err)
			session, err = hugot.NewGoSession()
		}
	} else {
		session, err = hugot.NewGoSession()
	}
	if err != nil {
		return nil, fmt.Errorf("create hugot session: %w", err)
	}

	pipeline, err := hugot.NewPipeline(session, hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "message-embedder",
	})
	if err != nil {
		session.Destroy()
		return nil, fmt.Errorf("create embedding pipeline: %w", err)
	}

	return &HugotEmbedder{session: session, pipeline: pipeline}, nil
}

func (h *HugotEmbedder) Name() string { return "hugot-local" }

// Embed runs the model on one text. hugot pipelines are not reentrant, so
// calls serialize on an internal mutex.
func (h *HugotEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	result, err := h.pipeline.RunPipeline([]string{text})
	if err != nil {
		return nil, fmt.Errorf("embedding inference: %w", err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("embedding inference: empty output")
	}
	return result.Embeddings[0], nil
}

// Session exposes the underlying hugot session so other local pipelines
// (toxicity classification) can share it instead of loading a second
// runtime.
func (h *HugotEmbedder) Session() *hugot.Session {
	return h.session
}

// Close releases the ONNX session.
func (h *HugotEmbedder) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session != nil {
		h.session.Destroy()
		h.session = nil
	}
}

// RemoteEmbedder calls an Ollama-compatible embedding endpoint
// (POST {base}/api/embeddings). Used when no local model is configured.
type RemoteEmbedder struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewRemoteEmbedder targets an embedding service. The scoring-tier client
// bounds each call; retry policy lives in the semantic stage.
func NewRemoteEmbedder(baseURL, model string, clients *httputil.Clients) *RemoteEmbedder {
	return &RemoteEmbedder{
		baseURL: baseURL,
		model:   model,
		client:  clients.Scoring,
	}
}

func (r *RemoteEmbedder) Name() string { return "remote:" + r.model }

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (r *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: r.model, Prompt: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("embedding service status %d: %s", resp.StatusCode, snippet)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("embedding service returned empty vector")
	}
	return parsed.Embedding, nil
}
