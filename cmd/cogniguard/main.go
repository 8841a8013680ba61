package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/louisawamuyu/cogniguard/pkg/audit"
	"github.com/louisawamuyu/cogniguard/pkg/config"
	"github.com/louisawamuyu/cogniguard/pkg/detect"
	"github.com/louisawamuyu/cogniguard/pkg/httputil"
	"github.com/louisawamuyu/cogniguard/pkg/signatures"
	"github.com/louisawamuyu/cogniguard/pkg/telemetry"
)

const Version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		profile := ""
		if len(os.Args) > 2 {
			profile = os.Args[2]
		}
		runServer(profile)
	case "scan":
		if len(os.Args) < 3 {
			fmt.Println("Usage: cogniguard scan <text>")
			os.Exit(1)
		}
		runCLIScan(strings.Join(os.Args[2:], " "))
	case "version":
		fmt.Printf("CogniGuard v%s\n", Version)
		fmt.Println("Inter-agent message threat analysis")
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("CogniGuard v%s - inter-agent message threat analysis\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  cogniguard serve [profile]   Start the ingest API (profiles: default, high-security, high-usability)")
	fmt.Println("  cogniguard scan <text>       Analyze one message from the command line")
	fmt.Println("  cogniguard version           Show version")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  COGNIGUARD_PORT               HTTP port (default: 8337)")
	fmt.Println("  COGNIGUARD_MODEL_PATH         Local ONNX embedding model directory")
	fmt.Println("  COGNIGUARD_EMBEDDING_URL      Remote embedding service (Ollama-compatible)")
	fmt.Println("  COGNIGUARD_SIGNATURE_SETS     Comma-separated YAML signature set files")
	fmt.Println("  COGNIGUARD_STORE              Conversation store: memory (default) or redis")
	fmt.Println("  COGNIGUARD_AUDIT_LOG          JSONL verdict trail path")
	fmt.Println("  COGNIGUARD_POSTGRES_DSN       Postgres verdict trail DSN")
}

// guard bundles the assembled pipeline with the pieces the HTTP surface
// needs direct access to.
type guard struct {
	pipeline *detect.Pipeline
	tracker  *detect.Tracker
	stats    *telemetry.PipelineStats
	cfg      *config.Config
	closers  []func()
}

func (g *guard) close() {
	for i := len(g.closers) - 1; i >= 0; i-- {
		g.closers[i]()
	}
}

// buildGuard assembles every stage from config. Configuration problems are
// fatal here; after this returns, the pipeline only degrades.
func buildGuard(cfg *config.Config) *guard {
	cfg.MustValidate()
	g := &guard{cfg: cfg, stats: &telemetry.PipelineStats{}}

	// Lexical stage: built-in corpus plus operator signature sets.
	registry := signatures.Get()
	for _, path := range cfg.SignatureSetPaths {
		set, err := signatures.LoadSetFile(path)
		if err != nil {
			log.Fatalf("[STARTUP] FATAL: %v", err)
		}
		added := registry.AddSet(set)
		log.Printf("[STARTUP] signature set %q: %d signatures added", set.Name, added)
	}
	lexical := detect.NewLexicalScanner(registry, cfg.FuzzyThreshold)
	log.Printf("✓ lexical scanner ready (%d signatures)", registry.TotalSignatures())

	// Semantic stage: optional, backend chosen by config.
	semantic := buildSemantic(cfg, g)

	// Conversation store and tracker.
	store := buildStore(cfg, g)
	tracker := detect.NewTracker(store, detect.TrackerConfig{
		WindowSize:       cfg.WindowSize,
		ElevateThreshold: cfg.ElevateThreshold,
		SuspectThreshold: cfg.SuspectThreshold,
		HysteresisTurns:  cfg.HysteresisTurns,
		CooldownTurns:    cfg.CooldownTurns,
		DriftTurns:       cfg.DriftTurns,
		DriftThreshold:   cfg.DriftThreshold,
	})
	g.tracker = tracker

	aggCfg := detect.DefaultAggregatorConfig()
	aggCfg.FlagThreshold = cfg.FlagThreshold
	aggCfg.BlockThreshold = cfg.BlockThreshold
	agg := detect.NewAggregator(aggCfg)

	opts := []detect.PipelineOption{
		detect.WithUnambiguousThreshold(cfg.UnambiguousThreshold),
		detect.WithScoringSemaphore(httputil.NewSemaphore(cfg.ScoringSlots)),
		detect.WithStats(g.stats),
	}
	if sink := buildSink(cfg, g); sink != nil {
		opts = append(opts, detect.WithSink(sink))
	}

	g.pipeline = detect.NewPipeline(lexical, semantic, tracker, agg, opts...)
	return g
}

func buildSemantic(cfg *config.Config, g *guard) detect.SemanticStage {
	var embedder detect.EmbeddingProvider
	var toxicity detect.ToxicityScorer

	switch cfg.EmbeddingBackend {
	case config.BackendLocal:
		local, err := detect.NewHugotEmbedder(cfg.ModelPath, cfg.OnnxLibraryPath)
		if err != nil {
			log.Fatalf("[STARTUP] FATAL: local embedding model: %v", err)
		}
		g.closers = append(g.closers, local.Close)
		embedder = local
		log.Printf("✓ embeddings: local ONNX (%s)", cfg.ModelPath)

		if cfg.ToxicityModel != "" {
			tox, err := detect.NewHugotToxicity(local.Session(), cfg.ToxicityModel)
			if err != nil {
				log.Fatalf("[STARTUP] FATAL: toxicity model: %v", err)
			}
			toxicity = tox
			log.Printf("✓ toxicity: local ONNX (%s)", cfg.ToxicityModel)
		} else {
			log.Println("○ toxicity disabled (no model configured)")
		}
	case config.BackendRemote:
		clients := httputil.NewClients(cfg.ScoringTimeout * 2)
		embedder = detect.NewRemoteEmbedder(cfg.EmbeddingURL, cfg.EmbeddingModel, clients)
		log.Printf("✓ embeddings: remote (%s, model %s)", cfg.EmbeddingURL, cfg.EmbeddingModel)
		log.Println("○ toxicity disabled (remote backend)")
	default:
		log.Println("○ semantic stage disabled (no embedding backend configured)")
		return nil
	}

	archetypes := detect.DefaultArchetypes()
	if cfg.ArchetypePath != "" {
		loaded, err := detect.LoadArchetypeFile(cfg.ArchetypePath)
		if err != nil {
			log.Fatalf("[STARTUP] FATAL: %v", err)
		}
		archetypes = loaded
	}

	semOpts := []detect.SemanticOption{
		detect.WithSimilarityThreshold(cfg.SimilarityThreshold),
		detect.WithScoringTimeout(cfg.ScoringTimeout),
		detect.WithRetryBackoff(cfg.RetryBackoff),
	}
	if toxicity != nil {
		semOpts = append(semOpts, detect.WithToxicity(toxicity))
	}

	semantic, err := detect.NewSemanticAnalyzer(embedder, archetypes, semOpts...)
	if err != nil {
		log.Fatalf("[STARTUP] FATAL: semantic analyzer: %v", err)
	}
	return semantic
}

func buildStore(cfg *config.Config, g *guard) detect.ConversationStore {
	switch cfg.StoreBackend {
	case config.StoreRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := detect.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.ConversationTTL)
		if err != nil {
			log.Fatalf("[STARTUP] FATAL: %v", err)
		}
		g.closers = append(g.closers, store.Close)
		log.Printf("✓ conversation store: redis (%s)", cfg.RedisAddr)
		return store
	default:
		store := detect.NewInMemoryStore(detect.WithTTL(cfg.ConversationTTL))
		g.closers = append(g.closers, store.Close)
		log.Println("✓ conversation store: in-memory")
		return store
	}
}

func buildSink(cfg *config.Config, g *guard) detect.VerdictSink {
	var sinks audit.MultiSink

	if cfg.AuditLogPath != "" {
		jsonl, err := audit.NewJSONLSink(cfg.AuditLogPath)
		if err != nil {
			log.Fatalf("[STARTUP] FATAL: %v", err)
		}
		g.closers = append(g.closers, func() { jsonl.Close() })
		sinks = append(sinks, jsonl)
		log.Printf("✓ audit trail: %s", cfg.AuditLogPath)
	}
	if cfg.PostgresDSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		pg, err := audit.NewPostgresSink(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("[STARTUP] FATAL: %v", err)
		}
		g.closers = append(g.closers, pg.Close)
		sinks = append(sinks, pg)
		log.Println("✓ audit trail: postgres")
	}

	switch len(sinks) {
	case 0:
		log.Println("○ audit trail disabled")
		return nil
	case 1:
		return sinks[0]
	default:
		return sinks
	}
}

// ============================================================================
// HTTP Server Mode
// ============================================================================

type ingestRequest struct {
	ID             string   `json:"id,omitempty"`
	ConversationID string   `json:"conversation_id"`
	Sender         string   `json:"sender"`
	Receivers      []string `json:"receivers,omitempty"`
	Text           string   `json:"text"`
}

func runServer(profile string) {
	cfg, err := config.ForProfile(profile)
	if err != nil {
		log.Fatalf("[STARTUP] FATAL: %v", err)
	}

	g := buildGuard(cfg)
	defer g.close()

	app := fiber.New(fiber.Config{
		AppName: "CogniGuard v" + Version,
	})

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"version":  Version,
			"semantic": string(cfg.EmbeddingBackend),
			"store":    string(cfg.StoreBackend),
			"stats":    g.stats.Snapshot(),
		})
	})

	app.Post("/ingest", func(c fiber.Ctx) error {
		var req ingestRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}

		msg := detect.Message{
			ID:             req.ID,
			ConversationID: req.ConversationID,
			Sender:         req.Sender,
			Receivers:      req.Receivers,
			Text:           req.Text,
		}
		verdict, err := g.pipeline.Analyze(c.Context(), msg)
		if err != nil {
			if errors.Is(err, detect.ErrInvalidMessage) {
				return c.Status(400).JSON(fiber.Map{"error": err.Error()})
			}
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(verdict)
	})

	app.Get("/conversations/:id", func(c fiber.Ctx) error {
		conv, found, err := g.tracker.Summary(c.Context(), c.Params("id"))
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		if !found {
			return c.Status(404).JSON(fiber.Map{"error": "conversation not found"})
		}
		return c.JSON(summarize(conv))
	})

	app.Post("/conversations/:id/reset", func(c fiber.Ctx) error {
		if err := g.tracker.Reset(c.Context(), c.Params("id")); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"reset": true})
	})

	log.Printf("[STARTUP] CogniGuard v%s listening on :%s", Version, cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("[STARTUP] FATAL: server: %v", err)
	}
}

// conversationSummary is the read-only view returned by the API. Message
// bodies are trimmed to previews.
type conversationSummary struct {
	ID           string                `json:"id"`
	State        string                `json:"state"`
	Suspicion    float64               `json:"suspicion"`
	Turns        int                   `json:"turns"`
	Participants []string              `json:"participants"`
	Goal         string                `json:"goal,omitempty"`
	Previews     []string              `json:"previews"`
	LastSignals  []detect.ThreatSignal `json:"last_signals,omitempty"`

	AgentTrends map[string]map[detect.Category]int `json:"agent_trends,omitempty"`
}

func summarize(conv *detect.Conversation) conversationSummary {
	s := conversationSummary{
		ID:          conv.ID,
		State:       string(conv.State),
		Suspicion:   conv.Suspicion,
		Turns:       conv.Turns,
		Goal:        preview(conv.GoalText),
		LastSignals: conv.LastSignals,
		AgentTrends: conv.AgentTrends,
	}
	for p := range conv.Participants {
		s.Participants = append(s.Participants, p)
	}
	for _, m := range conv.Window {
		s.Previews = append(s.Previews, fmt.Sprintf("%s: %s", m.Sender, preview(m.Text)))
	}
	return s
}

func preview(text string) string {
	if len(text) > 80 {
		return text[:80] + "..."
	}
	return text
}

// ============================================================================
// CLI Scan Mode
// ============================================================================

func runCLIScan(text string) {
	cfg := config.NewDefaultConfig()
	// One-shot scans have no conversation history to persist.
	cfg.AuditLogPath = ""
	cfg.PostgresDSN = ""

	g := buildGuard(cfg)
	defer g.close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	msg := detect.NewMessage("cli", "cli-user", nil, text)
	verdict, err := g.pipeline.Analyze(ctx, msg)
	if err != nil {
		log.Fatalf("scan failed: %v", err)
	}

	out, _ := json.MarshalIndent(verdict, "", "  ")
	fmt.Println(string(out))

	if verdict.Decision == detect.DecisionBlock {
		os.Exit(2)
	}
}
