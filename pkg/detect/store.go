package detect

import (
	"context"
	"sync"
	"time"
)

// Conversation is the tracked state for one conversation. All fields are
// JSON-serializable so stores can externalize the record.
type Conversation struct {
	ID           string          `json:"id"`
	Window       []Message       `json:"window"` // FIFO, oldest first, capacity = tracker window size
	Participants map[string]bool `json:"participants"`

	State     ConversationState `json:"state"`
	Suspicion float64           `json:"suspicion"` // rolling score, 0.0-1.0

	GoalText string    `json:"goal_text,omitempty"` // declared goal, defaults to the first message
	GoalVec  []float32 `json:"goal_vec,omitempty"`

	DriftStreak     int `json:"drift_streak"`     // consecutive turns breaching the drift threshold
	SensitiveStreak int `json:"sensitive_streak"` // consecutive turns with sensitive-topic signals
	BreachStreak    int `json:"breach_streak"`    // consecutive turns at or above the suspect threshold
	CalmStreak      int `json:"calm_streak"`      // consecutive turns below the elevate threshold
	QuietTurns      int `json:"quiet_turns"`      // consecutive turns with no attributable signal

	// TurnRecords parallels Window: one attribution record per retained
	// turn. The collusion check correlates categories across senders here.
	TurnRecords []TurnRecord `json:"turn_records,omitempty"`

	// AgentTrends is derived from TurnRecords each turn; kept on the
	// record so conversation summaries can report it without recomputing.
	AgentTrends map[string]map[Category]int `json:"agent_trends,omitempty"`

	Turns       int            `json:"turns"`
	LastSignals []ThreatSignal `json:"last_signals,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TurnRecord is the per-turn attribution retained alongside the message
// window.
type TurnRecord struct {
	Sender     string     `json:"sender"`
	Categories []Category `json:"categories,omitempty"` // attributable signal categories this turn
	Drift      float64    `json:"drift"`
	Sensitive  bool       `json:"sensitive"`
}

func newConversation(id string) *Conversation {
	return &Conversation{
		ID:           id,
		State:        StateNominal,
		Participants: make(map[string]bool),
		AgentTrends:  make(map[string]map[Category]int),
	}
}

// ConversationStore persists per-conversation tracker state.
//
// Update runs fn with exclusive access to the conversation, creating it on
// first touch. Updates to the same conversation serialize; distinct
// conversations proceed in parallel. fn must leave the conversation
// unmodified when it returns an error.
type ConversationStore interface {
	Update(ctx context.Context, id string, fn func(*Conversation) error) error
	Get(ctx context.Context, id string) (*Conversation, bool, error)
	Delete(ctx context.Context, id string) error
	Close()
}

// InMemoryStore keeps conversations in process memory with TTL eviction.
// The default store for single-node deployments.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*convEntry

	ttl      time.Duration
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

type convEntry struct {
	mu   sync.Mutex
	conv *Conversation
}

// StoreOption configures the in-memory store.
type StoreOption func(*InMemoryStore)

// WithTTL sets how long an idle conversation survives before eviction.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *InMemoryStore) { s.ttl = ttl }
}

// WithCleanupInterval sets how often the eviction sweep runs.
func WithCleanupInterval(d time.Duration) StoreOption {
	return func(s *InMemoryStore) { s.interval = d }
}

// NewInMemoryStore starts the eviction goroutine. Call Close to stop it.
func NewInMemoryStore(opts ...StoreOption) *InMemoryStore {
	s := &InMemoryStore{
		entries:  make(map[string]*convEntry),
		ttl:      30 * time.Minute,
		interval: 5 * time.Minute,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.cleanupLoop()
	return s
}

func (s *InMemoryStore) Update(ctx context.Context, id string, fn func(*Conversation) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		e = &convEntry{conv: newConversation(id)}
		s.entries[id] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(e.conv); err != nil {
		return err
	}
	e.conv.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*Conversation, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshotConversation(e.conv), true, nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	return nil
}

// Len reports the number of live conversations.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the eviction goroutine.
func (s *InMemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *InMemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.stopCh:
			return
		}
	}
}

func (s *InMemoryStore) evictExpired() {
	cutoff := time.Now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		e.mu.Lock()
		expired := e.conv.UpdatedAt.Before(cutoff)
		e.mu.Unlock()
		if expired {
			delete(s.entries, id)
		}
	}
}

// snapshotConversation deep-copies the mutable parts so readers cannot race
// with in-place updates.
func snapshotConversation(c *Conversation) *Conversation {
	out := *c
	out.Window = append([]Message(nil), c.Window...)
	out.TurnRecords = append([]TurnRecord(nil), c.TurnRecords...)
	out.GoalVec = append([]float32(nil), c.GoalVec...)
	out.LastSignals = append([]ThreatSignal(nil), c.LastSignals...)
	out.Participants = make(map[string]bool, len(c.Participants))
	for k, v := range c.Participants {
		out.Participants[k] = v
	}
	out.AgentTrends = make(map[string]map[Category]int, len(c.AgentTrends))
	for agent, counts := range c.AgentTrends {
		cp := make(map[Category]int, len(counts))
		for cat, n := range counts {
			cp[cat] = n
		}
		out.AgentTrends[agent] = cp
	}
	return &out
}
