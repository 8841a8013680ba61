package detect

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidMessage marks input rejected before any analysis stage runs.
// No verdict is produced for an invalid message.
var ErrInvalidMessage = errors.New("invalid message")

// Message is one inter-agent message entering the pipeline. Immutable once
// constructed; stages never modify it.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         string    `json:"sender"`
	Receivers      []string  `json:"receivers,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Text           string    `json:"text"`
}

// NewMessage fills in the generated fields (ID, timestamp) when absent.
func NewMessage(conversationID, sender string, receivers []string, text string) Message {
	return Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Sender:         sender,
		Receivers:      receivers,
		Timestamp:      time.Now().UTC(),
		Text:           text,
	}
}

// Validate rejects messages the pipeline must not analyze. Errors wrap
// ErrInvalidMessage.
func (m Message) Validate() error {
	if strings.TrimSpace(m.ConversationID) == "" {
		return fmt.Errorf("%w: missing conversation id", ErrInvalidMessage)
	}
	if strings.TrimSpace(m.Text) == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidMessage)
	}
	return nil
}

// withDefaults returns a copy with ID and Timestamp populated.
func (m Message) withDefaults() Message {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	return m
}
