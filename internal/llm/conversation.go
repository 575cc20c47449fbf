package llm

import (
	"sync"

	"github.com/google/uuid"
)

// Conversation is an append-only, ordered list of messages with a stable id.
type Conversation struct {
	ID string

	mu       sync.Mutex
	messages []Message
}

func NewConversation() *Conversation {
	return &Conversation{ID: uuid.NewString()}
}

func (c *Conversation) AddMessage(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

// Messages returns a copy of the messages in insertion order.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}
