// ABOUTME: Conversation, Participant and Message types with their mutators
// ABOUTME: In-memory form of a chat thread; message bodies are always plain text here

package store

import (
	"fmt"
	"time"
)

// TimestampLayout is the fixed-width UTC layout used for last_update. String
// order equals time order.
const TimestampLayout = "2006-01-02 15:04:05.000000000 UTC"

// Timestamp formats t with TimestampLayout.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Participant is a chat user attached to a conversation. Identity is ID.
type Participant struct {
	ID    string `json:"id" bson:"id" db:"id"`
	Name  string `json:"name" bson:"name" db:"name"`
	Email string `json:"email" bson:"email" db:"email"`
}

// Message is a single chat message. Date is caller supplied and never reparsed.
type Message struct {
	SenderID string `json:"sender_id"`
	Date     string `json:"date"`
	Body     string `json:"message"`
}

// Conversation is a thread keyed by ChannelID.
type Conversation struct {
	ChannelID    string        `json:"channel_id"`
	LastUpdate   string        `json:"last_update"`
	Participants []Participant `json:"users"`
	Messages     []Message     `json:"messages"`
}

// NewConversation returns an empty conversation stamped with the current time.
func NewConversation(channelID string) *Conversation {
	return &Conversation{
		ChannelID:    channelID,
		LastUpdate:   Timestamp(time.Now()),
		Participants: []Participant{},
		Messages:     []Message{},
	}
}

// AddParticipant appends p unless a participant with the same ID is already
// present. It reports whether p was added.
func (c *Conversation) AddParticipant(p Participant) bool {
	if c.HasParticipant(p.ID) {
		return false
	}
	c.Participants = append(c.Participants, p)
	return true
}

// AddMessage appends m. Messages are never deduplicated here.
func (c *Conversation) AddMessage(m Message) {
	c.Messages = append(c.Messages, m)
}

// HasParticipant reports whether a participant with the given id is present.
func (c *Conversation) HasParticipant(id string) bool {
	for _, p := range c.Participants {
		if p.ID == id {
			return true
		}
	}
	return false
}

// Others returns the participants whose id differs from id.
func (c *Conversation) Others(id string) []Participant {
	var others []Participant
	for _, p := range c.Participants {
		if p.ID != id {
			others = append(others, p)
		}
	}
	return others
}

// Validate checks the invariants required before a conversation is persisted.
func (c *Conversation) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: conversation is nil", ErrInvalidConversation)
	}
	if c.ChannelID == "" {
		return fmt.Errorf("%w: channel_id is required", ErrInvalidConversation)
	}
	if len(c.Participants) == 0 {
		return fmt.Errorf("%w: conversation %q has no participants", ErrInvalidConversation, c.ChannelID)
	}
	for i, p := range c.Participants {
		if p.ID == "" {
			return fmt.Errorf("%w: participant %d of %q has no id", ErrInvalidConversation, i, c.ChannelID)
		}
	}
	return nil
}
