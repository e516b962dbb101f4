// ABOUTME: Persisted document shape and conversion to and from Conversation
// ABOUTME: Message bodies are envelope-encoded on the way in and decoded on the way out

package store

import (
	"fmt"

	"github.com/2389/coven-chat/internal/envelope"
)

// StoredMessage is a message as persisted; Message holds the envelope.
type StoredMessage struct {
	SenderID string `bson:"sender_id" db:"sender_id"`
	Date     string `bson:"date" db:"date"`
	Message  string `bson:"message" db:"message"`
}

// Document is a conversation as persisted in a Collection.
type Document struct {
	ChannelID  string          `bson:"channel_id" db:"channel_id"`
	LastUpdate string          `bson:"last_update" db:"last_update"`
	Users      []Participant   `bson:"users" db:"-"`
	Messages   []StoredMessage `bson:"messages" db:"-"`
}

// toDocument validates c and encodes every message body. Participants with a
// repeated id and messages with a repeated (sender, date, envelope) triple
// collapse to their first occurrence.
func toDocument(c *Conversation) (*Document, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	doc := &Document{
		ChannelID:  c.ChannelID,
		LastUpdate: c.LastUpdate,
		Users:      make([]Participant, 0, len(c.Participants)),
		Messages:   make([]StoredMessage, 0, len(c.Messages)),
	}

	seenUsers := make(map[string]bool, len(c.Participants))
	for _, p := range c.Participants {
		if seenUsers[p.ID] {
			continue
		}
		seenUsers[p.ID] = true
		doc.Users = append(doc.Users, p)
	}

	seenMessages := make(map[StoredMessage]bool, len(c.Messages))
	for i, m := range c.Messages {
		env, err := envelope.Encode(m.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding message %d of %q: %w", i, c.ChannelID, err)
		}
		sm := StoredMessage{SenderID: m.SenderID, Date: m.Date, Message: env}
		if seenMessages[sm] {
			continue
		}
		seenMessages[sm] = true
		doc.Messages = append(doc.Messages, sm)
	}

	return doc, nil
}

// toConversation decodes every stored message body. Any decode failure is
// returned; no message is skipped.
func toConversation(d *Document) (*Conversation, error) {
	c := &Conversation{
		ChannelID:    d.ChannelID,
		LastUpdate:   d.LastUpdate,
		Participants: make([]Participant, len(d.Users)),
		Messages:     make([]Message, 0, len(d.Messages)),
	}
	copy(c.Participants, d.Users)

	for i, sm := range d.Messages {
		body, err := envelope.Decode(sm.Message)
		if err != nil {
			return nil, fmt.Errorf("decoding message %d of %q: %w", i, d.ChannelID, err)
		}
		c.Messages = append(c.Messages, Message{
			SenderID: sm.SenderID,
			Date:     sm.Date,
			Body:     body,
		})
	}
	return c, nil
}

// mergeDocument applies delta to existing with merge-upsert semantics:
// last_update takes the max, users union by id, messages union by exact
// value. Insertion order is preserved.
func mergeDocument(existing, delta *Document) {
	if delta.LastUpdate > existing.LastUpdate {
		existing.LastUpdate = delta.LastUpdate
	}

	for _, u := range delta.Users {
		found := false
		for _, e := range existing.Users {
			if e.ID == u.ID {
				found = true
				break
			}
		}
		if !found {
			existing.Users = append(existing.Users, u)
		}
	}

	for _, m := range delta.Messages {
		found := false
		for _, e := range existing.Messages {
			if e == m {
				found = true
				break
			}
		}
		if !found {
			existing.Messages = append(existing.Messages, m)
		}
	}
}

// clone returns a deep copy of d.
func (d *Document) clone() *Document {
	out := &Document{
		ChannelID:  d.ChannelID,
		LastUpdate: d.LastUpdate,
		Users:      make([]Participant, len(d.Users)),
		Messages:   make([]StoredMessage, len(d.Messages)),
	}
	copy(out.Users, d.Users)
	copy(out.Messages, d.Messages)
	return out
}
