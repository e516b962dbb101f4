// ABOUTME: Typed request and response bodies for the chat HTTP endpoints
// ABOUTME: Validation fails closed on missing required fields

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/2389/coven-chat/internal/store"
)

// errBadRequest marks request parsing and validation failures.
var errBadRequest = errors.New("bad request")

// UserRequest identifies the requesting participant.
type UserRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ChatPayload is the conversation delta carried by POST /chat/post.
type ChatPayload struct {
	ChannelID string              `json:"channel_id"`
	Users     []store.Participant `json:"users"`
	Messages  []store.Message     `json:"messages"`
}

// GetChatRequest is the JSON request body for POST /chat/get.
type GetChatRequest struct {
	User *UserRequest `json:"user"`
}

// PostChatRequest is the JSON request body for POST /chat/post.
type PostChatRequest struct {
	User        *UserRequest `json:"user"`
	ChatPayload *ChatPayload `json:"chat_payload"`
}

// ChatResponse is the JSON response for both chat endpoints.
type ChatResponse struct {
	Count int64                 `json:"count"`
	ID    string                `json:"id"` // client IP
	Chat  []*store.Conversation `json:"chat"`
	Users []store.Participant   `json:"users"`
}

// ErrorResponse is the JSON body for every error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Validate checks the request.
func (r *GetChatRequest) Validate() error {
	return validateUser(r.User)
}

// Validate checks the request.
func (r *PostChatRequest) Validate() error {
	if err := validateUser(r.User); err != nil {
		return err
	}
	if r.ChatPayload == nil {
		return fmt.Errorf("%w: chat_payload is required", errBadRequest)
	}
	if r.ChatPayload.ChannelID == "" {
		return fmt.Errorf("%w: chat_payload.channel_id is required", errBadRequest)
	}
	if len(r.ChatPayload.Users) == 0 {
		return fmt.Errorf("%w: chat_payload.users must not be empty", errBadRequest)
	}
	for i, u := range r.ChatPayload.Users {
		if u.ID == "" {
			return fmt.Errorf("%w: chat_payload.users[%d].id is required", errBadRequest, i)
		}
	}
	for i, m := range r.ChatPayload.Messages {
		if m.SenderID == "" {
			return fmt.Errorf("%w: chat_payload.messages[%d].sender_id is required", errBadRequest, i)
		}
		if m.Date == "" {
			return fmt.Errorf("%w: chat_payload.messages[%d].date is required", errBadRequest, i)
		}
	}
	return nil
}

func validateUser(u *UserRequest) error {
	if u == nil {
		return fmt.Errorf("%w: user is required", errBadRequest)
	}
	if u.ID == "" {
		return fmt.Errorf("%w: user.id is required", errBadRequest)
	}
	return nil
}

// participant converts the request user into a store.Participant.
func (u *UserRequest) participant() store.Participant {
	return store.Participant{ID: u.ID, Name: u.Name, Email: u.Email}
}

// conversation converts the payload into a delta stamped with lastUpdate.
func (p *ChatPayload) conversation(lastUpdate string) *store.Conversation {
	conv := &store.Conversation{
		ChannelID:    p.ChannelID,
		LastUpdate:   lastUpdate,
		Participants: []store.Participant{},
		Messages:     []store.Message{},
	}
	for _, u := range p.Users {
		conv.AddParticipant(u)
	}
	for _, m := range p.Messages {
		conv.AddMessage(m)
	}
	return conv
}

// decodeJSON decodes a single JSON object from r into dst, with the body
// capped at maxBytes. Unknown fields such as user.token are ignored.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(body)

	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: body exceeds %d bytes", errBadRequest, tooLarge.Limit)
		}
		return fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("%w: body must contain a single JSON object", errBadRequest)
	}
	return nil
}
