// ABOUTME: Conversation service resolving which conversations apply to a participant
// ABOUTME: Synthesizes unsaved placeholder conversations and forwards deltas to the store

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/2389/coven-chat/internal/metrics"
	"github.com/2389/coven-chat/internal/store"
)

// ErrInvalidParticipant is returned when a participant has no id.
var ErrInvalidParticipant = errors.New("participant id is required")

// ConversationStore defines what the service needs from storage
type ConversationStore interface {
	FetchForParticipant(ctx context.Context, participantID string) ([]*store.Conversation, error)
	Append(ctx context.Context, conv *store.Conversation) error
	ListUsers(ctx context.Context) ([]store.Participant, error)
	Ping(ctx context.Context) error
}

// Service is the surface the rest of the application uses for chat history.
type Service struct {
	store  ConversationStore
	logger *slog.Logger

	// newChannelID derives a fresh channel id for a synthesized conversation.
	newChannelID func(participantID string) string
}

// New creates a new conversation Service
func New(store ConversationStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:        store,
		logger:       logger.With("component", "conversation"),
		newChannelID: defaultChannelID,
	}
}

func defaultChannelID(participantID string) string {
	return participantID + "-" + uuid.NewString()
}

// GetConversations resolves the conversations that apply to p, newest first.
//
//  1. No stored conversation contains p: one unsaved placeholder holding
//     only p is returned.
//  2. Every stored conversation has no participant other than p: the stored
//     ones are returned followed by one unsaved placeholder.
//  3. Otherwise the stored conversations are returned unchanged.
//
// Placeholders become durable only through AppendConversationDelta.
func (s *Service) GetConversations(ctx context.Context, p store.Participant) ([]*store.Conversation, error) {
	if p.ID == "" {
		return nil, ErrInvalidParticipant
	}

	convs, err := s.store.FetchForParticipant(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("fetching conversations: %w", err)
	}

	if len(convs) == 0 {
		s.logger.Info("no conversation found, creating placeholder", "participant_id", p.ID)
		return []*store.Conversation{s.synthesize(p)}, nil
	}

	if allSolo(convs, p.ID) {
		s.logger.Info("only solo conversations found, adding placeholder",
			"participant_id", p.ID,
			"existing", len(convs))
		convs = append(convs, s.synthesize(p))
	}

	return convs, nil
}

// AppendConversationDelta merges conv into storage keyed on its channel_id.
func (s *Service) AppendConversationDelta(ctx context.Context, conv *store.Conversation) error {
	if err := s.store.Append(ctx, conv); err != nil {
		return err
	}
	s.logger.Debug("conversation delta appended",
		"channel_id", conv.ChannelID,
		"messages", len(conv.Messages))
	return nil
}

// ListUsers returns the participant directory.
func (s *Service) ListUsers(ctx context.Context) ([]store.Participant, error) {
	return s.store.ListUsers(ctx)
}

// Ping checks that storage is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// synthesize builds an unsaved conversation holding only p.
func (s *Service) synthesize(p store.Participant) *store.Conversation {
	conv := store.NewConversation(s.newChannelID(p.ID))
	conv.AddParticipant(p)
	metrics.ConversationsSynthesized.Inc()
	return conv
}

// allSolo reports whether no conversation has a participant other than id.
func allSolo(convs []*store.Conversation, id string) bool {
	for _, c := range convs {
		if len(c.Others(id)) > 0 {
			return false
		}
	}
	return true
}
