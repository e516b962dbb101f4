// ABOUTME: Collection interface and ConversationStore for chat persistence
// ABOUTME: Read path decodes envelopes, write path encodes and merge-upserts by channel_id

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/coven-chat/internal/metrics"
)

// ErrStoreConnection is returned when the document database cannot be
// reached or refuses an operation. It is joined with the driver error.
var ErrStoreConnection = errors.New("store connection failed")

// ErrInvalidConversation is returned when a conversation fails validation
// before any I/O is attempted.
var ErrInvalidConversation = errors.New("invalid conversation")

// Collection is the document-store capability the ConversationStore needs.
// Implementations must apply MergeUpsert as a single atomic mutation.
type Collection interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// FindByParticipant returns every document whose users contain
	// participantID, ordered by last_update descending.
	FindByParticipant(ctx context.Context, participantID string) ([]*Document, error)

	// MergeUpsert creates the document for delta.ChannelID if absent, then
	// raises last_update to delta.LastUpdate and set-unions users (by id)
	// and messages (by value).
	MergeUpsert(ctx context.Context, delta *Document) error

	// ListUsers returns the participant directory.
	ListUsers(ctx context.Context) ([]Participant, error)

	Ping(ctx context.Context) error

	// Close releases any resources held by the collection
	Close() error
}

// ConversationStore owns the read and write paths between conversations
// and a Collection.
type ConversationStore struct {
	coll   Collection
	logger *slog.Logger
}

// NewConversationStore wraps coll.
func NewConversationStore(coll Collection, logger *slog.Logger) *ConversationStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationStore{
		coll:   coll,
		logger: logger.With("component", "store", "backend", coll.Name()),
	}
}

// FetchForParticipant returns every conversation containing participantID,
// newest first, with message bodies decoded. A single undecodable message
// fails the whole fetch.
func (s *ConversationStore) FetchForParticipant(ctx context.Context, participantID string) ([]*Conversation, error) {
	done := s.observe("fetch")

	docs, err := s.coll.FindByParticipant(ctx, participantID)
	if err != nil {
		done(err)
		return nil, fmt.Errorf("finding conversations for %q: %w", participantID, err)
	}

	convs := make([]*Conversation, 0, len(docs))
	for _, d := range docs {
		c, err := toConversation(d)
		if err != nil {
			done(err)
			s.logger.Error("stored conversation is corrupt",
				"channel_id", d.ChannelID,
				"error", err)
			return nil, err
		}
		convs = append(convs, c)
	}

	done(nil)
	s.logger.Debug("fetched conversations",
		"participant_id", participantID,
		"count", len(convs))
	return convs, nil
}

// Append merge-upserts conv keyed on its channel_id. Bodies are encoded
// before the write; the write is a single atomic call.
func (s *ConversationStore) Append(ctx context.Context, conv *Conversation) error {
	doc, err := toDocument(conv)
	if err != nil {
		return err
	}

	done := s.observe("append")
	if err := s.coll.MergeUpsert(ctx, doc); err != nil {
		done(err)
		return fmt.Errorf("merging conversation %q: %w", doc.ChannelID, err)
	}
	done(nil)

	s.logger.Debug("conversation merged",
		"channel_id", doc.ChannelID,
		"users", len(doc.Users),
		"messages", len(doc.Messages))
	return nil
}

// ListUsers returns the participant directory from the backend.
func (s *ConversationStore) ListUsers(ctx context.Context) ([]Participant, error) {
	done := s.observe("list_users")
	users, err := s.coll.ListUsers(ctx)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// Ping checks that the backend is reachable.
func (s *ConversationStore) Ping(ctx context.Context) error {
	return s.coll.Ping(ctx)
}

// Close releases the underlying collection.
func (s *ConversationStore) Close() error {
	return s.coll.Close()
}

// observe starts a latency measurement for op and returns the function that
// records its outcome.
func (s *ConversationStore) observe(op string) func(error) {
	start := time.Now()
	backend := s.coll.Name()
	return func(err error) {
		metrics.StoreOperationDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.StoreErrors.WithLabelValues(backend, op).Inc()
		}
	}
}

// connectionError joins ErrStoreConnection with a driver error so callers can
// test for either.
func connectionError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreConnection, op, err)
}
