// ABOUTME: In-memory Collection implementation for testing
// ABOUTME: Applies the same merge-upsert semantics as the real backends under a mutex

package store

import (
	"context"
	"sort"
	"sync"
)

// MockCollection is an in-memory Collection for tests. Set Err to make every
// operation fail with it.
type MockCollection struct {
	mu    sync.RWMutex
	docs  map[string]*Document // keyed by channel_id
	order []string             // channel ids in creation order

	Err error
}

// NewMockCollection creates an empty MockCollection.
func NewMockCollection() *MockCollection {
	return &MockCollection{
		docs: make(map[string]*Document),
	}
}

// Name implements Collection.
func (m *MockCollection) Name() string { return "mock" }

// FindByParticipant implements Collection.
func (m *MockCollection) FindByParticipant(ctx context.Context, participantID string) ([]*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, connectionError("find", m.Err)
	}
	if err := ctx.Err(); err != nil {
		return nil, connectionError("find", err)
	}

	var result []*Document
	for _, id := range m.order {
		doc := m.docs[id]
		for _, u := range doc.Users {
			if u.ID == participantID {
				result = append(result, doc.clone())
				break
			}
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].LastUpdate > result[j].LastUpdate
	})
	return result, nil
}

// MergeUpsert implements Collection.
func (m *MockCollection) MergeUpsert(ctx context.Context, delta *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return connectionError("update", m.Err)
	}
	if err := ctx.Err(); err != nil {
		return connectionError("update", err)
	}

	existing, ok := m.docs[delta.ChannelID]
	if !ok {
		existing = &Document{ChannelID: delta.ChannelID}
		m.docs[delta.ChannelID] = existing
		m.order = append(m.order, delta.ChannelID)
	}
	mergeDocument(existing, delta)
	return nil
}

// ListUsers implements Collection: every distinct participant, first record wins.
func (m *MockCollection) ListUsers(ctx context.Context) ([]Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, connectionError("list users", m.Err)
	}

	seen := make(map[string]bool)
	users := []Participant{}
	for _, id := range m.order {
		for _, u := range m.docs[id].Users {
			if !seen[u.ID] {
				seen[u.ID] = true
				users = append(users, u)
			}
		}
	}
	return users, nil
}

// Ping implements Collection.
func (m *MockCollection) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return connectionError("ping", m.Err)
	}
	return nil
}

// Close implements Collection.
func (m *MockCollection) Close() error { return nil }

// Document returns a copy of the stored document for channelID, or nil.
func (m *MockCollection) Document(channelID string) *Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[channelID]
	if !ok {
		return nil
	}
	return doc.clone()
}

// Put stores doc verbatim, bypassing merge semantics. Tests use it to seed
// corrupt or legacy records.
func (m *MockCollection) Put(doc *Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ChannelID]; !ok {
		m.order = append(m.order, doc.ChannelID)
	}
	m.docs[doc.ChannelID] = doc.clone()
}
