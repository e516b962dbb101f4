// ABOUTME: Tests for the SQLite collection specifics
// ABOUTME: Covers file creation, durability across reopen, in-memory use, and raw-row corruption

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/envelope"
)

// setupTestCollection creates a temporary SQLite collection for testing.
func setupTestCollection(t *testing.T) *SQLiteCollection {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	coll, err := NewSQLiteCollection(dbPath, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		coll.Close()
	})

	return coll
}

func TestNewSQLiteCollection(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	coll, err := NewSQLiteCollection(dbPath, nil)
	require.NoError(t, err)
	defer coll.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file was not created")
	assert.Equal(t, "sqlite", coll.Name())
	assert.NoError(t, coll.Ping(context.Background()))
}

func TestNewSQLiteCollection_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	coll, err := NewSQLiteCollection(dbPath, nil)
	require.NoError(t, err)
	defer coll.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file was not created in nested directory")
}

func TestSQLiteCollection_InMemory(t *testing.T) {
	coll, err := NewSQLiteCollection(":memory:", nil)
	require.NoError(t, err)
	defer coll.Close()

	s := NewConversationStore(coll, nil)
	ctx := context.Background()

	conv := NewConversation("mem")
	conv.AddParticipant(Participant{ID: "1"})
	require.NoError(t, s.Append(ctx, conv))

	convs, err := s.FetchForParticipant(ctx, "1")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "mem", convs[0].ChannelID)
}

func TestSQLiteCollection_SurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "chat.db")
	ctx := context.Background()

	coll, err := NewSQLiteCollection(dbPath, nil)
	require.NoError(t, err)

	conv := NewConversation("1-2")
	conv.AddParticipant(Participant{ID: "1", Name: "User 1"})
	conv.AddParticipant(Participant{ID: "2", Name: "User 2"})
	conv.AddMessage(Message{SenderID: "1", Date: "T1", Body: "persisted"})
	require.NoError(t, NewConversationStore(coll, nil).Append(ctx, conv))
	require.NoError(t, coll.Close())

	reopened, err := NewSQLiteCollection(dbPath, nil)
	require.NoError(t, err)
	defer reopened.Close()

	convs, err := NewConversationStore(reopened, nil).FetchForParticipant(ctx, "2")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, []Participant{{ID: "1", Name: "User 1"}, {ID: "2", Name: "User 2"}}, convs[0].Participants)
	require.Len(t, convs[0].Messages, 1)
	assert.Equal(t, "persisted", convs[0].Messages[0].Body)
}

func TestSQLiteCollection_StoresEnvelopes(t *testing.T) {
	coll := setupTestCollection(t)
	ctx := context.Background()

	conv := NewConversation("chan")
	conv.AddParticipant(Participant{ID: "1"})
	conv.AddMessage(Message{SenderID: "1", Date: "T1", Body: "hello"})
	require.NoError(t, NewConversationStore(coll, nil).Append(ctx, conv))

	var raw string
	require.NoError(t, coll.db.Get(&raw, `SELECT message FROM conversation_messages WHERE channel_id = 'chan'`))
	assert.True(t, envelope.IsEnvelope(raw))

	text, err := envelope.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestSQLiteCollection_CorruptMessageFailsFetch(t *testing.T) {
	coll := setupTestCollection(t)
	ctx := context.Background()

	_, err := coll.db.Exec(`INSERT INTO conversations (channel_id, last_update) VALUES ('chan', 'x')`)
	require.NoError(t, err)
	_, err = coll.db.Exec(`INSERT INTO conversation_users (channel_id, user_id, name, email) VALUES ('chan', '1', '', '')`)
	require.NoError(t, err)
	_, err = coll.db.Exec(`INSERT INTO conversation_messages (channel_id, sender_id, date, message) VALUES ('chan', '1', 'T1', 'Binary(0x2, @@@)')`)
	require.NoError(t, err)

	s := NewConversationStore(coll, nil)
	_, err = s.FetchForParticipant(ctx, "1")
	assert.ErrorIs(t, err, envelope.ErrBase64)
}

func TestSQLiteCollection_ClosedReportsConnectionError(t *testing.T) {
	coll, err := NewSQLiteCollection(filepath.Join(t.TempDir(), "closed.db"), nil)
	require.NoError(t, err)
	require.NoError(t, coll.Close())

	err = coll.Ping(context.Background())
	assert.ErrorIs(t, err, ErrStoreConnection)
}
