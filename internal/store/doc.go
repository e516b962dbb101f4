// Package store persists chat conversations in a document database.
//
// # Architecture
//
// ConversationStore owns the read and write paths and talks to a Collection:
//
//   - MongoCollection: MongoDB via mongo-driver v2 (production)
//   - SQLiteCollection: embedded SQLite via modernc.org/sqlite and sqlx
//   - MockCollection: in-memory, for tests
//
// # Data Model
//
//   - Conversation: thread keyed by ChannelID, with LastUpdate, Participants, Messages
//   - Participant: {ID, Name, Email}; unique by ID within a conversation
//   - Message: {SenderID, Date, Body}; Body is plain text in memory
//
// Persisted document shape:
//
//	{channel_id, last_update, users: [{id, name, email}],
//	 messages: [{sender_id, date, message: "Binary(0x2, ...)"}]}
//
// # Merge-Upsert
//
// Append is a single atomic mutation keyed on channel_id. It creates the
// document if absent, raises last_update to the incoming value, adds users
// whose id is not yet stored, and adds messages whose (sender_id, date,
// envelope) triple is not yet stored. Nothing is ever removed. Concurrent
// appends to the same channel interleave without lost updates.
//
// # Error Handling
//
//   - ErrInvalidConversation: empty channel_id or participants, rejected before I/O
//   - ErrStoreConnection: transport or server failure, joined with the driver error
//   - envelope.ErrFormat and friends: a stored message body failed to decode;
//     the whole fetch fails
//
// A fetch with no match returns an empty slice, not an error. No operation
// retries internally.
//
// # Testing
//
// Use NewMockCollection() for unit tests and NewSQLiteCollection on a
// t.TempDir() path for integration tests with real SQL.
package store
