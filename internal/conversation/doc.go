// Package conversation resolves and updates chat conversations for the rest
// of the application.
//
// # Overview
//
// The Service sits between the HTTP handlers and the store. It exposes two
// operations:
//
//   - GetConversations(ctx, participant): conversations that apply to a user
//   - AppendConversationDelta(ctx, conversation): merge new participants and
//     messages into storage
//
// # Resolution
//
// When a participant is resolved:
//
//  1. Fetch every stored conversation whose users contain the participant id
//  2. If none, return one unsaved placeholder holding only the participant
//  3. If every match is a solo conversation (no other participant), return
//     the matches plus one unsaved placeholder
//  4. Otherwise return the matches unchanged
//
// Placeholder channel ids are "<participant id>-<uuid>", so a placeholder
// never collides with an existing solo conversation. Placeholders are
// persisted only when the caller appends to them.
package conversation
