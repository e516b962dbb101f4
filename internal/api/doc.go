// Package api exposes the conversation service over HTTP.
//
// Two POST endpoints carry JSON bodies: /chat/get resolves the conversations
// for a user and /chat/post merges a conversation delta before doing the
// same. Each chat request is counted per path and client IP through an
// injected hitcount.Counter.
package api
