// ABOUTME: Core types for hint and complexity analysis conversations
// ABOUTME: Defines the Completer and SessionStore seams used by Service

package analysis

import (
	"context"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// NoResponse is returned when the model produced no text.
const NoResponse = "No response generated"

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is the stored history for one user and one browser tab.
type Session struct {
	Key       string    `json:"key"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionStore keeps conversation history between requests.
type SessionStore interface {
	// CreateOrGet returns the session for key, creating an empty one when
	// none exists. created reports which case happened.
	CreateOrGet(ctx context.Context, key string) (session *Session, created bool, err error)

	// Append adds turns to the session for key, creating it if it expired.
	Append(ctx context.Context, key string, msgs ...Message) error

	Close() error
}

// Completer sends a conversation to a language model and returns its reply.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Request is a hint or complexity analysis request.
type Request struct {
	// UserID is an account id when Authenticated is set, otherwise the
	// caller-chosen id of an anonymous client.
	UserID             string
	Authenticated      bool
	SessionID          string
	ProblemDescription string
	Language           string
	Code               string
}

// Validate checks that the fields needed to key and build a prompt are set.
func (r Request) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.SessionID, validation.Required),
		validation.Field(&r.Code, validation.Required),
	)
}

// Session key namespaces. An anonymous caller can pick any user id, so it
// must never land in an account's keyspace.
const (
	accountNamespace   = "u"
	anonymousNamespace = "anon"
)

// SessionKey scopes a tab session to its owner. The user id is length
// prefixed so no pair of ids maps to the same key.
func SessionKey(authenticated bool, userID, sessionID string) string {
	ns := anonymousNamespace
	if authenticated {
		ns = accountNamespace
	}
	return ns + ":" + strconv.Itoa(len(userID)) + ":" + userID + ":" + sessionID
}

// trimHistory keeps the newest max messages. max <= 0 keeps everything.
func trimHistory(msgs []Message, max int) []Message {
	if max <= 0 || len(msgs) <= max {
		return msgs
	}
	return append([]Message(nil), msgs[len(msgs)-max:]...)
}
