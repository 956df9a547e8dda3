package domain

import (
	"context"
)

// DirectoryRepository defines persistence operations for accounts and the
// denormalized search index. CreateAccount writes both in one transaction so
// an index entry exists if and only if the account does.
type DirectoryRepository interface {
	// CreateAccount rejects an already-registered key with ErrDuplicate, so
	// concurrent registrations of the same key resolve to a single winner.
	CreateAccount(ctx context.Context, a *Account) error
	AccountByKey(ctx context.Context, key CanonicalKey) (*Account, error)
	AccountExists(ctx context.Context, key CanonicalKey) (bool, error)
	SetAvatar(ctx context.Context, key CanonicalKey, path string) error
	ListEntries(ctx context.Context) ([]DirectoryEntry, error)
	SearchEntries(ctx context.Context, query string) ([]DirectoryEntry, error)
}

// ConversationRepository defines persistence operations for per-account
// conversation indexes. The dual-write ops (Create, Send) are transactional:
// either both participants' copies land or neither does.
type ConversationRepository interface {
	Create(ctx context.Context, in ConversationCreate) error
	// Send appends a message and refreshes both participants' latest-message
	// previews in one transaction.
	Send(ctx context.Context, conversationID string, m *Message, counterpart CanonicalKey) error
	ListForAccount(ctx context.Context, owner CanonicalKey) ([]*Conversation, error)
	Get(ctx context.Context, owner CanonicalKey, conversationID string) (*Conversation, error)
	MarkRead(ctx context.Context, owner CanonicalKey, conversationID string) error

	// Reconciliation support.
	ConversationIDs(ctx context.Context) ([]string, error)
	EntriesFor(ctx context.Context, conversationID string) ([]OwnedEntry, error)
	PutEntry(ctx context.Context, owner CanonicalKey, entry *Conversation) error
}

// MessageRepository defines persistence operations for per-conversation
// append-only message logs.
type MessageRepository interface {
	Append(ctx context.Context, conversationID string, m *Message) error
	// ListForConversation returns messages in append order. A positive limit
	// keeps the newest messages; limit <= 0 means no limit.
	ListForConversation(ctx context.Context, conversationID string, limit int) ([]*Message, error)
	Latest(ctx context.Context, conversationID string) (*Message, error)
}
