package domain

import "time"

// CanonicalKey is the storage-path-safe form of an email address, produced by
// the identity package. Once computed it is the source of truth for an
// account, not the original email.
type CanonicalKey string

// Account represents a registered user, keyed by canonical key.
type Account struct {
	Key            CanonicalKey `db:"key" json:"email"`
	FirstName      string       `db:"first_name" json:"first_name"`
	LastName       string       `db:"last_name" json:"last_name"`
	HashedPassword string       `db:"hashed_password" json:"-"`
	AvatarPath     *string      `db:"avatar_path" json:"avatar_path,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
}

// DisplayName is the name shown in directory entries and conversation lists.
func (a *Account) DisplayName() string {
	return a.FirstName + " " + a.LastName
}

// DirectoryEntry is the denormalized search-index record for an account.
// The "email" field carries the canonical key, not the raw address.
type DirectoryEntry struct {
	Name string       `json:"name"`
	Key  CanonicalKey `json:"email"`
}

// LatestMessage is the denormalized preview of a conversation's most recent
// message, duplicated into each participant's index for fast list rendering.
type LatestMessage struct {
	Date    time.Time `json:"date"`
	Message string    `json:"message"`
	IsRead  bool      `json:"is_read"`
}

// Conversation is one participant's copy of a conversation summary. Each
// conversation exists as two asymmetric copies, one per participant, each
// naming the other party.
type Conversation struct {
	ID            string        `json:"id"`
	OtherUserKey  CanonicalKey  `json:"other_user_email"`
	Name          string        `json:"name"`
	LatestMessage LatestMessage `json:"latest_message"`
}

// OwnedEntry pairs a conversation entry with the account whose index holds it.
type OwnedEntry struct {
	Owner CanonicalKey
	Entry Conversation
}

// Message is a single entry in a conversation's append-only message log.
type Message struct {
	ID         string       `json:"id"`
	Kind       ContentKind  `json:"type"`
	Content    string       `json:"content"`
	Date       time.Time    `json:"date"`
	SenderKey  CanonicalKey `json:"sender_email"`
	SenderName string       `json:"name"`
	IsRead     bool         `json:"is_read"`
}

// ConversationCreate bundles the full three-site write of a new conversation:
// both participants' index entries plus the first message of the log.
type ConversationCreate struct {
	ID               string
	Initiator        CanonicalKey
	Counterpart      CanonicalKey
	InitiatorEntry   Conversation
	CounterpartEntry Conversation
	FirstMessage     Message
}
