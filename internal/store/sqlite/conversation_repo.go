package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/genericchat/backend/internal/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

// Create performs the three-site write of a new conversation (both index
// entries plus the first log message) in a single transaction, so a crash can
// never leave one participant's list updated and the other's not.
func (r *ConversationRepo) Create(ctx context.Context, in domain.ConversationCreate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin tx", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, `
		SELECT 1 FROM conversation_entries WHERE conversation_id = ? LIMIT 1
	`, in.ID).Scan(&one)
	if err == nil {
		return fmt.Errorf("conversation %s: %w", in.ID, domain.ErrDuplicate)
	}
	if err != sql.ErrNoRows {
		return storeErr("check conversation", err)
	}

	entries := []domain.OwnedEntry{
		{Owner: in.Initiator, Entry: in.InitiatorEntry},
		{Owner: in.Counterpart, Entry: in.CounterpartEntry},
	}
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_entries
				(owner_key, conversation_id, other_key, name, latest_date, latest_message, latest_is_read)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, e.Owner, e.Entry.ID, e.Entry.OtherUserKey, e.Entry.Name,
			formatTime(e.Entry.LatestMessage.Date), e.Entry.LatestMessage.Message, e.Entry.LatestMessage.IsRead); err != nil {
			return storeErr("insert conversation entry", err)
		}
	}

	if err := appendMessageTx(ctx, tx, in.ID, &in.FirstMessage); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

// Send appends a message to the log and refreshes both participants'
// latest-message previews in one transaction. The sender's copy keeps
// is_read true (they wrote it); the counterpart's flips to unread.
func (r *ConversationRepo) Send(ctx context.Context, conversationID string, m *domain.Message, counterpart domain.CanonicalKey) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin tx", err)
	}
	defer tx.Rollback()

	if err := appendMessageTx(ctx, tx, conversationID, m); err != nil {
		return err
	}

	preview := domain.PreviewText(m)
	date := formatTime(m.Date)

	for _, update := range []struct {
		owner  domain.CanonicalKey
		isRead bool
	}{
		{m.SenderKey, true},
		{counterpart, false},
	} {
		res, err := tx.ExecContext(ctx, `
			UPDATE conversation_entries
			SET latest_date = ?, latest_message = ?, latest_is_read = ?
			WHERE owner_key = ? AND conversation_id = ?
		`, date, preview, update.isRead, update.owner, conversationID)
		if err != nil {
			return storeErr("update preview", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return storeErr("update preview", err)
		}
		if n == 0 && update.owner == m.SenderKey {
			// The counterpart's missing copy is repaired by the reconciler,
			// but a sender without an entry is not in this conversation.
			return fmt.Errorf("sender %s has no entry for %s: %w", m.SenderKey, conversationID, domain.ErrNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

func (r *ConversationRepo) ListForAccount(ctx context.Context, owner domain.CanonicalKey) ([]*domain.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT conversation_id, other_key, name, latest_date, latest_message, latest_is_read
		FROM conversation_entries
		WHERE owner_key = ?
		ORDER BY latest_date DESC
	`, owner)
	if err != nil {
		return nil, storeErr("list conversations", err)
	}
	defer rows.Close()

	var res []*domain.Conversation
	seen, skipped := 0, 0
	for rows.Next() {
		seen++
		c, err := scanConversation(rows)
		if err != nil {
			// Malformed entries are skipped, not fatal.
			skipped++
			continue
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list conversations", err)
	}
	if seen > 0 && skipped == seen {
		return nil, fmt.Errorf("conversation index for %s: %w", owner, domain.ErrParse)
	}
	return res, nil
}

func (r *ConversationRepo) Get(ctx context.Context, owner domain.CanonicalKey, conversationID string) (*domain.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT conversation_id, other_key, name, latest_date, latest_message, latest_is_read
		FROM conversation_entries
		WHERE owner_key = ? AND conversation_id = ?
	`, owner, conversationID)

	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if errors.Is(err, domain.ErrParse) {
		return nil, fmt.Errorf("conversation %s for %s: %w", conversationID, owner, domain.ErrParse)
	}
	if err != nil {
		return nil, storeErr("get conversation", err)
	}
	return c, nil
}

func (r *ConversationRepo) MarkRead(ctx context.Context, owner domain.CanonicalKey, conversationID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversation_entries
		SET latest_is_read = 1
		WHERE owner_key = ? AND conversation_id = ?
	`, owner, conversationID)
	if err != nil {
		return storeErr("mark read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("mark read", err)
	}
	if n == 0 {
		return fmt.Errorf("conversation %s for %s: %w", conversationID, owner, domain.ErrNotFound)
	}
	return nil
}

// ConversationIDs returns every conversation known to either the index or the
// message log, for the reconciler's divergence scan.
func (r *ConversationRepo) ConversationIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT conversation_id FROM conversation_entries
		UNION
		SELECT conversation_id FROM messages
	`)
	if err != nil {
		return nil, storeErr("list conversation ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("scan conversation id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ConversationRepo) EntriesFor(ctx context.Context, conversationID string) ([]domain.OwnedEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT owner_key, conversation_id, other_key, name, latest_date, latest_message, latest_is_read
		FROM conversation_entries
		WHERE conversation_id = ?
	`, conversationID)
	if err != nil {
		return nil, storeErr("entries for conversation", err)
	}
	defer rows.Close()

	var res []domain.OwnedEntry
	for rows.Next() {
		var (
			e      domain.OwnedEntry
			date   string
			isRead bool
		)
		if err := rows.Scan(&e.Owner, &e.Entry.ID, &e.Entry.OtherUserKey, &e.Entry.Name,
			&date, &e.Entry.LatestMessage.Message, &isRead); err != nil {
			return nil, storeErr("scan entry", err)
		}
		e.Entry.LatestMessage.IsRead = isRead
		if e.Entry.LatestMessage.Date, err = parseTime(date); err != nil {
			continue
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// PutEntry inserts or replaces one participant's conversation entry. Used by
// the reconciler to repair divergent copies.
func (r *ConversationRepo) PutEntry(ctx context.Context, owner domain.CanonicalKey, entry *domain.Conversation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversation_entries
			(owner_key, conversation_id, other_key, name, latest_date, latest_message, latest_is_read)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_key, conversation_id) DO UPDATE SET
			latest_date = excluded.latest_date,
			latest_message = excluded.latest_message,
			latest_is_read = excluded.latest_is_read
	`, owner, entry.ID, entry.OtherUserKey, entry.Name,
		formatTime(entry.LatestMessage.Date), entry.LatestMessage.Message, entry.LatestMessage.IsRead)
	if err != nil {
		return storeErr("put entry", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	var date string
	if err := row.Scan(&c.ID, &c.OtherUserKey, &c.Name,
		&date, &c.LatestMessage.Message, &c.LatestMessage.IsRead); err != nil {
		return nil, err
	}
	if c.ID == "" || c.OtherUserKey == "" {
		return nil, domain.ErrParse
	}
	var err error
	if c.LatestMessage.Date, err = parseTime(date); err != nil {
		return nil, err
	}
	return c, nil
}
