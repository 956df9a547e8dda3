package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/genericchat/backend/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

// Append adds a message to a conversation's log, creating the log implicitly
// on first append. The log is append-only; there is no update or delete.
func (r *MessageRepo) Append(ctx context.Context, conversationID string, m *domain.Message) error {
	if err := appendMessageTx(ctx, r.db, conversationID, m); err != nil {
		return err
	}
	return nil
}

// execer covers both *sql.DB and *sql.Tx so the conversation repo can append
// inside its dual-write transactions.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func appendMessageTx(ctx context.Context, db execer, conversationID string, m *domain.Message) error {
	if m.ID == "" {
		return fmt.Errorf("message id is required: %w", domain.ErrInvalidInput)
	}
	if !m.Kind.Valid() {
		return fmt.Errorf("unknown content kind %q: %w", m.Kind, domain.ErrInvalidInput)
	}
	if m.Date.IsZero() {
		m.Date = nowUTC()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, id, type, content, date, sender_key, sender_name, is_read)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, conversationID, m.ID, string(m.Kind), m.Content, formatTime(m.Date), m.SenderKey, m.SenderName, m.IsRead)
	if err != nil {
		return storeErr("insert message", err)
	}
	return nil
}

// ListForConversation returns the log in append order. A positive limit keeps
// the newest messages, so a bounded read yields the tail of the log rather
// than its oldest entries. Rows with an unknown content kind or missing id
// are skipped; a log made entirely of such rows surfaces ErrParse.
func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error) {
	query := `
		SELECT id, type, content, date, sender_key, sender_name, is_read
		FROM messages
		WHERE conversation_id = ?
		ORDER BY seq ASC
	`
	args := []any{conversationID}
	if limit > 0 {
		query = `
			SELECT id, type, content, date, sender_key, sender_name, is_read
			FROM (
				SELECT seq, id, type, content, date, sender_key, sender_name, is_read
				FROM messages
				WHERE conversation_id = ?
				ORDER BY seq DESC
				LIMIT ?
			)
			ORDER BY seq ASC
		`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list messages", err)
	}
	defer rows.Close()

	var res []*domain.Message
	seen, skipped := 0, 0
	for rows.Next() {
		seen++
		m, err := scanMessage(rows)
		if err != nil {
			skipped++
			continue
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list messages", err)
	}
	if seen > 0 && skipped == seen {
		return nil, fmt.Errorf("message log %s: %w", conversationID, domain.ErrParse)
	}
	return res, nil
}

// Latest returns the most recently appended message, or nil for an empty log.
func (r *MessageRepo) Latest(ctx context.Context, conversationID string) (*domain.Message, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, type, content, date, sender_key, sender_name, is_read
		FROM messages
		WHERE conversation_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, conversationID)

	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("latest message", err)
	}
	return m, nil
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	m := &domain.Message{}
	var kind, date string
	if err := row.Scan(&m.ID, &kind, &m.Content, &date, &m.SenderKey, &m.SenderName, &m.IsRead); err != nil {
		return nil, err
	}
	m.Kind = domain.ContentKind(kind)
	if m.ID == "" || !m.Kind.Valid() {
		return nil, domain.ErrParse
	}
	var err error
	if m.Date, err = parseTime(date); err != nil {
		return nil, err
	}
	return m, nil
}
