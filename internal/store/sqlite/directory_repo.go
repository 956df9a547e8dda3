package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/genericchat/backend/internal/domain"
)

type DirectoryRepo struct {
	db *sql.DB
}

func NewDirectoryRepo(db *sql.DB) *DirectoryRepo {
	return &DirectoryRepo{db: db}
}

var _ domain.DirectoryRepository = (*DirectoryRepo)(nil)

// CreateAccount writes the account record and its directory entry in one
// transaction. An already-registered key fails with ErrDuplicate, detected by
// the insert itself so two racing registrations of one key cannot both win.
func (r *DirectoryRepo) CreateAccount(ctx context.Context, a *domain.Account) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin tx", err)
	}
	defer tx.Rollback()

	if a.CreatedAt.IsZero() {
		a.CreatedAt = nowUTC()
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (key, first_name, last_name, hashed_password, avatar_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO NOTHING
	`, a.Key, a.FirstName, a.LastName, a.HashedPassword, a.AvatarPath, formatTime(a.CreatedAt))
	if err != nil {
		return storeErr("insert account", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return storeErr("insert account", err)
	} else if n == 0 {
		return fmt.Errorf("account %s: %w", a.Key, domain.ErrDuplicate)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO directory (key, name) VALUES (?, ?)
	`, a.Key, a.DisplayName()); err != nil {
		return storeErr("insert directory entry", err)
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

func (r *DirectoryRepo) AccountByKey(ctx context.Context, key domain.CanonicalKey) (*domain.Account, error) {
	query := `
		SELECT key, first_name, last_name, hashed_password, avatar_path, created_at
		FROM accounts
		WHERE key = ?
	`
	a := &domain.Account{}
	var createdAt string
	err := r.db.QueryRowContext(ctx, query, key).Scan(
		&a.Key,
		&a.FirstName,
		&a.LastName,
		&a.HashedPassword,
		&a.AvatarPath,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get account", err)
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *DirectoryRepo) AccountExists(ctx context.Context, key domain.CanonicalKey) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE key = ?`, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, storeErr("account exists", err)
	}
	return true, nil
}

func (r *DirectoryRepo) SetAvatar(ctx context.Context, key domain.CanonicalKey, path string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE accounts SET avatar_path = ? WHERE key = ?`, path, key)
	if err != nil {
		return storeErr("set avatar", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("set avatar", err)
	}
	if n == 0 {
		return fmt.Errorf("set avatar for %s: %w", key, domain.ErrNotFound)
	}
	return nil
}

// ListEntries returns the full denormalized index in registration order.
func (r *DirectoryRepo) ListEntries(ctx context.Context) ([]domain.DirectoryEntry, error) {
	return r.scanEntries(ctx, `SELECT name, key FROM directory ORDER BY rowid ASC`)
}

// SearchEntries returns index entries whose display name or key contains the
// query, case-insensitively.
func (r *DirectoryRepo) SearchEntries(ctx context.Context, query string) ([]domain.DirectoryEntry, error) {
	pattern := "%" + query + "%"
	return r.scanEntries(ctx, `
		SELECT name, key FROM directory
		WHERE name LIKE ? COLLATE NOCASE OR key LIKE ? COLLATE NOCASE
		ORDER BY rowid ASC
	`, pattern, pattern)
}

func (r *DirectoryRepo) scanEntries(ctx context.Context, query string, args ...any) ([]domain.DirectoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list directory", err)
	}
	defer rows.Close()

	entries := []domain.DirectoryEntry{}
	for rows.Next() {
		var e domain.DirectoryEntry
		if err := rows.Scan(&e.Name, &e.Key); err != nil {
			return nil, storeErr("scan directory entry", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list directory", err)
	}
	return entries, nil
}
