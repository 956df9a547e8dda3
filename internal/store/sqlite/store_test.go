package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/genericchat/backend/internal/domain"
	"github.com/genericchat/backend/internal/store/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := sqlite.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustCreateAccount(t *testing.T, db *sql.DB, key domain.CanonicalKey, first, last string) {
	t.Helper()
	repo := sqlite.NewDirectoryRepo(db)
	err := repo.CreateAccount(context.Background(), &domain.Account{
		Key:            key,
		FirstName:      first,
		LastName:       last,
		HashedPassword: "hashed",
	})
	require.NoError(t, err)
}

func textMessage(id string, sender domain.CanonicalKey, content string, at time.Time) domain.Message {
	return domain.Message{
		ID:         id,
		Kind:       domain.KindText,
		Content:    content,
		Date:       at,
		SenderKey:  sender,
		SenderName: "Sender Name",
	}
}
