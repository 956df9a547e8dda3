package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genericchat/backend/internal/domain"
	"github.com/genericchat/backend/internal/live"
	"github.com/genericchat/backend/internal/service"
	"github.com/genericchat/backend/internal/store/sqlite"
)

// asAccount injects an account the way AuthMiddleware would, letting handler
// tests skip token plumbing.
func asAccount(account *domain.Account) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), account)))
		})
	}
}

func TestHandleListMessages(t *testing.T) {
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))

	ctx := context.Background()
	dir := sqlite.NewDirectoryRepo(db)
	alice := &domain.Account{Key: "alice-example-com", FirstName: "Alice", LastName: "Smith", HashedPassword: "hashed"}
	require.NoError(t, dir.CreateAccount(ctx, alice))
	require.NoError(t, dir.CreateAccount(ctx, &domain.Account{
		Key: "bob-example-com", FirstName: "Bob", LastName: "Jones", HashedPassword: "hashed",
	}))

	svc := service.NewConversationService(
		sqlite.NewConversationRepo(db), sqlite.NewMessageRepo(db), dir, live.NewBroker())

	convID, err := svc.CreateConversation(ctx, service.ConversationCreateInput{
		Initiator:    alice.Key,
		Counterpart:  "bob-example-com",
		FirstMessage: service.MessageInput{ID: "m1", Content: "msg 1"},
	})
	require.NoError(t, err)
	for i := 2; i <= 5; i++ {
		_, err := svc.SendMessage(ctx, convID, "bob-example-com", alice.Key, service.MessageInput{
			ID:      fmt.Sprintf("m%d", i),
			Content: fmt.Sprintf("msg %d", i),
		})
		require.NoError(t, err)
	}

	const maxPage = 4
	router := chi.NewRouter()
	router.With(asAccount(alice)).
		Get("/conversations/{conversationID}/messages", handleListMessages(svc, maxPage))

	list := func(t *testing.T, path string) (int, []*domain.Message) {
		t.Helper()
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		var msgs []*domain.Message
		if rec.Code == http.StatusOK {
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
		}
		return rec.Code, msgs
	}

	t.Run("LimitReturnsNewestTail", func(t *testing.T) {
		code, msgs := list(t, "/conversations/"+convID+"/messages?limit=2")
		require.Equal(t, http.StatusOK, code)
		require.Len(t, msgs, 2)
		assert.Equal(t, "m4", msgs[0].ID)
		assert.Equal(t, "m5", msgs[1].ID)
	})

	t.Run("LimitAtPageCeilingAccepted", func(t *testing.T) {
		code, msgs := list(t, "/conversations/"+convID+"/messages?limit=4")
		require.Equal(t, http.StatusOK, code)
		require.Len(t, msgs, 4)
		assert.Equal(t, "m2", msgs[0].ID)
	})

	t.Run("OversizedLimitClampedToCeiling", func(t *testing.T) {
		code, msgs := list(t, "/conversations/"+convID+"/messages?limit=100")
		require.Equal(t, http.StatusOK, code)
		assert.Len(t, msgs, maxPage)
	})

	t.Run("NonParticipantForbidden", func(t *testing.T) {
		code, _ := list(t, "/conversations/conversation_other/messages")
		assert.Equal(t, http.StatusForbidden, code)
	})
}
