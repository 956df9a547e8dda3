package service_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genericchat/backend/internal/domain"
	"github.com/genericchat/backend/internal/live"
	"github.com/genericchat/backend/internal/service"
	"github.com/genericchat/backend/internal/store/sqlite"
)

type fixture struct {
	db     *sql.DB
	broker *live.Broker
	convs  *sqlite.ConversationRepo
	msgs   *sqlite.MessageRepo
	dir    *sqlite.DirectoryRepo
	svc    *service.ConversationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(db))
	t.Cleanup(func() { db.Close() })

	broker := live.NewBroker()
	convs := sqlite.NewConversationRepo(db)
	msgs := sqlite.NewMessageRepo(db)
	dir := sqlite.NewDirectoryRepo(db)
	return &fixture{
		db:     db,
		broker: broker,
		convs:  convs,
		msgs:   msgs,
		dir:    dir,
		svc:    service.NewConversationService(convs, msgs, dir, broker),
	}
}

func (f *fixture) addAccount(t *testing.T, key domain.CanonicalKey, first, last string) {
	t.Helper()
	require.NoError(t, f.dir.CreateAccount(context.Background(), &domain.Account{
		Key:            key,
		FirstName:      first,
		LastName:       last,
		HashedPassword: "hashed",
	}))
}

func recvConversations(t *testing.T, ch <-chan []*domain.Conversation) []*domain.Conversation {
	t.Helper()
	select {
	case list, ok := <-ch:
		require.True(t, ok, "stream closed unexpectedly")
		return list
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for conversation update")
		return nil
	}
}

func recvMessages(t *testing.T, ch <-chan []*domain.Message) []*domain.Message {
	t.Helper()
	select {
	case list, ok := <-ch:
		require.True(t, ok, "stream closed unexpectedly")
		return list
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message update")
		return nil
	}
}

func TestCreateConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addAccount(t, "alice-example-com", "Alice", "Smith")
	f.addAccount(t, "bob-example-com", "Bob", "Jones")

	t.Run("DerivesIDFromFirstMessage", func(t *testing.T) {
		id, err := f.svc.CreateConversation(ctx, service.ConversationCreateInput{
			Initiator:    "alice-example-com",
			Counterpart:  "bob-example-com",
			Name:         "Bob Jones",
			FirstMessage: service.MessageInput{ID: "1", Content: "hi"},
		})
		require.NoError(t, err)
		assert.Equal(t, "conversation_1", id)
	})

	t.Run("EntriesAreAsymmetric", func(t *testing.T) {
		aliceConv, err := f.svc.Conversation(ctx, "alice-example-com", "conversation_1")
		require.NoError(t, err)
		require.NotNil(t, aliceConv)
		assert.Equal(t, domain.CanonicalKey("bob-example-com"), aliceConv.OtherUserKey)
		assert.Equal(t, "hi", aliceConv.LatestMessage.Message)

		// The counterpart's copy names the initiator, not the caller.
		bobConv, err := f.svc.Conversation(ctx, "bob-example-com", "conversation_1")
		require.NoError(t, err)
		require.NotNil(t, bobConv)
		assert.Equal(t, domain.CanonicalKey("alice-example-com"), bobConv.OtherUserKey)
		assert.Equal(t, "Alice Smith", bobConv.Name)
	})

	t.Run("UnknownCounterpartRejected", func(t *testing.T) {
		_, err := f.svc.CreateConversation(ctx, service.ConversationCreateInput{
			Initiator:    "alice-example-com",
			Counterpart:  "nobody-example-com",
			FirstMessage: service.MessageInput{Content: "hi"},
		})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("EmptyContentRejected", func(t *testing.T) {
		_, err := f.svc.CreateConversation(ctx, service.ConversationCreateInput{
			Initiator:    "alice-example-com",
			Counterpart:  "bob-example-com",
			FirstMessage: service.MessageInput{},
		})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("NonTextFirstMessageGetsPlaceholderPreview", func(t *testing.T) {
		id, err := f.svc.CreateConversation(ctx, service.ConversationCreateInput{
			Initiator:    "alice-example-com",
			Counterpart:  "bob-example-com",
			FirstMessage: service.MessageInput{ID: "2", Kind: domain.KindPhoto, Content: `{"url":"http://x/pic.png"}`},
		})
		require.NoError(t, err)

		conv, err := f.svc.Conversation(ctx, "alice-example-com", id)
		require.NoError(t, err)
		assert.Equal(t, "Photo", conv.LatestMessage.Message)
	})
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addAccount(t, "alice-example-com", "Alice", "Smith")
	f.addAccount(t, "bob-example-com", "Bob", "Jones")

	id, err := f.svc.CreateConversation(ctx, service.ConversationCreateInput{
		Initiator:    "alice-example-com",
		Counterpart:  "bob-example-com",
		FirstMessage: service.MessageInput{ID: "1", Content: "hi"},
	})
	require.NoError(t, err)

	msg, err := f.svc.SendMessage(ctx, id, "alice-example-com", "bob-example-com", service.MessageInput{Content: "hi back"})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "Bob Jones", msg.SenderName)

	list, err := f.svc.Messages(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "hi back", list[1].Content)

	aliceConv, err := f.svc.Conversation(ctx, "alice-example-com", id)
	require.NoError(t, err)
	assert.Equal(t, "hi back", aliceConv.LatestMessage.Message)
	assert.False(t, aliceConv.LatestMessage.IsRead)
}

func TestSubscribeConversations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addAccount(t, "alice-example-com", "Alice", "Smith")
	f.addAccount(t, "bob-example-com", "Bob", "Jones")

	stream, cancel, err := f.svc.SubscribeConversations(ctx, "bob-example-com")
	require.NoError(t, err)
	defer cancel()

	// Snapshot first, empty for a fresh account.
	snapshot := recvConversations(t, stream)
	assert.Empty(t, snapshot)

	// A conversation created by someone else shows up as an update.
	id, err := f.svc.CreateConversation(ctx, service.ConversationCreateInput{
		Initiator:    "alice-example-com",
		Counterpart:  "bob-example-com",
		FirstMessage: service.MessageInput{ID: "1", Content: "hi"},
	})
	require.NoError(t, err)

	update := recvConversations(t, stream)
	require.Len(t, update, 1)
	assert.Equal(t, id, update[0].ID)
	assert.False(t, update[0].LatestMessage.IsRead)

	// Marking read refreshes the stream again.
	require.NoError(t, f.svc.MarkRead(ctx, "bob-example-com", id))
	update = recvConversations(t, stream)
	require.Len(t, update, 1)
	assert.True(t, update[0].LatestMessage.IsRead)

	cancel()
	_, ok := <-stream
	assert.False(t, ok, "stream must close after cancel")
}

func TestSubscribeMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addAccount(t, "alice-example-com", "Alice", "Smith")
	f.addAccount(t, "bob-example-com", "Bob", "Jones")

	t.Run("EmptyLogEmitsNothingUntilFirstAppend", func(t *testing.T) {
		stream, cancel, err := f.svc.SubscribeMessages(ctx, "conversation_pending")
		require.NoError(t, err)
		defer cancel()

		select {
		case list := <-stream:
			t.Fatalf("unexpected emission for empty log: %v", list)
		case <-time.After(100 * time.Millisecond):
		}

		m := &domain.Message{ID: "m1", Kind: domain.KindText, Content: "first", SenderKey: "alice-example-com", SenderName: "Alice Smith"}
		require.NoError(t, f.svc.AppendMessage(ctx, "conversation_pending", m))

		list := recvMessages(t, stream)
		require.Len(t, list, 1)
		assert.Equal(t, "m1", list[0].ID)
	})

	t.Run("EmitsFullLogPerChange", func(t *testing.T) {
		id, err := f.svc.CreateConversation(ctx, service.ConversationCreateInput{
			Initiator:    "alice-example-com",
			Counterpart:  "bob-example-com",
			FirstMessage: service.MessageInput{ID: "1", Content: "one"},
		})
		require.NoError(t, err)

		stream, cancel, err := f.svc.SubscribeMessages(ctx, id)
		require.NoError(t, err)
		defer cancel()

		snapshot := recvMessages(t, stream)
		require.Len(t, snapshot, 1)

		_, err = f.svc.SendMessage(ctx, id, "alice-example-com", "bob-example-com", service.MessageInput{Content: "two"})
		require.NoError(t, err)

		update := recvMessages(t, stream)
		require.Len(t, update, 2)
		assert.Equal(t, "one", update[0].Content)
		assert.Equal(t, "two", update[1].Content)
	})
}

// snapshotRaceMessages runs an injected write the first time the snapshot
// query executes, reproducing a change that lands between the snapshot read
// and its delivery.
type snapshotRaceMessages struct {
	domain.MessageRepository
	inject func()
	once   sync.Once
}

func (r *snapshotRaceMessages) ListForConversation(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error) {
	list, err := r.MessageRepository.ListForConversation(ctx, conversationID, limit)
	r.once.Do(r.inject)
	return list, err
}

type snapshotRaceConversations struct {
	domain.ConversationRepository
	inject func()
	once   sync.Once
}

func (r *snapshotRaceConversations) ListForAccount(ctx context.Context, owner domain.CanonicalKey) ([]*domain.Conversation, error) {
	list, err := r.ConversationRepository.ListForAccount(ctx, owner)
	r.once.Do(r.inject)
	return list, err
}

func TestSubscribeMessagesCatchesAppendDuringSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := &domain.Message{ID: "m1", Kind: domain.KindText, Content: "one", SenderKey: "alice-example-com", SenderName: "Alice Smith"}
	require.NoError(t, f.msgs.Append(ctx, "conversation_1", first))

	// Between the snapshot query and its delivery, another writer appends
	// and publishes. The subscriber must still observe m2.
	raced := &snapshotRaceMessages{
		MessageRepository: f.msgs,
		inject: func() {
			m := &domain.Message{ID: "m2", Kind: domain.KindText, Content: "two", SenderKey: "bob-example-com", SenderName: "Bob Jones"}
			require.NoError(t, f.msgs.Append(ctx, "conversation_1", m))
			f.broker.Publish(live.MessagesTopic("conversation_1"))
		},
	}
	svc := service.NewConversationService(f.convs, raced, f.dir, f.broker)

	stream, cancel, err := svc.SubscribeMessages(ctx, "conversation_1")
	require.NoError(t, err)
	defer cancel()

	snapshot := recvMessages(t, stream)
	require.Len(t, snapshot, 1)
	assert.Equal(t, "m1", snapshot[0].ID)

	update := recvMessages(t, stream)
	require.Len(t, update, 2)
	assert.Equal(t, "m2", update[1].ID)
}

func TestSubscribeConversationsCatchesChangeDuringSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addAccount(t, "alice-example-com", "Alice", "Smith")
	f.addAccount(t, "bob-example-com", "Bob", "Jones")

	raced := &snapshotRaceConversations{
		ConversationRepository: f.convs,
		inject: func() {
			entry := &domain.Conversation{
				ID:           "conversation_1",
				OtherUserKey: "bob-example-com",
				Name:         "Bob Jones",
				LatestMessage: domain.LatestMessage{
					Date:    time.Now().UTC().Truncate(time.Millisecond),
					Message: "hi",
				},
			}
			require.NoError(t, f.convs.PutEntry(ctx, "alice-example-com", entry))
			f.broker.Publish(live.ConversationsTopic("alice-example-com"))
		},
	}
	svc := service.NewConversationService(raced, f.msgs, f.dir, f.broker)

	stream, cancel, err := svc.SubscribeConversations(ctx, "alice-example-com")
	require.NoError(t, err)
	defer cancel()

	snapshot := recvConversations(t, stream)
	assert.Empty(t, snapshot)

	update := recvConversations(t, stream)
	require.Len(t, update, 1)
	assert.Equal(t, "conversation_1", update[0].ID)
}
