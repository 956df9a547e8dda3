package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/genericchat/backend/internal/domain"
	"github.com/genericchat/backend/internal/live"
)

// ConversationPrefix prepends every conversation id, which is derived from
// the id of the conversation's first message.
const ConversationPrefix = "conversation_"

// ConversationService implements the conversation index and message log
// operations, including the live-subscription contract. All dual-writes go
// through transactional repository operations; the reconciler covers data
// written by older clients.
type ConversationService struct {
	convs     domain.ConversationRepository
	msgs      domain.MessageRepository
	directory domain.DirectoryRepository
	broker    *live.Broker
}

func NewConversationService(
	convs domain.ConversationRepository,
	msgs domain.MessageRepository,
	directory domain.DirectoryRepository,
	broker *live.Broker,
) *ConversationService {
	return &ConversationService{
		convs:     convs,
		msgs:      msgs,
		directory: directory,
		broker:    broker,
	}
}

// MessageInput is the caller-supplied part of a message. ID is optional; a
// random one is assigned when absent. Kind defaults to text.
type MessageInput struct {
	ID      string
	Kind    domain.ContentKind
	Content string
}

type ConversationCreateInput struct {
	Initiator    domain.CanonicalKey
	Counterpart  domain.CanonicalKey
	Name         string
	FirstMessage MessageInput
}

func buildMessage(sender *domain.Account, in MessageInput) (domain.Message, error) {
	kind := in.Kind
	if kind == "" {
		kind = domain.KindText
	}
	if !kind.Valid() {
		return domain.Message{}, fmt.Errorf("unknown content kind %q: %w", in.Kind, domain.ErrInvalidInput)
	}
	if in.Content == "" {
		return domain.Message{}, fmt.Errorf("message content cannot be empty: %w", domain.ErrInvalidInput)
	}
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	return domain.Message{
		ID:         id,
		Kind:       kind,
		Content:    in.Content,
		Date:       time.Now().UTC(),
		SenderKey:  sender.Key,
		SenderName: sender.DisplayName(),
	}, nil
}

// CreateConversation starts a conversation between two accounts with its
// first message. It writes both participants' asymmetric index entries and
// initializes the message log atomically, then notifies subscribers of both
// indexes. The returned id is "conversation_" + the first message's id.
func (s *ConversationService) CreateConversation(ctx context.Context, in ConversationCreateInput) (string, error) {
	initiator, err := s.directory.AccountByKey(ctx, in.Initiator)
	if err != nil {
		return "", fmt.Errorf("get initiator: %w", err)
	}
	if initiator == nil {
		return "", fmt.Errorf("initiator %s: %w", in.Initiator, domain.ErrNotFound)
	}
	counterpart, err := s.directory.AccountByKey(ctx, in.Counterpart)
	if err != nil {
		return "", fmt.Errorf("get counterpart: %w", err)
	}
	if counterpart == nil {
		return "", fmt.Errorf("counterpart %s: %w", in.Counterpart, domain.ErrNotFound)
	}

	msg, err := buildMessage(initiator, in.FirstMessage)
	if err != nil {
		return "", err
	}

	conversationID := ConversationPrefix + msg.ID
	preview := domain.LatestMessage{
		Date:    msg.Date,
		Message: domain.PreviewText(&msg),
		IsRead:  false,
	}

	name := in.Name
	if name == "" {
		name = counterpart.DisplayName()
	}

	err = s.convs.Create(ctx, domain.ConversationCreate{
		ID:          conversationID,
		Initiator:   initiator.Key,
		Counterpart: counterpart.Key,
		InitiatorEntry: domain.Conversation{
			ID:            conversationID,
			OtherUserKey:  counterpart.Key,
			Name:          name,
			LatestMessage: preview,
		},
		CounterpartEntry: domain.Conversation{
			ID:            conversationID,
			OtherUserKey:  initiator.Key,
			Name:          initiator.DisplayName(),
			LatestMessage: preview,
		},
		FirstMessage: msg,
	})
	if err != nil {
		return "", err
	}

	s.broker.Publish(live.ConversationsTopic(initiator.Key))
	s.broker.Publish(live.ConversationsTopic(counterpart.Key))
	s.broker.Publish(live.MessagesTopic(conversationID))
	return conversationID, nil
}

// SendMessage is the steady-state path for an existing conversation: it
// appends to the log and refreshes both participants' latest-message
// previews in one transaction, then notifies subscribers.
func (s *ConversationService) SendMessage(
	ctx context.Context,
	conversationID string,
	counterpart domain.CanonicalKey,
	sender domain.CanonicalKey,
	in MessageInput,
) (*domain.Message, error) {
	account, err := s.directory.AccountByKey(ctx, sender)
	if err != nil {
		return nil, fmt.Errorf("get sender: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("sender %s: %w", sender, domain.ErrNotFound)
	}

	msg, err := buildMessage(account, in)
	if err != nil {
		return nil, err
	}

	if err := s.convs.Send(ctx, conversationID, &msg, counterpart); err != nil {
		return nil, err
	}

	s.broker.Publish(live.MessagesTopic(conversationID))
	s.broker.Publish(live.ConversationsTopic(sender))
	s.broker.Publish(live.ConversationsTopic(counterpart))
	return &msg, nil
}

// AppendMessage appends to a conversation's log without touching either
// participant's preview. Subscribers of the log are still notified.
func (s *ConversationService) AppendMessage(ctx context.Context, conversationID string, m *domain.Message) error {
	if err := s.msgs.Append(ctx, conversationID, m); err != nil {
		return err
	}
	s.broker.Publish(live.MessagesTopic(conversationID))
	return nil
}

// Conversations returns a one-shot snapshot of an account's index, ordered
// by latest activity.
func (s *ConversationService) Conversations(ctx context.Context, owner domain.CanonicalKey) ([]*domain.Conversation, error) {
	return s.convs.ListForAccount(ctx, owner)
}

// Conversation returns one participant's copy of a conversation, or nil if
// the account has no entry for it.
func (s *ConversationService) Conversation(ctx context.Context, owner domain.CanonicalKey, conversationID string) (*domain.Conversation, error) {
	return s.convs.Get(ctx, owner, conversationID)
}

// MarkRead flips the read flag on the caller's own preview copy.
func (s *ConversationService) MarkRead(ctx context.Context, owner domain.CanonicalKey, conversationID string) error {
	if err := s.convs.MarkRead(ctx, owner, conversationID); err != nil {
		return err
	}
	s.broker.Publish(live.ConversationsTopic(owner))
	return nil
}

// Messages returns a one-shot snapshot of a conversation's log in append
// order.
func (s *ConversationService) Messages(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error) {
	return s.msgs.ListForConversation(ctx, conversationID, limit)
}

// SubscribeConversations returns a live view of an account's conversation
// index: the current snapshot immediately, then the full updated list after
// every change. The stream ends when the returned cancel func is called, the
// context is done, or a fetch fails.
func (s *ConversationService) SubscribeConversations(ctx context.Context, owner domain.CanonicalKey) (<-chan []*domain.Conversation, func(), error) {
	// Subscribe before reading the snapshot: a change landing in between
	// queues a signal and costs one redundant re-read, whereas the reverse
	// order would lose the change entirely.
	sub := s.broker.Subscribe(live.ConversationsTopic(owner))
	snapshot, err := s.convs.ListForAccount(ctx, owner)
	if err != nil {
		sub.Cancel()
		return nil, nil, err
	}

	ctx, stop := context.WithCancel(ctx)
	out := make(chan []*domain.Conversation)

	go func() {
		defer close(out)
		defer sub.Cancel()
		if !emit(ctx, out, snapshot) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.Updates():
				if !ok {
					return
				}
				list, err := s.convs.ListForAccount(ctx, owner)
				if err != nil {
					return
				}
				if !emit(ctx, out, list) {
					return
				}
			}
		}
	}()

	cancel := func() {
		stop()
		sub.Cancel()
	}
	return out, cancel, nil
}

// SubscribeMessages returns a live view of a conversation's message log. A
// conversation with no messages yet produces no emission until the first
// append; that is not an error.
func (s *ConversationService) SubscribeMessages(ctx context.Context, conversationID string) (<-chan []*domain.Message, func(), error) {
	// Same ordering as SubscribeConversations: register, then snapshot.
	sub := s.broker.Subscribe(live.MessagesTopic(conversationID))
	snapshot, err := s.msgs.ListForConversation(ctx, conversationID, 0)
	if err != nil {
		sub.Cancel()
		return nil, nil, err
	}

	ctx, stop := context.WithCancel(ctx)
	out := make(chan []*domain.Message)

	go func() {
		defer close(out)
		defer sub.Cancel()
		if len(snapshot) > 0 {
			if !emit(ctx, out, snapshot) {
				return
			}
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.Updates():
				if !ok {
					return
				}
				list, err := s.msgs.ListForConversation(ctx, conversationID, 0)
				if err != nil {
					return
				}
				if !emit(ctx, out, list) {
					return
				}
			}
		}
	}()

	cancel := func() {
		stop()
		sub.Cancel()
	}
	return out, cancel, nil
}

func emit[T any](ctx context.Context, out chan<- []T, list []T) bool {
	select {
	case out <- list:
		return true
	case <-ctx.Done():
		return false
	}
}
