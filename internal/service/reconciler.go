package service

import (
	"context"
	"log"
	"time"

	"github.com/genericchat/backend/internal/domain"
	"github.com/genericchat/backend/internal/live"
)

// Reconciler detects and heals divergence between a conversation's two index
// copies and its message log: a copy missing from one participant's index is
// rebuilt, and previews that lag the log's tail are refreshed. The message
// log is the authority. This is the safety net for entries written by
// clients that predate transactional dual-writes.
type Reconciler struct {
	convs     domain.ConversationRepository
	msgs      domain.MessageRepository
	directory domain.DirectoryRepository
	broker    *live.Broker
	interval  time.Duration
}

func NewReconciler(
	convs domain.ConversationRepository,
	msgs domain.MessageRepository,
	directory domain.DirectoryRepository,
	broker *live.Broker,
	interval time.Duration,
) *Reconciler {
	return &Reconciler{
		convs:     convs,
		msgs:      msgs,
		directory: directory,
		broker:    broker,
		interval:  interval,
	}
}

// Run executes RunOnce on the configured interval until the context is done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if repaired, err := r.RunOnce(ctx); err != nil {
				log.Printf("reconciler: %v", err)
			} else if repaired > 0 {
				log.Printf("reconciler: repaired %d entries", repaired)
			}
		}
	}
}

// RunOnce scans every known conversation and repairs divergent index entries.
// It returns the number of entries repaired. Per-conversation failures are
// logged and skipped so one bad record cannot stall the pass.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	ids, err := r.convs.ConversationIDs(ctx)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, id := range ids {
		n, err := r.reconcileConversation(ctx, id)
		if err != nil {
			log.Printf("reconciler: conversation %s: %v", id, err)
			continue
		}
		repaired += n
	}
	return repaired, nil
}

func (r *Reconciler) reconcileConversation(ctx context.Context, conversationID string) (int, error) {
	latest, err := r.msgs.Latest(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if latest == nil {
		// Index entries without a log have no authority to repair from.
		return 0, nil
	}

	entries, err := r.convs.EntriesFor(ctx, conversationID)
	if err != nil {
		return 0, err
	}

	preview := domain.PreviewText(latest)
	repaired := 0

	for _, e := range entries {
		if !e.Entry.LatestMessage.Date.Before(latest.Date) {
			continue
		}
		entry := e.Entry
		entry.LatestMessage = domain.LatestMessage{
			Date:    latest.Date,
			Message: preview,
			IsRead:  e.Owner == latest.SenderKey,
		}
		if err := r.convs.PutEntry(ctx, e.Owner, &entry); err != nil {
			return repaired, err
		}
		r.broker.Publish(live.ConversationsTopic(e.Owner))
		repaired++
	}

	// A conversation with a single copy means the dual-write never completed
	// on the other side. Rebuild the missing copy from the surviving one.
	if len(entries) == 1 {
		survivor := entries[0]
		missingOwner := survivor.Entry.OtherUserKey

		name := string(survivor.Owner)
		if account, err := r.directory.AccountByKey(ctx, survivor.Owner); err == nil && account != nil {
			name = account.DisplayName()
		}

		entry := domain.Conversation{
			ID:           conversationID,
			OtherUserKey: survivor.Owner,
			Name:         name,
			LatestMessage: domain.LatestMessage{
				Date:    latest.Date,
				Message: preview,
				IsRead:  missingOwner == latest.SenderKey,
			},
		}
		if err := r.convs.PutEntry(ctx, missingOwner, &entry); err != nil {
			return repaired, err
		}
		r.broker.Publish(live.ConversationsTopic(missingOwner))
		repaired++
	}

	return repaired, nil
}
