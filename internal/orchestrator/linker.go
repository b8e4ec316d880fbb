package orchestrator

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/konsul-ai/reply-engine/internal/model"
	"github.com/konsul-ai/reply-engine/internal/store"
)

// Linker lazily establishes the conversation → contact link. EnsureContact
// is idempotent: concurrent first-time calls for one conversation collapse
// into a single contact creation, and the store-level link is first-writer-
// wins, so retries always converge on one contact id.
type Linker struct {
	conversations store.ConversationStore
	contacts      store.ContactStore
	group         singleflight.Group
}

// NewLinker creates a linker.
func NewLinker(conversations store.ConversationStore, contacts store.ContactStore) *Linker {
	return &Linker{conversations: conversations, contacts: contacts}
}

// EnsureContact returns the conversation's contact id, creating and linking
// a contact from the conversation's denormalized visitor fields on first
// need.
func (l *Linker) EnsureContact(ctx context.Context, conv *model.Conversation) (string, error) {
	if conv.ContactID != nil {
		return *conv.ContactID, nil
	}

	id, err, _ := l.group.Do(conv.ID, func() (any, error) {
		// Re-read inside the flight: another request may have linked
		// while we waited.
		fresh, err := l.conversations.GetConversation(ctx, conv.ID)
		if err != nil {
			return "", err
		}
		if fresh.ContactID != nil {
			return *fresh.ContactID, nil
		}

		contact := &model.Contact{
			WorkspaceID: conv.WorkspaceID,
			Name:        conv.ContactName,
			Email:       conv.ContactEmail,
			ExternalID:  conv.ExternalID,
		}
		if err := l.contacts.CreateContact(ctx, contact); err != nil {
			return "", err
		}

		// First writer wins; on a lost race the winner's id comes back.
		return l.conversations.LinkContact(ctx, conv.ID, contact.ID)
	})
	if err != nil {
		return "", err
	}

	contactID := id.(string)
	conv.ContactID = &contactID
	return contactID, nil
}
