// Package conversation stores titled conversations and their messages.
// Deleting a conversation never touches audit records.
package conversation

import (
	"context"
	"errors"

	"github.com/pario-ai/parley/pkg/models"
)

// ErrNotFound is returned when a conversation id does not exist.
var ErrNotFound = errors.New("conversation not found")

// Store persists conversations.
type Store interface {
	// Create inserts an empty conversation with the given title.
	Create(ctx context.Context, title string) (*models.Conversation, error)
	// List returns every conversation, oldest first, with messages.
	List(ctx context.Context) ([]models.Conversation, error)
	// Get returns a conversation with its messages in order.
	Get(ctx context.Context, id string) (*models.Conversation, error)
	// UpdateTitle renames a conversation.
	UpdateTitle(ctx context.Context, id, title string) (*models.Conversation, error)
	// Delete removes a conversation and its messages.
	Delete(ctx context.Context, id string) error
	// AppendMessages adds messages in order and bumps updated_at.
	AppendMessages(ctx context.Context, id string, msgs ...models.Message) (*models.Conversation, error)
	// Close releases resources.
	Close() error
}
