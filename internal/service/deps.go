package service

import (
	"context"
	"fmt"

	"github.com/xxxsen/chatvec/internal/aierr"
	"github.com/xxxsen/chatvec/internal/model"
)

// Embedder is the slice of the embedding generator the services consume.
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// MessageStore is the message-side persistence surface.
type MessageStore interface {
	GetByID(ctx context.Context, messageID string) (*model.Message, error)
	UpdateSearchableMetadata(ctx context.Context, messageID string, meta model.SearchableMetadata) error
	IsChatMember(ctx context.Context, chatID, userID string) (bool, error)
	ListChatIDs(ctx context.Context, userID string) ([]string, error)
	ListParticipants(ctx context.Context, chatID string) ([]string, error)
	ListMissingEmbeddings(ctx context.Context, limit int) ([]model.Message, error)
}

// FailedRequestStore is the durable retry-queue surface.
type FailedRequestStore interface {
	Create(ctx context.Context, req *model.FailedAIRequest) error
	FindUnresolved(ctx context.Context, feature, resourceID string) (*model.FailedAIRequest, error)
	DueBatch(ctx context.Context, now int64, limit int) ([]model.FailedAIRequest, error)
	ApplyBatch(ctx context.Context, updates []model.FailedAIRequest) error
}

// ClassifiedError tags a provider/store failure with its classification so the
// handler layer can report the verdict alongside the error.
type ClassifiedError struct {
	Cls aierr.Classification
	Err error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Cls.Type, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}
