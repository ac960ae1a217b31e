package vectorstore

import (
	"context"

	"github.com/xxxsen/chatvec/internal/model"
)

// Match is one nearest-neighbor candidate. RawScore is the store's native
// similarity in [0,1]; recency boosting happens upstream.
type Match struct {
	MessageID   string
	RawScore    float64
	ChatID      string
	SenderID    string
	Timestamp   int64
	TextSnippet string
}

// Filter optionally restricts a query to one or more chats.
type Filter struct {
	ChatIDs []string
}

// Store indexes message embeddings and answers similarity queries. Upsert is
// idempotent per message id: re-embedding replaces in place.
type Store interface {
	Upsert(ctx context.Context, rec *model.MessageEmbedding) error
	GetByID(ctx context.Context, messageID string) (*model.MessageEmbedding, error)
	Query(ctx context.Context, vector []float32, filter Filter, topK int) ([]Match, error)
}
