package job

import (
	"context"

	"github.com/xxxsen/chatvec/internal/service"
)

type EmbeddingBackfillJob struct {
	embeddings *service.EmbeddingService
	batchSize  int
}

func NewEmbeddingBackfillJob(embeddings *service.EmbeddingService, batchSize int) *EmbeddingBackfillJob {
	return &EmbeddingBackfillJob{embeddings: embeddings, batchSize: batchSize}
}

func (j *EmbeddingBackfillJob) Name() string {
	return "embedding_backfill"
}

func (j *EmbeddingBackfillJob) Run(ctx context.Context) error {
	if j.embeddings == nil {
		return nil
	}
	return j.embeddings.ProcessMissing(ctx, j.batchSize)
}
