package embedding

import (
	"context"
	"strings"

	"github.com/xxxsen/chatvec/internal/ai"
	appErr "github.com/xxxsen/chatvec/internal/pkg/errors"
)

// Generator turns message text into a fixed-dimension vector through the
// configured provider chain. Vectors are stored as the provider emits them; no
// normalization happens here, the vector store owns its similarity metric.
type Generator struct {
	manager *ai.Manager
}

func NewGenerator(manager *ai.Manager) *Generator {
	return &Generator{manager: manager}
}

func (g *Generator) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return g.embed(ctx, text, ai.TaskTypeDocument)
}

func (g *Generator) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return g.embed(ctx, text, ai.TaskTypeQuery)
}

func (g *Generator) embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, appErr.ErrInvalid
	}
	if max := g.manager.MaxInputChars(); max > 0 {
		if runes := []rune(trimmed); len(runes) > max {
			trimmed = string(runes[:max])
		}
	}
	return g.manager.Embed(ctx, trimmed, taskType)
}

func (g *Generator) ModelName() string {
	return g.manager.EmbeddingModelName()
}
