package ai

import (
	"context"
	"time"
)

const (
	TaskTypeDocument = "RETRIEVAL_DOCUMENT"
	TaskTypeQuery    = "RETRIEVAL_QUERY"
)

type ManagerConfig struct {
	// TimeoutSeconds bounds every provider call. Zero means no extra bound
	// beyond the caller's context.
	TimeoutSeconds int
	MaxInputChars  int
}

// Manager fronts the configured embedder chain and applies the call timeout.
type Manager struct {
	embedder IEmbedder
	cfg      ManagerConfig
}

func NewManager(embedder IEmbedder, cfg ManagerConfig) *Manager {
	return &Manager{embedder: embedder, cfg: cfg}
}

func (m *Manager) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if m.embedder == nil {
		return nil, ErrUnavailable
	}
	if m.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}
	return m.embedder.Embed(ctx, text, taskType)
}

func (m *Manager) EmbeddingModelName() string {
	if m.embedder == nil {
		return ""
	}
	return m.embedder.ModelName()
}

func (m *Manager) MaxInputChars() int {
	return m.cfg.MaxInputChars
}
