package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/chatvec/internal/aierr"
	"github.com/xxxsen/chatvec/internal/embedding"
	"github.com/xxxsen/chatvec/internal/model"
	appErr "github.com/xxxsen/chatvec/internal/pkg/errors"
	"github.com/xxxsen/chatvec/internal/pkg/privacy"
	"github.com/xxxsen/chatvec/internal/vectorstore"
)

const snippetMaxChars = 200

type GenerateResult struct {
	EmbeddingID string
	Metadata    model.SearchableMetadata
}

// EmbeddingService runs the per-message pipeline: embed text, upsert the
// vector, write derived metadata back. Transient provider failures are
// absorbed into the retry queue; the triggering event never sees them.
type EmbeddingService struct {
	embedder Embedder
	store    vectorstore.Store
	messages MessageStore
	failed   FailedRequestStore
	now      func() time.Time
}

func NewEmbeddingService(embedder Embedder, store vectorstore.Store, messages MessageStore, failed FailedRequestStore) *EmbeddingService {
	return &EmbeddingService{
		embedder: embedder,
		store:    store,
		messages: messages,
		failed:   failed,
		now:      time.Now,
	}
}

// HandleMessageCreated drives the pipeline for a freshly created message.
// Retryable failures are queued and the call still succeeds; non-retryable
// ones are logged and the message stays without an embedding.
func (s *EmbeddingService) HandleMessageCreated(ctx context.Context, msg model.Message) error {
	logger := logutil.GetLogger(ctx).With(zap.String("message_id", msg.ID), zap.String("chat_id", msg.ChatID))
	_, err := s.processMessage(ctx, msg)
	if err == nil {
		logger.Info("message embedded")
		return nil
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		// Caller went away, not a failure. Nothing to queue.
		return err
	}
	if errors.Is(err, appErr.ErrInvalid) {
		logger.Info("message not embeddable, skipped")
		return nil
	}
	cls := aierr.Classify(err)
	if !cls.Retryable {
		logger.Error("embedding failed permanently",
			zap.String("error_type", string(cls.Type)),
			zap.Error(err))
		return nil
	}
	if qErr := s.enqueueFailure(ctx, msg.ID, cls, err); qErr != nil {
		logger.Error("enqueue failed request", zap.Error(qErr))
		return qErr
	}
	logger.Warn("embedding failed, queued for retry",
		zap.String("error_type", string(cls.Type)),
		zap.Error(err))
	return nil
}

// GenerateEmbedding is the synchronous RPC path: the caller asked explicitly,
// so failures surface with their classification. Retryable ones are still
// queued so the embedding eventually lands.
func (s *EmbeddingService) GenerateEmbedding(ctx context.Context, messageID string) (*GenerateResult, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	meta, err := s.processMessage(ctx, *msg)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, appErr.ErrInvalid) {
			cls := aierr.Classify(err)
			if cls.Retryable {
				if qErr := s.enqueueFailure(ctx, msg.ID, cls, err); qErr != nil {
					logutil.GetLogger(ctx).Error("enqueue failed request", zap.Error(qErr))
				}
			}
			return nil, &ClassifiedError{Cls: cls, Err: err}
		}
		return nil, err
	}
	return &GenerateResult{EmbeddingID: msg.ID, Metadata: meta}, nil
}

// RetryEmbedding re-drives the pipeline for a queued failure. Used by the
// retry sweep; errors propagate so the sweep can do its bookkeeping.
func (s *EmbeddingService) RetryEmbedding(ctx context.Context, messageID string) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if appErr.IsNotFound(err) {
			// Message deleted after enqueue, nothing left to embed.
			logutil.GetLogger(ctx).Info("message gone, retry resolved", zap.String("message_id", messageID))
			return nil
		}
		return err
	}
	_, err = s.processMessage(ctx, *msg)
	return err
}

// ProcessMissing embeds messages the pipeline never reached (crash, deploy
// gap). Failures are absorbed the same way the event path absorbs them.
func (s *EmbeddingService) ProcessMissing(ctx context.Context, limit int) error {
	msgs, err := s.messages.ListMissingEmbeddings(ctx, limit)
	if err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx)
	for i := range msgs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.HandleMessageCreated(ctx, msgs[i]); err != nil {
			logger.Warn("backfill embedding failed", zap.String("message_id", msgs[i].ID), zap.Error(err))
		}
	}
	if len(msgs) > 0 {
		logger.Info("backfill pass finished", zap.Int("messages", len(msgs)))
	}
	return nil
}

func (s *EmbeddingService) processMessage(ctx context.Context, msg model.Message) (model.SearchableMetadata, error) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return model.SearchableMetadata{}, appErr.ErrInvalid
	}
	participants, err := s.messages.ListParticipants(ctx, msg.ChatID)
	if err != nil {
		// Metadata is an enhancement, participant lookup failure is not fatal.
		participants = nil
	}
	meta := embedding.DeriveMetadata(text, embedding.ChatContext{
		ChatID:       msg.ChatID,
		Participants: participants,
	})
	hash := privacy.HashText(text)
	if existing, err := s.store.GetByID(ctx, msg.ID); err == nil && existing.ContentHash == hash {
		// Text unchanged since the last embed, keep the stored vector.
		if err := s.messages.UpdateSearchableMetadata(ctx, msg.ID, meta); err != nil {
			logutil.GetLogger(ctx).Warn("metadata write-back failed", zap.String("message_id", msg.ID), zap.Error(err))
		}
		return meta, nil
	}
	vec, err := s.embedder.EmbedDocument(ctx, text)
	if err != nil {
		return model.SearchableMetadata{}, err
	}
	rec := &model.MessageEmbedding{
		MessageID:   msg.ID,
		ChatID:      msg.ChatID,
		SenderID:    msg.SenderID,
		Timestamp:   msg.Timestamp,
		TextSnippet: snippet(text),
		Embedding:   vec,
		ContentHash: hash,
		Mtime:       s.now().UnixMilli(),
	}
	if err := s.store.Upsert(ctx, rec); err != nil {
		return model.SearchableMetadata{}, err
	}
	if err := s.messages.UpdateSearchableMetadata(ctx, msg.ID, meta); err != nil {
		logutil.GetLogger(ctx).Warn("metadata write-back failed", zap.String("message_id", msg.ID), zap.Error(err))
	}
	return meta, nil
}

func (s *EmbeddingService) enqueueFailure(ctx context.Context, messageID string, cls aierr.Classification, cause error) error {
	existing, err := s.failed.FindUnresolved(ctx, model.FeatureEmbeddingGeneration, messageID)
	if err == nil && existing != nil {
		// Already queued, the sweep owns it from here.
		return nil
	}
	if err != nil && !appErr.IsNotFound(err) {
		return err
	}
	now := s.now().UnixMilli()
	req := &model.FailedAIRequest{
		ID:           uuid.NewString(),
		Feature:      model.FeatureEmbeddingGeneration,
		ResourceID:   messageID,
		ErrorType:    string(cls.Type),
		ErrorMessage: cause.Error(),
		StatusCode:   cls.StatusCode,
		RetryCount:   0,
		NextRetryAt:  now + cls.RetryDelaySeconds*1000,
		Ctime:        now,
		Mtime:        now,
	}
	if err := s.failed.Create(ctx, req); err != nil {
		if errors.Is(err, appErr.ErrConflict) {
			// Lost a concurrent enqueue race, the winner's record is enough.
			return nil
		}
		return err
	}
	return nil
}

func snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetMaxChars {
		return text
	}
	return string(runes[:snippetMaxChars])
}
