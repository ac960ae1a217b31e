package handler

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/chatvec/internal/model"
	"github.com/xxxsen/chatvec/internal/pkg/errcode"
	"github.com/xxxsen/chatvec/internal/pkg/response"
	"github.com/xxxsen/chatvec/internal/service"
)

type EmbeddingHandler struct {
	embeddings *service.EmbeddingService
}

func NewEmbeddingHandler(embeddings *service.EmbeddingService) *EmbeddingHandler {
	return &EmbeddingHandler{embeddings: embeddings}
}

type messageCreatedEvent struct {
	MessageID   string `json:"message_id"`
	ChatID      string `json:"chat_id"`
	SenderID    string `json:"sender_id"`
	Text        string `json:"text"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// MessageCreated ingests the message-created event from the message service.
// Retryable embedding failures are absorbed into the retry queue, so the event
// is acknowledged either way.
func (h *EmbeddingHandler) MessageCreated(c *gin.Context) {
	var evt messageCreatedEvent
	if err := c.ShouldBindJSON(&evt); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if evt.MessageID == "" || evt.ChatID == "" || evt.SenderID == "" {
		response.Error(c, errcode.ErrInvalid, "message_id, chat_id and sender_id are required")
		return
	}
	err := h.embeddings.HandleMessageCreated(c.Request.Context(), model.Message{
		ID:        evt.MessageID,
		ChatID:    evt.ChatID,
		SenderID:  evt.SenderID,
		Text:      evt.Text,
		Timestamp: evt.TimestampMs,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"accepted": true})
}

type generateEmbeddingRequest struct {
	MessageID string `json:"message_id"`
}

func (h *EmbeddingHandler) Generate(c *gin.Context) {
	var req generateEmbeddingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.MessageID == "" {
		response.Error(c, errcode.ErrInvalid, "message_id is required")
		return
	}
	result, err := h.embeddings.GenerateEmbedding(c.Request.Context(), req.MessageID)
	if err != nil {
		var clsErr *service.ClassifiedError
		if errors.As(err, &clsErr) {
			response.Error(c, errcode.ErrEmbeddingFailed, fmt.Sprintf("embedding failed: %s", clsErr.Cls.Type))
			return
		}
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"success":      true,
		"embedding_id": result.EmbeddingID,
		"metadata":     result.Metadata,
	})
}
