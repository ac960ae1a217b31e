package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/chatvec/internal/model"
	"github.com/xxxsen/chatvec/internal/pkg/errcode"
)

type apiResult struct {
	Code int                    `json:"code"`
	Msg  string                 `json:"msg"`
	Data map[string]interface{} `json:"data"`
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body interface{}) apiResult {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	var result apiResult
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	return result
}

func TestSearchRequiresAuth(t *testing.T) {
	router, _ := setupRouter(t)
	result := doJSON(t, router, http.MethodPost, "/api/v1/search", "", map[string]string{"query": "hello there", "requester_id": "u1"})
	require.Equal(t, errcode.ErrUnauthorized, result.Code)
}

func TestSearchRoundTrip(t *testing.T) {
	router, env := setupRouter(t)
	now := time.Now().UnixMilli()
	msg := model.Message{ID: "m1", ChatID: "chat-1", SenderID: "u2", Text: "urgent please review the design", Timestamp: now}
	env.seedMessage(msg, "u1", "u2")

	token := authToken(t, "u1")

	// Ingest through the event endpoint, then search for it.
	result := doJSON(t, router, http.MethodPost, "/api/v1/events/message-created", token, map[string]interface{}{
		"message_id":   msg.ID,
		"chat_id":      msg.ChatID,
		"sender_id":    msg.SenderID,
		"text":         msg.Text,
		"timestamp_ms": msg.Timestamp,
	})
	require.Equal(t, 0, result.Code)

	result = doJSON(t, router, http.MethodPost, "/api/v1/search", token, map[string]interface{}{
		"query":        "please review this design",
		"requester_id": "u1",
		"limit":        5,
	})
	require.Equal(t, 0, result.Code)
	results, ok := result.Data["results"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, results)
	first, ok := results[0].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "m1", first["message_id"])
}

func TestSearchValidationErrors(t *testing.T) {
	router, env := setupRouter(t)
	env.seedMessage(model.Message{ID: "m1", ChatID: "chat-1", SenderID: "u1", Text: "hello"}, "u1")
	token := authToken(t, "u1")

	result := doJSON(t, router, http.MethodPost, "/api/v1/search", token, map[string]interface{}{
		"query":        "hi",
		"requester_id": "u1",
	})
	require.Equal(t, errcode.ErrInvalid, result.Code)

	result = doJSON(t, router, http.MethodPost, "/api/v1/search", token, map[string]interface{}{
		"query":        "hello there",
		"requester_id": "u1",
		"limit":        100,
	})
	require.Equal(t, errcode.ErrInvalid, result.Code)

	// Requester must match the authenticated user.
	result = doJSON(t, router, http.MethodPost, "/api/v1/search", token, map[string]interface{}{
		"query":        "hello there",
		"requester_id": "u2",
	})
	require.Equal(t, errcode.ErrForbidden, result.Code)
}
