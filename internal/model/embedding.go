package model

type MessageEmbedding struct {
	MessageID   string    `json:"message_id"`
	ChatID      string    `json:"chat_id"`
	SenderID    string    `json:"sender_id"`
	Timestamp   int64     `json:"timestamp_ms"`
	TextSnippet string    `json:"text_snippet"`
	Embedding   []float32 `json:"embedding"`
	ContentHash string    `json:"content_hash"`
	Mtime       int64     `json:"mtime"`
}
