package model

type SearchResult struct {
	MessageID string  `json:"message_id"`
	Score     float64 `json:"score"`
	Text      string  `json:"text"`
	ChatID    string  `json:"chat_id"`
	Timestamp int64   `json:"timestamp_ms"`
}
