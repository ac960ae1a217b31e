package model

// Message is the slice of the chat message record this subsystem reads. Chat
// and message CRUD live elsewhere; only these fields matter here.
type Message struct {
	ID        string `json:"id"`
	ChatID    string `json:"chat_id"`
	SenderID  string `json:"sender_id"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp_ms"`
}

// SearchableMetadata is derived from message text at embedding time and written
// back onto the message record. Best effort only.
type SearchableMetadata struct {
	Keywords      []string `json:"keywords"`
	Participants  []string `json:"participants"`
	DecisionMade  bool     `json:"decision_made"`
	HasActionItem bool     `json:"has_action_item"`
}
