package model

const (
	FeatureEmbeddingGeneration = "embedding_generation"
	FeatureSemanticSearch      = "semantic_search"
)

// FailedAIRequest is one durable record per failed AI operation attempt-chain.
// RetryCount increases by one per processed attempt; a record never exceeds
// four attempts before it is resolved.
type FailedAIRequest struct {
	ID           string `json:"id"`
	Feature      string `json:"feature"`
	ResourceID   string `json:"resource_id"`
	ErrorType    string `json:"error_type"`
	ErrorMessage string `json:"error_message"`
	StatusCode   int    `json:"status_code"`
	RetryCount   int    `json:"retry_count"`
	NextRetryAt  int64  `json:"next_retry_at"`
	Resolved     bool   `json:"resolved"`
	ResolvedAt   int64  `json:"resolved_at"`
	Ctime        int64  `json:"ctime"`
	Mtime        int64  `json:"mtime"`
}
