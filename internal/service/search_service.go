package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/chatvec/internal/aierr"
	"github.com/xxxsen/chatvec/internal/model"
	appErr "github.com/xxxsen/chatvec/internal/pkg/errors"
	"github.com/xxxsen/chatvec/internal/pkg/privacy"
	"github.com/xxxsen/chatvec/internal/vectorstore"
)

const (
	minQueryChars = 3
	maxQueryChars = 500
	defaultLimit  = 10
	maxLimit      = 50

	// Over-fetch so recency boosting has candidates to reorder before the
	// final truncation.
	candidateMultiplier = 3

	// maxRecencyBoost bounds how much freshness can add to a raw similarity
	// score. Candidates further apart than this can never swap order.
	maxRecencyBoost = 0.05
	recencyWindow   = 30 * 24 * time.Hour
)

type SearchRequest struct {
	Query       string
	RequesterID string
	Limit       int
	ChatID      string
	MinScore    float64
}

type SearchResponse struct {
	Results      []model.SearchResult `json:"results"`
	TotalResults int                  `json:"total_results"`
	QueryTimeMs  int64                `json:"query_time_ms"`
}

// SearchService answers natural-language queries against a user's own message
// history. Calls are request-scoped and share no mutable state; failures
// surface synchronously and are never queued.
type SearchService struct {
	embedder Embedder
	store    vectorstore.Store
	messages MessageStore
	cache    *expirable.LRU[string, []float32]
	now      func() time.Time
}

type SearchServiceConfig struct {
	CacheSize int
	CacheTTL  time.Duration
}

func NewSearchService(embedder Embedder, store vectorstore.Store, messages MessageStore, cfg SearchServiceConfig) *SearchService {
	size := cfg.CacheSize
	if size <= 0 {
		size = 10000
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &SearchService{
		embedder: embedder,
		store:    store,
		messages: messages,
		cache:    expirable.NewLRU[string, []float32](size, nil, ttl),
		now:      time.Now,
	}
}

func (s *SearchService) Search(ctx context.Context, authUserID string, req SearchRequest) (*SearchResponse, error) {
	start := s.now()

	query := strings.TrimSpace(req.Query)
	if len([]rune(query)) < minQueryChars || len([]rune(query)) > maxQueryChars {
		return nil, fmt.Errorf("%w: query must be %d-%d characters", appErr.ErrInvalid, minQueryChars, maxQueryChars)
	}
	if req.RequesterID == "" || req.RequesterID != authUserID {
		return nil, fmt.Errorf("%w: requester does not match authenticated user", appErr.ErrForbidden)
	}
	limit := req.Limit
	if limit == 0 {
		limit = defaultLimit
	}
	if limit < 1 || limit > maxLimit {
		return nil, fmt.Errorf("%w: limit must be 1-%d", appErr.ErrInvalid, maxLimit)
	}
	if req.MinScore < 0 || req.MinScore > 1 {
		return nil, fmt.Errorf("%w: min_score must be 0-1", appErr.ErrInvalid)
	}

	// Access control precedes any vector query.
	var filter vectorstore.Filter
	if req.ChatID != "" {
		member, err := s.messages.IsChatMember(ctx, req.ChatID, authUserID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, fmt.Errorf("%w: not a member of chat", appErr.ErrForbidden)
		}
		filter.ChatIDs = []string{req.ChatID}
	} else {
		chatIDs, err := s.messages.ListChatIDs(ctx, authUserID)
		if err != nil {
			return nil, err
		}
		if len(chatIDs) == 0 {
			return &SearchResponse{Results: []model.SearchResult{}, QueryTimeMs: s.elapsedMs(start)}, nil
		}
		filter.ChatIDs = chatIDs
	}

	vec, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, &ClassifiedError{Cls: aierr.Classify(err), Err: err}
	}

	topK := limit * candidateMultiplier
	if topK > maxLimit {
		topK = maxLimit
	}
	matches, err := s.store.Query(ctx, vec, filter, topK)
	if err != nil {
		return nil, &ClassifiedError{Cls: aierr.Classify(err), Err: err}
	}

	nowMs := s.now().UnixMilli()
	results := make([]model.SearchResult, 0, len(matches))
	for _, m := range matches {
		score := boostScore(m.RawScore, m.Timestamp, nowMs)
		if req.MinScore > 0 {
			if score < req.MinScore {
				continue
			}
		} else if score <= 0 {
			// Default threshold: any positive match.
			continue
		}
		results = append(results, model.SearchResult{
			MessageID: m.MessageID,
			Score:     score,
			Text:      m.TextSnippet,
			ChatID:    m.ChatID,
			Timestamp: m.Timestamp,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Timestamp > results[j].Timestamp
	})
	total := len(results)
	if len(results) > limit {
		results = results[:limit]
	}

	logutil.GetLogger(ctx).Debug("semantic search done",
		zap.String("user_id", authUserID),
		zap.Int("candidates", len(matches)),
		zap.Int("results", len(results)))
	return &SearchResponse{
		Results:      results,
		TotalResults: total,
		QueryTimeMs:  s.elapsedMs(start),
	}, nil
}

func (s *SearchService) embedQuery(ctx context.Context, query string) ([]float32, error) {
	key := privacy.HashText(query)
	if vec, ok := s.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, vec)
	return vec, nil
}

func (s *SearchService) elapsedMs(start time.Time) int64 {
	elapsed := s.now().Sub(start).Milliseconds()
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// boostScore blends similarity with message age: a message older than the
// recency window gets no boost, a brand-new one gets the full maxRecencyBoost.
// Raw-score gaps above maxRecencyBoost are order-preserving by construction.
func boostScore(rawScore float64, timestampMs, nowMs int64) float64 {
	ageMs := nowMs - timestampMs
	if ageMs < 0 {
		ageMs = 0
	}
	freshness := 1 - float64(ageMs)/float64(recencyWindow.Milliseconds())
	if freshness < 0 {
		freshness = 0
	}
	score := rawScore + maxRecencyBoost*freshness
	if score > 1 {
		score = 1
	}
	return score
}
