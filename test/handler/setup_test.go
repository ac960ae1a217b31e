package handler_test

import (
	"context"
	"math"
	"net/http"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi"

	"github.com/xxxsen/chatvec/internal/handler"
	"github.com/xxxsen/chatvec/internal/middleware"
	"github.com/xxxsen/chatvec/internal/model"
	appErr "github.com/xxxsen/chatvec/internal/pkg/errors"
	"github.com/xxxsen/chatvec/internal/pkg/jwt"
	"github.com/xxxsen/chatvec/internal/service"
	"github.com/xxxsen/chatvec/internal/vectorstore"
)

var testSecret = []byte("test-secret")

// memEmbedder hashes tokens into a fixed-size vector so related texts land
// close under cosine similarity without a real provider.
type memEmbedder struct{}

func (memEmbedder) embed(text string) []float32 {
	vec := make([]float32, 64)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		var h uint32
		for _, r := range token {
			h = h*31 + uint32(r)
		}
		vec[h%64]++
	}
	return vec
}

func (m memEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return m.embed(text), nil
}

func (m memEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return m.embed(text), nil
}

type memVectorStore struct {
	recs map[string]model.MessageEmbedding
}

func (s *memVectorStore) Upsert(ctx context.Context, rec *model.MessageEmbedding) error {
	s.recs[rec.MessageID] = *rec
	return nil
}

func (s *memVectorStore) GetByID(ctx context.Context, messageID string) (*model.MessageEmbedding, error) {
	rec, ok := s.recs[messageID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return &rec, nil
}

func (s *memVectorStore) Query(ctx context.Context, vector []float32, filter vectorstore.Filter, topK int) ([]vectorstore.Match, error) {
	allowed := map[string]struct{}{}
	for _, id := range filter.ChatIDs {
		allowed[id] = struct{}{}
	}
	var matches []vectorstore.Match
	for _, rec := range s.recs {
		if len(allowed) > 0 {
			if _, ok := allowed[rec.ChatID]; !ok {
				continue
			}
		}
		matches = append(matches, vectorstore.Match{
			MessageID:   rec.MessageID,
			RawScore:    cosine(vector, rec.Embedding),
			ChatID:      rec.ChatID,
			SenderID:    rec.SenderID,
			Timestamp:   rec.Timestamp,
			TextSnippet: rec.TextSnippet,
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].RawScore > matches[j].RawScore
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

type memMessages struct {
	msgs    map[string]model.Message
	members map[string][]string
}

func (m *memMessages) GetByID(ctx context.Context, messageID string) (*model.Message, error) {
	msg, ok := m.msgs[messageID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return &msg, nil
}

func (m *memMessages) UpdateSearchableMetadata(ctx context.Context, messageID string, meta model.SearchableMetadata) error {
	if _, ok := m.msgs[messageID]; !ok {
		return appErr.ErrNotFound
	}
	return nil
}

func (m *memMessages) IsChatMember(ctx context.Context, chatID, userID string) (bool, error) {
	for _, id := range m.members[chatID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memMessages) ListChatIDs(ctx context.Context, userID string) ([]string, error) {
	var out []string
	for chatID, users := range m.members {
		for _, id := range users {
			if id == userID {
				out = append(out, chatID)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memMessages) ListParticipants(ctx context.Context, chatID string) ([]string, error) {
	return append([]string(nil), m.members[chatID]...), nil
}

func (m *memMessages) ListMissingEmbeddings(ctx context.Context, limit int) ([]model.Message, error) {
	return nil, nil
}

type memFailed struct {
	recs map[string]model.FailedAIRequest
}

func (m *memFailed) Create(ctx context.Context, req *model.FailedAIRequest) error {
	m.recs[req.ID] = *req
	return nil
}

func (m *memFailed) FindUnresolved(ctx context.Context, feature, resourceID string) (*model.FailedAIRequest, error) {
	for _, rec := range m.recs {
		if rec.Feature == feature && rec.ResourceID == resourceID && !rec.Resolved {
			out := rec
			return &out, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (m *memFailed) DueBatch(ctx context.Context, now int64, limit int) ([]model.FailedAIRequest, error) {
	var out []model.FailedAIRequest
	for _, rec := range m.recs {
		if !rec.Resolved && rec.NextRetryAt <= now {
			out = append(out, rec)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memFailed) ApplyBatch(ctx context.Context, updates []model.FailedAIRequest) error {
	for _, rec := range updates {
		m.recs[rec.ID] = rec
	}
	return nil
}

type testEnv struct {
	messages *memMessages
	vectors  *memVectorStore
	failed   *memFailed
}

func (e *testEnv) seedMessage(msg model.Message, participants ...string) {
	e.messages.msgs[msg.ID] = msg
	if len(participants) > 0 {
		e.messages.members[msg.ChatID] = participants
	}
}

func setupRouter(t *testing.T) (http.Handler, *testEnv) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		messages: &memMessages{msgs: map[string]model.Message{}, members: map[string][]string{}},
		vectors:  &memVectorStore{recs: map[string]model.MessageEmbedding{}},
		failed:   &memFailed{recs: map[string]model.FailedAIRequest{}},
	}

	embedder := memEmbedder{}
	searchService := service.NewSearchService(embedder, env.vectors, env.messages, service.SearchServiceConfig{})
	embeddingService := service.NewEmbeddingService(embedder, env.vectors, env.messages, env.failed)
	sweeper := service.NewRetrySweeper(env.failed, service.RetrySweeperConfig{})
	sweeper.Register(model.FeatureEmbeddingGeneration, func(ctx context.Context, req *model.FailedAIRequest) error {
		return embeddingService.RetryEmbedding(ctx, req.ResourceID)
	})

	deps := handler.RouterDeps{
		Search:     handler.NewSearchHandler(searchService),
		Embeddings: handler.NewEmbeddingHandler(embeddingService),
		Admin:      handler.NewAdminHandler(sweeper),
		JWTSecret:  testSecret,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		"",
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(nil),
		),
	)
	require.NoError(t, err)
	return engine, env
}

func authToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.GenerateToken(userID, testSecret, time.Hour)
	require.NoError(t, err)
	return token
}
