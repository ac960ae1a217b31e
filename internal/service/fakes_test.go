package service

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/xxxsen/chatvec/internal/model"
	appErr "github.com/xxxsen/chatvec/internal/pkg/errors"
	"github.com/xxxsen/chatvec/internal/vectorstore"
)

const fakeDims = 64

// tokenVector builds a deterministic bag-of-words vector so texts sharing
// words land close under cosine similarity.
func tokenVector(text string) []float32 {
	vec := make([]float32, fakeDims)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		var h uint32
		for _, r := range token {
			h = h*31 + uint32(r)
		}
		vec[h%fakeDims]++
	}
	return vec
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

type fakeEmbedder struct {
	mu         sync.Mutex
	docCalls   int
	queryCalls int
	docErr     error
	queryErr   error
}

func (f *fakeEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.docCalls++
	f.mu.Unlock()
	if f.docErr != nil {
		return nil, f.docErr
	}
	return tokenVector(text), nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.queryCalls++
	f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return tokenVector(text), nil
}

type fakeStore struct {
	mu        sync.Mutex
	recs      map[string]model.MessageEmbedding
	upsertErr error
	queryErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{recs: make(map[string]model.MessageEmbedding)}
}

func (f *fakeStore) Upsert(ctx context.Context, rec *model.MessageEmbedding) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs[rec.MessageID] = *rec
	return nil
}

func (f *fakeStore) GetByID(ctx context.Context, messageID string) (*model.MessageEmbedding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[messageID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return &rec, nil
}

func (f *fakeStore) Query(ctx context.Context, vector []float32, filter vectorstore.Filter, topK int) ([]vectorstore.Match, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	allowed := map[string]struct{}{}
	for _, id := range filter.ChatIDs {
		allowed[id] = struct{}{}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var matches []vectorstore.Match
	for _, rec := range f.recs {
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

type fakeMessages struct {
	mu       sync.Mutex
	msgs     map[string]model.Message
	members  map[string][]string
	metadata map[string]model.SearchableMetadata
	missing  []model.Message
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{
		msgs:     make(map[string]model.Message),
		members:  make(map[string][]string),
		metadata: make(map[string]model.SearchableMetadata),
	}
}

func (f *fakeMessages) GetByID(ctx context.Context, messageID string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.msgs[messageID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return &msg, nil
}

func (f *fakeMessages) UpdateSearchableMetadata(ctx context.Context, messageID string, meta model.SearchableMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.msgs[messageID]; !ok {
		return appErr.ErrNotFound
	}
	f.metadata[messageID] = meta
	return nil
}

func (f *fakeMessages) IsChatMember(ctx context.Context, chatID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.members[chatID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeMessages) ListChatIDs(ctx context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for chatID, users := range f.members {
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

func (f *fakeMessages) ListParticipants(ctx context.Context, chatID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.members[chatID]...), nil
}

func (f *fakeMessages) ListMissingEmbeddings(ctx context.Context, limit int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.missing
	if len(out) > limit {
		out = out[:limit]
	}
	return append([]model.Message(nil), out...), nil
}

func (f *fakeMessages) addMessage(msg model.Message, participants ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs[msg.ID] = msg
	if len(participants) > 0 {
		f.members[msg.ChatID] = participants
	}
}

type memFailedStore struct {
	mu        sync.Mutex
	recs      map[string]model.FailedAIRequest
	createErr error
	batchErr  error
	dueErr    error
}

func newMemFailedStore() *memFailedStore {
	return &memFailedStore{recs: make(map[string]model.FailedAIRequest)}
}

func (m *memFailedStore) Create(ctx context.Context, req *model.FailedAIRequest) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.recs {
		if rec.Feature == req.Feature && rec.ResourceID == req.ResourceID && !rec.Resolved {
			return appErr.ErrConflict
		}
	}
	m.recs[req.ID] = *req
	return nil
}

func (m *memFailedStore) FindUnresolved(ctx context.Context, feature, resourceID string) (*model.FailedAIRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.recs {
		if rec.Feature == feature && rec.ResourceID == resourceID && !rec.Resolved {
			out := rec
			return &out, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (m *memFailedStore) DueBatch(ctx context.Context, now int64, limit int) ([]model.FailedAIRequest, error) {
	if m.dueErr != nil {
		return nil, m.dueErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.FailedAIRequest
	for _, rec := range m.recs {
		if !rec.Resolved && rec.NextRetryAt <= now {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NextRetryAt < out[j].NextRetryAt
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memFailedStore) ApplyBatch(ctx context.Context, updates []model.FailedAIRequest) error {
	if m.batchErr != nil {
		return m.batchErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range updates {
		m.recs[rec.ID] = rec
	}
	return nil
}

func (m *memFailedStore) get(id string) (model.FailedAIRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	return rec, ok
}
