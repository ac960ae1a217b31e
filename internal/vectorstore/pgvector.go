package vectorstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/chatvec/internal/model"
	appErr "github.com/xxxsen/chatvec/internal/pkg/errors"
)

// PGStore keeps embeddings in a pgvector-typed postgres table. Cosine distance
// (<=>) drives the candidate ordering; score reported back is 1-distance.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Upsert(ctx context.Context, rec *model.MessageEmbedding) error {
	const query = `
		INSERT INTO message_embeddings (message_id, chat_id, sender_id, timestamp_ms, text_snippet, embedding, content_hash, mtime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (message_id) DO UPDATE SET
			chat_id = EXCLUDED.chat_id,
			sender_id = EXCLUDED.sender_id,
			timestamp_ms = EXCLUDED.timestamp_ms,
			text_snippet = EXCLUDED.text_snippet,
			embedding = EXCLUDED.embedding,
			content_hash = EXCLUDED.content_hash,
			mtime = EXCLUDED.mtime
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.MessageID,
		rec.ChatID,
		rec.SenderID,
		rec.Timestamp,
		rec.TextSnippet,
		pgvector.NewVector(rec.Embedding),
		rec.ContentHash,
		rec.Mtime,
	)
	if err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

func (s *PGStore) GetByID(ctx context.Context, messageID string) (*model.MessageEmbedding, error) {
	const query = `
		SELECT message_id, chat_id, sender_id, timestamp_ms, text_snippet, embedding, content_hash, mtime
		FROM message_embeddings
		WHERE message_id = $1
	`
	row := s.db.QueryRowContext(ctx, query, messageID)
	var rec model.MessageEmbedding
	var vec pgvector.Vector
	if err := row.Scan(&rec.MessageID, &rec.ChatID, &rec.SenderID, &rec.Timestamp, &rec.TextSnippet, &vec, &rec.ContentHash, &rec.Mtime); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	rec.Embedding = vec.Slice()
	return &rec, nil
}

func (s *PGStore) Query(ctx context.Context, vector []float32, filter Filter, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	vec := pgvector.NewVector(vector)
	var rows *sql.Rows
	var err error
	if len(filter.ChatIDs) > 0 {
		const query = `
			SELECT message_id, chat_id, sender_id, timestamp_ms, text_snippet, 1 - (embedding <=> $1) AS score
			FROM message_embeddings
			WHERE chat_id = ANY($2)
			ORDER BY embedding <=> $1
			LIMIT $3
		`
		rows, err = s.db.QueryContext(ctx, query, vec, pq.Array(filter.ChatIDs), topK)
	} else {
		const query = `
			SELECT message_id, chat_id, sender_id, timestamp_ms, text_snippet, 1 - (embedding <=> $1) AS score
			FROM message_embeddings
			ORDER BY embedding <=> $1
			LIMIT $2
		`
		rows, err = s.db.QueryContext(ctx, query, vec, topK)
	}
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()
	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.MessageID, &m.ChatID, &m.SenderID, &m.Timestamp, &m.TextSnippet, &m.RawScore); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
