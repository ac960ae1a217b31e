package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/chatvec/internal/model"
	"github.com/xxxsen/chatvec/internal/pkg/dbutil"
	appErr "github.com/xxxsen/chatvec/internal/pkg/errors"
)

// MessageRepo reads the message slice this subsystem needs and writes derived
// searchable metadata back. Message CRUD itself belongs to another service.
type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

func (r *MessageRepo) GetByID(ctx context.Context, messageID string) (*model.Message, error) {
	where := map[string]interface{}{
		"id": messageID,
	}
	sqlStr, args, err := builder.BuildSelect("messages", where, []string{"id", "chat_id", "sender_id", "content", "timestamp_ms"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	var msg model.Message
	if err := row.Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.Text, &msg.Timestamp); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &msg, nil
}

func (r *MessageRepo) UpdateSearchableMetadata(ctx context.Context, messageID string, meta model.SearchableMetadata) error {
	keywordsJSON, _ := json.Marshal(meta.Keywords)
	participantsJSON, _ := json.Marshal(meta.Participants)
	where := map[string]interface{}{
		"id": messageID,
	}
	update := map[string]interface{}{
		"keywords":        string(keywordsJSON),
		"participants":    string(participantsJSON),
		"decision_made":   meta.DecisionMade,
		"has_action_item": meta.HasActionItem,
		"mtime":           time.Now().UnixMilli(),
	}
	sqlStr, args, err := builder.BuildUpdate("messages", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *MessageRepo) IsChatMember(ctx context.Context, chatID, userID string) (bool, error) {
	sqlStr, args := dbutil.Finalize("SELECT COUNT(*) FROM chat_members WHERE chat_id=? AND user_id=?", []interface{}{chatID, userID})
	var count int
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *MessageRepo) ListChatIDs(ctx context.Context, userID string) ([]string, error) {
	sqlStr, args := dbutil.Finalize("SELECT chat_id FROM chat_members WHERE user_id=?", []interface{}{userID})
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chatIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		chatIDs = append(chatIDs, id)
	}
	return chatIDs, rows.Err()
}

func (r *MessageRepo) ListParticipants(ctx context.Context, chatID string) ([]string, error) {
	sqlStr, args := dbutil.Finalize("SELECT user_id FROM chat_members WHERE chat_id=?", []interface{}{chatID})
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// ListMissingEmbeddings finds messages that were never embedded or whose text
// changed after their last embedding. Feeds the backfill job.
func (r *MessageRepo) ListMissingEmbeddings(ctx context.Context, limit int) ([]model.Message, error) {
	const query = `
		SELECT m.id, m.chat_id, m.sender_id, m.content, m.timestamp_ms
		FROM messages m
		LEFT JOIN message_embeddings e ON m.id = e.message_id
		WHERE e.message_id IS NULL OR m.mtime > e.mtime
		ORDER BY m.timestamp_ms DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var msgs []model.Message
	for rows.Next() {
		var msg model.Message
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.Text, &msg.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}
