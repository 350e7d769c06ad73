package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chatter/internal/logger"
	"github.com/chatter/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, content, is_deleted, created_at)
		 VALUES ($1, $2, $3, $4, false, $5)`,
		m.ID, m.ConversationID, m.SenderID, m.Content, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.Create: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	m := &model.Message{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, conversation_id, sender_id, content, is_deleted, created_at
		 FROM messages WHERE id = $1`, id,
	).Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.IsDeleted, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	return m, nil
}

// ListByConversation возвращает последние limit сообщений беседы в порядке
// создания; offset листает вглубь истории (страницами от новых к старым).
// Soft-deleted строки остаются в выдаче: подмену текста делает слой отображения.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.ListByConversation", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT * FROM (
		   SELECT m.id, m.conversation_id, m.sender_id, m.content, m.is_deleted, m.created_at,
		          u.id AS sender_pk, u.external_id, u.username, COALESCE(u.avatar_url,'') AS avatar_url,
		          u.is_online, u.last_seen_at
		   FROM messages m
		   JOIN users u ON u.id = m.sender_id
		   WHERE m.conversation_id = $1
		   ORDER BY m.created_at DESC
		   LIMIT $2 OFFSET $3
		 ) page
		 ORDER BY page.created_at`, conversationID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListByConversation query: %w", err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0, limit)
	for rows.Next() {
		var m model.Message
		sender := &model.UserPublic{}
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.IsDeleted, &m.CreatedAt,
			&sender.ID, &sender.ExternalID, &sender.Username, &sender.AvatarURL, &sender.IsOnline, &sender.LastSeenAt); err != nil {
			return nil, fmt.Errorf("msgRepo.ListByConversation scan: %w", err)
		}
		m.Sender = sender
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.ListByConversation rows: %w", err)
	}
	return messages, nil
}

func (r *MessageRepository) GetLastMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetLastMessage", time.Now())()
	m := &model.Message{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, conversation_id, sender_id, content, is_deleted, created_at
		 FROM messages
		 WHERE conversation_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`, conversationID,
	).Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.IsDeleted, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("msgRepo.GetLastMessage: %w", err)
	}
	return m, nil
}

// SoftDelete marks a message as deleted. Content and reactions are retained;
// hiding the text is the display layer's job.
func (r *MessageRepository) SoftDelete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("msg.SoftDelete", time.Now())()
	_, err := r.pool.Exec(ctx, `UPDATE messages SET is_deleted = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("msgRepo.SoftDelete: %w", err)
	}
	return nil
}

// GetUnreadCount counts non-deleted messages from other senders created after
// the caller's read receipt. Missing receipt counts from the epoch.
func (r *MessageRepository) GetUnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	defer logger.DeferLogDuration("msg.GetUnreadCount", time.Now())()
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages m
		 WHERE m.conversation_id = $1 AND m.sender_id != $2 AND m.is_deleted = false
		   AND m.created_at > COALESCE(
		     (SELECT last_read_at FROM read_receipts WHERE user_id = $2 AND conversation_id = $1),
		     'epoch'::timestamptz)`,
		conversationID, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("msgRepo.GetUnreadCount: %w", err)
	}
	return count, nil
}
