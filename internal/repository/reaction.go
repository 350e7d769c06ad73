package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/chatter/internal/logger"
	"github.com/chatter/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ReactionRepository struct {
	pool *pgxpool.Pool
}

func NewReactionRepository(pool *pgxpool.Pool) *ReactionRepository {
	return &ReactionRepository{pool: pool}
}

// Toggle removes the (message, user, emoji) reaction if present, otherwise
// adds it. Runs in a transaction so concurrent toggles of the same triple
// serialize into a clean add-or-remove; returns whether the reaction now
// exists.
func (r *ReactionRepository) Toggle(ctx context.Context, messageID, userID, emoji string) (added bool, err error) {
	defer logger.DeferLogDuration("reaction.Toggle", time.Now())()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("reactionRepo.Toggle begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`,
		messageID, userID, emoji,
	)
	if err != nil {
		return false, fmt.Errorf("reactionRepo.Toggle delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := tx.Exec(ctx,
			`INSERT INTO message_reactions (message_id, user_id, emoji, created_at)
			 VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
			messageID, userID, emoji, time.Now().UTC(),
		); err != nil {
			return false, fmt.Errorf("reactionRepo.Toggle insert: %w", err)
		}
		added = true
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("reactionRepo.Toggle commit: %w", err)
	}
	return added, nil
}

// GetGroupedByMessage returns aggregated reaction groups for a message.
func (r *ReactionRepository) GetGroupedByMessage(ctx context.Context, messageID string) ([]model.ReactionGroup, error) {
	defer logger.DeferLogDuration("reaction.GetGroupedByMessage", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT emoji, COUNT(*), array_agg(user_id::text ORDER BY created_at)
		 FROM message_reactions
		 WHERE message_id = $1
		 GROUP BY emoji
		 ORDER BY MIN(created_at)`, messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("reactionRepo.GetGroupedByMessage query: %w", err)
	}
	defer rows.Close()

	groups := make([]model.ReactionGroup, 0, 4)
	for rows.Next() {
		var g model.ReactionGroup
		if err := rows.Scan(&g.Emoji, &g.Count, &g.Users); err != nil {
			return nil, fmt.Errorf("reactionRepo.GetGroupedByMessage scan: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reactionRepo.GetGroupedByMessage rows: %w", err)
	}
	return groups, nil
}

// GetGroupedByConversation возвращает группы реакций для всех сообщений беседы
// одним запросом (аннотация messages.list).
func (r *ReactionRepository) GetGroupedByConversation(ctx context.Context, conversationID string) (map[string][]model.ReactionGroup, error) {
	defer logger.DeferLogDuration("reaction.GetGroupedByConversation", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT mr.message_id, mr.emoji, COUNT(*), array_agg(mr.user_id::text ORDER BY mr.created_at)
		 FROM message_reactions mr
		 JOIN messages m ON m.id = mr.message_id
		 WHERE m.conversation_id = $1
		 GROUP BY mr.message_id, mr.emoji
		 ORDER BY mr.message_id, MIN(mr.created_at)`, conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("reactionRepo.GetGroupedByConversation query: %w", err)
	}
	defer rows.Close()

	byMessage := make(map[string][]model.ReactionGroup, 16)
	for rows.Next() {
		var msgID string
		var g model.ReactionGroup
		if err := rows.Scan(&msgID, &g.Emoji, &g.Count, &g.Users); err != nil {
			return nil, fmt.Errorf("reactionRepo.GetGroupedByConversation scan: %w", err)
		}
		byMessage[msgID] = append(byMessage[msgID], g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reactionRepo.GetGroupedByConversation rows: %w", err)
	}
	return byMessage, nil
}
