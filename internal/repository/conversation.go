package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chatter/internal/logger"
	"github.com/chatter/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ConversationRepository struct {
	pool *pgxpool.Pool
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

// GetOrCreateDirect returns the direct conversation for the pair, creating it
// if absent. The unique index on pair_key makes concurrent first contacts
// converge on a single row: the losing insert falls through to the select.
func (r *ConversationRepository) GetOrCreateDirect(ctx context.Context, callerID, otherUserID string) (*model.Conversation, bool, error) {
	defer logger.DeferLogDuration("conv.GetOrCreateDirect", time.Now())()
	pairKey := model.DirectPairKey(callerID, otherUserID)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("convRepo.GetOrCreateDirect begin: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	c := &model.Conversation{
		ID:        uuid.New().String(),
		IsGroup:   false,
		CreatedBy: callerID,
		CreatedAt: now,
	}
	tag, err := tx.Exec(ctx,
		`INSERT INTO conversations (id, is_group, pair_key, created_by, created_at)
		 VALUES ($1, false, $2, $3, $4)
		 ON CONFLICT (pair_key) DO NOTHING`,
		c.ID, pairKey, callerID, now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("convRepo.GetOrCreateDirect insert: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Проиграли гонку или беседа уже существовала — возвращаем имеющуюся.
		err := tx.QueryRow(ctx,
			`SELECT id, is_group, COALESCE(name,''), created_by, created_at
			 FROM conversations WHERE pair_key = $1`, pairKey,
		).Scan(&c.ID, &c.IsGroup, &c.Name, &c.CreatedBy, &c.CreatedAt)
		if err != nil {
			return nil, false, fmt.Errorf("convRepo.GetOrCreateDirect select: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, false, fmt.Errorf("convRepo.GetOrCreateDirect commit: %w", err)
		}
		return c, false, nil
	}

	for _, uid := range []string{callerID, otherUserID} {
		if _, err := tx.Exec(ctx,
			`INSERT INTO conversation_members (conversation_id, user_id, joined_at)
			 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			c.ID, uid, now,
		); err != nil {
			return nil, false, fmt.Errorf("convRepo.GetOrCreateDirect member: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("convRepo.GetOrCreateDirect commit: %w", err)
	}
	return c, true, nil
}

// CreateGroup создаёт групповую беседу; memberIDs уже включают создателя и де-дуплицированы.
func (r *ConversationRepository) CreateGroup(ctx context.Context, callerID, name string, memberIDs []string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conv.CreateGroup", time.Now())()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("convRepo.CreateGroup begin: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	c := &model.Conversation{
		ID:        uuid.New().String(),
		IsGroup:   true,
		Name:      name,
		CreatedBy: callerID,
		CreatedAt: now,
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO conversations (id, is_group, name, created_by, created_at)
		 VALUES ($1, true, $2, $3, $4)`,
		c.ID, name, callerID, now,
	); err != nil {
		return nil, fmt.Errorf("convRepo.CreateGroup insert: %w", err)
	}
	for _, uid := range memberIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO conversation_members (conversation_id, user_id, joined_at)
			 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			c.ID, uid, now,
		); err != nil {
			return nil, fmt.Errorf("convRepo.CreateGroup member: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("convRepo.CreateGroup commit: %w", err)
	}
	return c, nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conv.GetByID", time.Now())()
	c := &model.Conversation{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, is_group, COALESCE(name,''), created_by, created_at
		 FROM conversations WHERE id = $1`, id,
	).Scan(&c.ID, &c.IsGroup, &c.Name, &c.CreatedBy, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("convRepo.GetByID: %w", err)
	}
	return c, nil
}

func (r *ConversationRepository) GetMemberIDs(ctx context.Context, conversationID string) ([]string, error) {
	defer logger.DeferLogDuration("conv.GetMemberIDs", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM conversation_members WHERE conversation_id = $1`, conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("convRepo.GetMemberIDs query: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, 8)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("convRepo.GetMemberIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("convRepo.GetMemberIDs rows: %w", err)
	}
	return ids, nil
}

func (r *ConversationRepository) IsMember(ctx context.Context, conversationID, userID string) (bool, error) {
	defer logger.DeferLogDuration("conv.IsMember", time.Now())()
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM conversation_members WHERE conversation_id = $1 AND user_id = $2)`,
		conversationID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("convRepo.IsMember: %w", err)
	}
	return exists, nil
}

// GetUserGroups возвращает групповые беседы пользователя.
func (r *ConversationRepository) GetUserGroups(ctx context.Context, userID string) ([]model.Conversation, error) {
	defer logger.DeferLogDuration("conv.GetUserGroups", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.is_group, COALESCE(c.name,''), c.created_by, c.created_at
		 FROM conversations c
		 JOIN conversation_members cm ON cm.conversation_id = c.id
		 WHERE cm.user_id = $1 AND c.is_group
		 ORDER BY c.created_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("convRepo.GetUserGroups query: %w", err)
	}
	defer rows.Close()

	convs := make([]model.Conversation, 0, 8)
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(&c.ID, &c.IsGroup, &c.Name, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("convRepo.GetUserGroups scan: %w", err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("convRepo.GetUserGroups rows: %w", err)
	}
	return convs, nil
}

// GetDirectConversationIDs returns other-participant → conversation id for
// every direct conversation the user belongs to. One query instead of a
// find per sidebar entry.
func (r *ConversationRepository) GetDirectConversationIDs(ctx context.Context, userID string) (map[string]string, error) {
	defer logger.DeferLogDuration("conv.GetDirectConversationIDs", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, other.user_id
		 FROM conversations c
		 JOIN conversation_members mine ON mine.conversation_id = c.id AND mine.user_id = $1
		 JOIN conversation_members other ON other.conversation_id = c.id AND other.user_id != $1
		 WHERE NOT c.is_group`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("convRepo.GetDirectConversationIDs query: %w", err)
	}
	defer rows.Close()

	byOther := make(map[string]string, 16)
	for rows.Next() {
		var convID, otherID string
		if err := rows.Scan(&convID, &otherID); err != nil {
			return nil, fmt.Errorf("convRepo.GetDirectConversationIDs scan: %w", err)
		}
		byOther[otherID] = convID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("convRepo.GetDirectConversationIDs rows: %w", err)
	}
	return byOther, nil
}

// GetUserConversationIDs возвращает id всех бесед пользователя (для broadcast статуса).
func (r *ConversationRepository) GetUserConversationIDs(ctx context.Context, userID string) ([]string, error) {
	defer logger.DeferLogDuration("conv.GetUserConversationIDs", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT conversation_id FROM conversation_members WHERE user_id = $1`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("convRepo.GetUserConversationIDs query: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, 16)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("convRepo.GetUserConversationIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("convRepo.GetUserConversationIDs rows: %w", err)
	}
	return ids, nil
}
