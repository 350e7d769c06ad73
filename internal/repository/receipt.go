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

type ReceiptRepository struct {
	pool *pgxpool.Pool
}

func NewReceiptRepository(pool *pgxpool.Pool) *ReceiptRepository {
	return &ReceiptRepository{pool: pool}
}

// MarkRead upserts the caller's receipt for the conversation. GREATEST keeps
// the timestamp monotonic: a late-arriving older write never moves it back.
func (r *ReceiptRepository) MarkRead(ctx context.Context, userID, conversationID string, at time.Time) error {
	defer logger.DeferLogDuration("receipt.MarkRead", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO read_receipts (user_id, conversation_id, last_read_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, conversation_id)
		 DO UPDATE SET last_read_at = GREATEST(read_receipts.last_read_at, EXCLUDED.last_read_at)`,
		userID, conversationID, at,
	)
	if err != nil {
		return fmt.Errorf("receiptRepo.MarkRead: %w", err)
	}
	return nil
}

func (r *ReceiptRepository) Get(ctx context.Context, userID, conversationID string) (*model.ReadReceipt, error) {
	defer logger.DeferLogDuration("receipt.Get", time.Now())()
	rr := &model.ReadReceipt{}
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, conversation_id, last_read_at
		 FROM read_receipts WHERE user_id = $1 AND conversation_id = $2`,
		userID, conversationID,
	).Scan(&rr.UserID, &rr.ConversationID, &rr.LastReadAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("receiptRepo.Get: %w", err)
	}
	return rr, nil
}
