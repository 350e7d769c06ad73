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

var ErrNotFound = errors.New("not found")

// userCols — список колонок для SELECT (порядок соответствует scanUser).
const userCols = `id, external_id, username, email, COALESCE(avatar_url,''), is_online, last_seen_at, created_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// scanUser сканирует строку в model.User (порядок соответствует userCols).
func scanUser(s interface{ Scan(dest ...any) error }, u *model.User) error {
	return s.Scan(&u.ID, &u.ExternalID, &u.Username, &u.Email, &u.AvatarURL, &u.IsOnline, &u.LastSeenAt, &u.CreatedAt)
}

// Store upserts the profile for an external identity: first authenticated
// contact creates the row, later calls refresh name and avatar. The
// external id is the conflict key, so the record id is stable.
func (r *UserRepository) Store(ctx context.Context, id *model.Identity) (*model.User, error) {
	defer logger.DeferLogDuration("user.Store", time.Now())()
	name := id.Name
	if name == "" {
		name = "Anonymous"
	}
	now := time.Now().UTC()
	u := &model.User{}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO users (id, external_id, username, email, avatar_url, is_online, last_seen_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, true, $6, $6)
		 ON CONFLICT (external_id) DO UPDATE
		 SET username = EXCLUDED.username, avatar_url = EXCLUDED.avatar_url
		 RETURNING `+userCols,
		uuid.New().String(), id.Subject, name, id.Email, id.AvatarURL, now,
	)
	if err := scanUser(row, u); err != nil {
		return nil, fmt.Errorf("userRepo.Store: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByID", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByID: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByExternalID", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE external_id = $1`, externalID)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByExternalID: %w", err)
	}
	return u, nil
}

// ListOthers возвращает всех пользователей, кроме указанного (users.getAll).
func (r *UserRepository) ListOthers(ctx context.Context, excludeUserID string, limit int) ([]model.User, error) {
	defer logger.DeferLogDuration("user.ListOthers", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+userCols+` FROM users WHERE id != $1 ORDER BY username LIMIT $2`,
		excludeUserID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("userRepo.ListOthers: %w", err)
	}
	defer rows.Close()
	users := make([]model.User, 0, 16)
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("userRepo.ListOthers scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("userRepo.ListOthers rows: %w", err)
	}
	return users, nil
}

// GetUsernames возвращает имена для набора id (порядок не гарантируется).
func (r *UserRepository) GetUsernames(ctx context.Context, ids []string) (map[string]string, error) {
	defer logger.DeferLogDuration("user.GetUsernames", time.Now())()
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id, username FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("userRepo.GetUsernames: %w", err)
	}
	defer rows.Close()
	names := make(map[string]string, len(ids))
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("userRepo.GetUsernames scan: %w", err)
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("userRepo.GetUsernames rows: %w", err)
	}
	return names, nil
}

func (r *UserRepository) SetOnline(ctx context.Context, userID string, online bool) error {
	defer logger.DeferLogDuration("user.SetOnline", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET is_online = $1, last_seen_at = $2 WHERE id = $3`,
		online, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("userRepo.SetOnline: %w", err)
	}
	return nil
}
