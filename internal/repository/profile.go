package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edutrack/messaging/internal/logger"
	"github.com/edutrack/messaging/internal/model"
)

type ProfileRepository struct {
	pool *pgxpool.Pool
}

func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	defer logger.DeferLogDuration("profile.GetByID", time.Now())()
	p := &model.Profile{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, COALESCE(avatar_url,''), created_at
		 FROM profiles WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Email, &p.AvatarURL, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("profileRepo.GetByID: %w", err)
	}
	return p, nil
}

// ListCandidates returns every profile except the caller's own, for the
// contact directory. The directory is small (one cohort), no pagination.
func (r *ProfileRepository) ListCandidates(ctx context.Context, selfID string) ([]model.Profile, error) {
	defer logger.DeferLogDuration("profile.ListCandidates", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, email, COALESCE(avatar_url,''), created_at
		 FROM profiles WHERE id != $1
		 ORDER BY name, email`, selfID,
	)
	if err != nil {
		return nil, fmt.Errorf("profileRepo.ListCandidates query: %w", err)
	}
	defer rows.Close()

	profiles := make([]model.Profile, 0, 32)
	for rows.Next() {
		var p model.Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.AvatarURL, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("profileRepo.ListCandidates scan: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("profileRepo.ListCandidates rows: %w", err)
	}
	return profiles, nil
}

// Upsert writes a profile row. Only the identity sync and the -dev session
// helper call this; the API itself treats profiles as read-only.
func (r *ProfileRepository) Upsert(ctx context.Context, p *model.Profile) error {
	defer logger.DeferLogDuration("profile.Upsert", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO profiles (id, name, email, avatar_url, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET name = $2, email = $3, avatar_url = $4`,
		p.ID, p.Name, p.Email, p.AvatarURL, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("profileRepo.Upsert: %w", err)
	}
	return nil
}
