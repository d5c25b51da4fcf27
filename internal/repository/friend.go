package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edutrack/messaging/internal/logger"
	"github.com/edutrack/messaging/internal/model"
)

type FriendRepository struct {
	pool *pgxpool.Pool
}

func NewFriendRepository(pool *pgxpool.Pool) *FriendRepository {
	return &FriendRepository{pool: pool}
}

// CreateRequest inserts a pending request. A pending request in either
// direction or an existing friendship counts as a duplicate.
func (r *FriendRepository) CreateRequest(ctx context.Context, senderID, receiverID string) error {
	defer logger.DeferLogDuration("friend.CreateRequest", time.Now())()
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM friend_requests
			WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		 )`, senderID, receiverID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("friendRepo.CreateRequest check: %w", err)
	}
	if exists {
		return ErrDuplicate
	}
	friends, err := r.AreFriends(ctx, senderID, receiverID)
	if err != nil {
		return err
	}
	if friends {
		return ErrDuplicate
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO friend_requests (sender_id, receiver_id, created_at)
		 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		senderID, receiverID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("friendRepo.CreateRequest: %w", err)
	}
	return nil
}

// AcceptRequest promotes a pending request into a friendship. Both writes run
// in one transaction so a crash can never leave an accepted-but-still-pending
// state.
func (r *FriendRepository) AcceptRequest(ctx context.Context, senderID, receiverID string) error {
	defer logger.DeferLogDuration("friend.AcceptRequest", time.Now())()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("friendRepo.AcceptRequest begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`DELETE FROM friend_requests WHERE sender_id = $1 AND receiver_id = $2`,
		senderID, receiverID,
	)
	if err != nil {
		return fmt.Errorf("friendRepo.AcceptRequest delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	lo, hi := model.NormalizePair(senderID, receiverID)
	if _, err := tx.Exec(ctx,
		`INSERT INTO friends (user1_id, user2_id, created_at)
		 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		lo, hi, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("friendRepo.AcceptRequest insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("friendRepo.AcceptRequest commit: %w", err)
	}
	return nil
}

// RejectRequest deletes the pending request only.
func (r *FriendRepository) RejectRequest(ctx context.Context, senderID, receiverID string) error {
	defer logger.DeferLogDuration("friend.RejectRequest", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM friend_requests WHERE sender_id = $1 AND receiver_id = $2`,
		senderID, receiverID,
	)
	if err != nil {
		return fmt.Errorf("friendRepo.RejectRequest: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *FriendRepository) AreFriends(ctx context.Context, a, b string) (bool, error) {
	defer logger.DeferLogDuration("friend.AreFriends", time.Now())()
	lo, hi := model.NormalizePair(a, b)
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM friends WHERE user1_id = $1 AND user2_id = $2)`,
		lo, hi,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("friendRepo.AreFriends: %w", err)
	}
	return exists, nil
}

// ListFriends returns the profiles of everyone the user has a friendship with.
func (r *FriendRepository) ListFriends(ctx context.Context, userID string) ([]model.Profile, error) {
	defer logger.DeferLogDuration("friend.ListFriends", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.name, p.email, COALESCE(p.avatar_url,''), p.created_at
		 FROM friends f
		 JOIN profiles p ON p.id = CASE WHEN f.user1_id = $1 THEN f.user2_id ELSE f.user1_id END
		 WHERE f.user1_id = $1 OR f.user2_id = $1
		 ORDER BY p.name, p.email`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("friendRepo.ListFriends query: %w", err)
	}
	defer rows.Close()

	profiles := make([]model.Profile, 0, 16)
	for rows.Next() {
		var p model.Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.AvatarURL, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("friendRepo.ListFriends scan: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("friendRepo.ListFriends rows: %w", err)
	}
	return profiles, nil
}

// ListRequests returns pending requests involving the user, incoming and sent.
func (r *FriendRepository) ListRequests(ctx context.Context, userID string) (incoming, sent []model.FriendRequest, err error) {
	defer logger.DeferLogDuration("friend.ListRequests", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT fr.sender_id, fr.receiver_id, fr.created_at,
		        s.id, s.name, s.email, COALESCE(s.avatar_url,''), s.created_at,
		        t.id, t.name, t.email, COALESCE(t.avatar_url,''), t.created_at
		 FROM friend_requests fr
		 JOIN profiles s ON s.id = fr.sender_id
		 JOIN profiles t ON t.id = fr.receiver_id
		 WHERE fr.sender_id = $1 OR fr.receiver_id = $1
		 ORDER BY fr.created_at`, userID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("friendRepo.ListRequests query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var req model.FriendRequest
		sender := &model.Profile{}
		receiver := &model.Profile{}
		if err := rows.Scan(&req.SenderID, &req.ReceiverID, &req.CreatedAt,
			&sender.ID, &sender.Name, &sender.Email, &sender.AvatarURL, &sender.CreatedAt,
			&receiver.ID, &receiver.Name, &receiver.Email, &receiver.AvatarURL, &receiver.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("friendRepo.ListRequests scan: %w", err)
		}
		req.Sender = sender
		req.Receiver = receiver
		if req.ReceiverID == userID {
			incoming = append(incoming, req)
		} else {
			sent = append(sent, req)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("friendRepo.ListRequests rows: %w", err)
	}
	return incoming, sent, nil
}
