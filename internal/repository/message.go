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

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

const messageColumns = `m.id, m.sender_id, COALESCE(m.receiver_id,''), COALESCE(m.group_id,''),
	        m.content, COALESCE(m.reactions,'{}'::jsonb), m.pinned, m.edited_at, m.created_at,
	        p.id, p.name, p.email, COALESCE(p.avatar_url,''), p.created_at`

func scanMessage(row pgx.Row) (*model.Message, error) {
	m := &model.Message{}
	sender := &model.Profile{}
	err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.GroupID,
		&m.Content, &m.Reactions, &m.Pinned, &m.EditedAt, &m.CreatedAt,
		&sender.ID, &sender.Name, &sender.Email, &sender.AvatarURL, &sender.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.Sender = sender
	return m, nil
}

func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	var receiverID, groupID *string
	if m.ReceiverID != "" {
		receiverID = &m.ReceiverID
	}
	if m.GroupID != "" {
		groupID = &m.GroupID
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (id, sender_id, receiver_id, group_id, content, reactions, pinned, created_at)
		 VALUES ($1, $2, $3, $4, $5, '{}'::jsonb, false, $6)`,
		m.ID, m.SenderID, receiverID, groupID, m.Content, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.Create: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	m, err := scanMessage(r.pool.QueryRow(ctx,
		`SELECT `+messageColumns+`
		 FROM messages m
		 JOIN profiles p ON p.id = m.sender_id
		 WHERE m.id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	return m, nil
}

// DirectHistory returns every message between the pair in either direction,
// ascending by creation time.
func (r *MessageRepository) DirectHistory(ctx context.Context, selfID, peerID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.DirectHistory", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageColumns+`
		 FROM messages m
		 JOIN profiles p ON p.id = m.sender_id
		 WHERE m.group_id IS NULL
		   AND ((m.sender_id = $1 AND m.receiver_id = $2) OR (m.sender_id = $2 AND m.receiver_id = $1))
		 ORDER BY m.created_at`, selfID, peerID,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.DirectHistory query: %w", err)
	}
	return collectMessages(rows, "msgRepo.DirectHistory")
}

// GroupHistory returns the group's messages ascending by creation time.
func (r *MessageRepository) GroupHistory(ctx context.Context, groupID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.GroupHistory", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageColumns+`
		 FROM messages m
		 JOIN profiles p ON p.id = m.sender_id
		 WHERE m.group_id = $1
		 ORDER BY m.created_at`, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.GroupHistory query: %w", err)
	}
	return collectMessages(rows, "msgRepo.GroupHistory")
}

// PinnedInGroup returns the group's pinned messages, newest first.
func (r *MessageRepository) PinnedInGroup(ctx context.Context, groupID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.PinnedInGroup", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageColumns+`
		 FROM messages m
		 JOIN profiles p ON p.id = m.sender_id
		 WHERE m.group_id = $1 AND m.pinned
		 ORDER BY m.created_at DESC`, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.PinnedInGroup query: %w", err)
	}
	return collectMessages(rows, "msgRepo.PinnedInGroup")
}

func collectMessages(rows pgx.Rows, op string) ([]model.Message, error) {
	defer rows.Close()
	messages := make([]model.Message, 0, 64)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("%s scan: %w", op, err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s rows: %w", op, err)
	}
	return messages, nil
}

// UpdateContent edits a message's content and stamps edited_at.
func (r *MessageRepository) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error {
	defer logger.DeferLogDuration("msg.UpdateContent", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE messages SET content = $1, edited_at = $2 WHERE id = $3`,
		content, editedAt, id,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.UpdateContent: %w", err)
	}
	return nil
}

// Delete removes the message row. Messages are never archived or soft-deleted.
func (r *MessageRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("msg.Delete", time.Now())()
	_, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("msgRepo.Delete: %w", err)
	}
	return nil
}

// AddReaction increments the emoji's counter in a single statement, so
// concurrent reactions from different clients cannot lose updates. Returns
// the updated reaction map.
func (r *MessageRepository) AddReaction(ctx context.Context, id, emoji string) (model.ReactionMap, error) {
	defer logger.DeferLogDuration("msg.AddReaction", time.Now())()
	var reactions model.ReactionMap
	err := r.pool.QueryRow(ctx,
		`UPDATE messages
		 SET reactions = jsonb_set(COALESCE(reactions,'{}'::jsonb), ARRAY[$2],
		     to_jsonb(COALESCE((reactions->>$2)::int, 0) + 1))
		 WHERE id = $1
		 RETURNING reactions`, id, emoji,
	).Scan(&reactions)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("msgRepo.AddReaction: %w", err)
	}
	return reactions, nil
}

// TogglePin flips the pinned flag and returns the new state. Last write wins.
func (r *MessageRepository) TogglePin(ctx context.Context, id string) (bool, error) {
	defer logger.DeferLogDuration("msg.TogglePin", time.Now())()
	var pinned bool
	err := r.pool.QueryRow(ctx,
		`UPDATE messages SET pinned = NOT pinned WHERE id = $1 RETURNING pinned`, id,
	).Scan(&pinned)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("msgRepo.TogglePin: %w", err)
	}
	return pinned, nil
}
