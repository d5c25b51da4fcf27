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

type GroupRepository struct {
	pool *pgxpool.Pool
}

func NewGroupRepository(pool *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{pool: pool}
}

// Create inserts the group and its creator's admin membership in one
// transaction.
func (r *GroupRepository) Create(ctx context.Context, g *model.Group) error {
	defer logger.DeferLogDuration("group.Create", time.Now())()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("groupRepo.Create begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO groups (id, name, description, image_url, is_public, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		g.ID, g.Name, g.Description, g.ImageURL, g.IsPublic, g.CreatedBy, g.CreatedAt,
	); err != nil {
		return fmt.Errorf("groupRepo.Create insert: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO group_members (group_id, user_id, role, joined_at)
		 VALUES ($1, $2, $3, $4)`,
		g.ID, g.CreatedBy, model.GroupRoleAdmin, g.CreatedAt,
	); err != nil {
		return fmt.Errorf("groupRepo.Create member: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("groupRepo.Create commit: %w", err)
	}
	return nil
}

func (r *GroupRepository) GetByID(ctx context.Context, id string) (*model.Group, error) {
	defer logger.DeferLogDuration("group.GetByID", time.Now())()
	g := &model.Group{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, COALESCE(description,''), COALESCE(image_url,''), is_public, created_by, created_at
		 FROM groups WHERE id = $1`, id,
	).Scan(&g.ID, &g.Name, &g.Description, &g.ImageURL, &g.IsPublic, &g.CreatedBy, &g.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("groupRepo.GetByID: %w", err)
	}
	return g, nil
}

// Delete removes the group; group_members and group messages go with it via
// ON DELETE CASCADE. The handler enforces that only the creator may call this.
func (r *GroupRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("group.Delete", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("groupRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GroupRepository) AddMember(ctx context.Context, groupID, userID, role string) error {
	defer logger.DeferLogDuration("group.AddMember", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO group_members (group_id, user_id, role, joined_at)
		 VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
		groupID, userID, role, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("groupRepo.AddMember: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicate
	}
	return nil
}

func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, userID string) error {
	defer logger.DeferLogDuration("group.RemoveMember", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`,
		groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("groupRepo.RemoveMember: %w", err)
	}
	return nil
}

func (r *GroupRepository) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	defer logger.DeferLogDuration("group.IsMember", time.Now())()
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)`,
		groupID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("groupRepo.IsMember: %w", err)
	}
	return exists, nil
}

func (r *GroupRepository) GetMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	defer logger.DeferLogDuration("group.GetMemberIDs", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM group_members WHERE group_id = $1`, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("groupRepo.GetMemberIDs query: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, 8)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("groupRepo.GetMemberIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("groupRepo.GetMemberIDs rows: %w", err)
	}
	return ids, nil
}

// GetMembers returns the roster with profiles, in join order.
func (r *GroupRepository) GetMembers(ctx context.Context, groupID string) ([]model.GroupMember, error) {
	defer logger.DeferLogDuration("group.GetMembers", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT gm.group_id, gm.user_id, gm.role, gm.joined_at,
		        p.id, p.name, p.email, COALESCE(p.avatar_url,''), p.created_at
		 FROM group_members gm
		 JOIN profiles p ON p.id = gm.user_id
		 WHERE gm.group_id = $1
		 ORDER BY gm.joined_at`, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("groupRepo.GetMembers query: %w", err)
	}
	defer rows.Close()

	members := make([]model.GroupMember, 0, 8)
	for rows.Next() {
		var m model.GroupMember
		p := &model.Profile{}
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Role, &m.JoinedAt,
			&p.ID, &p.Name, &p.Email, &p.AvatarURL, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("groupRepo.GetMembers scan: %w", err)
		}
		m.Profile = p
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("groupRepo.GetMembers rows: %w", err)
	}
	return members, nil
}

// ListJoined returns the groups the user belongs to.
func (r *GroupRepository) ListJoined(ctx context.Context, userID string) ([]model.Group, error) {
	defer logger.DeferLogDuration("group.ListJoined", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT g.id, g.name, COALESCE(g.description,''), COALESCE(g.image_url,''), g.is_public, g.created_by, g.created_at
		 FROM groups g
		 JOIN group_members gm ON gm.group_id = g.id
		 WHERE gm.user_id = $1
		 ORDER BY g.created_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("groupRepo.ListJoined query: %w", err)
	}
	return collectGroups(rows, "groupRepo.ListJoined")
}

// ListPublic returns public groups the user has not joined.
func (r *GroupRepository) ListPublic(ctx context.Context, userID string) ([]model.Group, error) {
	defer logger.DeferLogDuration("group.ListPublic", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT g.id, g.name, COALESCE(g.description,''), COALESCE(g.image_url,''), g.is_public, g.created_by, g.created_at
		 FROM groups g
		 WHERE g.is_public
		   AND NOT EXISTS (SELECT 1 FROM group_members WHERE group_id = g.id AND user_id = $1)
		 ORDER BY g.created_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("groupRepo.ListPublic query: %w", err)
	}
	return collectGroups(rows, "groupRepo.ListPublic")
}

// Search finds public groups by name substring, case-insensitive.
func (r *GroupRepository) Search(ctx context.Context, query string, limit int) ([]model.Group, error) {
	defer logger.DeferLogDuration("group.Search", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT g.id, g.name, COALESCE(g.description,''), COALESCE(g.image_url,''), g.is_public, g.created_by, g.created_at
		 FROM groups g
		 WHERE g.is_public AND g.name ILIKE '%' || $1 || '%'
		 ORDER BY g.name
		 LIMIT $2`, query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("groupRepo.Search query: %w", err)
	}
	return collectGroups(rows, "groupRepo.Search")
}

func collectGroups(rows pgx.Rows, op string) ([]model.Group, error) {
	defer rows.Close()
	groups := make([]model.Group, 0, 16)
	for rows.Next() {
		var g model.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.ImageURL, &g.IsPublic, &g.CreatedBy, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s scan: %w", op, err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s rows: %w", op, err)
	}
	return groups, nil
}
