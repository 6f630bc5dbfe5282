package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirk1998/accounts/internal/models"
)

type GroupRepository struct {
	db DBTX
}

// NewGroupRepository creates a new group repository
func NewGroupRepository(db DBTX) *GroupRepository {
	return &GroupRepository{db: db}
}

// Create creates a new group
func (r *GroupRepository) Create(ctx context.Context, group *models.Group) error {
	query := `
        INSERT INTO user_groups (name, handle, created_at)
        VALUES (?, ?, ?)
    `

	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, query, group.Name, group.Handle, now)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get group ID: %w", err)
	}

	group.ID = int(id)
	group.CreatedAt = now

	return nil
}

// AddMember adds a user to a group; adding an existing member is a no-op
func (r *GroupRepository) AddMember(ctx context.Context, groupID, userID int) error {
	query := `
        INSERT OR IGNORE INTO user_group_members (group_id, user_id, created_at)
        VALUES (?, ?, ?)
    `

	if _, err := r.db.ExecContext(ctx, query, groupID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}

	return nil
}

// GetByUserID lists the groups a user belongs to, ordered by name
func (r *GroupRepository) GetByUserID(ctx context.Context, userID int) ([]*models.Group, error) {
	query := `
        SELECT g.id, g.name, g.handle, g.created_at
        FROM user_groups g
        JOIN user_group_members m ON m.group_id = g.id
        WHERE m.user_id = ?
        ORDER BY g.name
    `

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	groups := []*models.Group{}
	for rows.Next() {
		group := &models.Group{}
		if err := rows.Scan(&group.ID, &group.Name, &group.Handle, &group.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, group)
	}

	return groups, rows.Err()
}
