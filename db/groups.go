package db

import (
	"context"
	"fmt"

	"github.com/deemkeen/andstatus/domain"
)

// Group membership: for GroupFriends the parent follows the members, for
// GroupFollowers the members follow the parent.

func (s *queries) AddGroupMember(ctx context.Context, groupType domain.GroupType, parentId, memberId int64) error {
	_, err := s.execWithRetry(ctx, `INSERT OR IGNORE INTO group_member(group_type, parent_actor_id, member_actor_id)
		VALUES (?, ?, ?)`, groupType.Code(), parentId, memberId)
	if err != nil {
		return fmt.Errorf("adding member %d to %s of %d: %w", memberId, groupType, parentId, err)
	}
	return nil
}

func (s *queries) RemoveGroupMember(ctx context.Context, groupType domain.GroupType, parentId, memberId int64) error {
	_, err := s.execWithRetry(ctx, `DELETE FROM group_member
		WHERE group_type = ? AND parent_actor_id = ? AND member_actor_id = ?`, groupType.Code(), parentId, memberId)
	if err != nil {
		return fmt.Errorf("removing member %d from %s of %d: %w", memberId, groupType, parentId, err)
	}
	return nil
}

func (s *queries) GroupMembers(ctx context.Context, groupType domain.GroupType, parentId int64) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT member_actor_id FROM group_member
		WHERE group_type = ? AND parent_actor_id = ? ORDER BY member_actor_id`, groupType.Code(), parentId)
	if err != nil {
		return nil, err
	}
	return collectIds(rows)
}
