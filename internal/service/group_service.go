package service

import (
	"context"
	"fmt"

	"studyquiz_backend/internal/model"
	"studyquiz_backend/internal/util"
	"studyquiz_backend/pkg/logger"

	"go.uber.org/zap"
)

type GroupService struct {
	Repo GroupAdmin
}

func NewGroupService(repo GroupAdmin) *GroupService {
	return &GroupService{Repo: repo}
}

func (s *GroupService) requireAdmin(ctx context.Context, groupID, userID string) error {
	role, ok, err := s.Repo.RoleOf(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !ok || role != model.GroupRoleAdmin {
		return util.ErrForbidden
	}
	return nil
}

// Create 创建小组，创建者成为管理员；子小组要求创建者是父小组管理员
func (s *GroupService) Create(ctx context.Context, ownerID, name, description, parentID string) (*model.StudyGroup, error) {
	group := &model.StudyGroup{Name: name, Description: description, OwnerID: ownerID}
	if parentID != "" {
		parent, err := s.Repo.FindByID(ctx, parentID)
		if err != nil {
			return nil, notFound(err, util.ErrGroupNotFound)
		}
		if parent.ParentID != nil {
			return nil, fmt.Errorf("%w: subgroups cannot be nested", util.ErrInvalidConfig)
		}
		if err := s.requireAdmin(ctx, parentID, ownerID); err != nil {
			return nil, err
		}
		group.ParentID = &parentID
	}
	if err := s.Repo.Create(ctx, group); err != nil {
		return nil, err
	}
	logger.Log.Info("Group created", zap.String("group_id", group.ID), zap.String("owner_id", ownerID))
	return group, nil
}

func (s *GroupService) Get(ctx context.Context, userID, groupID string) (*model.StudyGroup, error) {
	group, err := s.Repo.FindByID(ctx, groupID)
	if err != nil {
		return nil, notFound(err, util.ErrGroupNotFound)
	}
	return group, nil
}

func (s *GroupService) Join(ctx context.Context, userID, groupID string) error {
	if _, err := s.Repo.FindByID(ctx, groupID); err != nil {
		return notFound(err, util.ErrGroupNotFound)
	}
	return s.Repo.Join(ctx, groupID, userID)
}

// Leave 退出小组；历史答题记录保留，错题复习仍会覆盖该小组
func (s *GroupService) Leave(ctx context.Context, userID, groupID string) error {
	members, err := s.Repo.Members(ctx, groupID)
	if err != nil {
		return err
	}
	if isLastAdmin(members, userID) {
		return util.ErrLastAdmin
	}
	return notFound(s.Repo.Leave(ctx, groupID, userID), util.ErrGroupNotFound)
}

// SetRole 管理员修改成员角色，小组至少保留一名管理员
func (s *GroupService) SetRole(ctx context.Context, actorID, groupID, targetID string, role model.GroupRole) error {
	if role != model.GroupRoleAdmin && role != model.GroupRoleMember {
		return fmt.Errorf("%w: unknown role %q", util.ErrInvalidConfig, role)
	}
	if err := s.requireAdmin(ctx, groupID, actorID); err != nil {
		return err
	}
	members, err := s.Repo.Members(ctx, groupID)
	if err != nil {
		return err
	}
	if role != model.GroupRoleAdmin && isLastAdmin(members, targetID) {
		return util.ErrLastAdmin
	}
	if err := s.Repo.SetRole(ctx, groupID, targetID, role); err != nil {
		return notFound(err, util.ErrUserNotFound)
	}
	logger.Log.Info("Group role changed",
		zap.String("group_id", groupID),
		zap.String("target_id", targetID),
		zap.String("role", string(role)))
	return nil
}

func (s *GroupService) Members(ctx context.Context, userID, groupID string) ([]model.GroupMember, error) {
	ok, err := s.Repo.IsMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, util.ErrForbidden
	}
	return s.Repo.Members(ctx, groupID)
}

func (s *GroupService) Subgroups(ctx context.Context, groupID string) ([]string, error) {
	return s.Repo.Subgroups(ctx, groupID)
}

// isLastAdmin members 为当前在组成员
func isLastAdmin(members []model.GroupMember, userID string) bool {
	admins := 0
	target := false
	for _, m := range members {
		if !m.Active() || m.Role != model.GroupRoleAdmin {
			continue
		}
		admins++
		if m.UserID == userID {
			target = true
		}
	}
	return target && admins == 1
}
