package repository

import (
	"context"
	"errors"
	"time"

	"studyquiz_backend/internal/model"
	"studyquiz_backend/internal/util"

	"gorm.io/gorm"
)

type GroupRepository struct {
	DB *gorm.DB
}

func NewGroupRepository(db *gorm.DB) *GroupRepository {
	return &GroupRepository{DB: db}
}

// Create 创建小组并把创建者设为管理员
func (r *GroupRepository) Create(ctx context.Context, group *model.StudyGroup) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(group).Error; err != nil {
			return err
		}
		return tx.Create(&model.GroupMember{
			GroupID:  group.ID,
			UserID:   group.OwnerID,
			Role:     model.GroupRoleAdmin,
			JoinedAt: time.Now(),
		}).Error
	})
}

func (r *GroupRepository) FindByID(ctx context.Context, id string) (*model.StudyGroup, error) {
	var g model.StudyGroup
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&g).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

// Subgroups 直接子小组 id
func (r *GroupRepository) Subgroups(ctx context.Context, parentID string) ([]string, error) {
	var ids []string
	err := r.DB.WithContext(ctx).Model(&model.StudyGroup{}).
		Where("parent_id = ? AND archived = ?", parentID, false).
		Pluck("id", &ids).Error
	return ids, err
}

// MemberCount 当前成员数
func (r *GroupRepository) MemberCount(ctx context.Context, groupID string) (int, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.GroupMember{}).
		Where("group_id = ? AND left_at IS NULL", groupID).
		Count(&n).Error
	return int(n), err
}

// GroupsSeenBy 用户加入过的所有小组，包括已退出的
func (r *GroupRepository) GroupsSeenBy(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.DB.WithContext(ctx).Model(&model.GroupMember{}).
		Where("user_id = ?", userID).
		Pluck("group_id", &ids).Error
	return ids, err
}

func (r *GroupRepository) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	m, err := r.membership(r.DB.WithContext(ctx), groupID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.Active(), nil
}

func (r *GroupRepository) RoleOf(ctx context.Context, groupID, userID string) (model.GroupRole, bool, error) {
	m, err := r.membership(r.DB.WithContext(ctx), groupID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if !m.Active() {
		return "", false, nil
	}
	return m.Role, true, nil
}

func (r *GroupRepository) Members(ctx context.Context, groupID string) ([]model.GroupMember, error) {
	var members []model.GroupMember
	err := r.DB.WithContext(ctx).
		Where("group_id = ? AND left_at IS NULL", groupID).
		Order("joined_at asc").
		Find(&members).Error
	return members, err
}

// Join 加入或重新加入小组
func (r *GroupRepository) Join(ctx context.Context, groupID, userID string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := r.membership(tx, groupID, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&model.GroupMember{
				GroupID:  groupID,
				UserID:   userID,
				Role:     model.GroupRoleMember,
				JoinedAt: time.Now(),
			}).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(m).Updates(map[string]interface{}{
			"left_at":   nil,
			"role":      model.GroupRoleMember,
			"joined_at": time.Now(),
		}).Error
	})
}

// SetRole 修改成员角色；降级最后一名管理员时返回 util.ErrLastAdmin，不做任何修改
func (r *GroupRepository) SetRole(ctx context.Context, groupID, userID string, role model.GroupRole) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := r.membership(tx, groupID, userID)
		if err != nil {
			return err
		}
		if !m.Active() {
			return gorm.ErrRecordNotFound
		}
		if m.Role == model.GroupRoleAdmin && role != model.GroupRoleAdmin {
			if err := r.ensureAnotherAdmin(tx, groupID, userID); err != nil {
				return err
			}
		}
		return tx.Model(m).Update("role", role).Error
	})
}

// Leave 退出小组，最后一名管理员不能退出
func (r *GroupRepository) Leave(ctx context.Context, groupID, userID string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := r.membership(tx, groupID, userID)
		if err != nil {
			return err
		}
		if !m.Active() {
			return nil
		}
		if m.Role == model.GroupRoleAdmin {
			if err := r.ensureAnotherAdmin(tx, groupID, userID); err != nil {
				return err
			}
		}
		return tx.Model(m).Update("left_at", time.Now()).Error
	})
}

func (r *GroupRepository) ensureAnotherAdmin(tx *gorm.DB, groupID, exceptUserID string) error {
	var others int64
	err := tx.Model(&model.GroupMember{}).
		Where("group_id = ? AND role = ? AND left_at IS NULL AND user_id <> ?", groupID, model.GroupRoleAdmin, exceptUserID).
		Count(&others).Error
	if err != nil {
		return err
	}
	if others == 0 {
		return util.ErrLastAdmin
	}
	return nil
}

func (r *GroupRepository) membership(tx *gorm.DB, groupID, userID string) (*model.GroupMember, error) {
	var m model.GroupMember
	err := tx.Where("group_id = ? AND user_id = ?", groupID, userID).First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}
