package model

import "time"

type GroupRole string

const (
	GroupRoleAdmin  GroupRole = "admin"
	GroupRoleMember GroupRole = "member"
)

// StudyGroup 学习小组，ParentID 非空时为子小组
type StudyGroup struct {
	UUIDBase
	Name        string  `gorm:"size:100;not null" json:"name"`
	Description string  `gorm:"size:500" json:"description"`
	ParentID    *string `gorm:"type:varchar(36);index" json:"parentId,omitempty"`
	OwnerID     string  `gorm:"type:varchar(36);index" json:"ownerId"`
	Archived    bool    `gorm:"default:false" json:"archived"`
}

func (StudyGroup) TableName() string {
	return "study_groups"
}

// GroupMember 成员关系。退出后保留记录并写入 LeftAt，用于错题复习跨组检索。
type GroupMember struct {
	ID       uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	GroupID  string     `gorm:"type:varchar(36);uniqueIndex:idx_group_user;not null" json:"groupId"`
	UserID   string     `gorm:"type:varchar(36);uniqueIndex:idx_group_user;index;not null" json:"userId"`
	Role     GroupRole  `gorm:"size:16;default:'member'" json:"role"`
	JoinedAt time.Time  `json:"joinedAt"`
	LeftAt   *time.Time `json:"leftAt,omitempty"`
}

func (GroupMember) TableName() string {
	return "group_members"
}

func (m GroupMember) Active() bool {
	return m.LeftAt == nil
}
