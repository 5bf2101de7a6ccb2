package controller

import (
	"studyquiz_backend/internal/model"
	"studyquiz_backend/internal/service"
	"studyquiz_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// GroupController 学习小组与成员管理
type GroupController struct {
	GroupService *service.GroupService
}

func NewGroupController(groupService *service.GroupService) *GroupController {
	return &GroupController{GroupService: groupService}
}

// CreateGroupRequest 创建小组请求
type CreateGroupRequest struct {
	Name        string `json:"name" binding:"required,max=100" example:"生物学习小组"`
	Description string `json:"description" binding:"max=500"`
	ParentID    string `json:"parentId" example:""`
}

// SetRoleRequest 修改成员角色请求
type SetRoleRequest struct {
	Role model.GroupRole `json:"role" binding:"required,oneof=admin member" example:"admin"`
}

// CreateGroup godoc
// @Summary 创建小组
// @Description 创建者自动成为管理员；指定 parentId 时创建子小组
// @Tags 小组
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body CreateGroupRequest true "小组信息"
// @Success 201 {object} util.Response{data=model.StudyGroup}
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response
// @Router /api/groups [post]
func (c *GroupController) CreateGroup(ctx *gin.Context) {
	var req CreateGroupRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	group, err := c.GroupService.Create(ctx.Request.Context(), util.CurrentUserID(ctx), req.Name, req.Description, req.ParentID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Created(ctx, group)
}

// GetGroup godoc
// @Summary 小组详情
// @Tags 小组
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "小组ID"
// @Success 200 {object} util.Response{data=object}
// @Failure 404 {object} util.Response
// @Router /api/groups/{id} [get]
func (c *GroupController) GetGroup(ctx *gin.Context) {
	groupID := ctx.Param("id")
	group, err := c.GroupService.Get(ctx.Request.Context(), util.CurrentUserID(ctx), groupID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	subgroups, err := c.GroupService.Subgroups(ctx.Request.Context(), groupID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"group": group, "subgroupIds": subgroups})
}

// JoinGroup godoc
// @Summary 加入小组
// @Tags 小组
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "小组ID"
// @Success 200 {object} util.Response
// @Router /api/groups/{id}/join [post]
func (c *GroupController) JoinGroup(ctx *gin.Context) {
	if err := c.GroupService.Join(ctx.Request.Context(), util.CurrentUserID(ctx), ctx.Param("id")); err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// LeaveGroup godoc
// @Summary 退出小组
// @Description 最后一名管理员不能退出
// @Tags 小组
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "小组ID"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/groups/{id}/leave [post]
func (c *GroupController) LeaveGroup(ctx *gin.Context) {
	if err := c.GroupService.Leave(ctx.Request.Context(), util.CurrentUserID(ctx), ctx.Param("id")); err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// ListMembers godoc
// @Summary 小组成员列表
// @Tags 小组
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "小组ID"
// @Success 200 {object} util.Response{data=util.ListResponse}
// @Router /api/groups/{id}/members [get]
func (c *GroupController) ListMembers(ctx *gin.Context) {
	members, err := c.GroupService.Members(ctx.Request.Context(), util.CurrentUserID(ctx), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, util.ListResponse{List: members, Total: len(members)})
}

// SetMemberRole godoc
// @Summary 修改成员角色
// @Tags 小组
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "小组ID"
// @Param   userId path string true "成员ID"
// @Param   body body SetRoleRequest true "角色"
// @Success 200 {object} util.Response
// @Failure 403 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/groups/{id}/members/{userId}/role [put]
func (c *GroupController) SetMemberRole(ctx *gin.Context) {
	var req SetRoleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	err := c.GroupService.SetRole(ctx.Request.Context(), util.CurrentUserID(ctx), ctx.Param("id"), ctx.Param("userId"), req.Role)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
