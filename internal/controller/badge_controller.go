package controller

import (
	"strconv"

	"studyquiz_backend/internal/service"
	"studyquiz_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type BadgeController struct {
	BadgeService *service.BadgeService
}

func NewBadgeController(badgeService *service.BadgeService) *BadgeController {
	return &BadgeController{BadgeService: badgeService}
}

// ListDefinitions godoc
// @Summary 徽章定义
// @Tags 徽章
// @Produce  json
// @Success 200 {object} util.Response{data=[]quiz.BadgeDefinition}
// @Router /api/badges/definitions [get]
func (c *BadgeController) ListDefinitions(ctx *gin.Context) {
	util.Success(ctx, c.BadgeService.Definitions())
}

// MyBadges godoc
// @Summary 我的徽章与统计
// @Tags 徽章
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=object}
// @Router /api/badges/me [get]
func (c *BadgeController) MyBadges(ctx *gin.Context) {
	userID := util.CurrentUserID(ctx)
	badges, stats, err := c.BadgeService.UserBadges(ctx.Request.Context(), userID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	rank, ranked, err := c.BadgeService.RankOf(ctx.Request.Context(), userID)
	if err != nil {
		// 排行榜不可用时不影响徽章展示
		ranked = false
	}
	resp := gin.H{"badges": badges, "stats": stats}
	if ranked {
		resp["rank"] = rank
	}
	util.Success(ctx, resp)
}

// Leaderboard godoc
// @Summary 积分排行榜
// @Tags 徽章
// @Produce  json
// @Param   limit query int false "条数" default(20)
// @Success 200 {object} util.Response{data=util.ListResponse}
// @Router /api/leaderboard [get]
func (c *BadgeController) Leaderboard(ctx *gin.Context) {
	limit := 20
	if l, err := strconv.Atoi(ctx.Query("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}
	top, err := c.BadgeService.Top(ctx.Request.Context(), limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.ListResponse{List: top, Total: len(top)})
}
