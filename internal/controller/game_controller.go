package controller

import (
	"strconv"

	"studyquiz_backend/internal/game"
	"studyquiz_backend/internal/quiz"
	"studyquiz_backend/internal/service"
	"studyquiz_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// GameController 与模拟对手的对局及实时事件推送
type GameController struct {
	GameService *service.GameService
	Hub         *service.EventHub
}

func NewGameController(gameService *service.GameService, hub *service.EventHub) *GameController {
	return &GameController{GameService: gameService, Hub: hub}
}

// GameAnswerRequest 对局作答，用时由服务端计算
type GameAnswerRequest struct {
	QuestionID string      `json:"questionId" binding:"required"`
	Answer     quiz.Answer `json:"answer"`
}

func (c *GameController) respond(ctx *gin.Context, g game.Game, err error) {
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, service.NewGameView(g))
}

// HandleWS godoc
// @Summary WebSocket 连接
// @Description 建立 WebSocket 连接以接收对局与徽章事件，也可通过 GAME_ANSWER 消息作答
// @Tags 对局
// @Security BearerAuth
// @Param   token query string true "JWT Token"
// @Success 101 {string} string "Switching Protocols"
// @Router /api/ws [get]
func (c *GameController) HandleWS(ctx *gin.Context) {
	userID := util.CurrentUserID(ctx)
	if userID == "" {
		util.Unauthorized(ctx)
		return
	}
	c.Hub.ServeWs(ctx.Writer, ctx.Request, userID)
}

// StartGame godoc
// @Summary 开始对局
// @Tags 对局
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body service.GameRequest true "对局配置"
// @Success 201 {object} util.Response{data=service.GameView}
// @Failure 422 {object} util.Response "题目不足"
// @Router /api/games [post]
func (c *GameController) StartGame(ctx *gin.Context) {
	var req service.GameRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	g, err := c.GameService.StartGame(ctx.Request.Context(), util.CurrentUserID(ctx), req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Created(ctx, service.NewGameView(g))
}

// GetGame godoc
// @Summary 对局状态
// @Tags 对局
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "对局ID"
// @Success 200 {object} util.Response{data=service.GameView}
// @Router /api/games/{id} [get]
func (c *GameController) GetGame(ctx *gin.Context) {
	g, err := c.GameService.Get(ctx.Request.Context(), util.CurrentUserID(ctx), ctx.Param("id"))
	c.respond(ctx, g, err)
}

// AnswerGame godoc
// @Summary 对局作答
// @Tags 对局
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "对局ID"
// @Param   body body GameAnswerRequest true "作答"
// @Success 200 {object} util.Response{data=service.GameView}
// @Failure 409 {object} util.Response "已作答或对局已结束"
// @Router /api/games/{id}/answers [post]
func (c *GameController) AnswerGame(ctx *gin.Context) {
	var req GameAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	g, err := c.GameService.Answer(ctx.Request.Context(), util.CurrentUserID(ctx), ctx.Param("id"), req.QuestionID, req.Answer)
	c.respond(ctx, g, err)
}

// Rematch godoc
// @Summary 再来一局
// @Description 用相同配置重新抽题，旧对局作废
// @Tags 对局
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "对局ID"
// @Success 200 {object} util.Response{data=service.GameView}
// @Router /api/games/{id}/rematch [post]
func (c *GameController) Rematch(ctx *gin.Context) {
	g, err := c.GameService.Rematch(ctx.Request.Context(), util.CurrentUserID(ctx), ctx.Param("id"))
	c.respond(ctx, g, err)
}

// LeaveGame godoc
// @Summary 离开对局
// @Tags 对局
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "对局ID"
// @Success 200 {object} util.Response
// @Router /api/games/{id} [delete]
func (c *GameController) LeaveGame(ctx *gin.Context) {
	if err := c.GameService.Leave(ctx.Request.Context(), util.CurrentUserID(ctx), ctx.Param("id")); err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// RecentGames godoc
// @Summary 最近对局
// @Tags 对局
// @Produce  json
// @Security BearerAuth
// @Param   limit query int false "条数" default(10)
// @Success 200 {object} util.Response{data=util.ListResponse}
// @Router /api/games [get]
func (c *GameController) RecentGames(ctx *gin.Context) {
	limit := 10
	if l, err := strconv.Atoi(ctx.Query("limit")); err == nil && l > 0 && l <= 50 {
		limit = l
	}
	records, err := c.GameService.Recent(ctx.Request.Context(), util.CurrentUserID(ctx), limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.ListResponse{List: records, Total: len(records)})
}
