package controller

import (
	"strconv"
	"time"

	"studyquiz_backend/internal/quiz"
	"studyquiz_backend/internal/service"
	"studyquiz_backend/internal/session"
	"studyquiz_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// PracticeController 测试与学习会话
type PracticeController struct {
	PracticeService *service.PracticeService
}

func NewPracticeController(practiceService *service.PracticeService) *PracticeController {
	return &PracticeController{PracticeService: practiceService}
}

// StartSessionRequest 创建会话请求
type StartSessionRequest struct {
	Mode               quiz.Mode           `json:"mode" binding:"required,oneof=test study" example:"test"`
	GroupID            string              `json:"groupId"`
	IncludeSubgroupIDs []string            `json:"includeSubgroupIds"`
	QuestionCount      int                 `json:"questionCount" example:"10"`
	AllowedTypes       []quiz.QuestionType `json:"allowedTypes"`
	TagFilter          []string            `json:"tagFilter"`
	TimerSeconds       int                 `json:"timerSeconds" binding:"min=0" example:"600"`
	SpacedRepetition   bool                `json:"spacedRepetition"`
	Policy             quiz.Policy         `json:"policy" example:"normal"`
	QuestionIDs        []string            `json:"questionIds"`
	Offline            bool                `json:"offline"`
}

func (r StartSessionRequest) config() quiz.SessionConfig {
	return quiz.SessionConfig{
		QuestionCount:      r.QuestionCount,
		AllowedTypes:       r.AllowedTypes,
		TagFilter:          r.TagFilter,
		TimerDuration:      time.Duration(r.TimerSeconds) * time.Second,
		GroupID:            r.GroupID,
		IncludeSubgroupIDs: r.IncludeSubgroupIDs,
		SpacedRepetition:   r.SpacedRepetition,
		Policy:             r.Policy,
		QuestionIDs:        r.QuestionIDs,
		Offline:            r.Offline,
	}
}

type ChangeQuestionRequest struct {
	Index *int `json:"index" binding:"required"`
}

func (c *PracticeController) respond(ctx *gin.Context, sess session.Session, err error) {
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, c.PracticeService.View(sess))
}

// StartSession godoc
// @Summary 创建练习会话
// @Description 按策略抽题创建测试或学习会话；配置错误在创建前同步返回
// @Tags 练习
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body StartSessionRequest true "会话配置"
// @Success 201 {object} util.Response{data=service.SessionView}
// @Failure 400 {object} util.Response "配置错误"
// @Failure 422 {object} util.Response "题目不足"
// @Router /api/sessions [post]
func (c *PracticeController) StartSession(ctx *gin.Context) {
	var req StartSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	sess, err := c.PracticeService.StartSession(ctx.Request.Context(), util.CurrentUserID(ctx), req.Mode, req.config())
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Created(ctx, c.PracticeService.View(sess))
}

// GetSession godoc
// @Summary 会话当前状态
// @Tags 练习
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=service.SessionView}
// @Failure 404 {object} util.Response
// @Router /api/sessions/{id} [get]
func (c *PracticeController) GetSession(ctx *gin.Context) {
	sess, err := c.PracticeService.Get(ctx.Request.Context(), util.CurrentUserID(ctx), ctx.Param("id"))
	c.respond(ctx, sess, err)
}

// UpdateAnswer godoc
// @Summary 更新作答
// @Description 只覆盖请求中出现的字段；学习模式立即判分
// @Tags 练习
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "会话ID"
// @Param   questionId path string true "题目ID"
// @Param   body body quiz.Answer true "部分作答"
// @Success 200 {object} util.Response{data=service.SessionView}
// @Router /api/sessions/{id}/answers/{questionId} [put]
func (c *PracticeController) UpdateAnswer(ctx *gin.Context) {
	var patch quiz.Answer
	if err := ctx.ShouldBindJSON(&patch); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	sess, err := c.PracticeService.UpdateAnswer(ctx.Request.Context(), util.CurrentUserID(ctx), ctx.Param("id"), ctx.Param("questionId"), patch)
	c.respond(ctx, sess, err)
}

// ChangeQuestion godoc
// @Summary 切换当前题目
// @Tags 练习
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "会话ID"
// @Param   body body ChangeQuestionRequest true "题目下标，从 0 开始"
// @Success 200 {object} util.Response{data=service.SessionView}
// @Router /api/sessions/{id}/cursor [put]
func (c *PracticeController) ChangeQuestion(ctx *gin.Context) {
	var req ChangeQuestionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	sess, err := c.PracticeService.ChangeQuestion(ctx.Request.Context(), util.CurrentUserID(ctx), ctx.Param("id"), *req.Index)
	c.respond(ctx, sess, err)
}

// ToggleBookmark godoc
// @Summary 标记/取消标记题目
// @Tags 练习
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "会话ID"
// @Param   questionId path string true "题目ID"
// @Success 200 {object} util.Response{data=service.SessionView}
// @Router /api/sessions/{id}/bookmarks/{questionId} [post]
func (c *PracticeController) ToggleBookmark(ctx *gin.Context) {
	sess, err := c.PracticeService.ToggleBookmark(ctx.Request.Context(), util.CurrentUserID(ctx), ctx.Param("id"), ctx.Param("questionId"))
	c.respond(ctx, sess, err)
}

// Review godoc
// @Summary 进入交卷前检查
// @Tags 练习
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=service.SessionView}
// @Router /api/sessions/{id}/review [post]
func (c *PracticeController) Review(ctx *gin.Context) {
	sess, err := c.PracticeService.Review(ctx.Request.Context(), util.CurrentUserID(ctx), ctx.Param("id"))
	c.respond(ctx, sess, err)
}

// Submit godoc
// @Summary 交卷
// @Tags 练习
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=service.SessionView}
// @Router /api/sessions/{id}/submit [post]
func (c *PracticeController) Submit(ctx *gin.Context) {
	sess, err := c.PracticeService.Submit(ctx.Request.Context(), util.CurrentUserID(ctx), ctx.Param("id"))
	c.respond(ctx, sess, err)
}

// Finish godoc
// @Summary 完成学习会话
// @Description 只能在最后一题且已判分后完成
// @Tags 练习
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=service.SessionView}
// @Failure 409 {object} util.Response
// @Router /api/sessions/{id}/finish [post]
func (c *PracticeController) Finish(ctx *gin.Context) {
	sess, err := c.PracticeService.Finish(ctx.Request.Context(), util.CurrentUserID(ctx), ctx.Param("id"))
	c.respond(ctx, sess, err)
}

// Exit godoc
// @Summary 放弃会话
// @Tags 练习
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response
// @Router /api/sessions/{id} [delete]
func (c *PracticeController) Exit(ctx *gin.Context) {
	if err := c.PracticeService.Exit(ctx.Request.Context(), util.CurrentUserID(ctx), ctx.Param("id")); err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// History godoc
// @Summary 历史成绩
// @Tags 练习
// @Produce  json
// @Security BearerAuth
// @Param   limit query int false "条数" default(20)
// @Success 200 {object} util.Response{data=util.ListResponse}
// @Router /api/sessions/history [get]
func (c *PracticeController) History(ctx *gin.Context) {
	limit := 20
	if l, err := strconv.Atoi(ctx.Query("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}
	results, err := c.PracticeService.History(ctx.Request.Context(), util.CurrentUserID(ctx), limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.ListResponse{List: results, Total: len(results)})
}

// SyncPending godoc
// @Summary 同步离线成绩
// @Tags 练习
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=object}
// @Router /api/sessions/sync [post]
func (c *PracticeController) SyncPending(ctx *gin.Context) {
	n, err := c.PracticeService.SyncPending(ctx.Request.Context(), util.CurrentUserID(ctx))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"synced": n})
}
