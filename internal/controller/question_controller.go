package controller

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"studyquiz_backend/internal/quiz"
	"studyquiz_backend/internal/service"
	"studyquiz_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// QuestionController 题目创作、投票与举报
type QuestionController struct {
	QuestionService *service.QuestionService
}

func NewQuestionController(questionService *service.QuestionService) *QuestionController {
	return &QuestionController{QuestionService: questionService}
}

// AuthorQuestionRequest 通过编辑操作序列创建题目
type AuthorQuestionRequest struct {
	Type quiz.QuestionType `json:"type" binding:"required" example:"single_choice"`
	Ops  []quiz.RawEditOp  `json:"ops" binding:"required,dive"`
}

type VoteRequest struct {
	Up bool `json:"up"`
}

type FlagRequest struct {
	Reason string `json:"reason" binding:"max=255"`
}

type AttachDiagramRequest struct {
	URL string `json:"url" binding:"required,url"`
}

// AuthorQuestion godoc
// @Summary 发布题目
// @Description 按顺序应用编辑操作生成题目；非开放题必须有完整答案
// @Tags 题目
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "小组ID"
// @Param   body body AuthorQuestionRequest true "题目编辑操作"
// @Success 201 {object} util.Response{data=quiz.Question}
// @Failure 400 {object} util.Response
// @Failure 422 {object} util.Response "答案不完整"
// @Router /api/groups/{id}/questions [post]
func (c *QuestionController) AuthorQuestion(ctx *gin.Context) {
	var req AuthorQuestionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	ops := make([]quiz.EditOp, 0, len(req.Ops))
	for _, raw := range req.Ops {
		op, err := quiz.DecodeEditOp(raw)
		if err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
		ops = append(ops, op)
	}
	q, err := c.QuestionService.Author(ctx.Request.Context(), util.CurrentUserID(ctx), ctx.Param("id"), req.Type, ops)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Created(ctx, q)
}

// ListQuestions godoc
// @Summary 小组题目列表
// @Tags 题目
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "小组ID"
// @Param   archived query bool false "包含已归档题目"
// @Success 200 {object} util.Response{data=util.ListResponse}
// @Router /api/groups/{id}/questions [get]
func (c *QuestionController) ListQuestions(ctx *gin.Context) {
	includeArchived, _ := strconv.ParseBool(ctx.DefaultQuery("archived", "false"))
	questions, err := c.QuestionService.List(ctx.Request.Context(), util.CurrentUserID(ctx), ctx.Param("id"), includeArchived)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, util.ListResponse{List: questions, Total: len(questions)})
}

// VoteQuestion godoc
// @Summary 题目投票
// @Description 每人每题一票，可改票；不能给自己的题目投票
// @Tags 题目
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   questionId path string true "题目ID"
// @Param   body body VoteRequest true "赞成或反对"
// @Success 200 {object} util.Response{data=object}
// @Router /api/questions/{questionId}/vote [post]
func (c *QuestionController) VoteQuestion(ctx *gin.Context) {
	var req VoteRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	q, err := c.QuestionService.Vote(ctx.Request.Context(), util.CurrentUserID(ctx), ctx.Param("questionId"), req.Up)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"upvotes": q.Upvotes, "downvotes": q.Downvotes})
}

// FlagQuestion godoc
// @Summary 举报题目
// @Tags 题目
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   questionId path string true "题目ID"
// @Param   body body FlagRequest false "举报原因"
// @Success 200 {object} util.Response{data=object}
// @Router /api/questions/{questionId}/flag [post]
func (c *QuestionController) FlagQuestion(ctx *gin.Context) {
	var req FlagRequest
	// 举报原因可以省略
	if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		util.BadRequest(ctx, err.Error())
		return
	}
	count, err := c.QuestionService.Flag(ctx.Request.Context(), util.CurrentUserID(ctx), ctx.Param("questionId"), req.Reason)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"flags": count})
}

// ArchiveQuestion godoc
// @Summary 归档题目
// @Tags 题目
// @Produce  json
// @Security BearerAuth
// @Param   questionId path string true "题目ID"
// @Success 200 {object} util.Response
// @Router /api/questions/{questionId} [delete]
func (c *QuestionController) ArchiveQuestion(ctx *gin.Context) {
	if err := c.QuestionService.Archive(ctx.Request.Context(), util.CurrentUserID(ctx), ctx.Param("questionId")); err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// UploadDiagram godoc
// @Summary 上传示意图
// @Description 支持 png/jpeg/gif/webp，最大 5MB；返回的 URL 用于 set_image 编辑操作
// @Tags 题目
// @Accept  multipart/form-data
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "小组ID"
// @Param   file formData file true "图片文件"
// @Success 201 {object} util.Response{data=object}
// @Failure 400 {object} util.Response
// @Router /api/groups/{id}/diagrams [post]
func (c *QuestionController) UploadDiagram(ctx *gin.Context) {
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, service.MaxDiagramSize+(1<<20))
	file, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "请选择要上传的图片")
		return
	}
	src, err := file.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer src.Close()

	url, err := c.QuestionService.UploadDiagram(ctx.Request.Context(), util.CurrentUserID(ctx), ctx.Param("id"), file.Filename, src, file.Size)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Created(ctx, gin.H{"url": url})
}

// AttachDiagram godoc
// @Summary 替换题目示意图
// @Tags 题目
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   questionId path string true "题目ID"
// @Param   body body AttachDiagramRequest true "图片地址"
// @Success 200 {object} util.Response
// @Router /api/questions/{questionId}/diagram [put]
func (c *QuestionController) AttachDiagram(ctx *gin.Context) {
	var req AttachDiagramRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if err := c.QuestionService.AttachDiagram(ctx.Request.Context(), util.CurrentUserID(ctx), ctx.Param("questionId"), req.URL); err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
