package controller

import (
	"studyquiz_backend/internal/service"
	"studyquiz_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// SettingsController 只读展示当前生效的 quiz 配置，修改通过配置文件热更新
type SettingsController struct {
	Settings *service.Settings
}

func NewSettingsController(settings *service.Settings) *SettingsController {
	return &SettingsController{Settings: settings}
}

// GetQuizSettings godoc
// @Summary 当前 quiz 配置
// @Tags 管理
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=config.QuizConfig}
// @Failure 403 {object} util.Response
// @Router /api/admin/quiz-settings [get]
func (c *SettingsController) GetQuizSettings(ctx *gin.Context) {
	util.Success(ctx, c.Settings.Get())
}
