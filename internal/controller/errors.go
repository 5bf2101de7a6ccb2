package controller

import (
	"errors"
	"net/http"

	"studyquiz_backend/internal/game"
	"studyquiz_backend/internal/selection"
	"studyquiz_backend/internal/service"
	"studyquiz_backend/internal/session"
	"studyquiz_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// errorStatus 领域错误对应的 HTTP 状态码，未列出的按 500 处理
var errorStatus = []struct {
	err    error
	status int
}{
	{util.ErrForbidden, http.StatusForbidden},
	{util.ErrUserNotFound, http.StatusNotFound},
	{util.ErrGroupNotFound, http.StatusNotFound},
	{util.ErrQuestionNotFound, http.StatusNotFound},
	{util.ErrSessionNotFound, http.StatusNotFound},
	{util.ErrGameNotFound, http.StatusNotFound},
	{util.ErrEmailRegistered, http.StatusConflict},
	{util.ErrLastAdmin, http.StatusConflict},
	{util.ErrBadCredentials, http.StatusUnauthorized},
	{util.ErrNoGroup, http.StatusBadRequest},
	{util.ErrNoAllowedTypes, http.StatusBadRequest},
	{util.ErrInvalidConfig, http.StatusBadRequest},
	{util.ErrNotGradable, http.StatusUnprocessableEntity},
	{service.ErrUnsupportedImage, http.StatusBadRequest},
	{service.ErrDiagramTooLarge, http.StatusRequestEntityTooLarge},
	{selection.ErrInsufficientPool, http.StatusUnprocessableEntity},
	{session.ErrInvalidIndex, http.StatusBadRequest},
	{session.ErrUnknownQuestion, http.StatusBadRequest},
	{session.ErrNotGraded, http.StatusConflict},
	{session.ErrSessionClosed, http.StatusConflict},
	{session.ErrInvalidTransition, http.StatusConflict},
	{game.ErrUnknownQuestion, http.StatusBadRequest},
	{game.ErrAlreadyAnswered, http.StatusConflict},
	{game.ErrGameOver, http.StatusConflict},
}

// respondError 把 service 层错误转换为统一响应
func respondError(ctx *gin.Context, err error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			util.Error(ctx, e.status, err.Error())
			return
		}
	}
	util.LogInternalError(ctx, err)
}
