package util

import "errors"

var (
	ErrUserNotFound    = errors.New("用户不存在")
	ErrEmailRegistered = errors.New("该邮箱已被注册")
	ErrBadCredentials  = errors.New("邮箱或密码错误")
	ErrForbidden       = errors.New("permission denied")

	// 会话配置错误，在创建会话之前同步返回
	ErrNoGroup        = errors.New("no target group resolvable")
	ErrNoAllowedTypes = errors.New("at least one question type must be allowed")
	ErrInvalidConfig  = errors.New("invalid session configuration")

	ErrSessionNotFound  = errors.New("session not found")
	ErrGameNotFound     = errors.New("game not found")
	ErrGroupNotFound    = errors.New("group not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrNotGradable      = errors.New("question is missing a complete answer key")
	ErrLastAdmin        = errors.New("group must keep at least one admin")
)
