package service

import (
	"context"
	"fmt"
	"io"

	"studyquiz_backend/internal/grading"
	"studyquiz_backend/internal/model"
	"studyquiz_backend/internal/quiz"
	"studyquiz_backend/internal/util"
	"studyquiz_backend/pkg/logger"
	"studyquiz_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DefaultFlagThreshold 被举报次数达到该值时自动归档
const DefaultFlagThreshold = 5

// QuestionService 题目的创建、投票、举报与归档
type QuestionService struct {
	Groups        GroupStore
	Poster        QuestionPoster
	Questions     QuestionStore
	Progress      *ProgressService
	Storage       *StorageService
	FlagThreshold int
}

func NewQuestionService(groups GroupStore, poster QuestionPoster, questions QuestionStore, progress *ProgressService, storage *StorageService) *QuestionService {
	return &QuestionService{
		Groups:        groups,
		Poster:        poster,
		Questions:     questions,
		Progress:      progress,
		Storage:       storage,
		FlagThreshold: DefaultFlagThreshold,
	}
}

func (s *QuestionService) requireMember(ctx context.Context, groupID, userID string) error {
	ok, err := s.Groups.IsMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return util.ErrForbidden
	}
	return nil
}

func (s *QuestionService) find(ctx context.Context, questionID string) (quiz.Question, error) {
	q, err := s.Questions.FindByID(ctx, questionID)
	return q, notFound(err, util.ErrQuestionNotFound)
}

// Author 按编辑操作构建题目并发布到小组
func (s *QuestionService) Author(ctx context.Context, userID, groupID string, t quiz.QuestionType, ops []quiz.EditOp) (quiz.Question, error) {
	ctx, span := tracing.StartSpan(ctx, "QuestionService.Author",
		attribute.String("group.id", groupID),
		attribute.String("question.type", string(t)))
	defer span.End()

	if !t.Valid() {
		return quiz.Question{}, fmt.Errorf("%w: unknown question type %q", util.ErrInvalidConfig, t)
	}
	if err := s.requireMember(ctx, groupID, userID); err != nil {
		return quiz.Question{}, err
	}

	q := quiz.ApplyAll(quiz.NewDraft(groupID, userID, t), ops...).Build()
	if q.Stem == "" {
		return quiz.Question{}, fmt.Errorf("%w: question stem is empty", util.ErrInvalidConfig)
	}
	if q.Type != quiz.OpenEnded && !grading.IsGradable(q) {
		return quiz.Question{}, util.ErrNotGradable
	}

	saved, err := s.Poster.PostQuestion(ctx, q)
	if err != nil {
		tracing.RecordError(span, err)
		return quiz.Question{}, err
	}
	if s.Progress != nil {
		if _, err := s.Progress.Apply(ctx, userID, map[quiz.Metric]int{quiz.MetricQuestionsAuthored: 1}); err != nil {
			logger.Log.Error("Apply authoring progress failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	logger.Log.Info("Question authored",
		zap.String("question_id", saved.ID),
		zap.String("group_id", groupID),
		zap.String("type", string(saved.Type)))
	return saved, nil
}

func (s *QuestionService) List(ctx context.Context, userID, groupID string, includeArchived bool) ([]quiz.Question, error) {
	if err := s.requireMember(ctx, groupID, userID); err != nil {
		return nil, err
	}
	return s.Questions.ListByGroup(ctx, groupID, includeArchived)
}

// Vote 对题目投赞成或反对票；作者不能给自己的题目投票
func (s *QuestionService) Vote(ctx context.Context, userID, questionID string, up bool) (quiz.Question, error) {
	q, err := s.find(ctx, questionID)
	if err != nil {
		return quiz.Question{}, err
	}
	if q.AuthorID == userID {
		return quiz.Question{}, util.ErrForbidden
	}
	if err := s.requireMember(ctx, q.GroupID, userID); err != nil {
		return quiz.Question{}, err
	}

	updated, firstVote, err := s.Questions.Vote(ctx, questionID, userID, up)
	if err != nil {
		return quiz.Question{}, err
	}
	if s.Progress != nil {
		if firstVote {
			if _, err := s.Progress.Apply(ctx, userID, map[quiz.Metric]int{quiz.MetricVotesCast: 1}); err != nil {
				logger.Log.Error("Apply vote progress failed", zap.String("user_id", userID), zap.Error(err))
			}
		}
		if up {
			if _, err := s.Progress.ApplyRisingStar(ctx, updated.AuthorID, updated.Upvotes); err != nil {
				logger.Log.Error("Apply rising star failed", zap.String("author_id", updated.AuthorID), zap.Error(err))
			}
		}
	}
	return updated, nil
}

// Flag 举报题目，达到阈值后自动归档
func (s *QuestionService) Flag(ctx context.Context, userID, questionID, reason string) (int, error) {
	q, err := s.find(ctx, questionID)
	if err != nil {
		return 0, err
	}
	if err := s.requireMember(ctx, q.GroupID, userID); err != nil {
		return 0, err
	}
	count, err := s.Questions.Flag(ctx, questionID, userID, reason)
	if err != nil {
		return 0, err
	}
	if s.FlagThreshold > 0 && count >= s.FlagThreshold && !q.Archived {
		if err := s.Questions.Archive(ctx, questionID); err != nil {
			return count, err
		}
		logger.Log.Info("Question archived by flags", zap.String("question_id", questionID), zap.Int("flags", count))
	}
	return count, nil
}

// Archive 作者或小组管理员可以归档题目
func (s *QuestionService) Archive(ctx context.Context, userID, questionID string) error {
	q, err := s.find(ctx, questionID)
	if err != nil {
		return err
	}
	if q.AuthorID != userID {
		role, ok, err := s.Groups.RoleOf(ctx, q.GroupID, userID)
		if err != nil {
			return err
		}
		if !ok || role != model.GroupRoleAdmin {
			return util.ErrForbidden
		}
	}
	return s.Questions.Archive(ctx, questionID)
}

// UploadDiagram 上传示意图，返回的 URL 用于 SetImage 编辑操作
func (s *QuestionService) UploadDiagram(ctx context.Context, userID, groupID, filename string, reader io.Reader, size int64) (string, error) {
	if err := s.requireMember(ctx, groupID, userID); err != nil {
		return "", err
	}
	return s.Storage.UploadDiagram(ctx, groupID, filename, reader, size)
}

// AttachDiagram 替换已有题目的示意图，仅作者可操作
func (s *QuestionService) AttachDiagram(ctx context.Context, userID, questionID, url string) error {
	q, err := s.find(ctx, questionID)
	if err != nil {
		return err
	}
	if q.AuthorID != userID {
		return util.ErrForbidden
	}
	return s.Questions.SetImage(ctx, questionID, url)
}
