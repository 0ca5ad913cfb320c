package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"jobassist/internal/database"
	"jobassist/internal/documents"
	"jobassist/internal/errcode"
	"jobassist/internal/generator"
	"jobassist/internal/tasks"
)

// CoverLetterGenerator 是任务处理器依赖的生成能力。
type CoverLetterGenerator interface {
	GenerateCoverLetter(ctx context.Context, userID, jobID uint) (*database.CoverLetter, error)
}

// CoverLetterTaskHandler 负责消费求职信生成任务。
type CoverLetterTaskHandler struct {
	docs      CoverLetterGenerator
	publisher Publisher
	logger    *slog.Logger
}

// NewCoverLetterTaskHandler 创建任务处理器。
func NewCoverLetterTaskHandler(docs CoverLetterGenerator, publisher Publisher, logger *slog.Logger) *CoverLetterTaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CoverLetterTaskHandler{docs: docs, publisher: publisher, logger: logger}
}

// ProcessTask 实现 asynq.Handler。
// 数据类错误（无密钥、无主简历、职位不可用）直接跳过重试；脚本失败按 asynq 策略重试，
// 最后一次失败时通知前端。
func (h *CoverLetterTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.CoverLetterGeneratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("user_id", uint64(payload.UserID)),
		slog.Uint64("job_id", uint64(payload.JobID)),
	)
	log.Info("starting cover letter generation task")

	notify := CoverLetterNotifyMessage{
		Type:          "cover_letter",
		JobID:         payload.JobID,
		CorrelationID: payload.CorrelationID,
	}

	letter, err := h.docs.GenerateCoverLetter(ctx, payload.UserID, payload.JobID)
	if err != nil {
		code, permanent := classify(err)
		notify.Status = "error"
		notify.ErrorCode = code
		notify.ErrorMessage = err.Error()
		var scriptErr *generator.ScriptError
		if errors.As(err, &scriptErr) {
			notify.Detail = scriptErr.Stderr
		}

		if permanent || isFinalAsynqAttempt(ctx) {
			if perr := publishNotify(ctx, h.publisher, payload.UserID, notify); perr != nil {
				log.Error("publish error notification failed", slog.Any("error", perr))
			}
		}
		if permanent {
			log.Warn("cover letter task rejected", slog.Any("error", err))
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		log.Error("cover letter generation failed", slog.Any("error", err))
		return err
	}

	notify.Status = "completed"
	notify.ErrorCode = errcode.OK
	notify.CoverLetterID = letter.ID
	notify.FileName = letter.FileName
	if err := publishNotify(ctx, h.publisher, payload.UserID, notify); err != nil {
		// 记录已落库，通知失败不重试。
		log.Error("publish completion notification failed", slog.Any("error", err))
	}

	log.Info("cover letter generation task completed", slog.Uint64("cover_letter_id", uint64(letter.ID)))
	return nil
}

func classify(err error) (code int, permanent bool) {
	switch {
	case errors.Is(err, documents.ErrNoAPIKey):
		return errcode.NoAPIKey, true
	case errors.Is(err, documents.ErrJobForbidden):
		return errcode.JobForbidden, true
	case errors.Is(err, documents.ErrJobNotFound),
		errors.Is(err, documents.ErrNoPrimaryResume),
		errors.Is(err, documents.ErrUserNotFound):
		return errcode.ResourceMissing, true
	}
	var scriptErr *generator.ScriptError
	if errors.As(err, &scriptErr) {
		return errcode.ScriptFailed, false
	}
	return errcode.SystemError, false
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
