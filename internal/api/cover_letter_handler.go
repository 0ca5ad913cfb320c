package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"jobassist/internal/api/middleware"
	"jobassist/internal/database"
	"jobassist/internal/documents"
	"jobassist/internal/generator"
	"jobassist/internal/tasks"
)

// TaskEnqueuer 为投递异步任务所需的 asynq 客户端能力。
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// CoverLetterHandler 处理求职信的同步生成、异步投递、列表与下载。
type CoverLetterHandler struct {
	db       *gorm.DB
	docs     *documents.Service
	queue    TaskEnqueuer
	logger   *slog.Logger
	maxRetry int
}

// NewCoverLetterHandler 构造 CoverLetterHandler。queue 为 nil 时异步接口返回 503。
func NewCoverLetterHandler(db *gorm.DB, docs *documents.Service, queue TaskEnqueuer, logger *slog.Logger, maxRetry int) *CoverLetterHandler {
	return &CoverLetterHandler{db: db, docs: docs, queue: queue, logger: logger, maxRetry: maxRetry}
}

// GenerateCoverLetter 同步调用生成脚本并返回新记录。
func (h *CoverLetterHandler) GenerateCoverLetter(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	jobID, ok := parseIDParam(c, "id")
	if !ok {
		BadRequest(c, "invalid job id")
		return
	}

	logger := requestLogger(c, h.logger).With(
		slog.Uint64("user_id", uint64(userID)),
		slog.Uint64("job_id", uint64(jobID)),
	)

	letter, err := h.docs.GenerateCoverLetter(c.Request.Context(), userID, jobID)
	if err != nil {
		var scriptErr *generator.ScriptError
		switch {
		case errors.Is(err, documents.ErrJobNotFound):
			NotFound(c, "job not found")
		case errors.Is(err, documents.ErrJobForbidden):
			Forbidden(c, "job does not belong to user")
		case errors.Is(err, documents.ErrNoPrimaryResume):
			NotFound(c, "no primary resume found or resume has no content")
		case errors.Is(err, documents.ErrUserNotFound):
			NotFound(c, "user not found")
		case errors.Is(err, documents.ErrNoAPIKey):
			BadRequest(c, "no API key configured, please add an API key in settings")
		case errors.As(err, &scriptErr):
			logger.Error("cover letter script failed", slog.Int("exit_code", scriptErr.ExitCode), slog.String("stderr", scriptErr.Stderr))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":  "failed to generate cover letter",
				"detail": scriptErr.Stderr,
			})
		default:
			logger.Error("generate cover letter failed", slog.Any("error", err))
			Internal(c, "failed to generate cover letter")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"coverLetterId": letter.ID,
		"fileName":      letter.FileName,
		"coverLetter":   letter,
	})
}

// GenerateCoverLetterAsync 投递后台生成任务，结果经 WebSocket 推送。
func (h *CoverLetterHandler) GenerateCoverLetterAsync(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	jobID, ok := parseIDParam(c, "id")
	if !ok {
		BadRequest(c, "invalid job id")
		return
	}
	if h.queue == nil {
		Error(c, http.StatusServiceUnavailable, "background generation unavailable")
		return
	}

	ctx := c.Request.Context()
	var job database.JobPost
	if err := h.db.WithContext(ctx).First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "job not found")
			return
		}
		Internal(c, "internal server error")
		return
	}
	if job.UserID != userID {
		Forbidden(c, "job does not belong to user")
		return
	}

	correlationID := middleware.GetCorrelationID(c)
	task, err := tasks.NewCoverLetterGenerateTask(userID, jobID, correlationID, h.maxRetry)
	if err != nil {
		Internal(c, "failed to create task")
		return
	}
	info, err := h.queue.EnqueueContext(ctx, task)
	if err != nil {
		requestLogger(c, h.logger).Error("enqueue cover letter task failed", slog.Any("error", err))
		Internal(c, "failed to enqueue task")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"task_id":        info.ID,
		"correlation_id": correlationID,
	})
}

// ListCoverLetters 返回当前用户的求职信，最新的在前。
func (h *CoverLetterHandler) ListCoverLetters(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var letters []database.CoverLetter
	if err := h.db.WithContext(c.Request.Context()).
		Preload("Job").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&letters).Error; err != nil {
		requestLogger(c, h.logger).Error("list cover letters failed", slog.Any("error", err))
		Internal(c, "internal server error")
		return
	}
	c.JSON(http.StatusOK, letters)
}

// DownloadCoverLetter 以附件形式返回求职信文件。
func (h *CoverLetterHandler) DownloadCoverLetter(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	letterID, ok := parseIDParam(c, "id")
	if !ok {
		BadRequest(c, "invalid cover letter id")
		return
	}

	var letter database.CoverLetter
	err := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", letterID, userID).
		First(&letter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		NotFound(c, "cover letter not found")
		return
	}
	if err != nil {
		Internal(c, "internal server error")
		return
	}

	if _, err := os.Stat(letter.FilePath); err != nil {
		requestLogger(c, h.logger).Warn("cover letter file missing", slog.String("path", letter.FilePath), slog.Any("error", err))
		NotFound(c, "cover letter file not found")
		return
	}
	c.FileAttachment(letter.FilePath, letter.FileName)
}
