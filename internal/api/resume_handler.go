package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"jobassist/internal/database"
	"jobassist/internal/documents"
	"jobassist/internal/generator"
	"jobassist/internal/storage"
)

// DefaultMaxUploadBytes 为简历上传的大小上限（5 MB）。
const DefaultMaxUploadBytes int64 = 5 * 1024 * 1024

const downloadLinkTTL = 5 * time.Minute

var allowedUploadMIMEs = map[string]struct{}{
	"text/plain":               {},
	"application/x-tex":        {},
	"text/x-tex":               {},
	"application/x-latex":      {},
	"text/x-latex":             {},
	"application/octet-stream": {},
}

// ResumeHandler 负责处理与简历相关的 API 请求。
type ResumeHandler struct {
	db        *gorm.DB
	store     storage.ObjectStore
	docs      *documents.Service
	logger    *slog.Logger
	ClamdAddr string
	MaxBytes  int64
}

// NewResumeHandler 构造 ResumeHandler。
func NewResumeHandler(db *gorm.DB, store storage.ObjectStore, docs *documents.Service, logger *slog.Logger, clamdAddr string) *ResumeHandler {
	return &ResumeHandler{
		db:        db,
		store:     store,
		docs:      docs,
		logger:    logger,
		ClamdAddr: clamdAddr,
		MaxBytes:  DefaultMaxUploadBytes,
	}
}

type createResumeRequest struct {
	Title     string `json:"title" binding:"max=255"`
	Content   string `json:"content" binding:"required"`
	Format    string `json:"format" binding:"required"`
	IsPrimary bool   `json:"isPrimary"`
}

// CreateResume 保存一份新简历，内容同时写入对象存储。
func (h *ResumeHandler) CreateResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req createResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if !validFormat(req.Format) {
		BadRequest(c, "invalid format, must be either latex or text")
		return
	}

	ctx := c.Request.Context()
	logger := requestLogger(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))

	key := resumeObjectKey(userID, req.Format)
	obj, err := h.store.Put(ctx, key, strings.NewReader(req.Content), int64(len(req.Content)), contentTypeFor(req.Format))
	if err != nil {
		logger.Error("store resume content failed", slog.Any("error", err))
		Internal(c, "internal server error")
		return
	}

	resume := database.Resume{
		UserID:    userID,
		Title:     strings.TrimSpace(req.Title),
		Content:   req.Content,
		Format:    req.Format,
		IsPrimary: req.IsPrimary,
		FileName:  resumeFileName(req.Title, req.Format),
		FileKey:   obj.Key,
		FileURL:   obj.URL,
	}
	if err := database.CreateResume(ctx, h.db, &resume); err != nil {
		logger.Error("create resume failed", slog.Any("error", err))
		h.deleteBlob(ctx, logger, obj.Key)
		Internal(c, "internal server error")
		return
	}

	c.JSON(http.StatusCreated, resume)
}

// ListResumes 列出当前用户的简历，主简历在前。
func (h *ResumeHandler) ListResumes(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	resumes, err := database.ListResumes(c.Request.Context(), h.db, userID)
	if err != nil {
		requestLogger(c, h.logger).Error("list resumes failed", slog.Any("error", err))
		Internal(c, "internal server error")
		return
	}
	c.JSON(http.StatusOK, resumes)
}

type updateResumeRequest struct {
	Content   *string `json:"content"`
	Format    *string `json:"format"`
	IsPrimary *bool   `json:"isPrimary"`
}

// UpdateResume 更新简历内容、格式或主简历标记；未提供的字段保持不变。
func (h *ResumeHandler) UpdateResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	resumeID, ok := parseIDParam(c, "id")
	if !ok {
		BadRequest(c, "invalid resume id")
		return
	}

	var req updateResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if req.Format != nil && !validFormat(*req.Format) {
		BadRequest(c, "invalid format, must be either latex or text")
		return
	}

	ctx := c.Request.Context()
	logger := requestLogger(c, h.logger).With(
		slog.Uint64("user_id", uint64(userID)),
		slog.Uint64("resume_id", uint64(resumeID)),
	)

	existing, err := database.FindResumeForUser(ctx, h.db, userID, resumeID)
	if errors.Is(err, database.ErrResumeNotFound) {
		NotFound(c, "resume not found")
		return
	}
	if err != nil {
		logger.Error("load resume failed", slog.Any("error", err))
		Internal(c, "internal server error")
		return
	}

	update := database.ResumeUpdate{
		Content:   req.Content,
		Format:    req.Format,
		IsPrimary: req.IsPrimary,
	}
	// 新内容写入新键；数据库更新成功后才删除旧对象，失败则丢弃新对象。
	var written string
	if req.Content != nil {
		format := existing.Format
		if req.Format != nil {
			format = *req.Format
		}
		obj, err := h.store.Put(ctx, resumeObjectKey(userID, format), strings.NewReader(*req.Content), int64(len(*req.Content)), contentTypeFor(format))
		if err != nil {
			logger.Error("rewrite resume content failed", slog.Any("error", err))
			Internal(c, "internal server error")
			return
		}
		written = obj.Key
		update.FileKey = &obj.Key
		update.FileURL = &obj.URL
	}

	resume, err := database.UpdateResume(ctx, h.db, userID, resumeID, update)
	if err != nil && written != "" {
		if delErr := h.store.Delete(ctx, written); delErr != nil {
			logger.Warn("discard rewritten object failed", slog.String("key", written), slog.Any("error", delErr))
		}
	}
	if errors.Is(err, database.ErrResumeNotFound) {
		NotFound(c, "resume not found")
		return
	}
	if err != nil {
		logger.Error("update resume failed", slog.Any("error", err))
		Internal(c, "internal server error")
		return
	}
	if written != "" && existing.FileKey != "" && existing.FileKey != written {
		if err := h.store.Delete(ctx, existing.FileKey); err != nil {
			logger.Warn("remove previous resume object failed", slog.String("key", existing.FileKey), slog.Any("error", err))
		}
	}
	c.JSON(http.StatusOK, resume)
}

// DeleteResume 删除简历记录；存储文件删除失败只记录日志。
func (h *ResumeHandler) DeleteResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	resumeID, ok := parseIDParam(c, "id")
	if !ok {
		BadRequest(c, "invalid resume id")
		return
	}

	ctx := c.Request.Context()
	logger := requestLogger(c, h.logger).With(
		slog.Uint64("user_id", uint64(userID)),
		slog.Uint64("resume_id", uint64(resumeID)),
	)

	deleted, err := database.DeleteResume(ctx, h.db, userID, resumeID)
	if errors.Is(err, database.ErrResumeNotFound) {
		NotFound(c, "resume not found")
		return
	}
	if err != nil {
		logger.Error("delete resume failed", slog.Any("error", err))
		Internal(c, "internal server error")
		return
	}

	h.deleteBlob(ctx, logger, deleted.FileKey)
	c.Status(http.StatusNoContent)
}

// SetPrimaryResume 将指定简历设为主简历。
func (h *ResumeHandler) SetPrimaryResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	resumeID, ok := parseIDParam(c, "id")
	if !ok {
		BadRequest(c, "invalid resume id")
		return
	}

	resume, err := database.SetPrimaryResume(c.Request.Context(), h.db, userID, resumeID)
	if errors.Is(err, database.ErrResumeNotFound) {
		NotFound(c, "resume not found")
		return
	}
	if err != nil {
		requestLogger(c, h.logger).Error("set primary resume failed", slog.Any("error", err))
		Internal(c, "internal server error")
		return
	}
	c.JSON(http.StatusOK, resume)
}

// UploadResume 接收 .txt/.tex 文件，可选病毒扫描后保存。
func (h *ResumeHandler) UploadResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	maxBytes := h.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	// 为 multipart 头部预留余量。
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+64*1024)

	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			BadRequest(c, "file too large")
			return
		}
		BadRequest(c, "no file uploaded")
		return
	}
	if file.Size > maxBytes {
		BadRequest(c, "file too large")
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext != ".txt" && ext != ".tex" {
		BadRequest(c, "only .txt and .tex files are allowed")
		return
	}
	contentType := file.Header.Get("Content-Type")
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			BadRequest(c, "only .txt and .tex files are allowed")
			return
		}
		if _, ok := allowedUploadMIMEs[mediaType]; !ok {
			BadRequest(c, "only .txt and .tex files are allowed")
			return
		}
	}

	ctx := c.Request.Context()
	logger := requestLogger(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))

	src, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}
	data, err := io.ReadAll(src)
	src.Close()
	if err != nil {
		Internal(c, "failed to read file")
		return
	}
	if !utf8.Valid(data) {
		BadRequest(c, "file must be utf-8 text")
		return
	}

	if h.ClamdAddr != "" {
		clean, err := scanWithClamd(h.ClamdAddr, data)
		if err != nil {
			logger.Error("scan file failed", slog.Any("error", err))
			Internal(c, "failed to scan file")
			return
		}
		if !clean {
			logger.Warn("malicious upload rejected", slog.String("file_name", file.Filename))
			BadRequest(c, "malicious file detected")
			return
		}
	}

	format := database.FormatText
	if ext == ".tex" {
		format = database.FormatLatex
	}

	obj, err := h.store.Put(ctx, resumeObjectKey(userID, format), bytes.NewReader(data), int64(len(data)), contentTypeFor(format))
	if err != nil {
		logger.Error("store upload failed", slog.Any("error", err))
		Internal(c, "failed to upload resume")
		return
	}

	resume := database.Resume{
		UserID:   userID,
		Title:    strings.TrimSuffix(filepath.Base(file.Filename), filepath.Ext(file.Filename)),
		Content:  string(data),
		Format:   format,
		FileName: filepath.Base(file.Filename),
		FileKey:  obj.Key,
		FileURL:  obj.URL,
	}
	if err := database.CreateUploadedResume(ctx, h.db, &resume); err != nil {
		logger.Error("create uploaded resume failed", slog.Any("error", err))
		h.deleteBlob(ctx, logger, obj.Key)
		Internal(c, "failed to upload resume")
		return
	}

	logger.Info("resume uploaded", slog.Uint64("resume_id", uint64(resume.ID)), slog.Bool("primary", resume.IsPrimary))
	c.JSON(http.StatusCreated, resume)
}

// TailorResume 基于主简历为指定职位生成定制简历。
func (h *ResumeHandler) TailorResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	jobID, ok := parseIDParam(c, "jobId")
	if !ok {
		BadRequest(c, "invalid job id")
		return
	}

	result, err := h.docs.TailorResume(c.Request.Context(), userID, jobID)
	if err != nil {
		logger := requestLogger(c, h.logger).With(
			slog.Uint64("user_id", uint64(userID)),
			slog.Uint64("job_id", uint64(jobID)),
		)
		switch {
		case errors.Is(err, documents.ErrNoPrimaryResume):
			NotFound(c, "no primary resume found")
		case errors.Is(err, documents.ErrJobNotFound):
			NotFound(c, "job not found")
		case errors.Is(err, documents.ErrJobForbidden):
			Forbidden(c, "job does not belong to user")
		case errors.Is(err, documents.ErrUserNotFound):
			NotFound(c, "user not found")
		case errors.Is(err, documents.ErrEmptyResume):
			BadRequest(c, "primary resume has no content")
		default:
			var scriptErr *generator.ScriptError
			if errors.As(err, &scriptErr) {
				logger.Error("tailor script failed", slog.Int("exit_code", scriptErr.ExitCode), slog.String("stderr", scriptErr.Stderr))
			} else {
				logger.Error("tailor resume failed", slog.Any("error", err))
			}
			Internal(c, "failed to generate tailored resume")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"path":     result.Path,
		"filename": result.FileName,
	})
}

// DownloadResumeFile 从存储中读取简历原文件并以附件返回。
func (h *ResumeHandler) DownloadResumeFile(c *gin.Context) {
	resume, ok := h.storedResume(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	rc, err := h.store.Get(ctx, resume.FileKey)
	if err != nil {
		if storage.IsNoSuchKey(err) {
			NotFound(c, "resume file not found")
			return
		}
		requestLogger(c, h.logger).Error("read resume blob failed", slog.String("file_key", resume.FileKey), slog.Any("error", err))
		Internal(c, "failed to read resume file")
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": resume.FileName}))
	c.DataFromReader(http.StatusOK, -1, contentTypeFor(resume.Format), rc, nil)
}

// GetDownloadLink 返回简历文件的下载地址；MinIO 返回预签名链接，本地存储返回文件接口。
func (h *ResumeHandler) GetDownloadLink(c *gin.Context) {
	resume, ok := h.storedResume(c)
	if !ok {
		return
	}

	presigner, ok := h.store.(storage.Presigner)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"url": fmt.Sprintf("/resumes/%d/file", resume.ID)})
		return
	}
	signedURL, err := presigner.PresignedURL(c.Request.Context(), resume.FileKey, downloadLinkTTL)
	if err != nil {
		requestLogger(c, h.logger).Error("generate presigned url failed", slog.Any("error", err))
		Internal(c, "failed to generate download link")
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": signedURL})
}

// storedResume 加载当前用户的简历并确认其存储键可访问，失败时已写出响应。
func (h *ResumeHandler) storedResume(c *gin.Context) (*database.Resume, bool) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return nil, false
	}
	resumeID, ok := parseIDParam(c, "id")
	if !ok {
		BadRequest(c, "invalid resume id")
		return nil, false
	}

	resume, err := database.FindResumeForUser(c.Request.Context(), h.db, userID, resumeID)
	if errors.Is(err, database.ErrResumeNotFound) {
		NotFound(c, "resume not found")
		return nil, false
	}
	if err != nil {
		Internal(c, "failed to query resume")
		return nil, false
	}
	if resume.FileKey == "" {
		Conflict(c, "resume has no stored file")
		return nil, false
	}
	if !isUserResumeObjectKey(userID, resume.FileKey) {
		requestLogger(c, h.logger).Warn("resume file key outside user prefix", slog.String("file_key", resume.FileKey))
		Forbidden(c, "access denied")
		return nil, false
	}
	return resume, true
}

func (h *ResumeHandler) deleteBlob(ctx context.Context, logger *slog.Logger, key string) {
	if key == "" {
		return
	}
	if err := h.store.Delete(ctx, key); err != nil {
		logger.Warn("delete resume blob failed", slog.String("file_key", key), slog.Any("error", err))
	}
}

// scanWithClamd 通过 clamd 扫描数据流，返回是否干净。
func scanWithClamd(addr string, data []byte) (bool, error) {
	client := clamd.NewClamd(addr)
	abort := make(chan bool)
	defer close(abort)

	results, err := client.ScanStream(bytes.NewReader(data), abort)
	if err != nil {
		return false, fmt.Errorf("clamd scan stream: %w", err)
	}
	clean := true
	for result := range results {
		if result.Status != clamd.RES_OK {
			clean = false
		}
	}
	return clean, nil
}

func validFormat(format string) bool {
	return format == database.FormatLatex || format == database.FormatText
}

func formatExt(format string) string {
	if format == database.FormatLatex {
		return "tex"
	}
	return "txt"
}

func contentTypeFor(format string) string {
	if format == database.FormatLatex {
		return "application/x-tex"
	}
	return "text/plain; charset=utf-8"
}

func resumeObjectKey(userID uint, format string) string {
	return fmt.Sprintf("resumes/%d/%s.%s", userID, uuid.NewString(), formatExt(format))
}

func resumeFileName(title, format string) string {
	base := strings.TrimSpace(title)
	if base == "" {
		base = "resume"
	}
	base = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, base)
	return base + "." + formatExt(format)
}
