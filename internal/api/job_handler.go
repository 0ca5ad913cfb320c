package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"jobassist/internal/database"
	"jobassist/internal/generator"
	"jobassist/internal/metrics"
)

// JobHandler 处理职位搜索与已保存职位查询。
type JobHandler struct {
	db            *gorm.DB
	scraper       generator.JobScraper
	logger        *slog.Logger
	defaultWanted int
}

// NewJobHandler 构造 JobHandler。
func NewJobHandler(db *gorm.DB, scraper generator.JobScraper, logger *slog.Logger, defaultWanted int) *JobHandler {
	if defaultWanted <= 0 {
		defaultWanted = 20
	}
	return &JobHandler{db: db, scraper: scraper, logger: logger, defaultWanted: defaultWanted}
}

type searchJobsRequest struct {
	SearchTerm    string `json:"search_term"`
	Location      string `json:"location"`
	ResultsWanted int    `json:"results_wanted" binding:"omitempty,min=1,max=200"`
}

// SearchJobs 调用抓取脚本并逐条保存结果；单条失败只记录日志，不回滚其他记录。
func (h *JobHandler) SearchJobs(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req searchJobsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	req.SearchTerm = strings.TrimSpace(req.SearchTerm)
	req.Location = strings.TrimSpace(req.Location)
	if req.SearchTerm == "" || req.Location == "" {
		BadRequest(c, "missing required parameters")
		return
	}
	if req.ResultsWanted == 0 {
		req.ResultsWanted = h.defaultWanted
	}

	ctx := c.Request.Context()
	logger := requestLogger(c, h.logger).With(
		slog.Uint64("user_id", uint64(userID)),
		slog.String("search_term", req.SearchTerm),
		slog.String("location", req.Location),
	)

	scraped, err := h.scraper.Search(ctx, generator.Query{
		SearchTerm:    req.SearchTerm,
		Location:      req.Location,
		ResultsWanted: req.ResultsWanted,
	})
	if err != nil {
		logger.Error("job scraper failed", slog.Any("error", err))
		Internal(c, "failed to process job data")
		return
	}

	saved := make([]database.JobPost, 0, len(scraped))
	for i, item := range scraped {
		if item.DecodeErr != nil {
			logger.Warn("skip malformed job", slog.Int("index", i), slog.Any("error", item.DecodeErr))
			continue
		}
		job := jobPostFromScraped(userID, item)
		if err := h.db.WithContext(ctx).Create(&job).Error; err != nil {
			logger.Warn("save job failed", slog.Int("index", i), slog.String("title", job.Title), slog.Any("error", err))
			continue
		}
		saved = append(saved, job)
	}
	metrics.ObserveJobsSaved(len(saved), len(scraped)-len(saved))

	logger.Info("job search completed", slog.Int("scraped", len(scraped)), slog.Int("saved", len(saved)))
	c.JSON(http.StatusOK, saved)
}

// GetUserJobs 返回当前用户保存的职位，最新的在前。
func (h *JobHandler) GetUserJobs(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var jobs []database.JobPost
	if err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&jobs).Error; err != nil {
		requestLogger(c, h.logger).Error("list jobs failed", slog.Any("error", err))
		Internal(c, "internal server error")
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func jobPostFromScraped(userID uint, s generator.ScrapedJob) database.JobPost {
	job := database.JobPost{
		UserID:          userID,
		Title:           deref(s.Title),
		Company:         deref(s.Company),
		CompanyURL:      nonEmpty(s.CompanyURL),
		JobURL:          deref(s.JobURL),
		IsRemote:        bool(s.IsRemote),
		Description:     deref(s.Description),
		JobType:         deref(s.JobType),
		DatePosted:      parseDatePosted(s.DatePosted),
		CompanyIndustry: nonEmpty(s.CompanyIndustry),
		CompanyLogo:     nonEmpty(s.CompanyLogo),
		Raw:             datatypes.JSON(s.Raw),
	}
	if s.Location != nil {
		job.Country = nonEmpty(s.Location.Country)
		job.City = nonEmpty(s.Location.City)
		job.State = nonEmpty(s.Location.State)
	}
	if s.Salary != nil {
		job.SalaryInterval = nonEmpty(s.Salary.Interval)
		job.SalaryMinAmount = s.Salary.MinAmount
		job.SalaryMaxAmount = s.Salary.MaxAmount
		job.SalaryCurrency = nonEmpty(s.Salary.Currency)
	}
	if len(job.Raw) == 0 {
		job.Raw = datatypes.JSON("{}")
	}
	return job
}

var datePostedLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", time.DateTime, time.DateOnly}

// parseDatePosted 解析抓取到的发布日期，缺失或无法解析时取当前时间。
func parseDatePosted(raw *string) time.Time {
	if raw == nil {
		return time.Now().UTC()
	}
	value := strings.TrimSpace(*raw)
	for _, layout := range datePostedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
