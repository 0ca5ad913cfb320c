package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"jobassist/internal/config"
	"jobassist/internal/database"
	"jobassist/internal/generator"
)

var (
	ErrNoPrimaryResume = errors.New("no primary resume found")
	ErrEmptyResume     = errors.New("primary resume has no content")
	ErrJobNotFound     = errors.New("job not found")
	ErrJobForbidden    = errors.New("job belongs to another user")
	ErrNoAPIKey        = errors.New("no API key configured")
	ErrUserNotFound    = errors.New("user not found")
)

// Service 编排简历定制与求职信生成，供 HTTP 与异步任务共用。
type Service struct {
	db           *gorm.DB
	tailor       generator.DocumentGenerator
	coverLetters generator.DocumentGenerator
	paths        config.PathsConfig
	logger       *slog.Logger
}

// NewService 返回 Service 实例。
func NewService(db *gorm.DB, tailor, coverLetters generator.DocumentGenerator, paths config.PathsConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:           db,
		tailor:       tailor,
		coverLetters: coverLetters,
		paths:        paths,
		logger:       logger,
	}
}

// TailorResult is the outcome of a tailoring run.
type TailorResult struct {
	Path     string `json:"path"`
	FileName string `json:"filename"`
}

// TailorResume 用主简历和指定职位生成定制简历。
func (s *Service) TailorResume(ctx context.Context, userID, jobID uint) (*TailorResult, error) {
	resume, err := s.primaryResume(ctx, userID)
	if err != nil {
		return nil, err
	}
	job, err := s.ownedJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if resume.Content == "" {
		return nil, ErrEmptyResume
	}

	artifact, err := s.runWithTempResume(ctx, s.tailor, resume, generator.Request{
		Job:         jobData(job),
		Credentials: TailorCredentials(*user),
		OutputDir:   s.paths.TailoredDir,
	})
	if err != nil {
		return nil, err
	}
	return &TailorResult{Path: artifact.Path, FileName: artifact.FileName}, nil
}

// GenerateCoverLetter 生成求职信并保存记录。
func (s *Service) GenerateCoverLetter(ctx context.Context, userID, jobID uint) (*database.CoverLetter, error) {
	job, err := s.ownedJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	resume, err := s.primaryResume(ctx, userID)
	if err != nil {
		return nil, err
	}
	if resume.Content == "" {
		return nil, ErrNoPrimaryResume
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	creds, err := CoverLetterCredentials(*user)
	if err != nil {
		return nil, err
	}

	artifact, err := s.runWithTempResume(ctx, s.coverLetters, resume, generator.Request{
		Job:         jobData(job),
		Credentials: creds,
		OutputDir:   s.paths.CoverLetterDir,
	})
	if err != nil {
		return nil, err
	}

	letter := database.CoverLetter{
		UserID:   userID,
		JobID:    job.ID,
		FilePath: artifact.Path,
		FileName: artifact.FileName,
	}
	if err := s.db.WithContext(ctx).Create(&letter).Error; err != nil {
		return nil, fmt.Errorf("save cover letter: %w", err)
	}
	letter.Job = *job
	return &letter, nil
}

// runWithTempResume 写出临时简历文件，运行生成器，并在任何结果下删除该文件。
func (s *Service) runWithTempResume(ctx context.Context, gen generator.DocumentGenerator, resume *database.Resume, req generator.Request) (generator.Artifact, error) {
	path, cleanup, err := generator.WriteTempResume(s.paths.TempDir, resume.Content, resume.Format)
	if err != nil {
		return generator.Artifact{}, err
	}
	defer cleanup()

	req.ResumePath = path
	artifact, err := gen.Generate(ctx, req)
	if err != nil {
		s.logger.Warn("document generation failed",
			slog.Uint64("resume_id", uint64(resume.ID)),
			slog.Any("error", err),
		)
		return generator.Artifact{}, err
	}
	return artifact, nil
}

func (s *Service) primaryResume(ctx context.Context, userID uint) (*database.Resume, error) {
	resume, err := database.FindPrimaryResume(ctx, s.db, userID)
	if errors.Is(err, database.ErrResumeNotFound) {
		return nil, ErrNoPrimaryResume
	}
	if err != nil {
		return nil, fmt.Errorf("load primary resume: %w", err)
	}
	return resume, nil
}

func (s *Service) ownedJob(ctx context.Context, userID, jobID uint) (*database.JobPost, error) {
	var job database.JobPost
	err := s.db.WithContext(ctx).First(&job, jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if job.UserID != userID {
		return nil, ErrJobForbidden
	}
	return &job, nil
}

func (s *Service) loadUser(ctx context.Context, userID uint) (*database.User, error) {
	var user database.User
	err := s.db.WithContext(ctx).Preload("LLMSettings").First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &user, nil
}

func jobData(job *database.JobPost) generator.JobData {
	industry := ""
	if job.CompanyIndustry != nil {
		industry = *job.CompanyIndustry
	}
	return generator.JobData{
		Title:           job.Title,
		Company:         job.Company,
		Description:     job.Description,
		JobType:         job.JobType,
		CompanyIndustry: industry,
	}
}
